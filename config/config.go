package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the application
type Config struct {
	DBHost     string `envconfig:"DB_HOST" default:"localhost"`
	DBPort     string `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"postgres"`
	DBPassword string `envconfig:"DB_PASSWORD"`
	DBName     string `envconfig:"DB_NAME" default:"paysync"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`

	Port      string `envconfig:"PORT" default:"8080"`
	Env       string `envconfig:"ENV" default:"development"`
	JWTSecret string `envconfig:"JWT_SECRET"`

	RazorpayKey           string        `envconfig:"RAZORPAY_KEY"`
	RazorpaySecret        string        `envconfig:"RAZORPAY_SECRET"`
	RazorpayWebhookSecret string        `envconfig:"RAZORPAY_WEBHOOK_SECRET"`
	CheckoutBaseURL       string        `envconfig:"CHECKOUT_BASE_URL" default:"https://api.razorpay.com/v1/checkout"`
	GatewayCurrency       string        `envconfig:"GATEWAY_CURRENCY" default:"INR"`
	GatewayTimeout        time.Duration `envconfig:"GATEWAY_TIMEOUT" default:"10s"`

	PollInterval         time.Duration `envconfig:"POLL_INTERVAL" default:"1s"`
	PollMaxAttempts      int           `envconfig:"POLL_MAX_ATTEMPTS" default:"120"`
	SweepInterval        time.Duration `envconfig:"SWEEP_INTERVAL" default:"0s"`
	SweepConcurrency     int           `envconfig:"SWEEP_CONCURRENCY" default:"4"`
	HoldOnAmountMismatch bool          `envconfig:"HOLD_ON_AMOUNT_MISMATCH" default:"false"`

	SMTPHost     string `envconfig:"SMTP_HOST"`
	SMTPPort     int    `envconfig:"SMTP_PORT" default:"587"`
	SMTPUsername string `envconfig:"SMTP_USERNAME"`
	SMTPPassword string `envconfig:"SMTP_PASSWORD"`
	SMTPFrom     string `envconfig:"SMTP_FROM"`

	LogDir   string `envconfig:"LOG_DIR" default:"logs"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadConfig reads .env (when present) and the process environment
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env file: %v", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error reading environment: %v", err)
	}
	return &cfg, nil
}

// DSN returns the postgres connection string
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

// IsProduction reports whether ENV is production
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
