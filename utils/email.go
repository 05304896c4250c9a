package utils

import (
	"fmt"

	"gopkg.in/gomail.v2"
)

// EmailConfig holds email configuration
type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Mailer sends transactional emails over SMTP
type Mailer struct {
	config EmailConfig
	dialer *gomail.Dialer
}

// NewMailer returns a mailer, or nil when no SMTP host is configured
func NewMailer(config EmailConfig) *Mailer {
	if config.Host == "" {
		return nil
	}
	if config.Port == 0 {
		config.Port = 587
	}
	return &Mailer{
		config: config,
		dialer: gomail.NewDialer(config.Host, config.Port, config.Username, config.Password),
	}
}

// Send delivers an HTML email
func (m *Mailer) Send(to, subject, body string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.config.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", body)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send email: %v", err)
	}
	return nil
}

// PaymentConfirmationBody renders the order confirmation email
func PaymentConfirmationBody(customerName, orderNumber, amount string) string {
	if customerName == "" {
		customerName = "there"
	}
	return fmt.Sprintf(`
		<h2>Thank you, %s!</h2>
		<p>We received your payment of <strong>%s</strong> for order <strong>%s</strong>.</p>
		<p>Your order is confirmed and we will let you know when it ships.</p>
	`, customerName, amount, orderNumber)
}
