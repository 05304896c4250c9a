package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Govind-619/paysync/config"
	"github.com/Govind-619/paysync/controllers"
	"github.com/Govind-619/paysync/gateway"
	"github.com/Govind-619/paysync/reconcile"
	"github.com/Govind-619/paysync/routes"
	"github.com/Govind-619/paysync/services"
	"github.com/Govind-619/paysync/store"
	"github.com/Govind-619/paysync/utils"
	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v2"
	"gorm.io/gorm"
)

func main() {
	app := &cli.App{
		Name:  utils.AppName,
		Usage: "reconcile orders with payment gateway state",
		Before: func(c *cli.Context) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			if err := utils.InitLogger(cfg.LogDir, cfg.LogLevel); err != nil {
				return fmt.Errorf("failed to initialize logger: %v", err)
			}
			c.App.Metadata["config"] = cfg
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API and the scheduled sweep",
				Action: serve,
			},
			{
				Name:   "sweep",
				Usage:  "reconcile every pending payment once and print the summary",
				Action: sweepOnce,
			},
			{
				Name:   "migrate",
				Usage:  "create or update the database schema",
				Action: migrate,
			},
			{
				Name:  "admin-token",
				Usage: "mint an operator token for the admin endpoints",
				Flags: []cli.Flag{
					&cli.UintFlag{Name: "admin-id", Value: 1},
					&cli.DurationFlag{Name: "ttl", Value: 24 * time.Hour},
				},
				Action: adminToken,
			},
		},
		DefaultCommand: "serve",
	}

	if err := app.Run(os.Args); err != nil {
		utils.LogError("%v", err)
		log.Fatal(err)
	}
}

func configFrom(c *cli.Context) *config.Config {
	return c.App.Metadata["config"].(*config.Config)
}

// components is the wired service graph shared by every command.
type components struct {
	payments    *store.PaymentStore
	events      *store.WebhookEventStore
	reconciler  *services.Reconciler
	checkout    *services.CheckoutService
	coordinator *services.Coordinator
	webhooks    *services.WebhookIngress
	sweeper     *services.Sweeper
}

func wire(cfg *config.Config, db *gorm.DB) *components {
	payments := store.NewPaymentStore(db)
	orders := store.NewOrderStore(db)
	carts := store.NewCartStore(db)
	events := store.NewWebhookEventStore(db)

	gw := gateway.NewRazorpayClient(cfg.RazorpayKey, cfg.RazorpaySecret, cfg.GatewayTimeout, cfg.CheckoutBaseURL)
	mailer := utils.NewMailer(utils.EmailConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	})
	engine := reconcile.NewEngine(reconcile.Policy{HoldOnAmountMismatch: cfg.HoldOnAmountMismatch})
	reconciler := services.NewReconciler(payments, orders, gw, engine, services.NewEffectDispatcher(mailer, carts))

	return &components{
		payments:   payments,
		events:     events,
		reconciler: reconciler,
		checkout:   services.NewCheckoutService(payments, orders, gw, cfg.GatewayCurrency),
		coordinator: services.NewCoordinator(reconciler, services.PollConfig{
			Interval:    cfg.PollInterval,
			MaxAttempts: cfg.PollMaxAttempts,
			CallTimeout: cfg.GatewayTimeout,
		}),
		webhooks: services.NewWebhookIngress(reconciler, payments, events, cfg.RazorpayWebhookSecret),
		sweeper:  services.NewSweeper(reconciler, payments, cfg.SweepConcurrency, cfg.GatewayTimeout),
	}
}

func serve(c *cli.Context) error {
	cfg := configFrom(c)
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := config.InitDB(cfg)
	if err != nil {
		return err
	}
	comp := wire(cfg, db)

	router := routes.SetupRouter(routes.Dependencies{
		DB:        db,
		Payments:  controllers.NewPaymentController(comp.checkout, comp.reconciler, comp.coordinator, comp.webhooks, comp.sweeper),
		Admin:     controllers.NewAdminController(comp.payments, comp.events),
		JWTSecret: cfg.JWTSecret,
	})

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go comp.sweeper.Schedule(ctx, cfg.SweepInterval)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: router}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			utils.LogError("Error shutting down server: %v", err)
		}
	}()

	utils.LogInfo("Server starting on port %s", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("error starting server: %v", err)
	}
	utils.LogInfo("Server stopped")
	return nil
}

func sweepOnce(c *cli.Context) error {
	cfg := configFrom(c)
	db, err := config.InitDB(cfg)
	if err != nil {
		return err
	}

	summary, err := wire(cfg, db).sweeper.Run(c.Context)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}

func migrate(c *cli.Context) error {
	_, err := config.InitDB(configFrom(c))
	if err != nil {
		return err
	}
	utils.LogInfo("Database schema is up to date")
	return nil
}

func adminToken(c *cli.Context) error {
	token, err := utils.GenerateAdminToken(configFrom(c).JWTSecret, c.Uint("admin-id"), c.Duration("ttl"))
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
