package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ledgerflow/paylink/internal/config"
	"github.com/ledgerflow/paylink/internal/models"
	"github.com/ledgerflow/paylink/internal/notify"
	"github.com/ledgerflow/paylink/internal/provider"
	"github.com/ledgerflow/paylink/internal/provider/square"
	"github.com/ledgerflow/paylink/internal/provider/stripe"
	"github.com/ledgerflow/paylink/internal/reconcile"
	"github.com/ledgerflow/paylink/internal/repository"
	"github.com/ledgerflow/paylink/internal/server"
	"github.com/ledgerflow/paylink/internal/service"
	"github.com/ledgerflow/paylink/internal/webhook"
	"github.com/ledgerflow/paylink/pkg/database"
	"github.com/ledgerflow/paylink/pkg/logging"
)

func main() {
	// Load configuration
	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := logging.NewLogger(logging.Config{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting payment link service",
		zap.String("version", "1.0.0"),
		zap.Int("port", cfg.Server.Port),
		zap.String("default_provider", cfg.App.DefaultProvider))

	// Initialize database
	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	// Run migrations
	migrator := database.NewMigrator(db, logger)
	if err := migrator.RunMigrations(cfg.Database.MigrationsDir); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	// Initialize repositories
	invoiceRepo := repository.NewInvoiceRepository(db.DB, logger)
	paymentRepo := repository.NewPaymentRepository(db.DB, logger)
	eventRepo := repository.NewWebhookEventRepository(db.DB, logger)

	// Initialize payment providers. Unconfigured providers boot fine
	// and report a config error only when a request reaches them.
	stripeGen := stripe.NewGenerator(stripe.Config{
		SecretKey:     cfg.Stripe.SecretKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
		AppBaseURL:    cfg.App.BaseURL,
	}, logger)

	squareGen := square.NewGenerator(square.Config{
		AccessToken:     cfg.Square.AccessToken,
		LocationID:      cfg.Square.LocationID,
		WebhookSecret:   cfg.Square.WebhookSecret,
		NotificationURL: cfg.Square.NotificationURL,
		AppBaseURL:      cfg.App.BaseURL,
		BaseURL:         cfg.Square.BaseURL,
		Timeout:         cfg.Square.Timeout,
	}, logger)

	generators := map[string]provider.LinkGenerator{
		models.ProviderStripe: stripeGen,
		models.ProviderSquare: squareGen,
	}

	// Initialize paid notifications
	var notifier notify.Notifier
	if cfg.Notify.ResendAPIKey != "" {
		notifier = notify.NewResendSender(notify.ResendConfig{
			APIKey: cfg.Notify.ResendAPIKey,
			From:   cfg.Notify.EmailFrom,
		}, logger)
	} else {
		notifier = notify.NewNopNotifier(logger)
	}

	// Initialize reconciliation engine and invoice service
	engine := reconcile.NewEngine(db, invoiceRepo, paymentRepo, eventRepo, notifier, logger)
	invoiceService := service.NewInvoiceService(db, invoiceRepo, paymentRepo, generators, cfg.App.DefaultProvider, logger)

	// Register webhook endpoints. Square events carry only an order id,
	// so its generator doubles as the enricher that recovers invoice
	// metadata before reconciliation.
	registry := webhook.NewRegistry()
	registry.Register(stripe.NewVerifier(cfg.Stripe.WebhookSecret, logger), nil)
	registry.Register(square.NewVerifier(cfg.Square.WebhookSecret, cfg.Square.NotificationURL, logger), squareGen)
	webhookHandler := webhook.NewHandler(registry, engine, logger)
	logger.Info("Webhook endpoints registered", zap.Strings("providers", registry.Providers()))

	// Set Gin mode based on logger level
	if cfg.Logger.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	srv := server.NewServer(server.Config{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, invoiceService, eventRepo, webhookHandler, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		logger.Info("Shutting down server...")
		cancel()
	}()

	if err := srv.Start(ctx); err != nil {
		logger.Fatal("Server error", zap.Error(err))
	}

	logger.Info("Server exited successfully")
}
