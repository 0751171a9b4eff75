package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/kelseyhightower/envconfig"

	"paybridge/internal/checkout"
	checkoutapi "paybridge/internal/checkout/api"
	"paybridge/internal/checkout/builder"
	"paybridge/internal/common/database"
	"paybridge/internal/common/events"
	"paybridge/internal/common/middleware"
	"paybridge/internal/common/nats"
	"paybridge/internal/gateway"
	"paybridge/internal/notification"
	"paybridge/internal/order/store"
	"paybridge/internal/reconcile"
)

// Config holds service configuration
type Config struct {
	Port          int    `envconfig:"PAYBRIDGE_PORT" default:"8080"`
	Environment   string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel      string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat     string `envconfig:"LOG_FORMAT" default:"json"`
	ShopName      string `envconfig:"SHOP_NAME" default:"paybridge"`
	ShopBaseURL   string `envconfig:"SHOP_BASE_URL" required:"true"`
	PluginVersion string `envconfig:"PLUGIN_VERSION" default:"1.0.0"`
	SecondsActive int    `envconfig:"PAYMENT_SECONDS_ACTIVE" default:"2592000"`

	Database database.Config
	NATS     nats.Config
	Gateway  gateway.Config
}

func main() {
	// Load configuration
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to process config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)

	// Create context that listens for shutdown signals
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Apply schema before opening the pool
	if cfg.Database.Migrate {
		if err := database.Migrate(cfg.Database.URL, store.Migrations, store.MigrationsDir, logger); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
	}

	// Connect to database
	db, err := database.New(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Connect to NATS; events are optional
	var (
		natsClient *nats.Client
		publisher  events.EventPublisher
	)
	if cfg.NATS.Enabled {
		natsClient, err = nats.New(ctx, cfg.NATS, logger)
		if err != nil {
			logger.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer natsClient.Close()

		if err := natsClient.EnsureStream(ctx, cfg.NATS.Stream); err != nil {
			logger.Error("failed to ensure event stream", "error", err)
			os.Exit(1)
		}
		publisher = nats.NewPublisher(natsClient, logger)
	}

	// Gateways and payment methods
	registry := gateway.DefaultRegistry()
	repos := store.New(db)
	created, err := repos.PaymentMethods.Register(ctx, gateway.DefaultGateways())
	if err != nil {
		logger.Error("failed to register payment methods", "error", err)
		os.Exit(1)
	}
	if created > 0 {
		logger.Info("payment methods registered", "count", created)
	}
	gatewayClient := gateway.NewClient(cfg.Gateway, logger)

	// Create services
	reconciler := reconcile.New(repos.StateMachine, repos.Transactions, repos.PaymentMethods, registry, publisher, logger)
	ingestor := notification.NewIngestor(repos.Orders, gatewayClient, reconciler, logger)
	requests := builder.NewOrderRequestBuilder(builder.NewDefaultShoppingCartBuilder(), builder.Options{
		ShopName:      cfg.ShopName,
		PluginVersion: cfg.PluginVersion,
		SecondsActive: cfg.SecondsActive,
	})
	checkoutService := checkout.NewService(
		repos.Orders,
		repos.StateMachine,
		gatewayClient,
		reconciler,
		registry,
		requests,
		publisher,
		checkout.Config{ShopBaseURL: cfg.ShopBaseURL},
		logger,
	)

	// Create handlers
	notificationHandler := notification.NewHandler(ingestor)
	checkoutHandler := checkoutapi.NewHandler(checkoutService)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.CorrelationID)
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Logger(logger))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.HealthCheck(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy"}`))
			return
		}
		if natsClient != nil {
			if err := natsClient.HealthCheck(); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"status":"unhealthy"}`))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	// Ready check
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	})

	// Gateway webhook
	r.Mount("/notification", notificationHandler.Routes())

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(chimw.Compress(5))
		r.Mount("/", checkoutHandler.Routes())
	})

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Gateway.Timeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting paybridge service",
			"port", cfg.Port,
			"environment", cfg.Environment,
			"gateway", cfg.Gateway.BaseURL,
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	// Wait for shutdown
	<-ctx.Done()

	// Graceful shutdown
	logger.Info("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("server stopped")
}

func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
