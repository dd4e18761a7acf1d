package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/kevin07696/bakery-service/internal/adapters/paystack"
	"github.com/kevin07696/bakery-service/internal/bootstrap"
	"github.com/kevin07696/bakery-service/internal/config"
	paymentHandler "github.com/kevin07696/bakery-service/internal/handlers/payment"
	checkoutService "github.com/kevin07696/bakery-service/internal/services/checkout"
	reconcileService "github.com/kevin07696/bakery-service/internal/services/reconcile"
	"github.com/kevin07696/bakery-service/pkg/logging"
	"github.com/kevin07696/bakery-service/pkg/middleware"
	"github.com/kevin07696/bakery-service/pkg/observability"
	"github.com/kevin07696/bakery-service/pkg/resilience"
	"github.com/kevin07696/bakery-service/pkg/shutdown"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		panic(err)
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		panic(fmt.Sprintf("invalid configuration: %v", err))
	}

	logger, err := logging.New(cfg.Logger.Environment, cfg.Logger.Level)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting bakery payment service",
		zap.String("environment", cfg.Logger.Environment),
		zap.String("store_driver", cfg.Store.Driver),
	)

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Service failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	portsLogger := logging.NewZapLogger(logger)
	timeouts := resilience.DefaultTimeoutConfig()
	timeouts.Gateway = cfg.Gateway.Timeout

	// Components shut down in reverse registration order
	shutdownMgr := shutdown.NewManager(logger, cfg.Server.ShutdownTimeout)

	store, err := bootstrap.OpenStore(ctx, cfg, portsLogger)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	shutdownMgr.RegisterCloser("document-store", store)

	secretKey, err := bootstrap.LoadGatewaySecret(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("load gateway secret: %w", err)
	}

	gateway := paystack.NewAdapterWithDefaults(paystack.Config{
		BaseURL:   cfg.Gateway.BaseURL,
		SecretKey: secretKey,
		Currency:  cfg.Gateway.Currency,
	}, cfg.Gateway.Timeout, portsLogger)

	publisher := bootstrap.NewPublisher(cfg, portsLogger, logger)
	shutdownMgr.RegisterCloser("event-publisher", publisher)

	cleanups := shutdown.NewInFlightTracker("staged-order-cleanup", logger)
	shutdownMgr.Register("staged-order-cleanup", cleanups.Shutdown)

	reconciler := reconcileService.NewService(gateway, store, cleanups, timeouts, portsLogger,
		reconcileService.WithPublisher(publisher),
	)
	stager := checkoutService.NewService(gateway, store, checkoutService.Config{
		CallbackURL: cfg.Server.CallbackURL(),
		Currency:    cfg.Gateway.Currency,
	}, timeouts, portsLogger)

	healthChecker := observability.NewHealthChecker(map[string]observability.Pinger{
		"document_store": store,
	})
	metricsServer := observability.StartMetricsServer(strconv.Itoa(cfg.Server.MetricsPort), healthChecker, logger)
	shutdownMgr.RegisterHTTPServer("metrics-server", metricsServer)

	rateLimiter := middleware.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst, logger)
	shutdownMgr.RegisterNoErr("rate-limiter", rateLimiter.Shutdown)

	route := func(name string, h http.Handler) http.Handler {
		return observability.InstrumentHandler(name, rateLimiter.Middleware(middleware.Timeout(timeouts, h)))
	}

	mux := http.NewServeMux()
	mux.Handle("/payment/callback", route("callback",
		paymentHandler.NewCallbackHandler(reconciler, cfg.Server.UIBaseURL, logger)))
	mux.Handle("/api/v1/payments/webhook", route("webhook",
		paymentHandler.NewWebhookHandler(reconciler, gateway, paystack.SignatureHeader, logger)))
	mux.Handle("/api/v1/checkout", route("checkout",
		paymentHandler.NewCheckoutHandler(stager, logger)))

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           middleware.Recovery(logger, middleware.Logging(logger, mux)),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      timeouts.HTTPHandler + 5*time.Second,
	}
	// Registered last so it stops accepting requests first
	shutdownMgr.RegisterHTTPServer("http-server", httpServer)

	go func() {
		logger.Info("HTTP server listening", zap.Int("port", cfg.Server.Port))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to serve HTTP", zap.Error(err))
		}
	}()

	shutdownMgr.WaitForShutdown()
	logger.Info("Servers stopped")
	return nil
}
