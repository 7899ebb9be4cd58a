package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/osezele-agbi/paygate/internal/config"
	"github.com/osezele-agbi/paygate/internal/domain"
	"github.com/osezele-agbi/paygate/internal/handler"
	"github.com/osezele-agbi/paygate/internal/logging"
	"github.com/osezele-agbi/paygate/internal/middleware"
	"github.com/osezele-agbi/paygate/internal/provider"
	"github.com/osezele-agbi/paygate/internal/repository"
	"github.com/osezele-agbi/paygate/internal/service/payment"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logging.Init("paygate-api", cfg.LogLevel, cfg.AppEnv)

	db, err := connectDB(cfg)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	registry, err := provider.NewRegistry(providerConfig(cfg))
	if err != nil {
		slog.Error("failed to build provider registry", "error", err)
		os.Exit(1)
	}
	slog.Info("payment provider configured", "provider", cfg.PaymentProvider)

	paymentRepo := repository.NewPaymentRepository(db)
	refundRepo := repository.NewRefundRepository(db)
	eventRepo := repository.NewPaymentEventRepository(db)
	webhookLogRepo := repository.NewWebhookLogRepository(db)
	idempotencyRepo := repository.NewIdempotencyRepository(db)

	paymentSvc := payment.NewService(paymentRepo, refundRepo, eventRepo, webhookLogRepo, registry, db)

	paymentHandler := handler.NewPaymentHandler(paymentSvc)
	webhookHandler := handler.NewWebhookHandler(paymentSvc)
	healthHandler := handler.NewHealthHandler(db)

	authMW := middleware.Auth(cfg.JWTSecret)
	idempotencyMW := middleware.Idempotency(idempotencyRepo)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler.Liveness)
	mux.HandleFunc("GET /health/ready", healthHandler.Readiness)

	mux.Handle("POST /api/v1/payments", authMW(idempotencyMW(http.HandlerFunc(paymentHandler.Create))))
	mux.Handle("GET /api/v1/payments", authMW(http.HandlerFunc(paymentHandler.List)))
	mux.Handle("GET /api/v1/payments/{id}", authMW(http.HandlerFunc(paymentHandler.Get)))
	mux.Handle("GET /api/v1/payments/{id}/refunds", authMW(http.HandlerFunc(paymentHandler.ListRefunds)))
	mux.Handle("GET /api/v1/payments/{id}/events", authMW(http.HandlerFunc(paymentHandler.ListEvents)))
	mux.Handle("POST /api/v1/payments/{id}/capture", authMW(idempotencyMW(http.HandlerFunc(paymentHandler.Capture))))
	mux.Handle("POST /api/v1/payments/{id}/refund", authMW(idempotencyMW(http.HandlerFunc(paymentHandler.Refund))))

	// Webhooks authenticate through provider signatures, not bearer tokens.
	mux.HandleFunc("POST /api/v1/payments/webhook/{provider}", webhookHandler.Receive)

	root := middleware.Tracing(middleware.Logging(middleware.Recovery(mux)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go cleanIdempotencyCache(ctx, idempotencyRepo)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           root,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

func providerConfig(cfg *config.Config) provider.Config {
	return provider.Config{
		Default: domain.ProviderType(cfg.PaymentProvider),
		Stripe: provider.StripeConfig{
			SecretKey:     cfg.StripeSecretKey,
			WebhookSecret: cfg.StripeWebhookSecret,
			ManualCapture: cfg.StripeManualCapture,
		},
		Razorpay: provider.RazorpayConfig{
			KeyID:         cfg.RazorpayKeyID,
			KeySecret:     cfg.RazorpayKeySecret,
			WebhookSecret: cfg.RazorpayWebhookSecret,
		},
		Cashfree: provider.CashfreeConfig{
			AppID:         cfg.CashfreeAppID,
			SecretKey:     cfg.CashfreeSecretKey,
			WebhookSecret: cfg.CashfreeWebhookSecret,
		},
	}
}

func cleanIdempotencyCache(ctx context.Context, repo *repository.IdempotencyRepository) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := repo.CleanExpired(ctx)
			if err != nil {
				slog.Error("idempotency cache cleanup failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("idempotency cache cleaned", "removed", n)
			}
		}
	}
}

func connectDB(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connectDB: %w", err)
	}

	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.DBConnMaxLifetimeS) * time.Second)
	db.SetConnMaxIdleTime(time.Duration(cfg.DBConnMaxIdleTimeS) * time.Second)

	for i := range 30 {
		if err = db.Ping(); err == nil {
			return db, nil
		}
		slog.Info("waiting for database", "attempt", i+1)
		time.Sleep(time.Second)
	}

	db.Close()
	return nil, fmt.Errorf("connectDB: gave up after 30 attempts: %w", err)
}
