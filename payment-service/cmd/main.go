package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/fjod/storefront/internal/gateway"
	cardgw "github.com/fjod/storefront/payment-service/internal/gateway"
	paymenthttp "github.com/fjod/storefront/payment-service/internal/http"
	"github.com/fjod/storefront/pkg/auth"
	"github.com/fjod/storefront/pkg/config"
	"github.com/fjod/storefront/pkg/logger"
	"github.com/fjod/storefront/pkg/tracing"
)

type Config struct {
	HTTPPort        string
	LogLevel        string
	JWTSecret       string
	Gateway         string
	StripeSecretKey string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

func loadConfig() *Config {
	return &Config{
		HTTPPort:        config.GetEnv("HTTP_PORT", "8084"),
		LogLevel:        config.GetEnv("LOG_LEVEL", "info"),
		JWTSecret:       config.GetEnv("JWT_SECRET", "dev-secret"),
		Gateway:         config.GetEnv("GATEWAY", "sandbox"),
		StripeSecretKey: config.GetEnv("STRIPE_SECRET_KEY", ""),
		RequestTimeout:  config.GetDuration("REQUEST_TIMEOUT", 15*time.Second),
		ShutdownTimeout: config.GetDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

func newGateway(cfg *Config, l *zap.Logger) (gateway.Gateway, error) {
	switch cfg.Gateway {
	case "stripe":
		if cfg.StripeSecretKey == "" {
			return nil, errors.New("STRIPE_SECRET_KEY is required for the stripe gateway")
		}
		return cardgw.NewStripe(cfg.StripeSecretKey, nil, l), nil
	case "sandbox":
		l.Warn("using sandbox payment gateway, no real charges are made")
		return cardgw.NewSandbox(cardgw.RandomRoll), nil
	}
	return nil, errors.New("unknown GATEWAY " + cfg.Gateway)
}

func main() {
	if err := config.Load(); err != nil {
		log.Fatalf("failed to load .env: %v", err)
	}
	cfg := loadConfig()

	l, err := logger.New("payment-service", cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer l.Sync()
	tracing.Setup()

	gw, err := newGateway(cfg, l)
	if err != nil {
		l.Fatal("failed to configure payment gateway", zap.Error(err))
	}

	handler := paymenthttp.NewPaymentHandler(gw, cfg.RequestTimeout, l)
	router := paymenthttp.NewRouter(handler, auth.NewVerifier(cfg.JWTSecret), l, cfg.RequestTimeout)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      tracing.Handler(router, "payment-service"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 20 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		l.Info("payment service listening", zap.String("port", cfg.HTTPPort), zap.String("gateway", cfg.Gateway))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Fatal("failed to serve", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	l.Info("shutting down payment service")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Error("payment service shutdown failed", zap.Error(err))
	}
	l.Info("payment service stopped")
}
