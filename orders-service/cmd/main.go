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
	"golang.org/x/sync/errgroup"

	ordershttp "github.com/fjod/storefront/orders-service/internal/http"
	"github.com/fjod/storefront/orders-service/internal/publisher"
	"github.com/fjod/storefront/orders-service/internal/repository"
	"github.com/fjod/storefront/orders-service/internal/service"
	"github.com/fjod/storefront/pkg/auth"
	"github.com/fjod/storefront/pkg/config"
	"github.com/fjod/storefront/pkg/logger"
	"github.com/fjod/storefront/pkg/tracing"
)

type Config struct {
	HTTPPort        string
	LogLevel        string
	JWTSecret       string
	StoreBackend    string
	KafkaBrokers    []string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	DB              repository.Credentials
}

func loadConfig() *Config {
	return &Config{
		HTTPPort:        config.GetEnv("HTTP_PORT", "8083"),
		LogLevel:        config.GetEnv("LOG_LEVEL", "info"),
		JWTSecret:       config.GetEnv("JWT_SECRET", "dev-secret"),
		StoreBackend:    config.GetEnv("STORE_BACKEND", "postgres"),
		KafkaBrokers:    config.GetList("KAFKA_BROKERS", []string{"localhost:9092"}),
		RequestTimeout:  config.GetDuration("REQUEST_TIMEOUT", 10*time.Second),
		ShutdownTimeout: config.GetDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		DB: repository.Credentials{
			Host:              config.GetEnv("DB_HOST", "localhost"),
			Port:              config.GetInt("DB_PORT", 5432),
			User:              config.GetEnv("DB_USER", "postgres"),
			Password:          config.GetEnv("DB_PASSWORD", "postgres"),
			DBName:            config.GetEnv("DB_NAME", "storefront"),
			MigrationsDirPath: config.GetEnv("MIGRATIONS_PATH", "./internal/repository/migrations"),
		},
	}
}

func openRepository(cfg *Config, l *zap.Logger) (repository.OrderRepository, error) {
	if cfg.StoreBackend == "memory" {
		l.Warn("using in-memory order store, data is lost on restart")
		return repository.NewMemoryStore(), nil
	}

	repo, err := repository.NewRepository(&cfg.DB)
	if err != nil {
		return nil, err
	}
	if err := repo.RunMigrations(&cfg.DB); err != nil {
		repo.Close()
		return nil, err
	}
	l.Info("database migrations completed")
	return repo, nil
}

func main() {
	if err := config.Load(); err != nil {
		log.Fatalf("failed to load .env: %v", err)
	}
	cfg := loadConfig()

	l, err := logger.New("orders-service", cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer l.Sync()
	tracing.Setup()

	repo, err := openRepository(cfg, l)
	if err != nil {
		l.Fatal("failed to open order repository", zap.Error(err))
	}
	defer repo.Close()

	svc := service.New(repo, service.WithLogger(l))
	handler := ordershttp.NewOrdersHandler(svc, cfg.RequestTimeout, l)
	router := ordershttp.NewRouter(handler, auth.NewVerifier(cfg.JWTSecret), l, cfg.RequestTimeout)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      tracing.Handler(router, "orders-service"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	poller := publisher.NewOutboxPoller(repo, l, cfg.KafkaBrokers...)
	defer poller.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		l.Info("orders service listening", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return poller.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		l.Info("shutting down orders service")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		l.Error("orders service stopped with error", zap.Error(err))
		return
	}
	l.Info("orders service stopped")
}
