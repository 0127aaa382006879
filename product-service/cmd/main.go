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

	"github.com/fjod/storefront/pkg/config"
	"github.com/fjod/storefront/pkg/logger"
	"github.com/fjod/storefront/pkg/tracing"
	producthttp "github.com/fjod/storefront/product-service/internal/http"
	"github.com/fjod/storefront/product-service/internal/repository"
)

func main() {
	if err := config.Load(); err != nil {
		log.Fatalf("failed to load .env: %v", err)
	}

	l, err := logger.New("product-service", config.GetEnv("LOG_LEVEL", "info"))
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer l.Sync()
	tracing.Setup()

	dbPath := config.GetEnv("DB_PATH", "./internal/repository/products.db")
	migrationsPath := config.GetEnv("MIGRATIONS_PATH", "./internal/repository/migrations")
	port := config.GetEnv("HTTP_PORT", "8081")
	timeout := config.GetDuration("REQUEST_TIMEOUT", 5*time.Second)

	repo, err := repository.NewRepository(dbPath)
	if err != nil {
		l.Fatal("failed to open product database", zap.Error(err))
	}
	defer repo.Close()

	if err := repo.RunMigrations(migrationsPath); err != nil {
		l.Fatal("failed to run migrations", zap.Error(err))
	}
	l.Info("migrations completed")

	handler := producthttp.NewProductHandler(repo, timeout, l)
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      tracing.Handler(producthttp.NewRouter(handler, l, timeout), "product-service"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		l.Info("product service listening", zap.String("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	l.Info("shutting down product service")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		l.Error("forced shutdown", zap.Error(err))
	}
}
