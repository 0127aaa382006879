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

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fjod/storefront/api-gateway/internal/clients"
	h "github.com/fjod/storefront/api-gateway/internal/http"
	"github.com/fjod/storefront/api-gateway/internal/session"
	"github.com/fjod/storefront/internal/cart"
	"github.com/fjod/storefront/internal/cart/cache"
	"github.com/fjod/storefront/internal/cart/poller"
	"github.com/fjod/storefront/internal/cart/repository"
	"github.com/fjod/storefront/internal/checkout"
	ordersclient "github.com/fjod/storefront/internal/orders/client"
	"github.com/fjod/storefront/internal/payment"
	"github.com/fjod/storefront/pkg/auth"
	"github.com/fjod/storefront/pkg/config"
	"github.com/fjod/storefront/pkg/httpclient"
	"github.com/fjod/storefront/pkg/logger"
	"github.com/fjod/storefront/pkg/tracing"
)

type Config struct {
	HTTPPort           string
	LogLevel           string
	JWTSecret          string
	CatalogURL         string
	ProfileURL         string
	PaymentURL         string
	OrdersURL          string
	CartBackend        string
	MongoURI           string
	MongoDBName        string
	RedisAddr          string
	RedisPassword      string
	KafkaBrokers       []string
	SupportContact     string
	SessionIdle        time.Duration
	RequestTimeout     time.Duration
	ShutdownTimeout    time.Duration
	MaxRequestBodySize int64
}

func loadConfig() *Config {
	return &Config{
		HTTPPort:           config.GetEnv("HTTP_PORT", "8080"),
		LogLevel:           config.GetEnv("LOG_LEVEL", "info"),
		JWTSecret:          config.GetEnv("JWT_SECRET", "dev-secret"),
		CatalogURL:         config.GetEnv("CATALOG_API_URL", "http://localhost:8081"),
		ProfileURL:         config.GetEnv("PROFILE_API_URL", "http://localhost:8082"),
		PaymentURL:         config.GetEnv("PAYMENT_SERVICE_URL", "http://localhost:8084"),
		OrdersURL:          config.GetEnv("ORDERS_SERVICE_URL", "http://localhost:8083"),
		CartBackend:        config.GetEnv("CART_BACKEND", "mongo"),
		MongoURI:           config.GetEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDBName:        config.GetEnv("MONGO_DB_NAME", "cartdb"),
		RedisAddr:          config.GetEnv("REDIS_ADDR", ""),
		RedisPassword:      config.GetEnv("REDIS_PASSWORD", ""),
		KafkaBrokers:       config.GetList("KAFKA_BROKERS", nil),
		SupportContact:     config.GetEnv("SUPPORT_CONTACT", payment.DefaultSupportContact),
		SessionIdle:        config.GetDuration("SESSION_IDLE_TIMEOUT", 2*time.Hour),
		RequestTimeout:     config.GetDuration("REQUEST_TIMEOUT", 30*time.Second),
		ShutdownTimeout:    config.GetDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		MaxRequestBodySize: 1 << 20, // 1MB
	}
}

// openCartRepository returns the cart storage and a cleanup func.
func openCartRepository(ctx context.Context, cfg *Config, l *zap.Logger) (cart.Repository, func(), error) {
	if cfg.CartBackend == "memory" {
		l.Warn("using in-memory cart storage, carts are lost on restart")
		return cart.NewMemoryRepository(), func() {}, nil
	}

	mongoDB, err := repository.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		return nil, nil, err
	}
	mongoRepo := repository.NewMongoRepository(mongoDB)
	if err := mongoRepo.CreateIndexes(ctx); err != nil {
		l.Warn("failed to create cart indexes", zap.Error(err))
	}
	l.Info("connected to MongoDB", zap.String("db", cfg.MongoDBName))
	cleanup := func() { _ = mongoDB.Client().Disconnect(context.Background()) }

	if cfg.RedisAddr == "" {
		return mongoRepo, cleanup, nil
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		l.Warn("redis unavailable, serving carts without cache", zap.Error(err))
		_ = redisClient.Close()
		return mongoRepo, cleanup, nil
	}
	l.Info("redis cart cache enabled", zap.String("addr", cfg.RedisAddr))

	cached := cache.NewCachedRepository(mongoRepo, cache.NewRedisCache(redisClient), l)
	return cached, func() {
		_ = redisClient.Close()
		cleanup()
	}, nil
}

func main() {
	if err := config.Load(); err != nil {
		log.Fatalf("failed to load .env: %v", err)
	}
	cfg := loadConfig()

	l, err := logger.New("api-gateway", cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer l.Sync()
	tracing.Setup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, closeRepo, err := openCartRepository(ctx, cfg, l)
	if err != nil {
		l.Fatal("failed to open cart storage", zap.Error(err))
	}
	defer closeRepo()

	clientOpts := []httpclient.Option{httpclient.WithLogger(l)}
	catalog := clients.NewCatalogClient(cfg.CatalogURL, clientOpts...)
	profiles := clients.NewProfileClient(cfg.ProfileURL, clientOpts...)
	payments := clients.NewPaymentClient(cfg.PaymentURL, append(clientOpts, httpclient.WithTimeout(20*time.Second))...)
	ordersSvc := ordersclient.New(cfg.OrdersURL, clientOpts...)

	shoppers := session.NewRegistry(repo, l)
	checkoutSession := checkout.NewSession(payments, profiles, checkout.WithLogger(l))

	router := h.NewRouter(h.Handlers{
		Cart:     h.NewCartHandler(shoppers, catalog, cfg.RequestTimeout, l),
		Checkout: h.NewCheckoutHandler(shoppers, checkoutSession, payments, ordersSvc, cfg.SupportContact, cfg.RequestTimeout, l),
		Orders:   h.NewOrdersHandler(ordersSvc, cfg.RequestTimeout, l),
		Products: h.NewProductHandler(catalog, cfg.RequestTimeout, l),
	}, auth.NewVerifier(cfg.JWTSecret), l, h.RouterConfig{
		Timeout:            cfg.RequestTimeout,
		MaxRequestBodySize: cfg.MaxRequestBodySize,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      tracing.Handler(router, "api-gateway"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		l.Info("API gateway listening", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return shoppers.Run(gctx, 5*time.Minute, cfg.SessionIdle)
	})
	if len(cfg.KafkaBrokers) > 0 {
		cartPoller := poller.NewPoller(shoppers, l, cfg.KafkaBrokers...)
		defer cartPoller.Close()
		g.Go(func() error {
			cartPoller.Run(gctx)
			return nil
		})
	} else {
		l.Info("KAFKA_BROKERS not set, carts are only cleared by the confirming instance")
	}
	g.Go(func() error {
		<-gctx.Done()
		l.Info("shutting down API gateway")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		l.Error("API gateway stopped with error", zap.Error(err))
		return
	}
	l.Info("API gateway stopped")
}
