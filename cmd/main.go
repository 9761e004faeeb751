package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fjod/go_cart/cart-engine/internal/config"
	"github.com/fjod/go_cart/cart-engine/internal/domain"
	carthttp "github.com/fjod/go_cart/cart-engine/internal/http"
	"github.com/fjod/go_cart/cart-engine/internal/logger"
	"github.com/fjod/go_cart/cart-engine/internal/poller"
	"github.com/fjod/go_cart/cart-engine/internal/service"
	"github.com/fjod/go_cart/cart-engine/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx := context.Background()
	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to open cart storage", "backend", cfg.StorageBackend, "error", err)
	}
	defer closeStore()

	carts := service.NewRegistry(store, log, cfg.Registry(),
		service.WithPolicy(cfg.DeliveryPolicy()),
		service.WithNotifier(service.NotifierFunc(func(ctx context.Context, n domain.Notice) {
			log.WithContext(ctx).Debug("cart notice", "level", n.Level, "message", n.Message, "product_id", n.ProductID)
		})),
	)

	bgCtx, stopBackground := context.WithCancel(ctx)
	defer stopBackground()
	go carts.RunEviction(bgCtx)
	if len(cfg.KafkaBrokers) > 0 {
		p := poller.NewPoller(carts, log.With("component", "poller"), cfg.KafkaBrokers...)
		defer p.Close()
		go p.Run(bgCtx)
		log.Info("checkout consumer started", "brokers", cfg.KafkaBrokers, "topic", poller.Topic)
	}

	handler := carthttp.NewCartHandler(carts, cfg.RequestTimeout, log)
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      carthttp.NewRouter(handler, log.With("component", "http")),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("cart service listening", "port", cfg.HTTPPort, "storage", cfg.StorageBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down cart service")
	stopBackground()
	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}
	log.Info("cart service stopped")
}

// openStore builds the configured backend. Remote backends sit behind a circuit breaker.
func openStore(ctx context.Context, cfg config.Config, log *logger.Logger) (storage.Store, func(), error) {
	breaker := func(name string, s storage.Store) storage.Store {
		return storage.NewBreakerStore(s, storage.BreakerSettings{
			Name:                name,
			ConsecutiveFailures: cfg.BreakerFailures,
			OpenTimeout:         cfg.BreakerOpenTimeout,
		})
	}

	switch cfg.StorageBackend {
	case config.BackendMemory:
		return storage.NewMemoryStore(), func() {}, nil

	case config.BackendRedis:
		client, err := connectRedis(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		log.Info("redis ping succeeded", "addr", cfg.RedisAddr)
		return breaker("redis", storage.NewRedisStore(client, cfg.RedisTTL)), func() { client.Close() }, nil

	case config.BackendMongo:
		mongo, closeMongo, err := connectMongo(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		log.Info("connected to MongoDB", "uri", cfg.MongoURI)
		return breaker("mongo", mongo), closeMongo, nil

	case config.BackendTiered:
		client, err := connectRedis(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		mongo, closeMongo, err := connectMongo(ctx, cfg)
		if err != nil {
			client.Close()
			return nil, nil, err
		}
		tiered := storage.NewTieredStore(
			breaker("redis", storage.NewRedisStore(client, cfg.RedisTTL)),
			breaker("mongo", mongo),
			log.With("component", "storage"),
		)
		return tiered, func() { closeMongo(); client.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
}

func connectRedis(ctx context.Context, cfg config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return client, nil
}

func connectMongo(ctx context.Context, cfg config.Config) (*storage.MongoStore, func(), error) {
	db, err := storage.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		return nil, nil, err
	}
	store := storage.NewMongoStore(db)
	if err := store.CreateIndexes(ctx); err != nil {
		db.Client().Disconnect(ctx)
		return nil, nil, err
	}
	return store, func() { db.Client().Disconnect(context.Background()) }, nil
}
