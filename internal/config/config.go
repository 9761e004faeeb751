package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"

	"github.com/fjod/go_cart/cart-engine/internal/domain"
	"github.com/fjod/go_cart/cart-engine/internal/service"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendMongo  = "mongo"
	BackendTiered = "tiered"
)

type Config struct {
	HTTPPort string `env:"HTTP_PORT" envDefault:"8080"`
	LogMode  string `env:"LOG_MODE" envDefault:"development"`

	StorageBackend string        `env:"STORAGE_BACKEND" envDefault:"memory"`
	RedisAddr      string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword  string        `env:"REDIS_PASSWORD"`
	RedisTTL       time.Duration `env:"REDIS_TTL" envDefault:"0s"`
	MongoURI       string        `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	MongoDBName    string        `env:"MONGO_DB_NAME" envDefault:"cartdb"`

	BreakerFailures    uint32        `env:"BREAKER_FAILURES" envDefault:"5"`
	BreakerOpenTimeout time.Duration `env:"BREAKER_OPEN_TIMEOUT" envDefault:"30s"`

	// empty disables the checkout consumer
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`

	FreeDeliveryThreshold decimal.Decimal `env:"FREE_DELIVERY_THRESHOLD" envDefault:"500"`
	DeliveryFee           decimal.Decimal `env:"DELIVERY_FEE" envDefault:"50"`

	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// resident carts; a negative idle TTL keeps carts until the LRU bound pushes them out
	CartLoadTimeout time.Duration `env:"CART_LOAD_TIMEOUT" envDefault:"5s"`
	CartIdleTTL     time.Duration `env:"CART_IDLE_TTL" envDefault:"15m"`
	MaxCarts        int           `env:"MAX_RESIDENT_CARTS" envDefault:"100000"`
}

// Load reads the configuration from environment variables.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.StorageBackend {
	case BackendMemory, BackendRedis, BackendMongo, BackendTiered:
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend)
	}
	if c.FreeDeliveryThreshold.IsNegative() {
		return fmt.Errorf("FREE_DELIVERY_THRESHOLD must not be negative")
	}
	if c.DeliveryFee.IsNegative() {
		return fmt.Errorf("DELIVERY_FEE must not be negative")
	}
	if c.MaxCarts <= 0 {
		return fmt.Errorf("MAX_RESIDENT_CARTS must be positive")
	}
	return nil
}

func (c Config) Registry() service.RegistryConfig {
	return service.RegistryConfig{
		LoadTimeout: c.CartLoadTimeout,
		IdleTTL:     c.CartIdleTTL,
		MaxCarts:    c.MaxCarts,
	}
}

func (c Config) DeliveryPolicy() domain.DeliveryPolicy {
	return domain.DeliveryPolicy{
		Threshold: c.FreeDeliveryThreshold,
		Fee:       c.DeliveryFee,
	}
}
