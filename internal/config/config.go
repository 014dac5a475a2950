// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rl1809/beauty-shop/internal/core/service"
)

type Config struct {
	Env      string
	LogLevel string

	HTTPAddr string
	GRPCAddr string

	Store    StoreConfig
	Cache    CacheConfig
	Checkout CheckoutConfig

	CORSOrigins           []string
	DiscountSweepInterval time.Duration
}

type StoreConfig struct {
	// Driver is "mysql" or "memory".
	Driver   string
	MySQLDSN string
	// TxMaxAttempts bounds retries of a conflicting transaction.
	TxMaxAttempts int
}

type CacheConfig struct {
	// Backend is "redis", "sqlite" or "memory".
	Backend       string
	Namespace     string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SQLitePath    string

	OrdersTTL   time.Duration
	ProductsTTL time.Duration
	CatalogTTL  time.Duration
}

type CheckoutConfig struct {
	// Rate is the sustained checkouts per second across all clients.
	Rate  float64
	Burst int
}

func Load() *Config {
	return &Config{
		Env:      getEnvOrDefault("GO_ENV", "development"),
		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),
		HTTPAddr: getEnvOrDefault("HTTP_ADDR", ":8080"),
		GRPCAddr: getEnvOrDefault("GRPC_ADDR", ":50051"),
		Store: StoreConfig{
			Driver:        getEnvOrDefault("STORE_DRIVER", "mysql"),
			MySQLDSN:      getEnvOrDefault("MYSQL_DSN", "root:root@tcp(localhost:3306)/beautyshop?parseTime=true"),
			TxMaxAttempts: getEnvAsIntOrDefault("TX_MAX_ATTEMPTS", 5),
		},
		Cache: CacheConfig{
			Backend:       getEnvOrDefault("CACHE_BACKEND", "redis"),
			Namespace:     getEnvOrDefault("CACHE_NAMESPACE", "cache:"),
			RedisAddr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getEnvOrDefault("REDIS_PASSWORD", ""),
			RedisDB:       getEnvAsIntOrDefault("REDIS_DB", 0),
			SQLitePath:    getEnvOrDefault("SQLITE_PATH", "cache.db"),
			OrdersTTL:     getEnvAsDurationOrDefault("ORDERS_TTL", 30*time.Second),
			ProductsTTL:   getEnvAsDurationOrDefault("PRODUCTS_TTL", 5*time.Minute),
			CatalogTTL:    getEnvAsDurationOrDefault("CATALOG_TTL", 10*time.Minute),
		},
		Checkout: CheckoutConfig{
			Rate:  getEnvAsFloatOrDefault("CHECKOUT_RATE", 20),
			Burst: getEnvAsIntOrDefault("CHECKOUT_BURST", 40),
		},
		CORSOrigins:           splitList(getEnvOrDefault("CORS_ORIGINS", "*")),
		DiscountSweepInterval: getEnvAsDurationOrDefault("DISCOUNT_SWEEP_INTERVAL", time.Minute),
	}
}

func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return errors.New("http address cannot be empty")
	}

	switch c.Store.Driver {
	case "mysql":
		if c.Store.MySQLDSN == "" {
			return errors.New("mysql dsn cannot be empty when using the mysql store")
		}
	case "memory":
	default:
		return errors.New("store driver must be 'mysql' or 'memory'")
	}
	if c.Store.TxMaxAttempts < 1 {
		return errors.New("transaction attempts must be at least 1")
	}

	switch c.Cache.Backend {
	case "redis":
		if c.Cache.RedisAddr == "" {
			return errors.New("redis address cannot be empty when using redis cache")
		}
	case "sqlite":
		if c.Cache.SQLitePath == "" {
			return errors.New("sqlite path cannot be empty when using sqlite cache")
		}
	case "memory":
	default:
		return errors.New("cache backend must be 'redis', 'sqlite' or 'memory'")
	}
	if ns := c.Cache.Namespace; ns == "" ||
		strings.HasPrefix(service.CartKeyPrefix, ns) || strings.HasPrefix(ns, service.CartKeyPrefix) {
		return errors.New("cache namespace must be set and must not overlap cart storage")
	}
	if c.Cache.OrdersTTL <= 0 || c.Cache.ProductsTTL <= 0 || c.Cache.CatalogTTL <= 0 {
		return errors.New("cache ttls must be positive")
	}

	if c.Checkout.Rate <= 0 || c.Checkout.Burst < 1 {
		return errors.New("checkout rate and burst must be positive")
	}
	if c.DiscountSweepInterval < time.Second {
		return errors.New("discount sweep interval must be at least 1 second")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
