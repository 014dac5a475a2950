package main

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/rl1809/beauty-shop/internal/adapter/handler"
	"github.com/rl1809/beauty-shop/internal/adapter/storage"
	"github.com/rl1809/beauty-shop/internal/config"
	"github.com/rl1809/beauty-shop/internal/core/cache"
	"github.com/rl1809/beauty-shop/internal/core/service"
	"github.com/rl1809/beauty-shop/internal/port"
)

const healthInterval = 10 * time.Second

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logrus.WithError(err).Warn("could not read .env")
	}

	cfg := config.Load()
	log := config.NewLogger(cfg)
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var closers []io.Closer

	store, db, err := openStore(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to open document store")
	}
	if db != nil {
		closers = append(closers, db)
	}

	kv, kvCloser, err := openKeyValue(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to open cache backend")
	}
	if kvCloser != nil {
		closers = append(closers, kvCloser)
	}

	// Initialize services
	opts := []service.Option{
		service.WithLogger(log),
		service.WithTTLPolicy(service.TTLPolicy{
			Orders:     cfg.Cache.OrdersTTL,
			Products:   cfg.Cache.ProductsTTL,
			Categories: cfg.Cache.CatalogTTL,
			Brands:     cfg.Cache.CatalogTTL,
		}),
		service.WithRetryPolicy(service.RetryPolicy{
			MaxAttempts: cfg.Store.TxMaxAttempts,
			BaseDelay:   service.DefaultRetryPolicy().BaseDelay,
			MaxDelay:    service.DefaultRetryPolicy().MaxDelay,
		}),
	}
	c := cache.New(kv, cache.WithNamespace(cfg.Cache.Namespace), cache.WithLogger(log))
	carts := service.NewCartService(kv, opts...)
	catalog := service.NewCatalogService(store, c, opts...)
	orders := service.NewOrderService(store, c, carts, opts...)

	// Background workers
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		catalog.RunDiscountSweeper(ctx, cfg.DiscountSweepInterval)
	}()

	// Initialize gRPC server
	grpcServer, healthServer := handler.NewGRPCServer()
	wg.Add(1)
	go func() {
		defer wg.Done()
		handler.WatchHealth(ctx, healthServer, store.Ping, healthInterval, log)
	}()

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.WithError(err).Fatal("failed to listen")
	}
	go func() {
		log.WithField("addr", cfg.GRPCAddr).Info("gRPC server listening")
		if err := grpcServer.Serve(lis); err != nil {
			log.WithError(err).Error("gRPC server error")
		}
	}()

	// Initialize HTTP server
	httpHandler := handler.NewHTTPHandler(handler.Services{
		Orders:  orders,
		Catalog: catalog,
		Carts:   carts,
		Cache:   c,
		Health:  store.Ping,
	}, rate.NewLimiter(rate.Limit(cfg.Checkout.Rate), cfg.Checkout.Burst), log)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           corsHandler.Handler(httpHandler.Routes()),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			log.WithError(err).Error("HTTP server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	log.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	log.Info("gRPC server stopped")

	cancel()
	wg.Wait()
	log.Info("workers stopped")

	for _, closer := range closers {
		closer.Close()
	}
	log.Info("connections closed")
}

func openStore(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (port.DocumentStore, *sql.DB, error) {
	if cfg.Store.Driver == "memory" {
		log.Warn("using in-memory document store; data is lost on exit")
		return storage.NewMemoryStore(), nil, nil
	}

	db, err := sql.Open("mysql", cfg.Store.MySQLDSN)
	if err != nil {
		return nil, nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	log.Info("connected to mysql")

	store := storage.NewMySQLStore(db)
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return store, db, nil
}

func openKeyValue(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (port.KeyValueStore, io.Closer, error) {
	switch cfg.Cache.Backend {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
			PoolSize: 100,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, nil, err
		}
		log.Info("connected to redis")
		return storage.NewRedisKV(rdb), rdb, nil
	case "sqlite":
		kv, err := storage.NewSQLiteKV(cfg.Cache.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		log.WithField("path", cfg.Cache.SQLitePath).Info("opened sqlite cache")
		return kv, kv, nil
	default:
		return storage.NewMemoryKV(), nil, nil
	}
}
