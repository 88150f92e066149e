package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/kalviis/factory-bridge/internal/auth"
	"github.com/kalviis/factory-bridge/internal/backend"
	"github.com/kalviis/factory-bridge/internal/config"
	"github.com/kalviis/factory-bridge/internal/gateway"
	"github.com/kalviis/factory-bridge/internal/journal"
	"github.com/kalviis/factory-bridge/internal/ratelimit"
	"github.com/kalviis/factory-bridge/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configDir := flag.String("config", ".", "path to configuration directory")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}

	bootstrap := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(bootstrap)

	loader := config.NewLoader(*configDir, bootstrap)
	if err := loader.Load(); err != nil {
		bootstrap.Error("failed to load configuration", "error", err)
		return 1
	}
	cfg := loader.Config()

	logger, logCloser, err := telemetry.NewLogger(cfg.Telemetry, os.Stdout)
	if err != nil {
		bootstrap.Error("failed to set up logging", "error", err)
		return 1
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	if err := loader.Watch(); err != nil {
		logger.Warn("failed to start config watcher", "error", err)
	}

	shutdownTracing, err := telemetry.InitTracing(context.Background(), cfg.Telemetry, version)
	if err != nil {
		logger.Error("failed to set up tracing", "error", err)
		return 1
	}
	defer shutdownTracing()

	// Auth material
	authDir := config.ExpandHome(cfg.Backend.AuthDir)
	if n, err := auth.Check(authDir); err != nil {
		if cfg.Backend.RequireAuth {
			logger.Error("no OAuth login found for the backend gateway, log in with `cli-proxy-api --claude-login` first",
				"auth_dir", authDir, "error", err)
			return 1
		}
		logger.Warn("no OAuth login found for the backend gateway", "auth_dir", authDir, "error", err)
	} else {
		logger.Info("auth files found", "auth_dir", authDir, "count", n)
	}

	prompts := config.NewPromptResolver(func() string {
		return loader.ResolvePath(loader.Config().Prompt.OverridePath)
	})
	if prompts.Exists() {
		logger.Info("custom system prompt enabled", "path", loader.ResolvePath(cfg.Prompt.OverridePath))
	} else {
		logger.Info("custom system prompt disabled, no override file", "path", loader.ResolvePath(cfg.Prompt.OverridePath))
	}

	client := backend.NewClient(cfg.Backend)
	logger.Info("backend configured",
		"base_url", client.BaseURL(),
		"timeout", cfg.Backend.Timeout,
		"stream_timeout", cfg.Backend.StreamTimeout,
		"models", cfg.Models,
	)

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)
	metrics.SetBackendUp(true)
	client.Health().OnChange(func(s backend.State) {
		metrics.SetBackendUp(s == backend.StateUp)
	})

	// Connect to Redis
	var rdb redis.UniversalClient
	if cfg.RateLimit.RequestsPerMinute > 0 && len(cfg.Redis.Addresses) > 0 && cfg.Redis.Addresses[0] != "" {
		c := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    cfg.Redis.Addresses,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := c.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis not reachable (rate limiting disabled)", "error", err)
			c.Close()
		} else {
			logger.Info("redis connected", "requests_per_minute", cfg.RateLimit.RequestsPerMinute)
			rdb = c
			defer c.Close()
		}
	}
	limiter := ratelimit.NewLimiter(nil)
	if rdb != nil {
		limiter = ratelimit.NewLimiter(rdb)
	}

	// Request journal
	var rec journal.Recorder = journal.Nop{}
	if cfg.Database.Enabled() {
		pg, err := journal.Connect(context.Background(), cfg.Database.DSN(), cfg.Database.MaxConns)
		if err != nil {
			logger.Error("failed to set up request journal", "error", err)
			return 1
		}
		defer pg.Close()
		if err := pg.Ping(context.Background()); err != nil {
			logger.Warn("database not reachable (journal writes will fail)", "error", err)
		} else {
			logger.Info("request journal connected", "host", cfg.Database.Host, "database", cfg.Database.Name)
		}
		rec = pg
	}

	handler := gateway.NewHandler(client, prompts, loader.Config, metrics, rec)
	router := gateway.NewRouter(handler,
		ratelimit.Middleware(limiter, cfg.RateLimit.RequestsPerMinute, metrics),
	)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	var metricsSrv *http.Server
	if cfg.Telemetry.MetricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Telemetry.MetricsPort),
			Handler: mux,
		}
		go func() {
			logger.Info("metrics listening", "addr", metricsSrv.Addr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server error", "error", err)
			}
		}()
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		logger.Info("bridge starting", "addr", addr, "backend", client.BaseURL(), "version", version)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			return 1
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(ctx); err != nil {
			logger.Warn("metrics server shutdown failed", "error", err)
		}
	}
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		return 1
	}
	logger.Info("bridge stopped")
	return 0
}
