// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package main provides a production-ready mpdemux receiver deployment
// with metrics, health checks, circuit breakers, rate limiting and a bounded
// parser pool.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/absmach/mpdemux"
	"github.com/absmach/mpdemux/pkg/breaker"
	"github.com/absmach/mpdemux/pkg/handler"
	"github.com/absmach/mpdemux/pkg/health"
	"github.com/absmach/mpdemux/pkg/metrics"
	"github.com/absmach/mpdemux/pkg/parser/multipart"
	"github.com/absmach/mpdemux/pkg/pool"
	"github.com/absmach/mpdemux/pkg/ratelimit"
	httpserver "github.com/absmach/mpdemux/pkg/server/http"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

const envPrefix = "MPDEMUX_"

// Config holds the operational configuration.
type Config struct {
	// Observability
	MetricsPort int    `env:"METRICS_PORT" envDefault:"9090"`
	HealthPort  int    `env:"HEALTH_PORT"  envDefault:"8081"`
	LogLevel    string `env:"LOG_LEVEL"    envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT"   envDefault:"json"`

	// Resource Limits
	MaxGoroutines int `env:"MAX_GOROUTINES" envDefault:"50000"`

	// Circuit Breaker
	BreakerMaxFailures  int           `env:"BREAKER_MAX_FAILURES"  envDefault:"5"`
	BreakerResetTimeout time.Duration `env:"BREAKER_RESET_TIMEOUT" envDefault:"60s"`

	// Rate Limiting
	RateLimitCapacity  int64 `env:"RATE_LIMIT_CAPACITY"  envDefault:"100"`
	RateLimitRefill    int64 `env:"RATE_LIMIT_REFILL"    envDefault:"10"`
	GlobalRateCapacity int64 `env:"GLOBAL_RATE_CAPACITY" envDefault:"10000"`
	GlobalRateRefill   int64 `env:"GLOBAL_RATE_REFILL"   envDefault:"1000"`
}

func main() {
	// .env file is optional
	_ = godotenv.Load()

	cfg := Config{}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: envPrefix}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse config: %v\n", err)
		os.Exit(1)
	}
	recvCfg, err := mpdemux.NewConfig(env.Options{Prefix: envPrefix + "RECEIVER_"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse receiver config: %v\n", err)
		os.Exit(1)
	}
	if recvCfg.Port == "" {
		recvCfg.Port = "8080"
	}

	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("Starting mpdemux receiver in production mode",
		slog.String("address", recvCfg.Address()),
		slog.Int("max_parsers", recvCfg.MaxParsers),
		slog.Int("buffer_size", recvCfg.BufferSize))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New("mpdemux", reg)

	parsers, err := pool.New(pool.Config{
		MaxIdle:     recvCfg.IdleParsers,
		MaxActive:   recvCfg.MaxParsers,
		WaitTimeout: recvCfg.ParserWait,
		Parser: multipart.Config{
			BufferSize:     recvCfg.BufferSize,
			MaxHeaderBytes: recvCfg.MaxHeaderBytes,
			Logger:         logger,
		},
	})
	if err != nil {
		logger.Error("Failed to create parser pool", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer parsers.Close()

	tlsCfg, err := recvCfg.TLS()
	if err != nil {
		logger.Error("Failed to load TLS configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	healthChecker := health.NewChecker(10 * time.Second)

	healthChecker.Register("goroutines", func(ctx context.Context) error {
		count := runtime.NumGoroutine()
		if count > cfg.MaxGoroutines {
			return fmt.Errorf("too many goroutines: %d > %d", count, cfg.MaxGoroutines)
		}
		m.GoroutinesActive.WithLabelValues("all").Set(float64(count))
		return nil
	})

	healthChecker.Register("memory", func(ctx context.Context) error {
		var stats runtime.MemStats
		runtime.ReadMemStats(&stats)
		m.MemoryAllocated.WithLabelValues("heap").Set(float64(stats.HeapAlloc))
		m.MemoryAllocated.WithLabelValues("sys").Set(float64(stats.Sys))
		return nil
	})

	healthChecker.Register("parser_pool", func(ctx context.Context) error {
		idle, active := parsers.Stats()
		m.Parsers.WithLabelValues("idle").Set(float64(idle))
		m.Parsers.WithLabelValues("active").Set(float64(active))
		if recvCfg.MaxParsers > 0 && active >= recvCfg.MaxParsers {
			return fmt.Errorf("parser pool exhausted: %d active", active)
		}
		return nil
	})

	healthChecker.RegisterCritical("output_dir", func(ctx context.Context) error {
		return writable(recvCfg.OutputDir)
	})

	perClientLimiter := ratelimit.NewLimiter(cfg.RateLimitCapacity, cfg.RateLimitRefill, 10000)
	defer perClientLimiter.Close()
	globalLimiter := ratelimit.NewTokenBucket(cfg.GlobalRateCapacity, cfg.GlobalRateRefill)

	cb := breaker.New(breaker.Config{
		MaxFailures:      cfg.BreakerMaxFailures,
		ResetTimeout:     cfg.BreakerResetTimeout,
		SuccessThreshold: 2,
	})

	cb.OnStateChange(func(from, to breaker.State) {
		logger.Warn("Circuit breaker state changed",
			slog.String("from", from.String()),
			slog.String("to", to.String()))
		m.CircuitBreakerState.WithLabelValues("sink").Set(float64(to))
		if to == breaker.StateOpen {
			m.CircuitBreakerTrips.WithLabelValues("sink").Inc()
		}
	})

	dir := handler.NewDir(recvCfg.OutputDir)
	dir.PerSession = recvCfg.PerSession

	rateLimitedHandler := &RateLimitedHandler{
		handler:       &BreakerHandler{handler: dir, breaker: cb},
		globalLimiter: globalLimiter,
		metrics:       m,
		logger:        logger,
	}

	instrumentedHandler := &InstrumentedHandler{
		name:    "dir",
		handler: rateLimitedHandler,
		metrics: m,
		logger:  logger,
	}

	receiver := httpserver.New(httpserver.Config{
		Address:         recvCfg.Address(),
		TLSConfig:       tlsCfg,
		MaxBodyBytes:    recvCfg.MaxBodyBytes,
		ShutdownTimeout: recvCfg.ShutdownTimeout,
		Limiter:         perClientLimiter,
		Metrics:         m,
		Logger:          logger,
	}, parsers, instrumentedHandler)

	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return serve(ctx, fmt.Sprintf(":%d", cfg.MetricsPort), metricsMux(reg), logger)
	})
	g.Go(func() error {
		return serve(ctx, fmt.Sprintf(":%d", cfg.HealthPort), healthMux(healthChecker), logger)
	})
	g.Go(func() error {
		return receiver.Listen(ctx)
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), recvCfg.ShutdownTimeout+5*time.Second)
	defer shutdownCancel()

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.Error("Shutdown error", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("Graceful shutdown completed")
	case <-shutdownCtx.Done():
		logger.Warn("Shutdown timeout exceeded, forcing exit")
		os.Exit(1)
	}
}

// setupLogger creates a structured logger with the specified level and format.
func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	var logHandler slog.Handler
	if format == "json" {
		logHandler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		logHandler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(logHandler)
}

func metricsMux(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return mux
}

func healthMux(checker *health.Checker) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", checker.HTTPHandler())
	mux.HandleFunc("/ready", checker.ReadinessHandler())
	mux.HandleFunc("/live", health.LivenessHandler())
	return mux
}

// serve runs an auxiliary HTTP server until ctx is cancelled.
func serve(ctx context.Context, addr string, h http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      h,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server", slog.String("address", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// writable reports whether files can be created in dir.
func writable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".health-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(filepath.Clean(name))
}
