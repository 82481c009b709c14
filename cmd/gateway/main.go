package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"

	"github.com/okrforge/gateway/internal/auth"
	"github.com/okrforge/gateway/internal/config"
	"github.com/okrforge/gateway/internal/dispatch"
	"github.com/okrforge/gateway/internal/gateway"
	"github.com/okrforge/gateway/internal/httputil"
	"github.com/okrforge/gateway/internal/policy"
	"github.com/okrforge/gateway/internal/ratelimit"
	"github.com/okrforge/gateway/internal/store"
	"github.com/okrforge/gateway/internal/telemetry"
	"github.com/okrforge/gateway/internal/validate"
)

var version = "dev"

func main() {
	configDir := flag.String("config", "configs", "path to configuration directory")
	flag.Parse()

	logLevel := &slog.LevelVar{}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Load configuration
	loader := config.NewLoader(*configDir, logger)
	if err := loader.Load(); err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logLevel.Set(parseLogLevel(loader.Config().Telemetry.LogLevel))

	if err := loader.Watch(); err != nil {
		logger.Warn("failed to start config watcher", "error", err)
	}
	loader.OnReload(func() {
		logLevel.Set(parseLogLevel(loader.Config().Telemetry.LogLevel))
		logger.Info("runtime configuration reloaded")
	})

	cfg := loader.Config()
	metrics := telemetry.NewMetrics()

	// Result persistence is optional; the gateway runs without a database.
	var results *store.Results
	if cfg.Database.DSN != "" {
		dbPool, err := pgxpool.New(context.Background(), cfg.Database.DSN)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer dbPool.Close()

		if err := dbPool.Ping(context.Background()); err != nil {
			logger.Warn("database not reachable (result persistence disabled)", "error", err)
		} else {
			logger.Info("database connected")
			results = store.NewResults(dbPool)
		}
	}

	// Shared rate limit state in Redis when configured, per-process otherwise.
	var limitStore ratelimit.Store = ratelimit.NewMemoryStore()
	if cfg.Redis.Address != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis not reachable (falling back to in-memory rate limits)", "error", err)
		} else {
			logger.Info("redis connected")
			limitStore = ratelimit.NewRedisStore(rdb)
		}
	}

	limiter := ratelimit.NewLimiter(limitStore, func() config.RateLimitConfig {
		return loader.Config().RateLimit
	})

	var evaluator *policy.Evaluator
	if cfg.Policy.Enabled {
		evaluator = policy.NewEvaluator(func() config.PolicyConfig {
			return loader.Config().Policy
		})
		if err := evaluator.Load(); err != nil {
			logger.Error("failed to load policies", "error", err)
			os.Exit(1)
		}
		logger.Info("policy evaluation enabled", "bundle", cfg.Policy.BundlePath)
	}

	dispatcher, err := dispatch.NewDispatcher(func() config.UpstreamConfig {
		return loader.Config().Upstream
	}, metrics)
	if err != nil {
		logger.Error("generation contracts failed self-check", "error", err)
		os.Exit(1)
	}

	handler := gateway.NewHandler(func() validate.Limits {
		v := loader.Config().Validate
		return validate.Limits{
			MaxPayloadBytes: v.MaxPayloadBytes,
			MaxPromptChars:  v.MaxPromptChars,
			MinPromptChars:  v.MinPromptChars,
		}
	}, dispatcher, evaluator, metrics, results)

	// Router setup
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)

	// Unauthenticated routes
	r.Get("/okrforge/v1/health", healthHandler)

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware())
		r.Use(ratelimit.Middleware(limiter, metrics))
		r.Post("/v1/generate", handler.Generate)
	})

	// Security headers sit outside CORS so the preflight response carries
	// them too.
	corsHandler := securityHeaders(cors.New(cors.Options{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		AllowedMethods: []string{http.MethodPost, http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}).Handler(r))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      corsHandler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Metrics listener, separate from the public port.
	if cfg.Telemetry.MetricsPort > 0 {
		go func() {
			metricsAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Telemetry.MetricsPort)
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			logger.Info("metrics listener starting", "addr", metricsAddr)
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				logger.Error("metrics listener failed", "error", err)
			}
		}()
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway starting", "addr", addr, "version", version)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	logger.Info("gateway stopped")
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"version": version,
	})
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.SetSecurityHeaders(w.Header())
		next.ServeHTTP(w, r)
	})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = generateRequestID()
		}
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r)
	})
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func generateRequestID() string {
	now := time.Now()
	b := make([]byte, 8)
	rand.Read(b)
	return fmt.Sprintf("req_%d_%s", now.UnixMilli(), hex.EncodeToString(b))
}
