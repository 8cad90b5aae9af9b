package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/coatings-pipeline-go/internal/config"
	"github.com/boddenberg/coatings-pipeline-go/internal/domain"
	"github.com/boddenberg/coatings-pipeline-go/internal/handler"
	"github.com/boddenberg/coatings-pipeline-go/internal/infra/cache"
	"github.com/boddenberg/coatings-pipeline-go/internal/infra/memory"
	"github.com/boddenberg/coatings-pipeline-go/internal/infra/observability"
	"github.com/boddenberg/coatings-pipeline-go/internal/infra/postgres"
	"github.com/boddenberg/coatings-pipeline-go/internal/infra/resilience"
	"github.com/boddenberg/coatings-pipeline-go/internal/infra/sqlite"
	"github.com/boddenberg/coatings-pipeline-go/internal/infra/supabase"
	"github.com/boddenberg/coatings-pipeline-go/internal/port"
	"github.com/boddenberg/coatings-pipeline-go/internal/service"

	"go.uber.org/zap"
)

// store is what every backend provides: leads, customers and a health probe.
type store interface {
	port.LeadStore
	port.CustomerStore
}

func main() {
	issueToken := flag.String("issue-token", "", "print a signed access token for the given sales rep id and exit")
	tokenTTL := flag.Duration("token-ttl", 12*time.Hour, "lifetime of the token printed by -issue-token")
	flag.Parse()

	// --- Load .env file (for local development) ---
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
		os.Exit(1)
	}

	// --- Config ---
	cfg := config.Load()

	if *issueToken != "" {
		token, err := service.NewTokenVerifier(cfg.JWTSecret).SignAccessToken(*issueToken, *issueToken, *tokenTTL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to sign token: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("store_backend", cfg.StoreBackend),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.Bool("auth_required", cfg.AuthRequired),
		zap.Int("stale_lead_days", cfg.StaleLeadDays),
	)

	// --- Tracing ---
	if cfg.TracingEnabled {
		shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "coatings-pipeline")
		if err != nil {
			logger.Fatal("failed to init tracer", zap.Error(err))
		}
		defer shutdown(context.Background())
	}

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Cache ---
	customerCache := cache.New[*domain.Customer](cfg.CacheTTL)
	defer customerCache.Close()

	// --- Store ---
	st, err := openStore(cfg, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.String("backend", cfg.StoreBackend), zap.Error(err))
	}
	if c, ok := st.(io.Closer); ok {
		defer func() {
			if err := c.Close(); err != nil {
				logger.Warn("store close failed", zap.Error(err))
			}
		}()
	}

	// --- Services ---
	pipelineSvc := service.NewPipeline(st, st, customerCache, metrics, logger, service.Options{
		StaleLeadDays:   cfg.StaleLeadDays,
		DefaultCurrency: cfg.DefaultCurrency,
		Backend:         cfg.StoreBackend,
	})
	verifier := service.NewTokenVerifier(cfg.JWTSecret)

	// --- Router ---
	router := handler.NewRouter(pipelineSvc, verifier, metrics, logger, handler.RouterOptions{
		AuthRequired:       cfg.AuthRequired,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced shutdown", zap.Error(err))
		return
	}

	logger.Info("server stopped")
}

func openStore(cfg *config.Config, logger *zap.Logger) (store, error) {
	switch cfg.StoreBackend {
	case config.BackendSQLite:
		logger.Info("using SQLite store", zap.String("path", cfg.SQLitePath))
		return sqlite.Open(cfg.SQLitePath)
	case config.BackendPostgres:
		logger.Info("using Postgres store")
		return postgres.Open(cfg.DatabaseURL)
	case config.BackendSupabase:
		logger.Info("using Supabase store", zap.String("supabase_url", cfg.SupabaseURL))
		guard := resilience.NewGuard("supabase", resilience.Config{
			MaxRetries:     cfg.MaxRetries,
			InitialBackoff: cfg.InitialBackoff,
			MaxConcurrency: cfg.MaxConcurrency,
		})
		httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
		return supabase.NewClient(httpClient, cfg.SupabaseURL, cfg.SupabaseAnonKey, cfg.SupabaseServiceKey, guard, logger), nil
	default:
		logger.Info("using in-memory store")
		return memory.New(), nil
	}
}
