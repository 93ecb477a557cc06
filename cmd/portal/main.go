package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/pm-portal-bfa/internal/config"
	"github.com/boddenberg/pm-portal-bfa/internal/domain"
	"github.com/boddenberg/pm-portal-bfa/internal/handler"
	"github.com/boddenberg/pm-portal-bfa/internal/infra/cache"
	"github.com/boddenberg/pm-portal-bfa/internal/infra/client"
	"github.com/boddenberg/pm-portal-bfa/internal/infra/observability"
	"github.com/boddenberg/pm-portal-bfa/internal/infra/ratelimit"
	"github.com/boddenberg/pm-portal-bfa/internal/infra/resilience"
	"github.com/boddenberg/pm-portal-bfa/internal/infra/sqlite"
	"github.com/boddenberg/pm-portal-bfa/internal/infra/supabase"
	"github.com/boddenberg/pm-portal-bfa/internal/ingest"
	"github.com/boddenberg/pm-portal-bfa/internal/port"
	"github.com/boddenberg/pm-portal-bfa/internal/service"
	"github.com/boddenberg/pm-portal-bfa/internal/statement"

	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.Bool("use_supabase", cfg.UseSupabase),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Duration("draft_ttl", cfg.DraftTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.String("default_commission_rate", cfg.DefaultCommissionRate.String()),
		zap.Strings("payment_sources", cfg.PaymentSources),
		zap.Bool("auth_enabled", cfg.JWTSecret != ""),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "pm-portal-bfa")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}

	// --- Clients ---
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	normalizer := ingest.NewNormalizer(cfg.SheetDateLayouts...)

	reservations := client.NewReservationsClient(
		httpClient,
		cfg.ReservationsAPIURL,
		cfg.ReservationsAPIKey,
		normalizer,
		resilience.NewCircuitBreaker("reservations", logger),
		resilienceCfg,
		logger,
	)

	// --- Stores ---
	var rooms port.RoomStore
	var statements port.StatementStore
	var probes []handler.Probe

	if cfg.UseSupabase && cfg.SupabaseURL != "" {
		logger.Info("using Supabase as data backend",
			zap.String("supabase_url", cfg.SupabaseURL),
		)
		supabaseClient := supabase.NewClient(
			httpClient,
			cfg.SupabaseURL,
			cfg.SupabaseAnonKey,
			cfg.SupabaseServiceKey,
			resilience.NewCircuitBreaker("supabase", logger),
			resilienceCfg,
			logger,
		)
		rooms = supabaseClient
		statements = supabaseClient
		probes = append(probes, handler.Probe{Name: "supabase", Check: supabaseClient.Ping})
	} else {
		logger.Info("using SQLite as data backend", zap.String("path", cfg.SQLitePath))
		db, store := openSQLite(cfg, logger)
		defer db.Close()
		rooms = store
		statements = store
		probes = append(probes, handler.Probe{Name: "sqlite", Check: store.Ping})
	}

	// --- Services ---
	availSvc := service.NewAvailabilityService(
		rooms,
		reservations,
		cache.New[[]domain.Reservation](cfg.CacheTTL),
		cfg.MaxConcurrency,
		metrics,
		logger,
	)
	stmtSvc := service.NewStatementService(
		statements,
		cache.New[*domain.Statement](cfg.DraftTTL),
		normalizer,
		statement.NewRouter(cfg.PaymentSources, cfg.DefaultPaymentSource),
		cfg.DefaultCommissionRate,
		metrics,
		logger,
	)

	// --- Router ---
	router := handler.NewRouter(availSvc, stmtSvc, metrics, handler.Options{
		JWTSecret:      cfg.JWTSecret,
		ImportLimiter:  ratelimit.New(cfg.ImportRatePerMinute),
		MaxUploadBytes: cfg.MaxUploadBytes,
		Probes:         probes,
	}, logger)

	if cfg.JWTSecret == "" {
		logger.Warn("JWT_SECRET not set, /v1 routes are unauthenticated")
	}

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
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
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

// openSQLite opens and migrates the local store, seeding rooms when a rooms
// file is configured.
func openSQLite(cfg *config.Config, logger *zap.Logger) (*sql.DB, *sqlite.Store) {
	db, err := sqlite.Open(cfg.SQLitePath)
	if err != nil {
		logger.Fatal("failed to open sqlite", zap.Error(err))
	}
	if err := sqlite.Migrate(db, logger); err != nil {
		logger.Fatal("failed to migrate sqlite", zap.Error(err))
	}
	store := sqlite.NewStore(db, logger)

	if cfg.RoomsFile != "" {
		f, err := os.Open(cfg.RoomsFile)
		if err != nil {
			logger.Fatal("failed to open rooms file", zap.String("path", cfg.RoomsFile), zap.Error(err))
		}
		defer f.Close()
		if _, err := store.SeedRooms(context.Background(), f); err != nil {
			logger.Fatal("failed to seed rooms", zap.Error(err))
		}
	}
	return db, store
}
