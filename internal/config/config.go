package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port     int
	LogLevel string

	// Reservation source
	ReservationsAPIURL string
	ReservationsAPIKey string

	// HTTP client
	HTTPTimeout time.Duration

	// Resilience
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int

	// Cache
	CacheTTL time.Duration
	DraftTTL time.Duration

	// Observability
	OTLPEndpoint string

	// Supabase
	SupabaseURL        string
	SupabaseAnonKey    string
	SupabaseServiceKey string
	UseSupabase        bool

	// Local store, used when Supabase is off. RoomsFile is an optional JSON
	// array of rooms upserted at startup.
	SQLitePath string
	RoomsFile  string

	// Auth: HS256 secret of the portal access tokens. Empty disables auth.
	JWTSecret string

	// Statements
	DefaultCommissionRate decimal.Decimal
	PaymentSources        []string
	DefaultPaymentSource  string
	SheetDateLayouts      []string

	// Imports
	ImportRatePerMinute int
	MaxUploadBytes      int64
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		ReservationsAPIURL: getEnv("RESERVATIONS_API_URL", "http://localhost:8081"),
		ReservationsAPIKey: getEnv("RESERVATIONS_API_KEY", ""),

		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 10*time.Second),

		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		InitialBackoff: getEnvDuration("INITIAL_BACKOFF", 100*time.Millisecond),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 8),

		CacheTTL: getEnvDuration("CACHE_TTL", 2*time.Minute),
		DraftTTL: getEnvDuration("DRAFT_TTL", 2*time.Hour),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),

		SupabaseURL:        getEnv("SUPABASE_URL", ""),
		SupabaseAnonKey:    getEnv("SUPABASE_ANON_KEY", ""),
		SupabaseServiceKey: getEnv("SUPABASE_SERVICE_ROLE_KEY", ""),
		UseSupabase:        getEnv("USE_SUPABASE", "false") == "true",

		SQLitePath: getEnv("SQLITE_PATH", "portal.db"),
		RoomsFile:  getEnv("ROOMS_FILE", ""),

		JWTSecret: getEnv("JWT_SECRET", ""),

		DefaultCommissionRate: getEnvDecimal("DEFAULT_COMMISSION_RATE", decimal.RequireFromString("0.20")),
		PaymentSources:        getEnvList("PAYMENT_SOURCES", []string{"stripe", "airbnb"}),
		DefaultPaymentSource:  getEnv("DEFAULT_PAYMENT_SOURCE", "stripe"),
		SheetDateLayouts:      getEnvList("SHEET_DATE_LAYOUT", nil),

		ImportRatePerMinute: getEnvInt("IMPORT_RATE_PER_MIN", 20),
		MaxUploadBytes:      int64(getEnvInt("MAX_UPLOAD_BYTES", 10<<20)),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvDecimal(key string, fallback decimal.Decimal) decimal.Decimal {
	if v := os.Getenv(key); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			return d
		}
	}
	return fallback
}

// getEnvList reads a comma-separated list. Blank items are dropped.
func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
