// Package handler exposes the portal over HTTP.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/boddenberg/pm-portal-bfa/internal/domain"
	"github.com/boddenberg/pm-portal-bfa/internal/infra/observability"
	"github.com/boddenberg/pm-portal-bfa/internal/infra/ratelimit"
	"github.com/boddenberg/pm-portal-bfa/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("handler")

const defaultMaxUploadBytes = 10 << 20

// Probe checks one dependency for the health endpoints.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

// Options tunes the router. The zero value disables authentication and
// import rate limiting.
type Options struct {
	JWTSecret      string
	ImportLimiter  *ratelimit.Limiter
	MaxUploadBytes int64
	Probes         []Probe
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(availSvc *service.AvailabilityService, stmtSvc *service.StatementService, metrics *observability.Metrics, opts Options, logger *zap.Logger) http.Handler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}

	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger, metrics))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(opts.Probes))
	r.Get("/readyz", readyzHandler(opts.Probes, logger))
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		if opts.JWTSecret != "" {
			r.Use(JWTAuthMiddleware([]byte(opts.JWTSecret), logger))
		}

		r.Get("/metrics/imports", importMetricsHandler(metrics))

		// Availability
		r.Get("/rooms/{roomId}/availability", roomAvailabilityHandler(availSvc, logger))
		r.Post("/availability", multiRoomAvailabilityHandler(availSvc, logger))
		r.Post("/rooms/{roomId}/owner-blocks", ownerBlockHandler(availSvc, logger))

		// Statements
		r.Group(func(r chi.Router) {
			if opts.ImportLimiter != nil {
				r.Use(opts.ImportLimiter.Middleware(rateLimitKey, logger))
			}
			r.Post("/statements/import", importStatementHandler(stmtSvc, opts.MaxUploadBytes, logger))
		})
		r.Get("/statements/{statementId}", getStatementHandler(stmtSvc, logger))
		r.Patch("/statements/{statementId}/rows/{index}", editRowHandler(stmtSvc, logger))
		r.Put("/statements/{statementId}/owner-cleaning-fee", ownerCleaningFeeHandler(stmtSvc, logger))
		r.Post("/statements/{statementId}/transfers", transfersHandler(stmtSvc, logger))
		r.Post("/statements/{statementId}/save", saveStatementHandler(stmtSvc, logger))
		r.Post("/statements/{statementId}/send", sendStatementHandler(stmtSvc, logger))
		r.Delete("/statements/{statementId}", discardStatementHandler(stmtSvc, logger))
		r.Get("/clients/{clientId}/statements", listStatementsHandler(stmtSvc, logger))
	})

	return r
}

// ============================================================
// Probes
// ============================================================

// runProbes checks every dependency concurrently.
func runProbes(ctx context.Context, probes []Probe) []domain.ServiceHealth {
	now := time.Now().Format(time.RFC3339)
	services := make([]domain.ServiceHealth, len(probes)+1)
	services[0] = domain.ServiceHealth{Name: "portal-api", Status: "healthy", LastChecked: now}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var g errgroup.Group
	for i, p := range probes {
		i, p := i, p
		g.Go(func() error {
			start := time.Now()
			err := p.Check(ctx)
			h := domain.ServiceHealth{
				Name:        p.Name,
				Status:      "healthy",
				LatencyMs:   time.Since(start).Milliseconds(),
				LastChecked: now,
			}
			if err != nil {
				h.Status = "degraded"
				h.Error = err.Error()
			}
			services[i+1] = h
			return nil
		})
	}
	g.Wait()
	return services
}

func overallStatus(services []domain.ServiceHealth) string {
	status := "healthy"
	for _, s := range services {
		if s.Status == "unhealthy" {
			return "unhealthy"
		}
		if s.Status == "degraded" {
			status = "degraded"
		}
	}
	return status
}

func healthzHandler(probes []Probe) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		services := runProbes(r.Context(), probes)
		writeJSON(w, http.StatusOK, domain.HealthStatus{
			Status:   overallStatus(services),
			Services: services,
		})
	}
}

func readyzHandler(probes []Probe, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		services := runProbes(r.Context(), probes)
		if status := overallStatus(services); status != "healthy" {
			logger.Warn("not ready", zap.String("status", status))
			writeJSON(w, http.StatusServiceUnavailable, domain.HealthStatus{Status: status, Services: services})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func importMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetImportSnapshot())
	}
}
