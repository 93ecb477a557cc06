package observability

import (
	"time"

	"github.com/boddenberg/pm-portal-bfa/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Row outcomes recorded by IncrImportedRows.
const (
	RowProcessed = "processed"
	RowSkipped   = "skipped"
	RowOwner     = "owner"
)

// Metrics holds all Prometheus metrics for the portal.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration   *prometheus.HistogramVec
	externalErrors    *prometheus.CounterVec
	cacheHits         *prometheus.CounterVec
	cacheMisses       *prometheus.CounterVec
	importedRows      *prometheus.CounterVec
	conflictsDetected prometheus.Counter
	malformedRecords  prometheus.Counter
	statements        *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "portal_request_duration_seconds",
				Help:    "Duration of requests by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		importedRows: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_import_rows_total",
				Help: "Booking export rows read, by outcome.",
			},
			[]string{"outcome"},
		),
		conflictsDetected: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "portal_availability_conflicts_total",
				Help: "Conflicting reservations reported by availability checks.",
			},
		),
		malformedRecords: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "portal_malformed_reservations_total",
				Help: "Upstream reservations left out of conflict scans for unusable dates.",
			},
		),
		statements: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_statements_total",
				Help: "Statement lifecycle transitions.",
			},
			[]string{"status"},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// IncrImportedRows adds n rows with the given outcome.
func (m *Metrics) IncrImportedRows(outcome string, n int) {
	if n > 0 {
		m.importedRows.WithLabelValues(outcome).Add(float64(n))
	}
}

// IncrConflicts adds n detected conflicts.
func (m *Metrics) IncrConflicts(n int) {
	if n > 0 {
		m.conflictsDetected.Add(float64(n))
	}
}

// IncrMalformed adds n malformed upstream reservations.
func (m *Metrics) IncrMalformed(n int) {
	if n > 0 {
		m.malformedRecords.Add(float64(n))
	}
}

// IncrStatement counts a statement reaching status.
func (m *Metrics) IncrStatement(status domain.StatementStatus) {
	m.statements.WithLabelValues(string(status)).Inc()
}

// GetImportSnapshot returns the import and statement counters for the
// GET /v1/metrics/imports endpoint.
func (m *Metrics) GetImportSnapshot() *domain.ImportMetrics {
	processed := getCounterValue(m.importedRows, RowProcessed)
	skipped := getCounterValue(m.importedRows, RowSkipped)
	owner := getCounterValue(m.importedRows, RowOwner)
	hits := getCounterValue(m.cacheHits, "reservations")
	misses := getCounterValue(m.cacheMisses, "reservations")

	skipRate := float64(0)
	if read := processed + skipped; read > 0 {
		skipRate = skipped / read
	}
	hitRate := float64(0)
	if hits+misses > 0 {
		hitRate = hits / (hits + misses)
	}

	return &domain.ImportMetrics{
		RowsProcessed:     int64(processed),
		RowsSkipped:       int64(skipped),
		OwnerRows:         int64(owner),
		SkipRate:          skipRate,
		ConflictsDetected: int64(counterValue(m.conflictsDetected)),
		StatementsSaved:   int64(getCounterValue(m.statements, string(domain.StatementSaved))),
		StatementsSent:    int64(getCounterValue(m.statements, string(domain.StatementSent))),
		CacheHitRate:      hitRate,
		Period:            "all_time",
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	return counterValue(cv.WithLabelValues(label))
}

func counterValue(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
