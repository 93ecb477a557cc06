package observability_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/boddenberg/pm-portal-bfa/internal/domain"
	"github.com/boddenberg/pm-portal-bfa/internal/infra/observability"

	"go.uber.org/zap"
)

func TestImportSnapshot(t *testing.T) {
	m := observability.NewMetrics()

	m.IncrImportedRows(observability.RowProcessed, 8)
	m.IncrImportedRows(observability.RowSkipped, 2)
	m.IncrImportedRows(observability.RowOwner, 1)
	m.IncrConflicts(3)
	m.IncrStatement(domain.StatementSaved)
	m.IncrStatement(domain.StatementSaved)
	m.IncrStatement(domain.StatementSent)
	m.IncrCacheHit("reservations")
	m.IncrCacheMiss("reservations")

	s := m.GetImportSnapshot()
	if s.RowsProcessed != 8 || s.RowsSkipped != 2 || s.OwnerRows != 1 {
		t.Errorf("unexpected row counts %+v", s)
	}
	if s.SkipRate != 0.2 {
		t.Errorf("expected skip rate 0.2, got %v", s.SkipRate)
	}
	if s.ConflictsDetected != 3 || s.StatementsSaved != 2 || s.StatementsSent != 1 {
		t.Errorf("unexpected counters %+v", s)
	}
	if s.CacheHitRate != 0.5 {
		t.Errorf("expected hit rate 0.5, got %v", s.CacheHitRate)
	}
}

func TestImportSnapshot_Empty(t *testing.T) {
	s := observability.NewMetrics().GetImportSnapshot()
	if s.SkipRate != 0 || s.CacheHitRate != 0 {
		t.Errorf("expected zero rates without data, got %+v", s)
	}
}

func TestInitTracer_NoEndpoint(t *testing.T) {
	shutdown, err := observability.InitTracer("", "portal-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestZapLoggerMiddleware_PassesThrough(t *testing.T) {
	h := observability.ZapLoggerMiddleware(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("expected status to pass through, got %d", rec.Code)
	}
}
