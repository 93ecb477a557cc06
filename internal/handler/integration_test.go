package handler_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/boddenberg/pm-portal-bfa/internal/domain"
	"github.com/boddenberg/pm-portal-bfa/internal/handler"
	"github.com/boddenberg/pm-portal-bfa/internal/infra/cache"
	"github.com/boddenberg/pm-portal-bfa/internal/infra/client"
	"github.com/boddenberg/pm-portal-bfa/internal/infra/observability"
	"github.com/boddenberg/pm-portal-bfa/internal/infra/resilience"
	"github.com/boddenberg/pm-portal-bfa/internal/infra/sqlite"
	"github.com/boddenberg/pm-portal-bfa/internal/ingest"
	"github.com/boddenberg/pm-portal-bfa/internal/service"
	"github.com/boddenberg/pm-portal-bfa/internal/statement"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// fakeReservationsAPI serves one room and records created blocks.
type fakeReservationsAPI struct {
	mu              sync.Mutex
	records         []string
	idempotencyKeys []string
}

func (f *fakeReservationsAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/rooms/A101/reservations" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch r.Method {
	case http.MethodGet:
		io.WriteString(w, `{"data":[`+strings.Join(f.records, ",")+`]}`)
	case http.MethodPost:
		var payload map[string]string
		json.NewDecoder(r.Body).Decode(&payload)
		f.idempotencyKeys = append(f.idempotencyKeys, r.Header.Get("Idempotency-Key"))
		f.records = append(f.records, `{"id":"blk","guest_name":"PROPRIETAIRE","status":"owner_block","check_in":"`+payload["check_in"]+`","check_out":"`+payload["check_out"]+`"}`)
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"id":"blk","created_at":"2025-01-01T10:00:00Z"}`)
	}
}

func newIntegrationRouter(t *testing.T, api http.Handler) http.Handler {
	t.Helper()
	upstream := httptest.NewServer(api)
	t.Cleanup(upstream.Close)

	logger := zap.NewNop()
	metrics := observability.NewMetrics()

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "portal.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := sqlite.Migrate(db, logger); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store := sqlite.NewStore(db, logger)
	if _, err := store.SeedRooms(context.Background(), strings.NewReader(`[{"id":"room-1","externalRoomId":"A101","name":"Studio"}]`)); err != nil {
		t.Fatalf("seed rooms: %v", err)
	}

	cfg := resilience.Config{MaxRetries: 1, InitialBackoff: 10 * time.Millisecond, MaxConcurrency: 4}
	normalizer := ingest.NewNormalizer()
	reservations := client.NewReservationsClient(upstream.Client(), upstream.URL, "key", normalizer, resilience.NewCircuitBreaker("integration", logger), cfg, logger)

	availSvc := service.NewAvailabilityService(store, reservations, cache.New[[]domain.Reservation](time.Minute), 4, metrics, logger)
	stmtSvc := service.NewStatementService(
		store,
		cache.New[*domain.Statement](time.Hour),
		normalizer,
		statement.NewRouter([]string{"stripe", "airbnb"}, "stripe"),
		decimal.RequireFromString("0.20"),
		metrics,
		logger,
	)
	return handler.NewRouter(availSvc, stmtSvc, metrics, handler.Options{
		Probes: []handler.Probe{{Name: "sqlite", Check: store.Ping}},
	}, logger)
}

// TestIntegration_OwnerBlockFlow books an owner block through the real
// client and checks that the next availability query sees it.
func TestIntegration_OwnerBlockFlow(t *testing.T) {
	api := &fakeReservationsAPI{records: []string{
		`{"id":1,"room_id":"A101","guest_name":"Jeanne","check_in":"2025-01-01","check_out":"2025-01-05","status":"confirmed","channel":"airbnb"}`,
	}}
	router := newIntegrationRouter(t, api)

	url := "/v1/rooms/room-1/availability?check_in=2025-01-10&check_out=2025-01-12"
	rec := serve(router, httptest.NewRequest(http.MethodGet, url, nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"available":true`) {
		t.Fatalf("expected free room, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = serve(router, httptest.NewRequest(http.MethodPost, "/v1/rooms/room-1/owner-blocks",
		strings.NewReader(`{"checkIn":"2025-01-10","checkOut":"2025-01-12","note":"family"}`)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(api.idempotencyKeys) != 1 || api.idempotencyKeys[0] == "" {
		t.Errorf("expected one keyed block request, got %v", api.idempotencyKeys)
	}

	rec = serve(router, httptest.NewRequest(http.MethodGet, url, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var result domain.AvailabilityResult
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if result.Available || len(result.Conflicts) != 1 || result.Conflicts[0].ReservationID != "blk" {
		t.Errorf("expected the new block to conflict, got %+v", result)
	}
}

// TestIntegration_StatementPersistence imports, edits, saves and sends a
// statement against the SQLite store.
func TestIntegration_StatementPersistence(t *testing.T) {
	router := newIntegrationRouter(t, &fakeReservationsAPI{})

	rec := serve(router, importRequest(t, "client-7", "2025-01"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("import: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var imported domain.ImportResult
	if err := json.NewDecoder(rec.Body).Decode(&imported); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	id := imported.Statement.ID

	rec = serve(router, httptest.NewRequest(http.MethodPut, "/v1/statements/"+id+"/owner-cleaning-fee",
		strings.NewReader(`{"amount":"15"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("owner cleaning fee: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = serve(router, httptest.NewRequest(http.MethodPost, "/v1/statements/"+id+"/save", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("save: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = serve(router, httptest.NewRequest(http.MethodPost, "/v1/statements/"+id+"/send",
		strings.NewReader(`{"recipient":"owner@example.com"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("send: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/v1/statements/"+id, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", rec.Code)
	}
	var view domain.StatementView
	if err := json.NewDecoder(rec.Body).Decode(&view); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if view.Status != domain.StatementSent || view.Version != 2 || view.SentTo != "owner@example.com" {
		t.Errorf("unexpected persisted statement: status=%s version=%d sentTo=%s", view.Status, view.Version, view.SentTo)
	}
	if !view.Totals.OwnerCleaningFee.Equal(decimal.NewFromInt(15)) {
		t.Errorf("expected owner cleaning fee 15, got %s", view.Totals.OwnerCleaningFee)
	}

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("readyz: expected 200, got %d", rec.Code)
	}
}
