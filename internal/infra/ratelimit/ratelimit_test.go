package ratelimit_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/boddenberg/pm-portal-bfa/internal/infra/ratelimit"

	"go.uber.org/zap"
)

func TestLimiter_PerKeyBuckets(t *testing.T) {
	l := ratelimit.New(2)

	if !l.Allow("a") || !l.Allow("a") {
		t.Fatal("expected burst of 2 to be allowed")
	}
	if l.Allow("a") {
		t.Fatal("expected third request to be limited")
	}
	if !l.Allow("b") {
		t.Fatal("expected other key to have its own bucket")
	}
}

func TestLimiter_Disabled(t *testing.T) {
	l := ratelimit.New(0)
	for i := 0; i < 100; i++ {
		if !l.Allow("a") {
			t.Fatalf("request %d limited with limiting disabled", i)
		}
	}
}

func TestMiddleware(t *testing.T) {
	l := ratelimit.New(1)
	h := l.Middleware(func(r *http.Request) string { return "caller" }, zap.NewNop())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }),
	)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/statements/import", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/statements/import", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
}
