package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestLimiter(perMinute int, now *time.Time) *Limiter {
	rl := NewLimiter(Config{RequestsPerMinute: perMinute, CleanupInterval: time.Hour, IdleTimeout: 10 * time.Minute})
	rl.now = func() time.Time { return *now }
	return rl
}

func TestLimiter_Allow(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	rl := newTestLimiter(3, &now)
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		if !rl.Allow("1.1.1.1") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if rl.Allow("1.1.1.1") {
		t.Fatal("fourth request within the minute should be rejected")
	}
	if !rl.Allow("2.2.2.2") {
		t.Fatal("other clients have their own budget")
	}

	now = now.Add(20 * time.Second) // one token refilled at 3/min
	if !rl.Allow("1.1.1.1") {
		t.Fatal("a refilled token should be usable")
	}
	if rl.Allow("1.1.1.1") {
		t.Fatal("only one token should have been refilled")
	}

	if m := rl.GetMetrics(); m.TotalHits != 2 || m.ClientCount != 2 {
		t.Errorf("unexpected metrics %+v", m)
	}
}

func TestLimiter_CleanupStaleEntries(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	rl := newTestLimiter(10, &now)
	defer rl.Stop()

	rl.Allow("old")
	now = now.Add(9 * time.Minute)
	rl.Allow("recent")
	now = now.Add(2 * time.Minute)

	rl.cleanupStaleEntries()
	if got := rl.ActiveClients(); got != 1 {
		t.Fatalf("ActiveClients() = %d, want 1", got)
	}
}

func TestLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewLimiter(Config{})
	rl.Stop()
	rl.Stop()
	if rl.requestsPerMinute != 60 {
		t.Errorf("defaults not applied: %d", rl.requestsPerMinute)
	}
}

func TestMiddleware(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	rl := newTestLimiter(1, &now)
	defer rl.Stop()

	called := 0
	h := rl.Middleware(func(*http.Request) string { return "9.9.9.9" },
		func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"rate limit exceeded"}`))
		})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { called++ }))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/settlements", nil))
	if rec.Code != http.StatusOK || called != 1 {
		t.Fatalf("first request: code=%d called=%d", rec.Code, called)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/settlements", nil))
	if rec.Code != http.StatusTooManyRequests || called != 1 {
		t.Fatalf("second request: code=%d called=%d", rec.Code, called)
	}
	if rec.Header().Get("Retry-After") != "61" {
		t.Errorf("Retry-After = %q", rec.Header().Get("Retry-After"))
	}
}
