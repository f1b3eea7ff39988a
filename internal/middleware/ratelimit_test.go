package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const testIdentityHeader = "X-Client-Id"

func withIdentity(id string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.Header.Set(testIdentityHeader, id)
	return req
}

func TestRateLimiterAllowsUnderLimit(t *testing.T) {
	rl := NewRateLimiter(600, 10, testIdentityHeader)
	handler := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := range 10 {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, withIdentity("client-a"))

		if rec.Code != http.StatusOK {
			t.Errorf("request %d: expected 200, got %d", i+1, rec.Code)
		}
	}
}

func TestRateLimiterRejectsOverLimit(t *testing.T) {
	rl := NewRateLimiter(600, 5, testIdentityHeader)
	handler := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for range 5 {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, withIdentity("client-a"))
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, withIdentity("client-a"))

	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

func TestRateLimiterSetsHeaders(t *testing.T) {
	rl := NewRateLimiter(600, 10, testIdentityHeader)
	handler := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, withIdentity("client-a"))

	if rec.Header().Get("X-RateLimit-Remaining") == "" {
		t.Error("expected X-RateLimit-Remaining header")
	}
	if rec.Header().Get("X-RateLimit-Reset") == "" {
		t.Error("expected X-RateLimit-Reset header")
	}
}

func TestRateLimiterPerClient(t *testing.T) {
	rl := NewRateLimiter(600, 2, testIdentityHeader)
	handler := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for range 2 {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, withIdentity("client-1"))
	}

	rec1 := httptest.NewRecorder()
	handler.ServeHTTP(rec1, withIdentity("client-1"))
	if rec1.Code != http.StatusTooManyRequests {
		t.Errorf("client-1: expected 429, got %d", rec1.Code)
	}

	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, withIdentity("client-2"))
	if rec2.Code != http.StatusOK {
		t.Errorf("client-2: expected 200, got %d", rec2.Code)
	}
}

func TestRateLimiterMissingHeaderSharesDefaultBucket(t *testing.T) {
	rl := NewRateLimiter(600, 1, testIdentityHeader)
	handler := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	rec1 := httptest.NewRecorder()
	handler.ServeHTTP(rec1, req)
	if rec1.Code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", rec1.Code)
	}

	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusTooManyRequests {
		t.Errorf("second request without header: expected 429, got %d", rec2.Code)
	}
}

func TestRateLimiterLen(t *testing.T) {
	rl := NewRateLimiter(600, 10, testIdentityHeader)

	if rl.Len() != 0 {
		t.Fatalf("expected 0, got %d", rl.Len())
	}

	for i := range 3 {
		id := fmt.Sprintf("client-%d", i+1)
		rl.allow(id)
	}

	if rl.Len() != 3 {
		t.Fatalf("expected 3, got %d", rl.Len())
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter(600, 10, testIdentityHeader)

	for i := range 5 {
		id := fmt.Sprintf("client-%d", i+1)
		rl.allow(id)
	}
	if rl.Len() != 5 {
		t.Fatalf("expected 5 buckets, got %d", rl.Len())
	}

	rl.mu.Lock()
	staleTime := time.Now().Add(-20 * time.Minute)
	for id, b := range rl.buckets {
		if id == "client-1" || id == "client-2" {
			b.lastSeen = staleTime
		}
	}
	rl.mu.Unlock()

	rl.cleanup(10 * time.Minute)

	if rl.Len() != 3 {
		t.Fatalf("expected 3 buckets after cleanup, got %d", rl.Len())
	}
}

func TestRateLimiterStartCleanupStops(t *testing.T) {
	rl := NewRateLimiter(600, 10, testIdentityHeader)
	cancel := rl.StartCleanup(50*time.Millisecond, 1*time.Millisecond)

	rl.allow("client-1")
	time.Sleep(150 * time.Millisecond)

	if rl.Len() != 0 {
		t.Fatalf("expected 0 buckets after cleanup, got %d", rl.Len())
	}

	cancel()
}

func BenchmarkRateLimiterAllow(b *testing.B) {
	rl := NewRateLimiter(60000, 1000, testIdentityHeader)
	b.ResetTimer()
	for i := range b.N {
		id := fmt.Sprintf("client-%d-%d", (i/256)%256, i%256)
		rl.allow(id)
	}
}

func BenchmarkRateLimiterConcurrent(b *testing.B) {
	rl := NewRateLimiter(60000, 1000, testIdentityHeader)
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			id := fmt.Sprintf("client-%d-%d", (i/256)%256, i%256)
			rl.allow(id)
			i++
		}
	})
}
