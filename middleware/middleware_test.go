package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimit(t *testing.T) {
	handler := RateLimit(3, time.Minute)(okHandler())

	doReq := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/worker/nextTask", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	for i := 0; i < 3; i++ {
		if code := doReq("10.0.0.1:1234"); code != http.StatusOK {
			t.Fatalf("request %d within limit got %d", i+1, code)
		}
	}
	if code := doReq("10.0.0.1:1234"); code != http.StatusTooManyRequests {
		t.Fatalf("request over limit got %d, want 429", code)
	}

	t.Run("clients are limited independently", func(t *testing.T) {
		if code := doReq("10.0.0.2:1234"); code != http.StatusOK {
			t.Fatalf("fresh client got %d", code)
		}
	})
}

func TestRateLimitWindowResets(t *testing.T) {
	handler := RateLimit(1, time.Millisecond)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request got %d", rec.Code)
	}

	time.Sleep(5 * time.Millisecond)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("request after window elapsed got %d, want 200", rec.Code)
	}
}

func TestRateLimitConcurrent(t *testing.T) {
	const limit = 50
	const total = 100

	handler := RateLimit(limit, time.Minute)(okHandler())

	var wg sync.WaitGroup
	codes := make(chan int, total)
	for i := 0; i < total; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodGet, "/api/worker/balance", nil)
			req.RemoteAddr = "10.0.0.1:1234"
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			codes <- rec.Code
		}()
	}
	wg.Wait()
	close(codes)

	allowed, limited := 0, 0
	for code := range codes {
		switch code {
		case http.StatusOK:
			allowed++
		case http.StatusTooManyRequests:
			limited++
		default:
			t.Fatalf("unexpected status %d", code)
		}
	}
	if allowed != limit || limited != total-limit {
		t.Fatalf("got %d allowed and %d limited, want %d and %d", allowed, limited, limit, total-limit)
	}
}
