package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func exhaust(l *Limiter, ip string) {
	for i := 0; i < RequestsPerWindow; i++ {
		l.Allow(ip)
	}
}

func TestMiddlewareReturns429OverAllowance(t *testing.T) {
	l := New()
	exhaust(l, "203.0.113.1")

	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })
	req := httptest.NewRequest(http.MethodGet, "/do", nil)
	req.RemoteAddr = "203.0.113.1:1234"
	rec := httptest.NewRecorder()

	l.Middleware(next).ServeHTTP(rec, req)

	if called {
		t.Fatalf("middleware_test - handler should not run once the allowance is exhausted")
	}
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("middleware_test - status = %d, want 429", rec.Code)
	}
}

func TestMiddlewareExemptsHealthAndStatus(t *testing.T) {
	l := New()
	exhaust(l, "203.0.113.1")

	for _, path := range []string{"/health", "/status"} {
		called := false
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = "203.0.113.1:1234"
		rec := httptest.NewRecorder()

		l.Middleware(next).ServeHTTP(rec, req)

		if !called {
			t.Errorf("middleware_test - %s should be exempt from rate limiting even past the allowance", path)
		}
		if rec.Code != http.StatusOK {
			t.Errorf("middleware_test - %s status = %d, want 200", path, rec.Code)
		}
	}
}
