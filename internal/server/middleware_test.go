package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestChain_Order(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(okHandler(), mw("outer"), mw("inner"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	if len(order) != 2 || order[0] != "outer" || order[1] != "inner" {
		t.Errorf("execution order = %v, want [outer inner]", order)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
	})

	rec := httptest.NewRecorder()
	RequestIDMiddleware(inner).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if seen == "" {
		t.Error("request ID must be generated when absent")
	}
	if got := rec.Header().Get("X-Request-ID"); got != seen {
		t.Errorf("header = %q, context = %q", got, seen)
	}

	// Propagates a caller-supplied ID.
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Request-ID", "caller-id")
	rec = httptest.NewRecorder()
	RequestIDMiddleware(inner).ServeHTTP(rec, req)
	if seen != "caller-id" {
		t.Errorf("propagated ID = %q, want caller-id", seen)
	}
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	rec := httptest.NewRecorder()
	SecurityHeadersMiddleware(okHandler()).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	for _, header := range []string{"X-Content-Type-Options", "X-Frame-Options", "Content-Security-Policy", "Referrer-Policy"} {
		if rec.Header().Get(header) == "" {
			t.Errorf("%s header missing", header)
		}
	}
}

func TestVersionHeaderMiddleware(t *testing.T) {
	rec := httptest.NewRecorder()
	VersionHeaderMiddleware(okHandler()).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if rec.Header().Get("X-SchoolGate-Version") == "" {
		t.Error("version header missing")
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	panicking := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	rec := httptest.NewRecorder()
	RecoveryMiddleware(zap.NewNop())(panicking).ServeHTTP(rec, httptest.NewRequest("GET", "/x", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	h := RateLimitMiddleware(1, 2, []string{"/healthz"})(okHandler())

	req := httptest.NewRequest("GET", "/api/v1/devices", nil)
	req.RemoteAddr = "203.0.113.5:1234"

	statuses := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		statuses = append(statuses, rec.Code)
	}
	if statuses[0] != http.StatusOK || statuses[1] != http.StatusOK {
		t.Errorf("burst requests = %v, first two should pass", statuses)
	}
	if statuses[3] != http.StatusTooManyRequests {
		t.Errorf("statuses = %v, want 429 after burst", statuses)
	}

	// Skip paths are never limited.
	skip := httptest.NewRequest("GET", "/healthz", nil)
	skip.RemoteAddr = "203.0.113.5:1234"
	for i := 0; i < 10; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, skip)
		if rec.Code != http.StatusOK {
			t.Fatalf("skip path limited on attempt %d", i)
		}
	}
}

func TestRateLimit_SeparateIPs(t *testing.T) {
	h := RateLimitMiddleware(1, 1, nil)(okHandler())

	a := httptest.NewRequest("GET", "/x", nil)
	a.RemoteAddr = "10.0.0.1:1"
	b := httptest.NewRequest("GET", "/x", nil)
	b.RemoteAddr = "10.0.0.2:1"

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, a)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request from a = %d", rec.Code)
	}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, a)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request from a = %d, want 429", rec.Code)
	}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, b)
	if rec.Code != http.StatusOK {
		t.Errorf("request from b = %d, other IPs must not share buckets", rec.Code)
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "192.0.2.1:5000"
	if got := clientIP(r); got != "192.0.2.1" {
		t.Errorf("clientIP = %q", got)
	}

	r.Header.Set("X-Forwarded-For", "198.51.100.7, 192.0.2.1")
	if got := clientIP(r); got != "198.51.100.7" {
		t.Errorf("clientIP with XFF = %q", got)
	}
}

func TestRequestID_MissingFromContext(t *testing.T) {
	if got := RequestID(context.Background()); got != "" {
		t.Errorf("RequestID on empty context = %q, want empty", got)
	}
}
