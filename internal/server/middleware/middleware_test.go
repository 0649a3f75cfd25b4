package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alanyoungcy/wagerloo/internal/crypto"
	"github.com/alanyoungcy/wagerloo/internal/domain"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, UserID(r.Context()))
	})
}

func TestIdentity(t *testing.T) {
	signer := crypto.JWT{Secret: []byte("test-secret"), TokenTTL: time.Hour}
	token, _, err := signer.Sign("u1", "u1@uwaterloo.ca")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	h := Identity(signer)(echoUser())

	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"valid bearer", "Bearer " + token, "u1"},
		{"lowercase scheme", "bearer " + token, "u1"},
		{"no header", "", ""},
		{"garbage token", "Bearer nope", ""},
		{"wrong scheme", "Basic " + token, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if got := rec.Body.String(); got != tc.want {
				t.Fatalf("user = %q, want %q", got, tc.want)
			}
		})
	}
}

type stubLimiter struct {
	allow bool
	err   error
	keys  []string
}

func (s *stubLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	s.keys = append(s.keys, key)
	return s.allow, s.err
}

func TestRateLimit(t *testing.T) {
	t.Run("denied", func(t *testing.T) {
		lim := &stubLimiter{allow: false}
		var rejected error
		reject := func(w http.ResponseWriter, _ *http.Request, err error) {
			rejected = err
			w.WriteHeader(http.StatusTooManyRequests)
		}
		h := RateLimit(lim, "vote", 5, time.Minute, reject, quietLogger())(echoUser())
		req := httptest.NewRequest(http.MethodPost, "/api/vote", nil)
		req.RemoteAddr = "10.0.0.7:5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusTooManyRequests || !errors.Is(rejected, domain.ErrRateLimited) {
			t.Fatalf("status = %d rejected = %v", rec.Code, rejected)
		}
		if rec.Header().Get("Retry-After") != "1" {
			t.Fatal("missing Retry-After")
		}
		if lim.keys[0] != "vote:ip:10.0.0.7" {
			t.Fatalf("key = %s", lim.keys[0])
		}
	})

	t.Run("keyed by user", func(t *testing.T) {
		lim := &stubLimiter{allow: true}
		h := RateLimit(lim, "vote", 5, time.Minute, nil, quietLogger())(echoUser())
		req := httptest.NewRequest(http.MethodPost, "/api/vote", nil)
		req = req.WithContext(WithUserID(req.Context(), "u9"))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK || lim.keys[0] != "vote:user:u9" {
			t.Fatalf("status = %d key = %s", rec.Code, lim.keys[0])
		}
	})

	t.Run("fails open", func(t *testing.T) {
		lim := &stubLimiter{err: errors.New("redis down")}
		h := RateLimit(lim, "vote", 5, time.Minute, nil, quietLogger())(echoUser())
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/vote", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
	})
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	if got := clientIP(req); got != "203.0.113.5" {
		t.Fatalf("xff ip = %s", got)
	}
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"https://wagerloo.ca/"})(echoUser())

	req := httptest.NewRequest(http.MethodOptions, "/api/vote", nil)
	req.Header.Set("Origin", "https://wagerloo.ca")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://wagerloo.ca" {
		t.Fatalf("allow origin = %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("foreign origin allowed")
	}
}

func TestLoggingKeepsStatus(t *testing.T) {
	h := Logging(quietLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d", rec.Code)
	}
}
