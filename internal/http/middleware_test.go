package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/time/rate"

	"github.com/mzansi-solutions/farm-alert-service/internal/models"
	"github.com/mzansi-solutions/farm-alert-service/internal/session"
	"github.com/mzansi-solutions/farm-alert-service/internal/traffic"
)

// TestCorrelationIDMiddleware verifies a client-supplied id is echoed and a missing one
// is generated, and that the request logger carries it.
func TestCorrelationIDMiddleware(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(zap.New(core)))
	router.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		loggerFrom(r, zap.NewNop()).Info("pong")
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Correlation-ID", "client-provided-id")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Correlation-ID"); got != "client-provided-id" {
		t.Errorf("X-Correlation-ID = %q, want client-provided-id", got)
	}
	entries := logs.FilterMessage("pong").All()
	if len(entries) != 1 || entries[0].ContextMap()["correlation_id"] != "client-provided-id" {
		t.Errorf("log entries = %v, want one with correlation_id", entries)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if got := w.Header().Get("X-Correlation-ID"); len(got) != 36 {
		t.Errorf("generated X-Correlation-ID = %q, want a uuid", got)
	}
}

// TestMetricsMiddleware_RouteLabel verifies path variables collapse to the route template
// and unmatched requests share one label.
func TestMetricsMiddleware_RouteLabel(t *testing.T) {
	var seen string
	router := mux.NewRouter()
	router.Use(MetricsMiddleware)
	router.HandleFunc("/weather/{location}", func(w http.ResponseWriter, r *http.Request) {
		seen = getRoute(r)
		w.WriteHeader(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/weather/Pretoria", nil))

	if seen != "/weather/{location}" {
		t.Errorf("route label = %q, want /weather/{location}", seen)
	}
	if got := getRoute(httptest.NewRequest(http.MethodGet, "/nowhere", nil)); got != "unmatched" {
		t.Errorf("getRoute() for unmatched = %q, want unmatched", got)
	}
}

func TestStatusCodeString(t *testing.T) {
	tests := map[int]string{200: "2xx", 201: "2xx", 404: "4xx", 429: "4xx", 503: "5xx"}
	for code, want := range tests {
		if got := statusCodeString(code); got != want {
			t.Errorf("statusCodeString(%d) = %q, want %q", code, got, want)
		}
	}
}

// TestTimeoutMiddleware_CancelsContextAfterTimeout verifies a slow upstream is abandoned
// and answered with 503.
func TestTimeoutMiddleware_CancelsContextAfterTimeout(t *testing.T) {
	s := newTestServer(t)
	s.client.block = make(chan struct{})
	defer close(s.client.block)
	s.router = NewRouter(s.handler, RouterConfig{Timeout: 50 * time.Millisecond})

	w := s.do(t, http.MethodGet, "/weather/Pretoria", nil, "")

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d (timeout should cause upstream error)", w.Code, http.StatusServiceUnavailable)
	}
}

// TestTimeoutMiddleware_ZeroDisabled verifies a zero timeout leaves the context without
// a deadline.
func TestTimeoutMiddleware_ZeroDisabled(t *testing.T) {
	var hasDeadline bool
	h := TimeoutMiddleware(0)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasDeadline = r.Context().Deadline()
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if hasDeadline {
		t.Error("context has a deadline with zero timeout")
	}
}

// TestRateLimitMiddleware_Returns429WhenExceeded verifies the burst is served, the next
// request is denied with RATE_LIMITED and the denial is tracked.
func TestRateLimitMiddleware_Returns429WhenExceeded(t *testing.T) {
	s := newTestServer(t)
	s.router = NewRouter(s.handler, RouterConfig{Limiter: rate.NewLimiter(rate.Every(time.Hour), 2)})

	for i := 0; i < 3; i++ {
		w := s.do(t, http.MethodGet, "/weather/Pretoria", nil, "")
		if i < 2 {
			if w.Code != http.StatusOK {
				t.Errorf("request %d: status = %d, want 200", i, w.Code)
			}
			continue
		}
		if w.Code != http.StatusTooManyRequests {
			t.Fatalf("request %d: status = %d, want 429", i, w.Code)
		}
		if code := errorCode(t, w); code != "RATE_LIMITED" {
			t.Errorf("error.code = %q, want RATE_LIMITED", code)
		}
	}
	if got := s.tracker.DenialCount(time.Minute); got != 1 {
		t.Errorf("DenialCount() = %d, want 1", got)
	}
}

// TestRateLimitMiddleware_ScopedToUpstreamRoutes verifies health, the alert board and
// sessions stay reachable while the limiter is exhausted.
func TestRateLimitMiddleware_ScopedToUpstreamRoutes(t *testing.T) {
	s := newTestServer(t)
	s.router = NewRouter(s.handler, RouterConfig{Limiter: rate.NewLimiter(rate.Every(time.Hour), 1)})
	token := s.login(t, "naledi")

	s.do(t, http.MethodGet, "/alerts/Pretoria", nil, "")
	if w := s.do(t, http.MethodGet, "/weather/Pretoria", nil, ""); w.Code != http.StatusTooManyRequests {
		t.Fatalf("weather status = %d, want 429", w.Code)
	}

	for _, path := range []string{"/health", "/alerts/Pretoria/latest", "/session", "/crops"} {
		if w := s.do(t, http.MethodGet, path, nil, token); w.Code == http.StatusTooManyRequests {
			t.Errorf("GET %s was rate limited", path)
		}
	}
}

func TestRateLimitMiddleware_NilLimiterPassesThrough(t *testing.T) {
	called := false
	h := RateLimitMiddleware(nil, traffic.NewTracker(nil))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !called {
		t.Error("nil limiter blocked the request")
	}
}

// TestSessionMiddleware verifies bearer tokens resolve to the session and that bad or
// missing tokens leave the request anonymous.
func TestSessionMiddleware(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "bongani")

	tests := []struct {
		name     string
		header   string
		wantUser string
	}{
		{name: "valid", header: "Bearer " + token, wantUser: "bongani"},
		{name: "lowercase scheme", header: "bearer " + token, wantUser: "bongani"},
		{name: "unknown token", header: "Bearer nope"},
		{name: "basic auth", header: "Basic dXNlcjpwYXNz"},
		{name: "no header"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got models.Session
			h := SessionMiddleware(s.sessions)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got, _ = session.FromContext(r.Context())
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			if got.UserID != tc.wantUser {
				t.Errorf("session user = %q, want %q", got.UserID, tc.wantUser)
			}
		})
	}
}

// TestRouter_WithoutSessions verifies session and crop routes are not mounted when no
// session manager is configured.
func TestRouter_WithoutSessions(t *testing.T) {
	s := newTestServer(t)
	s.handler.sessions = nil
	s.router = NewRouter(s.handler, RouterConfig{})

	for _, path := range []string{"/session", "/crops"} {
		w := s.do(t, http.MethodGet, path, nil, "")
		if w.Code != http.StatusNotFound && w.Code != http.StatusMethodNotAllowed {
			t.Errorf("GET %s status = %d, want 404 or 405", path, w.Code)
		}
	}
}

// TestRouter_Metrics verifies /metrics exposes the request counter after traffic.
func TestRouter_Metrics(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodGet, "/weather/Pretoria", nil, "")

	w := s.do(t, http.MethodGet, "/metrics", nil, "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "httpRequestsTotal") {
		t.Error("metrics output missing httpRequestsTotal")
	}
}

// TestRequireSession_Anonymous verifies the guard answers 401 without calling the handler.
func TestRequireSession_Anonymous(t *testing.T) {
	called := false
	h := RequireSession(func(w http.ResponseWriter, r *http.Request) { called = true })
	req := httptest.NewRequest(http.MethodGet, "/crops", nil)
	req = req.WithContext(context.WithValue(req.Context(), "correlation_id", "test-id"))
	w := httptest.NewRecorder()

	h(w, req)

	if called {
		t.Error("handler called without a session")
	}
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}
