package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// =============================================================================
// Request Logging Middleware Tests
// =============================================================================

func serveLogged(t *testing.T, req *http.Request, status int) (string, *httptest.ResponseRecorder) {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	h := NewRequestLoggingMiddleware(logger).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return buf.String(), rec
}

func TestRequestLoggingMiddleware_LogsBasicInfo(t *testing.T) {
	req := httptest.NewRequest("GET", "/user/usage", nil)
	req.RemoteAddr = "192.168.1.1:12345"
	req.Header.Set("User-Agent", "ledger-client/1.0")

	out, rec := serveLogged(t, req, http.StatusOK)

	for _, want := range []string{"GET", "/user/usage", "status=200", "duration_ms", "192.168.1.1", "ledger-client/1.0", "request_id="} {
		if !strings.Contains(out, want) {
			t.Errorf("log should contain %q, got: %s", want, out)
		}
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("expected a generated request ID header")
	}
}

func TestRequestLoggingMiddleware_ReusesRequestID(t *testing.T) {
	req := httptest.NewRequest("POST", "/subscribe", nil)
	req.Header.Set(RequestIDHeader, "req-42")

	out, rec := serveLogged(t, req, http.StatusCreated)

	if got := rec.Header().Get(RequestIDHeader); got != "req-42" {
		t.Errorf("request ID = %q, want req-42", got)
	}
	if !strings.Contains(out, "request_id=req-42") {
		t.Errorf("log should carry the incoming request ID, got: %s", out)
	}
}

func TestRequestLoggingMiddleware_ServerErrorsLogAtWarn(t *testing.T) {
	out, _ := serveLogged(t, httptest.NewRequest("GET", "/user/usage", nil), http.StatusInternalServerError)

	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "status=500") {
		t.Errorf("expected WARN entry with status 500, got: %s", out)
	}
}

func TestRequestLoggingMiddleware_LogsForwardedClientIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/plans", nil)
	req.RemoteAddr = "10.0.0.1:8080"
	req.Header.Set("X-Forwarded-For", "203.0.113.195, 10.0.0.1")

	out, _ := serveLogged(t, req, http.StatusOK)

	if !strings.Contains(out, "ip=203.0.113.195") {
		t.Errorf("log should contain client IP from X-Forwarded-For, got: %s", out)
	}
}

func TestRequestLoggingMiddleware_RedactsCredentials(t *testing.T) {
	req := httptest.NewRequest("GET", "/user/subscription?checkout=success&session_id=cs_live_secret&token=abc123", nil)

	out, _ := serveLogged(t, req, http.StatusOK)

	for _, leak := range []string{"cs_live_secret", "abc123"} {
		if strings.Contains(out, leak) {
			t.Errorf("log should not contain %q, got: %s", leak, out)
		}
	}
	if !strings.Contains(out, "checkout=success") {
		t.Errorf("log should keep harmless params, got: %s", out)
	}
}

func TestRequestLoggingMiddleware_SkipsHealthAndMetrics(t *testing.T) {
	for _, path := range []string{"/health", "/metrics"} {
		out, _ := serveLogged(t, httptest.NewRequest("GET", path, nil), http.StatusOK)
		if out != "" {
			t.Errorf("%s should not be logged, got: %s", path, out)
		}
	}
}

func TestSanitizePath(t *testing.T) {
	tests := []struct {
		path, query, want string
	}{
		{"/plans", "", "/plans"},
		{"/x", "a=1&b=2", "/x?a=1&b=2"},
		{"/x", "API_KEY=k&a=1", "/x?API_KEY=[REDACTED]&a=1"},
		{"/x", "novalue", "/x"},
	}
	for _, tt := range tests {
		if got := sanitizePath(tt.path, tt.query); got != tt.want {
			t.Errorf("sanitizePath(%q, %q) = %q, want %q", tt.path, tt.query, got, tt.want)
		}
	}
}
