package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func captureLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })
	log.Logger = zerolog.New(&buf)
	return &buf
}

func TestRequestID_GenerateAndPropagate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/rid", func(c *gin.Context) {
		if v, ok := c.Get(requestIDKey); !ok || v == "" {
			t.Fatalf("requestID not set in context")
		}
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rid", nil))
	if w.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected generated %s header", requestIDHeader)
	}

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/rid", nil)
	req.Header.Set(strings.ToLower(requestIDHeader), "abc-123")
	r.ServeHTTP(w, req)
	if got := w.Header().Get(requestIDHeader); got != "abc-123" {
		t.Fatalf("expected propagated request id, got %q", got)
	}
}

func TestLogger_LevelsAndPathFallback(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID(), Logger())
	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "hello") })
	r.GET("/err", func(c *gin.Context) {
		_ = c.Error(errSentinel{})
		c.Status(http.StatusBadRequest)
	})

	for _, path := range []string{"/ok", "/missing", "/err"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	logs := buf.String()
	if !strings.Contains(logs, `"level":"info"`) || !strings.Contains(logs, `"path":"/ok"`) {
		t.Fatalf("expected info log with route path, got:\n%s", logs)
	}
	if !strings.Contains(logs, `"level":"warn"`) || !strings.Contains(logs, `"path":"/missing"`) {
		t.Fatalf("expected warn log with raw path fallback, got:\n%s", logs)
	}
	if !strings.Contains(logs, `"level":"error"`) {
		t.Fatalf("expected error log, got:\n%s", logs)
	}
}

type errSentinel struct{}

func (errSentinel) Error() string { return "boom" }

func TestLogger_TenantAndProviderFields(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID(), Logger())
	r.POST("/webhooks/:provider/:tenantId", func(c *gin.Context) {
		LoggerFrom(c).Info().Msg("inside")
		c.Status(http.StatusAccepted)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/webhooks/zendesk/acme", nil))

	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("bad log line %q: %v", line, err)
		}
		if m["tenant_id"] != "acme" || m["provider"] != "zendesk" {
			t.Fatalf("missing tenant/provider fields: %v", m)
		}
	}
}

func TestRecovery_PanicsToJSON500AndLogs(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID(), Logger(), Recovery())
	r.GET("/panic", func(c *gin.Context) { panic("kaboom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 from Recovery, got %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid json body: %v", err)
	}
	if body["code"] != "internal_error" || body["request_id"] == "" {
		t.Fatalf("unexpected body: %v", body)
	}
	if !strings.Contains(buf.String(), "panic recovered") {
		t.Fatalf("expected panic log, got:\n%s", buf.String())
	}
}

func TestRecovery_PanicAfterWrite_NoJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	_ = captureLogger(t)

	r := gin.New()
	r.Use(RequestID(), Recovery())
	r.GET("/late", func(c *gin.Context) {
		c.String(http.StatusOK, "partial-body")
		panic("late kaboom")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/late", nil))
	if strings.Contains(w.Body.String(), "internal_error") {
		t.Fatalf("expected no JSON error body after write; got %q", w.Body.String())
	}
}

func TestLoggerFrom_FallbackAndRequestScoped(t *testing.T) {
	gin.SetMode(gin.TestMode)

	buf := captureLogger(t)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/use", func(c *gin.Context) {
		LoggerFrom(c).Info().Msg("custom")
		c.Status(http.StatusOK)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/use", nil))
	if !strings.Contains(buf.String(), `"message":"custom"`) || strings.Contains(buf.String(), `"request_id"`) {
		t.Fatalf("fallback logger output unexpected: %s", buf.String())
	}

	buf = captureLogger(t)
	r = gin.New()
	r.Use(RequestID(), Logger())
	r.GET("/use", func(c *gin.Context) {
		LoggerFrom(c).Info().Msg("custom2")
		c.Status(http.StatusOK)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/use", nil))
	if !strings.Contains(buf.String(), `"request_id"`) {
		t.Fatalf("expected request-scoped logger to include request_id")
	}
}

func TestHelpers_asString_and_truncate(t *testing.T) {
	if asString("x") != "x" || asString(123) != "" {
		t.Fatalf("asString failed")
	}
	if truncate("hello", 10) != "hello" || truncate("abc", 0) != "abc" {
		t.Fatalf("truncate no-op failed")
	}
	if got := truncate("abcdefgh", 5); got != "abcde…" {
		t.Fatalf("truncate result = %q", got)
	}
}
