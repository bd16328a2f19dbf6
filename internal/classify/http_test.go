package classify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tbourn/go-feedback-pipeline/internal/domain"
)

func TestHTTPClient_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/classify" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer k" {
			t.Errorf("missing bearer token")
		}
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Content != "slow app" || req.Rating == nil || *req.Rating != 2 {
			t.Errorf("unexpected request %+v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"sentiment":"negative","sentiment_score":-0.6,"categories":["performance"],"emotions":{"frustration":0.8}}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL+"/", "k", time.Second)
	res, err := c.Classify(context.Background(), Request{Content: "slow app", Rating: intp(2), Language: "en"})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.Sentiment != domain.SentimentNegative || res.SentimentScore != -0.6 || res.Urgency != nil {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(res.Categories) != 1 || res.Emotions["frustration"] != 0.8 {
		t.Fatalf("unexpected outputs %+v", res)
	}
}

func TestHTTPClient_StatusMapping(t *testing.T) {
	tests := []struct {
		status int
		header string
		body   string
		kind   Kind
		after  time.Duration
	}{
		{http.StatusTooManyRequests, "3", "", KindRateLimited, 3 * time.Second},
		{http.StatusRequestTimeout, "", "", KindTimeout, 0},
		{http.StatusGatewayTimeout, "", "", KindTimeout, 0},
		{http.StatusBadGateway, "", "", KindServiceUnavailable, 0},
		{http.StatusServiceUnavailable, "", "", KindServiceUnavailable, 0},
		{http.StatusBadRequest, "", "", KindInvalidInput, 0},
		{http.StatusUnprocessableEntity, "", "", KindInvalidInput, 0},
		{http.StatusUnauthorized, "", "", KindInvalidResponse, 0},
		{http.StatusInternalServerError, "", `{"error":{"kind":"rate_limited","retry_after":1.5}}`, KindRateLimited, 1500 * time.Millisecond},
	}
	for _, tc := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tc.header != "" {
				w.Header().Set("Retry-After", tc.header)
			}
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte(tc.body))
		}))
		_, err := NewHTTPClient(srv.URL, "", time.Second).Classify(context.Background(), Request{Content: "x"})
		srv.Close()

		var ce *Error
		if !errors.As(err, &ce) {
			t.Fatalf("%d: expected *Error, got %v", tc.status, err)
		}
		if ce.Kind != tc.kind || ce.RetryAfter != tc.after {
			t.Fatalf("%d: got kind=%s after=%v; want %s %v", tc.status, ce.Kind, ce.RetryAfter, tc.kind, tc.after)
		}
	}
}

func TestHTTPClient_BadJSONIsInvalidResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL, "", time.Second).Classify(context.Background(), Request{Content: "x"})
	var ce *Error
	if !errors.As(err, &ce) || ce.Kind != KindInvalidResponse {
		t.Fatalf("expected invalid_response, got %v", err)
	}
}

func TestHTTPClient_DeadlineIsTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := NewHTTPClient(srv.URL, "", time.Second).Classify(ctx, Request{Content: "x"})
	var ce *Error
	if !errors.As(err, &ce) || ce.Kind != KindTimeout || !ce.Retryable() {
		t.Fatalf("expected retryable timeout, got %v", err)
	}
}

func TestHTTPClient_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewHTTPClient(url, "", time.Second).Classify(context.Background(), Request{Content: "x"})
	var ce *Error
	if !errors.As(err, &ce) || ce.Kind != KindServiceUnavailable {
		t.Fatalf("expected service_unavailable, got %v", err)
	}
}
