package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// HTTPClient calls a classification API with POST {BaseURL}/classify.
//
// Status mapping: 429 -> rate_limited (honoring Retry-After), 408 and 504
// -> timeout, other 5xx -> service_unavailable, 400 and 422 ->
// invalid_input. A JSON body of the form {"error":{"kind":...}} overrides
// the status-derived kind.
type HTTPClient struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

// NewHTTPClient returns a client with a transport-level timeout slightly
// above callTimeout; callers still bound each call with a context.
func NewHTTPClient(baseURL, apiKey string, callTimeout time.Duration) *HTTPClient {
	if callTimeout <= 0 {
		callTimeout = 20 * time.Second
	}
	return &HTTPClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: callTimeout + 5*time.Second},
	}
}

type errorBody struct {
	Error struct {
		Kind       Kind    `json:"kind"`
		Message    string  `json:"message"`
		RetryAfter float64 `json:"retry_after"`
	} `json:"error"`
}

// Classify implements Classifier.
func (c *HTTPClient) Classify(ctx context.Context, req Request) (*Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, &Error{Kind: KindInvalidInput, Err: err}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/classify", bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: KindInvalidInput, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return nil, transportError(ctx, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, transportError(ctx, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var out Result
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, &Error{Kind: KindInvalidResponse, Err: fmt.Errorf("decode response: %w", err)}
		}
		return &out, nil
	}
	return nil, statusError(resp, raw)
}

func statusError(resp *http.Response, raw []byte) *Error {
	e := &Error{Err: fmt.Errorf("classifier returned %d", resp.StatusCode)}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		e.Kind = KindRateLimited
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusGatewayTimeout:
		e.Kind = KindTimeout
	case resp.StatusCode >= 500:
		e.Kind = KindServiceUnavailable
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		e.Kind = KindInvalidInput
	default:
		// Auth and routing problems will not fix themselves between retries.
		e.Kind = KindInvalidResponse
	}

	var eb errorBody
	if json.Unmarshal(raw, &eb) == nil && eb.Error.Kind != "" {
		switch eb.Error.Kind {
		case KindRateLimited, KindTimeout, KindServiceUnavailable, KindInvalidInput, KindInvalidResponse:
			e.Kind = eb.Error.Kind
		}
		if eb.Error.Message != "" {
			e.Err = fmt.Errorf("classifier returned %d: %s", resp.StatusCode, eb.Error.Message)
		}
		if eb.Error.RetryAfter > 0 {
			e.RetryAfter = time.Duration(eb.Error.RetryAfter * float64(time.Second))
		}
	}
	if ra := retryAfter(resp.Header.Get("Retry-After")); ra > 0 {
		e.RetryAfter = ra
	}
	return e
}

// retryAfter parses delta-seconds or an HTTP date.
func retryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func transportError(ctx context.Context, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
		return &Error{Kind: KindTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Err: err}
	}
	return &Error{Kind: KindServiceUnavailable, Err: err}
}
