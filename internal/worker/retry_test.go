package worker

import (
	"testing"
	"time"

	"github.com/tbourn/go-feedback-pipeline/internal/classify"
)

func TestBackoff(t *testing.T) {
	p := RetryPolicy{Base: time.Second, Max: 10 * time.Second}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},
		{40, 10 * time.Second},
	}
	for _, tc := range tests {
		if got := p.Backoff(tc.attempt, nil); got != tc.want {
			t.Fatalf("Backoff(%d) = %v; want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestBackoff_Jitter(t *testing.T) {
	p := RetryPolicy{Base: 10 * time.Second, Max: time.Minute, Jitter: 0.2}

	p.Rand = func() float64 { return 0 }
	if got := p.Backoff(1, nil); got != 8*time.Second {
		t.Fatalf("low jitter = %v", got)
	}
	p.Rand = func() float64 { return 0.5 }
	if got := p.Backoff(1, nil); got != 10*time.Second {
		t.Fatalf("mid jitter = %v", got)
	}

	p.Rand = nil
	for i := 0; i < 100; i++ {
		got := p.Backoff(2, nil)
		if got < 16*time.Second || got > 24*time.Second {
			t.Fatalf("jittered backoff %v outside ±20%% of 20s", got)
		}
	}
}

func TestBackoff_JitterNeverExceedsMax(t *testing.T) {
	p := RetryPolicy{Base: time.Second, Max: time.Minute, Jitter: 0.2}
	p.Rand = func() float64 { return 0.999 }
	if got := p.Backoff(10, nil); got != time.Minute {
		t.Fatalf("capped backoff with high jitter = %v; want 1m", got)
	}
	p.Rand = func() float64 { return 0 }
	if got := p.Backoff(10, nil); got != 48*time.Second {
		t.Fatalf("capped backoff with low jitter = %v; want 48s", got)
	}
}

func TestBackoff_RetryAfterFloor(t *testing.T) {
	p := RetryPolicy{Base: time.Second, Max: 10 * time.Second}
	cause := &classify.Error{Kind: classify.KindRateLimited, RetryAfter: 30 * time.Second}
	if got := p.Backoff(1, cause); got != 30*time.Second {
		t.Fatalf("Backoff with Retry-After = %v; want 30s", got)
	}
	cause.RetryAfter = 500 * time.Millisecond
	if got := p.Backoff(2, cause); got != 2*time.Second {
		t.Fatalf("small Retry-After should not shorten backoff, got %v", got)
	}
}

func TestBackoff_ZeroPolicyUsesDefaults(t *testing.T) {
	var p RetryPolicy
	if got := p.Backoff(1, nil); got != DefaultRetryPolicy.Base {
		t.Fatalf("zero policy = %v", got)
	}
}
