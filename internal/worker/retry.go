package worker

import (
	"math/rand/v2"
	"time"

	"github.com/tbourn/go-feedback-pipeline/internal/classify"
)

// RetryPolicy computes the delay before the next classification attempt.
type RetryPolicy struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64 // fraction of the delay, e.g. 0.2 for ±20%

	// Rand returns a value in [0,1); nil uses math/rand.
	Rand func() float64
}

// DefaultRetryPolicy is used when a Pool has a zero policy.
var DefaultRetryPolicy = RetryPolicy{Base: 2 * time.Second, Max: 2 * time.Minute, Jitter: 0.2}

// Backoff returns the delay after the given attempt (1-based):
// min(Max, Base*2^(attempt-1)) with ±Jitter applied and capped at Max again,
// never less than the classifier's Retry-After hint.
func (p RetryPolicy) Backoff(attempt int, cause *classify.Error) time.Duration {
	if p.Base <= 0 {
		p.Base = DefaultRetryPolicy.Base
	}
	if p.Max <= 0 {
		p.Max = DefaultRetryPolicy.Max
	}
	if attempt < 1 {
		attempt = 1
	}

	d := p.Base
	for i := 1; i < attempt && d < p.Max; i++ {
		d *= 2
	}
	if d > p.Max {
		d = p.Max
	}

	if p.Jitter > 0 {
		r := rand.Float64
		if p.Rand != nil {
			r = p.Rand
		}
		d = time.Duration(float64(d) * (1 + p.Jitter*(2*r()-1)))
		if d > p.Max {
			d = p.Max
		}
	}
	if cause != nil && cause.RetryAfter > d {
		d = cause.RetryAfter
	}
	if d < 0 {
		d = 0
	}
	return d
}
