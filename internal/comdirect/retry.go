package comdirect

import (
	"math"
	"math/rand/v2"
	"time"
)

// RetryPolicy controls exponential backoff for transient failures.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool
}

// DefaultRetryPolicy retries a request three times in total.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Delay returns the wait before retry number attempt (zero based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	base := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt))
	capped := math.Min(base, float64(p.MaxDelay))
	if p.Jitter {
		jitterRange := capped * 0.1
		capped = capped - jitterRange + rand.Float64()*jitterRange*2.0
	}
	return time.Duration(capped)
}

func retryableStatus(code int) bool {
	return code == 408 || code == 429 || code >= 500
}
