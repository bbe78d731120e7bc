package models

import (
	"math"
	"time"
)

// RetryPolicy governs how the retry coordinator re-runs a failed task.
// RetryableErrors lists error categories (see executor package) that may be
// retried; an empty list retries everything.
type RetryPolicy struct {
	MaxAttempts       int           `json:"max_attempts"       validate:"min=1"`
	InitialDelay      time.Duration `json:"initial_delay"`
	MaxDelay          time.Duration `json:"max_delay"`
	BackoffMultiplier float64       `json:"backoff_multiplier"`
	RetryableErrors   []string      `json:"retryable_errors,omitempty"`
}

// DefaultRetryPolicy applies when a task definition omits its own policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		InitialDelay:      1 * time.Second,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// Delay returns how long to wait before attempt k+1, where k is the number of
// attempts already made (1-indexed): min(InitialDelay * Multiplier^(k-1), MaxDelay).
func (p RetryPolicy) Delay(attemptsMade int) time.Duration {
	if attemptsMade < 1 {
		attemptsMade = 1
	}

	multiplier := p.BackoffMultiplier
	if multiplier <= 0 {
		multiplier = 1
	}

	d := time.Duration(float64(p.InitialDelay) * math.Pow(multiplier, float64(attemptsMade-1)))
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}

	return d
}

// Retryable reports whether an error category is eligible for retry under
// this policy.
func (p RetryPolicy) Retryable(category string) bool {
	if len(p.RetryableErrors) == 0 {
		return true
	}

	for _, c := range p.RetryableErrors {
		if c == category {
			return true
		}
	}

	return false
}
