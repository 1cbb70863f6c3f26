package model

import "time"

// RateLimitResult is the outcome of one admission check.
// A disallowed result is not an error: callers decide how to respond,
// typically by returning a retryable 429 carrying ResetTime.
type RateLimitResult struct {
	Allowed   bool      `json:"allowed"`
	Remaining int32     `json:"remaining"`
	ResetTime time.Time `json:"reset_time"`
}

// RateLimitStats describes one action's limiter for status snapshots.
type RateLimitStats struct {
	Action      string        `json:"action"`
	Window      time.Duration `json:"window"`
	MaxRequests int32         `json:"max_requests"`
	ActiveKeys  int           `json:"active_keys"`
}
