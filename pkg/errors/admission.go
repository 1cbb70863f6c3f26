package errors

import (
	"fmt"
	"strconv"
	"time"

	kerrors "github.com/go-kratos/kratos/v2/errors"
)

// Admission rejection reasons. These are machine-readable so downstream
// retry logic can distinguish "back off" (rejections) from a genuine
// downstream failure.
const (
	// ReasonRateLimitExceeded marks a fixed-window limiter rejection (HTTP 429).
	ReasonRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	// ReasonCircuitOpen marks a breaker fail-fast rejection (HTTP 503).
	ReasonCircuitOpen = "CIRCUIT_OPEN"
)

// NewRateLimitExceeded creates a retryable 429 error for an over-limit
// request, carrying the window reset time as metadata.
func NewRateLimitExceeded(action, identifier string, resetTime time.Time) error {
	retryAfter := time.Until(resetTime)
	if retryAfter < 0 {
		retryAfter = 0
	}

	return kerrors.New(
		429,
		ReasonRateLimitExceeded,
		fmt.Sprintf("rate limit exceeded: action=%s identifier=%s retry_after=%ds",
			action, identifier, int64(retryAfter.Seconds())),
	).WithMetadata(map[string]string{
		"action":      action,
		"reset_time":  strconv.FormatInt(resetTime.UnixMilli(), 10),
		"retry_after": strconv.FormatInt(int64(retryAfter.Seconds()), 10),
	})
}

// NewCircuitOpen creates a 503 error for a fail-fast rejection by an open
// circuit breaker.
func NewCircuitOpen(name string) error {
	return kerrors.New(
		503,
		ReasonCircuitOpen,
		fmt.Sprintf("circuit breaker %q is open", name),
	).WithMetadata(map[string]string{
		"breaker": name,
	})
}

// IsRateLimitExceeded reports whether err is a limiter rejection.
func IsRateLimitExceeded(err error) bool {
	return kerrors.Reason(err) == ReasonRateLimitExceeded
}

// IsCircuitOpen reports whether err is a breaker fail-fast rejection.
func IsCircuitOpen(err error) bool {
	return kerrors.Reason(err) == ReasonCircuitOpen
}
