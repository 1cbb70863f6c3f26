// Package model contains domain models shared between the biz and data layers.
package model

import "time"

// BreakerState represents the circuit breaker state.
type BreakerState string

const (
	// BreakerClosed passes calls through and counts failures.
	BreakerClosed BreakerState = "CLOSED"
	// BreakerOpen rejects calls without invoking the wrapped operation.
	BreakerOpen BreakerState = "OPEN"
	// BreakerHalfOpen allows probe traffic to test recovery.
	BreakerHalfOpen BreakerState = "HALF_OPEN"
)

// Breaker event type constants, used for observer notifications and audit trails.
const (
	BreakerEventStateChange = "STATE_CHANGE"
	BreakerEventSuccess     = "SUCCESS"
	BreakerEventFailure     = "FAILURE"
	BreakerEventRejected    = "REJECTED"
)

// BreakerStateChange describes one state transition of a named breaker.
type BreakerStateChange struct {
	Name   string       `json:"name"`
	From   BreakerState `json:"from"`
	To     BreakerState `json:"to"`
	At     time.Time    `json:"at"`
	Forced bool         `json:"forced,omitempty"`
}

// BreakerMetrics is a point-in-time snapshot of one breaker's counters.
// It is JSON-serializable for the /status endpoint.
type BreakerMetrics struct {
	Name              string       `json:"name"`
	State             BreakerState `json:"state"`
	FailureCount      int64        `json:"failure_count"`
	SuccessCount      int64        `json:"success_count"`
	TotalRequests     int64        `json:"total_requests"`
	TotalFailures     int64        `json:"total_failures"`
	TotalSuccesses    int64        `json:"total_successes"`
	RejectedRequests  int64        `json:"rejected_requests"`
	AvgResponseTimeMs float64      `json:"avg_response_time_ms"`
	LastFailureTime   time.Time    `json:"last_failure_time,omitempty"`
	LastStateChange   time.Time    `json:"last_state_change,omitempty"`

	// LastHealthCheck is nil until the first background probe completes.
	LastHealthCheck *HealthCheckResult `json:"last_health_check,omitempty"`
}

// HealthCheckResult is the outcome of one background health probe.
// A failing probe swallows its own error into this result so a bad
// dependency cannot crash the monitoring loop.
type HealthCheckResult struct {
	Healthy      bool          `json:"healthy"`
	ResponseTime time.Duration `json:"response_time"`
	Error        string        `json:"error,omitempty"`
	CheckedAt    time.Time     `json:"checked_at"`
}
