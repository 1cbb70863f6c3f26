package model

import "time"

// AlertSeverity represents the severity of an alert.
type AlertSeverity string

const (
	AlertSeverityLow      AlertSeverity = "low"
	AlertSeverityMedium   AlertSeverity = "medium"
	AlertSeverityHigh     AlertSeverity = "high"
	AlertSeverityCritical AlertSeverity = "critical"
)

// AuthMetrics accumulates request-handling counters between periodic resets.
type AuthMetrics struct {
	TotalRequests           int64     `json:"total_requests"`
	SuccessfulRequests      int64     `json:"successful_requests"`
	FailedRequests          int64     `json:"failed_requests"`
	TokenValidations        int64     `json:"token_validations"`
	TokenValidationFailures int64     `json:"token_validation_failures"`
	RateLimitHits           int64     `json:"rate_limit_hits"`
	SecurityViolations      int64     `json:"security_violations"`
	AvgResponseTimeMs       float64   `json:"avg_response_time_ms"`
	LastResetTime           time.Time `json:"last_reset_time"`
}

// AlertRule is a declarative threshold rule evaluated after every metrics
// mutation. Condition is a predicate over the current metrics snapshot.
type AlertRule struct {
	ID        string                  `json:"id"`
	Condition func(*AuthMetrics) bool `json:"-"`
	Severity  AlertSeverity           `json:"severity"`
	Message   string                  `json:"message"`
	Cooldown  time.Duration           `json:"cooldown"`
}

// Alert is a materialized rule firing. Alerts are append-only: the only
// permitted mutation is acknowledgement.
type Alert struct {
	ID             string        `json:"id"`
	RuleID         string        `json:"rule_id"`
	Timestamp      time.Time     `json:"timestamp"`
	Severity       AlertSeverity `json:"severity"`
	Message        string        `json:"message"`
	Metrics        AuthMetrics   `json:"metrics"`
	Acknowledged   bool          `json:"acknowledged"`
	AcknowledgedBy string        `json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time    `json:"acknowledged_at,omitempty"`
}

// MonitorHealth summarizes the alert monitor for health endpoints.
type MonitorHealth struct {
	Status         HealthStatus `json:"status"`
	ActiveAlerts   int          `json:"active_alerts"`
	CriticalAlerts int          `json:"critical_alerts"`
	Metrics        AuthMetrics  `json:"metrics"`
}
