package model

import "time"

// Pool event type constants.
const (
	PoolEventAcquire = "acquire"
	PoolEventRelease = "release"
	PoolEventFailure = "failure"
	PoolEventTimeout = "timeout"
)

// HealthStatus classifies a health evaluation.
type HealthStatus string

const (
	HealthStatusHealthy  HealthStatus = "healthy"
	HealthStatusWarning  HealthStatus = "warning"
	HealthStatusCritical HealthStatus = "critical"
)

// PoolEvent is one entry in the bounded pool event log.
type PoolEvent struct {
	Type         string        `json:"type"`
	ConnectionID string        `json:"connection_id"`
	Duration     time.Duration `json:"duration,omitempty"`
	Error        string        `json:"error,omitempty"`
	Timestamp    time.Time     `json:"timestamp"`
}

// PoolMetrics is a snapshot of connection pool counters and gauges.
// Averages use an incremental mean, not a windowed one.
type PoolMetrics struct {
	AcquiredConnections  int64     `json:"acquired_connections"`
	ReleasedConnections  int64     `json:"released_connections"`
	FailedConnections    int64     `json:"failed_connections"`
	TimeoutCount         int64     `json:"timeout_count"`
	ActiveConnections    int32     `json:"active_connections"`
	IdleConnections      int32     `json:"idle_connections"`
	TotalConnections     int32     `json:"total_connections"`
	WaitingRequests      int32     `json:"waiting_requests"`
	AvgAcquisitionTimeMs float64   `json:"avg_acquisition_time_ms"`
	AvgQueryTimeMs       float64   `json:"avg_query_time_ms"`
	LastReset            time.Time `json:"last_reset"`
}

// PoolHealth is the result of evaluating pool metrics against health thresholds.
type PoolHealth struct {
	Status          HealthStatus `json:"status"`
	Issues          []string     `json:"issues"`
	Recommendations []string     `json:"recommendations"`
}

// PoolStatus combines metrics, health evaluation and the recent event log
// for the status endpoint.
type PoolStatus struct {
	Metrics      PoolMetrics `json:"metrics"`
	Health       PoolHealth  `json:"health"`
	RecentEvents []PoolEvent `json:"recent_events"`
}
