package biz

import (
	"fmt"
	"sync"
	"time"

	"FuseGate/internal/conf"
	"FuseGate/internal/model"

	"github.com/go-kratos/kratos/v2/log"
)

// Pool health thresholds. A pool crossing one of these gets a warning
// status; crossing more than two gets critical.
const (
	poolFailureRateThreshold = 0.10
	poolAcquisitionThreshold = 5 * time.Second
	poolUtilizationThreshold = 0.90
)

// recentEventCount is how many trailing events Status reports.
const recentEventCount = 20

// PoolMonitorOption customizes a PoolMonitor at construction.
type PoolMonitorOption func(*PoolMonitor)

// WithPoolClock overrides the monitor's time source for tests.
func WithPoolClock(now func() time.Time) PoolMonitorOption {
	return func(m *PoolMonitor) { m.now = now }
}

// PoolMonitor observes connection pool behaviour: it keeps running
// counters, incremental timing averages and a bounded event log, and
// classifies pool health against fixed thresholds.
//
// Averages are incremental means over all samples since the last reset,
// not windowed averages. The periodic reset (metric rollover) keeps them
// from fossilizing around ancient traffic.
type PoolMonitor struct {
	mu sync.Mutex

	acquired int64
	released int64
	failed   int64
	timeouts int64

	active  int32
	idle    int32
	total   int32
	waiting int32

	avgAcquisitionMs float64
	acquisitionCount int64
	avgQueryMs       float64
	queryCount       int64

	events    []model.PoolEvent
	maxEvents int
	lastReset time.Time

	now    func() time.Time
	logger *log.Helper

	stop    chan struct{}
	resetWG sync.WaitGroup
	closed  bool
}

// NewPoolMonitor creates the monitor. MaxEvents defaults to 1000; a
// positive ResetInterval starts the periodic rollover goroutine. The
// returned cleanup stops that goroutine.
func NewPoolMonitor(rc *conf.Resilience, logger log.Logger, opts ...PoolMonitorOption) (*PoolMonitor, func()) {
	maxEvents := 1000
	var resetInterval time.Duration
	if rc != nil && rc.Pool != nil {
		if rc.Pool.MaxEvents > 0 {
			maxEvents = int(rc.Pool.MaxEvents)
		}
		if rc.Pool.ResetInterval != nil {
			resetInterval = rc.Pool.ResetInterval.AsDuration()
		}
	}

	m := &PoolMonitor{
		maxEvents: maxEvents,
		now:       time.Now,
		logger:    log.NewHelper(logger),
		stop:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.lastReset = m.now()

	if resetInterval > 0 {
		m.resetWG.Add(1)
		go m.resetLoop(resetInterval)
	}
	return m, m.Close
}

// RecordAcquisition records a successful connection acquisition and folds
// the acquisition time into the incremental mean.
func (m *PoolMonitor) RecordAcquisition(connectionID string, acquisitionTime time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.acquired++
	m.active++
	m.acquisitionCount++
	m.avgAcquisitionMs = incrementalMean(m.avgAcquisitionMs, float64(acquisitionTime.Milliseconds()), m.acquisitionCount)
	m.appendEventLocked(model.PoolEvent{
		Type:         model.PoolEventAcquire,
		ConnectionID: connectionID,
		Duration:     acquisitionTime,
		Timestamp:    m.now(),
	})
}

// RecordRelease records a connection release and folds the connection's
// query time into the incremental mean.
func (m *PoolMonitor) RecordRelease(connectionID string, queryTime time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.released++
	if m.active > 0 {
		m.active--
	}
	m.queryCount++
	m.avgQueryMs = incrementalMean(m.avgQueryMs, float64(queryTime.Milliseconds()), m.queryCount)
	m.appendEventLocked(model.PoolEvent{
		Type:         model.PoolEventRelease,
		ConnectionID: connectionID,
		Duration:     queryTime,
		Timestamp:    m.now(),
	})
}

// RecordFailure records a failed connection attempt.
func (m *PoolMonitor) RecordFailure(connectionID string, err error) {
	m.mu.Lock()
	m.failed++
	event := model.PoolEvent{
		Type:         model.PoolEventFailure,
		ConnectionID: connectionID,
		Timestamp:    m.now(),
	}
	if err != nil {
		event.Error = err.Error()
	}
	m.appendEventLocked(event)
	m.mu.Unlock()

	m.logger.Warnw("msg", "pool connection failure",
		"connection_id", connectionID,
		"error", err)
}

// RecordTimeout records an acquisition that gave up waiting.
func (m *PoolMonitor) RecordTimeout(connectionID string, waited time.Duration) {
	m.mu.Lock()
	m.timeouts++
	m.appendEventLocked(model.PoolEvent{
		Type:         model.PoolEventTimeout,
		ConnectionID: connectionID,
		Duration:     waited,
		Timestamp:    m.now(),
	})
	m.mu.Unlock()

	m.logger.Warnw("msg", "pool acquisition timeout",
		"connection_id", connectionID,
		"waited_ms", waited.Milliseconds())
}

// UpdateGauges sets the externally observed pool gauges (sizes come from
// the pool itself, not from event counting).
func (m *PoolMonitor) UpdateGauges(active, idle, total, waiting int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = active
	m.idle = idle
	m.total = total
	m.waiting = waiting
}

// appendEventLocked appends to the bounded event log, evicting the oldest
// entry when full. Caller holds m.mu.
func (m *PoolMonitor) appendEventLocked(e model.PoolEvent) {
	if len(m.events) >= m.maxEvents {
		m.events = m.events[1:]
	}
	m.events = append(m.events, e)
}

// incrementalMean folds one sample into a running mean without keeping
// the samples: mean' = mean + (sample - mean) / n.
func incrementalMean(mean, sample float64, n int64) float64 {
	if n <= 1 {
		return sample
	}
	return mean + (sample-mean)/float64(n)
}

// Metrics returns a snapshot of counters, gauges and averages.
func (m *PoolMonitor) Metrics() model.PoolMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.metricsLocked()
}

func (m *PoolMonitor) metricsLocked() model.PoolMetrics {
	return model.PoolMetrics{
		AcquiredConnections:  m.acquired,
		ReleasedConnections:  m.released,
		FailedConnections:    m.failed,
		TimeoutCount:         m.timeouts,
		ActiveConnections:    m.active,
		IdleConnections:      m.idle,
		TotalConnections:     m.total,
		WaitingRequests:      m.waiting,
		AvgAcquisitionTimeMs: m.avgAcquisitionMs,
		AvgQueryTimeMs:       m.avgQueryMs,
		LastReset:            m.lastReset,
	}
}

// Health evaluates the current metrics against the pool thresholds.
func (m *PoolMonitor) Health() model.PoolHealth {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.healthLocked()
}

func (m *PoolMonitor) healthLocked() model.PoolHealth {
	health := model.PoolHealth{
		Status:          model.HealthStatusHealthy,
		Issues:          []string{},
		Recommendations: []string{},
	}

	completed := m.acquired + m.released
	if completed > 0 {
		failureRate := float64(m.failed) / float64(completed)
		if failureRate > poolFailureRateThreshold {
			health.Issues = append(health.Issues,
				fmt.Sprintf("high connection failure rate: %.1f%%", failureRate*100))
			health.Recommendations = append(health.Recommendations,
				"check database connectivity and credentials")
		}
	}

	if m.acquisitionCount > 0 && m.avgAcquisitionMs > float64(poolAcquisitionThreshold.Milliseconds()) {
		health.Issues = append(health.Issues,
			fmt.Sprintf("slow connection acquisition: %.0fms average", m.avgAcquisitionMs))
		health.Recommendations = append(health.Recommendations,
			"increase pool size or investigate connection contention")
	}

	if m.total > 0 {
		utilization := float64(m.active) / float64(m.total)
		if utilization > poolUtilizationThreshold {
			health.Issues = append(health.Issues,
				fmt.Sprintf("pool near capacity: %.0f%% utilization", utilization*100))
			health.Recommendations = append(health.Recommendations,
				"increase max pool size or reduce connection hold time")
		}
	}

	switch {
	case len(health.Issues) > 2:
		health.Status = model.HealthStatusCritical
	case len(health.Issues) > 0:
		health.Status = model.HealthStatusWarning
	}
	return health
}

// Status returns metrics, health and the trailing events in one snapshot.
func (m *PoolMonitor) Status() model.PoolStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := len(m.events) - recentEventCount
	if start < 0 {
		start = 0
	}
	recent := make([]model.PoolEvent, len(m.events)-start)
	copy(recent, m.events[start:])

	return model.PoolStatus{
		Metrics:      m.metricsLocked(),
		Health:       m.healthLocked(),
		RecentEvents: recent,
	}
}

// Events returns a copy of the full event log, oldest first.
func (m *PoolMonitor) Events() []model.PoolEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	events := make([]model.PoolEvent, len(m.events))
	copy(events, m.events)
	return events
}

// Reset zeroes all counters, averages and the event log. Gauges are kept:
// they reflect the pool's current shape, not history.
func (m *PoolMonitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.acquired = 0
	m.released = 0
	m.failed = 0
	m.timeouts = 0
	m.avgAcquisitionMs = 0
	m.acquisitionCount = 0
	m.avgQueryMs = 0
	m.queryCount = 0
	m.events = nil
	m.lastReset = m.now()
}

func (m *PoolMonitor) resetLoop(interval time.Duration) {
	defer m.resetWG.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.Reset()
			m.logger.Debug("pool metrics rolled over")
		}
	}
}

// Close stops the periodic reset goroutine. Safe to call more than once.
func (m *PoolMonitor) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()
	close(m.stop)
	m.resetWG.Wait()
}
