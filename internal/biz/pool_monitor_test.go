package biz

import (
	"errors"
	"testing"
	"time"

	"FuseGate/internal/conf"
	"FuseGate/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/durationpb"
)

func newTestPoolMonitor(t *testing.T, maxEvents int32) *PoolMonitor {
	t.Helper()
	rc := &conf.Resilience{Pool: &conf.Resilience_Pool{MaxEvents: maxEvents}}
	m, cleanup := NewPoolMonitor(rc, log.DefaultLogger)
	t.Cleanup(cleanup)
	return m
}

func TestPoolMonitor_IncrementalAverage(t *testing.T) {
	m := newTestPoolMonitor(t, 100)

	m.RecordAcquisition("c1", 100*time.Millisecond)
	m.RecordAcquisition("c2", 300*time.Millisecond)

	metrics := m.Metrics()
	assert.InDelta(t, 200, metrics.AvgAcquisitionTimeMs, 0.001)
	assert.EqualValues(t, 2, metrics.AcquiredConnections)
	assert.EqualValues(t, 2, metrics.ActiveConnections)
}

func TestPoolMonitor_QueryTimeAverage(t *testing.T) {
	m := newTestPoolMonitor(t, 100)

	m.RecordAcquisition("c1", time.Millisecond)
	m.RecordRelease("c1", 50*time.Millisecond)
	m.RecordAcquisition("c2", time.Millisecond)
	m.RecordRelease("c2", 150*time.Millisecond)

	metrics := m.Metrics()
	assert.InDelta(t, 100, metrics.AvgQueryTimeMs, 0.001)
	assert.EqualValues(t, 2, metrics.ReleasedConnections)
	assert.Zero(t, metrics.ActiveConnections)
}

func TestPoolMonitor_EventLogEviction(t *testing.T) {
	m := newTestPoolMonitor(t, 3)

	m.RecordAcquisition("c1", time.Millisecond)
	m.RecordAcquisition("c2", time.Millisecond)
	m.RecordAcquisition("c3", time.Millisecond)
	m.RecordAcquisition("c4", time.Millisecond)

	events := m.Events()
	require.Len(t, events, 3)
	// Oldest entry (c1) was evicted.
	assert.Equal(t, "c2", events[0].ConnectionID)
	assert.Equal(t, "c4", events[2].ConnectionID)
}

func TestPoolMonitor_HealthyByDefault(t *testing.T) {
	m := newTestPoolMonitor(t, 100)

	health := m.Health()
	assert.Equal(t, model.HealthStatusHealthy, health.Status)
	assert.Empty(t, health.Issues)
}

func TestPoolMonitor_WarnsOnFailureRate(t *testing.T) {
	m := newTestPoolMonitor(t, 100)

	for i := 0; i < 8; i++ {
		m.RecordAcquisition("c", time.Millisecond)
	}
	m.RecordFailure("c", errors.New("connection refused"))
	m.RecordFailure("c", errors.New("connection refused"))

	health := m.Health()
	assert.Equal(t, model.HealthStatusWarning, health.Status)
	require.Len(t, health.Issues, 1)
	assert.Contains(t, health.Issues[0], "failure rate")
	assert.NotEmpty(t, health.Recommendations)
}

func TestPoolMonitor_FailureRateOverCompletedWork(t *testing.T) {
	m := newTestPoolMonitor(t, 100)

	// 1 failure against 8 acquisitions + 8 releases is 6.25%, under the
	// 10% threshold.
	for i := 0; i < 8; i++ {
		m.RecordAcquisition("c", time.Millisecond)
		m.RecordRelease("c", time.Millisecond)
	}
	m.RecordFailure("c", errors.New("connection refused"))

	health := m.Health()
	assert.Equal(t, model.HealthStatusHealthy, health.Status)
	assert.Empty(t, health.Issues)

	// One more failure pushes it to 2/16 = 12.5%.
	m.RecordFailure("c", errors.New("connection refused"))

	health = m.Health()
	assert.Equal(t, model.HealthStatusWarning, health.Status)
	require.Len(t, health.Issues, 1)
	assert.Contains(t, health.Issues[0], "failure rate")
}

func TestPoolMonitor_WarnsOnSlowAcquisition(t *testing.T) {
	m := newTestPoolMonitor(t, 100)

	m.RecordAcquisition("c1", 6*time.Second)

	health := m.Health()
	assert.Equal(t, model.HealthStatusWarning, health.Status)
	require.Len(t, health.Issues, 1)
	assert.Contains(t, health.Issues[0], "slow connection acquisition")
}

func TestPoolMonitor_WarnsOnUtilization(t *testing.T) {
	m := newTestPoolMonitor(t, 100)

	m.UpdateGauges(19, 1, 20, 0)

	health := m.Health()
	assert.Equal(t, model.HealthStatusWarning, health.Status)
	require.Len(t, health.Issues, 1)
	assert.Contains(t, health.Issues[0], "capacity")
}

func TestPoolMonitor_CriticalWhenManyIssues(t *testing.T) {
	m := newTestPoolMonitor(t, 100)

	// Trip all three thresholds at once.
	m.RecordAcquisition("c1", 6*time.Second)
	m.RecordFailure("c1", errors.New("refused"))
	m.UpdateGauges(19, 1, 20, 0)

	health := m.Health()
	assert.Equal(t, model.HealthStatusCritical, health.Status)
	assert.Len(t, health.Issues, 3)
}

func TestPoolMonitor_TimeoutCounted(t *testing.T) {
	m := newTestPoolMonitor(t, 100)

	m.RecordTimeout("c1", 2*time.Second)

	metrics := m.Metrics()
	assert.EqualValues(t, 1, metrics.TimeoutCount)

	events := m.Events()
	require.Len(t, events, 1)
	assert.Equal(t, model.PoolEventTimeout, events[0].Type)
}

func TestPoolMonitor_ResetPreservesGauges(t *testing.T) {
	m := newTestPoolMonitor(t, 100)

	m.RecordAcquisition("c1", 100*time.Millisecond)
	m.RecordFailure("c1", errors.New("refused"))
	m.UpdateGauges(3, 2, 5, 1)

	m.Reset()

	metrics := m.Metrics()
	assert.Zero(t, metrics.AcquiredConnections)
	assert.Zero(t, metrics.FailedConnections)
	assert.Zero(t, metrics.AvgAcquisitionTimeMs)
	assert.Empty(t, m.Events())
	// Gauges describe the pool's current shape, not history.
	assert.EqualValues(t, 3, metrics.ActiveConnections)
	assert.EqualValues(t, 5, metrics.TotalConnections)
}

func TestNewPoolMonitor_CleanupStopsResetLoop(t *testing.T) {
	rc := &conf.Resilience{Pool: &conf.Resilience_Pool{
		MaxEvents:     100,
		ResetInterval: durationpb.New(time.Hour),
	}}
	m, cleanup := NewPoolMonitor(rc, log.DefaultLogger)
	m.RecordAcquisition("c1", time.Millisecond)

	cleanup()
	// Safe to run again, shutdown paths may overlap.
	cleanup()
}

func TestPoolMonitor_StatusTrailingEvents(t *testing.T) {
	m := newTestPoolMonitor(t, 100)

	for i := 0; i < 30; i++ {
		m.RecordAcquisition("c", time.Millisecond)
	}

	status := m.Status()
	assert.Len(t, status.RecentEvents, recentEventCount)
	assert.EqualValues(t, 30, status.Metrics.AcquiredConnections)
}
