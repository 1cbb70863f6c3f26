package biz

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"FuseGate/internal/conf"
	"FuseGate/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/durationpb"
)

// recordingRepo captures persistence calls for assertions.
type recordingRepo struct {
	mu       sync.Mutex
	appended []*model.Alert
	acked    []string
	fail     bool
}

func (r *recordingRepo) AppendAlert(_ context.Context, alert *model.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("database down")
	}
	r.appended = append(r.appended, alert)
	return nil
}

func (r *recordingRepo) MarkAcknowledged(_ context.Context, alertID, _ string, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("database down")
	}
	r.acked = append(r.acked, alertID)
	return nil
}

// recordingNotifier captures notification calls.
type recordingNotifier struct {
	mu     sync.Mutex
	alerts []*model.Alert
}

func (n *recordingNotifier) NotifyAlert(_ context.Context, alert *model.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, alert)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.alerts)
}

func newTestAlertMonitor(t *testing.T, opts ...AlertMonitorOption) (*AlertMonitor, *testClock) {
	t.Helper()
	clock := newTestClock()
	opts = append([]AlertMonitorOption{WithAlertClock(clock.Now)}, opts...)
	m, cleanup := NewAlertMonitor(nil, nil, nil, log.DefaultLogger, opts...)
	t.Cleanup(cleanup)
	return m, clock
}

func TestAlertMonitor_MetricsAccumulate(t *testing.T) {
	m, _ := newTestAlertMonitor(t)

	m.RecordRequest(true, 100*time.Millisecond)
	m.RecordRequest(false, 300*time.Millisecond)
	m.RecordTokenValidation(true)
	m.RecordTokenValidation(false)
	m.RecordRateLimitHit()
	m.RecordSecurityViolation()

	metrics := m.Metrics()
	assert.EqualValues(t, 2, metrics.TotalRequests)
	assert.EqualValues(t, 1, metrics.SuccessfulRequests)
	assert.EqualValues(t, 1, metrics.FailedRequests)
	assert.EqualValues(t, 2, metrics.TokenValidations)
	assert.EqualValues(t, 1, metrics.TokenValidationFailures)
	assert.EqualValues(t, 1, metrics.RateLimitHits)
	assert.EqualValues(t, 1, metrics.SecurityViolations)
	assert.InDelta(t, 200, metrics.AvgResponseTimeMs, 0.001)
}

func TestAlertMonitor_HighFailureRateFires(t *testing.T) {
	m, _ := newTestAlertMonitor(t)

	// 1 failure out of 4 requests = 25% > 20%.
	for i := 0; i < 3; i++ {
		m.RecordRequest(true, time.Millisecond)
	}
	m.RecordRequest(false, time.Millisecond)

	alerts := m.Alerts(false)
	require.Len(t, alerts, 1)
	assert.Equal(t, "high-failure-rate", alerts[0].RuleID)
	assert.Equal(t, model.AlertSeverityHigh, alerts[0].Severity)
	// The alert carries the metrics snapshot at firing time.
	assert.EqualValues(t, 4, alerts[0].Metrics.TotalRequests)
}

func TestAlertMonitor_CooldownSuppressesRefiring(t *testing.T) {
	m, clock := newTestAlertMonitor(t)

	for i := 0; i < 11; i++ {
		m.RecordRateLimitHit()
	}
	require.Len(t, m.Alerts(false), 1)

	// Condition still true inside the cooldown window: suppressed.
	clock.Advance(time.Minute)
	m.RecordRateLimitHit()
	assert.Len(t, m.Alerts(false), 1)

	// Past the 10 minute cooldown the rule re-arms.
	clock.Advance(10 * time.Minute)
	m.RecordRateLimitHit()
	assert.Len(t, m.Alerts(false), 2)
}

func TestAlertMonitor_AcknowledgementRearmsRule(t *testing.T) {
	m, clock := newTestAlertMonitor(t)

	for i := 0; i < 11; i++ {
		m.RecordRateLimitHit()
	}
	alerts := m.Alerts(false)
	require.Len(t, alerts, 1)

	require.NoError(t, m.AcknowledgeAlert(context.Background(), alerts[0].ID, "oncall"))

	// Still inside the cooldown window, but the alert is acknowledged.
	clock.Advance(time.Minute)
	m.RecordRateLimitHit()
	assert.Len(t, m.Alerts(false), 2)
}

func TestAlertMonitor_Acknowledge(t *testing.T) {
	m, _ := newTestAlertMonitor(t)

	for i := 0; i < 11; i++ {
		m.RecordRateLimitHit()
	}
	alerts := m.Alerts(false)
	require.Len(t, alerts, 1)

	require.NoError(t, m.AcknowledgeAlert(context.Background(), alerts[0].ID, "oncall"))

	acked := m.Alerts(false)
	require.Len(t, acked, 1)
	assert.True(t, acked[0].Acknowledged)
	assert.Equal(t, "oncall", acked[0].AcknowledgedBy)
	require.NotNil(t, acked[0].AcknowledgedAt)

	assert.Empty(t, m.Alerts(true), "unacked filter hides acknowledged alerts")
}

func TestAlertMonitor_AcknowledgeUnknownID(t *testing.T) {
	m, _ := newTestAlertMonitor(t)

	err := m.AcknowledgeAlert(context.Background(), "no-such-alert", "oncall")
	assert.ErrorIs(t, err, ErrAlertNotFound)
}

func TestAlertMonitor_CriticalNotifiedSynchronously(t *testing.T) {
	notifier := &recordingNotifier{}
	clock := newTestClock()
	m, cleanup := NewAlertMonitor(nil, nil, notifier, log.DefaultLogger, WithAlertClock(clock.Now))
	t.Cleanup(cleanup)

	for i := 0; i < 6; i++ {
		m.RecordSecurityViolation()
	}

	// security-violations is critical: delivery happens before the
	// recording call returns, no Eventually needed.
	require.Equal(t, 1, notifier.count())
	assert.Equal(t, model.AlertSeverityCritical, notifier.alerts[0].Severity)
}

func TestAlertMonitor_NonCriticalNotifiedAsync(t *testing.T) {
	notifier := &recordingNotifier{}
	clock := newTestClock()
	m, cleanup := NewAlertMonitor(nil, nil, notifier, log.DefaultLogger, WithAlertClock(clock.Now))
	t.Cleanup(cleanup)

	for i := 0; i < 11; i++ {
		m.RecordRateLimitHit()
	}

	assert.Eventually(t, func() bool { return notifier.count() == 1 },
		2*time.Second, 10*time.Millisecond)
}

func TestAlertMonitor_RepoPersistenceBestEffort(t *testing.T) {
	repo := &recordingRepo{fail: true}
	clock := newTestClock()
	m, cleanup := NewAlertMonitor(nil, repo, nil, log.DefaultLogger, WithAlertClock(clock.Now))
	t.Cleanup(cleanup)

	for i := 0; i < 11; i++ {
		m.RecordRateLimitHit()
	}

	// Persistence failed but the in-memory history is authoritative.
	assert.Len(t, m.Alerts(false), 1)
}

func TestAlertMonitor_RepoReceivesAlerts(t *testing.T) {
	repo := &recordingRepo{}
	clock := newTestClock()
	m, cleanup := NewAlertMonitor(nil, repo, nil, log.DefaultLogger, WithAlertClock(clock.Now))
	t.Cleanup(cleanup)

	for i := 0; i < 11; i++ {
		m.RecordRateLimitHit()
	}
	alerts := m.Alerts(false)
	require.Len(t, alerts, 1)
	require.NoError(t, m.AcknowledgeAlert(context.Background(), alerts[0].ID, "oncall"))

	repo.mu.Lock()
	defer repo.mu.Unlock()
	require.Len(t, repo.appended, 1)
	assert.Equal(t, alerts[0].ID, repo.appended[0].ID)
	assert.Equal(t, []string{alerts[0].ID}, repo.acked)
}

func TestAlertMonitor_ListenerAndDetach(t *testing.T) {
	m, clock := newTestAlertMonitor(t)

	var fired []*model.Alert
	detach := m.OnAlert(func(a *model.Alert) { fired = append(fired, a) })

	for i := 0; i < 11; i++ {
		m.RecordRateLimitHit()
	}
	require.Len(t, fired, 1)

	detach()
	clock.Advance(11 * time.Minute)
	m.RecordRateLimitHit()
	assert.Len(t, fired, 1, "detached listener must not fire")
}

func TestAlertMonitor_HealthStatus(t *testing.T) {
	m, _ := newTestAlertMonitor(t)
	assert.Equal(t, model.HealthStatusHealthy, m.Health().Status)

	for i := 0; i < 11; i++ {
		m.RecordRateLimitHit()
	}
	health := m.Health()
	assert.Equal(t, model.HealthStatusWarning, health.Status)
	assert.Equal(t, 1, health.ActiveAlerts)

	for i := 0; i < 6; i++ {
		m.RecordSecurityViolation()
	}
	health = m.Health()
	assert.Equal(t, model.HealthStatusCritical, health.Status)
	assert.Equal(t, 1, health.CriticalAlerts)

	// Acknowledging everything returns the monitor to healthy.
	for _, a := range m.Alerts(true) {
		require.NoError(t, m.AcknowledgeAlert(context.Background(), a.ID, "oncall"))
	}
	assert.Equal(t, model.HealthStatusHealthy, m.Health().Status)
}

func TestAlertMonitor_ResetMetricsKeepsAlerts(t *testing.T) {
	m, _ := newTestAlertMonitor(t)

	for i := 0; i < 11; i++ {
		m.RecordRateLimitHit()
	}
	require.Len(t, m.Alerts(false), 1)

	m.ResetMetrics()

	assert.Zero(t, m.Metrics().RateLimitHits)
	assert.Len(t, m.Alerts(false), 1, "alert history survives metric rollover")
}

func TestAlertMonitor_ClearAlerts(t *testing.T) {
	m, _ := newTestAlertMonitor(t)

	for i := 0; i < 11; i++ {
		m.RecordRateLimitHit()
	}
	require.NotEmpty(t, m.Alerts(false))

	m.ClearAlerts()
	assert.Empty(t, m.Alerts(false))
}

func TestNewAlertMonitor_CleanupStopsResetLoop(t *testing.T) {
	rc := &conf.Resilience{Alerts: &conf.Resilience_Alerts{
		MetricsWindow: durationpb.New(time.Hour),
	}}
	m, cleanup := NewAlertMonitor(rc, nil, nil, log.DefaultLogger)
	m.RecordRequest(true, 10*time.Millisecond)

	cleanup()
	// Safe to run again, shutdown paths may overlap.
	cleanup()
}

func TestAlertMonitor_CustomRules(t *testing.T) {
	rules := []model.AlertRule{{
		ID:        "any-request",
		Condition: func(m *model.AuthMetrics) bool { return m.TotalRequests > 0 },
		Severity:  model.AlertSeverityLow,
		Message:   "a request happened",
		Cooldown:  time.Hour,
	}}
	m, _ := newTestAlertMonitor(t, WithAlertRules(rules))

	m.RecordRequest(true, time.Millisecond)

	alerts := m.Alerts(false)
	require.Len(t, alerts, 1)
	assert.Equal(t, "any-request", alerts[0].RuleID)
}
