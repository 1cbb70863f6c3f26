package biz

import (
	"context"
	"fmt"
	"sync"
	"time"

	"FuseGate/internal/conf"
	"FuseGate/internal/model"

	"github.com/go-kratos/kratos/v2/log"
)

// AlertRepo persists alert history. Persistence is best-effort: a failing
// repo is logged and the in-memory history remains authoritative.
type AlertRepo interface {
	AppendAlert(ctx context.Context, alert *model.Alert) error
	MarkAcknowledged(ctx context.Context, alertID, actor string, at time.Time) error
}

// AlertNotifier delivers alerts to an external channel (webhook). Critical
// alerts are delivered synchronously from the recording call; everything
// else is fire-and-forget.
type AlertNotifier interface {
	NotifyAlert(ctx context.Context, alert *model.Alert) error
}

// repoTimeout bounds best-effort persistence and notification calls made
// from the recording path.
const repoTimeout = 5 * time.Second

// ErrAlertNotFound is returned when acknowledging an unknown alert ID.
var ErrAlertNotFound = fmt.Errorf("alert not found")

// DefaultAlertRules returns the built-in rule set evaluated after every
// metrics mutation.
func DefaultAlertRules() []model.AlertRule {
	return []model.AlertRule{
		{
			ID: "high-failure-rate",
			Condition: func(m *model.AuthMetrics) bool {
				return m.TotalRequests > 0 &&
					float64(m.FailedRequests)/float64(m.TotalRequests) > 0.20
			},
			Severity: model.AlertSeverityHigh,
			Message:  "request failure rate above 20%",
			Cooldown: 5 * time.Minute,
		},
		{
			ID: "security-violations",
			Condition: func(m *model.AuthMetrics) bool {
				return m.SecurityViolations > 5
			},
			Severity: model.AlertSeverityCritical,
			Message:  "security violation count above threshold",
			Cooldown: 2 * time.Minute,
		},
		{
			ID: "rate-limit-pressure",
			Condition: func(m *model.AuthMetrics) bool {
				return m.RateLimitHits > 10
			},
			Severity: model.AlertSeverityMedium,
			Message:  "elevated rate limit rejections",
			Cooldown: 10 * time.Minute,
		},
		{
			ID: "slow-responses",
			Condition: func(m *model.AuthMetrics) bool {
				return m.AvgResponseTimeMs > 2000
			},
			Severity: model.AlertSeverityMedium,
			Message:  "average response time above 2000ms",
			Cooldown: 10 * time.Minute,
		},
		{
			ID: "token-validation-failures",
			Condition: func(m *model.AuthMetrics) bool {
				return m.TokenValidations > 0 &&
					float64(m.TokenValidationFailures)/float64(m.TokenValidations) > 0.15
			},
			Severity: model.AlertSeverityHigh,
			Message:  "token validation failure rate above 15%",
			Cooldown: 5 * time.Minute,
		},
	}
}

// AlertMonitorOption customizes an AlertMonitor at construction.
type AlertMonitorOption func(*AlertMonitor)

// WithAlertClock overrides the monitor's time source for tests.
func WithAlertClock(now func() time.Time) AlertMonitorOption {
	return func(m *AlertMonitor) { m.now = now }
}

// WithAlertRules replaces the default rule set.
func WithAlertRules(rules []model.AlertRule) AlertMonitorOption {
	return func(m *AlertMonitor) { m.rules = rules }
}

// AlertMonitor accumulates request-handling metrics and evaluates the
// alert rules after every mutation. A rule firing creates an Alert, which
// is held in memory, persisted best-effort through the repo, and delivered
// through the notifier.
//
// Cooldown suppression: a rule is suppressed while an unacknowledged alert
// for it exists within the rule's cooldown window. Acknowledging the alert
// or letting the cooldown lapse re-arms the rule.
type AlertMonitor struct {
	mu      sync.Mutex
	metrics model.AuthMetrics
	rules   []model.AlertRule
	alerts  []*model.Alert

	responseCount int64

	listeners      map[int]func(*model.Alert)
	nextListenerID int

	repo     AlertRepo
	notifier AlertNotifier

	alertSeq int64
	now      func() time.Time
	logger   *log.Helper

	stop    chan struct{}
	resetWG sync.WaitGroup
	closed  bool
}

// NewAlertMonitor creates the monitor with the default rule set. A positive
// metrics window in the config starts the periodic counter reset. The
// returned cleanup stops it.
func NewAlertMonitor(rc *conf.Resilience, repo AlertRepo, notifier AlertNotifier, logger log.Logger, opts ...AlertMonitorOption) (*AlertMonitor, func()) {
	var window time.Duration
	if rc != nil && rc.Alerts != nil && rc.Alerts.MetricsWindow != nil {
		window = rc.Alerts.MetricsWindow.AsDuration()
	}

	m := &AlertMonitor{
		rules:     DefaultAlertRules(),
		listeners: make(map[int]func(*model.Alert)),
		repo:      repo,
		notifier:  notifier,
		now:       time.Now,
		logger:    log.NewHelper(logger),
		stop:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.metrics.LastResetTime = m.now()

	if window > 0 {
		m.resetWG.Add(1)
		go m.resetLoop(window)
	}
	return m, m.Close
}

// RecordRequest records one handled request and its response time. The
// response time average is an incremental mean since the last reset.
func (m *AlertMonitor) RecordRequest(success bool, responseTime time.Duration) {
	m.mu.Lock()
	m.metrics.TotalRequests++
	if success {
		m.metrics.SuccessfulRequests++
	} else {
		m.metrics.FailedRequests++
	}
	m.responseCount++
	m.metrics.AvgResponseTimeMs = incrementalMean(
		m.metrics.AvgResponseTimeMs, float64(responseTime.Milliseconds()), m.responseCount)
	fired := m.evaluateLocked()
	m.mu.Unlock()

	m.dispatch(fired)
}

// RecordTokenValidation records one token validation outcome.
func (m *AlertMonitor) RecordTokenValidation(success bool) {
	m.mu.Lock()
	m.metrics.TokenValidations++
	if !success {
		m.metrics.TokenValidationFailures++
	}
	fired := m.evaluateLocked()
	m.mu.Unlock()

	m.dispatch(fired)
}

// RecordRateLimitHit records one rate limit rejection.
func (m *AlertMonitor) RecordRateLimitHit() {
	m.mu.Lock()
	m.metrics.RateLimitHits++
	fired := m.evaluateLocked()
	m.mu.Unlock()

	m.dispatch(fired)
}

// RecordSecurityViolation records one security violation.
func (m *AlertMonitor) RecordSecurityViolation() {
	m.mu.Lock()
	m.metrics.SecurityViolations++
	fired := m.evaluateLocked()
	m.mu.Unlock()

	m.dispatch(fired)
}

// evaluateLocked runs every rule against the current metrics and creates
// alerts for rules that fire and are not suppressed. Caller holds m.mu.
func (m *AlertMonitor) evaluateLocked() []*model.Alert {
	var fired []*model.Alert
	snapshot := m.metrics

	for i := range m.rules {
		rule := &m.rules[i]
		if rule.Condition == nil || !rule.Condition(&snapshot) {
			continue
		}
		if m.suppressedLocked(rule) {
			continue
		}

		m.alertSeq++
		alert := &model.Alert{
			ID:        fmt.Sprintf("%s-%d-%d", rule.ID, m.now().Unix(), m.alertSeq),
			RuleID:    rule.ID,
			Timestamp: m.now(),
			Severity:  rule.Severity,
			Message:   rule.Message,
			Metrics:   snapshot,
		}
		m.alerts = append(m.alerts, alert)
		fired = append(fired, alert)
	}
	return fired
}

// suppressedLocked reports whether an unacknowledged alert for the rule
// exists within the cooldown window. Caller holds m.mu.
func (m *AlertMonitor) suppressedLocked(rule *model.AlertRule) bool {
	cutoff := m.now().Add(-rule.Cooldown)
	for i := len(m.alerts) - 1; i >= 0; i-- {
		a := m.alerts[i]
		if a.RuleID != rule.ID {
			continue
		}
		if a.Timestamp.Before(cutoff) {
			// Alerts are time-ordered; older entries are out of window too.
			return false
		}
		if !a.Acknowledged {
			return true
		}
	}
	return false
}

// dispatch persists, notifies and fans out fired alerts outside the lock.
func (m *AlertMonitor) dispatch(fired []*model.Alert) {
	if len(fired) == 0 {
		return
	}

	m.mu.Lock()
	listeners := make([]func(*model.Alert), 0, len(m.listeners))
	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	m.mu.Unlock()

	for _, alert := range fired {
		m.logger.Warnw("msg", "alert fired",
			"alert_id", alert.ID,
			"rule", alert.RuleID,
			"severity", string(alert.Severity),
			"message", alert.Message)

		if m.repo != nil {
			ctx, cancel := context.WithTimeout(context.Background(), repoTimeout)
			if err := m.repo.AppendAlert(ctx, alert); err != nil {
				m.logger.Warnf("alert persistence failed for %s: %v", alert.ID, err)
			}
			cancel()
		}

		if m.notifier != nil {
			if alert.Severity == model.AlertSeverityCritical {
				ctx, cancel := context.WithTimeout(context.Background(), repoTimeout)
				if err := m.notifier.NotifyAlert(ctx, alert); err != nil {
					m.logger.Errorf("critical alert notification failed for %s: %v", alert.ID, err)
				}
				cancel()
			} else {
				go func(a *model.Alert) {
					ctx, cancel := context.WithTimeout(context.Background(), repoTimeout)
					defer cancel()
					if err := m.notifier.NotifyAlert(ctx, a); err != nil {
						m.logger.Warnf("alert notification failed for %s: %v", a.ID, err)
					}
				}(alert)
			}
		}

		for _, fn := range listeners {
			fn(alert)
		}
	}
}

// OnAlert registers a listener for fired alerts and returns a detach
// function.
func (m *AlertMonitor) OnAlert(fn func(*model.Alert)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextListenerID
	m.nextListenerID++
	m.listeners[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

// AcknowledgeAlert marks one alert acknowledged, recording the actor and
// time. Acknowledgement is the only permitted mutation of an alert.
func (m *AlertMonitor) AcknowledgeAlert(ctx context.Context, alertID, actor string) error {
	m.mu.Lock()
	var target *model.Alert
	for _, a := range m.alerts {
		if a.ID == alertID {
			target = a
			break
		}
	}
	if target == nil {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlertNotFound, alertID)
	}
	at := m.now()
	target.Acknowledged = true
	target.AcknowledgedBy = actor
	target.AcknowledgedAt = &at
	m.mu.Unlock()

	if m.repo != nil {
		if err := m.repo.MarkAcknowledged(ctx, alertID, actor, at); err != nil {
			m.logger.Warnf("acknowledgement persistence failed for %s: %v", alertID, err)
		}
	}

	m.logger.Infow("msg", "alert acknowledged",
		"alert_id", alertID,
		"actor", actor)
	return nil
}

// Alerts returns copies of the alert history, oldest first. With
// unackedOnly set, acknowledged alerts are filtered out.
func (m *AlertMonitor) Alerts(unackedOnly bool) []model.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.Alert, 0, len(m.alerts))
	for _, a := range m.alerts {
		if unackedOnly && a.Acknowledged {
			continue
		}
		out = append(out, *a)
	}
	return out
}

// ClearAlerts drops the in-memory alert history. Persisted history is
// untouched.
func (m *AlertMonitor) ClearAlerts() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = nil
}

// Metrics returns a snapshot of the accumulated counters.
func (m *AlertMonitor) Metrics() model.AuthMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.metrics
}

// Health summarizes the monitor: critical when any unacknowledged critical
// alert exists, warning when any unacknowledged alert exists.
func (m *AlertMonitor) Health() model.MonitorHealth {
	m.mu.Lock()
	defer m.mu.Unlock()

	health := model.MonitorHealth{
		Status:  model.HealthStatusHealthy,
		Metrics: m.metrics,
	}
	for _, a := range m.alerts {
		if a.Acknowledged {
			continue
		}
		health.ActiveAlerts++
		if a.Severity == model.AlertSeverityCritical {
			health.CriticalAlerts++
		}
	}
	switch {
	case health.CriticalAlerts > 0:
		health.Status = model.HealthStatusCritical
	case health.ActiveAlerts > 0:
		health.Status = model.HealthStatusWarning
	}
	return health
}

// ResetMetrics zeroes the counters for a new measurement window. Alert
// history is preserved.
func (m *AlertMonitor) ResetMetrics() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics = model.AuthMetrics{LastResetTime: m.now()}
	m.responseCount = 0
}

func (m *AlertMonitor) resetLoop(window time.Duration) {
	defer m.resetWG.Done()
	ticker := time.NewTicker(window)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.ResetMetrics()
			m.logger.Debug("alert metrics window rolled over")
		}
	}
}

// Close stops the periodic reset goroutine. Safe to call more than once.
func (m *AlertMonitor) Close() {
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
