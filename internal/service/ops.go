// Package service exposes the operational API over the protective core:
// status snapshots, breaker administration and alert management.
package service

import (
	"context"
	"time"

	"FuseGate/internal/biz"
	"FuseGate/internal/data"
	"FuseGate/internal/model"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
)

// OpsService implements the operational HTTP API.
type OpsService struct {
	limiter  *biz.RateLimiterUseCase
	breakers *biz.BreakerRegistry
	pool     *biz.PoolMonitor
	alerts   *biz.AlertMonitor
	repo     *data.AlertRepo
	logger   *log.Helper
}

// NewOpsService creates the service.
func NewOpsService(
	limiter *biz.RateLimiterUseCase,
	breakers *biz.BreakerRegistry,
	pool *biz.PoolMonitor,
	alerts *biz.AlertMonitor,
	repo *data.AlertRepo,
	logger log.Logger,
) *OpsService {
	return &OpsService{
		limiter:  limiter,
		breakers: breakers,
		pool:     pool,
		alerts:   alerts,
		repo:     repo,
		logger:   log.NewHelper(logger),
	}
}

// StatusReply is the combined service status snapshot.
type StatusReply struct {
	Timestamp time.Time              `json:"timestamp"`
	Breakers  []model.BreakerMetrics `json:"breakers"`
	RateLimit []model.RateLimitStats `json:"rate_limit"`
	Pool      model.PoolStatus       `json:"pool"`
	Alerts    model.MonitorHealth    `json:"alerts"`
}

// Status returns the combined status of every protective component.
func (s *OpsService) Status(_ context.Context) *StatusReply {
	return &StatusReply{
		Timestamp: time.Now().UTC(),
		Breakers:  s.breakers.Status(),
		RateLimit: s.limiter.Stats(),
		Pool:      s.pool.Status(),
		Alerts:    s.alerts.Health(),
	}
}

// HealthReply is the liveness summary.
type HealthReply struct {
	Status model.HealthStatus `json:"status"`
	Pool   model.HealthStatus `json:"pool"`
	Alerts model.HealthStatus `json:"alerts"`
}

// Health aggregates component health into one liveness answer. The worst
// component status wins.
func (s *OpsService) Health(_ context.Context) *HealthReply {
	poolHealth := s.pool.Health().Status
	alertHealth := s.alerts.Health().Status

	overall := model.HealthStatusHealthy
	for _, status := range []model.HealthStatus{poolHealth, alertHealth} {
		switch status {
		case model.HealthStatusCritical:
			overall = model.HealthStatusCritical
		case model.HealthStatusWarning:
			if overall == model.HealthStatusHealthy {
				overall = model.HealthStatusWarning
			}
		}
	}

	return &HealthReply{
		Status: overall,
		Pool:   poolHealth,
		Alerts: alertHealth,
	}
}

// ListBreakers returns metrics for every registered breaker.
func (s *OpsService) ListBreakers(_ context.Context) []model.BreakerMetrics {
	return s.breakers.Status()
}

// GetBreaker returns one breaker's metrics.
func (s *OpsService) GetBreaker(_ context.Context, name string) (*model.BreakerMetrics, error) {
	b, ok := s.breakers.Lookup(name)
	if !ok {
		return nil, kerrors.NotFound("BREAKER_NOT_FOUND", "no breaker registered under "+name)
	}
	m := b.Metrics()
	return &m, nil
}

// ForceBreaker applies an operator state override: "open", "close" or
// "reset".
func (s *OpsService) ForceBreaker(_ context.Context, name, action string) (*model.BreakerMetrics, error) {
	b, ok := s.breakers.Lookup(name)
	if !ok {
		return nil, kerrors.NotFound("BREAKER_NOT_FOUND", "no breaker registered under "+name)
	}

	switch action {
	case "open":
		b.ForceOpen()
	case "close":
		b.ForceClose()
	case "reset":
		b.Reset()
	default:
		return nil, kerrors.BadRequest("INVALID_BREAKER_ACTION", "action must be open, close or reset")
	}

	s.logger.Infow("msg", "breaker override applied",
		"breaker", name,
		"action", action)

	m := b.Metrics()
	return &m, nil
}

// ResetAllBreakers resets every breaker to CLOSED.
func (s *OpsService) ResetAllBreakers(_ context.Context) []model.BreakerMetrics {
	s.breakers.ResetAll()
	s.logger.Info("all breakers reset")
	return s.breakers.Status()
}

// PoolStatus returns pool metrics, health and recent events.
func (s *OpsService) PoolStatus(_ context.Context) model.PoolStatus {
	return s.pool.Status()
}

// ListAlerts returns the in-memory alert history.
func (s *OpsService) ListAlerts(_ context.Context, unackedOnly bool) []model.Alert {
	return s.alerts.Alerts(unackedOnly)
}

// AlertHistory returns persisted alert history, newest first.
func (s *OpsService) AlertHistory(ctx context.Context, limit int) ([]model.Alert, error) {
	return s.repo.Recent(ctx, limit)
}

// ClearAlerts drops the in-memory alert history. Persisted history is
// untouched.
func (s *OpsService) ClearAlerts(_ context.Context) {
	s.alerts.ClearAlerts()
	s.logger.Info("alert history cleared")
}

// ResetPool zeroes the pool monitor's counters and event log. Gauges keep
// their last reported values.
func (s *OpsService) ResetPool(_ context.Context) model.PoolStatus {
	s.pool.Reset()
	s.logger.Info("pool metrics reset")
	return s.pool.Status()
}

// AcknowledgeAlert marks an alert acknowledged by actor.
func (s *OpsService) AcknowledgeAlert(ctx context.Context, alertID, actor string) error {
	if actor == "" {
		return kerrors.BadRequest("MISSING_ACTOR", "acknowledged_by is required")
	}
	if err := s.alerts.AcknowledgeAlert(ctx, alertID, actor); err != nil {
		return kerrors.NotFound("ALERT_NOT_FOUND", err.Error())
	}
	return nil
}

// Metrics returns the alert monitor's counter snapshot.
func (s *OpsService) Metrics(_ context.Context) model.AuthMetrics {
	return s.alerts.Metrics()
}
