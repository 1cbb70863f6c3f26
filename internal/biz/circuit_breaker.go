package biz

import (
	"context"
	"fmt"
	"sync"
	"time"

	"FuseGate/internal/model"
	perrors "FuseGate/pkg/errors"

	"github.com/go-kratos/kratos/v2/log"
)

// Operation is a unit of work protected by a circuit breaker.
type Operation func(ctx context.Context) (interface{}, error)

// Fallback produces a degraded result when the primary operation fails or
// the breaker rejects the call. It receives the error that triggered it.
type Fallback func(ctx context.Context, cause error) (interface{}, error)

// HealthChecker probes the downstream dependency guarded by a breaker.
// Probe results are informational: they are surfaced in metrics and logs
// but never drive state transitions on their own.
type HealthChecker interface {
	CheckHealth(ctx context.Context) model.HealthCheckResult
}

// HealthCheckerFunc adapts a plain function to the HealthChecker interface.
type HealthCheckerFunc func(ctx context.Context) model.HealthCheckResult

func (f HealthCheckerFunc) CheckHealth(ctx context.Context) model.HealthCheckResult {
	return f(ctx)
}

// BreakerConfig holds one breaker's thresholds.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that trips
	// the breaker from CLOSED to OPEN.
	FailureThreshold int64
	// SuccessThreshold is the number of consecutive successes in
	// HALF_OPEN required to close the breaker.
	SuccessThreshold int64
	// Timeout is how long the breaker stays OPEN before probing traffic
	// is admitted again.
	Timeout time.Duration
	// HealthCheckInterval is the period of the background health probe.
	// Zero disables probing.
	HealthCheckInterval time.Duration
}

// responseTimeWindow is the number of recent latency samples kept for the
// rolling average reported by Metrics.
const responseTimeWindow = 100

// healthCheckTimeout bounds one background probe invocation.
const healthCheckTimeout = 5 * time.Second

// BreakerOption customizes a CircuitBreaker at construction.
type BreakerOption func(*CircuitBreaker)

// WithClock overrides the breaker's time source. Used by tests to drive
// the OPEN timeout without sleeping.
func WithClock(now func() time.Time) BreakerOption {
	return func(b *CircuitBreaker) { b.now = now }
}

// WithHealthChecker attaches a background health probe. The probe starts
// only when the config carries a positive HealthCheckInterval.
func WithHealthChecker(hc HealthChecker) BreakerOption {
	return func(b *CircuitBreaker) { b.checker = hc }
}

// CircuitBreaker protects one downstream dependency with the classic
// three-state machine:
//
//	CLOSED    -> OPEN       after FailureThreshold consecutive failures
//	OPEN      -> HALF_OPEN  after Timeout has elapsed since the trip
//	HALF_OPEN -> CLOSED     after SuccessThreshold consecutive successes
//	HALF_OPEN -> OPEN       on any failure
//
// While OPEN, calls are rejected without invoking the operation; the
// fallback (if any) is invoked with a circuit-open error instead.
type CircuitBreaker struct {
	name string
	cfg  BreakerConfig

	mu              sync.Mutex
	state           model.BreakerState
	failureCount    int64 // consecutive failures, reset on success
	successCount    int64 // consecutive successes, reset on failure
	totalRequests   int64
	totalFailures   int64
	totalSuccesses  int64
	rejectedCount   int64
	lastFailureTime time.Time
	lastStateChange time.Time

	// rolling latency window
	responseTimes [responseTimeWindow]time.Duration
	rtIndex       int
	rtCount       int

	stateListeners   map[int]func(model.BreakerStateChange)
	outcomeListeners map[int]func(name, event string, elapsed time.Duration)
	nextListenerID   int
	pendingChanges   []model.BreakerStateChange

	checker         HealthChecker
	lastHealthCheck *model.HealthCheckResult

	now    func() time.Time
	logger *log.Helper

	stopProbe chan struct{}
	probeWG   sync.WaitGroup
	closed    bool
}

// NewCircuitBreaker creates a breaker in the CLOSED state. Non-positive
// config fields fall back to safe defaults (5 failures, 2 successes, 60s
// timeout). The health probe goroutine starts when both a checker and a
// positive interval are present.
func NewCircuitBreaker(name string, cfg BreakerConfig, logger log.Logger, opts ...BreakerOption) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	b := &CircuitBreaker{
		name:             name,
		cfg:              cfg,
		state:            model.BreakerClosed,
		stateListeners:   make(map[int]func(model.BreakerStateChange)),
		outcomeListeners: make(map[int]func(string, string, time.Duration)),
		now:              time.Now,
		logger:           log.NewHelper(logger),
		stopProbe:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.lastStateChange = b.now()

	if b.checker != nil && cfg.HealthCheckInterval > 0 {
		b.probeWG.Add(1)
		go b.probeLoop()
	}

	return b
}

// Name returns the breaker's registry name.
func (b *CircuitBreaker) Name() string { return b.name }

// State returns the current state.
func (b *CircuitBreaker) State() model.BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Execute runs op under the breaker's protection.
//
// Rejections and primary failures route through the fallback when one is
// given. When both the operation and its fallback fail, the returned error
// names both causes.
func (b *CircuitBreaker) Execute(ctx context.Context, op Operation, fallback Fallback) (interface{}, error) {
	if !b.admit() {
		rejectErr := perrors.NewCircuitOpen(b.name)
		if fallback != nil {
			return fallback(ctx, rejectErr)
		}
		return nil, rejectErr
	}

	start := b.now()
	result, err := op(ctx)
	elapsed := b.now().Sub(start)

	if err != nil {
		b.onFailure(elapsed)
		if fallback != nil {
			fbResult, fbErr := fallback(ctx, err)
			if fbErr != nil {
				return nil, fmt.Errorf("operation failed: %v; fallback failed: %w", err, fbErr)
			}
			return fbResult, nil
		}
		return nil, err
	}

	b.onSuccess(elapsed)
	return result, nil
}

// admit decides whether a call may proceed, moving OPEN to HALF_OPEN once
// the timeout has elapsed. It records the rejection when the answer is no.
func (b *CircuitBreaker) admit() bool {
	b.mu.Lock()

	switch b.state {
	case model.BreakerOpen:
		if b.now().Sub(b.lastFailureTime) >= b.cfg.Timeout {
			b.transitionLocked(model.BreakerHalfOpen, false)
			b.notifyAndUnlock(nil)
			return true
		}
		b.rejectedCount++
		b.notifyAndUnlock(&outcome{event: model.BreakerEventRejected})
		return false
	default:
		// CLOSED and HALF_OPEN both admit traffic; HALF_OPEN relies on
		// outcome accounting rather than admission gating.
		b.mu.Unlock()
		return true
	}
}

type outcome struct {
	event   string
	elapsed time.Duration
}

func (b *CircuitBreaker) onSuccess(elapsed time.Duration) {
	b.mu.Lock()
	b.totalRequests++
	b.totalSuccesses++
	b.failureCount = 0
	b.successCount++
	b.recordResponseTimeLocked(elapsed)

	if b.state == model.BreakerHalfOpen && b.successCount >= b.cfg.SuccessThreshold {
		b.transitionLocked(model.BreakerClosed, false)
	}
	b.notifyAndUnlock(&outcome{event: model.BreakerEventSuccess, elapsed: elapsed})
}

func (b *CircuitBreaker) onFailure(elapsed time.Duration) {
	b.mu.Lock()
	b.totalRequests++
	b.totalFailures++
	b.successCount = 0
	b.failureCount++
	b.lastFailureTime = b.now()
	b.recordResponseTimeLocked(elapsed)

	switch b.state {
	case model.BreakerClosed:
		if b.failureCount >= b.cfg.FailureThreshold {
			b.transitionLocked(model.BreakerOpen, false)
		}
	case model.BreakerHalfOpen:
		// A single failure during probing re-opens the breaker.
		b.transitionLocked(model.BreakerOpen, false)
	}
	b.notifyAndUnlock(&outcome{event: model.BreakerEventFailure, elapsed: elapsed})
}

func (b *CircuitBreaker) recordResponseTimeLocked(d time.Duration) {
	b.responseTimes[b.rtIndex] = d
	b.rtIndex = (b.rtIndex + 1) % responseTimeWindow
	if b.rtCount < responseTimeWindow {
		b.rtCount++
	}
}

// transitionLocked moves the state machine and resets the consecutive
// counters appropriate for the target state. Caller holds b.mu.
func (b *CircuitBreaker) transitionLocked(to model.BreakerState, forced bool) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	b.lastStateChange = b.now()

	switch to {
	case model.BreakerClosed:
		b.failureCount = 0
		b.successCount = 0
	case model.BreakerHalfOpen:
		b.successCount = 0
	case model.BreakerOpen:
		b.successCount = 0
	}

	b.pendingChanges = append(b.pendingChanges, model.BreakerStateChange{
		Name:   b.name,
		From:   from,
		To:     to,
		At:     b.lastStateChange,
		Forced: forced,
	})
}

// notifyAndUnlock snapshots listeners and pending state changes, releases
// the lock, then delivers notifications. Listeners run outside the lock so
// they may safely call back into the breaker.
func (b *CircuitBreaker) notifyAndUnlock(oc *outcome) {
	changes := b.pendingChanges
	b.pendingChanges = nil

	var stateFns []func(model.BreakerStateChange)
	if len(changes) > 0 {
		stateFns = make([]func(model.BreakerStateChange), 0, len(b.stateListeners))
		for _, fn := range b.stateListeners {
			stateFns = append(stateFns, fn)
		}
	}

	var outcomeFns []func(string, string, time.Duration)
	if oc != nil {
		outcomeFns = make([]func(string, string, time.Duration), 0, len(b.outcomeListeners))
		for _, fn := range b.outcomeListeners {
			outcomeFns = append(outcomeFns, fn)
		}
	}
	b.mu.Unlock()

	for _, change := range changes {
		b.logger.Infow("msg", "circuit breaker state change",
			"breaker", change.Name,
			"from", string(change.From),
			"to", string(change.To),
			"forced", change.Forced)
		for _, fn := range stateFns {
			fn(change)
		}
	}
	if oc != nil {
		for _, fn := range outcomeFns {
			fn(b.name, oc.event, oc.elapsed)
		}
	}
}

// OnStateChange registers a listener for state transitions and returns a
// detach function.
func (b *CircuitBreaker) OnStateChange(fn func(model.BreakerStateChange)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextListenerID
	b.nextListenerID++
	b.stateListeners[id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.stateListeners, id)
	}
}

// OnOutcome registers a listener for call outcomes (success, failure,
// rejected) and returns a detach function.
func (b *CircuitBreaker) OnOutcome(fn func(name, event string, elapsed time.Duration)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextListenerID
	b.nextListenerID++
	b.outcomeListeners[id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.outcomeListeners, id)
	}
}

// ForceOpen trips the breaker regardless of counters. Operator action.
func (b *CircuitBreaker) ForceOpen() {
	b.mu.Lock()
	b.lastFailureTime = b.now()
	b.transitionLocked(model.BreakerOpen, true)
	b.notifyAndUnlock(nil)
}

// ForceClose closes the breaker regardless of counters. Operator action.
func (b *CircuitBreaker) ForceClose() {
	b.mu.Lock()
	b.transitionLocked(model.BreakerClosed, true)
	b.notifyAndUnlock(nil)
}

// Reset returns the breaker to a pristine CLOSED state, zeroing all
// counters and the latency window.
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	b.transitionLocked(model.BreakerClosed, true)
	b.failureCount = 0
	b.successCount = 0
	b.totalRequests = 0
	b.totalFailures = 0
	b.totalSuccesses = 0
	b.rejectedCount = 0
	b.lastFailureTime = time.Time{}
	b.rtIndex = 0
	b.rtCount = 0
	b.notifyAndUnlock(nil)
}

// Metrics returns a point-in-time snapshot of the breaker's counters.
func (b *CircuitBreaker) Metrics() model.BreakerMetrics {
	b.mu.Lock()
	defer b.mu.Unlock()

	var avgMs float64
	if b.rtCount > 0 {
		var total time.Duration
		for i := 0; i < b.rtCount; i++ {
			total += b.responseTimes[i]
		}
		avgMs = float64(total.Milliseconds()) / float64(b.rtCount)
	}

	m := model.BreakerMetrics{
		Name:              b.name,
		State:             b.state,
		FailureCount:      b.failureCount,
		SuccessCount:      b.successCount,
		TotalRequests:     b.totalRequests,
		TotalFailures:     b.totalFailures,
		TotalSuccesses:    b.totalSuccesses,
		RejectedRequests:  b.rejectedCount,
		AvgResponseTimeMs: avgMs,
		LastFailureTime:   b.lastFailureTime,
		LastStateChange:   b.lastStateChange,
	}
	if b.lastHealthCheck != nil {
		hc := *b.lastHealthCheck
		m.LastHealthCheck = &hc
	}
	return m
}

// probeLoop runs the background health probe until Close.
func (b *CircuitBreaker) probeLoop() {
	defer b.probeWG.Done()
	ticker := time.NewTicker(b.cfg.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopProbe:
			return
		case <-ticker.C:
			b.runProbe()
		}
	}
}

func (b *CircuitBreaker) runProbe() {
	ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
	defer cancel()

	result := b.checker.CheckHealth(ctx)
	if result.CheckedAt.IsZero() {
		result.CheckedAt = b.now()
	}

	b.mu.Lock()
	b.lastHealthCheck = &result
	b.mu.Unlock()

	if !result.Healthy {
		b.logger.Warnw("msg", "health probe failed",
			"breaker", b.name,
			"error", result.Error,
			"response_time_ms", result.ResponseTime.Milliseconds())
	}
}

// Close stops the health probe goroutine. Safe to call more than once.
func (b *CircuitBreaker) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()
	close(b.stopProbe)
	b.probeWG.Wait()
}
