package biz

import (
	"context"
	"testing"
	"time"

	"FuseGate/internal/conf"
	"FuseGate/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/durationpb"
)

func testRegistryConf() *conf.Resilience {
	return &conf.Resilience{
		Breaker: &conf.Resilience_Breaker{
			FailureThreshold: 5,
			SuccessThreshold: 2,
			Timeout:          durationpb.New(60 * time.Second),
		},
		Breakers: map[string]*conf.Resilience_Breaker{
			"email-service": {
				FailureThreshold: 2,
				Timeout:          durationpb.New(10 * time.Second),
			},
		},
	}
}

func newTestRegistry(t *testing.T) *BreakerRegistry {
	t.Helper()
	r, cleanup := NewBreakerRegistry(testRegistryConf(), log.DefaultLogger)
	t.Cleanup(cleanup)
	return r
}

func TestRegistry_SameNameSharesBreaker(t *testing.T) {
	r := newTestRegistry(t)

	a := r.GetBreaker("database")
	b := r.GetBreaker("database")
	assert.Same(t, a, b)

	c := r.GetBreaker("email-service")
	assert.NotSame(t, a, c)
}

func TestRegistry_OverridesMergeOverDefaults(t *testing.T) {
	r := newTestRegistry(t)

	email := r.GetBreaker("email-service")
	assert.EqualValues(t, 2, email.cfg.FailureThreshold)
	assert.Equal(t, 10*time.Second, email.cfg.Timeout)
	// SuccessThreshold not overridden: inherited from defaults.
	assert.EqualValues(t, 2, email.cfg.SuccessThreshold)

	db := r.GetBreaker("database")
	assert.EqualValues(t, 5, db.cfg.FailureThreshold)
	assert.Equal(t, 60*time.Second, db.cfg.Timeout)
}

func TestRegistry_Lookup(t *testing.T) {
	r := newTestRegistry(t)

	_, ok := r.Lookup("database")
	assert.False(t, ok)

	created := r.GetBreaker("database")
	found, ok := r.Lookup("database")
	require.True(t, ok)
	assert.Same(t, created, found)
}

func TestRegistry_StatusSortedByName(t *testing.T) {
	r := newTestRegistry(t)

	r.GetBreaker("redis")
	r.GetBreaker("database")
	r.GetBreaker("email-service")

	status := r.Status()
	require.Len(t, status, 3)
	assert.Equal(t, "database", status[0].Name)
	assert.Equal(t, "email-service", status[1].Name)
	assert.Equal(t, "redis", status[2].Name)
}

func TestRegistry_ResetAll(t *testing.T) {
	r := newTestRegistry(t)

	email := r.GetBreaker("email-service")
	for i := 0; i < 2; i++ {
		email.Execute(context.Background(), failingOp, nil)
	}
	require.Equal(t, model.BreakerOpen, email.State())

	r.ResetAll()

	assert.Equal(t, model.BreakerClosed, email.State())
	assert.Zero(t, email.Metrics().TotalRequests)
}

func TestNewBreakerRegistry_CleanupClosesBreakers(t *testing.T) {
	r, cleanup := NewBreakerRegistry(testRegistryConf(), log.DefaultLogger)
	r.GetBreaker("email-service")
	r.GetBreaker("database")

	cleanup()
	// Safe to run again, shutdown paths may overlap.
	cleanup()
}

func TestRegistry_NilConfigUsesBuiltinDefaults(t *testing.T) {
	r, cleanup := NewBreakerRegistry(nil, log.DefaultLogger)
	t.Cleanup(cleanup)

	b := r.GetBreaker("anything")
	assert.EqualValues(t, 5, b.cfg.FailureThreshold)
	assert.EqualValues(t, 2, b.cfg.SuccessThreshold)
	assert.Equal(t, 60*time.Second, b.cfg.Timeout)
}
