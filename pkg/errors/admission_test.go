package errors

import (
	"errors"
	"testing"
	"time"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRateLimitExceeded(t *testing.T) {
	resetTime := time.Now().Add(30 * time.Second)
	err := NewRateLimitExceeded("send-mail", "user1-10.0.0.1", resetTime)

	require.Error(t, err)
	assert.True(t, IsRateLimitExceeded(err))
	assert.False(t, IsCircuitOpen(err))

	ke := kerrors.FromError(err)
	assert.Equal(t, int32(429), ke.Code)
	assert.Equal(t, ReasonRateLimitExceeded, ke.Reason)
	assert.Contains(t, ke.Message, "send-mail")
	assert.NotEmpty(t, ke.Metadata["reset_time"])
	assert.NotEmpty(t, ke.Metadata["retry_after"])
}

func TestNewRateLimitExceeded_PastResetTime(t *testing.T) {
	// A reset time in the past must not produce a negative retry_after.
	err := NewRateLimitExceeded("search", "u-ip", time.Now().Add(-time.Second))

	ke := kerrors.FromError(err)
	assert.Equal(t, "0", ke.Metadata["retry_after"])
}

func TestNewCircuitOpen(t *testing.T) {
	err := NewCircuitOpen("email-service")

	require.Error(t, err)
	assert.True(t, IsCircuitOpen(err))
	assert.False(t, IsRateLimitExceeded(err))

	ke := kerrors.FromError(err)
	assert.Equal(t, int32(503), ke.Code)
	assert.Equal(t, ReasonCircuitOpen, ke.Reason)
	assert.Equal(t, "email-service", ke.Metadata["breaker"])
}

func TestIsHelpers_PlainError(t *testing.T) {
	err := errors.New("downstream blew up")
	assert.False(t, IsRateLimitExceeded(err))
	assert.False(t, IsCircuitOpen(err))
}
