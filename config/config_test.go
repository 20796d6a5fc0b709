package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	t.Parallel()
	c, err := New()
	require.NoError(t, err)
	require.Equal(t, 30*time.Second, c.ConnectionTimeout)
	require.Equal(t, 30*time.Second, c.CommandTimeout)
	require.True(t, c.EnableHeartbeat)
	require.Equal(t, 15*time.Second, c.HeartbeatInterval)
	require.True(t, c.AutoReconnect)
	require.Equal(t, time.Second, c.ReconnectDelay)
	require.Equal(t, 30*time.Second, c.ReconnectMaxDelay)
	require.Equal(t, 0, c.ReconnectMaxAttempts)
	require.InDelta(t, 2.0, c.ReconnectBackoffMultiplier, 0.0001)
	require.False(t, c.AutoEnableDomains)
}

func TestOptionsOverrideDefaults(t *testing.T) {
	t.Parallel()
	c, err := New(
		WithHeartbeat(false, 2*time.Second),
		WithAutoEnableDomains(true),
	)
	require.NoError(t, err)
	require.False(t, c.EnableHeartbeat)
	require.Equal(t, 2*time.Second, c.HeartbeatInterval)
	require.True(t, c.AutoEnableDomains)
}

func TestValidationRejectsBelowMinimums(t *testing.T) {
	t.Parallel()
	_, err := New(WithHeartbeat(true, 500*time.Millisecond))
	require.Error(t, err)

	_, err = New(WithReconnectPolicy(50*time.Millisecond, time.Second, 0, 2.0))
	require.Error(t, err)

	_, err = New(WithReconnectPolicy(time.Second, time.Second, -1, 2.0))
	require.Error(t, err)
}
