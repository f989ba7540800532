package client

import (
	"errors"
	"testing"
	"time"

	"strangerchat/backend/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterCooldown(t *testing.T) {
	clock := &fakeClock{now: time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(NewMemoryKV())
	rl.now = clock.Now

	res, err := rl.Check(ActionLeave)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	require.NoError(t, rl.Record(ActionLeave))
	clock.Advance(1500 * time.Millisecond)

	res, err = rl.Check(ActionLeave)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, config.LeaveCooldown-1500*time.Millisecond, res.Remaining)

	// Cooldowns are per action.
	res, err = rl.Check(ActionSearch)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	clock.Advance(config.LeaveCooldown)
	res, err = rl.Check(ActionLeave)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestRateLimiterGuard(t *testing.T) {
	clock := &fakeClock{now: time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(NewMemoryKV())
	rl.now = clock.Now

	require.NoError(t, rl.Guard(ActionSearch))
	require.NoError(t, rl.Record(ActionSearch))
	clock.Advance(time.Second)

	err := rl.Guard(ActionSearch)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRateLimited))

	var limited *RateLimitedError
	require.ErrorAs(t, err, &limited)
	assert.Equal(t, ActionSearch, limited.Action)
	assert.Equal(t, 2*time.Second, limited.Remaining)
	assert.Equal(t, "please wait 2s before search again", limited.Error())
}

func TestRateLimiterRemainingWithSubMillisecondClock(t *testing.T) {
	clock := &fakeClock{now: time.Date(2030, 1, 1, 12, 0, 0, 999_151_244, time.UTC)}
	rl := NewRateLimiter(NewMemoryKV())
	rl.now = clock.Now

	require.NoError(t, rl.Record(ActionLeave))
	clock.Advance(2 * time.Second)

	res, err := rl.Check(ActionLeave)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, config.LeaveCooldown-2*time.Second, res.Remaining)
}

func TestRateLimiterIgnoresCorruptStamp(t *testing.T) {
	kv := NewMemoryKV()
	require.NoError(t, kv.Set("ratelimit:leave", "yesterday"))
	res, err := NewRateLimiter(kv).Check(ActionLeave)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestFormatCooldown(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "1s"},
		{200 * time.Millisecond, "1s"},
		{3 * time.Second, "3s"},
		{4100 * time.Millisecond, "5s"},
		{time.Minute, "1m"},
		{95 * time.Second, "1m 35s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatCooldown(tt.in), "FormatCooldown(%v)", tt.in)
	}
}
