package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(limits Limits) (*Limiter, *time.Time) {
	l := NewLimiter(limits)
	clock := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return clock }
	return l, &clock
}

func TestAdmitUnderLimit(t *testing.T) {
	l, _ := newTestLimiter(DefaultLimits)

	for i := 0; i < 50; i++ {
		d := l.Admit("u1", "c1")
		require.True(t, d.Allowed, "send %d should be admitted", i+1)
		assert.Zero(t, d.RetryAfter)
	}
}

func TestHourlyLimitRejectsNextSend(t *testing.T) {
	l, clock := newTestLimiter(Limits{UserPerHour: 100, UserPerDay: 1000, ConversationPer10Min: 1000})

	for i := 0; i < 100; i++ {
		require.True(t, l.Admit("u1", "c1").Allowed)
		*clock = clock.Add(time.Second)
	}

	d := l.Admit("u1", "c1")
	assert.False(t, d.Allowed)
	assert.False(t, d.QuotaExhausted)
	assert.Greater(t, d.RetryAfter, time.Duration(0))

	// The rejected send is not recorded: once the oldest admission ages
	// out, capacity returns.
	*clock = clock.Add(time.Hour)
	assert.True(t, l.Admit("u1", "c1").Allowed)
}

func TestConversationLimitIsPerConversation(t *testing.T) {
	l, _ := newTestLimiter(Limits{UserPerHour: 1000, UserPerDay: 1000, ConversationPer10Min: 2})

	require.True(t, l.Admit("u1", "c1").Allowed)
	require.True(t, l.Admit("u1", "c1").Allowed)
	assert.False(t, l.Admit("u1", "c1").Allowed)

	// A different conversation still has capacity.
	assert.True(t, l.Admit("u1", "c2").Allowed)
}

func TestUserLimitSpansConversations(t *testing.T) {
	l, _ := newTestLimiter(Limits{UserPerHour: 2, UserPerDay: 1000, ConversationPer10Min: 1000})

	require.True(t, l.Admit("u1", "c1").Allowed)
	require.True(t, l.Admit("u1", "c2").Allowed)
	assert.False(t, l.Admit("u1", "c3").Allowed)

	// Other users are untouched.
	assert.True(t, l.Admit("u2", "c1").Allowed)
}

func TestDailyExhaustionIsQuota(t *testing.T) {
	l, _ := newTestLimiter(Limits{UserPerHour: 1000, UserPerDay: 3, ConversationPer10Min: 1000})

	for i := 0; i < 3; i++ {
		require.True(t, l.Admit("u1", "c1").Allowed)
	}

	d := l.Admit("u1", "c1")
	assert.False(t, d.Allowed)
	assert.True(t, d.QuotaExhausted)
	assert.Equal(t, 24*time.Hour, d.RetryAfter)
}

func TestRetryAfterReportsNearestWindow(t *testing.T) {
	l, clock := newTestLimiter(Limits{UserPerHour: 1, UserPerDay: 1000, ConversationPer10Min: 1})

	require.True(t, l.Admit("u1", "c1").Allowed)
	*clock = clock.Add(5 * time.Minute)

	// Both the hourly and the 10-minute window are full; the hint is the
	// sooner of the two.
	d := l.Admit("u1", "c1")
	require.False(t, d.Allowed)
	assert.Equal(t, 5*time.Minute, d.RetryAfter)
}

func TestRollingWindowFrees(t *testing.T) {
	l, clock := newTestLimiter(Limits{UserPerHour: 1000, UserPerDay: 1000, ConversationPer10Min: 2})

	require.True(t, l.Admit("u1", "c1").Allowed)
	*clock = clock.Add(6 * time.Minute)
	require.True(t, l.Admit("u1", "c1").Allowed)
	require.False(t, l.Admit("u1", "c1").Allowed)

	// The first admission ages out after 10 minutes.
	*clock = clock.Add(5 * time.Minute)
	assert.True(t, l.Admit("u1", "c1").Allowed)
}

func TestRetryAfterSecondsRoundsUp(t *testing.T) {
	assert.Equal(t, 0, Decision{}.RetryAfterSeconds())
	assert.Equal(t, 1, Decision{RetryAfter: 200 * time.Millisecond}.RetryAfterSeconds())
	assert.Equal(t, 30, Decision{RetryAfter: 30 * time.Second}.RetryAfterSeconds())
	assert.Equal(t, 31, Decision{RetryAfter: 30*time.Second + time.Millisecond}.RetryAfterSeconds())
}
