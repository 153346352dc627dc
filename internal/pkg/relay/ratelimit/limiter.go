// Package ratelimit enforces per-user and per-conversation send limits
// with rolling-window token buckets. Bucket state is shared across all
// sessions and guarded by a single mutex.
package ratelimit

import (
	"sync"
	"time"
)

// Limits configures the rolling windows. Zero values fall back to the
// service defaults.
type Limits struct {
	UserPerHour          int
	UserPerDay           int
	ConversationPer10Min int
}

// DefaultLimits are the production limits: 100 sends/hour and 1000/day per
// user, 50 per rolling 10 minutes per conversation.
var DefaultLimits = Limits{
	UserPerHour:          100,
	UserPerDay:           1000,
	ConversationPer10Min: 50,
}

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed bool
	// QuotaExhausted marks the per-user daily bucket as the cause. Daily
	// exhaustion is fatal to the connection; hourly and per-conversation
	// exhaustion are transient.
	QuotaExhausted bool
	// RetryAfter is how long until the nearest exhausted bucket frees
	// capacity. Zero when Allowed.
	RetryAfter time.Duration
}

type window struct {
	span     time.Duration
	limit    int
	admitted []time.Time
}

func (w *window) prune(now time.Time) {
	cutoff := now.Add(-w.span)
	i := 0
	for i < len(w.admitted) && !w.admitted[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.admitted = append(w.admitted[:0], w.admitted[i:]...)
	}
}

func (w *window) full() bool {
	return len(w.admitted) >= w.limit
}

// freeAt returns when the oldest admission falls out of the window.
func (w *window) freeAt() time.Time {
	return w.admitted[0].Add(w.span)
}

// Limiter holds all rolling-window buckets. Safe for concurrent use.
type Limiter struct {
	mu     sync.Mutex
	limits Limits
	now    func() time.Time
	byUser map[string]*userBuckets
	byConv map[string]*window
}

type userBuckets struct {
	hour *window
	day  *window
}

func NewLimiter(limits Limits) *Limiter {
	if limits.UserPerHour <= 0 {
		limits.UserPerHour = DefaultLimits.UserPerHour
	}
	if limits.UserPerDay <= 0 {
		limits.UserPerDay = DefaultLimits.UserPerDay
	}
	if limits.ConversationPer10Min <= 0 {
		limits.ConversationPer10Min = DefaultLimits.ConversationPer10Min
	}
	return &Limiter{
		limits: limits,
		now:    time.Now,
		byUser: make(map[string]*userBuckets),
		byConv: make(map[string]*window),
	}
}

// Admit checks every bucket for the (user, conversation) pair and, when
// all have capacity, records the send in each atomically. On rejection
// nothing is recorded: the message is dropped, not queued, and the caller
// relays RetryAfter as the resend hint.
func (l *Limiter) Admit(userID, conversationID string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	ub := l.byUser[userID]
	if ub == nil {
		ub = &userBuckets{
			hour: &window{span: time.Hour, limit: l.limits.UserPerHour},
			day:  &window{span: 24 * time.Hour, limit: l.limits.UserPerDay},
		}
		l.byUser[userID] = ub
	}
	cb := l.byConv[conversationID]
	if cb == nil {
		cb = &window{span: 10 * time.Minute, limit: l.limits.ConversationPer10Min}
		l.byConv[conversationID] = cb
	}

	ub.hour.prune(now)
	ub.day.prune(now)
	cb.prune(now)

	if ub.day.full() {
		return Decision{
			QuotaExhausted: true,
			RetryAfter:     ub.day.freeAt().Sub(now),
		}
	}

	var retry time.Duration
	for _, w := range []*window{ub.hour, cb} {
		if !w.full() {
			continue
		}
		if wait := w.freeAt().Sub(now); retry == 0 || wait < retry {
			retry = wait
		}
	}
	if retry > 0 {
		return Decision{RetryAfter: retry}
	}

	ub.hour.admitted = append(ub.hour.admitted, now)
	ub.day.admitted = append(ub.day.admitted, now)
	cb.admitted = append(cb.admitted, now)
	return Decision{Allowed: true}
}

// RetryAfterSeconds rounds the hint up to whole seconds for the wire.
func (d Decision) RetryAfterSeconds() int {
	if d.RetryAfter <= 0 {
		return 0
	}
	secs := int(d.RetryAfter / time.Second)
	if d.RetryAfter%time.Second != 0 {
		secs++
	}
	return secs
}
