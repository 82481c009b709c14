package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/okrforge/gateway/internal/config"
)

// Reason distinguishes the two rejection causes. Min-interval violations take
// priority over quota violations.
type Reason string

const (
	ReasonTooFrequent   Reason = "too_frequent"
	ReasonQuotaExceeded Reason = "quota_exceeded"
)

// Entry is one caller's window state. Timestamps are unix milliseconds.
type Entry struct {
	Count         int64
	WindowResetAt int64
	LastRequestAt int64
}

// Store is the swappable caller→entry mapping. CompareAndSwap must be atomic
// so that Count can never exceed the quota under concurrent requests from the
// same caller; the admission algorithm itself lives in the Limiter and does
// not change across store backends.
type Store interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	// CompareAndSwap writes next only if the stored entry still equals old
	// (or is absent when oldExists is false). Returns false on conflict.
	CompareAndSwap(ctx context.Context, key string, old Entry, oldExists bool, next Entry) (bool, error)
	// Sweep deletes entries whose window has passed. Backends with native
	// expiry may make this a no-op.
	Sweep(ctx context.Context, now time.Time) error
	Len(ctx context.Context) (int, error)
}

// Result is the outcome of an admission check.
type Result struct {
	Allowed           bool
	Reason            Reason
	RetryAfterSeconds int
	Limit             int64
	Remaining         int64
	ResetAt           time.Time
}

// Limiter applies fixed-window admission with a minimum inter-request
// interval. The window resets entirely at WindowResetAt rather than sliding.
type Limiter struct {
	store Store
	cfg   func() config.RateLimitConfig
}

func NewLimiter(store Store, cfg func() config.RateLimitConfig) *Limiter {
	return &Limiter{store: store, cfg: cfg}
}

const casAttempts = 4

// Admit decides whether the caller's request is admitted at time now.
// Store errors and CAS exhaustion fail open, matching the availability-first
// stance of the rest of the gate: losing rate limiting is preferable to
// refusing all traffic.
func (l *Limiter) Admit(ctx context.Context, key string, now time.Time) Result {
	pol := l.cfg()
	nowMs := now.UnixMilli()

	if n, err := l.store.Len(ctx); err == nil && n > pol.SweepThreshold {
		if err := l.store.Sweep(ctx, now); err != nil {
			slog.Warn("rate limit sweep failed", "error", err)
		}
	}

	for attempt := 0; attempt < casAttempts; attempt++ {
		entry, exists, err := l.store.Get(ctx, key)
		if err != nil {
			return l.failOpen(pol, now)
		}

		// Fresh caller or expired window: start a new window.
		if !exists || nowMs >= entry.WindowResetAt {
			next := Entry{
				Count:         1,
				WindowResetAt: nowMs + pol.Window.Milliseconds(),
				LastRequestAt: nowMs,
			}
			swapped, err := l.store.CompareAndSwap(ctx, key, entry, exists, next)
			if err != nil {
				return l.failOpen(pol, now)
			}
			if swapped {
				return Result{
					Allowed:   true,
					Limit:     pol.MaxRequests,
					Remaining: pol.MaxRequests - 1,
					ResetAt:   time.UnixMilli(next.WindowResetAt),
				}
			}
			continue
		}

		resetAt := time.UnixMilli(entry.WindowResetAt)

		// Min-interval check takes priority over the quota check.
		elapsed := nowMs - entry.LastRequestAt
		if elapsed < pol.MinInterval.Milliseconds() {
			return Result{
				Allowed:           false,
				Reason:            ReasonTooFrequent,
				RetryAfterSeconds: ceilSeconds(pol.MinInterval.Milliseconds() - elapsed),
				Limit:             pol.MaxRequests,
				Remaining:         remaining(pol.MaxRequests, entry.Count),
				ResetAt:           resetAt,
			}
		}

		if entry.Count >= pol.MaxRequests {
			return Result{
				Allowed:           false,
				Reason:            ReasonQuotaExceeded,
				RetryAfterSeconds: ceilSeconds(entry.WindowResetAt - nowMs),
				Limit:             pol.MaxRequests,
				Remaining:         0,
				ResetAt:           resetAt,
			}
		}

		next := entry
		next.Count++
		next.LastRequestAt = nowMs
		swapped, err := l.store.CompareAndSwap(ctx, key, entry, true, next)
		if err != nil {
			return l.failOpen(pol, now)
		}
		if swapped {
			return Result{
				Allowed:   true,
				Limit:     pol.MaxRequests,
				Remaining: remaining(pol.MaxRequests, next.Count),
				ResetAt:   resetAt,
			}
		}
	}

	return l.failOpen(pol, now)
}

func (l *Limiter) failOpen(pol config.RateLimitConfig, now time.Time) Result {
	return Result{
		Allowed:   true,
		Limit:     pol.MaxRequests,
		Remaining: pol.MaxRequests - 1,
		ResetAt:   now.Add(pol.Window),
	}
}

func remaining(limit, count int64) int64 {
	r := limit - count
	if r < 0 {
		return 0
	}
	return r
}

func ceilSeconds(ms int64) int {
	if ms <= 0 {
		return 1
	}
	return int((ms + 999) / 1000)
}
