// Package ratelimit caps outbound eBay API calls to a daily budget.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Usage is a snapshot of the current daily window.
type Usage struct {
	CallsToday     int       `json:"calls_today"`
	CallsLimit     int       `json:"calls_limit"`
	WindowStart    time.Time `json:"window_start"`
	PercentageUsed float64   `json:"percentage_used"`
}

// DailyLimiter tracks a rolling UTC calendar-day call budget. It is a purely
// local, in-process budget; it does not coordinate across server instances.
type DailyLimiter struct {
	mu          sync.Mutex
	callsPerDay int
	windowStart time.Time
	callCount   int
	logger      zerolog.Logger

	// now and sleep are swappable for tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewDailyLimiter creates a limiter with the given daily ceiling.
func NewDailyLimiter(callsPerDay int, logger zerolog.Logger) *DailyLimiter {
	return &DailyLimiter{
		callsPerDay: callsPerDay,
		windowStart: time.Now().UTC(),
		logger:      logger.With().Str("component", "ratelimit").Logger(),
		now:         func() time.Time { return time.Now().UTC() },
		sleep:       sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Acquire obtains permission to make an API call. When the daily ceiling is
// reached it suspends the caller until the next UTC midnight, then resets the
// window. Callers serialize through the window state; the lock is held across
// the wait so the window cannot be mutated out from under a sleeping caller.
func (l *DailyLimiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	// New UTC day: reset the window regardless of the prior count.
	if yearDay(now) != yearDay(l.windowStart) && now.After(l.windowStart) {
		l.logger.Info().
			Int("calls_used", l.callCount).
			Int("calls_limit", l.callsPerDay).
			Msg("rate limiter window reset")
		l.windowStart = now
		l.callCount = 0
	}

	if l.callCount >= l.callsPerDay {
		midnight := now.Truncate(24 * time.Hour).Add(24 * time.Hour)
		wait := midnight.Sub(now)
		l.logger.Warn().
			Int("calls_limit", l.callsPerDay).
			Dur("wait", wait).
			Msg("daily rate limit reached, waiting for window reset")

		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
		l.windowStart = l.now()
		l.callCount = 0
	}

	l.callCount++
	if l.callCount%100 == 0 {
		l.logger.Info().
			Int("calls_today", l.callCount).
			Int("calls_limit", l.callsPerDay).
			Msg("daily API usage")
	}
	return nil
}

// Usage returns the current usage statistics.
func (l *DailyLimiter) Usage() Usage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Usage{
		CallsToday:     l.callCount,
		CallsLimit:     l.callsPerDay,
		WindowStart:    l.windowStart,
		PercentageUsed: float64(l.callCount) / float64(l.callsPerDay) * 100,
	}
}

func yearDay(t time.Time) int {
	return t.Year()*1000 + t.YearDay()
}
