package security

import (
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/easeaico/project-chara/internal/errs"
)

const (
	rateWindow      = time.Minute
	cleanupInterval = time.Minute
)

// RateLimiter enforces a per-client sliding one-minute request budget.
type RateLimiter struct {
	mu             sync.Mutex
	clientRequests map[string][]time.Time
	lastCleanup    time.Time

	limitPerMinute int
	nowFunc        func() time.Time

	allowed *atomic.Int64
	denied  *atomic.Int64
}

// NewRateLimiter returns a RateLimiter allowing limitPerMinute
// requests per client.
func NewRateLimiter(limitPerMinute int) *RateLimiter {
	if limitPerMinute <= 0 {
		limitPerMinute = 60
	}
	return &RateLimiter{
		clientRequests: make(map[string][]time.Time),
		limitPerMinute: limitPerMinute,
		nowFunc:        time.Now,
		allowed:        atomic.NewInt64(0),
		denied:         atomic.NewInt64(0),
	}
}

// Allow records a request for clientID, or returns
// RateLimitExceededError when the client is over budget.
func (l *RateLimiter) Allow(clientID string) error {
	if clientID == "" {
		clientID = "unknown"
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()
	l.cleanupLocked(now)

	cutoff := now.Add(-rateWindow)
	recent := 0
	for _, at := range l.clientRequests[clientID] {
		if at.After(cutoff) {
			recent++
		}
	}
	if recent >= l.limitPerMinute {
		l.denied.Inc()
		return &errs.RateLimitExceededError{LimitPerMinute: l.limitPerMinute}
	}

	l.clientRequests[clientID] = append(l.clientRequests[clientID], now)
	l.allowed.Inc()
	return nil
}

// cleanupLocked drops request records older than the window, at most
// once per cleanup interval.
func (l *RateLimiter) cleanupLocked(now time.Time) {
	if now.Sub(l.lastCleanup) < cleanupInterval {
		return
	}
	cutoff := now.Add(-rateWindow)
	for clientID, requests := range l.clientRequests {
		kept := requests[:0]
		for _, at := range requests {
			if at.After(cutoff) {
				kept = append(kept, at)
			}
		}
		if len(kept) == 0 {
			delete(l.clientRequests, clientID)
		} else {
			l.clientRequests[clientID] = kept
		}
	}
	l.lastCleanup = now
}

// Counters returns the running allowed/denied totals.
func (l *RateLimiter) Counters() (allowed, denied int64) {
	return l.allowed.Load(), l.denied.Load()
}
