package auth

import (
	"sync"
	"time"
)

// HourlyLimiter enforces per-key hourly request budgets with a sliding
// table of (key, hour bucket) counters. Buckets older than 24 h are
// purged on write.
type HourlyLimiter struct {
	mu      sync.Mutex
	buckets map[bucketKey]int
	now     func() time.Time // overridable in tests
}

type bucketKey struct {
	keyID string
	hour  int64 // unix hour
}

// NewHourlyLimiter creates an empty limiter.
func NewHourlyLimiter() *HourlyLimiter {
	return &HourlyLimiter{
		buckets: make(map[bucketKey]int),
		now:     time.Now,
	}
}

// Allow consumes one unit of the key's hourly budget. When the budget is
// exhausted it returns false plus the time the current hour window resets.
func (hl *HourlyLimiter) Allow(keyID string, limit int) (bool, time.Time) {
	now := hl.now()
	hour := now.Unix() / 3600
	reset := time.Unix((hour+1)*3600, 0)

	hl.mu.Lock()
	defer hl.mu.Unlock()

	key := bucketKey{keyID: keyID, hour: hour}
	if hl.buckets[key] >= limit {
		return false, reset
	}
	hl.buckets[key]++

	// Purge stale buckets while we hold the lock.
	cutoff := hour - 24
	for k := range hl.buckets {
		if k.hour < cutoff {
			delete(hl.buckets, k)
		}
	}

	return true, reset
}

// Usage returns the count consumed in the current hour window.
func (hl *HourlyLimiter) Usage(keyID string) int {
	hour := hl.now().Unix() / 3600
	hl.mu.Lock()
	defer hl.mu.Unlock()
	return hl.buckets[bucketKey{keyID: keyID, hour: hour}]
}
