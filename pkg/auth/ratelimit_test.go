package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllowWithinBudget(t *testing.T) {
	hl := NewHourlyLimiter()

	for i := 0; i < 3; i++ {
		ok, _ := hl.Allow("key", 3)
		assert.True(t, ok, "request %d should be allowed", i+1)
	}

	ok, reset := hl.Allow("key", 3)
	assert.False(t, ok)
	assert.True(t, reset.After(time.Now()))
	assert.Equal(t, 3, hl.Usage("key"))
}

func TestResetIsNextHourBoundary(t *testing.T) {
	fixed := time.Date(2025, 6, 1, 10, 25, 0, 0, time.UTC)
	hl := NewHourlyLimiter()
	hl.now = func() time.Time { return fixed }

	_, reset := hl.Allow("key", 1)
	assert.Equal(t, time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC), reset.UTC())
}

func TestBudgetResetsNextHour(t *testing.T) {
	current := time.Date(2025, 6, 1, 10, 59, 0, 0, time.UTC)
	hl := NewHourlyLimiter()
	hl.now = func() time.Time { return current }

	ok, _ := hl.Allow("key", 1)
	assert.True(t, ok)
	ok, _ = hl.Allow("key", 1)
	assert.False(t, ok)

	// The next hour window starts a fresh budget.
	current = current.Add(2 * time.Minute)
	ok, _ = hl.Allow("key", 1)
	assert.True(t, ok)
}

func TestKeysAreIndependent(t *testing.T) {
	hl := NewHourlyLimiter()

	ok, _ := hl.Allow("a", 1)
	assert.True(t, ok)
	ok, _ = hl.Allow("a", 1)
	assert.False(t, ok)

	ok, _ = hl.Allow("b", 1)
	assert.True(t, ok)
}

func TestStaleBucketsPurged(t *testing.T) {
	current := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	hl := NewHourlyLimiter()
	hl.now = func() time.Time { return current }

	hl.Allow("old", 10)

	// 25 hours later a write purges the stale bucket.
	current = current.Add(25 * time.Hour)
	hl.Allow("new", 10)

	assert.Len(t, hl.buckets, 1)
}
