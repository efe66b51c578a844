package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllowUpToMax(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	l := New(30).WithClock(func() time.Time { return now })

	for i := 0; i < 30; i++ {
		assert.True(t, l.Allow("s1"), "scan %d", i+1)
		now = now.Add(time.Second)
	}
	assert.False(t, l.Allow("s1"), "31st scan within a minute")
	assert.Equal(t, 30, l.Count("s1"))
}

func TestSessionsAreIndependent(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	l := New(2).WithClock(func() time.Time { return now })

	assert.True(t, l.Allow("s1"))
	assert.True(t, l.Allow("s1"))
	assert.False(t, l.Allow("s1"))

	assert.True(t, l.Allow("s2"))
}

func TestWindowSlides(t *testing.T) {
	start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	now := start
	l := New(2).WithClock(func() time.Time { return now })

	assert.True(t, l.Allow("s1"))
	now = start.Add(30 * time.Second)
	assert.True(t, l.Allow("s1"))
	assert.False(t, l.Allow("s1"))

	// the first stamp leaves the window at exactly 60s
	now = start.Add(Window)
	assert.True(t, l.Allow("s1"))
	assert.False(t, l.Allow("s1"))
	assert.Equal(t, 2, l.Count("s1"))
}

func TestRejectedScansAreNotRecorded(t *testing.T) {
	start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	now := start
	l := New(1).WithClock(func() time.Time { return now })

	assert.True(t, l.Allow("s1"))
	for i := 0; i < 10; i++ {
		now = now.Add(5 * time.Second)
		assert.False(t, l.Allow("s1"))
	}

	now = start.Add(61 * time.Second)
	assert.True(t, l.Allow("s1"))
}

func TestReset(t *testing.T) {
	l := New(1)

	assert.True(t, l.Allow("s1"))
	assert.False(t, l.Allow("s1"))

	l.Reset("s1")
	assert.True(t, l.Allow("s1"))
}

func TestNewDefaultsMax(t *testing.T) {
	l := New(0)
	for i := 0; i < DefaultMaxPerWindow; i++ {
		assert.True(t, l.Allow("s1"))
	}
	assert.False(t, l.Allow("s1"))
}

func TestIdleSessionsAreForgotten(t *testing.T) {
	start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	now := start
	l := New(30).WithClock(func() time.Time { return now })

	// sessions that ended somewhere else and never scan again
	for _, id := range []string{"s1", "s2", "s3"} {
		assert.True(t, l.Allow(id))
	}
	assert.Equal(t, 3, l.Sessions())

	now = start.Add(Window + time.Second)
	assert.True(t, l.Allow("s4"))
	assert.Equal(t, 1, l.Sessions())

	// an emptied window is dropped on read too
	now = now.Add(Window)
	assert.Zero(t, l.Count("s4"))
	assert.Zero(t, l.Sessions())
}
