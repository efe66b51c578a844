package dedup

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestSuppressor() (*Suppressor, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
	return New(DefaultCooldown, WithClock(clock.Now)), clock
}

func TestAdmitFirstScan(t *testing.T) {
	s, _ := newTestSuppressor()

	release, reason := s.Admit("ABC123")
	require.NotNil(t, release)
	assert.Equal(t, ReasonNone, reason)
	assert.Equal(t, 1, s.InFlight())

	release()
	assert.Equal(t, 0, s.InFlight())
}

func TestImmediateRepeatWins(t *testing.T) {
	s, clock := newTestSuppressor()

	release, _ := s.Admit("ABC123")
	release()

	clock.Advance(500 * time.Millisecond)
	release, reason := s.Admit("ABC123")
	assert.Nil(t, release)
	assert.Equal(t, ReasonImmediateRepeat, reason)
}

func TestCooldownAfterOtherCode(t *testing.T) {
	s, clock := newTestSuppressor()

	release, _ := s.Admit("ABC123")
	release()
	clock.Advance(100 * time.Millisecond)
	release, _ = s.Admit("XYZ789")
	release()

	// not the last code any more, but still inside its cooldown
	clock.Advance(2500 * time.Millisecond)
	_, reason := s.Admit("ABC123")
	assert.Equal(t, ReasonCooldown, reason)
}

func TestAdmitAfterCooldown(t *testing.T) {
	s, clock := newTestSuppressor()

	release, _ := s.Admit("ABC123")
	release()

	clock.Advance(4 * time.Second)
	release, reason := s.Admit("ABC123")
	require.NotNil(t, release)
	assert.Equal(t, ReasonNone, reason)
	release()
}

func TestInFlight(t *testing.T) {
	s, clock := newTestSuppressor()

	release, _ := s.Admit("ABC123")
	clock.Advance(5 * time.Second)

	_, reason := s.Admit("ABC123")
	assert.Equal(t, ReasonInFlight, reason)

	release()
	release() // second call is a no-op

	release, reason = s.Admit("ABC123")
	assert.Equal(t, ReasonNone, reason)
	release()
}

func TestRejectedScanDoesNotExtendCooldown(t *testing.T) {
	s, clock := newTestSuppressor()

	release, _ := s.Admit("ABC123")
	release()

	clock.Advance(2500 * time.Millisecond)
	_, reason := s.Admit("ABC123")
	require.Equal(t, ReasonCooldown, reason)

	clock.Advance(time.Second)
	_, reason = s.Admit("ABC123")
	assert.Equal(t, ReasonNone, reason)
}

func TestReset(t *testing.T) {
	s, _ := newTestSuppressor()

	s.Admit("ABC123")
	s.Reset()

	assert.Equal(t, 0, s.InFlight())
	_, reason := s.Admit("ABC123")
	assert.Equal(t, ReasonNone, reason)
}

func TestConcurrentAdmitSingleWinner(t *testing.T) {
	s, _ := newTestSuppressor()

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, reason := s.Admit("ABC123"); reason == ReasonNone {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, admitted)
}
