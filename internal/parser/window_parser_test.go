package parser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReentryWindow(t *testing.T) {
	tests := []struct {
		input    string
		kind     string
		duration time.Duration
	}{
		{"", WindowCalendarDay, 0},
		{"calendar_day", WindowCalendarDay, 0},
		{"Today", WindowCalendarDay, 0},
		{"off", WindowOff, 0},
		{"none", WindowOff, 0},
		{"90 minutes", WindowRolling, 90 * time.Minute},
		{"24 hours", WindowRolling, 24 * time.Hour},
		{"2d", WindowRolling, 48 * time.Hour},
		{"1 week", WindowRolling, 7 * 24 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			w, err := ParseReentryWindow(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, w.Kind)
			assert.Equal(t, tt.duration, w.Duration)
		})
	}
}

func TestParseReentryWindowErrors(t *testing.T) {
	for _, input := range []string{"forever", "0 hours", "-1 days", "2 years", "53 weeks"} {
		_, err := ParseReentryWindow(input)
		assert.Error(t, err, input)
	}
}

func TestReentryWindowStringRoundTrips(t *testing.T) {
	for _, input := range []string{"off", "calendar_day", "36 hours"} {
		w, err := ParseReentryWindow(input)
		require.NoError(t, err)

		again, err := ParseReentryWindow(w.String())
		require.NoError(t, err)
		assert.Equal(t, w, again)
	}
}

func TestCalendarDayBlocks(t *testing.T) {
	w := ReentryWindow{Kind: WindowCalendarDay}
	now := time.Date(2025, 3, 10, 15, 0, 0, 0, time.Local)

	assert.True(t, w.Blocks(time.Date(2025, 3, 10, 0, 0, 0, 0, time.Local), now))
	assert.True(t, w.Blocks(time.Date(2025, 3, 10, 9, 30, 0, 0, time.Local), now))
	assert.False(t, w.Blocks(time.Date(2025, 3, 9, 23, 59, 0, 0, time.Local), now))
}

func TestRollingBlocks(t *testing.T) {
	w := ReentryWindow{Kind: WindowRolling, Duration: 24 * time.Hour}
	now := time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)

	assert.True(t, w.Blocks(now.Add(-23*time.Hour), now))
	assert.False(t, w.Blocks(now.Add(-24*time.Hour), now))
}

func TestOffNeverBlocks(t *testing.T) {
	w := ReentryWindow{Kind: WindowOff}
	now := time.Now()
	assert.False(t, w.Blocks(now, now))
}
