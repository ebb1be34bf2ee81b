package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRemainingSeconds(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, int64(600), RemainingSeconds(now.Add(600*time.Second), now))
	assert.Equal(t, int64(0), RemainingSeconds(now, now))
	assert.Equal(t, int64(0), RemainingSeconds(now.Add(-time.Hour), now))
	assert.Equal(t, int64(1), RemainingSeconds(now.Add(1900*time.Millisecond), now))
}

func TestResumedExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, now.Add(600*time.Second), ResumedExpiry(now, 600))
	assert.Equal(t, now, ResumedExpiry(now, 0))
	assert.Equal(t, now, ResumedExpiry(now, -5))
}

func TestHoldResumeRoundTrip(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	expiry := start.Add(600 * time.Second)

	held := RemainingSeconds(expiry, start)
	for _, delay := range []time.Duration{0, time.Second, 37 * time.Minute, 72 * time.Hour} {
		resumeAt := start.Add(delay)
		got := ResumedExpiry(resumeAt, held)
		assert.WithinDuration(t, resumeAt.Add(600*time.Second), got, time.Second, "delay %s", delay)
	}
}
