package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCronSpec(t *testing.T) {
	cases := []struct {
		clock  string
		offset int
		want   string
	}{
		{"06:00", 8, "0 22 * * *"},
		{"18:00", 8, "0 10 * * *"},
		{"08:30", 8, "30 0 * * *"},
		{"00:15", 8, "15 16 * * *"},
		{"23:59", 0, "59 23 * * *"},
		{"02:00", -5, "0 7 * * *"},
	}
	for _, tc := range cases {
		got, err := CronSpec(tc.clock, tc.offset)
		require.NoError(t, err, tc.clock)
		assert.Equal(t, tc.want, got, tc.clock)
	}
}

func TestCronSpecRejectsBadClock(t *testing.T) {
	for _, bad := range []string{"24:00", "6:00", "12:60", "noon", "", "12:00:00"} {
		_, err := CronSpec(bad, 8)
		assert.ErrorIs(t, err, ErrInvalidTime, bad)
	}
}

func TestNextRun(t *testing.T) {
	now := time.Date(2026, 3, 2, 23, 0, 0, 0, time.UTC)
	next, err := NextRun("0 22 * * *", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 3, 22, 0, 0, 0, time.UTC), next)
}
