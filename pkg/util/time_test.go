package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"30d", 30 * 24 * time.Hour},
		{"90", 90 * time.Second},
		{"1h30m", 90 * time.Minute},
		{" 5m ", 5 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDuration(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseDuration("xd")
	assert.Error(t, err)
}

func TestParseDay(t *testing.T) {
	d, err := ParseDay("2026-03-04")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC), d)

	d, err = ParseDay("2026-03-04T18:30:00+08:00")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-04", FormatDay(d))

	_, err = ParseDay("03/04/2026")
	assert.Error(t, err)
}

func TestNormalizeDayKeepsCalendarDay(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	late := time.Date(2026, 1, 31, 23, 59, 0, 0, loc)
	assert.Equal(t, time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC), NormalizeDay(late))
}
