package sheetsync

import (
	"testing"
	"time"
)

func TestStaleCutoff(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name         string
		interval     time.Duration
		fixedMinutes int
		want         time.Time
	}{
		{"three missed intervals by default", 30 * time.Minute, 0, now.Add(-90 * time.Minute)},
		{"zero interval falls back to an hour", 0, 0, now.Add(-3 * time.Hour)},
		{"fixed age overrides the interval rule", 30 * time.Minute, 240, now.Add(-4 * time.Hour)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := staleCutoff(now, tc.interval, tc.fixedMinutes); !got.Equal(tc.want) {
				t.Errorf("staleCutoff = %v, want %v", got, tc.want)
			}
		})
	}
}
