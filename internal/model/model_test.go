package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecordEndTime(t *testing.T) {
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	r := Record{StartTime: start, DurationSeconds: 5400}
	assert.Equal(t, start.Add(90*time.Minute), r.EndTime())

	zero := Record{StartTime: start}
	assert.True(t, zero.EndTime().Equal(start))
}

func TestDaysBack(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	now := time.Date(2024, 3, 5, 17, 42, 0, 0, loc)

	w := DaysBack(now, 3)

	assert.Equal(t, time.Date(2024, 3, 6, 0, 0, 0, 0, loc), w.To)
	assert.Equal(t, time.Date(2024, 3, 3, 0, 0, 0, 0, loc), w.From)
	assert.Equal(t, w.From.UnixMilli(), w.FromMillis())
	assert.Equal(t, w.To.UnixMilli(), w.ToMillis())
}

func TestDaysBackCrossesMonth(t *testing.T) {
	now := time.Date(2024, 2, 29, 23, 59, 0, 0, time.UTC)
	w := DaysBack(now, 1)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), w.From)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), w.To)
}

func TestWindowOverlaps(t *testing.T) {
	day := func(h int) time.Time { return time.Date(2024, 1, 2, h, 0, 0, 0, time.UTC) }
	w := Window{From: day(0), To: day(0).Add(24 * time.Hour)}

	tests := []struct {
		name       string
		start, end time.Time
		want       bool
	}{
		{"inside", day(9), day(10), true},
		{"ends at window start", day(0).Add(-time.Hour), day(0), false},
		{"starts at window end", w.To, w.To.Add(time.Hour), false},
		{"spans window", day(0).Add(-time.Hour), w.To.Add(time.Hour), true},
		{"zero length inside", day(12), day(12), true},
		{"zero length at end", w.To, w.To, false},
		{"inverted", day(10), day(9), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, w.Overlaps(tc.start, tc.end))
		})
	}
}

func TestCalendarEventMatches(t *testing.T) {
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	p := Projection{Start: start, End: start.Add(time.Hour), Summary: "s", Description: "d"}

	ev := CalendarEvent{
		Start:       start.In(time.FixedZone("X", 7200)),
		End:         start.Add(time.Hour),
		Summary:     "s",
		Description: "d",
	}
	assert.True(t, ev.Matches(p))

	ev.Summary = "other"
	assert.False(t, ev.Matches(p))
}
