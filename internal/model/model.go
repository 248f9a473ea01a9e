package model

import "time"

// Record is one worklog row from the time-tracking report, normalized into
// typed fields. Records are never mutated after parsing.
type Record struct {
	StartTime time.Time
	// DurationSeconds is the booked time; never negative.
	DurationSeconds int64

	// Description is the worklog text; may span several lines.
	Description string

	IssueKey   string
	IssueTitle string

	// WorklogID is stable across runs for the same worklog and is the
	// correlation key between a record and its calendar event.
	WorklogID string
}

// EndTime is StartTime plus the booked duration.
func (r Record) EndTime() time.Time {
	return r.StartTime.Add(time.Duration(r.DurationSeconds) * time.Second)
}

// Projection holds the calendar-facing fields computed from a Record. It is
// written verbatim into an event on create or update.
type Projection struct {
	Start       time.Time
	End         time.Time
	Summary     string
	Description string
}

// CalendarEvent is an event as stored by a calendar backend.
type CalendarEvent struct {
	// Handle is the backend's opaque reference used to update or delete the
	// event (a CalDAV object path, or a UID for file calendars).
	Handle string
	UID    string
	ETag   string

	Start       time.Time
	End         time.Time
	Summary     string
	Description string

	// Raw is the event's stored textual representation, when the backend
	// exposes one. Line folding and escaping are whatever the server chose.
	Raw string
}

// Matches reports whether the event already carries exactly the projected
// content, in which case writing it again would be a no-op.
func (e CalendarEvent) Matches(p Projection) bool {
	return e.Start.Equal(p.Start) &&
		e.End.Equal(p.End) &&
		e.Summary == p.Summary &&
		e.Description == p.Description
}

// Window is the half-open time range [From, To) processed by one run.
type Window struct {
	From time.Time
	To   time.Time
}

// DaysBack returns the window covering the given number of whole days up to
// and including now's day: [midnight(now)+1d-days, midnight(now)+1d) in
// now's location.
func DaysBack(now time.Time, days int) Window {
	y, m, d := now.Date()
	to := time.Date(y, m, d+1, 0, 0, 0, 0, now.Location())
	return Window{
		From: to.AddDate(0, 0, -days),
		To:   to,
	}
}

// FromMillis and ToMillis are the window bounds in Unix milliseconds, the
// unit the report filter expects.
func (w Window) FromMillis() int64 { return w.From.UnixMilli() }
func (w Window) ToMillis() int64   { return w.To.UnixMilli() }

// Overlaps reports whether [start, end) intersects the window. Zero-length
// events count when they sit inside the window.
func (w Window) Overlaps(start, end time.Time) bool {
	if end.Before(start) {
		return false
	}
	if start.Equal(end) {
		return !start.Before(w.From) && start.Before(w.To)
	}
	return start.Before(w.To) && end.After(w.From)
}
