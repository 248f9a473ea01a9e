package ics

import (
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"jiracal/internal/model"
)

// parsedEvent is the normalized view of a stored VEVENT, including the
// recurrence data needed to decide whether it touches a window.
type parsedEvent struct {
	Handle      string
	UID         string
	Summary     string
	Description string

	Start time.Time
	End   time.Time

	RawRRule string
	ExDates  []time.Time
}

func (pe parsedEvent) toModel() model.CalendarEvent {
	return model.CalendarEvent{
		Handle:      pe.Handle,
		UID:         pe.UID,
		Start:       pe.Start,
		End:         pe.End,
		Summary:     pe.Summary,
		Description: pe.Description,
	}
}

func parseVEvent(ve *ical.VEvent, loc *time.Location) parsedEvent {
	var out parsedEvent
	out.UID = ve.Id()
	out.Handle = eventHandle(ve)

	// TEXT values are unescaped once by the parser and escaped once by
	// Serialize; they are used as-is here.
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}

	// The library resolves TZID; floating times land in loc.
	if t, err := ve.GetStartAt(); err == nil {
		out.Start = t
	} else if p := ve.GetProperty(ical.ComponentPropertyDtStart); p != nil {
		out.Start, _ = parseICSTime(p.Value, loc)
	}
	if t, err := ve.GetEndAt(); err == nil {
		out.End = t
	} else {
		out.End = out.Start
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RawRRule = p.Value
	}

	// EXDATE can appear multiple times, each with a comma-separated list.
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, err := parseICSTime(part, loc); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}

	return out
}

// parseICSTime parses a basic ICS date/date-time string. Used where the
// library helpers have no parameter context (EXDATE lists).
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)

	// UTC form, e.g., 20250101T090000Z
	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}
	// Local date-time, e.g., 20250101T090000
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, loc)
	}
	// Date-only (all-day), e.g., 20250101
	return time.ParseInLocation("20060102", v, loc)
}

// eventHandle identifies one VEVENT in the file. Overrides of a recurring
// event share the master's UID, so their RECURRENCE-ID is appended.
func eventHandle(ve *ical.VEvent) string {
	uid := ve.Id()
	if p := ve.GetProperty(ical.ComponentPropertyRecurrenceId); p != nil {
		return uid + "#" + strings.TrimSpace(p.Value)
	}
	return uid
}
