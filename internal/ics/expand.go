package ics

import (
	"github.com/teambition/rrule-go"

	appLog "jiracal/internal/log"
	"jiracal/internal/model"
)

// touchesWindow reports whether any instance of the event overlaps w, the
// same question a CalDAV time-range filter answers server-side.
func touchesWindow(pe parsedEvent, w model.Window) bool {
	if pe.RawRRule == "" {
		return w.Overlaps(pe.Start, pe.End)
	}

	r, err := rrule.StrToRRule(pe.RawRRule)
	if err != nil {
		appLog.Error("ics: failed to parse RRULE; using first instance", err, "uid", pe.UID, "rrule", pe.RawRRule)
		return w.Overlaps(pe.Start, pe.End)
	}
	r.DTStart(pe.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range pe.ExDates {
		set.ExDate(ex.In(pe.Start.Location()))
	}

	// An instance starting up to one duration before the window can still
	// reach into it.
	dur := pe.End.Sub(pe.Start)
	from := w.From.Add(-dur).In(pe.Start.Location())
	to := w.To.In(pe.Start.Location())

	for _, start := range set.Between(from, to, true) {
		if w.Overlaps(start, start.Add(dur)) {
			return true
		}
	}
	return false
}
