package caldav

import (
	"bytes"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"

	"jiracal/internal/model"
)

const productID = "-//jiracal//worklog sync//EN"

// buildCalendar wraps a projection into a single-VEVENT calendar object.
// Times are written in UTC so no VTIMEZONE component is needed.
func buildCalendar(uid string, p model.Projection, stamp time.Time) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropProductID, productID)
	cal.Props.SetText(ical.PropVersion, "2.0")

	ev := ical.NewEvent()
	ev.Props.SetText(ical.PropUID, uid)
	ev.Props.SetDateTime(ical.PropDateTimeStamp, stamp.UTC())
	ev.Props.SetDateTime(ical.PropDateTimeStart, p.Start.UTC())
	ev.Props.SetDateTime(ical.PropDateTimeEnd, p.End.UTC())
	ev.Props.SetText(ical.PropSummary, p.Summary)
	ev.Props.SetText(ical.PropDescription, p.Description)

	cal.Children = append(cal.Children, ev.Component)
	return cal
}

// eventFromObject converts a queried calendar object into a CalendarEvent.
// Only the first VEVENT is used; recurrence overrides share its UID and
// are not correlated separately. ok is false for objects without events.
func eventFromObject(obj caldav.CalendarObject, loc *time.Location) (model.CalendarEvent, bool) {
	if obj.Data == nil {
		return model.CalendarEvent{}, false
	}
	events := obj.Data.Events()
	if len(events) == 0 {
		return model.CalendarEvent{}, false
	}
	ev := events[0]

	out := model.CalendarEvent{
		Handle: obj.Path,
		ETag:   obj.ETag,
		Raw:    encodeRaw(obj.Data),
	}
	out.UID, _ = ev.Props.Text(ical.PropUID)
	out.Summary, _ = ev.Props.Text(ical.PropSummary)
	out.Description, _ = ev.Props.Text(ical.PropDescription)
	if t, err := ev.DateTimeStart(loc); err == nil {
		out.Start = t
	}
	if t, err := ev.DateTimeEnd(loc); err == nil {
		out.End = t
	}
	return out, true
}

// encodeRaw serializes the object back to text. Objects the encoder rejects
// (servers are lenient about required properties) yield an empty string.
func encodeRaw(cal *ical.Calendar) string {
	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return ""
	}
	return buf.String()
}
