package ics

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jiracal/internal/calsync"
	"jiracal/internal/model"
)

func day(d, h int) time.Time {
	return time.Date(2024, 1, d, h, 0, 0, 0, time.UTC)
}

var jan2 = model.Window{From: day(2, 0), To: day(3, 0)}

func proj(summary, desc string, start time.Time) model.Projection {
	return model.Projection{Start: start, End: start.Add(time.Hour), Summary: summary, Description: desc}
}

const foreignICS = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//test//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:daily-standup\r\n" +
	"DTSTAMP:20231201T000000Z\r\n" +
	"DTSTART:20231201T080000Z\r\n" +
	"DTEND:20231201T081500Z\r\n" +
	"RRULE:FREQ=DAILY\r\n" +
	"SUMMARY:Daily\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:skipped-daily\r\n" +
	"DTSTAMP:20231201T000000Z\r\n" +
	"DTSTART:20231201T120000Z\r\n" +
	"DTEND:20231201T130000Z\r\n" +
	"RRULE:FREQ=DAILY;COUNT=40\r\n" +
	"EXDATE:20240102T120000Z\r\n" +
	"SUMMARY:Lunch\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:last-year\r\n" +
	"DTSTAMP:20231201T000000Z\r\n" +
	"DTSTART:20231201T090000Z\r\n" +
	"DTEND:20231201T100000Z\r\n" +
	"SUMMARY:Old\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func TestFileCalendarCreateAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "work.ics")
	ctx := context.Background()

	fc, err := OpenFile(path, time.UTC)
	require.NoError(t, err)

	desc := "PROJ-1: Login\n\nFixed it, finally; really\n\n" + calsync.FormatMarker("42")
	require.NoError(t, fc.Create(ctx, proj("PROJ-1: Fixed it", desc, day(2, 9))))
	require.NoError(t, fc.Create(ctx, proj("Elsewhere", "x", day(5, 9))))

	reopened, err := OpenFile(path, time.UTC)
	require.NoError(t, err)

	events, err := reopened.Events(ctx, jan2)
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, "PROJ-1: Fixed it", ev.Summary)
	assert.Equal(t, desc, ev.Description)
	assert.True(t, ev.Start.Equal(day(2, 9)))
	assert.True(t, ev.End.Equal(day(2, 10)))
	assert.NotEmpty(t, ev.Handle)

	id, ok := calsync.EventID(ev)
	require.True(t, ok)
	assert.Equal(t, "42", id)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileCalendarUpdateAndDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "work.ics")
	ctx := context.Background()

	fc, err := OpenFile(path, time.UTC)
	require.NoError(t, err)
	require.NoError(t, fc.Create(ctx, proj("first", "[JIRA:1]", day(2, 9))))

	events, err := fc.Events(ctx, jan2)
	require.NoError(t, err)
	require.Len(t, events, 1)

	require.NoError(t, fc.Update(ctx, events[0], proj("renamed", "[JIRA:1]", day(2, 11))))
	events, err = fc.Events(ctx, jan2)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "renamed", events[0].Summary)
	assert.True(t, events[0].Start.Equal(day(2, 11)))

	require.NoError(t, fc.Delete(ctx, events[0]))
	events, err = fc.Events(ctx, jan2)
	require.NoError(t, err)
	assert.Empty(t, events)

	err = fc.Delete(ctx, model.CalendarEvent{Handle: "nope"})
	assert.ErrorIs(t, err, ErrEventNotFound)
	err = fc.Update(ctx, model.CalendarEvent{Handle: "nope"}, proj("x", "y", day(2, 9)))
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestFileCalendarRecurringForeignEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.ics")
	require.NoError(t, os.WriteFile(path, []byte(foreignICS), 0o600))

	fc, err := OpenFile(path, time.UTC)
	require.NoError(t, err)

	events, err := fc.Events(context.Background(), jan2)
	require.NoError(t, err)

	var uids []string
	for _, ev := range events {
		uids = append(uids, ev.UID)
	}
	assert.Equal(t, []string{"daily-standup"}, uids, "EXDATE and past single events are excluded")
}

func TestOpenFileEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.ics")
	require.NoError(t, os.WriteFile(path, []byte("\n"), 0o600))

	fc, err := OpenFile(path, time.UTC)
	require.NoError(t, err)
	events, err := fc.Events(context.Background(), jan2)
	require.NoError(t, err)
	assert.Empty(t, events)
}

type staticSource []model.Record

func (s staticSource) Records(context.Context, model.Window) ([]model.Record, error) {
	return s, nil
}

func TestDriverAgainstFileCalendarIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "work.ics")
	ctx := context.Background()

	records := staticSource{
		{StartTime: day(2, 9), DurationSeconds: 900, Description: "Standup", IssueKey: "ALDE-2", IssueTitle: "Meetings", WorklogID: "W1"},
		{StartTime: day(2, 10), DurationSeconds: 3600, Description: "Login, again\nwith tests", IssueKey: "PROJ-7", IssueTitle: "Auth", WorklogID: "W2"},
	}

	run := func(wipe bool) calsync.Result {
		fc, err := OpenFile(path, time.UTC)
		require.NoError(t, err)
		d := &calsync.Driver{Source: records, Calendar: fc, Projector: calsync.NewProjector([]string{"ALDE-2"})}
		res, err := d.Run(ctx, jan2, wipe)
		require.NoError(t, err)
		return res
	}

	first := run(false)
	assert.Equal(t, 2, first.Created)

	second := run(false)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 0, second.Updated)
	assert.Equal(t, 2, second.Unchanged)

	wiped := run(true)
	assert.Equal(t, 2, wiped.Deleted)
	assert.Equal(t, 2, wiped.Created)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "BEGIN:VEVENT"))
}

func TestExport(t *testing.T) {
	records := []model.Record{
		{StartTime: day(2, 9), DurationSeconds: 900, Description: "Standup", IssueKey: "ALDE-2", IssueTitle: "Meetings", WorklogID: "W1"},
		{StartTime: day(2, 10), DurationSeconds: 3600, Description: "Feature", IssueKey: "PROJ-7", IssueTitle: "Auth", WorklogID: "W2"},
	}

	var buf bytes.Buffer
	require.NoError(t, Export(&buf, records, calsync.NewProjector([]string{"ALDE-2"}), day(1, 0)))

	cal, err := ical.ParseCalendar(strings.NewReader(buf.String()))
	require.NoError(t, err)

	events := cal.Events()
	require.Len(t, events, 2)
	assert.Equal(t, ExportUID("W1"), events[0].Id())
	assert.Equal(t, "Standup", events[0].GetProperty(ical.ComponentPropertySummary).Value)
	assert.Equal(t, "PROJ-7: Feature", events[1].GetProperty(ical.ComponentPropertySummary).Value)

	pe := parseVEvent(events[1], time.UTC)
	id, ok := calsync.ExtractID(pe.Description)
	require.True(t, ok)
	assert.Equal(t, "W2", id)
}

func TestFileCalendarKeepsSpecialCharacters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "work.ics")
	ctx := context.Background()

	fc, err := OpenFile(path, time.UTC)
	require.NoError(t, err)

	p := proj(`C:\new, a;b`, "path C:\\new\\dir, a;b\nline2\n\n[JIRA:W1]", day(2, 9))
	require.NoError(t, fc.Create(ctx, p))

	reopened, err := OpenFile(path, time.UTC)
	require.NoError(t, err)
	events, err := reopened.Events(ctx, jan2)
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, p.Summary, ev.Summary)
	assert.Equal(t, p.Description, ev.Description)
	assert.True(t, ev.Matches(p), "a reloaded event equals its projection")
}

const overrideICS = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//test//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:meet@x\r\n" +
	"DTSTAMP:20231201T000000Z\r\n" +
	"DTSTART:20231201T080000Z\r\n" +
	"DTEND:20231201T083000Z\r\n" +
	"RRULE:FREQ=DAILY\r\n" +
	"SUMMARY:Sync\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:meet@x\r\n" +
	"DTSTAMP:20231201T000000Z\r\n" +
	"RECURRENCE-ID:20240102T080000Z\r\n" +
	"DTSTART:20240102T090000Z\r\n" +
	"DTEND:20240102T093000Z\r\n" +
	"SUMMARY:Sync (moved)\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func TestWipeRemovesRecurrenceOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.ics")
	require.NoError(t, os.WriteFile(path, []byte(overrideICS), 0o600))
	ctx := context.Background()

	fc, err := OpenFile(path, time.UTC)
	require.NoError(t, err)

	events, err := fc.Events(ctx, jan2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.NotEqual(t, events[0].Handle, events[1].Handle)

	d := &calsync.Driver{Source: staticSource{}, Calendar: fc, Projector: calsync.NewProjector(nil)}
	res, err := d.Run(ctx, jan2, true)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Deleted)

	events, err = fc.Events(ctx, jan2)
	require.NoError(t, err)
	assert.Empty(t, events)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "BEGIN:VEVENT")
}
