package ics

import (
	"io"
	"time"

	"jiracal/internal/calsync"
	"jiracal/internal/model"
)

// ExportUID is the UID given to a worklog's VEVENT in exported files.
// Re-exporting the same worklog yields the same UID, so calendar apps
// importing the file replace rather than duplicate.
func ExportUID(worklogID string) string {
	return "worklog-" + worklogID + "@jiracal"
}

// Export writes the projection of every record as one VEVENT of a single
// calendar.
func Export(w io.Writer, records []model.Record, p calsync.Projector, stamp time.Time) error {
	cal := newCalendar()
	for _, r := range records {
		proj := p.Project(r)
		ve := cal.AddEvent(ExportUID(r.WorklogID))
		ve.SetDtStampTime(stamp.UTC())
		ve.SetStartAt(proj.Start.UTC())
		ve.SetEndAt(proj.End.UTC())
		ve.SetSummary(proj.Summary)
		ve.SetDescription(proj.Description)
	}
	_, err := io.WriteString(w, cal.Serialize())
	return err
}
