package ics

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"
	"github.com/natefinch/atomic"

	appLog "jiracal/internal/log"
	"jiracal/internal/model"
)

const productID = "-//jiracal//worklog sync//EN"

// ErrEventNotFound is returned when an update or delete targets a UID the
// file no longer contains.
var ErrEventNotFound = errors.New("event not found in calendar file")

// FileCalendar is a calendar kept in a local .ics file. It serves the sync
// driver like a CalDAV calendar does; every mutation is written through to
// disk before returning.
type FileCalendar struct {
	mu   sync.Mutex
	path string
	loc  *time.Location
	cal  *ical.Calendar
	now  func() time.Time
}

// OpenFile loads the calendar at path. A missing or empty file starts an
// empty calendar that is created on the first write.
func OpenFile(path string, loc *time.Location) (*FileCalendar, error) {
	if path == "" {
		return nil, errors.New("calendar file path is empty")
	}
	if loc == nil {
		loc = time.Local
	}

	fc := &FileCalendar{path: path, loc: loc, now: time.Now}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		fc.cal = newCalendar()
	case err != nil:
		return nil, err
	case len(bytes.TrimSpace(data)) == 0:
		fc.cal = newCalendar()
	default:
		cal, perr := ical.ParseCalendar(bytes.NewReader(data))
		if perr != nil {
			return nil, fmt.Errorf("parse %s: %w", path, perr)
		}
		fc.cal = cal
	}

	appLog.Info("ics calendar opened", "path", path, "event_count", len(fc.cal.Events()))
	return fc, nil
}

func newCalendar() *ical.Calendar {
	cal := ical.NewCalendar()
	cal.SetProductId(productID)
	cal.SetMethod(ical.MethodPublish)
	return cal
}

// Events returns the events with at least one instance overlapping w.
func (f *FileCalendar) Events(_ context.Context, w model.Window) ([]model.CalendarEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]model.CalendarEvent, 0)
	for _, ve := range f.cal.Events() {
		pe := parseVEvent(ve, f.loc)
		if pe.Start.IsZero() {
			appLog.Debug("ics event without start skipped", "uid", pe.UID)
			continue
		}
		if touchesWindow(pe, w) {
			out = append(out, pe.toModel())
		}
	}
	return out, nil
}

func (f *FileCalendar) Create(_ context.Context, p model.Projection) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	ve := f.cal.AddEvent(uuid.NewString() + "@jiracal")
	f.fill(ve, p)
	return f.save()
}

func (f *FileCalendar) Update(_ context.Context, ev model.CalendarEvent, p model.Projection) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	ve := f.find(ev.Handle)
	if ve == nil {
		return fmt.Errorf("%w: %s", ErrEventNotFound, ev.Handle)
	}
	f.fill(ve, p)
	return f.save()
}

func (f *FileCalendar) Delete(_ context.Context, ev model.CalendarEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	kept := make([]ical.Component, 0, len(f.cal.Components))
	removed := false
	for _, c := range f.cal.Components {
		if ve, ok := c.(*ical.VEvent); ok && eventHandle(ve) == ev.Handle {
			removed = true
			continue
		}
		kept = append(kept, c)
	}
	if !removed {
		return fmt.Errorf("%w: %s", ErrEventNotFound, ev.Handle)
	}
	f.cal.Components = kept
	return f.save()
}

func (f *FileCalendar) find(handle string) *ical.VEvent {
	for _, ve := range f.cal.Events() {
		if eventHandle(ve) == handle {
			return ve
		}
	}
	return nil
}

func (f *FileCalendar) fill(ve *ical.VEvent, p model.Projection) {
	ve.SetDtStampTime(f.now().UTC())
	ve.SetStartAt(p.Start.UTC())
	ve.SetEndAt(p.End.UTC())
	ve.SetSummary(p.Summary)
	ve.SetDescription(p.Description)
}

// save replaces the file atomically so a crash never leaves a half-written
// calendar behind.
func (f *FileCalendar) save() error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return err
	}
	if err := atomic.WriteFile(f.path, strings.NewReader(f.cal.Serialize())); err != nil {
		return fmt.Errorf("write %s: %w", f.path, err)
	}
	// atomic.WriteFile keeps the temp file's mode only for new files.
	return os.Chmod(f.path, 0o600)
}
