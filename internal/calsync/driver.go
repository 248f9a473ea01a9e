package calsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	appLog "jiracal/internal/log"
	"jiracal/internal/model"
)

// ErrCalendarIO wraps any failure of a calendar read or write during a run.
var ErrCalendarIO = errors.New("calendar i/o")

// RecordSource yields the worklog records for a window.
type RecordSource interface {
	Records(ctx context.Context, w model.Window) ([]model.Record, error)
}

// Calendar is the calendar backend a run reads from and writes to. The
// description must be stored verbatim, since the correlation marker lives
// in it.
type Calendar interface {
	Events(ctx context.Context, w model.Window) ([]model.CalendarEvent, error)
	Create(ctx context.Context, p model.Projection) error
	Update(ctx context.Context, ev model.CalendarEvent, p model.Projection) error
	Delete(ctx context.Context, ev model.CalendarEvent) error
}

// Result counts what one run did.
type Result struct {
	Window    model.Window  `json:"window"`
	Records   int           `json:"records"`
	Created   int           `json:"created"`
	Updated   int           `json:"updated"`
	Unchanged int           `json:"unchanged"`
	Deleted   int           `json:"deleted"`
	Untouched int           `json:"untouched"`
	DryRun    bool          `json:"dry_run"`
	Duration  time.Duration `json:"duration"`
}

// Driver runs one fetch → reconcile → apply pass. Steps never overlap.
type Driver struct {
	Source    RecordSource
	Calendar  Calendar
	Projector Projector

	// DryRun logs the plan but never writes to the calendar.
	DryRun bool
}

// Run syncs the window. It stops at the first failing calendar call and
// leaves already-applied actions in place; every action is logged before it
// is attempted so a partial run can be traced.
func (d *Driver) Run(ctx context.Context, w model.Window, wipe bool) (Result, error) {
	started := time.Now()
	res := Result{Window: w, DryRun: d.DryRun}

	appLog.Info("sync run start",
		"from", w.From.Format(time.RFC3339),
		"to", w.To.Format(time.RFC3339),
		"wipe", wipe,
		"dry_run", d.DryRun,
	)

	records, err := d.Source.Records(ctx, w)
	if err != nil {
		return res, err
	}
	res.Records = len(records)

	existing, err := d.Calendar.Events(ctx, w)
	if err != nil {
		return res, fmt.Errorf("%w: query events: %w", ErrCalendarIO, err)
	}

	actions, err := Reconcile(records, existing, wipe)
	if err != nil {
		return res, err
	}
	res.Untouched = len(Untouched(existing, actions))

	appLog.Info("sync plan",
		"records", len(records),
		"existing_events", len(existing),
		"actions", len(actions),
		"untouched", res.Untouched,
	)

	for _, a := range actions {
		if err := d.apply(ctx, a, &res); err != nil {
			res.Duration = time.Since(started)
			return res, err
		}
	}

	res.Duration = time.Since(started)
	appLog.Info("sync run done",
		"created", res.Created,
		"updated", res.Updated,
		"unchanged", res.Unchanged,
		"deleted", res.Deleted,
		"untouched", res.Untouched,
		"duration", res.Duration,
	)
	return res, nil
}

func (d *Driver) apply(ctx context.Context, a Action, res *Result) error {
	switch a.Kind {
	case ActionDelete:
		appLog.Info("delete event", actionKV(a)...)
		if !d.DryRun {
			if err := d.Calendar.Delete(ctx, *a.Event); err != nil {
				return fmt.Errorf("%w: delete %s: %w", ErrCalendarIO, a.Event.Handle, err)
			}
		}
		res.Deleted++

	case ActionCreate:
		p := d.Projector.Project(*a.Record)
		appLog.Info("create event", actionKV(a, "summary", p.Summary)...)
		if !d.DryRun {
			if err := d.Calendar.Create(ctx, p); err != nil {
				return fmt.Errorf("%w: create worklog %s: %w", ErrCalendarIO, a.Record.WorklogID, err)
			}
		}
		res.Created++

	case ActionUpdate:
		p := d.Projector.Project(*a.Record)
		if a.Event.Matches(p) {
			appLog.Debug("event unchanged", actionKV(a)...)
			res.Unchanged++
			return nil
		}
		appLog.Info("update event", actionKV(a, "summary", p.Summary)...)
		if !d.DryRun {
			if err := d.Calendar.Update(ctx, *a.Event, p); err != nil {
				return fmt.Errorf("%w: update %s: %w", ErrCalendarIO, a.Event.Handle, err)
			}
		}
		res.Updated++

	default:
		return fmt.Errorf("unknown action kind %v", a.Kind)
	}
	return nil
}

func actionKV(a Action, extra ...any) []any {
	kv := make([]any, 0, 8+len(extra))
	if a.Record != nil {
		kv = append(kv,
			"worklog", a.Record.WorklogID,
			"issue", a.Record.IssueKey,
			"start", a.Record.StartTime.Format(time.RFC3339),
		)
	}
	if a.Event != nil {
		kv = append(kv, "handle", a.Event.Handle)
	}
	return append(kv, extra...)
}
