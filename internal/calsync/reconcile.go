package calsync

import (
	"errors"
	"fmt"
	"strings"

	"jiracal/internal/model"
)

// ActionKind says what the driver must do with an Action.
type ActionKind int

const (
	ActionCreate ActionKind = iota + 1
	ActionUpdate
	ActionDelete
)

func (k ActionKind) String() string {
	switch k {
	case ActionCreate:
		return "create"
	case ActionUpdate:
		return "update"
	case ActionDelete:
		return "delete"
	default:
		return fmt.Sprintf("ActionKind(%d)", int(k))
	}
}

// Action is one step of a reconciliation plan.
//   - create: Record is set, Event is nil.
//   - update: both are set; Event is overwritten with Record's projection.
//   - delete: Event is set, Record is nil.
type Action struct {
	Kind   ActionKind
	Record *model.Record
	Event  *model.CalendarEvent
}

// ErrDuplicateMarker is returned when a record correlates with more than one
// existing event. Picking one would silently leave the other stale, so the
// run refuses instead.
var ErrDuplicateMarker = errors.New("duplicate correlation marker")

// DuplicateMarkerError names the worklog and the events sharing its marker.
type DuplicateMarkerError struct {
	WorklogID string
	Handles   []string
}

func (e *DuplicateMarkerError) Error() string {
	return fmt.Sprintf("%s: worklog %s is referenced by %d events (%s)",
		ErrDuplicateMarker, e.WorklogID, len(e.Handles), strings.Join(e.Handles, ", "))
}

func (e *DuplicateMarkerError) Is(target error) bool {
	return target == ErrDuplicateMarker
}

// Reconcile computes the actions that bring existing events in line with
// records for one window. In wipe mode every existing event is deleted
// first and every record is created afresh. Otherwise each record updates
// the event carrying its marker, or is created when none does; events with
// no matching record are left alone.
//
// Actions come out deterministically: deletes in event order, then one
// action per record in record order.
func Reconcile(records []model.Record, existing []model.CalendarEvent, wipe bool) ([]Action, error) {
	actions := make([]Action, 0, len(records)+len(existing))

	// working[i] is nil once the event has been claimed.
	working := make([]*model.CalendarEvent, len(existing))
	for i := range existing {
		working[i] = &existing[i]
	}

	if wipe {
		for _, ev := range working {
			actions = append(actions, Action{Kind: ActionDelete, Event: ev})
		}
		working = nil
	}

	// Index marker -> working positions, in event order.
	byID := make(map[string][]int)
	for i, ev := range working {
		if id, ok := EventID(*ev); ok {
			byID[id] = append(byID[id], i)
		}
	}

	for i := range records {
		rec := &records[i]

		var hit []int
		for _, j := range byID[rec.WorklogID] {
			if working[j] != nil {
				hit = append(hit, j)
			}
		}

		switch len(hit) {
		case 0:
			actions = append(actions, Action{Kind: ActionCreate, Record: rec})
		case 1:
			actions = append(actions, Action{Kind: ActionUpdate, Record: rec, Event: working[hit[0]]})
			working[hit[0]] = nil
		default:
			handles := make([]string, 0, len(hit))
			for _, j := range hit {
				handles = append(handles, working[j].Handle)
			}
			return nil, &DuplicateMarkerError{WorklogID: rec.WorklogID, Handles: handles}
		}
	}

	return actions, nil
}

// Untouched returns the existing events no action refers to: orphans whose
// worklog vanished or moved out of the window.
func Untouched(existing []model.CalendarEvent, actions []Action) []model.CalendarEvent {
	claimed := make(map[*model.CalendarEvent]struct{}, len(actions))
	for _, a := range actions {
		if a.Event != nil {
			claimed[a.Event] = struct{}{}
		}
	}
	var out []model.CalendarEvent
	for i := range existing {
		if _, ok := claimed[&existing[i]]; !ok {
			out = append(out, existing[i])
		}
	}
	return out
}
