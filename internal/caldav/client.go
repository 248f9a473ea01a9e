package caldav

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"
	"github.com/google/uuid"

	appLog "jiracal/internal/log"
	"jiracal/internal/model"
)

// ErrCalendarNotFound means no calendar owned by the principal carries the
// configured name.
var ErrCalendarNotFound = errors.New("calendar not found")

// Config holds connection settings for a CalDAV server.
type Config struct {
	URL      string
	User     string
	Password string
	// Calendar is the display name of the target calendar; matched exactly.
	Calendar string
	// Location is used for floating times returned by the server.
	Location *time.Location
}

// Client is the CalDAV-backed calendar used by the sync driver.
type Client struct {
	dav      *caldav.Client
	calendar caldav.Calendar
	loc      *time.Location
	now      func() time.Time
}

// Dial connects to the server, walks principal → calendar home set →
// calendars and resolves the configured calendar by name.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("caldav url is empty")
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}

	httpClient := webdav.HTTPClientWithBasicAuth(&http.Client{Timeout: 30 * time.Second}, cfg.User, cfg.Password)
	dav, err := caldav.NewClient(httpClient, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("caldav client: %w", err)
	}

	appLog.Info("caldav connect", "url", redactURL(cfg.URL), "user", cfg.User)

	principal, err := dav.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return nil, fmt.Errorf("find principal: %w", err)
	}
	homeSet, err := dav.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return nil, fmt.Errorf("find calendar home set: %w", err)
	}
	calendars, err := dav.FindCalendars(ctx, homeSet)
	if err != nil {
		return nil, fmt.Errorf("list calendars: %w", err)
	}

	cal, err := pickCalendar(calendars, cfg.Calendar)
	if err != nil {
		return nil, err
	}
	appLog.Info("caldav calendar resolved", "name", cal.Name, "path", cal.Path)

	return &Client{
		dav:      dav,
		calendar: cal,
		loc:      loc,
		now:      time.Now,
	}, nil
}

func pickCalendar(calendars []caldav.Calendar, name string) (caldav.Calendar, error) {
	names := make([]string, 0, len(calendars))
	for _, c := range calendars {
		if c.Name == name {
			return c, nil
		}
		names = append(names, c.Name)
	}
	return caldav.Calendar{}, fmt.Errorf("%w: %q (available: %s)", ErrCalendarNotFound, name, strings.Join(names, ", "))
}

// Events returns the events overlapping the window.
func (c *Client) Events(ctx context.Context, w model.Window) ([]model.CalendarEvent, error) {
	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:     "VCALENDAR",
			AllProps: true,
			AllComps: true,
		},
		CompFilter: caldav.CompFilter{
			Name: "VCALENDAR",
			Comps: []caldav.CompFilter{{
				Name:  "VEVENT",
				Start: w.From,
				End:   w.To,
			}},
		},
	}

	objects, err := c.dav.QueryCalendar(ctx, c.calendar.Path, query)
	if err != nil {
		return nil, err
	}

	events := make([]model.CalendarEvent, 0, len(objects))
	for _, obj := range objects {
		ev, ok := eventFromObject(obj, c.loc)
		if !ok {
			appLog.Debug("caldav object without VEVENT skipped", "path", obj.Path)
			continue
		}
		events = append(events, ev)
	}
	appLog.Info("caldav events queried", "count", len(events))
	return events, nil
}

// Create stores p as a new calendar object named after a fresh UID.
func (c *Client) Create(ctx context.Context, p model.Projection) error {
	uid := uuid.NewString()
	objPath := path.Join(c.calendar.Path, uid+".ics")
	_, err := c.dav.PutCalendarObject(ctx, objPath, buildCalendar(uid, p, c.now()))
	return err
}

// Update overwrites the object behind ev, keeping its UID.
func (c *Client) Update(ctx context.Context, ev model.CalendarEvent, p model.Projection) error {
	uid := ev.UID
	if uid == "" {
		uid = strings.TrimSuffix(path.Base(ev.Handle), ".ics")
	}
	_, err := c.dav.PutCalendarObject(ctx, ev.Handle, buildCalendar(uid, p, c.now()))
	return err
}

// Delete removes the object behind ev.
func (c *Client) Delete(ctx context.Context, ev model.CalendarEvent) error {
	return c.dav.RemoveAll(ctx, ev.Handle)
}

// redactURL keeps scheme and host only.
func redactURL(u string) string {
	parsed, err := url.Parse(u)
	if err != nil || parsed.Host == "" {
		return "caldav://...(redacted)"
	}
	return parsed.Scheme + "://" + parsed.Host + "/...(redacted)"
}
