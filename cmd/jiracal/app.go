package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"jiracal/internal/caldav"
	"jiracal/internal/calsync"
	"jiracal/internal/config"
	"jiracal/internal/ics"
	appLog "jiracal/internal/log"
	"jiracal/internal/model"
	"jiracal/internal/report"
)

const (
	logFileMaxSizeMB  = 10
	logFileMaxBackups = 3
)

// app is the state shared by all commands once flags and config are merged.
type app struct {
	configPath string
	flags      *pflag.FlagSet
	now        func() time.Time

	mu  sync.RWMutex
	cfg *config.Config
	loc *time.Location
}

func addConfigFlags(fs *pflag.FlagSet) {
	fs.String("config", config.DefaultPath(), "path to the config file")
	fs.StringP("token", "t", "", "Jira bearer token")
	fs.StringP("jira-domain", "j", "", "Jira host, e.g. jira.example.com")
	fs.StringP("report-filter", "r", "", "path to the report filter JSON")
	fs.StringP("caldav-host", "c", "", "CalDAV server URL")
	fs.StringP("caldav-user", "u", "", "CalDAV user")
	fs.StringP("caldav-pass", "p", "", "CalDAV password (prompted when empty on a terminal)")
	fs.StringP("calendar-name", "n", "", "display name of the target calendar")
	fs.IntP("days", "d", 0, "days back to process, today included")
	fs.String("calendar-file", "", "sync into a local .ics file instead of CalDAV")
	fs.String("timezone", "", `IANA timezone of report times, or "Local"`)
	fs.StringSlice("bucket", nil, "catch-all issue keys left out of event summaries")
	fs.String("log-level", "", "debug, info, warn or error")
}

// applyFlags copies explicitly set flags over cfg. Unset flags never
// override the file or the environment.
func applyFlags(fs *pflag.FlagSet, cfg *config.Config) {
	str := func(name string, dst *string) {
		if fs.Changed(name) {
			*dst, _ = fs.GetString(name)
		}
	}
	str("token", &cfg.Jira.Token)
	str("jira-domain", &cfg.Jira.Domain)
	str("report-filter", &cfg.Jira.ReportFilter)
	str("caldav-host", &cfg.CalDAV.URL)
	str("caldav-user", &cfg.CalDAV.User)
	str("caldav-pass", &cfg.CalDAV.Password)
	str("calendar-name", &cfg.CalDAV.Calendar)
	str("calendar-file", &cfg.CalendarFile)
	str("timezone", &cfg.Timezone)
	str("log-level", &cfg.Log.Level)

	if fs.Changed("days") {
		cfg.Days, _ = fs.GetInt("days")
	}
	if fs.Changed("bucket") {
		cfg.BucketIssues, _ = fs.GetStringSlice("bucket")
	}
}

func (a *app) setup(fs *pflag.FlagSet) error {
	a.flags = fs
	a.configPath, _ = fs.GetString("config")
	if a.now == nil {
		a.now = time.Now
	}

	cfg, loc, err := a.load()
	if err != nil {
		return err
	}

	appLog.SetLevel(appLog.ParseLevel(cfg.Log.Level))
	if cfg.Log.File != "" {
		appLog.UseFile(cfg.Log.File, logFileMaxSizeMB, logFileMaxBackups)
	}

	a.mu.Lock()
	a.cfg, a.loc = cfg, loc
	a.mu.Unlock()

	appLog.Debug("effective config",
		"config_path", a.configPath,
		"jira_domain", cfg.Jira.Domain,
		"report_filter", cfg.Jira.ReportFilter,
		"calendar", cfg.CalDAV.Calendar,
		"calendar_file", cfg.CalendarFile,
		"timezone", loc.String(),
		"days", cfg.Days,
		"bucket_issues", strings.Join(cfg.BucketIssues, ","),
	)
	return nil
}

// load reads the config file and environment, then applies flags.
func (a *app) load() (*config.Config, *time.Location, error) {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return nil, nil, err
	}
	applyFlags(a.flags, cfg)
	cfg.Normalize()

	loc, err := cfg.Location()
	if err != nil {
		return nil, nil, err
	}
	return cfg, loc, nil
}

// reload swaps in the current config file contents. An invalid file keeps
// the running config. The prompted CalDAV password carries over.
func (a *app) reload() error {
	cfg, loc, err := a.load()
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if cfg.CalDAV.Password == "" && cfg.CalDAV.User == a.cfg.CalDAV.User {
		cfg.CalDAV.Password = a.cfg.CalDAV.Password
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Schedule != a.cfg.Schedule {
		appLog.Warn("schedule changes apply after restart", "running", a.cfg.Schedule, "configured", cfg.Schedule)
		cfg.Schedule = a.cfg.Schedule
	}
	appLog.SetLevel(appLog.ParseLevel(cfg.Log.Level))
	a.cfg, a.loc = cfg, loc
	return nil
}

// snapshot returns the config in effect; callers must not mutate it.
func (a *app) snapshot() (*config.Config, *time.Location) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg, a.loc
}

// requireCalendar prompts for a missing CalDAV password and validates the
// full config.
func (a *app) requireCalendar() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	cfg := a.cfg
	if cfg.CalendarFile == "" && cfg.CalDAV.Password == "" && cfg.CalDAV.User != "" {
		pw, err := promptPassword(fmt.Sprintf("CalDAV password for %s: ", cfg.CalDAV.User))
		if err != nil && !errors.Is(err, errNoTerminal) {
			return err
		}
		cfg.CalDAV.Password = pw
	}
	return cfg.Validate()
}

var errNoTerminal = errors.New("stdin is not a terminal")

func promptPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errNoTerminal
	}
	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(pw), nil
}

// window is computed once per run, in the configured timezone.
func (a *app) window(cfg *config.Config, loc *time.Location) model.Window {
	return model.DaysBack(a.now().In(loc), cfg.Days)
}

func newSource(cfg *config.Config, loc *time.Location) (*report.Source, error) {
	filter, err := report.LoadFilter(cfg.Jira.ReportFilter)
	if err != nil {
		return nil, err
	}
	return &report.Source{
		Fetcher:  report.NewFetcher(cfg.Jira.Domain, cfg.Jira.Token, filter),
		Location: loc,
		DumpDir:  cfg.DumpDir,
	}, nil
}

func openCalendar(ctx context.Context, cfg *config.Config, loc *time.Location) (calsync.Calendar, error) {
	if cfg.CalendarFile != "" {
		fc, err := ics.OpenFile(cfg.CalendarFile, loc)
		if err != nil {
			return nil, err
		}
		return fc, nil
	}
	c, err := caldav.Dial(ctx, caldav.Config{
		URL:      cfg.CalDAV.URL,
		User:     cfg.CalDAV.User,
		Password: cfg.CalDAV.Password,
		Calendar: cfg.CalDAV.Calendar,
		Location: loc,
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// syncOnce runs one full fetch, reconcile and apply pass.
func (a *app) syncOnce(ctx context.Context, wipe, dryRun bool) (calsync.Result, error) {
	cfg, loc := a.snapshot()
	w := a.window(cfg, loc)

	src, err := newSource(cfg, loc)
	if err != nil {
		return calsync.Result{Window: w}, err
	}
	cal, err := openCalendar(ctx, cfg, loc)
	if err != nil {
		return calsync.Result{Window: w}, err
	}

	d := &calsync.Driver{
		Source:    src,
		Calendar:  cal,
		Projector: calsync.NewProjector(cfg.BucketIssues),
		DryRun:    dryRun,
	}
	return d.Run(ctx, w, wipe)
}

func printResult(out io.Writer, res calsync.Result) {
	mode := ""
	if res.DryRun {
		mode = " (dry run)"
	}
	fmt.Fprintf(out, "[%s, %s)%s: records=%d created=%d updated=%d unchanged=%d deleted=%d untouched=%d\n",
		res.Window.From.Format(time.DateOnly),
		res.Window.To.Format(time.DateOnly),
		mode,
		res.Records, res.Created, res.Updated, res.Unchanged, res.Deleted, res.Untouched,
	)
}
