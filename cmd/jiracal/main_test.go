package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jiracal/internal/config"
	"jiracal/internal/report"
)

func TestApplyFlagsOnlyChanged(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	addConfigFlags(fs)
	require.NoError(t, fs.Parse([]string{"-t", "tok", "-n", "Work log", "--bucket", "OPS-1,OPS-2"}))

	cfg := config.DefaultConfig()
	cfg.Days = 5
	cfg.Jira.Domain = "jira.example.com"
	applyFlags(fs, cfg)

	assert.Equal(t, "tok", cfg.Jira.Token)
	assert.Equal(t, "Work log", cfg.CalDAV.Calendar)
	assert.Equal(t, []string{"OPS-1", "OPS-2"}, cfg.BucketIssues)
	assert.Equal(t, 5, cfg.Days, "unset int flag keeps config value")
	assert.Equal(t, "jira.example.com", cfg.Jira.Domain, "unset string flag keeps config value")
}

// fixture serves a two-row report dated today (UTC) and returns the flags
// pointing a run at it.
func fixture(t *testing.T) (args []string, dir string, hits *int) {
	t.Helper()
	dir = t.TempDir()

	today := time.Now().UTC().Truncate(24 * time.Hour)
	body := "Issue Key,Issue Summary,Start Time,Time Spent (s),Worklog Description,Worklog Id\n" +
		fmt.Sprintf("ALDE-2,Meetings,%s,900,Standup,W1\n", today.Add(9*time.Hour).Format(report.StartTimeLayout)) +
		fmt.Sprintf("PROJ-7,Auth,%s,3600,\"Login\nwith tests\",W2\n", today.Add(10*time.Hour).Format(report.StartTimeLayout))

	hits = new(int)
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		*hits++
		if r.Header.Get("Authorization") != "Bearer tok" {
			rw.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = rw.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	filter := filepath.Join(dir, "filter.json")
	require.NoError(t, os.WriteFile(filter, []byte(`{"filterCondition":{}}`), 0o600))

	args = []string{
		"--config", filepath.Join(dir, "config.yaml"),
		"-t", "tok",
		"-j", srv.URL,
		"-r", filter,
		"--timezone", "UTC",
		"-d", "2",
		"--bucket", "ALDE-2",
	}
	return args, dir, hits
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSyncIntoCalendarFileIsIdempotent(t *testing.T) {
	args, dir, _ := fixture(t)
	calFile := filepath.Join(dir, "work.ics")
	args = append(args, "--calendar-file", calFile)

	out, err := execute(t, args...)
	require.NoError(t, err)
	assert.Contains(t, out, "records=2 created=2 updated=0 unchanged=0")

	out, err = execute(t, args...)
	require.NoError(t, err)
	assert.Contains(t, out, "created=0 updated=0 unchanged=2")

	out, err = execute(t, append(args, "--wipe")...)
	require.NoError(t, err)
	assert.Contains(t, out, "created=2 updated=0 unchanged=0 deleted=2")

	data, err := os.ReadFile(calFile)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "BEGIN:VEVENT"))
	assert.Contains(t, string(data), "SUMMARY:Standup")
}

func TestSyncDryRunLeavesFileAlone(t *testing.T) {
	args, dir, _ := fixture(t)
	calFile := filepath.Join(dir, "work.ics")

	out, err := execute(t, append(args, "--calendar-file", calFile, "--dry-run")...)
	require.NoError(t, err)
	assert.Contains(t, out, "(dry run)")
	assert.Contains(t, out, "created=2")

	data, err := os.ReadFile(calFile)
	if err == nil {
		assert.NotContains(t, string(data), "BEGIN:VEVENT")
	}
}

func TestSyncRequiresCalendar(t *testing.T) {
	args, _, hits := fixture(t)
	_, err := execute(t, args...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "caldav.url is required")
	assert.Zero(t, *hits, "nothing is fetched before the config is valid")
}

func TestSyncReportErrorFailsRun(t *testing.T) {
	args, dir, _ := fixture(t)
	args = append(args, "-t", "wrong", "--calendar-file", filepath.Join(dir, "work.ics"))

	_, err := execute(t, args...)
	require.ErrorIs(t, err, report.ErrFetch)
}

func TestExport(t *testing.T) {
	args, dir, _ := fixture(t)
	out := filepath.Join(dir, "export", "worklogs.ics")

	stdout, err := execute(t, append([]string{"export", "--out", out}, args...)...)
	require.NoError(t, err)
	assert.Contains(t, stdout, "wrote 2 events")

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "UID:worklog-W1@jiracal")
	assert.Contains(t, string(data), "SUMMARY:PROJ-7: Login")
}

func TestInitConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	_, err := execute(t, "init-config", "--config", path, "-j", "jira.example.com", "-d", "7")
	require.NoError(t, err)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "jira.example.com", cfg.Jira.Domain)
	assert.Equal(t, 7, cfg.Days)

	_, err = execute(t, "init-config", "--config", path)
	require.ErrorContains(t, err, "already exists")

	_, err = execute(t, "init-config", "--config", path, "--force")
	require.NoError(t, err)
}

func TestReloadKeepsPromptedPasswordAndSchedule(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	write := func(days int, schedule string) {
		cfg := config.DefaultConfig()
		cfg.Jira.Domain = "jira.example.com"
		cfg.Jira.Token = "tok"
		cfg.CalDAV.URL = "https://dav.example.com"
		cfg.CalDAV.User = "alice"
		cfg.CalDAV.Calendar = "Work log"
		cfg.Days = days
		cfg.Schedule = schedule
		require.NoError(t, cfg.Save(path))
	}
	write(3, "0 * * * *")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	addConfigFlags(fs)
	require.NoError(t, fs.Parse([]string{"--config", path}))

	a := &app{}
	require.NoError(t, a.setup(fs))
	a.cfg.CalDAV.Password = "prompted"

	write(5, "*/5 * * * *")
	require.NoError(t, a.reload())

	cfg, _ := a.snapshot()
	assert.Equal(t, 5, cfg.Days)
	assert.Equal(t, "prompted", cfg.CalDAV.Password)
	assert.Equal(t, "0 * * * *", cfg.Schedule, "schedule changes wait for a restart")

	require.NoError(t, os.WriteFile(path, []byte("jira:\n  domain: \"\"\n"), 0o600))
	require.Error(t, a.reload())
	cfg, _ = a.snapshot()
	assert.Equal(t, "jira.example.com", cfg.Jira.Domain, "invalid config is not applied")
}
