package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/natefinch/atomic"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides, e.g. JIRACAL_JIRA_TOKEN.
const EnvPrefix = "JIRACAL"

// JiraConfig describes the report endpoint.
type JiraConfig struct {
	// Domain is the tracker host, e.g. "jira.example.com".
	Domain string `yaml:"domain" mapstructure:"domain"`
	// Token is the bearer token for the report endpoint.
	Token string `yaml:"token" mapstructure:"token"`
	// ReportFilter is the path to the saved report filter JSON.
	ReportFilter string `yaml:"report_filter" mapstructure:"report_filter"`
}

// CalDAVConfig describes the target calendar server.
type CalDAVConfig struct {
	URL      string `yaml:"url" mapstructure:"url"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	// Calendar is the exact display name of the target calendar.
	Calendar string `yaml:"calendar" mapstructure:"calendar"`
}

// LogConfig controls log verbosity and an optional rotating log file.
type LogConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
	File  string `yaml:"file" mapstructure:"file"`
}

// BasicAuthConfig protects the status server.
type BasicAuthConfig struct {
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	Jira   JiraConfig   `yaml:"jira" mapstructure:"jira"`
	CalDAV CalDAVConfig `yaml:"caldav" mapstructure:"caldav"`

	// CalendarFile, if set, replaces the CalDAV server with a local .ics file.
	CalendarFile string `yaml:"calendar_file,omitempty" mapstructure:"calendar_file"`

	// Timezone is the IANA zone report times are written in (e.g. "Europe/Berlin").
	// "Local" uses the host zone.
	Timezone string `yaml:"timezone" mapstructure:"timezone"`

	// Days is how many days back (including today) each run processes.
	Days int `yaml:"days" mapstructure:"days"`

	// BucketIssues are catch-all issue keys left out of event summaries.
	BucketIssues []string `yaml:"bucket_issues" mapstructure:"bucket_issues"`

	// Schedule is the cron expression used by `serve`.
	Schedule string `yaml:"schedule" mapstructure:"schedule"`

	// Listen is the status server address for `serve`; empty disables it.
	Listen    string           `yaml:"listen,omitempty" mapstructure:"listen"`
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" mapstructure:"basic_auth"`

	Log LogConfig `yaml:"log" mapstructure:"log"`

	// DumpDir keeps a copy of every downloaded report when set.
	DumpDir string `yaml:"dump_dir,omitempty" mapstructure:"dump_dir"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Jira: JiraConfig{
			ReportFilter: "report-filter.json",
		},
		Timezone:     "Local",
		Days:         3,
		BucketIssues: []string{"ALDE-2", "ALDE-3"},
		Schedule:     "0 * * * *",
		Log: LogConfig{
			Level: "info",
		},
	}
}

// DefaultPath is ~/.config/jiracal/config.yaml, or a relative fallback when
// no config dir can be determined.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "jiracal.yaml"
	}
	return filepath.Join(dir, "jiracal", "config.yaml")
}

// Normalize fills in missing/zero values with defaults so partially-filled
// configs still behave.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Jira.ReportFilter == "" {
		c.Jira.ReportFilter = def.Jira.ReportFilter
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if c.Days <= 0 {
		c.Days = def.Days
	}
	if c.BucketIssues == nil {
		c.BucketIssues = def.BucketIssues
	}
	if c.Schedule == "" {
		c.Schedule = def.Schedule
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	c.Jira.Domain = strings.TrimSpace(c.Jira.Domain)
	c.CalDAV.URL = strings.TrimSpace(c.CalDAV.URL)
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Validate checks that everything one sync run needs is present.
func (c *Config) Validate() error {
	errs := c.reportErrors()
	if c.CalendarFile == "" {
		if c.CalDAV.URL == "" {
			errs = append(errs, errors.New("caldav.url is required (or set calendar_file)"))
		}
		if c.CalDAV.Calendar == "" {
			errs = append(errs, errors.New("caldav.calendar is required (or set calendar_file)"))
		}
	}
	return errors.Join(errs...)
}

// ValidateReport checks only what downloading the report needs.
func (c *Config) ValidateReport() error {
	return errors.Join(c.reportErrors()...)
}

func (c *Config) reportErrors() []error {
	var errs []error
	if c.Jira.Domain == "" {
		errs = append(errs, errors.New("jira.domain is required"))
	}
	if c.Jira.Token == "" {
		errs = append(errs, errors.New("jira.token is required"))
	}
	if c.Jira.ReportFilter == "" {
		errs = append(errs, errors.New("jira.report_filter is required"))
	}
	if c.Days <= 0 {
		errs = append(errs, errors.New("days must be positive"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	return errs
}

// Load reads the YAML config at path and applies JIRACAL_* environment
// overrides. A missing file is not an error: defaults plus environment are
// returned, so a fully env-driven setup needs no file.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, DefaultConfig())

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Normalize()
	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override keys that
// the file does not mention.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("jira.domain", d.Jira.Domain)
	v.SetDefault("jira.token", d.Jira.Token)
	v.SetDefault("jira.report_filter", d.Jira.ReportFilter)
	v.SetDefault("caldav.url", d.CalDAV.URL)
	v.SetDefault("caldav.user", d.CalDAV.User)
	v.SetDefault("caldav.password", d.CalDAV.Password)
	v.SetDefault("caldav.calendar", d.CalDAV.Calendar)
	v.SetDefault("calendar_file", d.CalendarFile)
	v.SetDefault("timezone", d.Timezone)
	v.SetDefault("days", d.Days)
	v.SetDefault("bucket_issues", d.BucketIssues)
	v.SetDefault("schedule", d.Schedule)
	v.SetDefault("listen", d.Listen)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("dump_dir", d.DumpDir)
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600, since the file holds secrets.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return err
	}
	// The file holds credentials; an existing file's mode is not kept.
	return os.Chmod(path, 0o600)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
