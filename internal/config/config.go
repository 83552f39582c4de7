// Package config provides configuration loading for formclaw.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"dario.cat/mergo"
	"github.com/roelfdiedericks/formclaw/internal/answer"
	"github.com/roelfdiedericks/formclaw/internal/browser"
	"github.com/roelfdiedericks/formclaw/internal/dom"
	"github.com/roelfdiedericks/formclaw/internal/extract"
	"github.com/roelfdiedericks/formclaw/internal/form"
	. "github.com/roelfdiedericks/formclaw/internal/logging"
	"github.com/roelfdiedericks/formclaw/internal/paths"
	"github.com/roelfdiedericks/formclaw/internal/schedule"
)

// Config represents the formclaw configuration (formclaw.json).
type Config struct {
	Target    TargetConfig          `json:"target"`
	Browser   browser.BrowserConfig `json:"browser"`
	Answer    answer.Config         `json:"answer"`
	Extract   extract.Config        `json:"extract"`
	Form      FormConfig            `json:"form"`
	Downloads DownloadsConfig       `json:"downloads"`
	History   HistoryConfig         `json:"history"`
	Schedule  ScheduleConfig        `json:"schedule"`
	Logging   LoggingConfig         `json:"logging"`
}

// TargetConfig describes the application being automated.
type TargetConfig struct {
	URL             string `json:"url"`
	ReadyTag        string `json:"readyTag"`        // tag of the readiness marker
	ReadyText       string `json:"readyText"`       // its normalized text
	ReadyTimeout    string `json:"readyTimeout"`    // how long to wait for the marker
	ButtonTag       string `json:"buttonTag"`       // tag of the download button
	ButtonText      string `json:"buttonText"`      // its normalized text
	ButtonAttempts  int    `json:"buttonAttempts"`  // frame searches before giving up
	ButtonDelay     string `json:"buttonDelay"`     // pause between searches
	DownloadTimeout string `json:"downloadTimeout"` // how long to wait for the PDF
}

// FormConfig describes the form markup and the fill limits.
type FormConfig struct {
	FieldSelector          string `json:"fieldSelector"`   // CSS for field containers
	LabelTag               string `json:"labelTag"`        // question element within a container
	ControlSelector        string `json:"controlSelector"` // CSS for the answerable control
	SubmitTag              string `json:"submitTag"`       // submit control within the form
	YesOption              string `json:"yesOption"`
	NoOption               string `json:"noOption"`
	MaxConsecutiveFailures int    `json:"maxConsecutiveFailures"` // 0 disables the breaker
	MaxFields              int    `json:"maxFields"`
}

// DownloadsConfig controls the downloads directory housekeeping.
type DownloadsConfig struct {
	Retain string `json:"retain"` // e.g. "7d"; older files go with --clean-downloads, "" keeps all
}

// HistoryConfig controls the run history database.
type HistoryConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"` // empty = ~/.formclaw/history.db
}

// ScheduleConfig is the cron expression used by "formclaw schedule" when
// --cron is not given.
type ScheduleConfig struct {
	Cron string `json:"cron"`
}

// LoggingConfig sets the log level ("trace", "debug", "info", "warn", "error").
type LoggingConfig struct {
	Level string `json:"level"`
}

// Defaults returns the configuration used when formclaw.json is absent.
func Defaults() *Config {
	f := form.DefaultConfig()
	return &Config{
		Target: TargetConfig{
			ReadyTag:        "div",
			ReadyText:       "Squad Health",
			ReadyTimeout:    "10s",
			ButtonTag:       "button",
			ButtonText:      "Print PDF",
			ButtonAttempts:  10,
			ButtonDelay:     "1s",
			DownloadTimeout: "30s",
		},
		Browser: browser.DefaultBrowserConfig(),
		Answer:  answer.DefaultConfig(),
		Extract: extract.DefaultConfig(),
		Form: FormConfig{
			FieldSelector:          f.FieldSelector.Value,
			LabelTag:               f.LabelLocator.Value,
			ControlSelector:        f.ControlLocator.Value,
			SubmitTag:              f.SubmitLocator.Value,
			YesOption:              f.YesOption,
			NoOption:               f.NoOption,
			MaxConsecutiveFailures: f.MaxConsecutiveFailures,
			MaxFields:              f.MaxFields,
		},
		History: HistoryConfig{Enabled: true},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads formclaw.json (see paths.ConfigPath) over Defaults. It returns
// the config and the path it was read from, empty when no file exists.
func Load() (*Config, string, error) {
	path, err := paths.ConfigPath()
	if err != nil {
		return nil, "", err
	}
	if path == "" {
		L_debug("config: no formclaw.json, using defaults")
		return Defaults(), "", nil
	}
	cfg, err := LoadFile(path)
	return cfg, path, err
}

// LoadFile reads the config at path over Defaults. Keys missing from the file
// keep their default; keys present (including false and 0) win.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	L_debug("config: loaded", "path", path)
	return cfg, nil
}

// Apply overlays the non-zero fields of overrides (typically built from CLI
// flags) onto c.
func (c *Config) Apply(overrides Config) error {
	if err := mergo.Merge(c, overrides, mergo.WithOverride); err != nil {
		return fmt.Errorf("failed to apply overrides: %w", err)
	}
	return nil
}

// Save writes the config to path atomically, keeping backups of the previous file.
func (c *Config) Save(path string) error {
	return BackupAndWriteJSON(path, c, DefaultBackupCount)
}

// Redacted returns a copy safe to print: API keys are masked.
func (c *Config) Redacted() *Config {
	out := *c
	if out.Answer.APIKey != "" {
		out.Answer.APIKey = "********"
	}
	return &out
}

// FormSettings converts the form section into the orchestrator's config.
func (c *Config) FormSettings() form.Config {
	f := form.DefaultConfig()
	if c.Form.FieldSelector != "" {
		f.FieldSelector = dom.CSS(c.Form.FieldSelector)
	}
	if c.Form.LabelTag != "" {
		f.LabelLocator = dom.Tag(c.Form.LabelTag)
	}
	if c.Form.ControlSelector != "" {
		f.ControlLocator = dom.CSS(c.Form.ControlSelector)
	}
	if c.Form.SubmitTag != "" {
		f.SubmitLocator = dom.Tag(c.Form.SubmitTag)
	}
	if c.Form.YesOption != "" {
		f.YesOption = c.Form.YesOption
	}
	if c.Form.NoOption != "" {
		f.NoOption = c.Form.NoOption
	}
	f.MaxConsecutiveFailures = c.Form.MaxConsecutiveFailures
	if c.Form.MaxFields > 0 {
		f.MaxFields = c.Form.MaxFields
	}
	return f
}

// ReadyLocator matches the element whose presence means the app has rendered.
func (c *Config) ReadyLocator() dom.Locator {
	return dom.ExactText(c.Target.ReadyTag, c.Target.ReadyText)
}

// ButtonLocator matches the control that produces the PDF.
func (c *Config) ButtonLocator() dom.Locator {
	return dom.ExactText(c.Target.ButtonTag, c.Target.ButtonText)
}

// HistoryPath returns the history database path.
func (c *Config) HistoryPath() (string, error) {
	if c.History.Path != "" {
		return paths.ExpandTilde(c.History.Path)
	}
	return paths.HistoryPath()
}

// RetainDuration parses downloads.retain; zero means keep everything.
func (c *Config) RetainDuration() time.Duration {
	return parseDuration(c.Downloads.Retain, 0)
}

// Duration parses a config duration string ("30s", "7d"), falling back to def when empty,
// invalid or negative.
func Duration(s string, def time.Duration) time.Duration {
	return parseDuration(s, def)
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := schedule.ParseDuration(s)
	if err != nil || d < 0 {
		L_warn("config: invalid duration, using default", "value", s, "default", def)
		return def
	}
	return d
}
