package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/roelfdiedericks/formclaw/internal/answer"
	"github.com/roelfdiedericks/formclaw/internal/artifact"
	"github.com/roelfdiedericks/formclaw/internal/browser"
	"github.com/roelfdiedericks/formclaw/internal/config"
	"github.com/roelfdiedericks/formclaw/internal/extract"
	"github.com/roelfdiedericks/formclaw/internal/history"
	. "github.com/roelfdiedericks/formclaw/internal/logging"
	"github.com/roelfdiedericks/formclaw/internal/paths"
	"github.com/roelfdiedericks/formclaw/internal/schedule"
	"github.com/roelfdiedericks/formclaw/internal/workflow"
)

// TargetFlags are shared by the commands that open the application.
type TargetFlags struct {
	URL            string `help:"Application URL (overrides target.url)."`
	Headed         bool   `help:"Show the browser window."`
	Profile        string `help:"Browser profile name."`
	CleanDownloads bool   `help:"Remove downloads older than downloads.retain before starting."`
}

func (f *TargetFlags) apply(c *Context) error {
	if err := c.Config.Apply(config.Config{
		Target:  config.TargetConfig{URL: f.URL},
		Browser: browser.BrowserConfig{Profile: f.Profile},
	}); err != nil {
		return err
	}
	// false is a zero value, so mergo cannot carry it
	if f.Headed {
		c.Config.Browser.Headless = false
	}
	if c.Config.Target.URL == "" {
		return errors.New("no target URL: pass --url or set target.url in formclaw.json")
	}
	if f.CleanDownloads {
		cleanDownloads(c.Config)
	}
	return nil
}

// RunCmd runs the full workflow.
type RunCmd struct {
	TargetFlags
	Provider  string `help:"Answer engine: openai or anthropic."`
	Model     string `help:"Model name for the answer engine."`
	Answers   string `help:"JSON file of question->answer pairs; replaces the LLM (dry runs)." type:"existingfile"`
	NoHistory bool   `help:"Do not record the run."`
}

func (r *RunCmd) Run(c *Context) error {
	if err := r.apply(c); err != nil {
		return err
	}
	if err := c.Config.Apply(config.Config{Answer: answer.Config{Provider: r.Provider, Model: r.Model}}); err != nil {
		return err
	}

	engine, err := newEngine(c.Config, r.Answers)
	if err != nil {
		return err
	}

	var store *history.Store
	if c.Config.History.Enabled && !r.NoHistory {
		if store, err = openHistory(c.Config); err != nil {
			L_warn("formclaw: history unavailable, run will not be recorded", "error", err)
		} else {
			defer store.Close()
		}
	}

	res, err := runOnce(c, c.Config, engine, store)
	if res != nil {
		printResult(os.Stdout, res)
	}
	return err
}

// runOnce launches a browser, runs the workflow in it and always tears it down.
func runOnce(ctx context.Context, cfg *config.Config, engine workflow.Engine, store *history.Store) (*workflow.Result, error) {
	ext := extract.New(cfg.Extract)
	if err := ext.Check(); err != nil {
		return nil, err
	}

	sess, err := browser.Launch(ctx, cfg.Browser)
	if err != nil {
		return nil, err
	}
	bot := workflow.New(sess, ext, engine, workflowOptions(cfg))
	defer bot.Close()
	if store != nil {
		bot.WithRecorder(store)
	}
	return bot.Run(ctx, cfg.Target.URL)
}

func workflowOptions(cfg *config.Config) workflow.Options {
	def := workflow.DefaultOptions()
	opts := workflow.Options{
		ReadyLocator:    cfg.ReadyLocator(),
		ButtonLocator:   cfg.ButtonLocator(),
		ReadyTimeout:    config.Duration(cfg.Target.ReadyTimeout, def.ReadyTimeout),
		ButtonAttempts:  cfg.Target.ButtonAttempts,
		ButtonDelay:     config.Duration(cfg.Target.ButtonDelay, def.ButtonDelay),
		DownloadTimeout: config.Duration(cfg.Target.DownloadTimeout, def.DownloadTimeout),
		VerifyMime:      artifact.PDFMime,
		Form:            cfg.FormSettings(),
	}
	if opts.ButtonAttempts <= 0 {
		opts.ButtonAttempts = def.ButtonAttempts
	}
	return opts
}

func newEngine(cfg *config.Config, answersFile string) (workflow.Engine, error) {
	if answersFile == "" {
		return answer.New(cfg.Answer)
	}
	data, err := os.ReadFile(answersFile)
	if err != nil {
		return nil, err
	}
	static := &answer.Static{}
	if err := json.Unmarshal(data, &static.Answers); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", answersFile, err)
	}
	L_info("formclaw: using fixed answers", "file", answersFile, "count", len(static.Answers))
	return static, nil
}

func openHistory(cfg *config.Config) (*history.Store, error) {
	path, err := cfg.HistoryPath()
	if err != nil {
		return nil, err
	}
	return history.Open(path)
}

func cleanDownloads(cfg *config.Config) {
	age := cfg.RetainDuration()
	if age <= 0 {
		L_debug("formclaw: downloads.retain not set, keeping all downloads")
		return
	}
	dir := cfg.Browser.DownloadsDir
	if dir == "" {
		d, err := paths.DefaultDownloadsDir()
		if err != nil {
			L_warn("formclaw: cannot resolve downloads directory", "error", err)
			return
		}
		dir = d
	}
	if _, err := artifact.Prune(dir, age); err != nil {
		L_warn("formclaw: failed to clean downloads", "error", err)
	}
}

// PdfCmd downloads the PDF and prints its path.
type PdfCmd struct {
	TargetFlags
}

func (p *PdfCmd) Run(c *Context) error {
	if err := p.apply(c); err != nil {
		return err
	}
	sess, err := browser.Launch(c, c.Config.Browser)
	if err != nil {
		return err
	}
	bot := workflow.New(sess, nil, nil, workflowOptions(c.Config))
	defer bot.Close()

	if err := bot.Open(c, c.Config.Target.URL); err != nil {
		return err
	}
	path, err := bot.ObtainPDF(c)
	if err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}

// OcrCmd prints the text of a local PDF.
type OcrCmd struct {
	File string `arg:"" help:"PDF file." type:"existingfile"`
	Lang string `help:"Tesseract language (overrides extract.lang)."`
	DPI  int    `help:"Render resolution (overrides extract.dpi)."`
}

func (o *OcrCmd) Run(c *Context) error {
	cfg := c.Config.Extract
	if o.Lang != "" {
		cfg.Lang = o.Lang
	}
	if o.DPI > 0 {
		cfg.DPI = o.DPI
	}
	if err := artifact.Verify(o.File, artifact.PDFMime); err != nil {
		return err
	}
	ext := extract.New(cfg)
	if err := ext.Check(); err != nil {
		return err
	}
	text, err := ext.ExtractText(c, o.File)
	if err != nil {
		return err
	}
	fmt.Print(text)
	return nil
}

// ScheduleCmd runs the workflow repeatedly.
type ScheduleCmd struct {
	TargetFlags
	Cron     string `help:"Cron expression, e.g. \"0 7 * * 1-5\" or \"@every 2h\" (overrides schedule.cron)."`
	Provider string `help:"Answer engine: openai or anthropic."`
	Model    string `help:"Model name for the answer engine."`
}

func (s *ScheduleCmd) Run(c *Context) error {
	if err := s.apply(c); err != nil {
		return err
	}
	if err := c.Config.Apply(config.Config{
		Answer:   answer.Config{Provider: s.Provider, Model: s.Model},
		Schedule: config.ScheduleConfig{Cron: s.Cron},
	}); err != nil {
		return err
	}
	if c.Config.Schedule.Cron == "" {
		return errors.New("no schedule: pass --cron or set schedule.cron")
	}

	var store *history.Store
	if c.Config.History.Enabled {
		var err error
		if store, err = openHistory(c.Config); err != nil {
			L_warn("formclaw: history unavailable, runs will not be recorded", "error", err)
		} else {
			defer store.Close()
		}
	}

	sched, err := schedule.New(c.Config.Schedule.Cron, func(ctx context.Context) error {
		if s.CleanDownloads {
			cleanDownloads(c.Config)
		}
		// a fresh engine per run so one run's document never answers another's form
		engine, err := answer.New(c.Config.Answer)
		if err != nil {
			return err
		}
		res, err := runOnce(ctx, c.Config, engine, store)
		if res != nil {
			printResult(os.Stdout, res)
		}
		return err
	})
	if err != nil {
		return err
	}
	return sched.Run(c)
}

// HistoryCmd lists runs, or shows one run's fields.
type HistoryCmd struct {
	ID    string `arg:"" optional:"" help:"Run id to show in detail."`
	Limit int    `help:"Number of runs to list." default:"20"`
}

func (h *HistoryCmd) Run(c *Context) error {
	store, err := openHistory(c.Config)
	if err != nil {
		return err
	}
	defer store.Close()

	if h.ID != "" {
		run, err := store.Get(c, h.ID)
		if err != nil {
			return err
		}
		printRun(os.Stdout, run)
		return nil
	}
	runs, err := store.List(c, h.Limit)
	if err != nil {
		return err
	}
	printRuns(os.Stdout, runs)
	return nil
}

// BrowserCmd manages the Chromium binary.
type BrowserCmd struct {
	Download BrowserDownloadCmd `cmd:"" help:"Download Chromium if it is missing."`
}

type BrowserDownloadCmd struct {
	Force bool `help:"Download even if a binary exists."`
}

func (b *BrowserDownloadCmd) Run(c *Context) error {
	base, err := paths.BaseDir()
	if err != nil {
		return err
	}
	d := browser.NewDownloader(c.Config.Browser.ResolveBinDir(base))
	var bin string
	if b.Force {
		bin, err = d.ForceDownload()
	} else {
		bin, err = d.EnsureBrowser()
	}
	if err != nil {
		return err
	}
	fmt.Println(bin)
	return nil
}

// ProfileCmd manages browser profiles.
type ProfileCmd struct {
	List  ProfileListCmd  `cmd:"" help:"List profiles."`
	Clear ProfileClearCmd `cmd:"" help:"Delete a profile (logs the application out)."`
}

type ProfileListCmd struct{}

func (ProfileListCmd) Run(c *Context) error {
	pm, err := profileManager(c.Config)
	if err != nil {
		return err
	}
	profiles, err := pm.ListProfiles()
	if err != nil {
		return err
	}
	printProfiles(os.Stdout, profiles, c.Config.Browser.Profile)
	return nil
}

type ProfileClearCmd struct {
	Name string `arg:"" help:"Profile name."`
}

func (p *ProfileClearCmd) Run(c *Context) error {
	pm, err := profileManager(c.Config)
	if err != nil {
		return err
	}
	if !pm.Exists(p.Name) {
		return fmt.Errorf("profile %q does not exist", p.Name)
	}
	return pm.ClearProfile(p.Name)
}

func profileManager(cfg *config.Config) (*browser.ProfileManager, error) {
	base, err := paths.BaseDir()
	if err != nil {
		return nil, err
	}
	return browser.NewProfileManager(cfg.Browser.ResolveProfilesDir(base)), nil
}

// ConfigCmd shows or writes the configuration.
type ConfigCmd struct {
	Show ConfigShowCmd `cmd:"" help:"Print the effective configuration (keys masked)."`
	Init ConfigInitCmd `cmd:"" help:"Write a default formclaw.json."`
}

type ConfigShowCmd struct{}

func (ConfigShowCmd) Run(c *Context) error {
	if c.ConfigPath != "" {
		fmt.Fprintf(os.Stderr, "# %s\n", c.ConfigPath)
	} else {
		fmt.Fprintln(os.Stderr, "# defaults (no formclaw.json found)")
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(c.Config.Redacted())
}

type ConfigInitCmd struct {
	Path  string `help:"Where to write (default: ~/.formclaw/formclaw.json)." type:"path"`
	Force bool   `help:"Overwrite an existing file (a backup is kept)."`
}

func (i *ConfigInitCmd) Run(c *Context) error {
	path := i.Path
	if path == "" {
		p, err := paths.DefaultConfigPath()
		if err != nil {
			return err
		}
		path = p
	}
	if _, err := os.Stat(path); err == nil && !i.Force {
		return fmt.Errorf("%s exists, use --force to overwrite", path)
	}
	if err := config.Defaults().Save(path); err != nil {
		return err
	}
	fmt.Println(filepath.Clean(path))
	return nil
}

type VersionCmd struct{}

func (VersionCmd) Run(*Context) error {
	fmt.Printf("formclaw %s\n", version)
	return nil
}
