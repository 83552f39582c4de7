// Command formclaw downloads a generated PDF from a web application, reads it
// with OCR, and answers and submits the application's form from its contents.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/roelfdiedericks/formclaw/internal/config"
	. "github.com/roelfdiedericks/formclaw/internal/logging"
)

const version = "0.3.0"

// CLI is the kong command tree.
type CLI struct {
	Debug  bool   `help:"Enable debug logging."`
	Trace  bool   `help:"Enable trace logging (very verbose)."`
	Config string `help:"Config file (default: ./formclaw.json, then ~/.formclaw/formclaw.json)." type:"path"`

	Run      RunCmd      `cmd:"" help:"Run the whole workflow once."`
	Pdf      PdfCmd      `cmd:"" help:"Download the PDF only and print its path."`
	Ocr      OcrCmd      `cmd:"" help:"Extract the text of a local PDF."`
	Schedule ScheduleCmd `cmd:"" help:"Run the workflow on a cron schedule until interrupted."`
	History  HistoryCmd  `cmd:"" help:"Show recent runs."`
	Browser  BrowserCmd  `cmd:"" help:"Manage the Chromium binary."`
	Profile  ProfileCmd  `cmd:"" help:"Manage browser profiles."`
	Cfg      ConfigCmd   `cmd:"" name:"config" help:"Show or create the configuration."`
	Version  VersionCmd  `cmd:"" help:"Print the version."`
}

// Context is passed to every command's Run method.
type Context struct {
	context.Context
	Config     *config.Config
	ConfigPath string
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("formclaw"),
		kong.Description("Answers a web form from the PDF the same application generates."),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	)

	level := LevelInfo
	switch {
	case cli.Trace:
		level = LevelTrace
	case cli.Debug:
		level = LevelDebug
	}
	Init(&LogConfig{Level: level, TimeFormat: "15:04:05", ShowCaller: cli.Trace})

	cfg, path, err := loadConfig(cli.Config)
	if err != nil {
		L_fatal("failed to load config", "error", err)
	}
	if !cli.Debug && !cli.Trace && cfg.Logging.Level != "" {
		SetLevel(ParseLevel(cfg.Logging.Level))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		SetShuttingDown()
	}()

	err = kctx.Run(&Context{Context: ctx, Config: cfg, ConfigPath: path})
	if code := exitCode(err, IsShuttingDown()); code != 0 {
		if code == exitInterrupted {
			L_info("formclaw: interrupted", "command", kctx.Command())
		} else {
			L_error("formclaw: command failed", "command", kctx.Command(), "error", err)
		}
		stop()
		os.Exit(code)
	}
}

// exitInterrupted is the shell convention for a process stopped by SIGINT.
const exitInterrupted = 130

// exitCode maps a command's error to the process exit status. An error
// caused by the interrupt itself is not a failure worth reporting.
func exitCode(err error, interrupted bool) int {
	switch {
	case err == nil:
		return 0
	case interrupted && errors.Is(err, context.Canceled):
		return exitInterrupted
	default:
		return 1
	}
}

func loadConfig(explicit string) (*config.Config, string, error) {
	if explicit != "" {
		cfg, err := config.LoadFile(explicit)
		return cfg, explicit, err
	}
	return config.Load()
}
