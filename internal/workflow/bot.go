// Package workflow runs the whole job against the target application:
// navigate, wait for it to render, download the generated PDF, read it, and
// answer and submit the form.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/roelfdiedericks/formclaw/internal/artifact"
	"github.com/roelfdiedericks/formclaw/internal/dom"
	"github.com/roelfdiedericks/formclaw/internal/form"
	"github.com/roelfdiedericks/formclaw/internal/frames"
	"github.com/roelfdiedericks/formclaw/internal/history"
	. "github.com/roelfdiedericks/formclaw/internal/logging"
)

var (
	ErrNoButton   = errors.New("download button not found")
	ErrNoDownload = errors.New("no download arrived")
)

// Session is the browser the bot drives. browser.Session implements it.
type Session interface {
	Navigate(ctx context.Context, url string) error
	AwaitVisible(ctx context.Context, loc dom.Locator, timeout time.Duration) (dom.Element, error)
	Scope() dom.Scope
	DownloadDir() string
	Teardown() error
}

// Extractor turns the downloaded PDF into text.
type Extractor interface {
	ExtractText(ctx context.Context, path string) (string, error)
}

// Engine answers the form's questions from the document text.
type Engine interface {
	SetDocument(text string)
	Answer(ctx context.Context, question string) (string, error)
}

// Recorder persists finished runs. history.Store implements it.
type Recorder interface {
	Record(ctx context.Context, run *history.Run) error
}

// Options are the target application's contract and the wait budgets.
type Options struct {
	ReadyLocator  dom.Locator
	ButtonLocator dom.Locator

	ReadyTimeout    time.Duration
	ButtonAttempts  int
	ButtonDelay     time.Duration
	DownloadTimeout time.Duration

	// VerifyMime rejects downloads of another content type; empty skips the check.
	VerifyMime string

	Form form.Config
}

// DefaultOptions matches the application formclaw was built for.
func DefaultOptions() Options {
	return Options{
		ReadyLocator:    dom.ExactText("div", "Squad Health"),
		ButtonLocator:   dom.ExactText("button", "Print PDF"),
		ReadyTimeout:    10 * time.Second,
		ButtonAttempts:  10,
		ButtonDelay:     time.Second,
		DownloadTimeout: 30 * time.Second,
		VerifyMime:      artifact.PDFMime,
		Form:            form.DefaultConfig(),
	}
}

// Result is the outcome of Run.
type Result struct {
	RunID         string
	URL           string
	StartedAt     time.Time
	FinishedAt    time.Time
	PDFPath       string
	DocumentChars int
	Report        *form.Report
	Err           error
}

// Success reports whether every step completed.
func (r *Result) Success() bool {
	return r.Err == nil
}

// Bot drives one session through the workflow.
type Bot struct {
	session   Session
	resolver  *frames.Resolver
	poller    *artifact.Poller
	extractor Extractor
	engine    Engine
	recorder  Recorder
	opts      Options
}

// New returns a bot for session. extractor and engine may be nil when only
// ObtainPDF is used.
func New(session Session, extractor Extractor, engine Engine, opts Options) *Bot {
	return &Bot{
		session:   session,
		resolver:  frames.NewResolver(session.Scope()),
		poller:    artifact.NewPoller(".pdf"),
		extractor: extractor,
		engine:    engine,
		opts:      opts,
	}
}

// WithRecorder makes Run record every result.
func (b *Bot) WithRecorder(r Recorder) *Bot {
	b.recorder = r
	return b
}

// Open navigates to url and waits for the readiness marker. The marker not
// showing up in time is logged; the steps after it fail on their own if the
// app really is not there.
func (b *Bot) Open(ctx context.Context, url string) error {
	if err := b.session.Navigate(ctx, url); err != nil {
		return err
	}
	if _, err := b.session.AwaitVisible(ctx, b.opts.ReadyLocator, b.opts.ReadyTimeout); err != nil {
		if !errors.Is(err, dom.ErrNotFound) {
			return err
		}
		L_warn("workflow: readiness marker not visible, continuing", "locator", b.opts.ReadyLocator.String(), "timeout", b.opts.ReadyTimeout)
	}
	return nil
}

// ObtainPDF clicks the download button, wherever it is in the frame tree,
// and returns the path of the file the browser saved.
func (b *Bot) ObtainPDF(ctx context.Context) (string, error) {
	start := time.Now()
	dir := b.session.DownloadDir()
	before := artifact.TakeSnapshot(dir)

	button, err := b.resolver.FindWithRetry(ctx, b.opts.ButtonLocator, b.opts.ButtonAttempts, b.opts.ButtonDelay)
	if err != nil {
		if errors.Is(err, dom.ErrNotFound) {
			return "", fmt.Errorf("%w: %w", ErrNoButton, err)
		}
		return "", err
	}
	if err := button.Click(); err != nil {
		return "", fmt.Errorf("failed to click download button: %w", err)
	}
	L_debug("workflow: download requested", "dir", dir)

	path, err := b.poller.AwaitNewFile(ctx, dir, before, b.opts.DownloadTimeout)
	if err != nil {
		if errors.Is(err, dom.ErrNotFound) {
			return "", fmt.Errorf("%w: %w", ErrNoDownload, err)
		}
		return "", err
	}
	if b.opts.VerifyMime != "" {
		if err := artifact.Verify(path, b.opts.VerifyMime); err != nil {
			return "", err
		}
	}

	L_elapsed(start, "workflow: PDF downloaded", "file", filepath.Base(path))
	return path, nil
}

// Run executes the whole workflow and tears the session down before it
// returns. A teardown failure after an earlier error is only logged.
func (b *Bot) Run(ctx context.Context, url string) (res *Result, err error) {
	res = &Result{RunID: uuid.New().String(), URL: url, StartedAt: time.Now()}
	L_info("workflow: run started", "id", res.RunID, "url", url)

	defer func() {
		if terr := b.session.Teardown(); terr != nil {
			if err != nil {
				L_warn("workflow: teardown failed after error", "error", terr)
			} else {
				err = fmt.Errorf("teardown failed: %w", terr)
			}
		}
		res.Err = err
		res.FinishedAt = time.Now()
		b.record(res)
		if err != nil {
			L_error("workflow: run failed", "id", res.RunID, "error", err)
		} else {
			L_elapsed(res.StartedAt, "workflow: run complete", "id", res.RunID)
		}
	}()

	if b.extractor == nil || b.engine == nil {
		return res, errors.New("workflow: Run needs an extractor and an answer engine")
	}

	if err := ctx.Err(); err != nil {
		return res, err
	}
	if err := b.Open(ctx, url); err != nil {
		return res, err
	}

	res.PDFPath, err = b.ObtainPDF(ctx)
	if err != nil {
		return res, err
	}

	text, err := b.extractor.ExtractText(ctx, res.PDFPath)
	if err != nil {
		return res, fmt.Errorf("text extraction failed: %w", err)
	}
	res.DocumentChars = len(text)
	b.engine.SetDocument(text)

	orch := form.New(b.resolver, b.opts.Form)
	res.Report, err = orch.FillAndSubmit(ctx, b.engine)
	return res, err
}

// Close tears the session down. Safe after Run.
func (b *Bot) Close() error {
	return b.session.Teardown()
}

func (b *Bot) record(res *Result) {
	if b.recorder == nil {
		return
	}
	run := &history.Run{
		ID:            res.RunID,
		URL:           res.URL,
		StartedAt:     res.StartedAt,
		FinishedAt:    res.FinishedAt,
		PDFPath:       res.PDFPath,
		DocumentChars: res.DocumentChars,
		Success:       res.Err == nil,
		Fields:        history.FieldsFromReport(res.Report),
	}
	if res.Report != nil {
		run.State = res.Report.State.String()
	}
	if res.Err != nil {
		run.Error = res.Err.Error()
	}
	// the run's context may be the cancelled one
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.recorder.Record(ctx, run); err != nil {
		L_warn("workflow: failed to record run", "id", res.RunID, "error", err)
	}
}
