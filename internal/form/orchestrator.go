package form

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roelfdiedericks/formclaw/internal/dom"
	. "github.com/roelfdiedericks/formclaw/internal/logging"
)

// Orchestrator drives one form through discovery, filling and submission.
// It is not safe for concurrent use.
type Orchestrator struct {
	finder Finder
	cfg    Config

	state State
	form  dom.Element
}

// New returns an orchestrator that locates the form with finder.
func New(finder Finder, cfg Config) *Orchestrator {
	return &Orchestrator{finder: finder, cfg: cfg}
}

// State returns the current state.
func (o *Orchestrator) State() State {
	return o.state
}

func (o *Orchestrator) setState(s State) {
	if o.state != s {
		L_trace("form: state", "from", o.state, "to", s)
	}
	o.state = s
}

// candidate is a visible field seen during enumeration.
type candidate struct {
	el       dom.Element
	key      string // structural path under the form
	question string
	labelErr error
}

// ledger remembers processed fields by path and by question. Neither alone
// identifies a field: the app may rewrite a label in place, and inserting a
// field shifts the paths of those after it.
type ledger struct {
	byPath     map[string]string
	byQuestion map[string]string
}

func newLedger() *ledger {
	return &ledger{byPath: map[string]string{}, byQuestion: map[string]string{}}
}

func (l *ledger) add(c candidate) {
	l.byPath[c.key] = c.question
	if c.question != "" {
		l.byQuestion[c.question] = c.key
	}
}

func (l *ledger) len() int {
	return len(l.byPath)
}

// done reports whether c was already processed. current maps the path of
// every visible field in this pass to its question.
//
// A processed path holding a new question is the same field with a
// rewritten label, unless the old question is still on the form: then the
// old field moved or was replaced and c is new work. A processed question
// found at a new path is the same field moved, unless its old path still
// carries that question.
func (l *ledger) done(c candidate, current map[string]string) bool {
	if q, ok := l.byPath[c.key]; ok {
		if q == c.question || !onForm(current, q, c.key) {
			return true
		}
	}
	if c.question == "" {
		return false
	}
	p, ok := l.byQuestion[c.question]
	return ok && p != c.key && current[p] != c.question
}

func onForm(current map[string]string, question, except string) bool {
	for path, q := range current {
		if path != except && q == question {
			return true
		}
	}
	return false
}

// FillAndSubmit processes every field of the form exactly once and submits
// it. Field failures are recorded in the report and do not stop the session.
// The returned error is non-nil only when the session ends Failed.
func (o *Orchestrator) FillAndSubmit(ctx context.Context, answers Answerer) (*Report, error) {
	start := time.Now()
	report := &Report{}

	fail := func(err error) (*Report, error) {
		o.setState(Failed)
		report.State = Failed
		report.Err = err
		L_warn("form: session failed", "error", err, "fields", len(report.Fields))
		return report, err
	}

	o.setState(Discovering)
	form, err := o.finder.FindForm()
	if err != nil {
		return fail(fmt.Errorf("%w: %v", ErrNoForm, err))
	}
	o.form = form
	L_debug("form: form located")

	processed := newLedger()
	consecutive := 0

	for {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		if o.cfg.MaxFields > 0 && processed.len() >= o.cfg.MaxFields {
			L_warn("form: field limit reached, submitting", "limit", o.cfg.MaxFields)
			break
		}

		next, ok, err := o.next(processed)
		if err != nil {
			return fail(err)
		}
		if !ok {
			break
		}
		// Marked before processing so a poisoned field is never retried.
		processed.add(next)

		o.setState(Processing)
		out := o.process(ctx, next, answers)
		report.Fields = append(report.Fields, out)

		switch out.Status {
		case StatusFilled:
			consecutive = 0
			L_debug("form: field filled", "question", out.Question, "kind", out.Kind)
		default:
			consecutive++
			L_warn("form: field not filled", "question", out.Question, "status", out.Status, "error", out.Err)
			if o.cfg.MaxConsecutiveFailures > 0 && consecutive >= o.cfg.MaxConsecutiveFailures {
				return fail(fmt.Errorf("%w: %d in a row", ErrTooManyFailures, consecutive))
			}
		}
	}

	o.setState(Submitting)
	if err := o.submit(); err != nil {
		return fail(err)
	}

	o.setState(Done)
	report.State = Done
	L_elapsed(start, "form: submitted",
		"filled", report.Count(StatusFilled),
		"skipped", report.Count(StatusSkipped),
		"failed", report.Count(StatusFailed))
	return report, nil
}

// containers lists the form's field containers. A stale form handle (the
// form was re-rendered) is replaced by locating the form again.
func (o *Orchestrator) containers() ([]dom.Element, error) {
	list, err := o.form.FindAll(o.cfg.FieldSelector)
	if err == nil {
		return list, nil
	}
	L_debug("form: field enumeration failed, locating form again", "error", err)
	form, ferr := o.finder.FindForm()
	if ferr != nil {
		return nil, fmt.Errorf("%w: form lost during fill: %v", ErrNoForm, ferr)
	}
	o.form = form
	return o.form.FindAll(o.cfg.FieldSelector)
}

// next returns the first visible field, in document order, that the ledger
// has not seen.
func (o *Orchestrator) next(processed *ledger) (candidate, bool, error) {
	list, err := o.containers()
	if err != nil {
		return candidate{}, false, err
	}
	var fields []candidate
	current := make(map[string]string, len(list))
	for _, el := range list {
		visible, err := el.Visible()
		if err != nil || !visible {
			continue
		}
		c, err := o.identify(el)
		if err != nil {
			L_debug("form: cannot identify field, ignoring", "error", err)
			continue
		}
		fields = append(fields, c)
		current[c.key] = c.question
	}
	for _, c := range fields {
		if !processed.done(c, current) {
			return c, true, nil
		}
	}
	return candidate{}, false, nil
}

// identify reads the field's structural path and label text.
func (o *Orchestrator) identify(el dom.Element) (candidate, error) {
	path, err := el.Path()
	if err != nil {
		return candidate{}, err
	}
	c := candidate{el: el, key: path}
	label, err := el.Find(o.cfg.LabelLocator)
	if err == nil {
		c.question, err = label.Text()
	}
	if err != nil {
		c.labelErr = err
	}
	return c, nil
}

// process fills one field. Every fault, including a panic below, is
// confined to this field's outcome.
func (o *Orchestrator) process(ctx context.Context, c candidate, answers Answerer) (out FieldOutcome) {
	out = FieldOutcome{Key: c.key, Question: c.question}
	defer func() {
		if r := recover(); r != nil {
			out.Status = StatusFailed
			out.Err = fmt.Errorf("panic while filling field: %v", r)
		}
	}()

	if c.labelErr != nil || c.question == "" {
		out.Status = StatusSkipped
		out.Err = ErrNoLabel
		return out
	}

	control, err := c.el.Find(o.cfg.ControlLocator)
	if err != nil {
		out.Status = StatusSkipped
		out.Err = fmt.Errorf("%w: %v", ErrNoControl, err)
		return out
	}
	tag, err := control.Tag()
	if err != nil {
		out.Status = StatusFailed
		out.Err = err
		return out
	}
	kind, ok := kindOf(tag)
	if !ok {
		out.Status = StatusFailed
		out.Err = fmt.Errorf("%w: <%s>", ErrUnsupportedControl, tag)
		return out
	}
	out.Kind = kind

	answer, err := answers.Answer(ctx, c.question)
	if err != nil {
		out.Status = StatusFailed
		out.Err = fmt.Errorf("answer: %w", err)
		return out
	}
	out.Answer = answer

	switch kind {
	case KindText:
		err = control.Input(answer)
	case KindChoice:
		var option string
		option, err = ChoiceOption(answer, o.cfg.YesOption, o.cfg.NoOption)
		if err == nil {
			err = control.Select(option)
		}
	}
	if err != nil {
		out.Status = StatusFailed
		out.Err = err
		return out
	}

	out.Status = StatusFilled
	return out
}

func (o *Orchestrator) submit() error {
	button, err := o.form.Find(o.cfg.SubmitLocator)
	if err != nil && !errors.Is(err, dom.ErrNotFound) {
		// Stale handle: the form may have been re-rendered by the last fill.
		if form, ferr := o.finder.FindForm(); ferr == nil {
			o.form = form
			button, err = o.form.Find(o.cfg.SubmitLocator)
		}
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoSubmit, err)
	}
	if err := button.Click(); err != nil {
		return fmt.Errorf("submit click failed: %w", err)
	}
	return nil
}
