// Package form answers and submits a dynamically rendered form.
//
// The Orchestrator discovers the form through a frame-aware finder, then
// repeatedly enumerates the visible field containers, picks one it has not
// processed yet, asks an Answerer for the label's question and fills the
// control. When no unprocessed field remains it clicks the submit control.
package form

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/roelfdiedericks/formclaw/internal/dom"
)

// Fatal outcomes of a fill session.
var (
	ErrNoForm          = errors.New("no form found")
	ErrNoSubmit        = errors.New("no submit control")
	ErrTooManyFailures = errors.New("too many consecutive field failures")
)

// Field-level outcomes. These never abort a session.
var (
	ErrNoLabel            = errors.New("field has no label")
	ErrNoControl          = errors.New("field has no control")
	ErrUnsupportedControl = errors.New("unsupported control")
	ErrUnrecognizedAnswer = errors.New("answer is neither yes nor no")
)

// State of an Orchestrator.
type State int

const (
	Idle State = iota
	Discovering
	Processing
	Submitting
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Discovering:
		return "discovering"
	case Processing:
		return "processing"
	case Submitting:
		return "submitting"
	case Done:
		return "done"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Kind is the type of a field's control.
type Kind string

const (
	KindText   Kind = "text"
	KindChoice Kind = "choice"
)

// Status is the outcome of one field.
type Status string

const (
	StatusFilled  Status = "filled"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// FieldOutcome records what happened to one field.
type FieldOutcome struct {
	Key      string
	Question string
	Kind     Kind
	Answer   string
	Status   Status
	Err      error
}

// Report is the result of FillAndSubmit.
type Report struct {
	State  State
	Err    error
	Fields []FieldOutcome
}

// Count returns how many fields ended with status s.
func (r *Report) Count(s Status) int {
	n := 0
	for _, f := range r.Fields {
		if f.Status == s {
			n++
		}
	}
	return n
}

// Answerer produces the answer to a field's question.
type Answerer interface {
	Answer(ctx context.Context, question string) (string, error)
}

// AnswerFunc adapts a function to Answerer.
type AnswerFunc func(ctx context.Context, question string) (string, error)

func (f AnswerFunc) Answer(ctx context.Context, question string) (string, error) {
	return f(ctx, question)
}

// Finder locates the form element. frames.Resolver satisfies it.
type Finder interface {
	FindForm() (dom.Element, error)
}

// Config describes the target form's markup and the session limits.
type Config struct {
	// FieldSelector matches field containers under the form.
	FieldSelector dom.Locator
	// LabelLocator matches the question element within a container.
	LabelLocator dom.Locator
	// ControlLocator matches the answerable control within a container.
	ControlLocator dom.Locator
	// SubmitLocator matches the submit control within the form.
	SubmitLocator dom.Locator

	// YesOption and NoOption are the visible option texts of choice controls.
	YesOption string
	NoOption  string

	// MaxConsecutiveFailures fails the session without submitting once this
	// many fields in a row were skipped or failed. Zero disables the check.
	MaxConsecutiveFailures int
	// MaxFields bounds how many fields one session processes.
	MaxFields int
}

// DefaultConfig returns the markup contract of the target application.
func DefaultConfig() Config {
	return Config{
		FieldSelector:          dom.CSS("div.flex.flex-col"),
		LabelLocator:           dom.Tag("label"),
		ControlLocator:         dom.CSS("input, select"),
		SubmitLocator:          dom.Tag("button"),
		YesOption:              "Yes",
		NoOption:               "No",
		MaxConsecutiveFailures: 5,
		MaxFields:              200,
	}
}

// ChoiceOption maps a free-text answer to the yes or no option text. The
// answer is trimmed and compared case-insensitively.
func ChoiceOption(answer, yes, no string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "yes":
		return yes, nil
	case "no":
		return no, nil
	}
	return "", fmt.Errorf("%q: %w", answer, ErrUnrecognizedAnswer)
}

func kindOf(tag string) (Kind, bool) {
	switch tag {
	case "input", "textarea":
		return KindText, true
	case "select":
		return KindChoice, true
	}
	return "", false
}
