package browser

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/roelfdiedericks/formclaw/internal/dom"
	. "github.com/roelfdiedericks/formclaw/internal/logging"
)

// pathJS builds the structural path of an element below its form (or the
// body): each step is the tag and its 1-based index among same-tag siblings.
const pathJS = `() => {
	const parts = [];
	for (let n = this; n && n.parentElement && n.tagName !== 'FORM' && n.tagName !== 'BODY'; n = n.parentElement) {
		let i = 1;
		for (let s = n.previousElementSibling; s; s = s.previousElementSibling) {
			if (s.tagName === n.tagName) i++;
		}
		parts.unshift(n.tagName.toLowerCase() + '[' + i + ']');
	}
	return parts.join('/');
}`

// element adapts a rod element to dom.Element. Lookups never wait; actions
// wait for the element to become interactable for at most timeout.
type element struct {
	el      *rod.Element
	timeout time.Duration
}

func wrapElement(el *rod.Element, timeout time.Duration) *element {
	return &element{el: el, timeout: timeout}
}

func wrapElements(els rod.Elements, timeout time.Duration) []dom.Element {
	out := make([]dom.Element, 0, len(els))
	for _, el := range els {
		out = append(out, wrapElement(el, timeout))
	}
	return out
}

func (e *element) Tag() (string, error) {
	res, err := e.el.Eval(`() => this.tagName.toLowerCase()`)
	if err != nil {
		return "", fmt.Errorf("failed to read tag name: %w", err)
	}
	return res.Value.String(), nil
}

func (e *element) Text() (string, error) {
	text, err := e.el.Text()
	if err != nil {
		return "", err
	}
	return dom.NormalizeSpace(text), nil
}

func (e *element) Visible() (bool, error) {
	return e.el.Visible()
}

func (e *element) Path() (string, error) {
	res, err := e.el.Eval(pathJS)
	if err != nil {
		return "", fmt.Errorf("failed to compute element path: %w", err)
	}
	return res.Value.String(), nil
}

func (e *element) Click() error {
	el := e.el.Timeout(e.timeout)
	defer el.CancelTimeout()

	if err := el.ScrollIntoView(); err != nil {
		L_debug("browser: failed to scroll into view", "error", err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click failed: %w", err)
	}
	return nil
}

func (e *element) Input(text string) error {
	el := e.el.Timeout(e.timeout)
	defer el.CancelTimeout()

	if err := el.Input(text); err != nil {
		return fmt.Errorf("type failed: %w", err)
	}
	return nil
}

func (e *element) Select(text string) error {
	el := e.el.Timeout(e.timeout)
	defer el.CancelTimeout()

	if err := el.Select([]string{optionPattern(text)}, true, rod.SelectorTypeRegex); err != nil {
		return fmt.Errorf("select %q failed: %w", text, err)
	}
	return nil
}

func (e *element) Find(loc dom.Locator) (dom.Element, error) {
	var (
		has bool
		el  *rod.Element
		err error
	)
	if sel, ok := loc.CSSSelector(); ok {
		has, el, err = e.el.Has(sel)
	} else {
		has, el, err = e.el.HasX(scopedXPath(loc.Value))
	}
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, fmt.Errorf("%s: %w", loc, dom.ErrNotFound)
	}
	return wrapElement(el, e.timeout), nil
}

func (e *element) FindAll(loc dom.Locator) ([]dom.Element, error) {
	var (
		els rod.Elements
		err error
	)
	if sel, ok := loc.CSSSelector(); ok {
		els, err = e.el.Elements(sel)
	} else {
		els, err = e.el.ElementsX(scopedXPath(loc.Value))
	}
	if err != nil {
		return nil, err
	}
	return wrapElements(els, e.timeout), nil
}

// optionPattern matches an option whose visible text equals text, ignoring
// surrounding whitespace. rod's text selector matches substrings, which
// would pick "Not sure" for "No".
func optionPattern(text string) string {
	return `^\s*` + regexp.QuoteMeta(strings.TrimSpace(text)) + `\s*$`
}

// scopedXPath anchors an absolute path at the context node so a search from
// an element stays inside it.
func scopedXPath(expr string) string {
	if strings.HasPrefix(expr, "/") {
		return "." + expr
	}
	return expr
}
