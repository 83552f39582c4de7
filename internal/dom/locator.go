// Package dom defines the element model the automation core runs against:
// locators, elements, and the frame-aware scope of a browser session.
//
// The browser package implements these interfaces on top of rod; domtest
// implements them as an in-memory frame tree for tests.
package dom

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound reports that an element, frame, or file was not located within
// the allotted time. It is an expected outcome, not a fault: callers branch
// on it with errors.Is.
var ErrNotFound = errors.New("not found")

// Strategy selects how a Locator's value is interpreted.
type Strategy int

const (
	// ByXPath evaluates Value as an XPath expression.
	ByXPath Strategy = iota
	// ByCSS evaluates Value as a CSS selector.
	ByCSS
	// ByTag matches elements by tag name.
	ByTag
)

func (s Strategy) String() string {
	switch s {
	case ByXPath:
		return "xpath"
	case ByCSS:
		return "css"
	case ByTag:
		return "tag"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// Locator identifies elements within a document scope. Locators are values;
// nothing mutates them after construction.
type Locator struct {
	Strategy Strategy
	Value    string
}

func (l Locator) String() string {
	return l.Strategy.String() + "=" + l.Value
}

// CSS returns a CSS selector locator.
func CSS(selector string) Locator {
	return Locator{Strategy: ByCSS, Value: selector}
}

// Tag returns a tag-name locator.
func Tag(name string) Locator {
	return Locator{Strategy: ByTag, Value: strings.ToLower(name)}
}

// XPath returns a raw XPath locator.
func XPath(expr string) Locator {
	return Locator{Strategy: ByXPath, Value: expr}
}

// ExactText matches a tag whose whitespace-normalized text equals text,
// i.e. //tag[normalize-space()='text'].
func ExactText(tag, text string) Locator {
	if tag == "" {
		tag = "*"
	}
	return XPath(fmt.Sprintf("//%s[normalize-space()=%s]", tag, xpathLiteral(text)))
}

// CSSSelector returns the locator expressed as a CSS selector, for
// strategies that have one. XPath locators return ok=false.
func (l Locator) CSSSelector() (string, bool) {
	switch l.Strategy {
	case ByCSS, ByTag:
		return l.Value, true
	default:
		return "", false
	}
}

// xpathLiteral quotes s as an XPath 1.0 string literal. XPath has no escape
// syntax, so strings containing both quote kinds are built with concat().
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		if p != "" {
			quoted = append(quoted, "'"+p+"'")
		}
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}

// NormalizeSpace collapses runs of whitespace to single spaces and trims the
// ends, matching XPath normalize-space().
func NormalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
