// Package domtest provides an in-memory document and frame tree that
// implements dom.Scope and dom.Element, so frame search and form filling can
// be exercised without a browser.
//
// Supported locators: tag names, simple CSS compounds ("div.flex.flex-col",
// ".cls", comma-separated lists), and the exact-text XPath produced by
// dom.ExactText.
package domtest

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/roelfdiedericks/formclaw/internal/dom"
)

// ErrDetached is returned by handles whose node was removed from the tree.
var ErrDetached = errors.New("domtest: element is detached")

// Node is one element in a Document.
type Node struct {
	TagName  string
	Classes  []string
	Text     string // own text; Element.Text includes descendants
	Hidden   bool
	Children []*Node

	// Frame is the nested document of an iframe node.
	Frame *Document

	// Options are the visible texts of a select's options.
	Options []string
	// Value holds typed input text or the selected option.
	Value string

	Clicks int

	// Failure injection.
	FailClick  error
	FailInput  error
	FailSelect error

	// Hooks run after a successful action.
	OnClick func(n *Node)
	OnInput func(n *Node)

	parent   *Node
	detached bool
}

// Document is a frame's document.
type Document struct {
	Name string
	Body *Node

	// FailEnter makes entering this document's frame fail.
	FailEnter error
	// FailFind makes every lookup in this document fail with a non-NotFound error.
	FailFind error
}

// El builds a node with the given tag, classes (dot separated, e.g. "div.flex.flex-col") and children.
func El(spec string, children ...*Node) *Node {
	parts := strings.Split(spec, ".")
	n := &Node{TagName: strings.ToLower(parts[0])}
	for _, c := range parts[1:] {
		if c != "" {
			n.Classes = append(n.Classes, c)
		}
	}
	for _, c := range children {
		n.Append(c)
	}
	return n
}

// TextEl builds a node with text content.
func TextEl(spec, text string, children ...*Node) *Node {
	n := El(spec, children...)
	n.Text = text
	return n
}

// Frame builds an iframe node holding doc.
func Frame(doc *Document) *Node {
	n := El("iframe")
	n.Frame = doc
	return n
}

// Doc builds a document whose body holds children.
func Doc(name string, children ...*Node) *Document {
	return &Document{Name: name, Body: El("body", children...)}
}

// Append adds child under n.
func (n *Node) Append(child *Node) {
	child.parent = n
	child.detached = false
	n.Children = append(n.Children, child)
}

// InsertBefore adds child under n just before ref, or last when ref is not a child.
func (n *Node) InsertBefore(ref, child *Node) {
	child.parent = n
	child.detached = false
	for i, c := range n.Children {
		if c == ref {
			n.Children = append(n.Children[:i], append([]*Node{child}, n.Children[i:]...)...)
			return
		}
	}
	n.Children = append(n.Children, child)
}

// Replace swaps old for repl among n's children and detaches old, as a re-render would.
func (n *Node) Replace(old, repl *Node) {
	for i, c := range n.Children {
		if c == old {
			old.detached = true
			repl.parent = n
			n.Children[i] = repl
			return
		}
	}
}

// Remove detaches child from n.
func (n *Node) Remove(child *Node) {
	for i, c := range n.Children {
		if c == child {
			child.detached = true
			n.Children = append(n.Children[:i], n.Children[i+1:]...)
			return
		}
	}
}

// Parent returns the parent node.
func (n *Node) Parent() *Node { return n.parent }

func (n *Node) hasClass(c string) bool {
	for _, have := range n.Classes {
		if have == c {
			return true
		}
	}
	return false
}

func (n *Node) textContent() string {
	var b strings.Builder
	b.WriteString(n.Text)
	for _, c := range n.Children {
		if c.TagName == "iframe" {
			continue
		}
		b.WriteString(" ")
		b.WriteString(c.textContent())
	}
	return b.String()
}

func (n *Node) isDetached() bool {
	for cur := n; cur != nil; cur = cur.parent {
		if cur.detached {
			return true
		}
	}
	return false
}

// walk visits descendants of n in document order without crossing into frames.
func (n *Node) walk(fn func(*Node) bool) bool {
	for _, c := range n.Children {
		if !fn(c) {
			return false
		}
		if !c.walk(fn) {
			return false
		}
	}
	return true
}

// ---- locator matching ----

type compound struct {
	tag     string
	classes []string
}

var exactTextRe = regexp.MustCompile(`^//([\w*-]+)\[normalize-space\(\)=(?:'([^']*)'|"([^"]*)")\]$`)

type matcher func(*Node) bool

func compile(loc dom.Locator) (matcher, error) {
	switch loc.Strategy {
	case dom.ByTag:
		tag := strings.ToLower(loc.Value)
		return func(n *Node) bool { return n.TagName == tag }, nil
	case dom.ByCSS:
		var alts []compound
		for _, part := range strings.Split(loc.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			pieces := strings.Split(part, ".")
			alts = append(alts, compound{tag: strings.ToLower(pieces[0]), classes: pieces[1:]})
		}
		return func(n *Node) bool {
			for _, c := range alts {
				if c.tag != "" && c.tag != n.TagName {
					continue
				}
				ok := true
				for _, cls := range c.classes {
					if !n.hasClass(cls) {
						ok = false
						break
					}
				}
				if ok {
					return true
				}
			}
			return false
		}, nil
	case dom.ByXPath:
		m := exactTextRe.FindStringSubmatch(loc.Value)
		if m == nil {
			return nil, fmt.Errorf("domtest: unsupported xpath %q", loc.Value)
		}
		tag, want := m[1], m[2]+m[3]
		return func(n *Node) bool {
			if tag != "*" && n.TagName != tag {
				return false
			}
			return dom.NormalizeSpace(n.textContent()) == want
		}, nil
	}
	return nil, fmt.Errorf("domtest: unknown strategy %v", loc.Strategy)
}

func findAll(root *Node, loc dom.Locator, first bool) ([]*Node, error) {
	match, err := compile(loc)
	if err != nil {
		return nil, err
	}
	var out []*Node
	root.walk(func(n *Node) bool {
		if match(n) {
			out = append(out, n)
			if first {
				return false
			}
		}
		return true
	})
	return out, nil
}
