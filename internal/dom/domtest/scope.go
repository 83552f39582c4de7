package domtest

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/roelfdiedericks/formclaw/internal/dom"
)

// Browser is an in-memory dom.Scope over a tree of Documents.
type Browser struct {
	Top *Document

	// FailRoot makes Root fail without changing the stack.
	FailRoot error
	// FailParent makes Parent fail this many times before succeeding.
	FailParent int

	// Entered counts successful Enter calls.
	Entered int

	mu    sync.Mutex
	stack []*Document
}

// NewBrowser returns a scope positioned at top.
func NewBrowser(top *Document) *Browser {
	return &Browser{Top: top}
}

// Current returns the document lookups are evaluated against.
func (b *Browser) Current() *Document {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current()
}

func (b *Browser) current() *Document {
	if len(b.stack) == 0 {
		return b.Top
	}
	return b.stack[len(b.stack)-1]
}

// Names returns the document names from the top to the current scope.
func (b *Browser) Names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := []string{b.Top.Name}
	for _, d := range b.stack {
		names = append(names, d.Name)
	}
	return names
}

func (b *Browser) Root() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.FailRoot != nil {
		return b.FailRoot
	}
	b.stack = nil
	return nil
}

func (b *Browser) Parent() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.FailParent > 0 {
		b.FailParent--
		return errors.New("domtest: parent frame unavailable")
	}
	if len(b.stack) > 0 {
		b.stack = b.stack[:len(b.stack)-1]
	}
	return nil
}

func (b *Browser) Enter(frame dom.Element) error {
	el, ok := frame.(*Element)
	if !ok {
		return fmt.Errorf("domtest: foreign element %T", frame)
	}
	if el.node.isDetached() {
		return ErrDetached
	}
	if el.node.Frame == nil {
		return fmt.Errorf("domtest: <%s> is not a frame", el.node.TagName)
	}
	if el.node.Frame.FailEnter != nil {
		return el.node.Frame.FailEnter
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stack = append(b.stack, el.node.Frame)
	b.Entered++
	return nil
}

func (b *Browser) Depth() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.stack)
}

func (b *Browser) Find(loc dom.Locator) (dom.Element, error) {
	doc := b.Current()
	if doc.FailFind != nil {
		return nil, doc.FailFind
	}
	nodes, err := findAll(doc.Body, loc, true)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, dom.ErrNotFound
	}
	return &Element{node: nodes[0], doc: doc}, nil
}

func (b *Browser) Frames() ([]dom.Element, error) {
	doc := b.Current()
	if doc.FailFind != nil {
		return nil, doc.FailFind
	}
	nodes, err := findAll(doc.Body, dom.Tag("iframe"), false)
	if err != nil {
		return nil, err
	}
	out := make([]dom.Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, &Element{node: n, doc: doc})
	}
	return out, nil
}

// Element is a handle to a Node.
type Element struct {
	node *Node
	doc  *Document
}

// Wrap returns a handle for n inside doc.
func Wrap(n *Node, doc *Document) *Element {
	return &Element{node: n, doc: doc}
}

// Node returns the underlying node.
func (e *Element) Node() *Node { return e.node }

// Document returns the document the element lives in.
func (e *Element) Document() *Document { return e.doc }

func (e *Element) live() error {
	if e.node.isDetached() {
		return ErrDetached
	}
	return nil
}

func (e *Element) Tag() (string, error) {
	if err := e.live(); err != nil {
		return "", err
	}
	return e.node.TagName, nil
}

func (e *Element) Text() (string, error) {
	if err := e.live(); err != nil {
		return "", err
	}
	return dom.NormalizeSpace(e.node.textContent()), nil
}

func (e *Element) Visible() (bool, error) {
	if err := e.live(); err != nil {
		return false, err
	}
	for cur := e.node; cur != nil; cur = cur.parent {
		if cur.Hidden {
			return false, nil
		}
	}
	return true, nil
}

func (e *Element) Path() (string, error) {
	if err := e.live(); err != nil {
		return "", err
	}
	var parts []string
	for cur := e.node; cur != nil && cur.parent != nil && cur.TagName != "form"; cur = cur.parent {
		idx := 1
		for _, sib := range cur.parent.Children {
			if sib == cur {
				break
			}
			if sib.TagName == cur.TagName {
				idx++
			}
		}
		parts = append([]string{fmt.Sprintf("%s[%d]", cur.TagName, idx)}, parts...)
	}
	return strings.Join(parts, "/"), nil
}

func (e *Element) Click() error {
	if err := e.live(); err != nil {
		return err
	}
	if e.node.FailClick != nil {
		return e.node.FailClick
	}
	e.node.Clicks++
	if e.node.OnClick != nil {
		e.node.OnClick(e.node)
	}
	return nil
}

func (e *Element) Input(text string) error {
	if err := e.live(); err != nil {
		return err
	}
	if e.node.FailInput != nil {
		return e.node.FailInput
	}
	if e.node.TagName != "input" && e.node.TagName != "textarea" {
		return fmt.Errorf("domtest: cannot type into <%s>", e.node.TagName)
	}
	e.node.Value += text
	if e.node.OnInput != nil {
		e.node.OnInput(e.node)
	}
	return nil
}

func (e *Element) Select(text string) error {
	if err := e.live(); err != nil {
		return err
	}
	if e.node.FailSelect != nil {
		return e.node.FailSelect
	}
	if e.node.TagName != "select" {
		return fmt.Errorf("domtest: <%s> is not a select", e.node.TagName)
	}
	for _, opt := range e.node.Options {
		if opt == text {
			e.node.Value = opt
			if e.node.OnInput != nil {
				e.node.OnInput(e.node)
			}
			return nil
		}
	}
	return fmt.Errorf("domtest: no option %q", text)
}

func (e *Element) Find(loc dom.Locator) (dom.Element, error) {
	if err := e.live(); err != nil {
		return nil, err
	}
	nodes, err := findAll(e.node, loc, true)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, dom.ErrNotFound
	}
	return &Element{node: nodes[0], doc: e.doc}, nil
}

func (e *Element) FindAll(loc dom.Locator) ([]dom.Element, error) {
	if err := e.live(); err != nil {
		return nil, err
	}
	nodes, err := findAll(e.node, loc, false)
	if err != nil {
		return nil, err
	}
	out := make([]dom.Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, &Element{node: n, doc: e.doc})
	}
	return out, nil
}
