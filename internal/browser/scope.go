package browser

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/roelfdiedericks/formclaw/internal/dom"
)

// pageScope implements dom.Scope over rod. rod addresses frames as pages of
// their own, so the frame context is an explicit stack of frame pages above
// the root page.
type pageScope struct {
	mu      sync.Mutex
	root    *rod.Page
	stack   []*rod.Page
	timeout time.Duration
}

func newPageScope(root *rod.Page, timeout time.Duration) *pageScope {
	return &pageScope{root: root, timeout: timeout}
}

func (s *pageScope) current() *rod.Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.stack) == 0 {
		return s.root
	}
	return s.stack[len(s.stack)-1]
}

func (s *pageScope) Root() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stack = nil
	return nil
}

func (s *pageScope) Parent() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.stack) > 0 {
		s.stack = s.stack[:len(s.stack)-1]
	}
	return nil
}

func (s *pageScope) Enter(frame dom.Element) error {
	el, ok := frame.(*element)
	if !ok {
		return fmt.Errorf("browser: cannot enter %T", frame)
	}
	page, err := el.el.Frame()
	if err != nil {
		return fmt.Errorf("failed to enter frame: %w", err)
	}
	s.mu.Lock()
	s.stack = append(s.stack, page)
	s.mu.Unlock()
	return nil
}

func (s *pageScope) Depth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.stack)
}

func (s *pageScope) Find(loc dom.Locator) (dom.Element, error) {
	page := s.current()
	var (
		has bool
		el  *rod.Element
		err error
	)
	if sel, ok := loc.CSSSelector(); ok {
		has, el, err = page.Has(sel)
	} else {
		has, el, err = page.HasX(loc.Value)
	}
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, fmt.Errorf("%s: %w", loc, dom.ErrNotFound)
	}
	return wrapElement(el, s.timeout), nil
}

func (s *pageScope) Frames() ([]dom.Element, error) {
	els, err := s.current().Elements("iframe")
	if err != nil {
		return nil, err
	}
	return wrapElements(els, s.timeout), nil
}
