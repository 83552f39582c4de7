// Package frames finds elements that may live anywhere in a page's iframe
// tree, without callers knowing the frame topology.
package frames

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roelfdiedericks/formclaw/internal/dom"
	. "github.com/roelfdiedericks/formclaw/internal/logging"
	"github.com/roelfdiedericks/formclaw/internal/poll"
)

// DefaultMaxDepth bounds frame nesting. Frames below it are not entered.
const DefaultMaxDepth = 32

// parentAttempts bounds how often leaving a frame is retried when the search
// started below the top document and cannot rebuild its scope from there.
const parentAttempts = 3

// ErrScopeLost reports that a search could not bring the scope back to the
// depth it started from.
var ErrScopeLost = errors.New("frame scope lost")

// Resolver searches a dom.Scope depth-first, pre-order.
//
// A successful Find leaves the scope inside the frame holding the match, so
// callers can act on the element where it lives. A Find that returns
// dom.ErrNotFound leaves the scope at the depth the search started from.
// Nothing is cached between calls: the frame tree is re-walked every time
// because the application adds and removes frames as it renders.
type Resolver struct {
	scope    dom.Scope
	MaxDepth int
}

// NewResolver returns a resolver over scope.
func NewResolver(scope dom.Scope) *Resolver {
	return &Resolver{scope: scope, MaxDepth: DefaultMaxDepth}
}

// Scope returns the scope the resolver moves through.
func (r *Resolver) Scope() dom.Scope {
	return r.scope
}

// level is one entry of the traversal stack: the child frames of a document
// and the index of the next one to visit.
type level struct {
	frames []dom.Element
	next   int
}

// Find resets the scope to the top document and searches it and every nested
// frame for loc.
func (r *Resolver) Find(loc dom.Locator) (dom.Element, error) {
	if err := r.scope.Root(); err != nil {
		// Best effort: the search below tolerates starting anywhere.
		L_debug("frames: reset to top document failed, searching from current scope", "error", err)
	}
	return r.search(loc)
}

// FindForm locates the first <form> in the frame tree.
func (r *Resolver) FindForm() (dom.Element, error) {
	return r.Find(dom.CSS("form"))
}

// FindWithRetry repeats Find up to attempts times with delay between them,
// for elements that appear some time after the page settles.
func (r *Resolver) FindWithRetry(ctx context.Context, loc dom.Locator, attempts int, delay time.Duration) (dom.Element, error) {
	var found dom.Element
	attempt := 0
	err := poll.Retry(ctx, attempts, delay, func(err error) bool {
		return errors.Is(err, dom.ErrNotFound)
	}, func() error {
		attempt++
		el, err := r.Find(loc)
		if err != nil {
			L_trace("frames: retry", "locator", loc.String(), "attempt", attempt, "error", err)
			return err
		}
		found = el
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

func (r *Resolver) search(loc dom.Locator) (dom.Element, error) {
	base := r.scope.Depth()
	maxDepth := r.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}

	// path holds the frames entered below base, outermost first.
	var path []dom.Element

	if el, ok := r.match(loc); ok {
		return el, nil
	}
	stack := []*level{{frames: r.children()}}

	for len(stack) > 0 {
		top := stack[len(stack)-1]

		if top.next >= len(top.frames) {
			// Subtree exhausted: leave the frame that owns this level.
			stack = stack[:len(stack)-1]
			if len(path) > 0 {
				path = path[:len(path)-1]
				if err := r.restore(base, path); err != nil {
					return nil, err
				}
			}
			continue
		}

		frame := top.frames[top.next]
		top.next++

		if len(path) >= maxDepth {
			L_warn("frames: nesting limit reached, not descending", "limit", maxDepth)
			continue
		}

		if err := r.scope.Enter(frame); err != nil {
			L_debug("frames: entering frame failed, trying next sibling", "depth", len(path), "error", err)
			if err := r.restore(base, path); err != nil {
				return nil, err
			}
			continue
		}
		if r.scope.Depth() != base+len(path)+1 {
			// Enter reported success but the stack disagrees; resynchronise.
			L_warn("frames: scope depth out of step after enter", "want", base+len(path)+1, "got", r.scope.Depth())
			if err := r.restore(base, path); err != nil {
				return nil, err
			}
			continue
		}
		path = append(path, frame)

		if el, ok := r.match(loc); ok {
			L_trace("frames: matched inside frame", "locator", loc.String(), "depth", r.scope.Depth())
			return el, nil
		}
		stack = append(stack, &level{frames: r.children()})
	}

	if d := r.scope.Depth(); d != base {
		L_warn("frames: scope not restored after search", "want", base, "got", d)
	}
	return nil, fmt.Errorf("%s: %w", loc, dom.ErrNotFound)
}

// match looks for loc directly in the current document. Lookup faults count
// as no match; the frames below are still searched.
func (r *Resolver) match(loc dom.Locator) (dom.Element, bool) {
	el, err := r.scope.Find(loc)
	if err == nil {
		return el, true
	}
	if !errors.Is(err, dom.ErrNotFound) {
		L_debug("frames: lookup failed in frame", "locator", loc.String(), "depth", r.scope.Depth(), "error", err)
	}
	return nil, false
}

// children lists the current document's frames. A failed listing counts as none.
func (r *Resolver) children() []dom.Element {
	frames, err := r.scope.Frames()
	if err != nil {
		L_debug("frames: listing frames failed", "depth", r.scope.Depth(), "error", err)
		return nil
	}
	return frames
}

// restore brings the scope back to base+len(path). Parent is tried first.
// From a search that started at the top document a failed Parent is
// recovered by re-entering path from the top; below the top the frames above
// base are unknown, so Parent is retried instead.
func (r *Resolver) restore(base int, path []dom.Element) error {
	target := base + len(path)
	failures := 0
	for r.scope.Depth() > target {
		err := r.scope.Parent()
		if err == nil {
			continue
		}
		if base == 0 {
			L_debug("frames: leaving frame failed, rebuilding scope from top", "error", err)
			return r.rebuild(path)
		}
		failures++
		L_debug("frames: leaving frame failed", "depth", r.scope.Depth(), "attempt", failures, "error", err)
		if failures >= parentAttempts {
			return fmt.Errorf("%w: cannot return to depth %d: %v", ErrScopeLost, target, err)
		}
	}
	return nil
}

func (r *Resolver) rebuild(path []dom.Element) error {
	if err := r.scope.Root(); err != nil {
		return fmt.Errorf("%w: reset to top document: %v", ErrScopeLost, err)
	}
	for _, frame := range path {
		if err := r.scope.Enter(frame); err != nil {
			return fmt.Errorf("%w: re-entering frame: %v", ErrScopeLost, err)
		}
	}
	return nil
}
