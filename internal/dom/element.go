package dom

// Element is a handle to a live DOM element. Handles are ephemeral: a
// re-render may invalidate them, after which methods return errors.
type Element interface {
	// Tag returns the lowercase tag name.
	Tag() (string, error)
	// Text returns the rendered text.
	Text() (string, error)
	// Visible reports whether the element is rendered and visible.
	Visible() (bool, error)
	// Path returns the structural path of the element below its nearest
	// form ancestor (or the document body), e.g. "div[2]/div[1]".
	Path() (string, error)

	Click() error
	// Input types text into the element.
	Input(text string) error
	// Select chooses the option whose visible text equals text.
	Select(text string) error

	// Find returns the first descendant matching loc, or ErrNotFound.
	Find(loc Locator) (Element, error)
	// FindAll returns every descendant matching loc in document order.
	FindAll(loc Locator) ([]Element, error)
}

// Scope is the document an automation session currently evaluates lookups
// against, together with the stack of frames entered to reach it.
//
// Implementations keep the stack explicit: Enter pushes, Parent pops, Root
// clears. Depth reports the number of entered frames (0 at the top document).
type Scope interface {
	// Root returns to the top-level document.
	Root() error
	// Parent leaves the current frame. At depth 0 it is a no-op.
	Parent() error
	// Enter makes the document inside frame the current scope.
	Enter(frame Element) error
	// Depth is the number of frames between the top document and the current scope.
	Depth() int

	// Find returns the first element matching loc in the current document
	// without waiting, or ErrNotFound.
	Find(loc Locator) (Element, error)
	// Frames lists the iframe elements of the current document in the order
	// the browser reports them.
	Frames() ([]Element, error)
}
