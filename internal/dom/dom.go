package dom

// Node is a read-only view of a single element in a parsed page.
type Node interface {
	// Tag returns the lower-case element name.
	Tag() string
	// Text returns the concatenated text of the element and its descendants,
	// the same content a browser exposes as textContent.
	Text() string
	Attr(name string) (string, bool)
	// Find returns descendants matching a CSS selector. An invalid selector
	// matches nothing.
	Find(selector string) []Node
	Children() []Node
}

// Document is the read-only document source consumed by the extractor,
// the relevance filter and the readiness waiter. Nothing in bunkmate
// mutates a Document.
type Document interface {
	URL() string
	Title() string
	// ByID returns the element with the given id or nil.
	ByID(id string) Node
	// Find returns all elements matching a CSS selector in document order.
	Find(selector string) []Node
	// Body returns the body element or nil when the page has none.
	Body() Node
	// Text returns the visible body text with scripts and styles removed
	// and whitespace collapsed.
	Text() string
}
