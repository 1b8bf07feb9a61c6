package dom

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Snapshot is an immutable parsed page. It is safe for concurrent reads.
type Snapshot struct {
	url   string
	title string
	text  string
	doc   *goquery.Document
}

// Parse builds a Snapshot from raw HTML. pageURL is recorded as-is and is
// only used for relevance signals and diagnostics.
func Parse(input []byte, pageURL string) (*Snapshot, error) {
	root, err := html.Parse(bytes.NewReader(input))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	if root == nil {
		return nil, fmt.Errorf("parse html: empty document")
	}
	s := &Snapshot{
		url:   strings.TrimSpace(pageURL),
		title: strings.TrimSpace(findTitle(root)),
		doc:   goquery.NewDocumentFromNode(root),
	}
	if body := findFirst(root, "body"); body != nil {
		var b strings.Builder
		collectText(&b, body)
		s.text = CollapseSpace(b.String())
	}
	return s, nil
}

func (s *Snapshot) URL() string   { return s.url }
func (s *Snapshot) Title() string { return s.title }
func (s *Snapshot) Text() string  { return s.text }

func (s *Snapshot) ByID(id string) Node {
	if strings.TrimSpace(id) == "" {
		return nil
	}
	// Attribute selector keeps ids that are not valid CSS identifiers usable.
	sel := s.doc.Find(`[id="` + strings.ReplaceAll(id, `"`, `\"`) + `"]`).First()
	if sel.Length() == 0 {
		return nil
	}
	return element{sel: sel}
}

func (s *Snapshot) Find(selector string) []Node {
	return wrap(s.doc.Find(selector))
}

func (s *Snapshot) Body() Node {
	sel := s.doc.Find("body").First()
	if sel.Length() == 0 {
		return nil
	}
	return element{sel: sel}
}

// TableCount returns the number of table elements, used by page info and
// the change watcher.
func TableCount(d Document) int {
	if d == nil {
		return 0
	}
	return len(d.Find("table"))
}

type element struct {
	sel *goquery.Selection
}

func (e element) Tag() string {
	return strings.ToLower(goquery.NodeName(e.sel))
}

func (e element) Text() string { return e.sel.Text() }

func (e element) Attr(name string) (string, bool) { return e.sel.Attr(name) }

func (e element) Find(selector string) []Node { return wrap(e.sel.Find(selector)) }

func (e element) Children() []Node { return wrap(e.sel.Children()) }

func wrap(sel *goquery.Selection) []Node {
	if sel == nil || sel.Length() == 0 {
		return nil
	}
	out := make([]Node, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, element{sel: s})
	})
	return out
}

func findTitle(n *html.Node) string {
	head := findFirst(n, "head")
	if head == nil {
		return ""
	}
	t := findFirst(head, "title")
	if t == nil || t.FirstChild == nil {
		return ""
	}
	return t.FirstChild.Data
}

func findFirst(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && strings.EqualFold(n.Data, tag) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if res := findFirst(c, tag); res != nil {
			return res
		}
	}
	return nil
}

// collectText writes visible text, separating block-level elements and
// table cells so numbers from adjacent cells never run together.
func collectText(b *strings.Builder, n *html.Node) {
	if n.Type == html.ElementNode {
		switch strings.ToLower(n.Data) {
		case "script", "style", "noscript", "template":
			return
		case "br", "hr", "p", "div", "li", "tr", "td", "th", "h1", "h2", "h3", "h4", "h5", "h6", "span", "label":
			b.WriteString(" ")
		}
	}
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(b, c)
	}
	if n.Type == html.ElementNode {
		switch strings.ToLower(n.Data) {
		case "p", "div", "li", "tr", "td", "th", "span", "label":
			b.WriteString(" ")
		}
	}
}

// CollapseSpace trims s and collapses every whitespace run to one space.
func CollapseSpace(s string) string {
	var b strings.Builder
	lastSpace := true
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\f' || r == '\u00a0' {
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
			continue
		}
		b.WriteRune(r)
		lastSpace = false
	}
	return strings.TrimRight(b.String(), " ")
}
