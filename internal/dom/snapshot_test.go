package dom

import (
	"strings"
	"testing"
)

func TestParse_TitleTextAndQueries(t *testing.T) {
	page := `<!doctype html>
    <html>
      <head><title> Attendance Report </title><style>.x{color:red}</style></head>
      <body>
        <script>var total = 999;</script>
        <div class="_ttlPlan"><span class="_value" id="cum_slots">40</span></div>
        <table><tr><td>Total</td><td>40</td></tr></table>
      </body>
    </html>`

	s, err := Parse([]byte(page), " https://portal.example/attendance ")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if s.Title() != "Attendance Report" {
		t.Fatalf("title=%q", s.Title())
	}
	if s.URL() != "https://portal.example/attendance" {
		t.Fatalf("url=%q", s.URL())
	}
	if strings.Contains(s.Text(), "999") {
		t.Fatalf("script text leaked into visible text: %q", s.Text())
	}
	if !strings.Contains(s.Text(), "Total 40") {
		t.Fatalf("expected cells separated by a space, got %q", s.Text())
	}
	n := s.ByID("cum_slots")
	if n == nil || strings.TrimSpace(n.Text()) != "40" {
		t.Fatalf("ByID did not find cum_slots")
	}
	if n.Tag() != "span" {
		t.Fatalf("tag=%q, want span", n.Tag())
	}
	if cls, ok := n.Attr("class"); !ok || cls != "_value" {
		t.Fatalf("class attr=%q ok=%v", cls, ok)
	}
	if got := len(s.Find("._ttlPlan ._value")); got != 1 {
		t.Fatalf("descendant selector matched %d nodes", got)
	}
	if TableCount(s) != 1 {
		t.Fatalf("TableCount=%d, want 1", TableCount(s))
	}
	if s.ByID("missing") != nil {
		t.Fatalf("expected nil for missing id")
	}
}

func TestFind_InvalidSelectorMatchesNothing(t *testing.T) {
	s, err := Parse([]byte(`<html><body><p>x</p></body></html>`), "")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := s.Find("p[[["); len(got) != 0 {
		t.Fatalf("expected no matches for invalid selector, got %d", len(got))
	}
}

func TestCollapseSpace(t *testing.T) {
	cases := map[string]string{
		"  a \n\t b  ":   "a b",
		"":               "",
		"x\u00a0 y": "x y",
	}
	for in, want := range cases {
		if got := CollapseSpace(in); got != want {
			t.Fatalf("CollapseSpace(%q)=%q, want %q", in, got, want)
		}
	}
}
