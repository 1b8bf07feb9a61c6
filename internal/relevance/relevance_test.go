package relevance

import (
	"errors"
	"testing"

	"github.com/hyperifyio/bunkmate/internal/dom"
)

func mustParse(t *testing.T, page, url string) dom.Document {
	t.Helper()
	s, err := dom.Parse([]byte(page), url)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return s
}

func TestIsAttendancePage(t *testing.T) {
	cases := []struct {
		name string
		page string
		url  string
		want bool
	}{
		{"url", `<html><body>hello</body></html>`, "https://portal.example/student/home", true},
		{"title", `<html><head><title>Academic Calendar</title></head><body>hello</body></html>`, "https://x.example/", true},
		{"body keyword", `<html><body><p>Classes Conducted: 40</p></body></html>`, "https://x.example/", true},
		{"case folded", `<html><body><p>ATTENDANCE SUMMARY</p></body></html>`, "https://x.example/", true},
		{"unrelated", `<html><head><title>Weather</title></head><body><p>Sunny today</p></body></html>`, "https://weather.example/today", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsAttendancePage(mustParse(t, tc.page, tc.url)); got != tc.want {
				t.Fatalf("IsAttendancePage=%v, want %v", got, tc.want)
			}
		})
	}
}

func TestEvaluate_ReportsFiredSignals(t *testing.T) {
	doc := mustParse(t, `<html><body><p>Present</p></body></html>`, "https://x.example/")
	v := Default().Evaluate(doc)
	if !v.Relevant || len(v.Fired) != 1 || v.Fired[0] != "body:present" {
		t.Fatalf("unexpected verdict: %+v", v)
	}
}

// Every signal failing still lets extraction proceed.
func TestEvaluate_AllSignalsFailing(t *testing.T) {
	f := &Filter{Signals: []Signal{
		{Name: "panics", Check: func(dom.Document) (bool, error) { panic("boom") }},
		{Name: "errors", Check: func(dom.Document) (bool, error) { return false, errors.New("detached") }},
		{Name: "missing"},
	}}
	doc := mustParse(t, `<html><body></body></html>`, "")
	v := f.Evaluate(doc)
	if !v.Relevant {
		t.Fatalf("expected permissive true")
	}
	if len(v.Errors) != 3 || len(v.Fired) != 0 {
		t.Fatalf("unexpected verdict: %+v", v)
	}
}

func TestEvaluate_NilDocument(t *testing.T) {
	if !Default().Evaluate(nil).Relevant {
		t.Fatalf("nil document must not block extraction")
	}
}
