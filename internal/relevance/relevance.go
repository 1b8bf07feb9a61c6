// Package relevance decides whether a page is worth running the extraction
// cascade on.
package relevance

import (
	"fmt"
	"strings"

	"github.com/hyperifyio/bunkmate/internal/dom"
	"github.com/hyperifyio/bunkmate/internal/extract"
)

// Signal is one independent piece of evidence that a page shows attendance.
type Signal struct {
	Name  string
	Check func(doc dom.Document) (bool, error)
}

// Verdict explains a relevance decision.
type Verdict struct {
	Relevant bool
	Fired    []string
	Errors   []string
}

// Filter is a disjunction of signals. A signal that fails to evaluate counts
// as firing.
type Filter struct {
	Signals []Signal
}

var (
	URLWords   = []string{"attendance", "report", "academic", "student"}
	TitleWords = []string{"attendance", "report", "academic"}
	BodyWords  = []string{
		"attendance", "total lecture", "total class", "classes conducted",
		"classes attended", "present", "absent", "conducted",
		"academic report", "student report", "attendance summary",
	}
)

// Default returns the filter with URL, title and body keyword signals.
func Default() *Filter {
	var signals []Signal
	for _, w := range URLWords {
		signals = append(signals, contains("url", w, func(d dom.Document) string { return d.URL() }))
	}
	for _, w := range TitleWords {
		signals = append(signals, contains("title", w, func(d dom.Document) string { return d.Title() }))
	}
	for _, w := range BodyWords {
		signals = append(signals, contains("body", w, func(d dom.Document) string { return d.Text() }))
	}
	return &Filter{Signals: signals}
}

func contains(where, word string, get func(dom.Document) string) Signal {
	return Signal{
		Name: where + ":" + word,
		Check: func(d dom.Document) (bool, error) {
			return strings.Contains(extract.Fold(get(d)), word), nil
		},
	}
}

// IsAttendancePage reports whether the default filter accepts doc.
func IsAttendancePage(doc dom.Document) bool {
	return Default().Evaluate(doc).Relevant
}

// Evaluate runs every signal. It is true when any signal fires or any
// signal cannot be evaluated.
func (f *Filter) Evaluate(doc dom.Document) Verdict {
	var v Verdict
	if doc == nil {
		v.Relevant = true
		v.Errors = append(v.Errors, "document not available")
		return v
	}
	for _, s := range f.Signals {
		fired, err := evaluate(s, doc)
		if err != nil {
			v.Errors = append(v.Errors, fmt.Sprintf("%s: %v", s.Name, err))
			v.Relevant = true
			continue
		}
		if fired {
			v.Fired = append(v.Fired, s.Name)
			v.Relevant = true
		}
	}
	return v
}

func evaluate(s Signal, doc dom.Document) (fired bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			fired = false
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if s.Check == nil {
		return false, fmt.Errorf("signal has no check")
	}
	return s.Check(doc)
}
