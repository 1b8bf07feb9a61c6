package extract

import (
	"fmt"
	"time"

	"github.com/hyperifyio/bunkmate/internal/dom"
)

// Strategy is one independent, best-effort way of locating the two figures.
// It returns a nil candidate when it found nothing usable. Notes are
// returned by value and end up in the record diagnostics.
type Strategy interface {
	Method() Method
	Extract(doc dom.Document) (*Candidate, []string, error)
}

// StrategyFunc adapts a function to the Strategy interface.
type StrategyFunc struct {
	Name Method
	Fn   func(doc dom.Document) (*Candidate, []string, error)
}

func (s StrategyFunc) Method() Method { return s.Name }

func (s StrategyFunc) Extract(doc dom.Document) (*Candidate, []string, error) {
	return s.Fn(doc)
}

// Observer is notified of every strategy invocation and every final record.
type Observer interface {
	OnAttempt(m Method)
	OnResult(r Record)
}

// Bounds are the sanity limits applied to the winning candidate.
type Bounds struct {
	MinTotal int
	MaxTotal int
}

// DefaultBounds accepts 1..500 classes.
var DefaultBounds = Bounds{MinTotal: 1, MaxTotal: 500}

// Extractor runs an ordered, short-circuiting cascade of strategies.
type Extractor struct {
	Strategies []Strategy
	Bounds     Bounds
	Observer   Observer
	Now        func() time.Time
}

// New builds an extractor over the given strategies in priority order.
func New(strategies ...Strategy) *Extractor {
	return &Extractor{Strategies: strategies, Bounds: DefaultBounds}
}

// Default returns the full cascade in its fixed priority order.
func Default() *Extractor {
	return New(
		DirectID{},
		Structural{},
		TableScan{},
		DOMScan{},
		Percentage{},
		Pattern{},
		RowCount{},
	)
}

// Extract applies the cascade to doc. The first strategy returning a
// candidate wins and later strategies are not consulted. The winning
// candidate is validated once; a rejected candidate ends the pass with
// OutcomeInvalidRange rather than falling through to later strategies.
// Extract never panics.
func (e *Extractor) Extract(doc dom.Document) (rec Record) {
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	rec = Record{Outcome: OutcomeNotFound, CapturedAt: now().UTC()}
	defer func() {
		if r := recover(); r != nil {
			rec = Record{
				Outcome:     OutcomeNotFound,
				CapturedAt:  rec.CapturedAt,
				URL:         rec.URL,
				Title:       rec.Title,
				Diagnostics: append(rec.Diagnostics, fmt.Sprintf("critical error: %v", r)),
			}
		}
		if e.Observer != nil {
			e.Observer.OnResult(rec)
		}
	}()

	if doc == nil {
		rec.Diagnostics = append(rec.Diagnostics, "document not available")
		return rec
	}
	rec.URL = doc.URL()
	rec.Title = doc.Title()

	for _, s := range e.Strategies {
		if s == nil {
			continue
		}
		m := s.Method()
		if e.Observer != nil {
			e.Observer.OnAttempt(m)
		}
		cand, notes, err := runStrategy(s, doc)
		for _, n := range notes {
			rec.Diagnostics = append(rec.Diagnostics, fmt.Sprintf("[%s] %s", m, n))
		}
		if err != nil {
			rec.Diagnostics = append(rec.Diagnostics, fmt.Sprintf("[%s] error: %v", m, err))
			continue
		}
		if cand == nil {
			continue
		}
		rec.Method = m
		if cand.Note != "" {
			rec.Diagnostics = append(rec.Diagnostics, fmt.Sprintf("[%s] %s", m, cand.Note))
		}
		return e.validate(rec, *cand)
	}
	rec.Diagnostics = append(rec.Diagnostics, "no strategy produced a candidate")
	return rec
}

// runStrategy isolates a strategy so a failure inside it never escapes the
// cascade.
func runStrategy(s Strategy, doc dom.Document) (cand *Candidate, notes []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			cand = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.Extract(doc)
}

func (e *Extractor) validate(rec Record, c Candidate) Record {
	b := e.Bounds
	if b.MaxTotal <= 0 {
		b = DefaultBounds
	}
	total, attended := c.Total, c.Attended
	if attended > total {
		total, attended = attended, total
		rec.Swapped = true
		rec.Diagnostics = append(rec.Diagnostics, fmt.Sprintf("swapped total and attended (were %d/%d)", c.Attended, c.Total))
	}
	if total < b.MinTotal || total > b.MaxTotal {
		rec.Outcome = OutcomeInvalidRange
		rec.Diagnostics = append(rec.Diagnostics, fmt.Sprintf("invalid total classes: %d", total))
		return rec
	}
	if attended < 0 || attended > total {
		rec.Outcome = OutcomeInvalidRange
		rec.Diagnostics = append(rec.Diagnostics, fmt.Sprintf("invalid attended classes: %d", attended))
		return rec
	}
	rec.TotalClasses = total
	rec.AttendedClasses = attended
	rec.Found = true
	rec.Outcome = OutcomeFound
	rec.Diagnostics = append(rec.Diagnostics, fmt.Sprintf("validation successful: %d/%d", attended, total))
	return rec
}
