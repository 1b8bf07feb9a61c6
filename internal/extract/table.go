package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/hyperifyio/bunkmate/internal/dom"
)

// TableSelectors enumerate table-like containers worth scanning.
var TableSelectors = []string{
	"table",
	".table",
	".data-table",
	".attendance-table",
	".report-table",
	`[class*="table"]`,
	`[class*="attendance"]`,
	`[class*="report"]`,
	`[class*="grid"]`,
	`[class*="data"]`,
	`[id*="attendance"]`,
	`[id*="table"]`,
	`[id*="report"]`,
	`[id*="grid"]`,
}

var fractionRe = regexp.MustCompile(`(\d+)\s*/\s*(\d+)`)

// summaryRowWords mark an aggregate row in a per-subject table.
var summaryRowWords = []string{"total", "overall", "grand", "cumulative"}

// TableScan scans tables whose text mentions both a total and a present
// keyword and pulls the two figures out of that scoped text.
type TableScan struct{}

func (TableScan) Method() Method { return MethodTableScan }

func (TableScan) Extract(doc dom.Document) (*Candidate, []string, error) {
	tables := doc.Find(strings.Join(TableSelectors, ", "))
	notes := []string{fmt.Sprintf("found %d table-like elements", len(tables))}
	for i, t := range tables {
		folded := Fold(t.Text())
		if !containsAny(folded, TotalKeywords) || !containsAny(folded, PresentKeywords) {
			continue
		}
		notes = append(notes, fmt.Sprintf("table %d mentions total and present: %q", i, clip(folded, 80)))
		if c := analyzeTable(t); c != nil {
			c.Note = fmt.Sprintf("table %d: %s", i, c.Note)
			return c, notes, nil
		}
	}
	return nil, notes, nil
}

type row struct {
	cells []string // folded cell texts
}

func tableRows(t dom.Node) []row {
	trs := t.Find("tr")
	if len(trs) == 0 {
		trs = []dom.Node{t}
	}
	out := make([]row, 0, len(trs))
	for _, tr := range trs {
		cells := tr.Find("td, th")
		if len(cells) == 0 {
			cells = tr.Children()
		}
		r := row{}
		if len(cells) == 0 {
			r.cells = []string{Fold(tr.Text())}
		} else {
			for _, c := range cells {
				r.cells = append(r.cells, Fold(c.Text()))
			}
		}
		out = append(out, r)
	}
	return out
}

// analyzeTable considers only rows that mention a total or present keyword.
// Labelled cells (label and value in the same cell or in the cells that
// follow it) win; then a fraction in a labelled row; then a row naming both
// keywords whose two distinct numbers are taken as a pair; then a header row
// naming total and present columns.
func analyzeTable(t dom.Node) *Candidate {
	rows := tableRows(t)
	total, attended := -1, -1
	var fraction, pair *Candidate
	for _, r := range rows {
		text := percentRe.ReplaceAllString(strings.Join(r.cells, " "), " ")
		hasTotal, hasPresent := containsAny(text, TotalKeywords), containsAny(text, PresentKeywords)
		if !hasTotal && !hasPresent {
			continue
		}
		rowTotal, rowAttended := -1, -1
		totalAt, attendedAt := -1, -1
		for i, cell := range r.cells {
			if isPercentText(cell) {
				continue
			}
			if containsAny(cell, TotalKeywords) {
				if v, at, ok := labelledValue(r.cells, i, TotalKeywords); ok {
					rowTotal, totalAt = v, at
				}
			}
			if containsAny(cell, PresentKeywords) {
				if v, at, ok := labelledValue(r.cells, i, PresentKeywords); ok {
					rowAttended, attendedAt = v, at
				}
			}
		}
		// One value read for both labels says nothing about either.
		ambiguous := rowTotal >= 0 && rowTotal == rowAttended && totalAt == attendedAt
		if !ambiguous {
			if rowTotal >= 0 {
				total = rowTotal
			}
			if rowAttended >= 0 {
				attended = rowAttended
			}
		}
		if fraction == nil {
			if m := fractionRe.FindStringSubmatch(text); m != nil {
				a, _ := strconv.Atoi(m[1])
				b, _ := strconv.Atoi(m[2])
				fraction = &Candidate{Total: b, Attended: a, Note: fmt.Sprintf("%d/%d from fraction %q", a, b, m[0])}
			}
		}
		if pair == nil && hasTotal && hasPresent {
			pair = distinctPair(text)
		}
	}
	if total >= 0 && attended >= 0 && total != attended {
		return &Candidate{Total: total, Attended: attended, Note: fmt.Sprintf("%d/%d from labelled cells", attended, total)}
	}
	if fraction != nil {
		return fraction
	}
	if pair != nil {
		return pair
	}
	if c := columnTotals(rows); c != nil {
		return c
	}
	if total >= 0 && attended >= 0 {
		return &Candidate{Total: total, Attended: attended, Note: fmt.Sprintf("%d/%d from labelled cells", attended, total)}
	}
	return nil
}

// labelledValue reads the number anchored at the keyword inside cells[i], or
// the first number in the cells that follow a bare label. It also returns
// the index of the cell the number came from.
func labelledValue(cells []string, i int, keywords []string) (int, int, bool) {
	if len(numbers(cells[i])) > 0 {
		v, ok := numberAfter(cells[i], keywords)
		return v, i, ok
	}
	for j := i + 1; j < len(cells); j++ {
		if isPercentText(cells[j]) {
			continue
		}
		if containsAny(cells[j], TotalKeywords) || containsAny(cells[j], PresentKeywords) {
			return 0, 0, false
		}
		if v, ok := firstNumber(cells[j]); ok {
			return v, j, true
		}
	}
	return 0, 0, false
}

// distinctPair takes the first two different numbers in a row that names
// both figures, the larger as total.
func distinctPair(text string) *Candidate {
	ns := numbers(text)
	for i := 1; i < len(ns); i++ {
		if ns[i] == ns[0] {
			continue
		}
		t, a := ns[0], ns[i]
		if a > t {
			t, a = a, t
		}
		return &Candidate{Total: t, Attended: a, Note: fmt.Sprintf("%d/%d from the row's two numbers", a, t)}
	}
	return nil
}

// columnTotals handles per-subject tables with a header row such as
// "Subject | Total | Present". A summary row wins; otherwise data rows are
// summed.
func columnTotals(rows []row) *Candidate {
	totalCol, presentCol, header := -1, -1, -1
	for ri, r := range rows {
		tc, pc := -1, -1
		for ci, c := range r.cells {
			if len(numbers(c)) > 0 || isPercentText(c) {
				continue
			}
			if tc < 0 && containsAny(c, TotalKeywords) {
				tc = ci
				continue
			}
			if pc < 0 && containsAny(c, PresentKeywords) {
				pc = ci
			}
		}
		if tc >= 0 && pc >= 0 {
			totalCol, presentCol, header = tc, pc, ri
			break
		}
	}
	if header < 0 {
		return nil
	}
	sumT, sumP, n := 0, 0, 0
	for _, r := range rows[header+1:] {
		if totalCol >= len(r.cells) || presentCol >= len(r.cells) {
			continue
		}
		t, ok1 := leadingInt(r.cells[totalCol])
		p, ok2 := leadingInt(r.cells[presentCol])
		if !ok1 || !ok2 {
			continue
		}
		if len(r.cells) > 0 && containsAny(r.cells[0], summaryRowWords) {
			return &Candidate{Total: t, Attended: p, Note: fmt.Sprintf("%d/%d from summary row %q", p, t, clip(r.cells[0], 40))}
		}
		sumT += t
		sumP += p
		n++
	}
	if n == 0 {
		return nil
	}
	return &Candidate{Total: sumT, Attended: sumP, Note: fmt.Sprintf("%d/%d summed over %d rows", sumP, sumT, n)}
}
