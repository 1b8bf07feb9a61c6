package extract

import (
	"fmt"
	"regexp"

	"github.com/hyperifyio/bunkmate/internal/dom"
)

var (
	presentStatusRe = regexp.MustCompile(`^(?:present|attended)\b|^p$`)
	absentStatusRe  = regexp.MustCompile(`^(?:absent|missed)\b|^a$`)
)

// RowCount handles per-session registers with one row per class and a
// status cell: every row with a status counts toward the total and rows
// marked present count as attended.
type RowCount struct{}

func (RowCount) Method() Method { return MethodRowCount }

func (RowCount) Extract(doc dom.Document) (*Candidate, []string, error) {
	var notes []string
	for i, t := range doc.Find("table") {
		total, present := 0, 0
		for _, tr := range t.Find("tr") {
			switch rowStatus(tr) {
			case statusPresent:
				total++
				present++
			case statusAbsent:
				total++
			}
		}
		if total == 0 {
			continue
		}
		notes = append(notes, fmt.Sprintf("table %d: %d status rows", i, total))
		return &Candidate{
			Total:    total,
			Attended: present,
			Note:     fmt.Sprintf("counted %d present of %d rows in table %d", present, total, i),
		}, notes, nil
	}
	return nil, notes, nil
}

type status int

const (
	statusNone status = iota
	statusPresent
	statusAbsent
)

func rowStatus(tr dom.Node) status {
	for _, c := range tr.Find("td, th") {
		cell := Fold(c.Text())
		switch {
		case presentStatusRe.MatchString(cell):
			return statusPresent
		case absentStatusRe.MatchString(cell):
			return statusAbsent
		}
	}
	return statusNone
}
