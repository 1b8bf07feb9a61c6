package extract

import (
	"fmt"

	"github.com/hyperifyio/bunkmate/internal/dom"
)

// MaxScanTextLength bounds the text of elements considered by DOMScan so
// whole-page containers never match.
const MaxScanTextLength = 200

// DOMScan walks every element and reads the number anchored at a total or
// present keyword in short elements. It stops once both are found.
type DOMScan struct{}

func (DOMScan) Method() Method { return MethodDOMScan }

func (DOMScan) Extract(doc dom.Document) (*Candidate, []string, error) {
	var notes []string
	total, attended := 0, 0
	totalFound, attendedFound := false, false
	for _, n := range doc.Find("body *") {
		if totalFound && attendedFound {
			break
		}
		text := dom.CollapseSpace(n.Text())
		if text == "" || len([]rune(text)) > MaxScanTextLength {
			continue
		}
		folded := Fold(text)
		if isPercentText(folded) {
			continue
		}
		if !totalFound && containsAny(folded, TotalKeywords) {
			if v, ok := numberAfter(folded, TotalKeywords); ok {
				total, totalFound = v, true
				notes = append(notes, fmt.Sprintf("total %d in <%s> %q", v, n.Tag(), clip(text, 50)))
			}
		}
		if !attendedFound && containsAny(folded, PresentKeywords) {
			if v, ok := numberAfter(folded, PresentKeywords); ok {
				attended, attendedFound = v, true
				notes = append(notes, fmt.Sprintf("attended %d in <%s> %q", v, n.Tag(), clip(text, 50)))
			}
		}
	}
	if !totalFound || !attendedFound {
		return nil, notes, nil
	}
	return &Candidate{Total: total, Attended: attended, Note: fmt.Sprintf("dom scan found %d/%d", attended, total)}, notes, nil
}
