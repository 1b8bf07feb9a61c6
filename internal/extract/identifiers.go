package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/hyperifyio/bunkmate/internal/dom"
)

// Portal identifiers known to hold the cumulative figures verbatim.
const (
	TotalID          = "cum_slots"
	PresentID        = "cum_present"
	TotalContainer   = "._ttlPlan"
	PresentContainer = "._prsntPlan"
	valueClass       = "._value"
)

// SummarySelectors name report panels that state the figures as labelled
// text rather than in dedicated elements.
var SummarySelectors = []string{
	".attendance-summary",
	".academic-report",
	".student-report",
	`[class*="summary"]`,
	`[class*="academic"]`,
	`[class*="student"]`,
	".report-content",
	".content-panel",
}

var (
	summaryTotalRe   = regexp.MustCompile(`(?:total classes|total lectures|total sessions|classes conducted|lectures conducted|conducted|total)\s*:?\s*(\d+)`)
	summaryPresentRe = regexp.MustCompile(`(?:classes attended|lectures attended|attended|present)\s*:?\s*(\d+)`)
)

// DirectID reads the two documented elements by id.
type DirectID struct{}

func (DirectID) Method() Method { return MethodDirectID }

func (DirectID) Extract(doc dom.Document) (*Candidate, []string, error) {
	totalEl := doc.ByID(TotalID)
	presentEl := doc.ByID(PresentID)
	if totalEl == nil || presentEl == nil {
		return nil, []string{fmt.Sprintf("#%s or #%s not present", TotalID, PresentID)}, nil
	}
	totalText := strings.TrimSpace(totalEl.Text())
	presentText := strings.TrimSpace(presentEl.Text())
	total, ok1 := leadingInt(totalText)
	present, ok2 := leadingInt(presentText)
	if !ok1 || !ok2 || total <= 0 || present < 0 {
		return nil, []string{fmt.Sprintf("ids found but values unusable: total=%q present=%q", totalText, presentText)}, nil
	}
	return &Candidate{
		Total:    total,
		Attended: present,
		Note:     fmt.Sprintf("found %d/%d via #%s and #%s", present, total, TotalID, PresentID),
	}, nil, nil
}

// Structural locates the named containers and reads a nested value element,
// falling back to the container text. When the exact containers are absent
// it retries with partial class and id matches, then reads labelled figures
// out of summary panels.
type Structural struct{}

func (Structural) Method() Method { return MethodStructural }

func (Structural) Extract(doc dom.Document) (*Candidate, []string, error) {
	var notes []string
	totalBox := first(doc.Find(TotalContainer))
	presentBox := first(doc.Find(PresentContainer))
	if totalBox != nil && presentBox != nil {
		total, okT := containerValue(totalBox, TotalID)
		present, okP := containerValue(presentBox, PresentID)
		if okT && okP && total > 0 && present >= 0 {
			return &Candidate{
				Total:    total,
				Attended: present,
				Note:     fmt.Sprintf("found %d/%d via %s and %s", present, total, TotalContainer, PresentContainer),
			}, notes, nil
		}
		notes = append(notes, "containers found but values unusable")
	} else {
		notes = append(notes, fmt.Sprintf("%s or %s not present", TotalContainer, PresentContainer))
	}

	// Partial matches pick up renamed or suffixed containers.
	var total, present int
	haveTotal, havePresent := false, false
	for _, n := range doc.Find(`[class*="_ttlPlan"], [id*="cum_slots"]`) {
		if v, ok := leadingInt(strings.TrimSpace(n.Text())); ok && v > 0 {
			total, haveTotal = v, true
			break
		}
	}
	for _, n := range doc.Find(`[class*="_prsntPlan"], [id*="cum_present"]`) {
		if v, ok := leadingInt(strings.TrimSpace(n.Text())); ok && v >= 0 {
			present, havePresent = v, true
			break
		}
	}
	if haveTotal && havePresent {
		return &Candidate{
			Total:    total,
			Attended: present,
			Note:     fmt.Sprintf("found %d/%d via partial class/id match", present, total),
		}, notes, nil
	}

	boxes := doc.Find(strings.Join(SummarySelectors, ", "))
	for i, box := range boxes {
		if c := summaryValues(box); c != nil {
			c.Note = fmt.Sprintf("summary panel %d (%s): %s", i, describeNode(box), c.Note)
			return c, notes, nil
		}
	}
	notes = append(notes, fmt.Sprintf("%d summary panels, none with labelled figures", len(boxes)))
	return nil, notes, nil
}

// summaryValues reads "total: N" and "attended: N" style labels from a
// panel. A fraction counts only when the panel names neither label.
func summaryValues(box dom.Node) *Candidate {
	text := percentRe.ReplaceAllString(Fold(box.Text()), " ")
	t := summaryTotalRe.FindStringSubmatch(text)
	p := summaryPresentRe.FindStringSubmatch(text)
	if t != nil && p != nil {
		total, _ := strconv.Atoi(t[1])
		present, _ := strconv.Atoi(p[1])
		if total > 0 && present > 0 {
			return &Candidate{Total: total, Attended: present, Note: fmt.Sprintf("%d/%d from labels", present, total)}
		}
		return nil
	}
	if t != nil || p != nil {
		return nil
	}
	if !containsAny(text, TotalKeywords) && !containsAny(text, PresentKeywords) {
		return nil
	}
	if m := fractionRe.FindStringSubmatch(text); m != nil {
		a, _ := strconv.Atoi(m[1])
		b, _ := strconv.Atoi(m[2])
		if a > 0 && b > 0 {
			return &Candidate{Total: b, Attended: a, Note: fmt.Sprintf("%d/%d from fraction %q", a, b, m[0])}
		}
	}
	return nil
}

func describeNode(n dom.Node) string {
	if c, ok := n.Attr("class"); ok && c != "" {
		return "." + strings.Join(strings.Fields(c), ".")
	}
	if id, ok := n.Attr("id"); ok && id != "" {
		return "#" + id
	}
	return n.Tag()
}

// containerValue prefers a nested value element and falls back to the first
// number in the container's own text.
func containerValue(box dom.Node, id string) (int, bool) {
	selectors := []string{valueClass, "#" + id, `[id*="` + id + `"]`}
	for _, sel := range selectors {
		if n := first(box.Find(sel)); n != nil {
			return leadingInt(strings.TrimSpace(n.Text()))
		}
	}
	return firstNumber(box.Text())
}

func first(nodes []dom.Node) dom.Node {
	if len(nodes) == 0 {
		return nil
	}
	return nodes[0]
}
