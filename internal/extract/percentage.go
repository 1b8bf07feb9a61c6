package extract

import (
	"fmt"
	"math"
	"strconv"

	"github.com/hyperifyio/bunkmate/internal/dom"
)

// Plausibility windows for back-calculation.
const (
	MinPlausiblePercent = 40.0
	MaxPlausiblePercent = 100.0
	MinPlausibleTotal   = 10
	MaxPlausibleTotal   = 500
)

// Percentage derives attended from a percentage on the page and the most
// plausible total. Its output is an estimate and ranks below every strategy
// that reads figures directly.
type Percentage struct{}

func (Percentage) Method() Method { return MethodPercentage }

func (Percentage) Extract(doc dom.Document) (*Candidate, []string, error) {
	text := doc.Text()
	var pct float64
	havePct := false
	var seen []string
	for _, m := range percentRe.FindAllStringSubmatch(text, -1) {
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		seen = append(seen, m[1])
		if !havePct && v >= MinPlausiblePercent && v <= MaxPlausiblePercent {
			pct, havePct = v, true
		}
	}
	notes := []string{fmt.Sprintf("percentages found: %v", seen)}
	if !havePct {
		return nil, notes, nil
	}
	var totals []int
	for _, n := range numbers(text) {
		if n >= MinPlausibleTotal && n <= MaxPlausibleTotal {
			totals = append(totals, n)
		}
	}
	if len(totals) == 0 {
		notes = append(notes, "no plausible total near the percentage")
		return nil, notes, nil
	}
	total := totals[len(totals)-1]
	attended := int(math.Round(pct / 100 * float64(total)))
	return &Candidate{
		Total:    total,
		Attended: attended,
		Note:     fmt.Sprintf("back-calculated %d/%d from %.2f%%", attended, total, pct),
	}, notes, nil
}
