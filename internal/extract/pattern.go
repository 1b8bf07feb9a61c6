package extract

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/hyperifyio/bunkmate/internal/dom"
)

// textPattern is a regular expression template over folded body text. The
// two indexes name which submatch holds each figure.
type textPattern struct {
	name     string
	re       *regexp.Regexp
	attended int
	total    int
}

// Patterns are tried in order; the first sane match wins.
var patterns = []textPattern{
	{"fraction", regexp.MustCompile(`(?:attended|present)?\s*(\d+)\s*/\s*(\d+)`), 1, 2},
	{"total then present", regexp.MustCompile(`total\s*:?\s*(\d+)[\s\S]{0,200}?(?:attended|present)\s*:?\s*(\d+)`), 2, 1},
	{"present then total", regexp.MustCompile(`(?:attended|present)\s*:?\s*(\d+)[\s\S]{0,200}?total\s*:?\s*(\d+)`), 1, 2},
	{"out of", regexp.MustCompile(`(\d+)\s+out\s+of\s+(\d+)`), 1, 2},
	{"attended classes out of", regexp.MustCompile(`attended\s+(\d+)\s+(?:classes?|lectures?)\s+out\s+of\s+(\d+)`), 1, 2},
}

// Pattern applies free-text regular expressions over the body text.
type Pattern struct{}

func (Pattern) Method() Method { return MethodPattern }

func (Pattern) Extract(doc dom.Document) (*Candidate, []string, error) {
	text := Fold(doc.Text())
	var notes []string
	for _, p := range patterns {
		matches := p.re.FindAllStringSubmatch(text, -1)
		if len(matches) == 0 {
			continue
		}
		notes = append(notes, fmt.Sprintf("pattern %q matched %d times", p.name, len(matches)))
		for _, m := range matches {
			attended, err1 := strconv.Atoi(m[p.attended])
			total, err2 := strconv.Atoi(m[p.total])
			if err1 != nil || err2 != nil {
				continue
			}
			if attended > 0 && attended <= total && total >= MinPlausibleTotal && total <= MaxPlausibleTotal {
				return &Candidate{
					Total:    total,
					Attended: attended,
					Note:     fmt.Sprintf("pattern %q: %d/%d from %q", p.name, attended, total, clip(m[0], 60)),
				}, notes, nil
			}
		}
	}
	return nil, notes, nil
}
