package extract

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"

	"github.com/hyperifyio/bunkmate/internal/dom"
)

// Keyword lists are ordered most specific first; numberAfter relies on it.
var (
	TotalKeywords = []string{
		"total classes", "total lectures", "total sessions",
		"classes conducted", "lectures conducted", "conducted", "total",
	}
	PresentKeywords = []string{
		"classes attended", "lectures attended", "present", "attended", "attendance",
	}
	AbsentKeywords = []string{"absent", "missed", "absenteeism"}
)

var (
	digitsRe  = regexp.MustCompile(`\d+`)
	percentRe = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*%`)
	leadingRe = regexp.MustCompile(`^\s*(\d+)`)
)

// Fold returns s case folded with whitespace collapsed, the form every
// keyword comparison uses.
func Fold(s string) string {
	return cases.Fold().String(dom.CollapseSpace(s))
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// isPercentText reports text that talks about a ratio rather than a count.
func isPercentText(folded string) bool {
	return strings.Contains(folded, "%") || strings.Contains(folded, "percent")
}

// numbers returns every integer in s, ignoring percentage expressions.
func numbers(s string) []int {
	s = percentRe.ReplaceAllString(s, " ")
	raw := digitsRe.FindAllString(s, -1)
	out := make([]int, 0, len(raw))
	for _, r := range raw {
		if n, err := strconv.Atoi(r); err == nil {
			out = append(out, n)
		}
	}
	return out
}

func lastNumber(s string) (int, bool) {
	ns := numbers(s)
	if len(ns) == 0 {
		return 0, false
	}
	return ns[len(ns)-1], true
}

func firstNumber(s string) (int, bool) {
	ns := numbers(s)
	if len(ns) == 0 {
		return 0, false
	}
	return ns[0], true
}

// leadingInt parses the integer at the start of s, ignoring trailing text
// such as units.
func leadingInt(s string) (int, bool) {
	m := leadingRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// numberAfter finds the first keyword present in folded text and returns the
// first number following it, falling back to the trailing number of the
// whole text when the keyword is followed by none.
func numberAfter(folded string, keywords []string) (int, bool) {
	for _, k := range keywords {
		i := strings.Index(folded, k)
		if i < 0 {
			continue
		}
		if n, ok := firstNumber(folded[i+len(k):]); ok {
			return n, true
		}
		return lastNumber(folded)
	}
	return 0, false
}

func clip(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "…"
}
