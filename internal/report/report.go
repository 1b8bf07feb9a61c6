// Package report renders records and advice for people.
package report

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hyperifyio/bunkmate/internal/calc"
	"github.com/hyperifyio/bunkmate/internal/extract"
)

func classes(n int) string {
	if n == 1 {
		return "class"
	}
	return "classes"
}

// FormatTarget renders a target percentage without trailing zeros, e.g. "82.5".
func FormatTarget(t float64) string { return strconv.FormatFloat(t, 'f', -1, 64) }

// Recommendation is the one-line guidance for adv.
func Recommendation(adv calc.Advice) string {
	if adv.Direction == calc.MustAttend {
		return fmt.Sprintf("You need to attend %d more %s to reach %s%% attendance.", adv.Count, classes(adv.Count), FormatTarget(adv.Target))
	}
	if adv.Count == 0 {
		return fmt.Sprintf("You're at the limit! You can't skip any more classes and still maintain %s%% attendance.", FormatTarget(adv.Target))
	}
	return fmt.Sprintf("You can safely skip %d more %s and still maintain %s%% attendance.", adv.Count, classes(adv.Count), FormatTarget(adv.Target))
}

// FailureMessage tells the user what to do when rec holds no usable data.
// It returns "" for a found record.
func FailureMessage(rec extract.Record) string {
	switch {
	case rec.Found:
		return ""
	case rec.Outcome == extract.OutcomeInvalidRange:
		return "Attendance figures looked invalid. Check that the attendance summary is fully loaded, then retry or enter the numbers manually."
	default:
		return "No attendance data found. Navigate to the attendance page and retry."
	}
}

// Staleness describes the age of rec, e.g. "captured 5 minutes ago".
func Staleness(now time.Time, rec extract.Record) string {
	if rec.CapturedAt.IsZero() {
		return "capture time unknown"
	}
	age := rec.Age(now)
	switch {
	case age < time.Minute:
		return "captured just now"
	case age < time.Hour:
		return plural("captured %d minute%s ago", int(age/time.Minute))
	case age < 48*time.Hour:
		return plural("captured %d hour%s ago", int(age/time.Hour))
	default:
		return plural("captured %d day%s ago", int(age/(24*time.Hour)))
	}
}

func plural(format string, n int) string {
	s := "s"
	if n == 1 {
		s = ""
	}
	return fmt.Sprintf(format, n, s)
}

// Confidence labels records derived indirectly.
func Confidence(rec extract.Record) string {
	if rec.Method.LowConfidence() {
		return "estimated"
	}
	return "read from page"
}

// Summary renders rec and adv as Markdown. adv may be nil when the record
// is unusable or no advice exists for the target; the figures are still
// shown for a found record.
func Summary(now time.Time, rec extract.Record, adv *calc.Advice) string {
	var b strings.Builder
	b.WriteString("# Attendance summary\n\n")
	if rec.Title != "" || rec.URL != "" {
		fmt.Fprintf(&b, "Source: %s %s\n\n", rec.Title, rec.URL)
	}
	if !rec.Found {
		b.WriteString(FailureMessage(rec))
		b.WriteString("\n\n")
	} else {
		if pct, err := calc.Percent(rec.TotalClasses, rec.AttendedClasses); err == nil {
			fmt.Fprintf(&b, "## %s%%\n\n", calc.FormatPercent(pct))
		}
		fmt.Fprintf(&b, "Total classes: %d\n", rec.TotalClasses)
		fmt.Fprintf(&b, "Classes attended: %d\n", rec.AttendedClasses)
		if adv != nil {
			fmt.Fprintf(&b, "Target: %s%%\n\n", FormatTarget(adv.Target))
			b.WriteString(Recommendation(*adv))
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "\nMethod: %s (%s), %s\n", rec.Method, Confidence(rec), Staleness(now, rec))
	}
	if len(rec.Diagnostics) > 0 {
		b.WriteString("\n## Diagnostics\n\n")
		for _, d := range rec.Diagnostics {
			b.WriteString(d)
			b.WriteString("\n")
		}
	}
	return b.String()
}
