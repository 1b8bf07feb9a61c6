package extract

import (
	"time"
)

// Method identifies the strategy that produced a record. It is carried for
// diagnostics and trust display only.
type Method string

const (
	MethodNone       Method = ""
	MethodDirectID   Method = "direct_id"
	MethodStructural Method = "structural"
	MethodTableScan  Method = "table_scan"
	MethodDOMScan    Method = "dom_scan"
	MethodPercentage Method = "percentage"
	MethodPattern    Method = "pattern"
	MethodRowCount   Method = "row_count"
)

// LowConfidence reports methods whose output is an estimate rather than two
// figures read off the page.
func (m Method) LowConfidence() bool {
	return m == MethodPercentage || m == MethodRowCount
}

// Outcome distinguishes why a record is or is not usable.
type Outcome string

const (
	OutcomeFound        Outcome = "found"
	OutcomeNotFound     Outcome = "not_found"
	OutcomeInvalidRange Outcome = "invalid_range"
)

// Record is the normalized result of one extraction pass. A fresh Record is
// built on every pass; records are never mutated after Extract returns.
// When Found is false the numeric fields are zero and must not be used.
type Record struct {
	TotalClasses    int       `json:"totalClasses"`
	AttendedClasses int       `json:"attendedClasses"`
	Found           bool      `json:"found"`
	Outcome         Outcome   `json:"outcome"`
	Method          Method    `json:"extractionMethod,omitempty"`
	Swapped         bool      `json:"swapped,omitempty"`
	Diagnostics     []string  `json:"diagnostics"`
	CapturedAt      time.Time `json:"capturedAt"`
	URL             string    `json:"url,omitempty"`
	Title           string    `json:"title,omitempty"`
}

// Age returns how long ago the record was captured.
func (r Record) Age(now time.Time) time.Duration {
	if r.CapturedAt.IsZero() {
		return 0
	}
	return now.Sub(r.CapturedAt)
}

// Stale reports whether the record is older than maxAge. A non-positive
// maxAge disables expiry.
func (r Record) Stale(now time.Time, maxAge time.Duration) bool {
	if maxAge <= 0 {
		return false
	}
	return r.Age(now) > maxAge
}

// Candidate is a raw (total, attended) pair proposed by a strategy before
// validation.
type Candidate struct {
	Total    int
	Attended int
	// Note says what matched and where.
	Note string
}
