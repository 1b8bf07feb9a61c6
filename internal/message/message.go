// Package message implements the request/response contract between the
// extraction side and a display surface.
package message

import (
	"github.com/hyperifyio/bunkmate/internal/extract"
)

// Actions understood by Handler, plus the notification action.
const (
	ActionExtractData   = "extractData"
	ActionGetPageInfo   = "getPageInfo"
	ActionDataExtracted = "dataExtracted"
)

// Request asks the extraction side to do something.
type Request struct {
	Action string `json:"action" validate:"required"`
}

// Reason classifies a failed request.
type Reason string

const (
	ReasonUnknownAction     Reason = "unknown_action"
	ReasonSourceUnavailable Reason = "source_unavailable"
	ReasonNotFound          Reason = "not_found"
	ReasonInvalidRange      Reason = "invalid_range"
)

// PageInfo is lightweight page metadata.
type PageInfo struct {
	URL              string `json:"url"`
	Title            string `json:"title"`
	IsAttendancePage bool   `json:"isAttendancePage"`
	HasContent       bool   `json:"hasContent"`
	TableCount       int    `json:"tableCount"`
	HasTables        bool   `json:"hasTables"`
	KeywordHit       bool   `json:"keywordHit"`
}

// Response carries exactly one of Record or PageInfo.
type Response struct {
	Record   *extract.Record `json:"record,omitempty"`
	PageInfo *PageInfo       `json:"pageInfo,omitempty"`
}

// Failure explains why a request produced no usable answer. Record is set
// when an extraction ran, so its diagnostics can be shown.
type Failure struct {
	Reason  Reason          `json:"reason"`
	Message string          `json:"message"`
	Record  *extract.Record `json:"record,omitempty"`
}

func (f *Failure) Error() string { return string(f.Reason) + ": " + f.Message }

// Result is either OK or Err, never both.
type Result struct {
	OK  *Response `json:"ok,omitempty"`
	Err *Failure  `json:"error,omitempty"`
}

func Ok(r Response) Result { return Result{OK: &r} }

func Fail(reason Reason, msg string) Result {
	return Result{Err: &Failure{Reason: reason, Message: msg}}
}

// Succeeded reports the OK branch.
func (r Result) Succeeded() bool { return r.OK != nil && r.Err == nil }
