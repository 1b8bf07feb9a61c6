package message

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/bunkmate/internal/dom"
	"github.com/hyperifyio/bunkmate/internal/extract"
	"github.com/hyperifyio/bunkmate/internal/readiness"
	"github.com/hyperifyio/bunkmate/internal/relevance"
	"github.com/hyperifyio/bunkmate/internal/source"
)

// Handler answers requests against a document source. Every request loads
// a fresh snapshot; nothing is cached between requests.
type Handler struct {
	Source    source.Source
	Extractor *extract.Extractor
	Filter    *relevance.Filter
}

// NewHandler returns a handler with the default cascade and filter.
func NewHandler(src source.Source) *Handler {
	return &Handler{Source: src, Extractor: extract.Default(), Filter: relevance.Default()}
}

// Handle answers req using the handler's source.
func (h *Handler) Handle(ctx context.Context, req Request) Result {
	return h.HandleWith(ctx, req, h.Source)
}

// HandleWith answers req against src, which overrides the handler's source.
func (h *Handler) HandleWith(ctx context.Context, req Request, src source.Source) Result {
	switch req.Action {
	case ActionExtractData, ActionGetPageInfo:
	default:
		return Fail(ReasonUnknownAction, fmt.Sprintf("unknown action %q", req.Action))
	}
	if src == nil {
		return Fail(ReasonSourceUnavailable, source.ErrNoSource.Error())
	}
	doc, err := src.Load(ctx)
	if err != nil {
		log.Warn().Err(err).Str("source", src.Describe()).Str("action", req.Action).Msg("document load failed")
		return Fail(ReasonSourceUnavailable, err.Error())
	}
	if req.Action == ActionGetPageInfo {
		info := PageInfoOf(doc, h.filter())
		return Ok(Response{PageInfo: &info})
	}
	return RecordResult(h.extractor().Extract(doc))
}

// RecordResult maps an extraction record onto the result union.
func RecordResult(rec extract.Record) Result {
	switch {
	case rec.Found:
		return Ok(Response{Record: &rec})
	case rec.Outcome == extract.OutcomeInvalidRange:
		return Result{Err: &Failure{Reason: ReasonInvalidRange, Message: "attendance figures failed validation", Record: &rec}}
	default:
		return Result{Err: &Failure{Reason: ReasonNotFound, Message: "no attendance data found", Record: &rec}}
	}
}

func (h *Handler) extractor() *extract.Extractor {
	if h.Extractor == nil {
		return extract.Default()
	}
	return h.Extractor
}

func (h *Handler) filter() *relevance.Filter {
	if h.Filter == nil {
		return relevance.Default()
	}
	return h.Filter
}

// PageInfoOf summarizes doc without running the cascade.
func PageInfoOf(doc dom.Document, f *relevance.Filter) PageInfo {
	tables := dom.TableCount(doc)
	folded := extract.Fold(doc.Text())
	return PageInfo{
		URL:              doc.URL(),
		Title:            doc.Title(),
		IsAttendancePage: f.Evaluate(doc).Relevant,
		HasContent:       len([]rune(strings.TrimSpace(doc.Text()))) > readiness.DefaultMinTextLength,
		TableCount:       tables,
		HasTables:        tables > 0,
		KeywordHit:       strings.Contains(folded, "attendance") || strings.Contains(folded, "total"),
	}
}
