package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/hlog"

	"github.com/hyperifyio/bunkmate/internal/calc"
	"github.com/hyperifyio/bunkmate/internal/extract"
	"github.com/hyperifyio/bunkmate/internal/message"
	"github.com/hyperifyio/bunkmate/internal/report"
	"github.com/hyperifyio/bunkmate/internal/source"
	"github.com/hyperifyio/bunkmate/internal/store"
)

// Reasons used only by the HTTP transport.
const (
	ReasonBadRequest    message.Reason = "bad_request"
	ReasonInvalidTarget message.Reason = "invalid_target"
	ReasonStoreFailed   message.Reason = "store_unavailable"
)

const maxRequestBytes = 8 << 20

// MessageRequest is a message.Request with an optional inline document.
// HTML wins over URL; URL alone is fetched.
type MessageRequest struct {
	Action string `json:"action" validate:"required"`
	HTML   string `json:"html,omitempty"`
	URL    string `json:"url,omitempty" validate:"omitempty,url"`
}

// AdviceResponse is the body of GET /v1/advice.
type AdviceResponse struct {
	Record         extract.Record `json:"record"`
	Advice         calc.Advice    `json:"advice"`
	Recommendation string         `json:"recommendation"`
	Staleness      string         `json:"staleness"`
	Stale          bool           `json:"stale"`
	Estimated      bool           `json:"estimated"`
}

// TargetRequest is the body of PUT /v1/target.
type TargetRequest struct {
	Target float64 `json:"target" validate:"gt=0,lte=100"`
}

type health struct {
	Status string `json:"status"`
	Store  string `json:"store,omitempty"`
}

// pinger is implemented by stores that can check their backend.
type pinger interface {
	Healthy(ctx context.Context) bool
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	h := health{Status: "ok"}
	if p, ok := s.Store.(pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if !p.Healthy(ctx) {
			h.Status, h.Store = "degraded", "unreachable"
			writeJSON(w, http.StatusServiceUnavailable, h)
			return
		}
		h.Store = "ok"
	}
	writeJSON(w, http.StatusOK, h)
}

func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if err := s.decode(r, &req); err != nil {
		fail(w, http.StatusBadRequest, ReasonBadRequest, err.Error())
		return
	}

	res := s.Handler.HandleWith(r.Context(), message.Request{Action: req.Action}, s.sourceFor(req))
	if res.Succeeded() && res.OK.Record != nil {
		s.persist(r, *res.OK.Record)
	}
	writeJSON(w, statusFor(res), res)
}

func (s *Server) sourceFor(req MessageRequest) source.Source {
	switch {
	case req.HTML != "":
		return source.Bytes{HTML: []byte(req.HTML), PageURL: req.URL}
	case req.URL != "":
		return source.URL{Client: s.clientFor(req.URL), URL: req.URL}
	}
	return s.Handler.Source
}

// persist stores and announces a found record. Failures are logged only.
func (s *Server) persist(r *http.Request, rec extract.Record) {
	logger := hlog.FromRequest(r)
	if err := store.SaveRecord(r.Context(), s.Store, rec); err != nil {
		logger.Warn().Err(err).Msg("store record failed")
	}
	if s.Notifier == nil {
		return
	}
	n := message.Notification{ID: uuid.NewString(), Action: message.ActionDataExtracted, Record: rec, At: s.now()}
	if err := s.Notifier.Publish(r.Context(), n); err != nil {
		logger.Warn().Err(err).Msg("notify failed")
	}
}

func statusFor(res message.Result) int {
	if res.Succeeded() {
		return http.StatusOK
	}
	switch res.Err.Reason {
	case message.ReasonUnknownAction:
		return http.StatusBadRequest
	case message.ReasonSourceUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusUnprocessableEntity
	}
}

func (s *Server) getAdvice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := s.now()

	rec, err := store.LoadRecord(ctx, s.Store, now, s.MaxAge)
	stale := errors.Is(err, store.ErrStale)
	switch {
	case errors.Is(err, store.ErrNotFound):
		fail(w, http.StatusNotFound, message.ReasonNotFound, report.FailureMessage(extract.Record{Outcome: extract.OutcomeNotFound}))
		return
	case err != nil && !stale:
		hlog.FromRequest(r).Warn().Err(err).Msg("load record failed")
		fail(w, http.StatusServiceUnavailable, ReasonStoreFailed, err.Error())
		return
	}

	target, err := s.target(r)
	if err != nil {
		fail(w, http.StatusBadRequest, ReasonInvalidTarget, err.Error())
		return
	}
	adv, err := calc.Advise(rec.TotalClasses, rec.AttendedClasses, target)
	if err != nil {
		fail(w, http.StatusBadRequest, ReasonInvalidTarget, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, AdviceResponse{
		Record:         rec,
		Advice:         adv,
		Recommendation: report.Recommendation(adv),
		Staleness:      report.Staleness(now, rec),
		Stale:          stale,
		Estimated:      rec.Method.LowConfidence(),
	})
}

// target reads ?target= or falls back to the stored target.
func (s *Server) target(r *http.Request) (float64, error) {
	if q := r.URL.Query().Get("target"); q != "" {
		v, err := strconv.ParseFloat(q, 64)
		if err != nil {
			return 0, fmt.Errorf("target %q is not a number", q)
		}
		return v, nil
	}
	v, err := store.LoadTarget(r.Context(), s.Store)
	if err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("load target failed, using default")
	}
	return v, nil
}

func (s *Server) putTarget(w http.ResponseWriter, r *http.Request) {
	var req TargetRequest
	if err := s.decode(r, &req); err != nil {
		fail(w, http.StatusBadRequest, ReasonInvalidTarget, err.Error())
		return
	}
	if err := store.SaveTarget(r.Context(), s.Store, req.Target); err != nil {
		if errors.Is(err, calc.ErrInvalidTarget) {
			fail(w, http.StatusBadRequest, ReasonInvalidTarget, err.Error())
			return
		}
		fail(w, http.StatusServiceUnavailable, ReasonStoreFailed, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// events streams notifications as server-sent events until the client
// goes away.
func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		fail(w, http.StatusInternalServerError, ReasonBadRequest, "streaming unsupported")
		return
	}
	sub, cancel := s.Bus.Subscribe(16)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	keepAlive := time.NewTicker(30 * time.Second)
	defer keepAlive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case n, ok := <-sub:
			if !ok {
				return
			}
			b, err := json.Marshal(n)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", n.ID, n.Action, b)
			flusher.Flush()
		}
	}
}

func (s *Server) decode(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxRequestBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	if err := s.checker().Struct(v); err != nil {
		return fmt.Errorf("invalid body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func fail(w http.ResponseWriter, status int, reason message.Reason, msg string) {
	writeJSON(w, status, message.Result{Err: &message.Failure{Reason: reason, Message: msg}})
}
