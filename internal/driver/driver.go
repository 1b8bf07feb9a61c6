// Package driver runs extraction passes: wait for the page to settle, gate
// on relevance, run the cascade with a small retry budget, then persist and
// announce good records.
package driver

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/bunkmate/internal/extract"
	"github.com/hyperifyio/bunkmate/internal/message"
	"github.com/hyperifyio/bunkmate/internal/readiness"
	"github.com/hyperifyio/bunkmate/internal/relevance"
	"github.com/hyperifyio/bunkmate/internal/source"
	"github.com/hyperifyio/bunkmate/internal/store"
)

const (
	DefaultRetries    = 3
	DefaultRetryDelay = 2 * time.Second
)

// Pass results reported to a PassObserver.
const (
	PassFound       = "found"
	PassFailed      = "failed"
	PassSkipped     = "skipped"
	PassNotRelevant = "not_relevant"
)

// PassObserver is told how every pass ended.
type PassObserver interface {
	OnPass(result string)
}

// Pass is the outcome of one Run.
type Pass struct {
	ID       string
	Record   extract.Record
	Relevant bool
	Ready    bool
	Attempts int
	// Skipped is set when another pass was already running.
	Skipped bool
}

// Driver owns the pipeline for one document source.
type Driver struct {
	Source    source.Source
	Waiter    *readiness.Waiter
	Filter    *relevance.Filter
	Extractor *extract.Extractor
	Store     store.Store
	Notifier  message.Notifier
	Observer  PassObserver

	Retries    int
	RetryDelay time.Duration
	Now        func() time.Time

	running atomic.Bool

	mu          sync.Mutex
	last        *extract.Record
	lastFailure *extract.Record
}

// New returns a driver with default waiter, filter, cascade and retry
// budget. Store and Notifier are optional.
func New(src source.Source) *Driver {
	return &Driver{
		Source:     src,
		Waiter:     readiness.New(),
		Filter:     relevance.Default(),
		Extractor:  extract.Default(),
		Retries:    DefaultRetries,
		RetryDelay: DefaultRetryDelay,
	}
}

func (d *Driver) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Run performs one pass. A Run while another is active returns at once
// with Skipped set. Storage and notification failures are logged and never
// fail the pass.
func (d *Driver) Run(ctx context.Context) Pass {
	if !d.running.CompareAndSwap(false, true) {
		d.observe(PassSkipped)
		return Pass{Skipped: true}
	}
	defer d.running.Store(false)

	p := Pass{ID: uuid.NewString()}
	logger := log.With().Str("pass", p.ID).Str("source", d.describe()).Logger()
	var diags []string

	if d.Source == nil {
		p.Record = d.failed(append(diags, source.ErrNoSource.Error()))
		d.finish(ctx, logger, &p)
		return p
	}

	waiter := d.Waiter
	if waiter == nil {
		waiter = readiness.New()
	}
	w := waiter.Wait(ctx, d.Source.Load)
	p.Ready = w.Ready
	if w.Ready {
		diags = append(diags, fmt.Sprintf("content ready after %d checks", w.Attempts))
	} else {
		diags = append(diags, fmt.Sprintf("content not ready after %d checks, proceeding", w.Attempts))
	}
	doc := w.Doc

	if doc != nil {
		filter := d.Filter
		if filter == nil {
			filter = relevance.Default()
		}
		v := filter.Evaluate(doc)
		for _, e := range v.Errors {
			diags = append(diags, "relevance signal error: "+e)
		}
		if !v.Relevant {
			logger.Debug().Msg("not an attendance page, skipping extraction")
			p.Record = d.failed(append(diags, "not an attendance page"))
			p.Record.URL, p.Record.Title = doc.URL(), doc.Title()
			d.rememberFailure(p.Record)
			d.observe(PassNotRelevant)
			return p
		}
	}
	p.Relevant = true

	retries := d.Retries
	if retries <= 0 {
		retries = 1
	}
	ex := d.Extractor
	if ex == nil {
		ex = extract.Default()
	}
	var rec extract.Record
	for attempt := 1; attempt <= retries; attempt++ {
		p.Attempts = attempt
		if attempt > 1 {
			if !sleep(ctx, d.RetryDelay) {
				diags = append(diags, fmt.Sprintf("attempt %d: cancelled: %v", attempt, ctx.Err()))
				break
			}
			doc = nil
		}
		if doc == nil {
			loaded, err := d.Source.Load(ctx)
			if err != nil {
				diags = append(diags, fmt.Sprintf("attempt %d: load failed: %v", attempt, err))
				logger.Warn().Err(err).Int("attempt", attempt).Msg("document load failed")
				continue
			}
			doc = loaded
		}
		rec = ex.Extract(doc)
		for _, line := range rec.Diagnostics {
			diags = append(diags, fmt.Sprintf("attempt %d: %s", attempt, line))
		}
		if rec.Found {
			break
		}
		logger.Debug().Int("attempt", attempt).Str("outcome", string(rec.Outcome)).Msg("extraction attempt failed")
	}
	if rec.Outcome == "" {
		rec = d.failed(nil)
	}
	rec.Diagnostics = diags
	p.Record = rec
	d.finish(ctx, logger, &p)
	return p
}

func (d *Driver) finish(ctx context.Context, logger zerolog.Logger, p *Pass) {
	rec := p.Record
	if !rec.Found {
		logger.Info().Str("outcome", string(rec.Outcome)).Int("attempts", p.Attempts).Msg("no attendance data")
		d.rememberFailure(rec)
		d.observe(PassFailed)
		return
	}
	logger.Info().
		Str("method", string(rec.Method)).
		Int("total", rec.TotalClasses).
		Int("attended", rec.AttendedClasses).
		Msg("attendance extracted")
	d.mu.Lock()
	d.last = &rec
	d.mu.Unlock()
	if d.Store != nil {
		if err := store.SaveRecord(ctx, d.Store, rec); err != nil {
			logger.Warn().Err(err).Msg("store record failed")
		}
	}
	if d.Notifier != nil {
		n := message.Notification{ID: p.ID, Action: message.ActionDataExtracted, Record: rec, At: d.now().UTC()}
		if err := d.Notifier.Publish(ctx, n); err != nil {
			logger.Warn().Err(err).Msg("notify failed")
		}
	}
	d.observe(PassFound)
}

func (d *Driver) failed(diags []string) extract.Record {
	return extract.Record{Outcome: extract.OutcomeNotFound, Diagnostics: diags, CapturedAt: d.now().UTC()}
}

func (d *Driver) rememberFailure(rec extract.Record) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastFailure = &rec
}

func (d *Driver) observe(result string) {
	if d.Observer != nil {
		d.Observer.OnPass(result)
	}
}

func (d *Driver) describe() string {
	if d.Source == nil {
		return ""
	}
	return d.Source.Describe()
}

// Last returns the most recent successful record of this driver.
func (d *Driver) Last() (extract.Record, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.last == nil {
		return extract.Record{}, false
	}
	return *d.last, true
}

// LastFailure returns the most recent failed record so a display surface
// can explain it. Failed records are never persisted.
func (d *Driver) LastFailure() (extract.Record, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lastFailure == nil {
		return extract.Record{}, false
	}
	return *d.lastFailure, true
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
