// Package readiness waits for asynchronously rendered pages to settle
// before extraction.
package readiness

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/bunkmate/internal/dom"
	"github.com/hyperifyio/bunkmate/internal/extract"
)

const (
	DefaultInterval      = 1500 * time.Millisecond
	DefaultMaxAttempts   = 10
	DefaultMinTextLength = 100
)

// Probe returns the current state of the page. An error counts as not
// ready.
type Probe func(ctx context.Context) (dom.Document, error)

// Result describes how a wait ended. Doc is the last successfully probed
// document, which may be nil when every probe failed.
type Result struct {
	Ready    bool
	Attempts int
	Doc      dom.Document
	// Skipped is set when another Wait on the same Waiter was in flight.
	Skipped bool
}

// Waiter polls a probe until the page has enough content. It never blocks
// beyond MaxAttempts polls.
type Waiter struct {
	Interval      time.Duration
	MaxAttempts   int
	MinTextLength int

	active atomic.Bool
}

// New returns a waiter with default settings.
func New() *Waiter {
	return &Waiter{Interval: DefaultInterval, MaxAttempts: DefaultMaxAttempts, MinTextLength: DefaultMinTextLength}
}

// Ready reports whether doc has enough text and either a table or a
// relevant keyword.
func (w *Waiter) Ready(doc dom.Document) bool {
	if doc == nil {
		return false
	}
	text := strings.TrimSpace(doc.Text())
	if len([]rune(text)) <= w.minText() {
		return false
	}
	if dom.TableCount(doc) > 0 {
		return true
	}
	folded := extract.Fold(text)
	return strings.Contains(folded, "attendance") || strings.Contains(folded, "total")
}

// Wait probes until the page is ready, MaxAttempts is reached, or ctx is
// done. A call made while another Wait is running returns immediately with
// Skipped set.
func (w *Waiter) Wait(ctx context.Context, probe Probe) Result {
	if !w.active.CompareAndSwap(false, true) {
		return Result{Skipped: true}
	}
	defer w.active.Store(false)

	maxAttempts := w.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	interval := w.Interval
	if interval < 0 {
		interval = 0
	}

	var res Result
	for res.Attempts < maxAttempts {
		res.Attempts++
		doc, err := probe(ctx)
		if err != nil {
			log.Debug().Err(err).Int("attempt", res.Attempts).Msg("readiness probe failed")
		} else {
			res.Doc = doc
			if w.Ready(doc) {
				res.Ready = true
				log.Debug().Int("attempt", res.Attempts).Msg("content ready")
				return res
			}
		}
		if res.Attempts >= maxAttempts {
			break
		}
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return res
		case <-timer.C:
		}
	}
	log.Debug().Int("attempts", res.Attempts).Msg("content not ready, proceeding anyway")
	return res
}

func (w *Waiter) minText() int {
	if w.MinTextLength <= 0 {
		return DefaultMinTextLength
	}
	return w.MinTextLength
}
