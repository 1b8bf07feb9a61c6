package driver

import (
	"context"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/bunkmate/internal/dom"
	"github.com/hyperifyio/bunkmate/internal/source"
)

// DefaultPollInterval is how often the watcher re-reads the source.
const DefaultPollInterval = 3 * time.Second

// Fingerprint summarizes the structure of a page cheaply.
type Fingerprint struct {
	Tables   int
	TextHash uint64
}

// FingerprintOf returns the fingerprint of doc.
func FingerprintOf(doc dom.Document) Fingerprint {
	if doc == nil {
		return Fingerprint{}
	}
	return Fingerprint{Tables: dom.TableCount(doc), TextHash: xxhash.Sum64String(doc.Text())}
}

// Watcher polls a source and triggers the debouncer when tables are added
// or the text changes. It plays the role of a DOM mutation observer for
// pages that are re-read rather than live.
type Watcher struct {
	Source    source.Source
	Interval  time.Duration
	Debouncer *Debouncer

	last Fingerprint
	seen bool
}

// Observe compares doc with the previous observation and triggers on a
// change. The first observation always triggers.
func (w *Watcher) Observe(doc dom.Document) bool {
	fp := FingerprintOf(doc)
	changed := !w.seen || fp.Tables > w.last.Tables || fp.TextHash != w.last.TextHash
	w.last, w.seen = fp, true
	if changed && w.Debouncer != nil {
		w.Debouncer.Trigger()
	}
	return changed
}

// Run polls until ctx is done. Load errors are logged and polling goes on.
func (w *Watcher) Run(ctx context.Context) error {
	interval := w.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		doc, err := w.Source.Load(ctx)
		if err != nil {
			log.Debug().Err(err).Str("source", w.Source.Describe()).Msg("watch load failed")
		} else if w.Observe(doc) {
			log.Debug().Str("source", w.Source.Describe()).Msg("page changed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// WatchOptions configures Driver.Watch.
type WatchOptions struct {
	Interval time.Duration
	Quiet    time.Duration
	// OnPass receives every completed pass.
	OnPass func(Pass)
}

// Watch runs passes whenever the source changes, until ctx is done.
func (d *Driver) Watch(ctx context.Context, opts WatchOptions) error {
	if d.Source == nil {
		return source.ErrNoSource
	}
	deb := NewDebouncer(opts.Quiet, func() {
		p := d.Run(ctx)
		if opts.OnPass != nil {
			opts.OnPass(p)
		}
	})
	defer deb.Stop()
	w := &Watcher{Source: d.Source, Interval: opts.Interval, Debouncer: deb}
	return w.Run(ctx)
}
