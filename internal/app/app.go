package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/bunkmate/internal/calc"
	"github.com/hyperifyio/bunkmate/internal/driver"
	"github.com/hyperifyio/bunkmate/internal/extract"
	"github.com/hyperifyio/bunkmate/internal/fetch"
	"github.com/hyperifyio/bunkmate/internal/message"
	"github.com/hyperifyio/bunkmate/internal/metrics"
	"github.com/hyperifyio/bunkmate/internal/relevance"
	"github.com/hyperifyio/bunkmate/internal/report"
	"github.com/hyperifyio/bunkmate/internal/server"
	"github.com/hyperifyio/bunkmate/internal/source"
	"github.com/hyperifyio/bunkmate/internal/store"
)

// Build information populated via -ldflags.
var (
	BuildVersion = "0.0.0-dev"
	BuildCommit  = "unknown"
)

var (
	// ErrNoData is returned by Once when the pass produced no usable record.
	ErrNoData = errors.New("no usable attendance data")
	// ErrNotAttendancePage is returned by Once when the page failed the
	// relevance gate.
	ErrNotAttendancePage = errors.New("page does not look like an attendance page")
	// ErrNoFollow is returned by Follow when no redis channel is configured.
	ErrNoFollow = errors.New("following notifications needs redis")
)

// App wires configuration to the extraction pipeline and its collaborators.
type App struct {
	cfg Config

	fetch    *fetch.Client
	source   source.Source
	store    store.Store
	bus      *message.Bus
	redis    *message.RedisNotifier
	notifier message.Notifier
	registry *prometheus.Registry
	metrics  *metrics.Collector
	driver   *driver.Driver

	closers []func() error
}

// Outcome is one finished pass together with the advice derived from it.
type Outcome struct {
	Pass   driver.Pass
	Target float64
	// Advice is nil when the record is unusable or the target unreachable.
	Advice *calc.Advice
	// AdviceErr explains a nil Advice for a found record.
	AdviceErr error
}

// New validates cfg and builds the collaborators it asks for.
func New(ctx context.Context, cfg Config) (*App, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	a := &App{cfg: cfg, bus: message.NewBus()}

	header := http.Header{}
	if cfg.Cookie != "" {
		header.Set("Cookie", cfg.Cookie)
	}
	a.fetch = &fetch.Client{
		HTTPClient:        newPortalHTTPClient(),
		UserAgent:         cfg.UserAgent,
		Header:            header,
		MaxAttempts:       3,
		PerRequestTimeout: 20 * time.Second,
	}
	if cfg.InputPath != "" || cfg.PageURL != "" {
		src, err := source.For(cfg.InputPath, cfg.PageURL, a.fetch)
		if err != nil {
			return nil, err
		}
		a.source = src
	}

	var redisClient *redis.Client
	switch cfg.StoreKind {
	case StoreRedis:
		rs := store.NewRedis(cfg.RedisAddr)
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if !rs.Healthy(pingCtx) {
			log.Warn().Str("addr", cfg.RedisAddr).Msg("redis unreachable; continuing, writes will be retried per pass")
		}
		cancel()
		a.store, redisClient = rs, rs.Client
		a.closers = append(a.closers, rs.Close)
	case StoreMemory:
		a.store = store.NewMemory()
	default:
		fs := &store.FileStore{Dir: cfg.StoreDir, StrictPerms: cfg.StoreStrictPerms}
		if cfg.StoreClear {
			if err := fs.Clear(); err != nil {
				log.Warn().Err(err).Str("dir", cfg.StoreDir).Msg("store clear failed")
			}
		}
		a.store = fs
	}

	a.notifier = a.bus
	if redisClient == nil && cfg.RedisAddr != "" {
		redisClient = store.NewRedis(cfg.RedisAddr).Client
		a.closers = append(a.closers, redisClient.Close)
	}
	if redisClient != nil {
		a.redis = message.NewRedisNotifier(redisClient, cfg.NotifyChannel)
		a.notifier = message.Multi{a.bus, a.redis}
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(a.registry)

	ex := extract.Default()
	ex.Observer = a.metrics
	d := driver.New(a.source)
	d.Extractor = ex
	d.Store = a.store
	d.Notifier = a.notifier
	d.Observer = a.metrics
	d.Retries = cfg.Retries
	d.RetryDelay = cfg.RetryDelay
	a.driver = d

	log.Debug().
		Str("version", BuildVersion).
		Str("store", cfg.StoreKind).
		Bool("redis", a.redis != nil).
		Str("source", describe(a.source)).
		Msg("app ready")
	return a, nil
}

func describe(src source.Source) string {
	if src == nil {
		return "none"
	}
	return src.Describe()
}

// Close releases connections opened by New.
func (a *App) Close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			log.Debug().Err(err).Msg("close failed")
		}
	}
	a.closers = nil
}

// Driver exposes the pipeline driver.
func (a *App) Driver() *driver.Driver { return a.driver }

// Registry exposes the prometheus registry backing /metrics.
func (a *App) Registry() *prometheus.Registry { return a.registry }

// Store exposes the configured store.
func (a *App) Store() store.Store { return a.store }

// Target is the configured target, or the stored one when the config
// leaves the default in place.
func (a *App) Target(ctx context.Context) float64 {
	if a.cfg.Target != calc.DefaultTarget {
		return a.cfg.Target
	}
	t, err := store.LoadTarget(ctx, a.store)
	if err != nil {
		log.Debug().Err(err).Msg("load target failed; using default")
	}
	return t
}

// Once runs a single pass and derives advice from it. The PDF summary is
// written when configured, including for failed passes.
func (a *App) Once(ctx context.Context) (Outcome, error) {
	out := a.outcome(ctx, a.driver.Run(ctx))
	if a.cfg.OutputPDFPath != "" {
		if err := report.WritePDF(a.cfg.OutputPDFPath, time.Now(), out.Pass.Record, out.Advice); err != nil {
			log.Warn().Err(err).Str("path", a.cfg.OutputPDFPath).Msg("write pdf failed")
		}
	}
	switch {
	case !out.Pass.Relevant:
		return out, ErrNotAttendancePage
	case !out.Pass.Record.Found:
		return out, ErrNoData
	}
	return out, nil
}

func (a *App) outcome(ctx context.Context, p driver.Pass) Outcome {
	out := Outcome{Pass: p, Target: a.Target(ctx)}
	if !p.Record.Found {
		return out
	}
	adv, err := calc.Advise(p.Record.TotalClasses, p.Record.AttendedClasses, out.Target)
	if err != nil {
		out.AdviceErr = err
		return out
	}
	out.Advice = &adv
	return out
}

// Watch runs a pass whenever the page changes until ctx is done.
func (a *App) Watch(ctx context.Context, fn func(Outcome)) error {
	err := a.driver.Watch(ctx, driver.WatchOptions{
		Interval: a.cfg.PollInterval,
		Quiet:    a.cfg.Quiet,
		OnPass: func(p driver.Pass) {
			if p.Skipped || fn == nil {
				return
			}
			fn(a.outcome(ctx, p))
		},
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Server builds the HTTP service over the app's collaborators.
func (a *App) Server() *server.Server {
	h := &message.Handler{Source: a.source, Extractor: a.driver.Extractor, Filter: relevance.Default()}
	srv := server.New(h, a.store)
	srv.Notifier = a.notifier
	srv.Bus = a.bus
	srv.Fetch = a.fetch
	srv.PortalURL = a.cfg.PageURL
	srv.Gatherer = a.registry
	srv.MaxAge = a.cfg.MaxAge
	srv.Origins = a.cfg.CORSOrigins
	return srv
}

// Serve runs the HTTP service until ctx is done.
func (a *App) Serve(ctx context.Context) error {
	return a.Server().ListenAndServe(ctx, a.cfg.Listen)
}

// Follow calls fn for every notification published on the redis channel.
func (a *App) Follow(ctx context.Context, fn func(message.Notification)) error {
	if a.redis == nil {
		return ErrNoFollow
	}
	ch, err := a.redis.Listen(ctx)
	if err != nil {
		return err
	}
	for n := range ch {
		fn(n)
	}
	return nil
}

// Run executes the configured mode: serve and watch may run together;
// otherwise a single pass.
func (a *App) Run(ctx context.Context, w io.Writer) error {
	switch {
	case a.cfg.Follow:
		return a.Follow(ctx, func(n message.Notification) { a.PrintNotification(w, n) })
	case a.cfg.Serve && a.cfg.Watch && a.source != nil:
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		errc := make(chan error, 1)
		go func() { errc <- a.Watch(ctx, func(o Outcome) { a.Print(w, o) }) }()
		err := a.Serve(ctx)
		cancel()
		if werr := <-errc; err == nil {
			err = werr
		}
		return err
	case a.cfg.Serve:
		return a.Serve(ctx)
	case a.cfg.Watch:
		return a.Watch(ctx, func(o Outcome) { a.Print(w, o) })
	}
	out, err := a.Once(ctx)
	a.Print(w, out)
	return err
}

// Print writes the human summary of o.
func (a *App) Print(w io.Writer, o Outcome) {
	fmt.Fprint(w, report.Summary(time.Now(), o.Pass.Record, o.Advice))
	if o.AdviceErr != nil {
		fmt.Fprintf(w, "\nNo advice for a %s%% target: %v\n", report.FormatTarget(o.Target), o.AdviceErr)
	}
}

// PrintNotification writes the recommendation carried by n.
func (a *App) PrintNotification(w io.Writer, n message.Notification) {
	rec := n.Record
	adv, err := calc.Advise(rec.TotalClasses, rec.AttendedClasses, a.Target(context.Background()))
	if err != nil {
		fmt.Fprintf(w, "%s %d/%d: %v\n", n.At.Format(time.RFC3339), rec.AttendedClasses, rec.TotalClasses, err)
		return
	}
	fmt.Fprintf(w, "%s %s%% (%d/%d) %s\n", n.At.Format(time.RFC3339), calc.FormatPercent(adv.CurrentPercentage), rec.AttendedClasses, rec.TotalClasses, report.Recommendation(adv))
}
