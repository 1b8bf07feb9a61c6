// Package server exposes the messaging contract over HTTP so a display
// surface running elsewhere can request extractions and advice.
package server

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/bunkmate/internal/fetch"
	"github.com/hyperifyio/bunkmate/internal/message"
	"github.com/hyperifyio/bunkmate/internal/store"
)

// Server serves the HTTP transport. Handler and Store are required; the
// rest are optional.
type Server struct {
	Handler *message.Handler
	Store   store.Store
	// Notifier receives dataExtracted notifications for records extracted
	// through POST /v1/messages.
	Notifier message.Notifier
	// Bus backs GET /v1/events. Nil disables the endpoint.
	Bus *message.Bus
	// Fetch is the portal client. It carries the session headers and is
	// used only for request urls on PortalURL's scheme and host; other urls
	// are fetched without them.
	Fetch     *fetch.Client
	PortalURL string
	// Gatherer backs GET /metrics. Nil uses the prometheus default.
	Gatherer prometheus.Gatherer

	MaxAge  time.Duration
	Origins []string
	Now     func() time.Time

	validate *validator.Validate
	anon     *fetch.Client
}

// DefaultOrigins admit browser callers served from this machine only.
var DefaultOrigins = []string{
	"http://localhost",
	"http://localhost:*",
	"http://127.0.0.1",
	"http://127.0.0.1:*",
}

// New returns a server with the default record window.
func New(h *message.Handler, st store.Store) *Server {
	return &Server{Handler: h, Store: st, MaxAge: store.DefaultMaxAge, validate: validator.New()}
}

func (s *Server) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Server) checker() *validator.Validate {
	if s.validate == nil {
		s.validate = validator.New()
	}
	return s.validate
}

// clientFor picks the fetch client for a caller-supplied url.
func (s *Server) clientFor(raw string) *fetch.Client {
	if s.Fetch != nil && sameOrigin(raw, s.PortalURL) {
		return s.Fetch
	}
	return s.anonymous()
}

// anonymous shares the portal client's transport and limits but never its
// headers.
func (s *Server) anonymous() *fetch.Client {
	if s.anon == nil {
		c := &fetch.Client{MaxAttempts: 2}
		if p := s.Fetch; p != nil {
			c.HTTPClient = p.HTTPClient
			c.UserAgent = p.UserAgent
			c.MaxAttempts = p.MaxAttempts
			c.PerRequestTimeout = p.PerRequestTimeout
			c.MaxBodyBytes = p.MaxBodyBytes
		}
		s.anon = c
	}
	return s.anon
}

func sameOrigin(a, b string) bool {
	ua, err1 := url.Parse(a)
	ub, err2 := url.Parse(b)
	if err1 != nil || err2 != nil || ua.Host == "" || ub.Host == "" {
		return false
	}
	return strings.EqualFold(ua.Scheme, ub.Scheme) && strings.EqualFold(ua.Host, ub.Host)
}

// Router builds the chi router with logging, recovery and CORS.
func (s *Server) Router() http.Handler {
	s.checker()
	s.anonymous()
	r := chi.NewRouter()

	r.Use(hlog.NewHandler(log.Logger))
	r.Use(hlog.RequestIDHandler("req_id", "X-Request-Id"))
	r.Use(hlog.RemoteAddrHandler("ip"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, d time.Duration) {
		hlog.FromRequest(r).Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", d).
			Msg("request")
	}))
	r.Use(middleware.CleanPath)
	r.Use(middleware.Recoverer)

	origins := s.Origins
	if len(origins) == 0 {
		origins = DefaultOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.healthz)
	gatherer := s.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Post("/messages", s.postMessage)
		r.Get("/advice", s.getAdvice)
		r.Put("/target", s.putTarget)
		if s.Bus != nil {
			r.Get("/events", s.events)
		}
	})
	return r
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("http server listening")
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
