package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// DefaultMaxBodyBytes caps how much of a portal page is read.
const DefaultMaxBodyBytes = 8 << 20

// DefaultMaxRemembered is how many pages a client keeps for revalidation.
const DefaultMaxRemembered = 8

// StatusError reports a non-2xx response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	if e.Code >= 500 {
		return fmt.Sprintf("server error: %d", e.Code)
	}
	return fmt.Sprintf("unexpected status: %d", e.Code)
}

// Page is one fetched portal page.
type Page struct {
	URL         string
	Body        []byte
	ContentType string
	// NotModified is set when the server answered 304 and Body is the
	// previously fetched copy.
	NotModified bool
}

// Client wraps http.Client and provides timeouts, limited retry on
// transient errors and conditional revalidation of pages it has already
// fetched, which keeps watch-mode polling cheap.
type Client struct {
	HTTPClient *http.Client
	UserAgent  string
	// Header is added to every request, e.g. a session Cookie for the portal.
	Header http.Header
	// MaxAttempts includes the initial attempt. Minimum 1.
	MaxAttempts int
	// PerRequestTimeout bounds each request.
	PerRequestTimeout time.Duration
	// RetryBackoff is multiplied by the attempt number between retries.
	// Zero means 200ms.
	RetryBackoff time.Duration
	// RedirectMaxHops caps redirect following to avoid loops. Zero means default (5).
	RedirectMaxHops int
	// MaxBodyBytes caps the body size. Zero means DefaultMaxBodyBytes.
	MaxBodyBytes int64
	// MaxRemembered caps how many pages are kept for revalidation. Zero
	// means DefaultMaxRemembered.
	MaxRemembered int

	mu        sync.Mutex
	validated map[string]validator
}

type validator struct {
	etag, lastModified, contentType string
	body                            []byte
}

func (c *Client) getHTTPClient() *http.Client {
	if c.HTTPClient != nil {
		// Clone to attach our redirect policy without mutating caller's client
		base := *c.HTTPClient
		base.CheckRedirect = c.checkRedirectFunc()
		return &base
	}
	return &http.Client{Timeout: c.PerRequestTimeout, CheckRedirect: c.checkRedirectFunc()}
}

// Get issues a GET with context, user-agent, and bounded retry for
// transient errors.
func (c *Client) Get(ctx context.Context, rawURL string) (*Page, error) {
	attempts := c.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	backoff := c.RetryBackoff
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	prev, havePrev := c.lookup(rawURL)
	var lastErr error
	for i := 0; i < attempts; i++ {
		page, v, err := c.tryOnce(ctx, rawURL, prev, havePrev)
		if err == nil {
			if page.NotModified {
				page.Body = prev.body
				page.ContentType = prev.contentType
			} else if v.etag != "" || v.lastModified != "" {
				c.remember(rawURL, v)
			}
			return page, nil
		}
		if !isTransient(err) || i == attempts-1 {
			return nil, err
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(i+1) * backoff):
		}
	}
	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return nil, lastErr
}

func (c *Client) lookup(u string) (validator, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.validated[u]
	return v, ok
}

func (c *Client) remember(u string, v validator) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.validated == nil {
		c.validated = map[string]validator{}
	}
	limit := c.MaxRemembered
	if limit <= 0 {
		limit = DefaultMaxRemembered
	}
	if _, ok := c.validated[u]; !ok {
		for k := range c.validated {
			if len(c.validated) < limit {
				break
			}
			delete(c.validated, k)
		}
	}
	c.validated[u] = v
}

func (c *Client) tryOnce(ctx context.Context, rawURL string, prev validator, havePrev bool) (*Page, validator, error) {
	var v validator
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, v, fmt.Errorf("new request: %w", err)
	}
	// Reject non-HTTP(S) schemes early
	if req.URL == nil || !isHTTPScheme(req.URL) {
		return nil, v, fmt.Errorf("unsupported URL scheme: %q", rawURL)
	}
	for k, vals := range c.Header {
		for _, val := range vals {
			req.Header.Add(k, val)
		}
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	if havePrev {
		if prev.etag != "" {
			req.Header.Set("If-None-Match", prev.etag)
		}
		if prev.lastModified != "" {
			req.Header.Set("If-Modified-Since", prev.lastModified)
		}
	}

	if c.PerRequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(req.Context(), c.PerRequestTimeout)
		defer cancel()
		req = req.WithContext(ctx)
	}

	resp, err := c.getHTTPClient().Do(req)
	if err != nil {
		return nil, v, err
	}
	defer resp.Body.Close()

	page := &Page{URL: resp.Request.URL.String()}
	if resp.StatusCode == http.StatusNotModified && havePrev {
		page.NotModified = true
		return page, prev, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, v, &StatusError{Code: resp.StatusCode}
	}

	contentType := resp.Header.Get("Content-Type")
	if !isAllowedHTMLContentType(contentType) {
		return nil, v, fmt.Errorf("unsupported content type: %s", contentType)
	}
	limit := c.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, v, fmt.Errorf("read body: %w", err)
	}
	page.Body = b
	page.ContentType = contentType
	v = validator{
		etag:         resp.Header.Get("ETag"),
		lastModified: resp.Header.Get("Last-Modified"),
		contentType:  contentType,
		body:         b,
	}
	return page, v, nil
}

// isTransient treats HTTP 5xx and deadline expiry as worth retrying.
func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var se *StatusError
	return errors.As(err, &se) && se.Code >= 500
}

func (c *Client) checkRedirectFunc() func(req *http.Request, via []*http.Request) error {
	max := c.RedirectMaxHops
	if max <= 0 {
		max = 5
	}
	return func(req *http.Request, via []*http.Request) error {
		if len(via) >= max {
			return errors.New("too many redirects")
		}
		// Only allow http/https during redirects
		if req.URL == nil || !isHTTPScheme(req.URL) {
			return errors.New("redirect to unsupported scheme")
		}
		return nil
	}
}

func isHTTPScheme(u *url.URL) bool {
	if u == nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}

func isAllowedHTMLContentType(ct string) bool {
	ct = strings.ToLower(strings.TrimSpace(ct))
	// allow text/html variants and application/xhtml+xml
	return strings.HasPrefix(ct, "text/html") || strings.HasPrefix(ct, "application/xhtml+xml")
}
