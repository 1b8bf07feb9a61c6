// Package source loads portal pages into read-only document snapshots.
package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hyperifyio/bunkmate/internal/dom"
	"github.com/hyperifyio/bunkmate/internal/fetch"
)

// ErrNoSource is returned when nothing was configured to load from.
var ErrNoSource = errors.New("no document source configured")

// Source produces a fresh snapshot of the page on every Load.
type Source interface {
	Load(ctx context.Context) (dom.Document, error)
	// Describe names the source for logs.
	Describe() string
}

// File reads a saved page from disk on every Load, so edits to the file
// are picked up by watch mode.
type File struct {
	Path string
	// PageURL is recorded on the snapshot; defaults to a file:// URL.
	PageURL string
}

func (f File) Load(ctx context.Context) (dom.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Path, err)
	}
	u := f.PageURL
	if u == "" {
		if abs, err := filepath.Abs(f.Path); err == nil {
			u = "file://" + filepath.ToSlash(abs)
		}
	}
	return dom.Parse(b, u)
}

func (f File) Describe() string { return "file:" + f.Path }

// URL fetches a live page over HTTP(S).
type URL struct {
	Client *fetch.Client
	URL    string
}

func (u URL) Load(ctx context.Context) (dom.Document, error) {
	c := u.Client
	if c == nil {
		c = &fetch.Client{MaxAttempts: 2}
	}
	page, err := c.Get(ctx, u.URL)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", u.URL, err)
	}
	return dom.Parse(page.Body, page.URL)
}

func (u URL) Describe() string { return u.URL }

// Bytes serves an in-memory page, e.g. HTML posted to the HTTP service.
type Bytes struct {
	HTML    []byte
	PageURL string
}

func (b Bytes) Load(ctx context.Context) (dom.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return dom.Parse(b.HTML, b.PageURL)
}

func (b Bytes) Describe() string { return "inline" }

// Func adapts a function to Source.
type Func func(ctx context.Context) (dom.Document, error)

func (f Func) Load(ctx context.Context) (dom.Document, error) { return f(ctx) }
func (f Func) Describe() string                               { return "func" }

// For picks a source from the usual CLI inputs. File wins over URL.
func For(path, rawURL string, client *fetch.Client) (Source, error) {
	switch {
	case path != "":
		return File{Path: path, PageURL: rawURL}, nil
	case rawURL != "":
		return URL{Client: client, URL: rawURL}, nil
	}
	return nil, ErrNoSource
}
