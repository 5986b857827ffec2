// Package fetcher retrieves web pages politely: per-host rate limits,
// bounded bodies and retries on throttling or server errors.
package fetcher

import (
	"context"
	"net/http"
)

// Fetcher retrieves a single page.
type Fetcher interface {
	// Fetch GETs url, following redirects. A non-2xx response is not an
	// error; callers inspect Page.StatusCode. Errors are transport failures.
	Fetch(ctx context.Context, url string, opts ...RequestOption) (*Page, error)
}

// RequestOption adjusts the outgoing request headers.
type RequestOption func(h http.Header)

// WithHeader sets a request header, replacing the fetcher's default.
func WithHeader(key, value string) RequestOption {
	return func(h http.Header) { h.Set(key, value) }
}

// Page is a retrieved document.
type Page struct {
	// URL is the final URL after redirects.
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
	// Truncated is set when the body exceeded the size cap.
	Truncated bool
}

// OK reports a 2xx status.
func (p *Page) OK() bool {
	return p.StatusCode >= 200 && p.StatusCode < 300
}
