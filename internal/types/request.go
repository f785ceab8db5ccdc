package types

import (
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Page tags used to route a request through the engine.
const (
	TagListing = "listing"
	TagDetail  = "detail"
)

// Request describes a single page to fetch.
type Request struct {
	// URL is the target URL to fetch.
	URL *url.URL

	// Headers are custom HTTP headers to send with the request.
	Headers http.Header

	// Timeout overrides the fetcher's default timeout for this request.
	Timeout time.Duration

	// Tag says which kind of page this is ("listing" or "detail").
	Tag string

	// ISIN is the instrument under inspection for detail pages.
	ISIN string

	// WaitSelector is a CSS selector the browser fetcher waits for before reading the page.
	WaitSelector string

	// CreatedAt is when this request was created.
	CreatedAt time.Time
}

// NewRequest creates a new Request for the given URL.
func NewRequest(rawURL string) (*Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidURL, rawURL, err)
	}

	return &Request{
		URL:       u,
		Headers:   make(http.Header),
		CreatedAt: time.Now(),
	}, nil
}

// URLString returns the string representation of the request URL.
func (r *Request) URLString() string {
	if r == nil || r.URL == nil {
		return ""
	}
	return r.URL.String()
}
