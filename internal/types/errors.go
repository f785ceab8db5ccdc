package types

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure modes.
var (
	ErrMalformedISIN     = errors.New("malformed ISIN")
	ErrEmptyResponse     = errors.New("empty response body")
	ErrInvalidURL        = errors.New("invalid URL")
	ErrUnsupportedScheme = errors.New("unsupported URL scheme")
	ErrNoListing         = errors.New("no listing table found")
	ErrNoDetailURL       = errors.New("no detail URL for ISIN")
)

// FetchError wraps errors that occur while retrieving or rendering a page.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
	Duration   time.Duration
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch error for %s (status %d): %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch error for %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError wraps errors that occur while turning a page into a document.
type ParseError struct {
	URL  string
	ISIN string
	Err  error
}

func (e *ParseError) Error() string {
	if e.ISIN != "" {
		return fmt.Sprintf("parse error for %s (isin=%s): %v", e.URL, e.ISIN, e.Err)
	}
	return fmt.Sprintf("parse error for %s: %v", e.URL, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// StorageError wraps errors that occur during storage/export.
type StorageError struct {
	Backend string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error (%s): %v", e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// PipelineError wraps errors that occur in the record pipeline.
type PipelineError struct {
	Stage string
	ISIN  string
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline error at stage %q (isin=%s): %v", e.Stage, e.ISIN, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }
