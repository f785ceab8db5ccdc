// Package fetcher retrieves listing and detail pages over HTTP, through a
// headless browser, or from local files.
package fetcher

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/IshaanNene/CertGoat/internal/config"
	"github.com/IshaanNene/CertGoat/internal/types"
)

// Fetcher is the interface for all page fetcher implementations.
type Fetcher interface {
	// Fetch retrieves the content at the given request's URL.
	Fetch(ctx context.Context, req *types.Request) (*types.Response, error)

	// Close releases any resources held by the fetcher.
	Close() error

	// Type returns the fetcher type identifier.
	Type() string
}

// New builds the fetcher selected by cfg.Fetcher.Type.
func New(cfg *config.Config, logger *slog.Logger) (Fetcher, error) {
	switch cfg.Fetcher.Type {
	case "http", "":
		return NewHTTPFetcher(cfg, logger)
	case "browser":
		return NewBrowserFetcher(cfg, logger)
	case "file":
		return NewFileFetcher(logger), nil
	default:
		return nil, fmt.Errorf("unknown fetcher type %q", cfg.Fetcher.Type)
	}
}
