package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/IshaanNene/CertGoat/internal/types"
)

// FileFetcher reads saved pages from disk. It accepts file:// URLs and bare
// paths, which makes offline runs over downloaded pages possible.
type FileFetcher struct {
	logger *slog.Logger
}

// NewFileFetcher creates a new FileFetcher.
func NewFileFetcher(logger *slog.Logger) *FileFetcher {
	return &FileFetcher{
		logger: logger.With("component", "file_fetcher"),
	}
}

// Fetch reads the file named by the request URL.
func (f *FileFetcher) Fetch(ctx context.Context, req *types.Request) (*types.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, &types.FetchError{URL: req.URLString(), Err: err}
	}

	path, err := FilePath(req.URL)
	if err != nil {
		return nil, &types.FetchError{URL: req.URLString(), Err: err}
	}

	start := time.Now()
	body, err := os.ReadFile(path)
	duration := time.Since(start)
	if err != nil {
		return nil, &types.FetchError{URL: req.URLString(), Err: err, Duration: duration}
	}
	if len(body) == 0 {
		return nil, &types.FetchError{URL: req.URLString(), Err: types.ErrEmptyResponse, Duration: duration}
	}

	f.logger.Debug("file read", "path", path, "size", len(body))

	finalURL := (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String()
	return types.NewRenderedResponse(req, body, finalURL, duration), nil
}

// Close releases resources.
func (f *FileFetcher) Close() error { return nil }

// Type returns the fetcher type identifier.
func (f *FileFetcher) Type() string { return "file" }

// FilePath converts a file:// URL or a scheme-less path into a local path.
func FilePath(u *url.URL) (string, error) {
	if u == nil {
		return "", types.ErrInvalidURL
	}
	switch u.Scheme {
	case "file":
		if u.Host != "" && u.Host != "localhost" {
			return "", fmt.Errorf("%w: remote file host %q", types.ErrUnsupportedScheme, u.Host)
		}
		return filepath.FromSlash(u.Path), nil
	case "":
		return filepath.FromSlash(u.Path), nil
	default:
		return "", fmt.Errorf("%w: %q", types.ErrUnsupportedScheme, u.Scheme)
	}
}
