package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/IshaanNene/CertGoat/internal/config"
	"github.com/IshaanNene/CertGoat/internal/types"
)

// BrowserFetcher implements Fetcher using a headless Chromium via Rod. It is
// meant for sites that render their listing tables client-side.
type BrowserFetcher struct {
	browser  *rod.Browser
	cfg      *config.Config
	logger   *slog.Logger
	pagePool chan *rod.Page
}

// NewBrowserFetcher launches a headless browser and connects to it.
func NewBrowserFetcher(cfg *config.Config, logger *slog.Logger) (*BrowserFetcher, error) {
	bf := &BrowserFetcher{
		cfg:      cfg,
		logger:   logger.With("component", "browser_fetcher"),
		pagePool: make(chan *rod.Page, 1),
	}

	launchURL, err := bf.launchBrowser()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(launchURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	bf.browser = browser

	bf.logger.Info("browser fetcher ready", "bin", cfg.Fetcher.BrowserBin)
	return bf, nil
}

// launchBrowser starts a Chromium instance with container-friendly flags.
func (bf *BrowserFetcher) launchBrowser() (string, error) {
	l := launcher.New().
		Headless(true).
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("no-sandbox").
		Set("lang", "it-IT")

	if bf.cfg.Fetcher.BrowserBin != "" {
		l = l.Bin(bf.cfg.Fetcher.BrowserBin)
	}
	return l.Launch()
}

// Fetch navigates to a URL and returns the rendered page content.
func (bf *BrowserFetcher) Fetch(ctx context.Context, req *types.Request) (*types.Response, error) {
	start := time.Now()

	page, err := bf.getPage()
	if err != nil {
		return nil, &types.FetchError{URL: req.URLString(), Err: err}
	}
	defer bf.putPage(page)

	page = page.Context(ctx)

	if len(bf.cfg.Scrape.UserAgents) > 0 {
		err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent:      bf.cfg.Scrape.UserAgents[0],
			AcceptLanguage: bf.cfg.Fetcher.AcceptLanguage,
		})
		if err != nil {
			bf.logger.Warn("failed to set user agent", "error", err)
		}
	}

	if len(req.Headers) > 0 {
		headers := make([]string, 0, len(req.Headers)*2)
		for k, vals := range req.Headers {
			for _, v := range vals {
				headers = append(headers, k, v)
			}
		}
		if cleanup, err := page.SetExtraHeaders(headers); err == nil {
			defer cleanup()
		}
	}

	timeout := bf.cfg.Scrape.RequestTimeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}

	if err := page.Timeout(timeout).Navigate(req.URLString()); err != nil {
		return nil, &types.FetchError{URL: req.URLString(), Err: err, Duration: time.Since(start)}
	}

	if err := page.Timeout(timeout).WaitStable(300 * time.Millisecond); err != nil {
		bf.logger.Warn("page stability timeout, continuing", "url", req.URLString(), "error", err)
	}

	selector := req.WaitSelector
	if selector == "" {
		selector = bf.cfg.Scrape.WaitSelector
	}
	if selector != "" {
		el, err := page.Timeout(10 * time.Second).Element(selector)
		if err == nil {
			err = el.WaitVisible()
		}
		if err != nil {
			bf.logger.Warn("wait selector timeout", "selector", selector, "error", err)
		}
	}

	html, err := page.HTML()
	if err != nil {
		return nil, &types.FetchError{URL: req.URLString(), Err: err, Duration: time.Since(start)}
	}
	if html == "" {
		return nil, &types.FetchError{URL: req.URLString(), Err: types.ErrEmptyResponse, Duration: time.Since(start)}
	}

	finalURL := req.URLString()
	if info, err := page.Info(); err == nil && info != nil {
		finalURL = info.URL
	}

	duration := time.Since(start)
	resp := types.NewRenderedResponse(req, []byte(html), finalURL, duration)

	bf.logger.Debug("browser fetch complete",
		"url", req.URLString(),
		"final_url", finalURL,
		"size", len(html),
		"duration", duration,
	)

	return resp, nil
}

// Close shuts down the browser and releases resources.
func (bf *BrowserFetcher) Close() error {
	close(bf.pagePool)
	for page := range bf.pagePool {
		_ = page.Close()
	}
	if bf.browser != nil {
		return bf.browser.Close()
	}
	return nil
}

// Type returns the fetcher type identifier.
func (bf *BrowserFetcher) Type() string {
	return "browser"
}

// getPage reuses the idle page or opens a new one.
func (bf *BrowserFetcher) getPage() (*rod.Page, error) {
	select {
	case page := <-bf.pagePool:
		return page, nil
	default:
		return bf.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	}
}

// putPage returns a page to the pool.
func (bf *BrowserFetcher) putPage(page *rod.Page) {
	_ = page.Navigate("about:blank")

	select {
	case bf.pagePool <- page:
	default:
		_ = page.Close()
	}
}
