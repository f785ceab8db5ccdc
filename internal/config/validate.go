package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Placeholder replaced with the ISIN in scrape.detail_url_template.
const ISINPlaceholder = "{isin}"

var validStorageTypes = map[string]bool{
	"json": true, "jsonl": true, "csv": true, "xlsx": true, "sqlite": true, "mongodb": true,
}

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if cfg.Scrape.RequestTimeout <= 0 {
		return fmt.Errorf("scrape.request_timeout must be > 0")
	}
	if cfg.Scrape.DetailTimeout <= 0 {
		return fmt.Errorf("scrape.detail_timeout must be > 0")
	}
	if cfg.Scrape.Delay < 0 {
		return fmt.Errorf("scrape.delay must be >= 0")
	}
	if t := cfg.Scrape.DetailURLTemplate; t != "" && !strings.Contains(t, ISINPlaceholder) {
		return fmt.Errorf("scrape.detail_url_template must contain %s, got %q", ISINPlaceholder, t)
	}
	for _, u := range cfg.Scrape.ListingURLs {
		if err := ValidateURL(u); err != nil {
			return fmt.Errorf("scrape.listing_urls: %w", err)
		}
	}

	switch cfg.Fetcher.Type {
	case "http", "browser", "file":
	default:
		return fmt.Errorf("fetcher.type must be 'http', 'browser' or 'file', got %q", cfg.Fetcher.Type)
	}
	if cfg.Fetcher.MaxBodySize <= 0 {
		return fmt.Errorf("fetcher.max_body_size must be > 0")
	}
	if cfg.Fetcher.MaxRedirects < 0 {
		return fmt.Errorf("fetcher.max_redirects must be >= 0")
	}

	if len(cfg.Storage.Types) == 0 {
		return fmt.Errorf("storage.types must name at least one backend")
	}
	for _, t := range cfg.Storage.Types {
		if !validStorageTypes[t] {
			return fmt.Errorf("storage.types: %q is not supported (valid: json, jsonl, csv, xlsx, sqlite, mongodb)", t)
		}
		if t == "mongodb" && cfg.Storage.MongoURI == "" {
			return fmt.Errorf("storage.mongo_uri is required for the mongodb backend")
		}
		if t == "sqlite" && cfg.Storage.SQLitePath == "" {
			return fmt.Errorf("storage.sqlite_path is required for the sqlite backend")
		}
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port < 1 || cfg.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port must be 1-65535, got %d", cfg.Metrics.Port)
		}
	}

	return nil
}

// ValidateURL checks that a listing URL can be fetched. Local files are
// accepted as file:// URLs.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	switch u.Scheme {
	case "http", "https":
		if u.Host == "" {
			return fmt.Errorf("URL must have a host: %q", rawURL)
		}
	case "file":
	default:
		return fmt.Errorf("URL scheme must be http, https or file, got %q", u.Scheme)
	}
	return nil
}

// DetailURL fills the detail template for isin.
func (c *ScrapeConfig) DetailURL(isin string) string {
	if c.DetailURLTemplate == "" {
		return ""
	}
	return strings.ReplaceAll(c.DetailURLTemplate, ISINPlaceholder, isin)
}
