// Package config defines the CertGoat configuration and its loader.
package config

import (
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for CertGoat.
type Config struct {
	Scrape    ScrapeConfig    `mapstructure:"scrape"    yaml:"scrape"`
	Fetcher   FetcherConfig   `mapstructure:"fetcher"   yaml:"fetcher"`
	Normalize NormalizeConfig `mapstructure:"normalize" yaml:"normalize"`
	Rules     RulesConfig     `mapstructure:"rules"     yaml:"rules"`
	Storage   StorageConfig   `mapstructure:"storage"   yaml:"storage"`
	Logging   LoggingConfig   `mapstructure:"logging"   yaml:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"   yaml:"metrics"`
}

// ScrapeConfig controls the listing/detail run.
type ScrapeConfig struct {
	// ListingURLs are the listing pages to scan, one per page of results.
	ListingURLs []string `mapstructure:"listing_urls" yaml:"listing_urls"`
	// DetailURLTemplate builds a detail URL when the listing row has no link.
	// "{isin}" is replaced with the ISIN.
	DetailURLTemplate string `mapstructure:"detail_url_template" yaml:"detail_url_template"`
	// PreferTemplate uses DetailURLTemplate even when the row links a page.
	PreferTemplate     bool          `mapstructure:"prefer_template"      yaml:"prefer_template"`
	Delay              time.Duration `mapstructure:"delay"                yaml:"delay"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"      yaml:"request_timeout"`
	DetailTimeout      time.Duration `mapstructure:"detail_timeout"       yaml:"detail_timeout"`
	SkipDetails        bool          `mapstructure:"skip_details"         yaml:"skip_details"`
	ExcludeSingleStock bool          `mapstructure:"exclude_single_stock" yaml:"exclude_single_stock"`
	WaitSelector       string        `mapstructure:"wait_selector"        yaml:"wait_selector"`
	UserAgents         []string      `mapstructure:"user_agents"          yaml:"user_agents"`
}

// FetcherConfig controls the page fetcher.
type FetcherConfig struct {
	Type            string        `mapstructure:"type"              yaml:"type"`
	FollowRedirects bool          `mapstructure:"follow_redirects"  yaml:"follow_redirects"`
	MaxRedirects    int           `mapstructure:"max_redirects"     yaml:"max_redirects"`
	MaxBodySize     int64         `mapstructure:"max_body_size"     yaml:"max_body_size"`
	TLSInsecure     bool          `mapstructure:"tls_insecure"      yaml:"tls_insecure"`
	IdleConnTimeout time.Duration `mapstructure:"idle_conn_timeout" yaml:"idle_conn_timeout"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"    yaml:"max_idle_conns"`
	AcceptLanguage  string        `mapstructure:"accept_language"   yaml:"accept_language"`
	// BrowserBin points at a Chromium binary; empty lets rod download one.
	BrowserBin string `mapstructure:"browser_bin" yaml:"browser_bin"`
}

// NormalizeConfig controls value parsing.
type NormalizeConfig struct {
	// KeepZero keeps literal zero values instead of treating them as absent.
	KeepZero bool `mapstructure:"keep_zero" yaml:"keep_zero"`
}

// RulesConfig controls the classification tables.
type RulesConfig struct {
	// Path to a YAML/JSON/TOML rules file. Empty uses the built-in tables.
	Path        string `mapstructure:"path"         yaml:"path"`
	ClosedWorld bool   `mapstructure:"closed_world" yaml:"closed_world"`
}

// StorageConfig controls output backends.
type StorageConfig struct {
	Types           []string `mapstructure:"types"            yaml:"types"`
	OutputPath      string   `mapstructure:"output_path"      yaml:"output_path"`
	Filename        string   `mapstructure:"filename"         yaml:"filename"`
	SQLitePath      string   `mapstructure:"sqlite_path"      yaml:"sqlite_path"`
	MongoURI        string   `mapstructure:"mongo_uri"        yaml:"mongo_uri"`
	MongoDatabase   string   `mapstructure:"mongo_database"   yaml:"mongo_database"`
	MongoCollection string   `mapstructure:"mongo_collection" yaml:"mongo_collection"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Port    int    `mapstructure:"port"    yaml:"port"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Scrape: ScrapeConfig{
			Delay:          1 * time.Second,
			RequestTimeout: 30 * time.Second,
			DetailTimeout:  45 * time.Second,
			UserAgents: []string{
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
				"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			},
		},
		Fetcher: FetcherConfig{
			Type:            "http",
			FollowRedirects: true,
			MaxRedirects:    10,
			MaxBodySize:     10 * 1024 * 1024, // 10MB
			IdleConnTimeout: 90 * time.Second,
			MaxIdleConns:    20,
			AcceptLanguage:  "it-IT,it;q=0.9,en;q=0.6",
		},
		Rules: RulesConfig{
			ClosedWorld: true,
		},
		Storage: StorageConfig{
			Types:           []string{"json"},
			OutputPath:      "./output",
			Filename:        "certificates",
			SQLitePath:      "./output/certificates.db",
			MongoDatabase:   "certgoat",
			MongoCollection: "certificates",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
			Path:    "/metrics",
		},
	}
}
