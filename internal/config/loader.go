package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. CERTGOAT_STORAGE_MONGO_URI.
const EnvPrefix = "CERTGOAT"

// Load reads configuration from file, environment, and a .env file.
// Priority (highest to lowest): env vars > .env > config file > defaults.
func Load(configPath string) (*Config, error) {
	// A missing .env is normal; variables already set in the environment win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v, cfg)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("certgoat")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".certgoat"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// setDefaults registers default values in viper so that every key can be
// overridden from the environment.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("scrape.listing_urls", cfg.Scrape.ListingURLs)
	v.SetDefault("scrape.detail_url_template", cfg.Scrape.DetailURLTemplate)
	v.SetDefault("scrape.prefer_template", cfg.Scrape.PreferTemplate)
	v.SetDefault("scrape.delay", cfg.Scrape.Delay)
	v.SetDefault("scrape.request_timeout", cfg.Scrape.RequestTimeout)
	v.SetDefault("scrape.detail_timeout", cfg.Scrape.DetailTimeout)
	v.SetDefault("scrape.skip_details", cfg.Scrape.SkipDetails)
	v.SetDefault("scrape.exclude_single_stock", cfg.Scrape.ExcludeSingleStock)
	v.SetDefault("scrape.wait_selector", cfg.Scrape.WaitSelector)
	v.SetDefault("scrape.user_agents", cfg.Scrape.UserAgents)

	v.SetDefault("fetcher.type", cfg.Fetcher.Type)
	v.SetDefault("fetcher.follow_redirects", cfg.Fetcher.FollowRedirects)
	v.SetDefault("fetcher.max_redirects", cfg.Fetcher.MaxRedirects)
	v.SetDefault("fetcher.max_body_size", cfg.Fetcher.MaxBodySize)
	v.SetDefault("fetcher.tls_insecure", cfg.Fetcher.TLSInsecure)
	v.SetDefault("fetcher.idle_conn_timeout", cfg.Fetcher.IdleConnTimeout)
	v.SetDefault("fetcher.max_idle_conns", cfg.Fetcher.MaxIdleConns)
	v.SetDefault("fetcher.accept_language", cfg.Fetcher.AcceptLanguage)
	v.SetDefault("fetcher.browser_bin", cfg.Fetcher.BrowserBin)

	v.SetDefault("normalize.keep_zero", cfg.Normalize.KeepZero)

	v.SetDefault("rules.path", cfg.Rules.Path)
	v.SetDefault("rules.closed_world", cfg.Rules.ClosedWorld)

	v.SetDefault("storage.types", cfg.Storage.Types)
	v.SetDefault("storage.output_path", cfg.Storage.OutputPath)
	v.SetDefault("storage.filename", cfg.Storage.Filename)
	v.SetDefault("storage.sqlite_path", cfg.Storage.SQLitePath)
	v.SetDefault("storage.mongo_uri", cfg.Storage.MongoURI)
	v.SetDefault("storage.mongo_database", cfg.Storage.MongoDatabase)
	v.SetDefault("storage.mongo_collection", cfg.Storage.MongoCollection)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.output", cfg.Logging.Output)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.port", cfg.Metrics.Port)
	v.SetDefault("metrics.path", cfg.Metrics.Path)
}
