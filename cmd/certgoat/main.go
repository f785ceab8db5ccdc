package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/IshaanNene/CertGoat/internal/certificate"
	"github.com/IshaanNene/CertGoat/internal/classify"
	"github.com/IshaanNene/CertGoat/internal/config"
	"github.com/IshaanNene/CertGoat/internal/engine"
	"github.com/IshaanNene/CertGoat/internal/fetcher"
	"github.com/IshaanNene/CertGoat/internal/locale"
	"github.com/IshaanNene/CertGoat/internal/observability"
	"github.com/IshaanNene/CertGoat/internal/pipeline"
	"github.com/IshaanNene/CertGoat/internal/storage"
)

var (
	cfgFile      string
	verbose      bool
	outputPath   string
	outputTypes  []string
	fetcherType  string
	delay        time.Duration
	skipDetails  bool
	excludeStock bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "certgoat",
		Short: "CertGoat — Italian certificate scraper",
		Long: `CertGoat scans listing pages of Italian certificate sites, visits each
certificate's detail page and writes one normalized record per ISIN.

Features:
  • Label-based field extraction across table, definition-list and free layouts
  • Italian number, percentage and date parsing
  • Versioned keyword tables for product type and underlying category
  • HTTP, headless browser and local file fetchers
  • JSON, JSONL, CSV, XLSX, SQLite and MongoDB output`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(scrapeCmd())
	rootCmd.AddCommand(parseCmd())
	rootCmd.AddCommand(diffCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// addRunFlags registers the flags shared by scrape and parse.
func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "output directory")
	cmd.Flags().StringSliceVarP(&outputTypes, "format", "f", nil, "output formats: json, jsonl, csv, xlsx, sqlite, mongodb")
	cmd.Flags().BoolVar(&skipDetails, "skip-details", false, "only scan listing pages")
	cmd.Flags().BoolVar(&excludeStock, "exclude-single-stock", false, "drop certificates on single equities")
}

// scrapeCmd creates the "scrape" subcommand.
func scrapeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scrape [listing-url...]",
		Short: "Scrape listing pages and their certificate detail pages",
		Long: `Fetch every listing page, collect the ISINs it lists and enrich each
certificate from its detail page. Listing URLs come from the arguments or from
scrape.listing_urls in the config file.`,
		RunE: runScrape,
	}

	addRunFlags(cmd)
	cmd.Flags().StringVar(&fetcherType, "fetcher", "", "fetcher type: http, browser, file")
	cmd.Flags().DurationVar(&delay, "delay", -1, "politeness delay between requests (-1 = config value)")

	return cmd
}

func runScrape(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyCLIOverrides(cmd, cfg)

	if len(args) > 0 {
		cfg.Scrape.ListingURLs = args
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if len(cfg.Scrape.ListingURLs) == 0 {
		return errors.New("no listing URLs: pass them as arguments or set scrape.listing_urls")
	}

	logger, closeLog, err := setupLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	f, err := fetcher.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("create fetcher: %w", err)
	}
	defer f.Close()

	return run(cmd.Context(), cfg, f, logger)
}

// run wires the engine, executes it and stores the result.
func run(ctx context.Context, cfg *config.Config, f fetcher.Fetcher, logger *slog.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rules := classify.DefaultRules()
	if cfg.Rules.Path != "" {
		loaded, err := classify.LoadRules(cfg.Rules.Path)
		if err != nil {
			return err
		}
		rules = loaded
	}
	classifier := classify.New(rules, logger, classify.WithClosedWorld(cfg.Rules.ClosedWorld))
	builder := certificate.NewBuilder(classifier, locale.Parser{KeepZero: cfg.Normalize.KeepZero}, logger)
	pipe := pipeline.NewDefault(cfg.Scrape.ExcludeSingleStock, classifier, logger)

	metrics := observability.NewMetrics(logger)
	if cfg.Metrics.Enabled {
		shutdown := metrics.StartServer(cfg.Metrics.Port, cfg.Metrics.Path)
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = shutdown(sctx)
		}()
	}

	store, err := storage.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("create storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("storage close error", "error", err)
		}
	}()

	logger.Info("starting scrape",
		"listings", len(cfg.Scrape.ListingURLs),
		"fetcher", f.Type(),
		"rules_version", rules.Version,
		"storage", cfg.Storage.Types,
	)

	start := time.Now()
	eng := engine.New(cfg, f, builder, pipe, metrics, logger)
	result, runErr := eng.Run(ctx, cfg.Scrape.ListingURLs)
	if runErr != nil {
		logger.Warn("run interrupted, storing partial result", "error", runErr)
	}

	out := result.Output()
	if err := store.Store(out); err != nil {
		return fmt.Errorf("store results: %w", err)
	}
	metrics.RecordsStored.Add(int64(len(out.Certificates)))
	metrics.LogSummary()

	printSummary(os.Stdout, out, time.Since(start), cfg)
	return runErr
}

func printSummary(w io.Writer, out *certificate.Output, elapsed time.Duration, cfg *config.Config) {
	m := out.Metadata
	fmt.Fprintf(w, "\n✅ Scrape complete in %s\n", elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "   Certificates: %d (%d enriched, %d failed)\n", m.Total, m.Enriched, m.Failed)
	fmt.Fprintf(w, "   Excluded:     %d\n", m.Excluded)
	fmt.Fprintf(w, "   Rejected:     %d malformed ISINs\n", m.RejectedISINs)
	fmt.Fprintf(w, "   Output:       %s (%s)\n", cfg.Storage.OutputPath, strings.Join(cfg.Storage.Types, ", "))
}

// versionCmd creates the "version" subcommand.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("CertGoat %s (rules %s)\n", config.Version, classify.DefaultRules().Version)
		},
	}
}

// configCmd creates the "config" subcommand for inspecting configuration.
func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if cfg.Storage.MongoURI != "" {
				cfg.Storage.MongoURI = "<redacted>"
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(cfg)
		},
	}
}

// setupLogger creates a structured logger from the logging config. The
// returned function closes a log file, if one was opened.
func setupLogger(cfg *config.Config) (*slog.Logger, func(), error) {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	var w io.Writer = os.Stderr
	closeFn := func() {}
	switch cfg.Logging.Output {
	case "", "stderr":
	case "stdout":
		w = os.Stdout
	default:
		f, err := os.OpenFile(cfg.Logging.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w = f
		closeFn = func() { _ = f.Close() }
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(cfg.Logging.Format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler), closeFn, nil
}

// applyCLIOverrides applies explicitly set command-line flags to the config.
func applyCLIOverrides(cmd *cobra.Command, cfg *config.Config) {
	if outputPath != "" {
		cfg.Storage.OutputPath = outputPath
	}
	if len(outputTypes) > 0 {
		cfg.Storage.Types = outputTypes
	}
	if fetcherType != "" {
		cfg.Fetcher.Type = strings.ToLower(fetcherType)
	}
	if delay >= 0 {
		cfg.Scrape.Delay = delay
	}
	if cmd.Flags().Changed("skip-details") {
		cfg.Scrape.SkipDetails = skipDetails
	}
	if cmd.Flags().Changed("exclude-single-stock") {
		cfg.Scrape.ExcludeSingleStock = excludeStock
	}
}
