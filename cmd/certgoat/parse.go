package main

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/IshaanNene/CertGoat/internal/config"
	"github.com/IshaanNene/CertGoat/internal/fetcher"
	"github.com/IshaanNene/CertGoat/internal/parser"
)

var (
	detailsDir string
	dumpTables bool
)

// parseCmd creates the "parse" subcommand for offline runs over saved pages.
func parseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parse <listing.html>...",
		Short: "Normalize saved listing and detail pages without network access",
		Long: `Read listing pages from disk and, with --details, the detail page of each
ISIN from DIR/<ISIN>.html. Output goes to the configured storage backends.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runParse,
	}

	addRunFlags(cmd)
	cmd.Flags().StringVar(&detailsDir, "details", "", "directory holding <ISIN>.html detail pages")
	cmd.Flags().BoolVar(&dumpTables, "dump-tables", false, "print every table found in the pages and exit")

	return cmd
}

func runParse(cmd *cobra.Command, args []string) error {
	if dumpTables {
		return printTables(cmd.OutOrStdout(), args)
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyCLIOverrides(cmd, cfg)

	cfg.Fetcher.Type = "file"
	cfg.Scrape.Delay = 0
	cfg.Scrape.ListingURLs = make([]string, 0, len(args))
	for _, arg := range args {
		abs, err := filepath.Abs(arg)
		if err != nil {
			return fmt.Errorf("resolve %q: %w", arg, err)
		}
		cfg.Scrape.ListingURLs = append(cfg.Scrape.ListingURLs, fileURL(abs))
	}

	if detailsDir != "" {
		abs, err := filepath.Abs(detailsDir)
		if err != nil {
			return fmt.Errorf("resolve %q: %w", detailsDir, err)
		}
		// Built by hand: url.URL.String would escape the placeholder braces.
		cfg.Scrape.DetailURLTemplate = "file://" + filepath.ToSlash(filepath.Join(abs, config.ISINPlaceholder+".html"))
		cfg.Scrape.PreferTemplate = true
	} else if !cmd.Flags().Changed("skip-details") {
		cfg.Scrape.SkipDetails = true
	}

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, closeLog, err := setupLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	return run(cmd.Context(), cfg, fetcher.NewFileFetcher(logger), logger)
}

// fileURL turns an absolute path into a file:// URL.
func fileURL(path string) string {
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String()
}

// printTables renders the cell text of every table so that label synonyms for
// a new site can be checked without running a scrape.
func printTables(w io.Writer, paths []string) error {
	for _, path := range paths {
		body, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		doc, err := parser.NewDocument(body, "")
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		for i, cells := range doc.Tables() {
			t := table.NewWriter()
			t.SetOutputMirror(w)
			t.SetTitle(fmt.Sprintf("%s #%d, %d rows", filepath.Base(path), i+1, len(cells)))
			for _, row := range cells {
				r := make(table.Row, len(row))
				for j, c := range row {
					r[j] = c
				}
				t.AppendRow(r)
			}
			t.SetStyle(table.StyleRounded)
			t.Render()
		}
	}
	return nil
}
