package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/webscrapy/getallspider/internal/config"
	"github.com/webscrapy/getallspider/internal/database"
)

// NewHistoryCmd creates the history command.
// It lists the crawl runs recorded in the crawl ledger.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [host]",
		Short: "Show recorded crawl runs for a host",
		Long: `History lists the crawl runs recorded in the crawl ledger.

Every crawl that is not started with --no-db leaves one run record in the
ledger, plus one page record per fetched URL. This command shows those
records.

Examples:
  # List all recorded crawl runs of a host
  getallspider history example.com

  # List the individual page records of a host
  getallspider history --urls example.com

  # Show only the five most recent entries
  getallspider history --limit 5 example.com

  # List every host in the ledger
  getallspider history --list-hosts`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().BoolP("urls", "U", false,
		"List per-URL page records instead of crawl runs")
	cmd.Flags().IntP("limit", "n", 0,
		"Maximum number of entries to show (0: all)")
	cmd.Flags().BoolP("list-hosts", "L", false,
		"List all hosts recorded in the ledger")
	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Directory of the crawl ledger database")

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	listHosts, err := cmd.Flags().GetBool("list-hosts")
	if err != nil {
		return err
	}
	urls, err := cmd.Flags().GetBool("urls")
	if err != nil {
		return err
	}
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}
	dbDir, err := cmd.Flags().GetString("db-dir")
	if err != nil {
		return err
	}

	var host string
	if !listHosts {
		if len(args) == 0 {
			return errors.New("host is required (use --list-hosts to see recorded hosts)")
		}
		host = strings.ToLower(args[0])
	}

	// History only reads; never leave an empty ledger behind.
	db, err := database.Open(dbDir, database.Options{CreateIfNotExists: false, EnableWAL: true})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close() //nolint:errcheck // read-only access

	ctx := context.Background()

	if listHosts {
		return listCrawledHosts(ctx, db)
	}
	if urls {
		return listPageRecords(ctx, db, host, limit)
	}
	return listCrawlRuns(ctx, db, host, limit)
}

// listCrawledHosts lists all hosts that have crawl records in the ledger.
func listCrawledHosts(ctx context.Context, db *database.CrawlDB) error {
	hosts, err := db.ListCrawledHosts(ctx)
	if err != nil {
		return fmt.Errorf("failed to list hosts: %w", err)
	}

	if len(hosts) == 0 {
		fmt.Println("No recorded crawls found in the ledger.")
		fmt.Println("\nUse 'getallspider --url=<seed>' to crawl a site.")
		return nil
	}

	fmt.Printf("Recorded hosts (%d):\n\n", len(hosts))
	for _, host := range hosts {
		fmt.Printf("  • %s\n", host)
	}
	fmt.Println("\nUse 'getallspider history <host>' to see the crawl runs of a host.")

	return nil
}

// listCrawlRuns lists the recorded crawl runs for a host.
func listCrawlRuns(ctx context.Context, db *database.CrawlDB, host string, limit int) error {
	runs, err := db.GetCrawlHistoryWithMetadata(ctx, host)
	if err != nil {
		return fmt.Errorf("failed to get crawl history: %w", err)
	}

	if len(runs) == 0 {
		fmt.Printf("No crawl history found for %s\n", host)
		fmt.Println("\nUse 'getallspider --url=<seed>' to crawl this site.")
		return nil
	}
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}

	fmt.Printf("Crawl history for %s (%d runs):\n\n", host, len(runs))
	fmt.Printf("  %-6s  %-20s  %s\n", "ID", "Date", "Summary")
	fmt.Println("  " + strings.Repeat("-", 60))

	for _, meta := range runs {
		fmt.Printf("  %-6d  %-20s  %s\n",
			meta.ID,
			meta.Timestamp.Format("2006-01-02 15:04:05"),
			formatRunSummary(meta.Summary),
		)
	}

	fmt.Println("\nUse 'getallspider compare <host>' to compare the latest two runs.")
	fmt.Println("Use 'getallspider history --urls <host>' to see the recorded pages.")

	return nil
}

// formatRunSummary formats the run counters into a short one-line string.
func formatRunSummary(summary map[string]int) string {
	if summary == nil {
		return "N/A"
	}

	parts := []string{
		fmt.Sprintf("fetched:%d", summary["fetched"]),
		fmt.Sprintf("saved:%d", summary["saved"]),
	}
	if v := summary["links"]; v > 0 {
		parts = append(parts, fmt.Sprintf("links:%d", v))
	}
	if v := summary["skipped_existing"]; v > 0 {
		parts = append(parts, fmt.Sprintf("kept:%d", v))
	}
	if v := summary["ignored"]; v > 0 {
		parts = append(parts, fmt.Sprintf("ignored:%d", v))
	}
	if v := summary["errors"]; v > 0 {
		parts = append(parts, fmt.Sprintf("errors:%d", v))
	}

	return strings.Join(parts, " ")
}

// listPageRecords lists the stored page records for a host.
func listPageRecords(ctx context.Context, db *database.CrawlDB, host string, limit int) error {
	records, err := db.ListCrawlRecords(ctx, host, limit)
	if err != nil {
		return fmt.Errorf("failed to list page records: %w", err)
	}

	if len(records) == 0 {
		fmt.Printf("No page records found for %s\n", host)
		return nil
	}

	fmt.Printf("Page records for %s (%d):\n\n", host, len(records))
	fmt.Printf("  %-6s  %-20s  %-8s  %s\n", "Status", "Fetched", "Size", "URL")
	fmt.Println("  " + strings.Repeat("-", 70))

	for _, rec := range records {
		fmt.Printf("  %-6d  %-20s  %-8d  %s\n",
			rec.StatusCode,
			rec.Timestamp.Format("2006-01-02 15:04:05"),
			rec.Size,
			rec.URL,
		)
	}

	return nil
}
