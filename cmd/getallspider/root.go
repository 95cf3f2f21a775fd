package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/webscrapy/getallspider/internal/config"
	"github.com/webscrapy/getallspider/internal/database"
	"github.com/webscrapy/getallspider/internal/log"
	"github.com/webscrapy/getallspider/internal/model"
	"github.com/webscrapy/getallspider/internal/pipeline"
	"github.com/webscrapy/getallspider/internal/report"
)

// NewRootCmd creates the root command for getallspider.
// The root command is the crawl itself; subcommands cover configuration,
// crawl history, and auditing of the mirrored output.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "getallspider",
		Short: "Recursively mirror a website to a local directory",
		Long: `getallspider crawls a website starting from a seed URL and writes every
fetched page to a local directory tree that mirrors the URL structure.

Links are followed when they stay inside the allowed domains and match the
allow regex. Instead of (or in addition to) saving bodies, visited URLs can
be recorded to a links file.

Examples:
  # Mirror a site into ./example.com
  getallspider --url=https://example.com --allowed-domains=example.com

  # Mirror into a specific directory with gentler pacing
  getallspider --url=https://example.com --allowed-domains=example.com \
    --save-dir=/srv/mirror --delay=3

  # Only record the visited URLs, save nothing
  getallspider --url=https://example.com --only-links

  # Crawl every seed in a file, two sites at a time
  getallspider --seed-file=seeds.txt --batch-concurrency=2

Configuration file (.getallspider) example:
  defaults:
    delay: 1.5
  sites:
    example.com:
      cookie: "session_id=abc123"
      headers:
        Authorization: "Bearer token"`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runRootCmd,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	// Crawl target flags
	cmd.Flags().StringP("url", "u", "",
		"Seed URL to start crawling from")
	cmd.Flags().StringP("allowed-domains", "a", "",
		"Comma-separated domains the crawl may visit, including subdomains (empty: no restriction)")
	cmd.Flags().StringP("regex-allowed-urls", "r", config.DefaultRegexAllowedURLs,
		"Regex that absolute URLs must match (from the start) to be followed")
	cmd.Flags().String("seed-file", "",
		"File with one seed URL per line; every seed is crawled (batch mode)")

	// Output flags
	cmd.Flags().StringP("save-dir", "s", "",
		"Directory for mirrored files (default \"./<seed host>\")")
	cmd.Flags().Bool("override", false,
		"Replace files that already exist in the save dir")
	cmd.Flags().Bool("only-links", false,
		"Record visited URLs to the links file; do not save bodies")
	cmd.Flags().Bool("also-save-links", false,
		"Record visited URLs to the links file in addition to saving bodies")

	// Pacing flags
	cmd.Flags().Float64P("delay", "d", 1,
		"Politeness delay in seconds between requests to the same host")
	cmd.Flags().Bool("randomize-delay", true,
		"Randomize the delay to 0.5x-1.5x of its value")
	cmd.Flags().Int("requests-per-domain", config.DefaultRequestsPerDomain,
		"Concurrent requests per host (the global in-flight cap is twice this)")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Per-request timeout")

	// Crawl limit flags
	cmd.Flags().Int("max-depth", 0,
		"Maximum link depth from the seed (0: unlimited)")
	cmd.Flags().IntP("max-pages", "p", 0,
		"Maximum number of pages to fetch (0: unlimited)")
	cmd.Flags().Int64("max-body-size", 0,
		"Maximum response body size in bytes (0: unlimited)")

	// Transport flags
	cmd.Flags().String("user-agent", config.DefaultUserAgent,
		"User-Agent header sent with every request")
	cmd.Flags().String("socks5-proxy", "",
		"SOCKS5 proxy address (host:port) to dial through")

	// Logging flags
	cmd.Flags().Bool("enable-log-file", false,
		"Write the log to a file instead of stderr")
	cmd.Flags().String("log-filename", "",
		"Log file path, appended to across runs (default \"./<seed host>.log\")")

	// Crawl ledger flags
	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Directory of the crawl ledger database")
	cmd.Flags().Bool("no-db", false,
		"Do not record the crawl in the ledger database")

	// Report flags
	cmd.Flags().String("report-format", config.ReportFormatSimple,
		"Report format: simple, json, or markdown")
	cmd.Flags().StringP("report-file", "o", "",
		"Write the report to a file instead of stdout (creates directories if needed)")

	// Batch mode flags
	cmd.Flags().IntP("batch-concurrency", "b", config.DefaultBatchConcurrency,
		"Concurrent crawls in seed-file mode")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .getallspider in current or home directory)")

	// Add subcommands
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewCompareCmd())
	cmd.AddCommand(NewMediaCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// flagOverrides records which pacing flags the user set explicitly.
// An explicit flag always wins over a value from the configuration file;
// a flag left at its default yields to the site config.
type flagOverrides struct {
	delay             bool
	requestsPerDomain bool
	allowRegex        bool
	userAgent         bool
}

// runRootCmd executes the crawl.
func runRootCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	ov := flagOverrides{
		delay:             cmd.Flags().Changed("delay"),
		requestsPerDomain: cmd.Flags().Changed("requests-per-domain"),
		allowRegex:        cmd.Flags().Changed("regex-allowed-urls"),
		userAgent:         cmd.Flags().Changed("user-agent"),
	}

	if cfg.URL != "" {
		applySiteConfig(cfg, ov)
	}
	cfg.ApplyURLDefaults()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	// Set up structured logging. With --enable-log-file the whole log goes
	// to the file; stderr stays quiet except for fatal errors.
	logger := log.NewLogger(os.Stderr, cfg.Verbose)
	if cfg.EnableLogFile {
		fileLogger, closer := log.NewFileLogger(cfg.LogFilename)
		defer closer.Close() //nolint:errcheck // log sink, nothing to do about a close error
		logger = fileLogger
	}
	slog.SetDefault(logger)

	// Set up context with signal handling for graceful shutdown.
	// In-flight work stops, the report and the ledger still get written.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal, cancelling...")
		cancel()
	}()

	return runCrawl(ctx, cfg, ov, logger)
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// buildConfig creates a Config from cobra command flags.
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()

	var err error

	cfg.URL, err = cmd.Flags().GetString("url")
	if err != nil {
		return nil, err
	}

	domains, err := cmd.Flags().GetString("allowed-domains")
	if err != nil {
		return nil, err
	}
	cfg.AllowedDomains = splitDomains(domains)

	cfg.RegexAllowedURLs, err = cmd.Flags().GetString("regex-allowed-urls")
	if err != nil {
		return nil, err
	}

	cfg.SeedFile, err = cmd.Flags().GetString("seed-file")
	if err != nil {
		return nil, err
	}

	cfg.SaveDir, err = cmd.Flags().GetString("save-dir")
	if err != nil {
		return nil, err
	}

	cfg.Override, err = cmd.Flags().GetBool("override")
	if err != nil {
		return nil, err
	}

	cfg.OnlyLinks, err = cmd.Flags().GetBool("only-links")
	if err != nil {
		return nil, err
	}

	cfg.AlsoSaveLinks, err = cmd.Flags().GetBool("also-save-links")
	if err != nil {
		return nil, err
	}

	delaySeconds, err := cmd.Flags().GetFloat64("delay")
	if err != nil {
		return nil, err
	}
	cfg.Delay = time.Duration(delaySeconds * float64(time.Second))

	cfg.RandomizeDelay, err = cmd.Flags().GetBool("randomize-delay")
	if err != nil {
		return nil, err
	}

	cfg.RequestsPerDomain, err = cmd.Flags().GetInt("requests-per-domain")
	if err != nil {
		return nil, err
	}

	cfg.Timeout, err = cmd.Flags().GetDuration("timeout")
	if err != nil {
		return nil, err
	}

	cfg.MaxDepth, err = cmd.Flags().GetInt("max-depth")
	if err != nil {
		return nil, err
	}

	cfg.MaxPages, err = cmd.Flags().GetInt("max-pages")
	if err != nil {
		return nil, err
	}

	cfg.MaxBodySize, err = cmd.Flags().GetInt64("max-body-size")
	if err != nil {
		return nil, err
	}

	cfg.UserAgent, err = cmd.Flags().GetString("user-agent")
	if err != nil {
		return nil, err
	}

	cfg.Socks5Proxy, err = cmd.Flags().GetString("socks5-proxy")
	if err != nil {
		return nil, err
	}

	cfg.EnableLogFile, err = cmd.Flags().GetBool("enable-log-file")
	if err != nil {
		return nil, err
	}

	cfg.LogFilename, err = cmd.Flags().GetString("log-filename")
	if err != nil {
		return nil, err
	}

	cfg.DBDir, err = cmd.Flags().GetString("db-dir")
	if err != nil {
		return nil, err
	}

	noDB, err := cmd.Flags().GetBool("no-db")
	if err != nil {
		return nil, err
	}
	cfg.SaveToDB = !noDB

	cfg.ReportFormat, err = cmd.Flags().GetString("report-format")
	if err != nil {
		return nil, err
	}

	cfg.ReportFile, err = cmd.Flags().GetString("report-file")
	if err != nil {
		return nil, err
	}

	cfg.BatchConcurrency, err = cmd.Flags().GetInt("batch-concurrency")
	if err != nil {
		return nil, err
	}

	cfg.ConfigFilePath, err = cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	cfg.Verbose = getVerboseFlag(cmd)

	// Load site-specific configurations from config file.
	// If user explicitly specified a config file path, error if not found.
	// If no path specified, silently use empty config if no file found.
	explicitConfigPath := cfg.ConfigFilePath != ""
	configPath := config.FindConfigFile(cfg.ConfigFilePath)

	if configPath != "" {
		cfg.SiteConfigs, err = config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	} else if explicitConfigPath {
		return nil, fmt.Errorf("configuration file not found: %s", cfg.ConfigFilePath)
	} else {
		cfg.SiteConfigs = &config.File{
			Sites: make(map[string]config.SiteConfig),
		}
	}

	return cfg, nil
}

// splitDomains parses the --allowed-domains value into a normalized list.
func splitDomains(csv string) []string {
	if csv == "" {
		return nil
	}
	var domains []string
	for _, d := range strings.Split(csv, ",") {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			domains = append(domains, d)
		}
	}
	return domains
}

// applySiteConfig merges the configuration file's settings for the seed
// host into cfg. Explicitly set command-line flags keep their values;
// cookie and headers have no flags and always come from the file.
func applySiteConfig(cfg *config.Config, ov flagOverrides) {
	if cfg.SiteConfigs == nil {
		return
	}

	site := cfg.SiteConfigs.GetSiteConfig(cfg.Host())

	if site.Cookie != "" {
		cfg.Cookie = site.Cookie
	}
	if len(site.Headers) > 0 {
		cfg.Headers = site.Headers
	}
	if site.UserAgent != "" && !ov.userAgent {
		cfg.UserAgent = site.UserAgent
	}
	if site.Delay != 0 && !ov.delay {
		cfg.Delay = time.Duration(site.Delay * float64(time.Second))
	}
	if site.RequestsPerDomain != 0 && !ov.requestsPerDomain {
		cfg.RequestsPerDomain = site.RequestsPerDomain
	}
	if site.RegexAllowedURLs != "" && !ov.allowRegex {
		cfg.RegexAllowedURLs = site.RegexAllowedURLs
	}
}

// runCrawl executes the crawl: a single seed, or every seed in the seed
// file when batch mode is active.
func runCrawl(ctx context.Context, cfg *config.Config, ov flagOverrides, logger *slog.Logger) error {
	logger.Info("starting crawl",
		"seed", cfg.URL,
		"seedFile", cfg.SeedFile,
		"allowedDomains", cfg.AllowedDomains,
		"saveToDB", cfg.SaveToDB,
	)

	if len(cfg.AllowedDomains) == 0 {
		logger.Warn("no --allowed-domains given; the crawl is not domain-restricted")
	}

	// Open the crawl ledger. Ledger problems never stop a crawl: the
	// mirror on disk is the primary output.
	var db *database.CrawlDB
	if cfg.SaveToDB {
		var err error
		db, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			logger.Warn("crawl ledger unavailable, continuing without it", "dir", cfg.DBDir, "error", err)
		} else {
			defer db.Close() //nolint:errcheck // read-mostly handle, close error is harmless at exit
			logger.Info("crawl ledger opened", "path", db.Path())
		}
	}

	if cfg.SeedFile != "" {
		return runBatchCrawl(ctx, cfg, ov, db, logger)
	}

	return runSingleCrawl(ctx, cfg, db, logger)
}

// runSingleCrawl crawls one seed URL and writes the report.
func runSingleCrawl(ctx context.Context, cfg *config.Config, db *database.CrawlDB, logger *slog.Logger) error {
	p, err := pipeline.DefaultPipeline(cfg, db,
		pipeline.WithLogger(logger),
		pipeline.WithContinueOnError(true),
	)
	if err != nil {
		return err
	}

	crawlReport := model.NewCrawlReport(cfg.URL, cfg.Host())
	crawlReport.AllowedDomains = cfg.AllowedDomains
	if cfg.SaveFiles() {
		crawlReport.SaveDir = cfg.SaveDir
	}

	fmt.Printf("Crawling %s...\n", cfg.URL)
	startTime := time.Now()

	if err := p.Execute(ctx, crawlReport); err != nil {
		return fmt.Errorf("crawl failed: %w", err)
	}

	elapsed := time.Since(startTime)
	fmt.Printf("Crawl completed in %s\n\n", elapsed.Round(time.Millisecond))

	return outputReport(cfg, crawlReport)
}

// runBatchCrawl crawls every seed in the seed file concurrently.
// Each seed gets its own pipeline with per-host derived defaults, so two
// seeds never write into the same directory or links file.
func runBatchCrawl(ctx context.Context, cfg *config.Config, ov flagOverrides, db *database.CrawlDB, logger *slog.Logger) error {
	seeds, err := readSeedFile(cfg.SeedFile)
	if err != nil {
		return err
	}
	if cfg.URL != "" {
		seeds = append([]string{cfg.URL}, seeds...)
	}
	if len(seeds) == 0 {
		return fmt.Errorf("seed file %s contains no seeds", cfg.SeedFile)
	}

	fmt.Printf("Starting batch crawl of %d seeds (concurrency: %d)...\n\n",
		len(seeds), cfg.BatchConcurrency)

	startTime := time.Now()

	factory := func(seed string) (*pipeline.Pipeline, error) {
		seedCfg := cfg.CloneForSeed(seed)
		applySiteConfig(seedCfg, ov)
		if err := seedCfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid seed %q: %w", seed, err)
		}
		return pipeline.DefaultPipeline(seedCfg, db,
			pipeline.WithLogger(logger),
			pipeline.WithContinueOnError(true),
		)
	}

	bp := pipeline.NewBatchProcessor(factory,
		pipeline.WithConcurrency(cfg.BatchConcurrency),
		pipeline.WithBatchLogger(logger),
	)

	// The callback runs on the crawl goroutines; serialize the output.
	var mu sync.Mutex
	err = bp.ProcessBatchWithCallback(ctx, seeds, func(crawlReport *model.CrawlReport, index int) {
		mu.Lock()
		defer mu.Unlock()

		fmt.Printf("[%d/%d] Crawl completed: %s\n", index+1, len(seeds), crawlReport.Seed)

		if err := outputReport(cfg, crawlReport); err != nil {
			logger.Error("report failed", "seed", crawlReport.Seed, "error", err)
		}
	})

	elapsed := time.Since(startTime)
	fmt.Printf("\nBatch crawl completed in %s\n", elapsed.Round(time.Millisecond))

	return err
}

// readSeedFile reads seed URLs from a file, one per line.
// Blank lines and lines starting with '#' are skipped.
func readSeedFile(path string) ([]string, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from the --seed-file flag
	if err != nil {
		return nil, fmt.Errorf("failed to open seed file: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only file

	var seeds []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		seeds = append(seeds, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	return seeds, nil
}

// outputReport writes the crawl report in the requested format.
func outputReport(cfg *config.Config, crawlReport *model.CrawlReport) error {
	// Generate simple report if needed
	if crawlReport.SimpleReport == nil {
		crawlReport.SimpleReport = model.NewSimpleReport(crawlReport)
	}

	// Determine output destination
	var output *os.File
	if cfg.ReportFile != "" {
		dir := filepath.Dir(cfg.ReportFile)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}

		f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) //nolint:gosec // path comes from the --report-file flag
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close() //nolint:errcheck // write errors surface from the report writers
		output = f
	} else {
		output = os.Stdout
	}

	switch cfg.ReportFormat {
	case config.ReportFormatJSON:
		writer := report.NewFullJSONWriter(output, getVersion(), report.WithPrettyPrint())
		_, err := writer.Write(crawlReport)
		return err
	case config.ReportFormatMarkdown:
		writer := report.NewMarkdownWriter(output)
		_, err := writer.Write(crawlReport)
		return err
	default:
		writer := report.NewSimpleWriter(output, report.WithVerbose(cfg.Verbose))
		_, err := writer.Write(crawlReport)
		return err
	}
}
