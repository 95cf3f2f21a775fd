package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/webscrapy/getallspider/internal/config"
	"github.com/webscrapy/getallspider/internal/model"
)

// TestNewRootCmd tests the root command creation.
func TestNewRootCmd(t *testing.T) {
	t.Parallel()

	cmd := NewRootCmd()

	t.Run("has correct use", func(t *testing.T) {
		t.Parallel()
		if cmd.Use != "getallspider" {
			t.Errorf("expected use 'getallspider', got %q", cmd.Use)
		}
	})

	t.Run("has short description", func(t *testing.T) {
		t.Parallel()
		if cmd.Short == "" {
			t.Error("expected non-empty short description")
		}
	})

	t.Run("has long description", func(t *testing.T) {
		t.Parallel()
		if cmd.Long == "" {
			t.Error("expected non-empty long description")
		}
	})

	t.Run("has version", func(t *testing.T) {
		t.Parallel()
		if cmd.Version == "" {
			t.Error("expected non-empty version")
		}
	})

	t.Run("has verbose flag", func(t *testing.T) {
		t.Parallel()
		flag := cmd.PersistentFlags().Lookup("verbose")
		if flag == nil {
			t.Fatal("expected verbose flag")
		}
		if flag.Shorthand != "v" {
			t.Errorf("expected shorthand 'v', got %q", flag.Shorthand)
		}
		if flag.DefValue != "false" {
			t.Errorf("expected default 'false', got %q", flag.DefValue)
		}
	})

	t.Run("has documented crawl flags with defaults", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			name     string
			defValue string
		}{
			{"url", ""},
			{"allowed-domains", ""},
			{"save-dir", ""},
			{"delay", "1"},
			{"randomize-delay", "true"},
			{"regex-allowed-urls", ".*"},
			{"override", "false"},
			{"enable-log-file", "false"},
			{"log-filename", ""},
			{"requests-per-domain", "1"},
			{"only-links", "false"},
			{"also-save-links", "false"},
			{"timeout", "3m0s"},
			{"max-depth", "0"},
			{"max-pages", "0"},
			{"max-body-size", "0"},
			{"socks5-proxy", ""},
			{"no-db", "false"},
			{"report-format", "simple"},
			{"report-file", ""},
			{"seed-file", ""},
			{"batch-concurrency", "2"},
			{"config", ""},
		}

		for _, tt := range tests {
			flag := cmd.Flags().Lookup(tt.name)
			if flag == nil {
				t.Errorf("expected flag %q", tt.name)
				continue
			}
			if flag.DefValue != tt.defValue {
				t.Errorf("flag %q: expected default %q, got %q", tt.name, tt.defValue, flag.DefValue)
			}
		}
	})

	t.Run("has subcommands", func(t *testing.T) {
		t.Parallel()

		want := map[string]bool{
			"init":           false,
			"history [host]": false,
			"compare [host]": false,
			"media <dir>":    false,
			"version":        false,
		}
		for _, sub := range cmd.Commands() {
			if _, ok := want[sub.Use]; ok {
				want[sub.Use] = true
			}
		}
		for use, found := range want {
			if !found {
				t.Errorf("expected subcommand %q", use)
			}
		}
	})
}

// TestSplitDomains tests parsing of the --allowed-domains value.
func TestSplitDomains(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "empty",
			input: "",
			want:  nil,
		},
		{
			name:  "single domain",
			input: "example.com",
			want:  []string{"example.com"},
		},
		{
			name:  "multiple domains",
			input: "example.com,example.org",
			want:  []string{"example.com", "example.org"},
		},
		{
			name:  "spaces and case normalized",
			input: " Example.COM , sub.example.org ",
			want:  []string{"example.com", "sub.example.org"},
		},
		{
			name:  "empty entries dropped",
			input: "example.com,,example.org,",
			want:  []string{"example.com", "example.org"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := splitDomains(tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("splitDomains(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

// TestBuildConfig tests building a Config from command-line flags.
func TestBuildConfig(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()

		cmd := NewRootCmd()
		cfg, err := buildConfig(cmd)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.URL != "" {
			t.Errorf("expected empty URL, got %q", cfg.URL)
		}
		if cfg.Delay != time.Second {
			t.Errorf("expected delay 1s, got %v", cfg.Delay)
		}
		if !cfg.RandomizeDelay {
			t.Error("expected randomize-delay true by default")
		}
		if cfg.RequestsPerDomain != 1 {
			t.Errorf("expected requests-per-domain 1, got %d", cfg.RequestsPerDomain)
		}
		if !cfg.SaveToDB {
			t.Error("expected SaveToDB true by default")
		}
		if cfg.ReportFormat != config.ReportFormatSimple {
			t.Errorf("expected report format 'simple', got %q", cfg.ReportFormat)
		}
	})

	t.Run("flag values", func(t *testing.T) {
		t.Parallel()

		cmd := NewRootCmd()
		for flag, value := range map[string]string{
			"url":             "https://example.com/start",
			"allowed-domains": "example.com,example.org",
			"delay":           "1.5",
			"no-db":           "true",
			"only-links":      "true",
			"save-dir":        "/tmp/mirror",
		} {
			if err := cmd.Flags().Set(flag, value); err != nil {
				t.Fatalf("failed to set flag %s: %v", flag, err)
			}
		}

		cfg, err := buildConfig(cmd)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.URL != "https://example.com/start" {
			t.Errorf("unexpected URL: %q", cfg.URL)
		}
		if !reflect.DeepEqual(cfg.AllowedDomains, []string{"example.com", "example.org"}) {
			t.Errorf("unexpected allowed domains: %v", cfg.AllowedDomains)
		}
		if cfg.Delay != 1500*time.Millisecond {
			t.Errorf("expected delay 1.5s, got %v", cfg.Delay)
		}
		if cfg.SaveToDB {
			t.Error("expected SaveToDB false with --no-db")
		}
		if !cfg.OnlyLinks {
			t.Error("expected OnlyLinks true")
		}
		if cfg.SaveFiles() {
			t.Error("expected SaveFiles false in only-links mode")
		}
		if !cfg.RecordLinks() {
			t.Error("expected RecordLinks true in only-links mode")
		}
		if cfg.SaveDir != "/tmp/mirror" {
			t.Errorf("unexpected save dir: %q", cfg.SaveDir)
		}
	})

	t.Run("missing explicit config file", func(t *testing.T) {
		t.Parallel()

		cmd := NewRootCmd()
		if err := cmd.Flags().Set("config", filepath.Join(t.TempDir(), "missing.yaml")); err != nil {
			t.Fatalf("failed to set flag: %v", err)
		}

		if _, err := buildConfig(cmd); err == nil {
			t.Error("expected error for missing explicit config file")
		}
	})
}

// TestApplySiteConfig tests merging of configuration file settings.
func TestApplySiteConfig(t *testing.T) {
	t.Parallel()

	newConfig := func() *config.Config {
		cfg := config.NewConfig()
		cfg.URL = "https://docs.example.com/start"
		cfg.SiteConfigs = &config.File{
			Sites: map[string]config.SiteConfig{
				"example.com": {
					Cookie:            "session=abc",
					Headers:           map[string]string{"Authorization": "Bearer x"},
					UserAgent:         "site-agent",
					Delay:             2.5,
					RequestsPerDomain: 3,
					RegexAllowedURLs:  "https://docs\\.",
				},
			},
		}
		return cfg
	}

	t.Run("site values applied", func(t *testing.T) {
		t.Parallel()

		cfg := newConfig()
		applySiteConfig(cfg, flagOverrides{})

		if cfg.Cookie != "session=abc" {
			t.Errorf("expected site cookie, got %q", cfg.Cookie)
		}
		if cfg.Headers["Authorization"] != "Bearer x" {
			t.Errorf("expected site headers, got %v", cfg.Headers)
		}
		if cfg.UserAgent != "site-agent" {
			t.Errorf("expected site user agent, got %q", cfg.UserAgent)
		}
		if cfg.Delay != 2500*time.Millisecond {
			t.Errorf("expected site delay 2.5s, got %v", cfg.Delay)
		}
		if cfg.RequestsPerDomain != 3 {
			t.Errorf("expected site requests-per-domain 3, got %d", cfg.RequestsPerDomain)
		}
		if cfg.RegexAllowedURLs != "https://docs\\." {
			t.Errorf("expected site allow regex, got %q", cfg.RegexAllowedURLs)
		}
	})

	t.Run("explicit flags win", func(t *testing.T) {
		t.Parallel()

		cfg := newConfig()
		cfg.Delay = 10 * time.Second
		cfg.RequestsPerDomain = 7
		cfg.UserAgent = "flag-agent"
		cfg.RegexAllowedURLs = "^https://"

		applySiteConfig(cfg, flagOverrides{
			delay:             true,
			requestsPerDomain: true,
			userAgent:         true,
			allowRegex:        true,
		})

		if cfg.Delay != 10*time.Second {
			t.Errorf("expected flag delay kept, got %v", cfg.Delay)
		}
		if cfg.RequestsPerDomain != 7 {
			t.Errorf("expected flag requests-per-domain kept, got %d", cfg.RequestsPerDomain)
		}
		if cfg.UserAgent != "flag-agent" {
			t.Errorf("expected flag user agent kept, got %q", cfg.UserAgent)
		}
		if cfg.RegexAllowedURLs != "^https://" {
			t.Errorf("expected flag allow regex kept, got %q", cfg.RegexAllowedURLs)
		}
		// Cookie has no flag; the site value always applies.
		if cfg.Cookie != "session=abc" {
			t.Errorf("expected site cookie, got %q", cfg.Cookie)
		}
	})

	t.Run("no site configs", func(t *testing.T) {
		t.Parallel()

		cfg := config.NewConfig()
		cfg.URL = "https://example.com"
		cfg.SiteConfigs = nil
		applySiteConfig(cfg, flagOverrides{})

		if cfg.Cookie != "" {
			t.Errorf("expected no cookie, got %q", cfg.Cookie)
		}
	})
}

// TestReadSeedFile tests seed file parsing.
func TestReadSeedFile(t *testing.T) {
	t.Parallel()

	t.Run("reads seeds skipping comments and blanks", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "seeds.txt")
		content := "https://example.com\n\n# a comment\nhttps://example.org/docs\n  https://example.net  \n"
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			t.Fatalf("failed to write seed file: %v", err)
		}

		seeds, err := readSeedFile(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		want := []string{"https://example.com", "https://example.org/docs", "https://example.net"}
		if !reflect.DeepEqual(seeds, want) {
			t.Errorf("readSeedFile() = %v, want %v", seeds, want)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()

		if _, err := readSeedFile(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
			t.Error("expected error for missing seed file")
		}
	})
}

// TestOutputReport tests report writing in each format.
func TestOutputReport(t *testing.T) {
	t.Parallel()

	newReport := func() *model.CrawlReport {
		crawlReport := model.NewCrawlReport("https://example.com", "example.com")
		crawlReport.RecordPage(&model.Page{
			URL:         "https://example.com/",
			StatusCode:  200,
			ContentType: "text/html; charset=utf-8",
			Title:       "Example",
			Body:        []byte("<html></html>"),
		}, "example.com/index.html")
		crawlReport.Finish(model.FinishReasonFinished)
		return crawlReport
	}

	t.Run("json report to file", func(t *testing.T) {
		t.Parallel()

		cfg := config.NewConfig()
		cfg.ReportFormat = config.ReportFormatJSON
		cfg.ReportFile = filepath.Join(t.TempDir(), "out", "report.json")

		if err := outputReport(cfg, newReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		data, err := os.ReadFile(cfg.ReportFile)
		if err != nil {
			t.Fatalf("failed to read report file: %v", err)
		}

		var wrapped struct {
			Version string             `json:"version"`
			Report  *model.CrawlReport `json:"report"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			t.Fatalf("report is not valid JSON: %v", err)
		}
		if wrapped.Report == nil || wrapped.Report.Seed != "https://example.com" {
			t.Errorf("unexpected report payload: %+v", wrapped.Report)
		}
	})

	t.Run("markdown report to file", func(t *testing.T) {
		t.Parallel()

		cfg := config.NewConfig()
		cfg.ReportFormat = config.ReportFormatMarkdown
		cfg.ReportFile = filepath.Join(t.TempDir(), "report.md")

		if err := outputReport(cfg, newReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		data, err := os.ReadFile(cfg.ReportFile)
		if err != nil {
			t.Fatalf("failed to read report file: %v", err)
		}
		if len(data) == 0 {
			t.Error("expected non-empty markdown report")
		}
	})

	t.Run("simple report to file", func(t *testing.T) {
		t.Parallel()

		cfg := config.NewConfig()
		cfg.ReportFile = filepath.Join(t.TempDir(), "report.txt")

		if err := outputReport(cfg, newReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		data, err := os.ReadFile(cfg.ReportFile)
		if err != nil {
			t.Fatalf("failed to read report file: %v", err)
		}
		if len(data) == 0 {
			t.Error("expected non-empty simple report")
		}
	})
}
