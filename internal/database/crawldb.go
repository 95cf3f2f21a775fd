package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/webscrapy/getallspider/internal/model"
)

// dbFileName is the ledger file created inside the database directory.
const dbFileName = "getallspider.db"

// CrawlDB provides SQLite-based storage for page records and crawl reports.
// It manages connection pooling and provides methods for CRUD operations.
//
// Design decision: We use a single database file for all hosts rather than
// one file per host. This keeps the history and compare commands simple and
// makes backup a single-file copy.
type CrawlDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures CrawlDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent performance.
	// This is recommended for most use cases.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a CrawlDB in the specified directory.
// If CreateIfNotExists is true, the directory and database file are created.
// If CreateIfNotExists is false and the database doesn't exist, an error is
// returned. Commands that only read history use the latter so they never
// leave an empty ledger behind.
func Open(dbDir string, opts Options) (*CrawlDB, error) {
	dbPath := filepath.Join(dbDir, dbFileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (no crawl has been recorded yet)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// modernc.org/sqlite connection strings take the mode as a query
	// parameter: rwc creates missing files, rw requires them to exist.
	var dsn string
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	} else {
		dsn = dbPath + "?mode=rw"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite supports only one writer; crawl workers all funnel through
	// this single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cdb := &CrawlDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := cdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return cdb, nil
}

// Path returns the location of the database file.
func (cdb *CrawlDB) Path() string {
	return cdb.dbPath
}

// Close closes the database connection.
func (cdb *CrawlDB) Close() error {
	return cdb.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (cdb *CrawlDB) createTables() error {
	schema := `
	-- Page records store individual page fetches, one row per URL and host
	CREATE TABLE IF NOT EXISTS pages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		url TEXT NOT NULL,
		host TEXT NOT NULL,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
		status_code INTEGER,
		content_type TEXT,
		title TEXT,
		depth INTEGER DEFAULT 0,
		size INTEGER DEFAULT 0,
		hash TEXT,
		saved_path TEXT,
		headers TEXT,
		UNIQUE(url, host)
	);

	CREATE INDEX IF NOT EXISTS idx_pages_url ON pages(url);
	CREATE INDEX IF NOT EXISTS idx_pages_host ON pages(host);
	CREATE INDEX IF NOT EXISTS idx_pages_timestamp ON pages(timestamp);

	-- Crawl reports store one complete run summary as JSON
	CREATE TABLE IF NOT EXISTS crawl_reports (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		host TEXT NOT NULL,
		seed TEXT NOT NULL,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
		report_json TEXT NOT NULL,
		summary TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_reports_host ON crawl_reports(host);
	CREATE INDEX IF NOT EXISTS idx_reports_timestamp ON crawl_reports(timestamp);
	`

	_, err := cdb.db.ExecContext(context.Background(), schema)
	return err
}

// CrawlRecord represents a stored page fetch.
type CrawlRecord struct {
	ID          int64
	URL         string
	Host        string
	Timestamp   time.Time
	StatusCode  int
	ContentType string
	Title       string
	Depth       int
	Size        int64
	Hash        string
	SavedPath   string
	Headers     map[string][]string
}

// UpsertCrawlRecord inserts or updates a page record.
// A URL revisited in a later run replaces its previous row, so the pages
// table always reflects the most recent crawl of each URL.
func (cdb *CrawlDB) UpsertCrawlRecord(ctx context.Context, record *CrawlRecord) (int64, error) {
	headersJSON, err := json.Marshal(record.Headers)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize headers: %w", err)
	}

	query := `
	INSERT INTO pages (url, host, status_code, content_type, title, depth, size, hash, saved_path, headers)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(url, host) DO UPDATE SET
		status_code = excluded.status_code,
		content_type = excluded.content_type,
		title = excluded.title,
		depth = excluded.depth,
		size = excluded.size,
		hash = excluded.hash,
		saved_path = excluded.saved_path,
		headers = excluded.headers,
		timestamp = CURRENT_TIMESTAMP
	`

	result, err := cdb.db.ExecContext(ctx, query,
		record.URL,
		record.Host,
		record.StatusCode,
		record.ContentType,
		record.Title,
		record.Depth,
		record.Size,
		record.Hash,
		record.SavedPath,
		string(headersJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert page record: %w", err)
	}

	return result.LastInsertId()
}

// GetCrawlRecord retrieves a page record by URL and host.
// It returns nil without an error when no record exists.
func (cdb *CrawlDB) GetCrawlRecord(ctx context.Context, pageURL, host string) (*CrawlRecord, error) {
	query := `
	SELECT id, url, host, timestamp, status_code, content_type, title, depth, size, hash, saved_path, headers
	FROM pages
	WHERE url = ? AND host = ?
	`

	var record CrawlRecord
	var headersJSON string
	var timestamp string

	err := cdb.db.QueryRowContext(ctx, query, pageURL, host).Scan(
		&record.ID,
		&record.URL,
		&record.Host,
		&timestamp,
		&record.StatusCode,
		&record.ContentType,
		&record.Title,
		&record.Depth,
		&record.Size,
		&record.Hash,
		&record.SavedPath,
		&headersJSON,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get page record: %w", err)
	}

	record.Timestamp = parseTimestamp(timestamp)

	if headersJSON != "" {
		if err := json.Unmarshal([]byte(headersJSON), &record.Headers); err != nil {
			return nil, fmt.Errorf("failed to parse headers: %w", err)
		}
	}

	return &record, nil
}

// ListCrawlRecords returns the stored page records for a host, most
// recently fetched first. limit caps the result; 0 means no limit.
func (cdb *CrawlDB) ListCrawlRecords(ctx context.Context, host string, limit int) ([]*CrawlRecord, error) {
	query := `
	SELECT id, url, host, timestamp, status_code, content_type, title, depth, size, hash, saved_path, headers
	FROM pages
	WHERE host = ?
	ORDER BY timestamp DESC, id DESC
	`
	args := []any{host}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := cdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list page records: %w", err)
	}
	defer rows.Close()

	var records []*CrawlRecord
	for rows.Next() {
		var record CrawlRecord
		var headersJSON string
		var timestamp string

		if err := rows.Scan(
			&record.ID,
			&record.URL,
			&record.Host,
			&timestamp,
			&record.StatusCode,
			&record.ContentType,
			&record.Title,
			&record.Depth,
			&record.Size,
			&record.Hash,
			&record.SavedPath,
			&headersJSON,
		); err != nil {
			return nil, fmt.Errorf("failed to scan page record: %w", err)
		}

		record.Timestamp = parseTimestamp(timestamp)
		if headersJSON != "" {
			if err := json.Unmarshal([]byte(headersJSON), &record.Headers); err != nil {
				return nil, fmt.Errorf("failed to parse headers: %w", err)
			}
		}
		records = append(records, &record)
	}

	return records, rows.Err()
}

// HasRecentCrawl checks if a URL was crawled within the specified duration.
func (cdb *CrawlDB) HasRecentCrawl(ctx context.Context, pageURL string, duration time.Duration) (bool, error) {
	query := `
	SELECT COUNT(*) FROM pages
	WHERE url = ? AND timestamp > datetime('now', ?)
	`

	// SQLite datetime modifier format
	modifier := fmt.Sprintf("-%d seconds", int(duration.Seconds()))

	var count int
	err := cdb.db.QueryRowContext(ctx, query, pageURL, modifier).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check recent crawl: %w", err)
	}

	return count > 0, nil
}

// SaveCrawlReport saves a complete crawl report as JSON.
func (cdb *CrawlDB) SaveCrawlReport(ctx context.Context, report *model.CrawlReport) error {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to serialize report: %w", err)
	}

	summary := map[string]int{
		"fetched":          report.PagesFetched,
		"saved":            report.FilesSaved,
		"links":            report.LinksRecorded,
		"skipped_existing": report.SkippedExisting,
		"offsite":          report.OffsiteFiltered,
		"ignored":          report.IgnoredResponses,
		"errors":           report.RequestErrors,
	}
	summaryJSON, _ := json.Marshal(summary) //nolint:errcheck,errchkjson // summary is a simple map; Marshal won't fail

	query := `
	INSERT INTO crawl_reports (host, seed, report_json, summary)
	VALUES (?, ?, ?, ?)
	`

	_, err = cdb.db.ExecContext(ctx, query,
		report.Host,
		report.Seed,
		string(reportJSON),
		string(summaryJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to save crawl report: %w", err)
	}

	return nil
}

// GetLatestCrawlReport retrieves the most recent crawl report for a host.
// It returns nil without an error when the host has never been crawled.
func (cdb *CrawlDB) GetLatestCrawlReport(ctx context.Context, host string) (*model.CrawlReport, error) {
	query := `
	SELECT report_json FROM crawl_reports
	WHERE host = ?
	ORDER BY timestamp DESC, id DESC
	LIMIT 1
	`

	var reportJSON string
	err := cdb.db.QueryRowContext(ctx, query, host).Scan(&reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get crawl report: %w", err)
	}

	var report model.CrawlReport
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}

	return &report, nil
}

// ListCrawledHosts returns every host with at least one recorded crawl.
func (cdb *CrawlDB) ListCrawledHosts(ctx context.Context) ([]string, error) {
	query := `
	SELECT DISTINCT host FROM crawl_reports
	ORDER BY host
	`

	rows, err := cdb.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list hosts: %w", err)
	}
	defer rows.Close()

	var hosts []string
	for rows.Next() {
		var host string
		if err := rows.Scan(&host); err != nil {
			return nil, fmt.Errorf("failed to scan host: %w", err)
		}
		hosts = append(hosts, host)
	}

	return hosts, rows.Err()
}

// GetCrawlHistory retrieves all crawl reports for a host, newest first.
func (cdb *CrawlDB) GetCrawlHistory(ctx context.Context, host string) ([]*model.CrawlReport, error) {
	query := `
	SELECT report_json FROM crawl_reports
	WHERE host = ?
	ORDER BY timestamp DESC, id DESC
	`

	rows, err := cdb.db.QueryContext(ctx, query, host)
	if err != nil {
		return nil, fmt.Errorf("failed to get crawl history: %w", err)
	}
	defer rows.Close()

	var reports []*model.CrawlReport
	for rows.Next() {
		var reportJSON string
		if err := rows.Scan(&reportJSON); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}

		var report model.CrawlReport
		if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
			continue // Skip malformed reports
		}
		reports = append(reports, &report)
	}

	return reports, rows.Err()
}

// CrawlReportMetadata contains summary information about a crawl report.
// This is used for displaying crawl history without loading the full report.
type CrawlReportMetadata struct {
	// ID is the unique identifier of the crawl report in the database.
	ID int64

	// Host is the crawled host.
	Host string

	// Seed is the URL the crawl started from.
	Seed string

	// Timestamp is when the crawl was recorded.
	Timestamp time.Time

	// Summary contains the crawl counters (fetched, saved, errors, ...).
	Summary map[string]int
}

// GetCrawlHistoryWithMetadata retrieves crawl report metadata for a host.
// This is more efficient than GetCrawlHistory when only the counters are
// needed.
func (cdb *CrawlDB) GetCrawlHistoryWithMetadata(ctx context.Context, host string) ([]CrawlReportMetadata, error) {
	query := `
	SELECT id, host, seed, timestamp, summary
	FROM crawl_reports
	WHERE host = ?
	ORDER BY timestamp DESC, id DESC
	`

	rows, err := cdb.db.QueryContext(ctx, query, host)
	if err != nil {
		return nil, fmt.Errorf("failed to get crawl history: %w", err)
	}
	defer rows.Close()

	var results []CrawlReportMetadata
	for rows.Next() {
		var meta CrawlReportMetadata
		var timestamp string
		var summaryJSON sql.NullString

		if err := rows.Scan(&meta.ID, &meta.Host, &meta.Seed, &timestamp, &summaryJSON); err != nil {
			return nil, fmt.Errorf("failed to scan metadata: %w", err)
		}

		meta.Timestamp = parseTimestamp(timestamp)

		if summaryJSON.Valid && summaryJSON.String != "" {
			if err := json.Unmarshal([]byte(summaryJSON.String), &meta.Summary); err != nil {
				meta.Summary = make(map[string]int)
			}
		} else {
			meta.Summary = make(map[string]int)
		}

		results = append(results, meta)
	}

	return results, rows.Err()
}

// GetCrawlReportByID retrieves a crawl report by its database ID.
// It returns nil without an error when the ID is unknown.
func (cdb *CrawlDB) GetCrawlReportByID(ctx context.Context, id int64) (*model.CrawlReport, error) {
	query := `
	SELECT report_json FROM crawl_reports
	WHERE id = ?
	`

	var reportJSON string
	err := cdb.db.QueryRowContext(ctx, query, id).Scan(&reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get crawl report: %w", err)
	}

	var report model.CrawlReport
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}

	return &report, nil
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	"2006-01-02 15:04:05",     // SQLite default datetime format
	"2006-01-02T15:04:05Z",    // ISO 8601 with Z suffix
	"2006-01-02T15:04:05",     // ISO 8601 without timezone
	time.RFC3339,              // Full RFC3339 format
	time.RFC3339Nano,          // RFC3339 with nanoseconds
	"2006-01-02 15:04:05.999", // SQLite with milliseconds
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// SQLite may return timestamps in different formats depending on configuration.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
