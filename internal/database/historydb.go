package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/brokersafety/internal/model"
)

// FileName is the database file created inside the data directory.
const FileName = "brokersafety.db"

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("not found")

// HistoryDB stores safety reports and cached fetches in one SQLite file.
// It is safe for concurrent use.
type HistoryDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures HistoryDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent performance.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a HistoryDB inside dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*HistoryDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// mode=rw refuses to create a missing file, mode=rwc allows it.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	hdb := &HistoryDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := hdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return hdb, nil
}

// Close closes the database connection.
func (h *HistoryDB) Close() error {
	return h.db.Close()
}

// Path returns the database file path.
func (h *HistoryDB) Path() string {
	return h.dbPath
}

// createTables creates the database schema if it doesn't exist.
func (h *HistoryDB) createTables() error {
	schema := `
	-- Safety reports store complete records as JSON
	CREATE TABLE IF NOT EXISTS safety_reports (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		homepage TEXT NOT NULL,
		broker_id TEXT,
		extractor TEXT,
		generated_at INTEGER NOT NULL,
		report_json TEXT NOT NULL,
		regulators TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_reports_homepage ON safety_reports(homepage);
	CREATE INDEX IF NOT EXISTS idx_reports_generated ON safety_reports(generated_at);

	-- Report entities allow querying licensed entities across reports
	CREATE TABLE IF NOT EXISTS report_entities (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		report_id TEXT NOT NULL REFERENCES safety_reports(id) ON DELETE CASCADE,
		entity_name TEXT,
		regulator TEXT NOT NULL,
		tier TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_entities_regulator ON report_entities(regulator);
	CREATE INDEX IF NOT EXISTS idx_entities_report ON report_entities(report_id);

	-- Fetches cache successful responses by URL
	CREATE TABLE IF NOT EXISTS fetches (
		url TEXT PRIMARY KEY,
		final_url TEXT,
		status_code INTEGER,
		content_type TEXT,
		body BLOB,
		hash TEXT,
		fetched_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_fetches_fetched ON fetches(fetched_at);
	`

	_, err := h.db.ExecContext(context.Background(), schema)
	return err
}

// SaveReport stores report and its entities in one transaction. Saving a
// report whose ID already exists replaces it.
func (h *HistoryDB) SaveReport(ctx context.Context, report *model.SafetyReport) error {
	if report == nil {
		return errors.New("report is nil")
	}
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to serialize report: %w", err)
	}

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM report_entities WHERE report_id = ?`, report.ID); err != nil {
		return fmt.Errorf("failed to clear entities: %w", err)
	}

	query := `
	INSERT INTO safety_reports (id, homepage, broker_id, extractor, generated_at, report_json, regulators)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		homepage = excluded.homepage,
		broker_id = excluded.broker_id,
		extractor = excluded.extractor,
		generated_at = excluded.generated_at,
		report_json = excluded.report_json,
		regulators = excluded.regulators
	`
	_, err = tx.ExecContext(ctx, query,
		report.ID,
		report.Homepage,
		report.BrokerID,
		report.Extractor,
		report.GeneratedAt.UnixNano(),
		string(reportJSON),
		strings.Join(report.Regulators(), ","),
	)
	if err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}

	if report.Record != nil {
		for _, ent := range report.Record.Entities {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO report_entities (report_id, entity_name, regulator, tier) VALUES (?, ?, ?, ?)`,
				report.ID, ent.EntityName, ent.RegulatorAbbr, string(ent.Tier),
			)
			if err != nil {
				return fmt.Errorf("failed to save entity: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit report: %w", err)
	}
	return nil
}

// GetLatestReport retrieves the most recent report for homepage.
// It returns ErrNotFound when none exists.
func (h *HistoryDB) GetLatestReport(ctx context.Context, homepage string) (*model.SafetyReport, error) {
	query := `
	SELECT report_json FROM safety_reports
	WHERE homepage = ?
	ORDER BY generated_at DESC, seq DESC
	LIMIT 1
	`
	return h.queryReport(ctx, query, homepage)
}

// GetReportByID retrieves a report by its ID, or ErrNotFound.
func (h *HistoryDB) GetReportByID(ctx context.Context, id string) (*model.SafetyReport, error) {
	return h.queryReport(ctx, `SELECT report_json FROM safety_reports WHERE id = ?`, id)
}

func (h *HistoryDB) queryReport(ctx context.Context, query string, args ...any) (*model.SafetyReport, error) {
	var reportJSON string
	err := h.db.QueryRowContext(ctx, query, args...).Scan(&reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}

	var report model.SafetyReport
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &report, nil
}

// GetReportHistory retrieves up to limit reports for homepage, newest first.
// A limit of zero or less returns all of them. Malformed rows are skipped.
func (h *HistoryDB) GetReportHistory(ctx context.Context, homepage string, limit int) ([]*model.SafetyReport, error) {
	query := `
	SELECT report_json FROM safety_reports
	WHERE homepage = ?
	ORDER BY generated_at DESC, seq DESC
	`
	args := []any{homepage}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get report history: %w", err)
	}
	defer rows.Close()

	var reports []*model.SafetyReport
	for rows.Next() {
		var reportJSON string
		if err := rows.Scan(&reportJSON); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}

		var report model.SafetyReport
		if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
			continue
		}
		reports = append(reports, &report)
	}

	return reports, rows.Err()
}

// ReportMetadata summarizes a stored report without loading its record.
type ReportMetadata struct {
	ID          string
	Homepage    string
	BrokerID    string
	Extractor   string
	GeneratedAt time.Time
	Regulators  []string
}

// GetReportMetadata lists the stored reports of homepage, newest first.
func (h *HistoryDB) GetReportMetadata(ctx context.Context, homepage string) ([]ReportMetadata, error) {
	query := `
	SELECT id, homepage, broker_id, extractor, generated_at, regulators
	FROM safety_reports
	WHERE homepage = ?
	ORDER BY generated_at DESC, seq DESC
	`

	rows, err := h.db.QueryContext(ctx, query, homepage)
	if err != nil {
		return nil, fmt.Errorf("failed to get report metadata: %w", err)
	}
	defer rows.Close()

	var results []ReportMetadata
	for rows.Next() {
		var (
			meta       ReportMetadata
			brokerID   sql.NullString
			extractor  sql.NullString
			generated  int64
			regulators sql.NullString
		)
		if err := rows.Scan(&meta.ID, &meta.Homepage, &brokerID, &extractor, &generated, &regulators); err != nil {
			return nil, fmt.Errorf("failed to scan metadata: %w", err)
		}
		meta.BrokerID = brokerID.String
		meta.Extractor = extractor.String
		meta.GeneratedAt = time.Unix(0, generated)
		if regulators.String != "" {
			meta.Regulators = strings.Split(regulators.String, ",")
		}
		results = append(results, meta)
	}

	return results, rows.Err()
}

// ListHomepages returns every homepage with at least one stored report.
func (h *HistoryDB) ListHomepages(ctx context.Context) ([]string, error) {
	query := `
	SELECT DISTINCT homepage FROM safety_reports
	ORDER BY homepage
	`

	rows, err := h.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list homepages: %w", err)
	}
	defer rows.Close()

	var homepages []string
	for rows.Next() {
		var homepage string
		if err := rows.Scan(&homepage); err != nil {
			return nil, fmt.Errorf("failed to scan homepage: %w", err)
		}
		homepages = append(homepages, homepage)
	}

	return homepages, rows.Err()
}

// EntityRow is a licensed entity found in a stored report.
type EntityRow struct {
	ReportID    string
	Homepage    string
	EntityName  string
	Regulator   string
	Tier        string
	GeneratedAt time.Time
}

// QueryEntitiesByRegulator returns the entities licensed by the regulator
// abbreviation across the latest report of every homepage. Matching ignores
// case.
func (h *HistoryDB) QueryEntitiesByRegulator(ctx context.Context, regulator string) ([]EntityRow, error) {
	query := `
	SELECT e.report_id, r.homepage, e.entity_name, e.regulator, e.tier, r.generated_at
	FROM report_entities e
	JOIN safety_reports r ON r.id = e.report_id
	WHERE e.regulator = ? COLLATE NOCASE
	AND r.generated_at = (
		SELECT MAX(generated_at) FROM safety_reports WHERE homepage = r.homepage
	)
	ORDER BY r.homepage, e.entity_name
	`

	rows, err := h.db.QueryContext(ctx, query, regulator)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}
	defer rows.Close()

	var results []EntityRow
	for rows.Next() {
		var (
			row       EntityRow
			name      sql.NullString
			tier      sql.NullString
			generated int64
		)
		if err := rows.Scan(&row.ReportID, &row.Homepage, &name, &row.Regulator, &tier, &generated); err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		row.EntityName = name.String
		row.Tier = tier.String
		row.GeneratedAt = time.Unix(0, generated)
		results = append(results, row)
	}

	return results, rows.Err()
}
