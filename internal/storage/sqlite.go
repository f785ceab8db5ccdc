package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/IshaanNene/CertGoat/internal/certificate"
)

// SQLiteStorage upserts certificates by ISIN into a local SQLite database and
// records one row per run.
type SQLiteStorage struct {
	path   string
	conn   *sql.DB
	mu     sync.Mutex
	count  int
	logger *slog.Logger
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS certificates (
  isin TEXT PRIMARY KEY,
  name TEXT,
  issuer TEXT,
  market TEXT,
  currency TEXT,
  description TEXT,
  type TEXT NOT NULL,
  underlying_name TEXT,
  underlying_category TEXT NOT NULL,
  underlyings TEXT,
  worst_of TEXT,
  barrier_down REAL,
  barrier_level REAL,
  barrier_type TEXT,
  barrier_reached INTEGER,
  coupon REAL,
  annual_coupon_yield REAL,
  bid_price REAL,
  ask_price REAL,
  last_price REAL,
  price REAL,
  strike REAL,
  "trigger" REAL,
  nominal REAL,
  issue_date TEXT,
  maturity_date TEXT,
  state TEXT NOT NULL,
  error TEXT,
  source_url TEXT,
  detail_url TEXT,
  scraped_at TEXT,
  underlyings_json TEXT NOT NULL,
  updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_certificates_category ON certificates(underlying_category);
CREATE INDEX IF NOT EXISTS idx_certificates_type ON certificates(type);

CREATE TABLE IF NOT EXISTS runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  timestamp TEXT NOT NULL,
  total INTEGER NOT NULL,
  enriched INTEGER NOT NULL,
  failed INTEGER NOT NULL,
  excluded INTEGER NOT NULL,
  rejected_isins INTEGER NOT NULL,
  rules_version TEXT NOT NULL,
  sources_json TEXT NOT NULL
);
`

// NewSQLiteStorage opens (or creates) the database at path.
func NewSQLiteStorage(path string, logger *slog.Logger) (*SQLiteStorage, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := conn.Exec(sqliteSchema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &SQLiteStorage{
		path:   path,
		conn:   conn,
		logger: logger.With("component", "sqlite_storage"),
	}, nil
}

func (s *SQLiteStorage) Name() string { return "sqlite" }

// upsertSQL is built from Columns so the table and the tabular exports share
// one column order.
var upsertSQL = func() string {
	cols := append(append([]string{}, Columns...), "underlyings_json")
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")

	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = `"` + c + `"`
	}

	var sets []string
	for _, c := range quoted[1:] {
		sets = append(sets, fmt.Sprintf("%s = excluded.%s", c, c))
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")

	return fmt.Sprintf(
		"INSERT INTO certificates (%s) VALUES (%s) ON CONFLICT(isin) DO UPDATE SET %s",
		strings.Join(quoted, ", "), placeholders, strings.Join(sets, ", "),
	)
}()

func (s *SQLiteStorage) Store(out *certificate.Output) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(upsertSQL)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range out.Certificates {
		underlyings, err := json.Marshal(rec.Underlyings)
		if err != nil {
			return fmt.Errorf("encode underlyings of %s: %w", rec.ISIN, err)
		}
		args := append(flatRow(rec), string(underlyings))
		if _, err := stmt.Exec(args...); err != nil {
			return fmt.Errorf("upsert %s: %w", rec.ISIN, err)
		}
	}

	sources, err := json.Marshal(out.Metadata.Sources)
	if err != nil {
		return fmt.Errorf("encode sources: %w", err)
	}
	meta := out.Metadata
	_, err = tx.Exec(`
INSERT INTO runs (timestamp, total, enriched, failed, excluded, rejected_isins, rules_version, sources_json)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		meta.Timestamp.UTC().Format(time.RFC3339), meta.Total, meta.Enriched, meta.Failed,
		meta.Excluded, meta.RejectedISINs, meta.RulesVersion, string(sources),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.count += len(out.Certificates)
	s.logger.Debug("certificates upserted", "count", len(out.Certificates), "path", s.path)
	return nil
}

func (s *SQLiteStorage) Close() error {
	s.logger.Info("sqlite storage closing", "path", s.path, "upserts", s.count)
	return s.conn.Close()
}
