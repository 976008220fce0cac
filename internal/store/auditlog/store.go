// Package auditlog journals every oracle exchange so bad signals can be
// reviewed after the fact. It keeps its own SQLite file, separate from the
// trade store, so log growth never contends with the trading path.
package auditlog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"coinward/internal/logger"
)

// Record is one oracle call: what was sent, what came back, how it parsed.
type Record struct {
	ID         int64   `json:"id"`
	Timestamp  int64   `json:"ts"`
	Symbol     string  `json:"symbol"`
	Kind       string  `json:"kind"` // propose or assess
	Request    string  `json:"request"`
	RawOutput  string  `json:"raw_output"`
	Action     string  `json:"action,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Error      string  `json:"error,omitempty"`
}

type Store struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

func New(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("auditlog: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path))
	if err != nil {
		return nil, fmt.Errorf("auditlog: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	const ddl = `CREATE TABLE IF NOT EXISTS oracle_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ts INTEGER NOT NULL,
		symbol TEXT NOT NULL,
		kind TEXT NOT NULL,
		request TEXT,
		raw_output TEXT,
		action TEXT,
		confidence REAL,
		error TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_oracle_log_symbol_ts ON oracle_log(symbol, ts);`
	_, err := s.db.Exec(ddl)
	if err != nil {
		return fmt.Errorf("auditlog: migrate: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Append writes one record. Failures are logged and swallowed, the audit
// trail must never take the trading path down with it.
func (s *Store) Append(ctx context.Context, rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return
	}
	if rec.Timestamp == 0 {
		rec.Timestamp = time.Now().Unix()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO oracle_log (ts, symbol, kind, request, raw_output, action, confidence, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Timestamp, rec.Symbol, rec.Kind, rec.Request, rec.RawOutput, rec.Action, rec.Confidence, rec.Error)
	if err != nil {
		logger.Warnf("auditlog: append failed: %v", err)
	}
}

// Recent returns the latest records for a symbol, newest first. An empty
// symbol matches everything.
func (s *Store) Recent(ctx context.Context, symbol string, limit int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, fmt.Errorf("auditlog: store closed")
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	query := `SELECT id, ts, symbol, kind, request, raw_output, action, confidence, error
		FROM oracle_log`
	args := []any{}
	if symbol != "" {
		query += ` WHERE symbol = ?`
		args = append(args, symbol)
	}
	query += ` ORDER BY ts DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("auditlog: query: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &rec.Symbol, &rec.Kind,
			&rec.Request, &rec.RawOutput, &rec.Action, &rec.Confidence, &rec.Error); err != nil {
			return nil, fmt.Errorf("auditlog: scan: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
