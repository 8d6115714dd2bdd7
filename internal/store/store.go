// Package store provides SQLite persistence for the sesame-tx service: one
// saved working code per concrete target, and a history of attack runs.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"sesame-tx/internal/models"
)

// ErrNoSavedCode is returned by LoadCode when no code has been persisted for
// the requested target.
var ErrNoSavedCode = errors.New("no saved code for target")

// Store represents the database connection
type Store struct {
	*sql.DB
	Path   string // Exported for integration tests
	logger *zerolog.Logger
	sync.Mutex
}

// New opens (creating if needed) the database at path.
func New(path string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite supports only one writer at a time
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	logger := log.With().Str("component", "store").Logger()

	s := &Store{
		DB:     db,
		Path:   path,
		logger: &logger,
	}

	if err := s.initializeDB(); err != nil {
		db.Close()
		return nil, err
	}

	if err := s.optimizeDB(); err != nil {
		logger.Warn().Err(err).Msg("Failed to set some database optimization parameters")
	}

	return s, nil
}

// Initialize database schema
func (s *Store) initializeDB() error {
	s.logger.Info().Msg("Initializing database schema")

	schema := `
	-- Saved codes table: one working code per concrete target
	CREATE TABLE IF NOT EXISTS saved_codes (
		target_name TEXT PRIMARY KEY,
		code INTEGER NOT NULL,
		saved_at TIMESTAMP NOT NULL
	);

	-- Attack runs table
	CREATE TABLE IF NOT EXISTS attack_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		timestamp TIMESTAMP NOT NULL,
		target TEXT NOT NULL,
		mode TEXT NOT NULL,
		codes_transmitted INTEGER DEFAULT 0,
		max_code INTEGER DEFAULT 0,
		status TEXT NOT NULL,
		error_message TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_attack_runs_timestamp ON attack_runs(timestamp);
	CREATE INDEX IF NOT EXISTS idx_attack_runs_run_id ON attack_runs(run_id);
	`

	if _, err := s.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return nil
}

// optimizeDB sets SQLite optimization parameters
func (s *Store) optimizeDB() error {
	// Enable WAL mode for better concurrency
	if _, err := s.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return err
	}

	if _, err := s.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		return err
	}

	// Set busy timeout to avoid "database is locked" errors
	if _, err := s.Exec("PRAGMA busy_timeout=10000"); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to set busy_timeout PRAGMA")
	}

	return nil
}

// SaveCode persists (or replaces) the working code for a target.
func (s *Store) SaveCode(targetName string, code uint32) error {
	s.Lock()
	defer s.Unlock()

	_, err := s.Exec(
		`INSERT INTO saved_codes (target_name, code, saved_at) VALUES (?, ?, ?)
		 ON CONFLICT(target_name) DO UPDATE SET code = excluded.code, saved_at = excluded.saved_at`,
		targetName, code, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to save code for %s: %w", targetName, err)
	}

	s.logger.Info().Str("target", targetName).Uint32("code", code).Msg("Saved working code")
	return nil
}

// LoadCode returns the persisted code for a target, or ErrNoSavedCode.
func (s *Store) LoadCode(targetName string) (uint32, error) {
	var code uint32
	err := s.QueryRow(
		"SELECT code FROM saved_codes WHERE target_name = ?", targetName,
	).Scan(&code)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%s: %w", targetName, ErrNoSavedCode)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load code for %s: %w", targetName, err)
	}
	return code, nil
}

// ListCodes returns every saved code, most recently saved first.
func (s *Store) ListCodes() ([]*models.SavedCode, error) {
	rows, err := s.Query(
		"SELECT target_name, code, saved_at FROM saved_codes ORDER BY saved_at DESC",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list saved codes: %w", err)
	}
	defer rows.Close()

	var codes []*models.SavedCode
	for rows.Next() {
		c := &models.SavedCode{}
		if err := rows.Scan(&c.TargetName, &c.Code, &c.SavedAt); err != nil {
			return nil, fmt.Errorf("failed to scan saved code: %w", err)
		}
		codes = append(codes, c)
	}
	return codes, rows.Err()
}

// DeleteCode removes the saved code for a target, if any.
func (s *Store) DeleteCode(targetName string) error {
	s.Lock()
	defer s.Unlock()

	if _, err := s.Exec("DELETE FROM saved_codes WHERE target_name = ?", targetName); err != nil {
		return fmt.Errorf("failed to delete code for %s: %w", targetName, err)
	}
	return nil
}

// CreateRun records the start of an attack run and returns the row ID.
func (s *Store) CreateRun(runID, target, mode string, maxCode uint32) (int64, error) {
	s.Lock()
	defer s.Unlock()

	result, err := s.Exec(
		`INSERT INTO attack_runs (run_id, timestamp, target, mode, max_code, status)
		 VALUES (?, ?, ?, ?, ?, 'running')`,
		runID, time.Now(), target, mode, maxCode,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to record attack run: %w", err)
	}
	return result.LastInsertId()
}

// FinishRun updates a run with its terminal status and final counters.
func (s *Store) FinishRun(id int64, status string, codesTransmitted, maxCode uint32, errMessage string) error {
	s.Lock()
	defer s.Unlock()

	_, err := s.Exec(
		`UPDATE attack_runs SET status = ?, codes_transmitted = ?, max_code = ?, error_message = ?
		 WHERE id = ?`,
		status, codesTransmitted, maxCode, errMessage, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update attack run: %w", err)
	}
	return nil
}

// RecentRuns returns the most recent attack runs, newest first.
func (s *Store) RecentRuns(limit int) ([]*models.AttackRun, error) {
	rows, err := s.Query(
		`SELECT id, run_id, timestamp, target, mode, codes_transmitted, max_code, status,
		        COALESCE(error_message, '')
		 FROM attack_runs ORDER BY timestamp DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query attack runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.AttackRun
	for rows.Next() {
		r := &models.AttackRun{}
		if err := rows.Scan(&r.ID, &r.RunID, &r.Timestamp, &r.Target, &r.Mode,
			&r.CodesTransmitted, &r.MaxCode, &r.Status, &r.ErrorMessage); err != nil {
			return nil, fmt.Errorf("failed to scan attack run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Size returns the database file size in bytes.
func (s *Store) Size() (int64, error) {
	info, err := os.Stat(s.Path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat database file: %w", err)
	}
	return info.Size(), nil
}
