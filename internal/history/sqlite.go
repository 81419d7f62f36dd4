package history

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db      *sql.DB
	mu      sync.RWMutex
	closed  bool
	writeMu sync.Mutex
}

// NewSQLiteStore creates a new SQLite history store
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(60000)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(10 * time.Minute)

	store := &SQLiteStore{db: db}
	if err := store.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		bucket TEXT NOT NULL,
		prefix TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL,
		succeeded INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		total_bytes INTEGER NOT NULL,
		total_retries INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS uploads (
		run_id TEXT NOT NULL,
		local_path TEXT NOT NULL,
		remote_key TEXT NOT NULL,
		size INTEGER NOT NULL,
		status TEXT NOT NULL,
		attempts INTEGER DEFAULT 0,
		last_error TEXT,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (run_id, local_path)
	);

	CREATE INDEX IF NOT EXISTS idx_uploads_status ON uploads(run_id, status);
	CREATE INDEX IF NOT EXISTS idx_runs_finished_at ON runs(finished_at);
	`

	_, err := s.db.Exec(query)
	return err
}

func (s *SQLiteStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("history store is closed")
	}
	return nil
}

// SaveRun saves a run and its records in one transaction
func (s *SQLiteStore) SaveRun(run *Run, records []*Record) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if run == nil || run.ID == "" {
		return fmt.Errorf("run id is required")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.retryOnBusy(func() error {
		return s.saveRunWithTransaction(run, records)
	})
}

func (s *SQLiteStore) saveRunWithTransaction(run *Run, records []*Record) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // ignored after Commit

	_, err = tx.Exec(`
	INSERT INTO runs
	(id, bucket, prefix, started_at, finished_at, succeeded, failed, total_bytes, total_retries)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		finished_at = excluded.finished_at,
		succeeded = excluded.succeeded,
		failed = excluded.failed,
		total_bytes = excluded.total_bytes,
		total_retries = excluded.total_retries
	`,
		run.ID, run.Bucket, run.Prefix, run.StartedAt, run.FinishedAt,
		run.Succeeded, run.Failed, run.TotalBytes, run.TotalRetries,
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	stmt, err := tx.Prepare(`
	INSERT INTO uploads
	(run_id, local_path, remote_key, size, status, attempts, last_error, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(run_id, local_path) DO UPDATE SET
		remote_key = excluded.remote_key,
		size = excluded.size,
		status = excluded.status,
		attempts = excluded.attempts,
		last_error = excluded.last_error,
		updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for _, record := range records {
		record.RunID = run.ID
		record.UpdatedAt = now

		var lastError sql.NullString
		if record.LastError != "" {
			lastError = sql.NullString{String: record.LastError, Valid: true}
		}

		if _, err := stmt.Exec(
			record.RunID,
			record.LocalPath,
			record.RemoteKey,
			record.Size,
			record.Status,
			record.Attempts,
			lastError,
			record.UpdatedAt,
		); err != nil {
			return fmt.Errorf("failed to save record %s: %w", record.LocalPath, err)
		}
	}

	return tx.Commit()
}

// LatestRun returns the most recently finished run
func (s *SQLiteStore) LatestRun() (*Run, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	row := s.db.QueryRow(`
	SELECT id, bucket, prefix, started_at, finished_at, succeeded, failed, total_bytes, total_retries
	FROM runs ORDER BY finished_at DESC LIMIT 1
	`)

	var run Run
	err := row.Scan(
		&run.ID,
		&run.Bucket,
		&run.Prefix,
		&run.StartedAt,
		&run.FinishedAt,
		&run.Succeeded,
		&run.Failed,
		&run.TotalBytes,
		&run.TotalRetries,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &run, nil
}

// ListFailed returns failed records of a run
func (s *SQLiteStore) ListFailed(runID string) ([]*Record, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`
	SELECT run_id, local_path, remote_key, size, status, attempts, last_error, updated_at
	FROM uploads WHERE run_id = ? AND status = ?
	ORDER BY local_path ASC
	`, runID, StatusFailed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		var record Record
		var lastError sql.NullString

		err := rows.Scan(
			&record.RunID,
			&record.LocalPath,
			&record.RemoteKey,
			&record.Size,
			&record.Status,
			&record.Attempts,
			&lastError,
			&record.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}

		if lastError.Valid {
			record.LastError = lastError.String
		}

		records = append(records, &record)
	}

	return records, rows.Err()
}

// retryOnBusy retries the operation if SQLite is busy
func (s *SQLiteStore) retryOnBusy(operation func() error) error {
	const maxRetries = 10
	baseDelay := 50 * time.Millisecond

	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		err = operation()
		if err == nil || !isSQLiteBusyError(err) {
			return err
		}

		delay := baseDelay * time.Duration(1<<uint(attempt))
		jitter := time.Duration(attempt*10) * time.Millisecond
		time.Sleep(delay + jitter)
	}

	return err
}

// isSQLiteBusyError checks if the error is a SQLite busy error
func isSQLiteBusyError(err error) bool {
	if err == nil {
		return false
	}
	errorStr := err.Error()
	return strings.Contains(errorStr, "database is locked") ||
		strings.Contains(errorStr, "SQLITE_BUSY")
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
