// Package state keeps import checkpoints in SQLite so an interrupted load can
// resume: which dumps have their definitions committed, how many statements
// of each table segment are done, and the history of runs.
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver (pure Go)
)

var errNotOpened = errors.New("database not opened")

// RunStatus is the lifecycle state of a run.
type RunStatus string

// Run statuses.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run is one invocation of an import.
type Run struct {
	ID          string
	Source      string
	Mode        string
	Status      RunStatus
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       string
}

// TableProgress is the checkpoint of one table segment.
type TableProgress struct {
	Segment   int
	Table     string
	Completed int
	Total     int
}

// Done returns true once every statement of the segment is imported.
func (p TableProgress) Done() bool {
	return p.Completed >= p.Total
}

// SQLiteStore stores checkpoints in a SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// NewSQLiteStore creates a new store. If logger is nil, a discard logger is
// used.
func NewSQLiteStore(logger *slog.Logger) *SQLiteStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SQLiteStore{logger: logger}
}

// Open opens the database at path. Use ":memory:" for an in-memory database.
func (s *SQLiteStore) Open(path string) error {
	dsn := path + "?_pragma=busy_timeout(5000)"
	if path != ":memory:" {
		dsn += "&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// Workers checkpoint concurrently; a single connection serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	s.db = db
	s.path = path
	s.logger.Debug("opened checkpoint store", slog.String("path", path))
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// --- Run operations ---

// StartRun records a new running run.
func (s *SQLiteStore) StartRun(ctx context.Context, source, mode string) (*Run, error) {
	if s.db == nil {
		return nil, errNotOpened
	}

	run := &Run{
		ID:        uuid.New().String(),
		Source:    source,
		Mode:      mode,
		Status:    RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, source, mode, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Source, run.Mode, run.Status, run.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

// FinishRun marks a run as completed or failed.
func (s *SQLiteStore) FinishRun(ctx context.Context, id string, status RunStatus, errMsg string) error {
	if s.db == nil {
		return errNotOpened
	}

	var errorPtr *string
	if errMsg != "" {
		errorPtr = &errMsg
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		status, time.Now().UTC(), errorPtr, id,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("run not found: %s", id)
	}
	return nil
}

// LatestRun returns the most recent run for source, or nil if there is none.
func (s *SQLiteStore) LatestRun(ctx context.Context, source string) (*Run, error) {
	if s.db == nil {
		return nil, errNotOpened
	}

	run := &Run{}
	var completedAt sql.NullTime
	var errMsg sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, source, mode, status, started_at, completed_at, error
		 FROM runs WHERE source = ? ORDER BY started_at DESC LIMIT 1`,
		source,
	).Scan(&run.ID, &run.Source, &run.Mode, &run.Status, &run.StartedAt, &completedAt, &errMsg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}

	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	if errMsg.Valid {
		run.Error = errMsg.String
	}
	return run, nil
}

// --- Checkpoint operations ---

// DefinitionsDone reports whether the definitions of source are committed.
func (s *SQLiteStore) DefinitionsDone(ctx context.Context, source string) (bool, error) {
	if s.db == nil {
		return false, errNotOpened
	}

	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM definitions WHERE source = ?`, source).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to read definitions checkpoint: %w", err)
	}
	return n > 0, nil
}

// MarkDefinitionsDone records that the definitions of source are committed.
func (s *SQLiteStore) MarkDefinitionsDone(ctx context.Context, source string, statements int) error {
	if s.db == nil {
		return errNotOpened
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO definitions (source, statements, completed_at) VALUES (?, ?, ?)
		 ON CONFLICT (source) DO UPDATE SET statements = excluded.statements, completed_at = excluded.completed_at`,
		source, statements, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save definitions checkpoint: %w", err)
	}
	return nil
}

// TableProgress returns the checkpoint of a segment. A segment without a
// checkpoint reports zero completed statements.
func (s *SQLiteStore) TableProgress(ctx context.Context, source string, segment int) (TableProgress, error) {
	if s.db == nil {
		return TableProgress{}, errNotOpened
	}

	p := TableProgress{Segment: segment}
	err := s.db.QueryRowContext(ctx,
		`SELECT table_name, completed, total FROM table_progress WHERE source = ? AND segment = ?`,
		source, segment,
	).Scan(&p.Table, &p.Completed, &p.Total)
	if errors.Is(err, sql.ErrNoRows) {
		return p, nil
	}
	if err != nil {
		return p, fmt.Errorf("failed to read table checkpoint: %w", err)
	}
	return p, nil
}

// SaveTableProgress records the checkpoint of a segment.
func (s *SQLiteStore) SaveTableProgress(ctx context.Context, source string, p TableProgress) error {
	if s.db == nil {
		return errNotOpened
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO table_progress (source, segment, table_name, completed, total, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (source, segment) DO UPDATE SET
		   table_name = excluded.table_name,
		   completed = excluded.completed,
		   total = excluded.total,
		   updated_at = excluded.updated_at`,
		source, p.Segment, p.Table, p.Completed, p.Total, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save table checkpoint: %w", err)
	}
	return nil
}

// ListTableProgress returns every segment checkpoint of source.
func (s *SQLiteStore) ListTableProgress(ctx context.Context, source string) ([]TableProgress, error) {
	if s.db == nil {
		return nil, errNotOpened
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT segment, table_name, completed, total FROM table_progress WHERE source = ? ORDER BY segment`,
		source,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list table checkpoints: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []TableProgress
	for rows.Next() {
		var p TableProgress
		if err := rows.Scan(&p.Segment, &p.Table, &p.Completed, &p.Total); err != nil {
			return nil, fmt.Errorf("failed to scan table checkpoint: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ReplayProgress returns how many statements a whole-file replay of source
// has committed.
func (s *SQLiteStore) ReplayProgress(ctx context.Context, source string) (int, error) {
	if s.db == nil {
		return 0, errNotOpened
	}

	var completed int
	err := s.db.QueryRowContext(ctx,
		`SELECT completed FROM replay_progress WHERE source = ?`, source,
	).Scan(&completed)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read replay checkpoint: %w", err)
	}
	return completed, nil
}

// SaveReplayProgress records the committed statement count of a replay.
func (s *SQLiteStore) SaveReplayProgress(ctx context.Context, source string, completed, total int) error {
	if s.db == nil {
		return errNotOpened
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO replay_progress (source, completed, total, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (source) DO UPDATE SET
		   completed = excluded.completed,
		   total = excluded.total,
		   updated_at = excluded.updated_at`,
		source, completed, total, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save replay checkpoint: %w", err)
	}
	return nil
}

// Reset drops every checkpoint of source. Run history is kept.
func (s *SQLiteStore) Reset(ctx context.Context, source string) error {
	if s.db == nil {
		return errNotOpened
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin reset: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"definitions", "table_progress", "replay_progress"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE source = ?`, source); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reset: %w", err)
	}

	s.logger.Debug("reset checkpoints", slog.String("source", source))
	return nil
}
