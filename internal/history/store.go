package history

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"vocalsplit/internal/config"
	"vocalsplit/internal/jobs"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped whenever schema.sql changes. Older journals must be
// deleted; they hold audit data only.
const schemaVersion = 1

// ErrSchemaMismatch indicates the journal was written by a different schema.
var ErrSchemaMismatch = errors.New("history schema version mismatch")

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Event is one recorded status change.
type Event struct {
	ID           int64       `json:"id"`
	JobID        string      `json:"job_id"`
	Filename     string      `json:"filename"`
	MediaKind    string      `json:"media_kind"`
	From         jobs.Status `json:"from,omitempty"`
	To           jobs.Status `json:"to"`
	Progress     int         `json:"progress"`
	ResultPath   string      `json:"result_path,omitempty"`
	ErrorMessage string      `json:"error_message,omitempty"`
	RecordedAt   time.Time   `json:"recorded_at"`
}

// EventFromJobs builds the journal entry for a registry commit. prev is the
// zero Job for a freshly created record.
func EventFromJobs(prev, next jobs.Job) Event {
	return Event{
		JobID:        next.ID,
		Filename:     next.OriginalFilename,
		MediaKind:    string(next.MediaKind),
		From:         prev.Status,
		To:           next.Status,
		Progress:     next.Progress,
		ResultPath:   next.ResultPath,
		ErrorMessage: next.ErrorMessage,
		RecordedAt:   next.UpdatedAt,
	}
}

// Store persists events in sqlite.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates or reuses the journal at cfg.HistoryPath().
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.HistoryPath()
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// Append records evt and returns it with its assigned ID.
func (s *Store) Append(ctx context.Context, evt Event) (Event, error) {
	if strings.TrimSpace(evt.JobID) == "" {
		return Event{}, errors.New("history event requires a job id")
	}
	if evt.RecordedAt.IsZero() {
		evt.RecordedAt = time.Now()
	}
	evt.RecordedAt = evt.RecordedAt.UTC()

	var res sql.Result
	err := retryOnBusy(ctx, func() error {
		var execErr error
		res, execErr = s.db.ExecContext(ctx,
			`INSERT INTO job_events (
                job_id, filename, media_kind, from_status, to_status,
                progress, result_path, error_message, recorded_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			evt.JobID,
			evt.Filename,
			evt.MediaKind,
			nullableString(string(evt.From)),
			string(evt.To),
			evt.Progress,
			nullableString(evt.ResultPath),
			nullableString(evt.ErrorMessage),
			evt.RecordedAt.Format(time.RFC3339Nano),
		)
		return execErr
	})
	if err != nil {
		return Event{}, fmt.Errorf("insert history event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Event{}, fmt.Errorf("last insert id: %w", err)
	}
	evt.ID = id
	return evt, nil
}

const eventColumns = "id, job_id, filename, media_kind, from_status, to_status, progress, result_path, error_message, recorded_at"

// ForJob returns every event for id in recording order.
func (s *Store) ForJob(ctx context.Context, id string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+eventColumns+" FROM job_events WHERE job_id = ? ORDER BY id", id)
	if err != nil {
		return nil, fmt.Errorf("query job history: %w", err)
	}
	return collectEvents(rows)
}

// Recent returns up to limit of the newest events, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+eventColumns+" FROM job_events ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("query recent history: %w", err)
	}
	return collectEvents(rows)
}

// Outcomes counts terminal events by status.
func (s *Store) Outcomes(ctx context.Context) (map[jobs.Status]int, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT to_status, COUNT(1) FROM job_events WHERE to_status IN (?, ?) GROUP BY to_status",
		string(jobs.StatusCompleted), string(jobs.StatusError))
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	out := make(map[jobs.Status]int)
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		out[jobs.Status(status)] = count
	}
	return out, rows.Err()
}

// Prune deletes events recorded before cutoff and reports how many went.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	var res sql.Result
	err := retryOnBusy(ctx, func() error {
		var execErr error
		res, execErr = s.db.ExecContext(ctx,
			"DELETE FROM job_events WHERE recorded_at < ?", cutoff.UTC().Format(time.RFC3339Nano))
		return execErr
	})
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return res.RowsAffected()
}

func collectEvents(rows *sql.Rows) ([]Event, error) {
	defer rows.Close()
	var events []Event
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return events, nil
}

func scanEvent(scanner interface{ Scan(dest ...any) error }) (Event, error) {
	var (
		evt          Event
		fromStatus   sql.NullString
		toStatus     string
		resultPath   sql.NullString
		errorMessage sql.NullString
		recordedRaw  string
	)
	if err := scanner.Scan(
		&evt.ID,
		&evt.JobID,
		&evt.Filename,
		&evt.MediaKind,
		&fromStatus,
		&toStatus,
		&evt.Progress,
		&resultPath,
		&errorMessage,
		&recordedRaw,
	); err != nil {
		return Event{}, fmt.Errorf("scan history event: %w", err)
	}
	evt.From = jobs.Status(fromStatus.String)
	evt.To = jobs.Status(toStatus)
	evt.ResultPath = resultPath.String
	evt.ErrorMessage = errorMessage.String
	if ts, err := time.Parse(time.RFC3339Nano, recordedRaw); err == nil {
		evt.RecordedAt = ts
	}
	return evt, nil
}

func nullableString(value string) sql.NullString {
	if strings.TrimSpace(value) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}
