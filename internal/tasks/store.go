package tasks

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"mediapress/internal/config"
)

// Store manages task persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the task database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.LogDir, "tasks.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
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

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// CreateParams describes a new task row.
type CreateParams struct {
	ID               string
	UserID           string
	OriginalFilename string
	SourcePath       string
}

// Create inserts a new queued task. When params.ID is empty a fresh UUID is
// assigned.
func (s *Store) Create(ctx context.Context, params CreateParams) (*Task, error) {
	if strings.TrimSpace(params.UserID) == "" {
		return nil, errors.New("user id is required")
	}
	id := strings.TrimSpace(params.ID)
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO media_tasks (
            id, user_id, original_filename, status, progress, source_path, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		params.UserID,
		params.OriginalFilename,
		StatusQueued,
		0,
		nullableString(params.SourcePath),
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID fetches a task by identifier. It returns (nil, nil) when unknown.
func (s *Store) GetByID(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM media_tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// Apply merges the provided fields into a task row and bumps updated_at.
// Writes against tasks whose stored status is already terminal are silently
// dropped, and progress never moves backwards. This is the single guard that
// makes duplicate or reordered checkpoint writes from retried job deliveries
// safe.
func (s *Store) Apply(ctx context.Context, id string, patch Patch) error {
	assignments := make([]string, 0, 8)
	args := make([]any, 0, 10)

	if patch.Status != nil {
		assignments = append(assignments, "status = ?")
		args = append(args, *patch.Status)
	}
	if patch.Progress != nil {
		assignments = append(assignments, "progress = max(progress, ?)")
		args = append(args, *patch.Progress)
	}
	if patch.JobHandle != nil {
		assignments = append(assignments, "job_handle = ?")
		args = append(args, nullableString(*patch.JobHandle))
	}
	if patch.SourcePath != nil {
		assignments = append(assignments, "source_path = ?")
		args = append(args, nullableString(*patch.SourcePath))
	}
	if patch.ThumbnailPath != nil {
		assignments = append(assignments, "thumbnail_path = ?")
		args = append(args, nullableString(*patch.ThumbnailPath))
	}
	if patch.Outputs != nil {
		encoded, err := json.Marshal(patch.Outputs)
		if err != nil {
			return fmt.Errorf("marshal outputs: %w", err)
		}
		assignments = append(assignments, "outputs_json = ?")
		args = append(args, string(encoded))
	}
	if patch.ErrorMessage != nil {
		assignments = append(assignments, "error_message = ?")
		args = append(args, nullableString(*patch.ErrorMessage))
	}
	if len(assignments) == 0 {
		return nil
	}

	assignments = append(assignments, "updated_at = ?")
	args = append(args, time.Now().UTC().Format(time.RFC3339Nano))
	args = append(args, id, StatusCompleted, StatusFailed)

	query := `UPDATE media_tasks SET ` + strings.Join(assignments, ", ") +
		` WHERE id = ? AND status NOT IN (?, ?)`
	if _, err := s.execWithRetry(ctx, query, args...); err != nil {
		return fmt.Errorf("apply task patch: %w", err)
	}
	return nil
}

// CountActiveForUser returns how many queued or processing tasks a user holds.
func (s *Store) CountActiveForUser(ctx context.Context, userID string) (int, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM media_tasks WHERE user_id = ? AND status IN (?, ?)`,
		userID,
		StatusQueued,
		StatusProcessing,
	)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count active tasks: %w", err)
	}
	return count, nil
}

// List returns tasks filtered by status set (or all tasks when no status is
// provided), oldest first.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Task, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + taskColumns + ` FROM media_tasks`
	orderClause := ` ORDER BY created_at`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		rows, err = s.db.QueryContext(ctx, baseQuery+` WHERE status IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var items []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, task)
	}
	return items, rows.Err()
}

// QueuedTaskIDs returns the identifiers of queued tasks, oldest first. The
// dispatcher uses this to re-enqueue work after a restart.
func (s *Store) QueuedTaskIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM media_tasks WHERE status = ? ORDER BY created_at`, StatusQueued)
	if err != nil {
		return nil, fmt.Errorf("query queued tasks: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RequeueInterrupted returns processing tasks back to queued. Called on
// daemon startup so tasks whose workers died with the previous process get
// picked up again; committed progress is preserved.
func (s *Store) RequeueInterrupted(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE media_tasks SET status = ?, job_handle = NULL, updated_at = ? WHERE status = ?`,
		StatusQueued,
		time.Now().UTC().Format(time.RFC3339Nano),
		StatusProcessing,
	)
	if err != nil {
		return 0, fmt.Errorf("requeue interrupted tasks: %w", err)
	}
	return res.RowsAffected()
}

// Stats returns a count of tasks grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM media_tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("task stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// CountByStatusSince tallies tasks created at or after the cutoff, grouped by
// status. The periodic report job uses a trailing 24 hour window.
func (s *Store) CountByStatusSince(ctx context.Context, cutoff time.Time) (map[Status]int, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT status, COUNT(1) FROM media_tasks WHERE created_at >= ? GROUP BY status`,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// Remove deletes a task by identifier.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM media_tasks WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ClearCompleted removes only completed tasks.
func (s *Store) ClearCompleted(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM media_tasks WHERE status = ?`, StatusCompleted)
	if err != nil {
		return 0, fmt.Errorf("clear completed: %w", err)
	}
	return res.RowsAffected()
}

// ClearFailed removes only failed tasks.
func (s *Store) ClearFailed(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM media_tasks WHERE status = ?`, StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("clear failed: %w", err)
	}
	return res.RowsAffected()
}

const taskColumns = "id, user_id, original_filename, status, progress, job_handle, source_path, thumbnail_path, outputs_json, error_message, created_at, updated_at"

func scanTask(scanner interface{ Scan(dest ...any) error }) (*Task, error) {
	var (
		id            string
		userID        string
		origName      string
		statusStr     string
		progress      int
		jobHandle     sql.NullString
		sourcePath    sql.NullString
		thumbnailPath sql.NullString
		outputsJSON   sql.NullString
		errorMessage  sql.NullString
		createdRaw    string
		updatedRaw    string
	)

	if err := scanner.Scan(
		&id,
		&userID,
		&origName,
		&statusStr,
		&progress,
		&jobHandle,
		&sourcePath,
		&thumbnailPath,
		&outputsJSON,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	task := &Task{
		ID:               id,
		UserID:           userID,
		OriginalFilename: origName,
		Status:           Status(statusStr),
		Progress:         progress,
		JobHandle:        jobHandle.String,
		SourcePath:       sourcePath.String,
		ThumbnailPath:    thumbnailPath.String,
		OutputsJSON:      outputsJSON.String,
		ErrorMessage:     errorMessage.String,
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		task.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		task.UpdatedAt = updated
	}
	return task, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
