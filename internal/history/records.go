package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Record is one finished task.
type Record struct {
	TaskID      string    `json:"task_id"`
	SourceName  string    `json:"source_name"`
	InputBytes  int64     `json:"input_bytes"`
	InputSHA256 string    `json:"input_sha256,omitempty"`
	OutputPath  string    `json:"output_path,omitempty"`
	Status      string    `json:"status"`
	ErrorKind   string    `json:"error_kind,omitempty"`
	Error       string    `json:"error,omitempty"`
	Segments    int       `json:"segments"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

// Duration returns the wall time between start and finish.
func (r Record) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.Before(r.StartedAt) {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

const recordColumns = `task_id, source_name, input_bytes, input_sha256, output_path,
    status, error_kind, error_message, segments, started_at, finished_at`

// Record stores rec. Recording the same task twice replaces the earlier row.
func (s *Store) Record(ctx context.Context, rec Record) error {
	if strings.TrimSpace(rec.TaskID) == "" {
		return errors.New("record history: task id is required")
	}
	if strings.TrimSpace(rec.Status) == "" {
		return errors.New("record history: status is required")
	}
	if rec.FinishedAt.IsZero() {
		rec.FinishedAt = time.Now()
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = rec.FinishedAt
	}
	_, err := s.execWithRetry(ctx,
		`INSERT OR REPLACE INTO task_history (`+recordColumns+`)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.TaskID,
		rec.SourceName,
		rec.InputBytes,
		nullableString(rec.InputSHA256),
		nullableString(rec.OutputPath),
		rec.Status,
		nullableString(rec.ErrorKind),
		nullableString(rec.Error),
		rec.Segments,
		formatTime(rec.StartedAt),
		formatTime(rec.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("record history %s: %w", rec.TaskID, err)
	}
	return nil
}

// Get returns the record for taskID, or nil when none exists.
func (s *Store) Get(ctx context.Context, taskID string) (*Record, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+recordColumns+` FROM task_history WHERE task_id = ?`, taskID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get history %s: %w", taskID, err)
	}
	return &rec, nil
}

// List returns the most recently finished records first. A non-positive
// limit returns every row.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	query := `SELECT ` + recordColumns + ` FROM task_history ORDER BY finished_at DESC, task_id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Stats returns a count of records grouped by status.
func (s *Store) Stats(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT status, COUNT(1) FROM task_history GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("history stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Prune deletes records that finished before cutoff and reports how many
// were removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM task_history WHERE finished_at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return res.RowsAffected()
}

func scanRecord(scanner interface{ Scan(dest ...any) error }) (Record, error) {
	var (
		rec                        Record
		sha, output, kind, message sql.NullString
		startedRaw, finishedRaw    string
	)
	if err := scanner.Scan(
		&rec.TaskID,
		&rec.SourceName,
		&rec.InputBytes,
		&sha,
		&output,
		&rec.Status,
		&kind,
		&message,
		&rec.Segments,
		&startedRaw,
		&finishedRaw,
	); err != nil {
		return Record{}, err
	}
	rec.InputSHA256 = sha.String
	rec.OutputPath = output.String
	rec.ErrorKind = kind.String
	rec.Error = message.String
	if t, err := parseTimeString(startedRaw); err == nil {
		rec.StartedAt = t
	}
	if t, err := parseTimeString(finishedRaw); err == nil {
		rec.FinishedAt = t
	}
	return rec, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

// timeLayout keeps a fixed-width fraction so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	return time.Parse(time.RFC3339Nano, value)
}
