package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// timeLayout is fixed-width so created_at strings sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrInvalidEntry is returned by Record for an entry missing kind or source.
var ErrInvalidEntry = errors.New("history: invalid entry")

// SQLiteRepository implements Repository on the activity table.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository wraps an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// Record inserts e. A zero CreatedAt is stamped with the current time.
func (r *SQLiteRepository) Record(ctx context.Context, e Entry) error {
	if e.Kind == "" || e.Source == "" {
		return fmt.Errorf("%w: kind and source are required", ErrInvalidEntry)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.now()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO activity (kind, roll, detail, source, session_id, registry_size, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Kind, e.Roll, e.Detail, e.Source, e.SessionID, e.RegistrySize,
		e.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting activity: %w", err)
	}
	return nil
}

// List returns entries newest first.
func (r *SQLiteRepository) List(ctx context.Context, f Filter) ([]Entry, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	var where []string
	var args []any
	if f.Roll != "" {
		where = append(where, "roll = ?")
		args = append(args, f.Roll)
	}
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, f.Kind)
	}

	query := `SELECT id, kind, roll, detail, source, session_id, registry_size, created_at FROM activity`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying activity: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var e Entry
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Kind, &e.Roll, &e.Detail, &e.Source, &e.SessionID, &e.RegistrySize, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning activity: %w", err)
		}
		if e.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating activity: %w", err)
	}
	return entries, nil
}

// Prune deletes entries older than now-olderThan and returns the count.
func (r *SQLiteRepository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := r.now().Add(-olderThan).UTC().Format(timeLayout)
	res, err := r.db.ExecContext(ctx, "DELETE FROM activity WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting activity: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}
