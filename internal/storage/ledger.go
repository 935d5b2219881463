package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/codebuildervaibhav/transcript-queue/internal/types"
)

// Ledger is a local SQLite database holding the attempt history and, when
// enabled, per-item leases shared by workers on the same host.
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// OpenLedger opens or creates the ledger at dbPath.
func OpenLedger(dbPath string) (*Ledger, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	schema := `
	PRAGMA busy_timeout = 5000;
	PRAGMA journal_mode = WAL;

	CREATE TABLE IF NOT EXISTS attempts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		pass_id TEXT NOT NULL,
		role TEXT NOT NULL,
		row_number INTEGER NOT NULL,
		item_id TEXT NOT NULL,
		outcome TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		duration_ms INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_attempts_created_at ON attempts(created_at);
	CREATE INDEX IF NOT EXISTS idx_attempts_item_id ON attempts(item_id);

	CREATE TABLE IF NOT EXISTS leases (
		item_id TEXT PRIMARY KEY,
		holder TEXT NOT NULL,
		expires_at INTEGER NOT NULL
	);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &Ledger{db: db, now: time.Now}, nil
}

// RecordAttempt appends one row-level attempt.
func (l *Ledger) RecordAttempt(ctx context.Context, a types.Attempt) error {
	created := a.CreatedAt
	if created.IsZero() {
		created = l.now()
	}
	_, err := l.db.ExecContext(ctx, `
	INSERT INTO attempts (pass_id, role, row_number, item_id, outcome, status, error, duration_ms, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.PassID, a.Role, a.Row, a.ItemID, a.Outcome, a.Status, a.Error,
		a.Duration.Milliseconds(), created.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save attempt: %w", err)
	}
	return nil
}

// RecentAttempts returns the newest attempts first. An empty itemID means all items.
func (l *Ledger) RecentAttempts(ctx context.Context, itemID string, limit int) ([]types.Attempt, error) {
	query := `
	SELECT pass_id, role, row_number, item_id, outcome, status, error, duration_ms, created_at
	FROM attempts`
	args := []interface{}{}
	if itemID != "" {
		query += ` WHERE item_id = ?`
		args = append(args, itemID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	defer rows.Close()

	var attempts []types.Attempt
	for rows.Next() {
		var (
			a          types.Attempt
			durationMs int64
			createdMs  int64
		)
		if err := rows.Scan(&a.PassID, &a.Role, &a.Row, &a.ItemID, &a.Outcome, &a.Status, &a.Error, &durationMs, &createdMs); err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		a.Duration = time.Duration(durationMs) * time.Millisecond
		a.CreatedAt = time.UnixMilli(createdMs)
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// Acquire takes the lease on itemID for holder. An expired lease, or one
// already held by holder, is taken over; a live lease held by someone else is not.
func (l *Ledger) Acquire(ctx context.Context, itemID, holder string, ttl time.Duration) (bool, error) {
	now := l.now()
	res, err := l.db.ExecContext(ctx, `
	INSERT INTO leases (item_id, holder, expires_at) VALUES (?, ?, ?)
	ON CONFLICT(item_id) DO UPDATE SET holder = excluded.holder, expires_at = excluded.expires_at
	WHERE leases.expires_at <= ? OR leases.holder = excluded.holder`,
		itemID, holder, now.Add(ttl).UnixNano(), now.UnixNano())
	if err != nil {
		return false, fmt.Errorf("acquire lease %s: %w", itemID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Release drops holder's lease on itemID. Releasing a lease held by someone
// else is a no-op.
func (l *Ledger) Release(ctx context.Context, itemID, holder string) error {
	if _, err := l.db.ExecContext(ctx, `DELETE FROM leases WHERE item_id = ? AND holder = ?`, itemID, holder); err != nil {
		return fmt.Errorf("release lease %s: %w", itemID, err)
	}
	return nil
}

// Close closes the database connection
func (l *Ledger) Close() error {
	return l.db.Close()
}
