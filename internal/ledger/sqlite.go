package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS sync_records (
	cache_key TEXT PRIMARY KEY,
	last_synced_at INTEGER NOT NULL,
	cursor TEXT NOT NULL DEFAULT ''
);
`

// SQLiteLedger persists records in a SQLite table so freshness survives restarts.
type SQLiteLedger struct {
	db    *sql.DB
	clock Clock
}

// OpenSQLite opens (or creates) the ledger database and its schema.
func OpenSQLite(ctx context.Context, path string, opts ...Option) (*SQLiteLedger, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// a single connection serializes writers and keeps :memory: databases shared
	db.SetMaxOpenConns(1)

	l := &SQLiteLedger{db: db, clock: buildOptions(opts).clock}
	if err := l.init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

func (l *SQLiteLedger) init(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("enable wal: %w", err)
	}
	if _, err := l.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}

func (l *SQLiteLedger) Get(ctx context.Context, key string) (SyncRecord, bool, error) {
	if key == "" {
		return SyncRecord{}, false, nil
	}
	var (
		syncedAt int64
		cursor   string
	)
	err := l.db.QueryRowContext(ctx,
		`SELECT last_synced_at, cursor FROM sync_records WHERE cache_key = ?`, key,
	).Scan(&syncedAt, &cursor)
	if errors.Is(err, sql.ErrNoRows) {
		return SyncRecord{}, false, nil
	}
	if err != nil {
		return SyncRecord{}, false, fmt.Errorf("get sync record %s: %w", key, err)
	}
	return SyncRecord{Key: key, LastSyncedAt: time.Unix(0, syncedAt), Cursor: cursor}, true, nil
}

func (l *SQLiteLedger) IsFresh(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	rec, ok, err := l.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	return fresh(rec, l.clock(), ttl), nil
}

func (l *SQLiteLedger) RecordSuccess(ctx context.Context, key, cursor string) error {
	if key == "" {
		return nil
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO sync_records (cache_key, last_synced_at, cursor)
		VALUES (?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			last_synced_at = excluded.last_synced_at,
			cursor = excluded.cursor
	`, key, l.clock().UnixNano(), cursor)
	if err != nil {
		return fmt.Errorf("record sync %s: %w", key, err)
	}
	return nil
}

func (l *SQLiteLedger) Invalidate(ctx context.Context, key string) error {
	if _, err := l.db.ExecContext(ctx, `DELETE FROM sync_records WHERE cache_key = ?`, key); err != nil {
		return fmt.Errorf("invalidate %s: %w", key, err)
	}
	return nil
}

func (l *SQLiteLedger) Reset(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, `DELETE FROM sync_records`); err != nil {
		return fmt.Errorf("reset ledger: %w", err)
	}
	return nil
}
