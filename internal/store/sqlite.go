package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/ideaboard/internal/model"
)

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Every connection to :memory: is a separate database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	// Check if schema_version table exists.
	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// SaveState replaces the cached records and tombstones in one transaction.
func (s *SQLiteStore) SaveState(
	ctx context.Context,
	records []model.Notification,
	tombstones []model.Tombstone,
) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM notifications"); err != nil {
		return fmt.Errorf("clearing notifications: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM tombstones"); err != nil {
		return fmt.Errorf("clearing tombstones: %w", err)
	}

	if len(records) > 0 {
		const query = `
			INSERT INTO notifications (
				id, title, message, type,
				category, priority, created_at,
				read, read_at, link, source_version
			) VALUES (
				?, ?, ?, ?,
				?, ?, ?,
				?, ?, ?, ?
			)`

		stmt, err := tx.PreparexContext(ctx, query)
		if err != nil {
			return fmt.Errorf("preparing notification insert: %w", err)
		}
		defer stmt.Close()

		for _, n := range records {
			var readAt sql.NullTime
			if n.ReadAt != nil {
				readAt = sql.NullTime{Time: n.ReadAt.UTC(), Valid: true}
			}
			_, err = stmt.ExecContext(ctx,
				n.ID, n.Title, n.Message, string(n.Type),
				n.Category, string(n.Priority), n.CreatedAt.UTC(),
				boolToInt(n.Read), readAt, n.Link, n.SourceVersion,
			)
			if err != nil {
				return fmt.Errorf("inserting notification %s: %w", n.ID, err)
			}
		}
	}

	if len(tombstones) > 0 {
		stmt, err := tx.PreparexContext(ctx,
			"INSERT INTO tombstones (id, source_version, expires_at) VALUES (?, ?, ?)")
		if err != nil {
			return fmt.Errorf("preparing tombstone insert: %w", err)
		}
		defer stmt.Close()

		for _, ts := range tombstones {
			if _, err := stmt.ExecContext(ctx, ts.ID, ts.SourceVersion, ts.ExpiresAt.UTC()); err != nil {
				return fmt.Errorf("inserting tombstone %s: %w", ts.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing state: %w", err)
	}
	return nil
}

// LoadState returns the cached records, newest first, and tombstones.
func (s *SQLiteStore) LoadState(ctx context.Context) ([]model.Notification, []model.Tombstone, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT id, title, message, type, category, priority,
			created_at, read, read_at, link, source_version
		FROM notifications
		ORDER BY created_at DESC, id ASC`)
	if err != nil {
		return nil, nil, fmt.Errorf("querying notifications: %w", err)
	}
	defer rows.Close()

	var records []model.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, nil, err
		}
		records = append(records, n)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterating notifications: %w", err)
	}

	tsRows, err := s.db.QueryxContext(ctx,
		"SELECT id, source_version, expires_at FROM tombstones ORDER BY id")
	if err != nil {
		return nil, nil, fmt.Errorf("querying tombstones: %w", err)
	}
	defer tsRows.Close()

	var tombstones []model.Tombstone
	for tsRows.Next() {
		var ts model.Tombstone
		if err := tsRows.Scan(&ts.ID, &ts.SourceVersion, &ts.ExpiresAt); err != nil {
			return nil, nil, fmt.Errorf("scanning tombstone row: %w", err)
		}
		tombstones = append(tombstones, ts)
	}
	if err := tsRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterating tombstones: %w", err)
	}

	return records, tombstones, nil
}

// PurgeExpiredTombstones deletes tombstones that expired before now.
func (s *SQLiteStore) PurgeExpiredTombstones(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM tombstones WHERE expires_at <= ?", now.UTC())
	if err != nil {
		return 0, fmt.Errorf("purging tombstones: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting purged tombstones: %w", err)
	}
	return n, nil
}

// GetCursor returns the stored incremental cursor, or "" if none.
func (s *SQLiteStore) GetCursor(ctx context.Context) (string, error) {
	var cursor string
	err := s.db.GetContext(ctx, &cursor, "SELECT value FROM sync_state WHERE key = ?", cursorKey)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading sync cursor: %w", err)
	}
	return cursor, nil
}

// SetCursor stores the incremental cursor.
func (s *SQLiteStore) SetCursor(ctx context.Context, cursor string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_state (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		cursorKey, cursor, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("writing sync cursor: %w", err)
	}
	return nil
}

// scanNotification scans a notification row from a sqlx.Rows result set.
func scanNotification(rows *sqlx.Rows) (model.Notification, error) {
	var (
		n         model.Notification
		typ       string
		priority  string
		readInt   int
		readAt    sql.NullTime
		createdAt time.Time
	)

	err := rows.Scan(
		&n.ID, &n.Title, &n.Message, &typ, &n.Category, &priority,
		&createdAt, &readInt, &readAt, &n.Link, &n.SourceVersion,
	)
	if err != nil {
		return model.Notification{}, fmt.Errorf("scanning notification row: %w", err)
	}

	n.Type = model.NotificationType(typ)
	n.Priority = model.Priority(priority)
	n.CreatedAt = createdAt.UTC()
	n.Read = readInt != 0
	if readAt.Valid {
		at := readAt.Time.UTC()
		n.ReadAt = &at
	}

	return n, nil
}

// boolToInt converts a boolean to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
