package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Every pooled connection to :memory: would get its own database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
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

// SchemaVersion returns the highest applied migration.
func (s *SQLiteStore) SchemaVersion() (int, error) {
	var v int
	err := s.db.Get(&v, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
	return v, err
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
		currentVersion, err = s.SchemaVersion()
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

// RecordImage inserts or replaces the cache entry for a notification.
func (s *SQLiteStore) RecordImage(ctx context.Context, img CachedImage) error {
	if img.FetchedAt.IsZero() {
		img.FetchedAt = time.Now()
	}
	img.FetchedAt = img.FetchedAt.UTC()

	_, err := s.db.NamedExecContext(ctx, `
		INSERT OR REPLACE INTO image_cache (
			notification_id, source_url, path, size_bytes, fetched_at
		) VALUES (
			:notification_id, :source_url, :path, :size_bytes, :fetched_at
		)`, img)
	if err != nil {
		return fmt.Errorf("recording image for %s: %w", img.NotificationID, err)
	}
	return nil
}

// ImageFor returns the cached image of a notification, or ErrNotFound.
func (s *SQLiteStore) ImageFor(ctx context.Context, notificationID string) (*CachedImage, error) {
	var img CachedImage
	err := s.db.GetContext(ctx, &img,
		"SELECT * FROM image_cache WHERE notification_id = ?", notificationID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting image for %s: %w", notificationID, err)
	}
	return &img, nil
}

// CachedImages lists every cache entry, newest first.
func (s *SQLiteStore) CachedImages(ctx context.Context) ([]CachedImage, error) {
	var imgs []CachedImage
	if err := s.db.SelectContext(ctx, &imgs,
		"SELECT * FROM image_cache ORDER BY fetched_at DESC"); err != nil {
		return nil, fmt.Errorf("listing cached images: %w", err)
	}
	return imgs, nil
}

// ClearImages drops the whole cache index. Files are removed by the caller.
func (s *SQLiteStore) ClearImages(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM image_cache"); err != nil {
		return fmt.Errorf("clearing image cache: %w", err)
	}
	return nil
}

// MarkPresented records an alert. The insert is ignored when the id is
// already present, which is how a replayed notification is detected.
func (s *SQLiteStore) MarkPresented(ctx context.Context, notificationID, title string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO presented_alerts (notification_id, title, presented_at)
		VALUES (?, ?, ?)`,
		notificationID, title, at.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("marking %s presented: %w", notificationID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("marking %s presented: %w", notificationID, err)
	}
	return n == 1, nil
}

// UnmarkPresented deletes the ledger entry for notificationID, if any.
func (s *SQLiteStore) UnmarkPresented(ctx context.Context, notificationID string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM presented_alerts WHERE notification_id = ?", notificationID)
	if err != nil {
		return fmt.Errorf("unmarking %s presented: %w", notificationID, err)
	}
	return nil
}

// PresentedSince counts alerts shown at or after since.
func (s *SQLiteStore) PresentedSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		"SELECT COUNT(*) FROM presented_alerts WHERE presented_at >= ?", since.UTC())
	if err != nil {
		return 0, fmt.Errorf("counting presented alerts: %w", err)
	}
	return n, nil
}

// PrunePresented forgets alerts shown before the cutoff.
func (s *SQLiteStore) PrunePresented(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM presented_alerts WHERE presented_at < ?", before.UTC())
	if err != nil {
		return 0, fmt.Errorf("pruning presented alerts: %w", err)
	}
	return res.RowsAffected()
}
