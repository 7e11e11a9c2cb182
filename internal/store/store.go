package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// CachedImage is a notification image downloaded to the local cache.
type CachedImage struct {
	NotificationID string    `db:"notification_id"`
	SourceURL      string    `db:"source_url"`
	Path           string    `db:"path"`
	SizeBytes      int64     `db:"size_bytes"`
	FetchedAt      time.Time `db:"fetched_at"`
}

// Store defines the local persistence the client keeps between runs:
// the image cache index and the ledger of alerts already shown.
type Store interface {
	// === Image cache ===

	RecordImage(ctx context.Context, img CachedImage) error
	ImageFor(ctx context.Context, notificationID string) (*CachedImage, error)
	CachedImages(ctx context.Context) ([]CachedImage, error)
	ClearImages(ctx context.Context) error

	// === Presented alerts ===

	// MarkPresented records the alert and reports whether this is the
	// first time the id was presented.
	MarkPresented(ctx context.Context, notificationID, title string, at time.Time) (bool, error)
	// UnmarkPresented forgets one alert so it can be presented again.
	UnmarkPresented(ctx context.Context, notificationID string) error
	PresentedSince(ctx context.Context, since time.Time) (int, error)
	PrunePresented(ctx context.Context, before time.Time) (int64, error)

	Close() error
}
