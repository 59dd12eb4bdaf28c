// Package store is the durable item store: a local SQLite-backed queue of
// pending media items that survives process restarts.
//
// Records are written whole. Every mutation replaces the full encoded payload
// of an item rather than patching individual columns, which removes the class
// of races where one field write clobbers another. After every write the
// just-written payload is read back and deep-compared against the input;
// any drift leaves the record flagged for manual review instead of being
// silently accepted.
package store

import (
	"context"
	"time"

	"github.com/vendora/mediasync/internal/models"
)

// Repository is the durable queue contract used by the publishing feature
// and the upload coordinator.
type Repository interface {
	// Enqueue validates and persists a complete item atomically, verifies
	// the stored payload by read-back, and returns the item id.
	Enqueue(ctx context.Context, item *models.PendingMediaItem) (string, error)

	// GetByID returns the stored item or common.ErrNotFound.
	GetByID(ctx context.Context, id string) (*models.PendingMediaItem, error)

	// DequeueNext atomically claims the oldest Pending item, or Failed item
	// whose retry backoff has elapsed by now, marking it Uploading so no
	// other worker can claim it. Returns (nil, nil) when nothing is eligible.
	DequeueNext(ctx context.Context, now time.Time) (*models.PendingMediaItem, error)

	// Update replaces the entire stored record. The classification column is
	// write-once; an update carrying a different classification is rejected.
	Update(ctx context.Context, item *models.PendingMediaItem) error

	// Delete removes an item (user cancellation).
	Delete(ctx context.Context, id string) error

	// ListByStatus returns items in the given status in creation order.
	ListByStatus(ctx context.Context, status models.ItemStatus) ([]*models.PendingMediaItem, error)

	// ResetStale returns items stranded in Uploading by a crash to Pending.
	ResetStale(ctx context.Context) (int, error)
}
