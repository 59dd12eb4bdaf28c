// Package upload drains the durable item store and publishes each item to
// the remote blob and metadata stores.
//
// A bounded pool of workers claims items one at a time; per-item transitions
// are strictly monotonic (a dequeue is the only way an item becomes
// Uploading), while different items proceed in parallel. Both remote writes
// are keyed by the item's own id, so a retry after a crash overwrites
// instead of duplicating.
package upload

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"

	"github.com/vendora/mediasync/internal/common"
	"github.com/vendora/mediasync/internal/logging"
	"github.com/vendora/mediasync/internal/models"
	"github.com/vendora/mediasync/internal/remote/blob"
	"github.com/vendora/mediasync/internal/remote/catalog"
	"github.com/vendora/mediasync/internal/store"
)

// MetadataStore is the slice of the catalog the coordinator needs.
type MetadataStore interface {
	UpsertMediaRecord(ctx context.Context, rec *catalog.MediaRecord) (string, error)
}

// Config tunes the worker pool and the retry schedule.
type Config struct {
	Workers      int
	MaxRetries   int
	BackoffBase  time.Duration
	BackoffCap   time.Duration
	PollInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = time.Second
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = 5 * time.Minute
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	return c
}

// Coordinator owns every status transition after enqueue.
type Coordinator struct {
	store    store.Repository
	blobs    blob.Store
	metadata MetadataStore
	cfg      Config
	log      logging.Logger

	// seams for tests
	now       func() time.Time
	loadMedia func(ctx context.Context, ref string) ([]byte, error)
}

func NewCoordinator(repo store.Repository, blobs blob.Store, metadata MetadataStore, cfg Config, log logging.Logger) *Coordinator {
	return &Coordinator{
		store:    repo,
		blobs:    blobs,
		metadata: metadata,
		cfg:      cfg.withDefaults(),
		log:      log.With("component", "upload"),
		now:      time.Now,
		loadMedia: func(ctx context.Context, ref string) ([]byte, error) {
			return os.ReadFile(ref)
		},
	}
}

// ObjectKey derives the remote blob key from the item itself, so repeated
// upload attempts for one item always address the same object.
func ObjectKey(item *models.PendingMediaItem) string {
	return fmt.Sprintf("media/%s/%s", item.AuthorID, item.ID)
}

// Run drives the worker pool until ctx is cancelled. Items stranded in
// Uploading by a previous crash are requeued first.
func (c *Coordinator) Run(ctx context.Context) error {
	if n, err := c.store.ResetStale(ctx); err != nil {
		return fmt.Errorf("failed to requeue stale items: %w", err)
	} else if n > 0 {
		c.log.Info(ctx, "requeued stale items", "count", n)
	}

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < c.cfg.Workers; i++ {
		worker := i
		g.Go(func() error {
			return c.runWorker(ctx, worker)
		})
	}
	return g.Wait()
}

func (c *Coordinator) runWorker(ctx context.Context, worker int) error {
	log := c.log.With("worker", worker)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		processed, err := c.ProcessNext(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			log.Error(ctx, "item processing failed", "error", err)
		}
		if processed {
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.cfg.PollInterval):
		}
	}
}

// Drain processes eligible items until the queue is empty, returning how
// many items it worked on. Used by the CLI's sync command.
func (c *Coordinator) Drain(ctx context.Context) (int, error) {
	count := 0
	for {
		processed, err := c.ProcessNext(ctx)
		if err != nil {
			return count, err
		}
		if !processed {
			return count, nil
		}
		count++
	}
}

// ProcessNext claims and processes at most one item. It reports whether an
// item was claimed.
func (c *Coordinator) ProcessNext(ctx context.Context) (bool, error) {
	item, err := c.store.DequeueNext(ctx, c.now())
	if err != nil {
		return false, err
	}
	if item == nil {
		return false, nil
	}
	return true, c.process(ctx, item)
}

func (c *Coordinator) process(ctx context.Context, item *models.PendingMediaItem) error {
	log := c.log.With("item", item.ID, "classification", string(item.Classification))

	// cancellation checkpoint before the blob upload begins
	if gone, err := c.itemDeleted(ctx, item.ID); err != nil {
		return err
	} else if gone {
		log.Info(ctx, "item deleted by owner, abandoning")
		return nil
	}

	data, err := c.loadMedia(ctx, item.MediaRef)
	if err != nil {
		// unreadable media cannot succeed on retry
		return c.deadLetter(ctx, item, fmt.Errorf("media %s unreadable: %v: %w", item.MediaRef, err, common.ErrValidation))
	}

	locator, err := c.blobs.Put(ctx, ObjectKey(item), data)
	if err != nil {
		return c.dispose(ctx, item, fmt.Errorf("blob upload: %w", err))
	}

	// next safe checkpoint: the network call has resolved
	if gone, err := c.itemDeleted(ctx, item.ID); err != nil {
		return err
	} else if gone {
		log.Info(ctx, "item deleted by owner, abandoning after blob upload")
		return nil
	}

	item.Status = models.StatusUploaded
	if err := c.store.Update(ctx, item); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil
		}
		return err
	}
	log.Debug(ctx, "blob persisted", "locator", locator)

	remoteID, err := c.metadata.UpsertMediaRecord(ctx, &catalog.MediaRecord{
		ID:             item.ID,
		AuthorID:       item.AuthorID,
		Classification: string(item.Classification),
		Caption:        item.Caption,
		BlobLocator:    locator,
		PostedAt:       item.CreatedAt,
	})
	if err != nil {
		return c.dispose(ctx, item, fmt.Errorf("metadata upsert: %w", err))
	}

	item.Status = models.StatusSynced
	item.RemoteID = remoteID
	item.LastError = ""
	if err := c.store.Update(ctx, item); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil
		}
		return err
	}
	log.Info(ctx, "item synced", "remote_id", remoteID, "retries", item.RetryCount)
	return nil
}

func (c *Coordinator) itemDeleted(ctx context.Context, id string) (bool, error) {
	_, err := c.store.GetByID(ctx, id)
	if errors.Is(err, common.ErrNotFound) {
		return true, nil
	}
	return false, err
}

// dispose routes a failed attempt: transient failures are requeued with
// backoff until MaxRetries, everything else dead-letters immediately.
func (c *Coordinator) dispose(ctx context.Context, item *models.PendingMediaItem, cause error) error {
	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		// shutdown mid-item; ResetStale requeues it on the next start
		return cause
	}

	if !isTransient(cause) {
		return c.deadLetter(ctx, item, cause)
	}

	item.RetryCount++
	if item.RetryCount > c.cfg.MaxRetries {
		return c.deadLetter(ctx, item, fmt.Errorf("retries exhausted after %d attempts: %w", item.RetryCount, cause))
	}

	item.Status = models.StatusFailed
	item.NextAttemptAt = c.now().Add(c.backoffDelay(item.RetryCount)).UTC()
	item.LastError = cause.Error()
	if err := c.store.Update(ctx, item); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil
		}
		return err
	}
	c.log.Warn(ctx, "item requeued", "item", item.ID, "retries", item.RetryCount, "next_attempt", item.NextAttemptAt, "error", cause)
	return nil
}

func (c *Coordinator) deadLetter(ctx context.Context, item *models.PendingMediaItem, cause error) error {
	item.Status = models.StatusDeadLettered
	item.LastError = cause.Error()
	if err := c.store.Update(ctx, item); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil
		}
		return err
	}
	c.log.Error(ctx, "item dead-lettered", "item", item.ID, "error", cause)
	return nil
}

// backoffDelay computes the capped exponential delay before retry n.
func (c *Coordinator) backoffDelay(n int) time.Duration {
	b := retry.WithCappedDuration(c.cfg.BackoffCap, retry.NewExponential(c.cfg.BackoffBase))
	var d time.Duration
	for i := 0; i < n; i++ {
		d, _ = b.Next()
	}
	return d
}

// isTransient classifies a failure. Data-integrity errors and remote
// rejections never retry; network-class failures do. Unknown errors are
// assumed to be infrastructure and retried up to the limit.
func isTransient(err error) bool {
	switch {
	case errors.Is(err, common.ErrSerializationMismatch),
		errors.Is(err, common.ErrMissingField),
		errors.Is(err, common.ErrValidation),
		errors.Is(err, common.ErrRemoteRejected):
		return false
	case errors.Is(err, common.ErrNetworkTransient):
		return true
	}
	// unknown failures are assumed infrastructure: retried up to the limit,
	// then dead-lettered anyway
	return true
}
