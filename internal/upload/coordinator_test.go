package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vendora/mediasync/internal/common"
	"github.com/vendora/mediasync/internal/logging"
	"github.com/vendora/mediasync/internal/models"
	"github.com/vendora/mediasync/internal/remote/catalog"
	"github.com/vendora/mediasync/internal/store"

	_ "modernc.org/sqlite"
)

type fakeBlob struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    map[string]int
	errs    []error
	onPut   func(key string)
}

func newFakeBlob() *fakeBlob {
	return &fakeBlob{objects: map[string][]byte{}, puts: map[string]int{}}
}

func (f *fakeBlob) Put(ctx context.Context, key string, data []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts[key]++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return "", err
		}
	}
	if f.onPut != nil {
		f.onPut(key)
	}
	f.objects[key] = data
	return "fake://" + key, nil
}

type fakeMetadata struct {
	mu      sync.Mutex
	records map[string]*catalog.MediaRecord
	upserts int
	errs    []error
}

func newFakeMetadata() *fakeMetadata {
	return &fakeMetadata{records: map[string]*catalog.MediaRecord{}}
}

func (f *fakeMetadata) UpsertMediaRecord(ctx context.Context, rec *catalog.MediaRecord) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return "", err
		}
	}
	r := *rec
	f.records[rec.ID] = &r
	return rec.ID, nil
}

type fixture struct {
	repo  *store.SQLiteRepository
	blob  *fakeBlob
	meta  *fakeMetadata
	coord *Coordinator
	clock *time.Time
}

func setup(t *testing.T, cfg Config) *fixture {
	t.Helper()
	db, err := store.InitDatabase(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo := store.NewSQLiteRepository(db)
	blobs := newFakeBlob()
	meta := newFakeMetadata()
	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))

	coord := NewCoordinator(repo, blobs, meta, cfg, log)

	now := time.Now()
	coord.now = func() time.Time { return now }
	coord.loadMedia = func(ctx context.Context, ref string) ([]byte, error) {
		return []byte("mediabytes"), nil
	}

	return &fixture{repo: repo, blob: blobs, meta: meta, coord: coord, clock: &now}
}

func (f *fixture) enqueue(t *testing.T, c models.Classification) *models.PendingMediaItem {
	t.Helper()
	item := models.NewPendingMediaItem("/spool/a.jpg", "caption", "author-1", c, *f.clock)
	_, err := f.repo.Enqueue(context.Background(), item)
	require.NoError(t, err)
	return item
}

func (f *fixture) advance(d time.Duration) {
	*f.clock = f.clock.Add(d)
}

func TestProcessNext_HappyPath(t *testing.T) {
	f := setup(t, Config{MaxRetries: 3})
	ctx := context.Background()

	item := f.enqueue(t, models.ClassificationStory)

	processed, err := f.coord.ProcessNext(ctx)
	require.NoError(t, err)
	assert.True(t, processed)

	got, err := f.repo.GetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSynced, got.Status)
	assert.Equal(t, item.ID, got.RemoteID)
	assert.Equal(t, models.ClassificationStory, got.Classification)
	assert.Zero(t, got.RetryCount)

	key := ObjectKey(item)
	assert.Equal(t, []byte("mediabytes"), f.blob.objects[key])
	rec := f.meta.records[item.ID]
	require.NotNil(t, rec)
	assert.Equal(t, "story", rec.Classification)
	assert.Equal(t, "fake://"+key, rec.BlobLocator)
}

func TestProcessNext_EmptyQueue(t *testing.T) {
	f := setup(t, Config{})

	processed, err := f.coord.ProcessNext(context.Background())
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestTransientFailuresRetryThenSucceed(t *testing.T) {
	f := setup(t, Config{MaxRetries: 5, BackoffBase: time.Second})
	ctx := context.Background()

	item := f.enqueue(t, models.ClassificationFeed)
	f.blob.errs = []error{
		fmt.Errorf("dial tcp: %w", common.ErrNetworkTransient),
		fmt.Errorf("timeout: %w", common.ErrNetworkTransient),
	}

	for attempt := 0; attempt < 3; attempt++ {
		processed, err := f.coord.ProcessNext(ctx)
		require.NoError(t, err)
		require.True(t, processed, "attempt %d should claim the item", attempt)
		f.advance(time.Hour)
	}

	got, err := f.repo.GetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSynced, got.Status)
	assert.Equal(t, 2, got.RetryCount, "two transient failures then success")
	assert.Empty(t, got.LastError)

	// exactly one remote object and one record despite three attempts
	assert.Len(t, f.blob.objects, 1)
	assert.Len(t, f.meta.records, 1)
}

func TestBackoffDelaysDequeue(t *testing.T) {
	f := setup(t, Config{MaxRetries: 5, BackoffBase: time.Minute})
	ctx := context.Background()

	item := f.enqueue(t, models.ClassificationFeed)
	f.blob.errs = []error{fmt.Errorf("unreachable: %w", common.ErrNetworkTransient)}

	processed, err := f.coord.ProcessNext(ctx)
	require.NoError(t, err)
	require.True(t, processed)

	got, err := f.repo.GetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.True(t, got.NextAttemptAt.After(*f.clock), "backoff must push next attempt into the future")

	// not eligible until the backoff elapses
	processed, err = f.coord.ProcessNext(ctx)
	require.NoError(t, err)
	assert.False(t, processed)

	f.advance(time.Hour)
	processed, err = f.coord.ProcessNext(ctx)
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestFatalFailureDeadLettersWithoutRetry(t *testing.T) {
	f := setup(t, Config{MaxRetries: 5})
	ctx := context.Background()

	item := f.enqueue(t, models.ClassificationFeed)
	f.meta.errs = []error{fmt.Errorf("malformed record: %w", common.ErrRemoteRejected)}

	processed, err := f.coord.ProcessNext(ctx)
	require.NoError(t, err)
	require.True(t, processed)

	got, err := f.repo.GetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDeadLettered, got.Status)
	assert.Zero(t, got.RetryCount, "data failures are never blindly retried")
	assert.Contains(t, got.LastError, "malformed record")
}

func TestUnreadableMediaDeadLetters(t *testing.T) {
	f := setup(t, Config{MaxRetries: 5})
	ctx := context.Background()

	item := f.enqueue(t, models.ClassificationFeed)
	f.coord.loadMedia = func(ctx context.Context, ref string) ([]byte, error) {
		return nil, errors.New("no such file")
	}

	processed, err := f.coord.ProcessNext(ctx)
	require.NoError(t, err)
	require.True(t, processed)

	got, err := f.repo.GetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDeadLettered, got.Status)
	assert.Empty(t, f.blob.objects)
	assert.Empty(t, f.meta.records)
}

func TestRetriesExhaustedDeadLetters(t *testing.T) {
	f := setup(t, Config{MaxRetries: 2, BackoffBase: time.Millisecond})
	ctx := context.Background()

	item := f.enqueue(t, models.ClassificationFeed)
	transient := fmt.Errorf("unreachable: %w", common.ErrNetworkTransient)
	f.blob.errs = []error{transient, transient, transient, transient}

	for i := 0; i < 3; i++ {
		processed, err := f.coord.ProcessNext(ctx)
		require.NoError(t, err)
		require.True(t, processed)
		f.advance(time.Hour)
	}

	got, err := f.repo.GetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDeadLettered, got.Status)
	assert.Contains(t, got.LastError, "retries exhausted")
}

func TestIdempotentPublishAfterCrash(t *testing.T) {
	f := setup(t, Config{MaxRetries: 3})
	ctx := context.Background()

	item := f.enqueue(t, models.ClassificationStory)

	processed, err := f.coord.ProcessNext(ctx)
	require.NoError(t, err)
	require.True(t, processed)

	// crash before the success was observed: the item is requeued whole
	synced, err := f.repo.GetByID(ctx, item.ID)
	require.NoError(t, err)
	synced.Status = models.StatusPending
	synced.RemoteID = ""
	require.NoError(t, f.repo.Update(ctx, synced))

	processed, err = f.coord.ProcessNext(ctx)
	require.NoError(t, err)
	require.True(t, processed)

	key := ObjectKey(item)
	assert.Equal(t, 2, f.blob.puts[key], "second attempt re-put the same key")
	assert.Len(t, f.blob.objects, 1, "exactly one remote blob")
	assert.Len(t, f.meta.records, 1, "exactly one remote metadata record")

	got, err := f.repo.GetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSynced, got.Status)
}

func TestOwnerDeletionAbandonsItem(t *testing.T) {
	f := setup(t, Config{MaxRetries: 3})
	ctx := context.Background()

	item := f.enqueue(t, models.ClassificationFeed)

	// the owner deletes the item while the blob upload is in flight; the
	// coordinator must notice at the next checkpoint and walk away
	f.blob.onPut = func(key string) {
		require.NoError(t, f.repo.Delete(ctx, item.ID))
	}

	processed, err := f.coord.ProcessNext(ctx)
	require.NoError(t, err)
	assert.True(t, processed)

	_, err = f.repo.GetByID(ctx, item.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.Empty(t, f.meta.records, "no metadata record for a cancelled item")
}

func TestDrainProcessesWholeQueue(t *testing.T) {
	f := setup(t, Config{MaxRetries: 3})
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		f.advance(time.Millisecond)
		f.enqueue(t, models.ClassificationFeed)
	}

	n, err := f.coord.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	synced, err := f.repo.ListByStatus(ctx, models.StatusSynced)
	require.NoError(t, err)
	assert.Len(t, synced, 4)
}

func TestRunWorkersDrainQueueAndStopOnCancel(t *testing.T) {
	f := setup(t, Config{Workers: 3, MaxRetries: 3, PollInterval: 5 * time.Millisecond})

	// Run uses the wall clock for scheduling decisions made by workers
	f.coord.now = time.Now

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var items []*models.PendingMediaItem
	for i := 0; i < 6; i++ {
		item := models.NewPendingMediaItem("/spool/a.jpg", "caption", "author-1", models.ClassificationFeed, time.Now())
		_, err := f.repo.Enqueue(ctx, item)
		require.NoError(t, err)
		items = append(items, item)
	}

	done := make(chan error, 1)
	go func() { done <- f.coord.Run(ctx) }()

	require.Eventually(t, func() bool {
		synced, err := f.repo.ListByStatus(ctx, models.StatusSynced)
		return err == nil && len(synced) == len(items)
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestRunRequeuesStaleItems(t *testing.T) {
	f := setup(t, Config{Workers: 1, PollInterval: 5 * time.Millisecond})
	ctx := context.Background()

	item := f.enqueue(t, models.ClassificationStory)
	claimed, err := f.repo.DequeueNext(ctx, *f.clock)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	require.Equal(t, item.ID, claimed.ID)

	// crash before the upload finished; a fresh Run must pick the item up
	f.coord.now = time.Now
	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.coord.Run(runCtx) }()

	require.Eventually(t, func() bool {
		got, err := f.repo.GetByID(ctx, item.ID)
		return err == nil && got.Status == models.StatusSynced
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestBackoffDelayGrowsAndCaps(t *testing.T) {
	f := setup(t, Config{BackoffBase: time.Second, BackoffCap: 10 * time.Second})

	d1 := f.coord.backoffDelay(1)
	d2 := f.coord.backoffDelay(2)
	d3 := f.coord.backoffDelay(3)
	d10 := f.coord.backoffDelay(10)

	assert.Equal(t, time.Second, d1)
	assert.Greater(t, d2, d1)
	assert.Greater(t, d3, d2)
	assert.LessOrEqual(t, d10, 10*time.Second)
}
