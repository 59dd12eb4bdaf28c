package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vendora/mediasync/internal/codec"
	"github.com/vendora/mediasync/internal/common"
	"github.com/vendora/mediasync/internal/dbx"
	"github.com/vendora/mediasync/internal/models"
)

// SQLiteRepository implements Repository over a local SQLite database.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository returns a repository bound to the given database.
// The schema must already be migrated (see InitDatabase).
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Enqueue(ctx context.Context, item *models.PendingMediaItem) (string, error) {
	if err := item.Validate(); err != nil {
		return "", err
	}

	payload, err := codec.Encode(item)
	if err != nil {
		return "", err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO items (id, payload, status, classification, created_at, next_attempt_at, needs_review)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, item.ID, payload, string(item.Status), string(item.Classification),
		item.CreatedAt.UnixNano(), item.NextAttemptAt.UnixNano(), boolToInt(item.NeedsReview))
	if err != nil {
		return "", fmt.Errorf("failed to insert item %s: %w", item.ID, err)
	}

	if err := r.verifyReadBack(ctx, r.db, item); err != nil {
		return "", err
	}

	return item.ID, nil
}

// verifyReadBack re-reads the just-written payload and deep-compares it with
// the input. On any drift the record is flagged for manual review and left in
// place; it will never be claimed by a dequeue.
func (r *SQLiteRepository) verifyReadBack(ctx context.Context, db dbx.DBTX, item *models.PendingMediaItem) error {
	var payload []byte
	err := db.QueryRowContext(ctx, `SELECT payload FROM items WHERE id = ?`, item.ID).Scan(&payload)
	if err != nil {
		return fmt.Errorf("failed to read back item %s: %w", item.ID, err)
	}

	stored, err := codec.Decode(payload)
	if err == nil && !stored.Equal(item) {
		err = fmt.Errorf("stored record differs from input: %w", common.ErrSerializationMismatch)
	}
	if err != nil {
		if _, ferr := db.ExecContext(ctx, `UPDATE items SET needs_review = 1 WHERE id = ?`, item.ID); ferr != nil {
			return fmt.Errorf("failed to flag item %s for review: %w", item.ID, ferr)
		}
		return fmt.Errorf("read-back verification of item %s failed: %w", item.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.PendingMediaItem, error) {
	var payload []byte
	err := r.db.QueryRowContext(ctx, `SELECT payload FROM items WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item %s: %w", id, err)
	}
	return codec.Decode(payload)
}

func (r *SQLiteRepository) DequeueNext(ctx context.Context, now time.Time) (*models.PendingMediaItem, error) {
	var claimed *models.PendingMediaItem

	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var payload []byte
		err := tx.QueryRowContext(ctx, `
			SELECT payload FROM items
			WHERE status IN (?, ?) AND needs_review = 0 AND next_attempt_at <= ?
			ORDER BY created_at
			LIMIT 1
		`, string(models.StatusPending), string(models.StatusFailed), now.UnixNano()).Scan(&payload)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to select next item: %w", err)
		}

		item, err := codec.Decode(payload)
		if err != nil {
			return err
		}

		prev := item.Status
		item.Status = models.StatusUploading
		updated, err := codec.Encode(item)
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE items SET payload = ?, status = ? WHERE id = ? AND status = ?
		`, updated, string(models.StatusUploading), item.ID, string(prev))
		if err != nil {
			return fmt.Errorf("failed to claim item %s: %w", item.ID, err)
		}
		ra, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if ra != 1 {
			// lost the claim race; the caller will simply poll again
			return nil
		}

		claimed = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *SQLiteRepository) Update(ctx context.Context, item *models.PendingMediaItem) error {
	if err := item.Validate(); err != nil {
		return err
	}

	payload, err := codec.Encode(item)
	if err != nil {
		return err
	}

	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE items
			SET payload = ?, status = ?, next_attempt_at = ?, needs_review = ?
			WHERE id = ? AND classification = ?
		`, payload, string(item.Status), item.NextAttemptAt.UnixNano(),
			boolToInt(item.NeedsReview), item.ID, string(item.Classification))
		if err != nil {
			return fmt.Errorf("failed to update item %s: %w", item.ID, err)
		}
		ra, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if ra != 1 {
			var stored string
			err := tx.QueryRowContext(ctx, `SELECT classification FROM items WHERE id = ?`, item.ID).Scan(&stored)
			if errors.Is(err, sql.ErrNoRows) {
				return common.ErrNotFound
			}
			if err != nil {
				return fmt.Errorf("failed to inspect item %s: %w", item.ID, err)
			}
			return fmt.Errorf("classification is write-once (stored %q, got %q): %w",
				stored, item.Classification, common.ErrValidation)
		}

		return r.verifyReadBack(ctx, tx, item)
	})
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete item %s: %w", id, err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) ListByStatus(ctx context.Context, status models.ItemStatus) ([]*models.PendingMediaItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT payload FROM items WHERE status = ? ORDER BY created_at
	`, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list items by status %s: %w", status, err)
	}
	defer rows.Close()

	var result []*models.PendingMediaItem
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		item, err := codec.Decode(payload)
		if err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) ResetStale(ctx context.Context) (int, error) {
	count := 0
	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		rows, err := tx.QueryContext(ctx, `SELECT payload FROM items WHERE status = ?`,
			string(models.StatusUploading))
		if err != nil {
			return fmt.Errorf("failed to select stale items: %w", err)
		}
		defer rows.Close()

		var stale []*models.PendingMediaItem
		for rows.Next() {
			var payload []byte
			if err := rows.Scan(&payload); err != nil {
				return err
			}
			item, err := codec.Decode(payload)
			if err != nil {
				return err
			}
			stale = append(stale, item)
		}
		if err := rows.Err(); err != nil {
			return err
		}

		for _, item := range stale {
			item.Status = models.StatusPending
			payload, err := codec.Encode(item)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `UPDATE items SET payload = ?, status = ? WHERE id = ?`,
				payload, string(models.StatusPending), item.ID); err != nil {
				return fmt.Errorf("failed to reset item %s: %w", item.ID, err)
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
