// Package codec is the wire codec between PendingMediaItem and the durable
// store's record payload.
//
// Decoding is deliberately fail-fast: safety-critical fields have no default
// value. A payload without a classification fails with ErrMissingField
// instead of quietly becoming a feed post, which is exactly the defect class
// this codec exists to prevent.
package codec

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vendora/mediasync/internal/common"
	"github.com/vendora/mediasync/internal/models"
)

// wireItem mirrors PendingMediaItem with pointers on the fields whose
// absence must be detected rather than defaulted.
type wireItem struct {
	ID             *string                `json:"id"`
	MediaRef       *string                `json:"media_ref"`
	Classification *models.Classification `json:"classification"`
	Caption        string                 `json:"caption"`
	AuthorID       *string                `json:"author_id"`
	CreatedAt      *time.Time             `json:"created_at"`
	Status         *models.ItemStatus     `json:"status"`
	RetryCount     int                    `json:"retry_count"`
	RemoteID       string                 `json:"remote_id,omitempty"`
	NextAttemptAt  time.Time              `json:"next_attempt_at"`
	LastError      string                 `json:"last_error,omitempty"`
	NeedsReview    bool                   `json:"needs_review,omitempty"`
}

// Encode serializes a validated item. Invalid items are rejected before they
// can reach storage.
func Encode(item *models.PendingMediaItem) ([]byte, error) {
	if err := item.Validate(); err != nil {
		return nil, err
	}

	w := wireItem{
		ID:             &item.ID,
		MediaRef:       &item.MediaRef,
		Classification: &item.Classification,
		Caption:        item.Caption,
		AuthorID:       &item.AuthorID,
		CreatedAt:      &item.CreatedAt,
		Status:         &item.Status,
		RetryCount:     item.RetryCount,
		RemoteID:       item.RemoteID,
		NextAttemptAt:  item.NextAttemptAt,
		LastError:      item.LastError,
		NeedsReview:    item.NeedsReview,
	}

	data, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("failed to encode item %s: %w", item.ID, err)
	}
	return data, nil
}

// Decode parses a stored payload back into an item. Missing required fields
// fail with ErrMissingField; present-but-unknown classification or status
// values fail with ErrValidation. decode(encode(x)) == x for every valid x.
func Decode(data []byte) (*models.PendingMediaItem, error) {
	var w wireItem
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("failed to decode item payload: %w", err)
	}

	switch {
	case w.ID == nil || *w.ID == "":
		return nil, fmt.Errorf("id: %w", common.ErrMissingField)
	case w.MediaRef == nil || *w.MediaRef == "":
		return nil, fmt.Errorf("media_ref: %w", common.ErrMissingField)
	case w.AuthorID == nil || *w.AuthorID == "":
		return nil, fmt.Errorf("author_id: %w", common.ErrMissingField)
	case w.CreatedAt == nil || w.CreatedAt.IsZero():
		return nil, fmt.Errorf("created_at: %w", common.ErrMissingField)
	case w.Classification == nil || *w.Classification == "":
		return nil, fmt.Errorf("classification: %w", common.ErrMissingField)
	case w.Status == nil || *w.Status == "":
		return nil, fmt.Errorf("status: %w", common.ErrMissingField)
	}

	if !w.Classification.Valid() {
		return nil, fmt.Errorf("classification %q is not valid: %w", *w.Classification, common.ErrValidation)
	}
	if !w.Status.Valid() {
		return nil, fmt.Errorf("status %q is not valid: %w", *w.Status, common.ErrValidation)
	}

	item := &models.PendingMediaItem{
		ID:             *w.ID,
		MediaRef:       *w.MediaRef,
		Classification: *w.Classification,
		Caption:        w.Caption,
		AuthorID:       *w.AuthorID,
		CreatedAt:      *w.CreatedAt,
		Status:         *w.Status,
		RetryCount:     w.RetryCount,
		RemoteID:       w.RemoteID,
		NextAttemptAt:  w.NextAttemptAt,
		LastError:      w.LastError,
		NeedsReview:    w.NeedsReview,
	}

	if err := item.Validate(); err != nil {
		return nil, err
	}
	return item, nil
}
