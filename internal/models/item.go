// Package models defines the pending media item: a unit of user-authored
// content waiting in the local durable queue until it is published remotely.
package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vendora/mediasync/internal/common"
)

// Classification is the Feed/Story destination tag of a pending item.
// It is set exactly once at creation time; no code path between creation
// and a terminal state may alter it.
type Classification string

const (
	ClassificationFeed  Classification = "feed"
	ClassificationStory Classification = "story"
)

func (c Classification) Valid() bool {
	return c == ClassificationFeed || c == ClassificationStory
}

// ItemStatus enumerates the upload lifecycle states of a pending item.
type ItemStatus string

const (
	StatusPending      ItemStatus = "pending"
	StatusUploading    ItemStatus = "uploading"
	StatusUploaded     ItemStatus = "uploaded"
	StatusSynced       ItemStatus = "synced"
	StatusFailed       ItemStatus = "failed"
	StatusDeadLettered ItemStatus = "dead_lettered"
)

func (s ItemStatus) Valid() bool {
	switch s {
	case StatusPending, StatusUploading, StatusUploaded, StatusSynced, StatusFailed, StatusDeadLettered:
		return true
	}
	return false
}

// Terminal reports whether an item in this status is done and must not be
// touched by the coordinator again.
func (s ItemStatus) Terminal() bool {
	return s == StatusSynced || s == StatusDeadLettered
}

// PendingMediaItem is one queued piece of content.
//
// ID, MediaRef, Classification, Caption, AuthorID and CreatedAt are assigned
// at creation and immutable afterwards. Status, RetryCount, RemoteID,
// NextAttemptAt, LastError and NeedsReview are owned by the upload
// coordinator (and by the store's read-back verification for NeedsReview).
type PendingMediaItem struct {
	ID             string         `json:"id"`
	MediaRef       string         `json:"media_ref"`
	Classification Classification `json:"classification"`
	Caption        string         `json:"caption"`
	AuthorID       string         `json:"author_id"`
	CreatedAt      time.Time      `json:"created_at"`
	Status         ItemStatus     `json:"status"`
	RetryCount     int            `json:"retry_count"`
	RemoteID       string         `json:"remote_id,omitempty"`
	NextAttemptAt  time.Time      `json:"next_attempt_at"`
	LastError      string         `json:"last_error,omitempty"`
	NeedsReview    bool           `json:"needs_review,omitempty"`
}

// NewPendingMediaItem builds a queueable item in Pending state. Timestamps
// are normalized to UTC so they survive the wire codec byte for byte.
func NewPendingMediaItem(mediaRef, caption, authorID string, c Classification, now time.Time) *PendingMediaItem {
	created := now.UTC()
	return &PendingMediaItem{
		ID:             uuid.NewString(),
		MediaRef:       mediaRef,
		Classification: c,
		Caption:        caption,
		AuthorID:       authorID,
		CreatedAt:      created,
		Status:         StatusPending,
		NextAttemptAt:  created,
	}
}

// Validate rejects structurally incomplete items before they reach the
// durable store.
func (i *PendingMediaItem) Validate() error {
	switch {
	case i.ID == "":
		return fmt.Errorf("id is required: %w", common.ErrValidation)
	case i.MediaRef == "":
		return fmt.Errorf("media_ref is required: %w", common.ErrValidation)
	case i.AuthorID == "":
		return fmt.Errorf("author_id is required: %w", common.ErrValidation)
	case !i.Classification.Valid():
		return fmt.Errorf("classification %q is not valid: %w", i.Classification, common.ErrValidation)
	case !i.Status.Valid():
		return fmt.Errorf("status %q is not valid: %w", i.Status, common.ErrValidation)
	case i.CreatedAt.IsZero():
		return fmt.Errorf("created_at is required: %w", common.ErrValidation)
	case i.RetryCount < 0:
		return fmt.Errorf("retry_count must not be negative: %w", common.ErrValidation)
	}
	return nil
}

// Equal performs a field-by-field comparison. Timestamps are compared with
// time.Equal so wall-clock representation differences do not count as drift.
func (i *PendingMediaItem) Equal(other *PendingMediaItem) bool {
	if i == nil || other == nil {
		return i == other
	}
	return i.ID == other.ID &&
		i.MediaRef == other.MediaRef &&
		i.Classification == other.Classification &&
		i.Caption == other.Caption &&
		i.AuthorID == other.AuthorID &&
		i.CreatedAt.Equal(other.CreatedAt) &&
		i.Status == other.Status &&
		i.RetryCount == other.RetryCount &&
		i.RemoteID == other.RemoteID &&
		i.NextAttemptAt.Equal(other.NextAttemptAt) &&
		i.LastError == other.LastError &&
		i.NeedsReview == other.NeedsReview
}

// Clone returns a copy the caller may mutate without touching the original.
func (i *PendingMediaItem) Clone() *PendingMediaItem {
	c := *i
	return &c
}
