// Package catalog contains the adapter for the remote metadata store: the
// backend document catalog holding published media records and canonical
// user profiles.
//
// The engine only needs two guarantees from it: upsert-by-id (so a retried
// metadata write lands on the same record) and lookup-by-secondary-key (so
// one external account resolves to one canonical profile across backend
// environments).
package catalog

import (
	"context"
	"time"
)

// MediaRecord is the published metadata of one media item, keyed by the
// item's own client-generated id.
type MediaRecord struct {
	ID             string
	AuthorID       string
	Classification string
	Caption        string
	BlobLocator    string
	PostedAt       time.Time
}

// Profile is a canonical user profile. AccountID is the provider-issued
// account identifier that stays stable across backend environments and
// serves as the secondary lookup key.
type Profile struct {
	ID        string
	AccountID string
	Email     string
	Type      string
	CreatedAt time.Time
}

const (
	ProfileTypeVendor  = "vendor"
	ProfileTypeRegular = "regular"
)

// Catalog is the full remote metadata contract.
type Catalog interface {
	// UpsertMediaRecord writes the record, replacing any previous version
	// with the same id, and returns the remote record id.
	UpsertMediaRecord(ctx context.Context, rec *MediaRecord) (string, error)

	// FindProfileByIdentity returns the profile the given identity id
	// resolves to, either directly (the id is a canonical profile id) or
	// through a recorded alias. Returns common.ErrNotFound when neither
	// matches.
	FindProfileByIdentity(ctx context.Context, identityID string) (*Profile, error)

	// FindProfileByAccountID returns the oldest profile carrying the given
	// provider account id, or common.ErrNotFound.
	FindProfileByAccountID(ctx context.Context, accountID string) (*Profile, error)

	// CreateProfile inserts a new profile and returns it with its id set.
	CreateProfile(ctx context.Context, p *Profile) (*Profile, error)

	// RecordProfileAlias remembers that identityID resolves to profileID,
	// so later environments hitting the same account converge immediately.
	RecordProfileAlias(ctx context.Context, profileID, identityID string) error
}
