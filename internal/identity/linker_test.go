package identity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vendora/mediasync/internal/common"
	"github.com/vendora/mediasync/internal/logging"
	"github.com/vendora/mediasync/internal/remote/catalog"
)

type fakeDirectory struct {
	byID        map[string]*catalog.Profile
	byAccount   map[string]*catalog.Profile
	aliases     map[string]string
	created     []*catalog.Profile
	lookupErrs  []error
	lookupCalls int
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		byID:      map[string]*catalog.Profile{},
		byAccount: map[string]*catalog.Profile{},
		aliases:   map[string]string{},
	}
}

func (f *fakeDirectory) popErr() error {
	if len(f.lookupErrs) > 0 {
		err := f.lookupErrs[0]
		f.lookupErrs = f.lookupErrs[1:]
		return err
	}
	return nil
}

func (f *fakeDirectory) FindProfileByIdentity(ctx context.Context, identityID string) (*catalog.Profile, error) {
	f.lookupCalls++
	if err := f.popErr(); err != nil {
		return nil, err
	}
	if p, ok := f.byID[identityID]; ok {
		return p, nil
	}
	if profileID, ok := f.aliases[identityID]; ok {
		return f.byID[profileID], nil
	}
	return nil, common.ErrNotFound
}

func (f *fakeDirectory) FindProfileByAccountID(ctx context.Context, accountID string) (*catalog.Profile, error) {
	if p, ok := f.byAccount[accountID]; ok {
		return p, nil
	}
	return nil, common.ErrNotFound
}

func (f *fakeDirectory) CreateProfile(ctx context.Context, p *catalog.Profile) (*catalog.Profile, error) {
	p.ID = fmt.Sprintf("prof-%d", len(f.created)+1)
	p.CreatedAt = time.Now()
	f.created = append(f.created, p)
	f.byID[p.ID] = p
	f.byAccount[p.AccountID] = p
	return p, nil
}

func (f *fakeDirectory) RecordProfileAlias(ctx context.Context, profileID, identityID string) error {
	f.aliases[identityID] = profileID
	return nil
}

func newTestLinker(dir ProfileDirectory) *Linker {
	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	return NewLinker(dir, LinkerConfig{MaxAttempts: 3, BackoffBase: time.Millisecond}, log)
}

func TestResolve_DirectHit(t *testing.T) {
	dir := newFakeDirectory()
	dir.byID["ident-1"] = &catalog.Profile{ID: "ident-1", AccountID: "acct-1", Type: catalog.ProfileTypeVendor}

	link, err := newTestLinker(dir).Resolve(context.Background(), &Identity{ID: "ident-1", AccountID: "acct-1"})
	require.NoError(t, err)
	assert.Equal(t, "ident-1", link.CanonicalProfileID)
	assert.Equal(t, ProfileTypeVendor, link.Type)
}

func TestResolve_SecondaryKeyFindsCanonicalProfile(t *testing.T) {
	dir := newFakeDirectory()
	// a profile created by another backend environment under a different
	// identity id, but the same provider account
	dir.byID["prof-old"] = &catalog.Profile{ID: "prof-old", AccountID: "acct-1", Type: catalog.ProfileTypeVendor}
	dir.byAccount["acct-1"] = dir.byID["prof-old"]

	link, err := newTestLinker(dir).Resolve(context.Background(), &Identity{ID: "ident-new", AccountID: "acct-1"})
	require.NoError(t, err)
	assert.Equal(t, "prof-old", link.CanonicalProfileID, "must not mint a duplicate profile")
	assert.Equal(t, ProfileTypeVendor, link.Type)
	assert.Equal(t, "prof-old", dir.aliases["ident-new"], "alias recorded for next time")
	assert.Empty(t, dir.created)
}

func TestResolve_UnseenIdentityCreatesRegularProfile(t *testing.T) {
	dir := newFakeDirectory()

	link, err := newTestLinker(dir).Resolve(context.Background(), &Identity{ID: "ident-1", AccountID: "acct-1", Email: "u@example.com"})
	require.NoError(t, err)
	require.Len(t, dir.created, 1)
	assert.Equal(t, dir.created[0].ID, link.CanonicalProfileID)
	assert.Equal(t, ProfileTypeRegular, link.Type)
	assert.Equal(t, "u@example.com", dir.created[0].Email)
	assert.Equal(t, link.CanonicalProfileID, dir.aliases["ident-1"], "fresh profile must be aliased to the identity")

	// the next resolution must hit the alias, not create again
	again, err := newTestLinker(dir).Resolve(context.Background(), &Identity{ID: "ident-1", AccountID: "acct-1"})
	require.NoError(t, err)
	assert.Equal(t, link.CanonicalProfileID, again.CanonicalProfileID)
	assert.Len(t, dir.created, 1)
}

func TestResolve_TransientFailuresRetried(t *testing.T) {
	dir := newFakeDirectory()
	dir.byID["ident-1"] = &catalog.Profile{ID: "ident-1", AccountID: "acct-1", Type: catalog.ProfileTypeRegular}
	dir.lookupErrs = []error{
		fmt.Errorf("dial: %w", common.ErrNetworkTransient),
		fmt.Errorf("dial: %w", common.ErrNetworkTransient),
	}

	link, err := newTestLinker(dir).Resolve(context.Background(), &Identity{ID: "ident-1", AccountID: "acct-1"})
	require.NoError(t, err)
	assert.Equal(t, "ident-1", link.CanonicalProfileID)
	assert.Equal(t, 3, dir.lookupCalls, "two failures then success")
}

func TestResolve_ExhaustedRetriesFailClosed(t *testing.T) {
	dir := newFakeDirectory()
	dir.byID["ident-1"] = &catalog.Profile{ID: "ident-1", AccountID: "acct-1", Type: catalog.ProfileTypeRegular}
	transient := fmt.Errorf("dial: %w", common.ErrNetworkTransient)
	dir.lookupErrs = []error{transient, transient, transient}

	_, err := newTestLinker(dir).Resolve(context.Background(), &Identity{ID: "ident-1", AccountID: "acct-1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrIdentityLinkFailure),
		"exhaustion must surface as link failure, not as a new profile")
	assert.Empty(t, dir.created, "no profile may be created on infrastructure failure")
}
