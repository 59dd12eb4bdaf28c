package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/vendora/mediasync/internal/common"
	"github.com/vendora/mediasync/internal/logging"
	"github.com/vendora/mediasync/internal/remote/catalog"
)

// ProfileDirectory is the slice of the catalog the linker needs.
type ProfileDirectory interface {
	FindProfileByIdentity(ctx context.Context, identityID string) (*catalog.Profile, error)
	FindProfileByAccountID(ctx context.Context, accountID string) (*catalog.Profile, error)
	CreateProfile(ctx context.Context, p *catalog.Profile) (*catalog.Profile, error)
	RecordProfileAlias(ctx context.Context, profileID, identityID string) error
}

// LinkerConfig bounds the retry schedule for transient directory failures.
type LinkerConfig struct {
	MaxAttempts uint64
	BackoffBase time.Duration
}

func (c LinkerConfig) withDefaults() LinkerConfig {
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 200 * time.Millisecond
	}
	return c
}

// Linker resolves identities against the profile directory.
//
// Resolution order: the identity id (directly or through a recorded alias),
// then the provider account id as a secondary key (the same account gets
// distinct identity ids in different backend environments), and only then is
// the identity treated as unseen and given a fresh profile. Transient lookup failures are retried with bounded
// backoff; exhaustion surfaces as ErrIdentityLinkFailure, never as a silently
// created duplicate profile.
type Linker struct {
	dir ProfileDirectory
	cfg LinkerConfig
	log logging.Logger
}

func NewLinker(dir ProfileDirectory, cfg LinkerConfig, log logging.Logger) *Linker {
	return &Linker{dir: dir, cfg: cfg.withDefaults(), log: log.With("component", "identity")}
}

func (l *Linker) Resolve(ctx context.Context, id *Identity) (*Link, error) {
	var link *Link

	backoff := retry.WithMaxRetries(l.cfg.MaxAttempts-1, retry.NewExponential(l.cfg.BackoffBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		resolved, err := l.resolveOnce(ctx, id)
		if err != nil {
			if isRetryable(err) {
				l.log.Warn(ctx, "profile lookup failed, retrying", "identity", id.ID, "error", err)
				return retry.RetryableError(err)
			}
			return err
		}
		link = resolved
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("resolving identity %s: %v: %w", id.ID, err, common.ErrIdentityLinkFailure)
	}

	return link, nil
}

func (l *Linker) resolveOnce(ctx context.Context, id *Identity) (*Link, error) {
	p, err := l.dir.FindProfileByIdentity(ctx, id.ID)
	if err == nil {
		return &Link{CanonicalProfileID: p.ID, Type: profileType(p.Type)}, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}

	// secondary key: the same account may already own a profile created by
	// another backend environment
	p, err = l.dir.FindProfileByAccountID(ctx, id.AccountID)
	if err == nil {
		if aliasErr := l.dir.RecordProfileAlias(ctx, p.ID, id.ID); aliasErr != nil {
			return nil, aliasErr
		}
		l.log.Info(ctx, "identity linked to existing profile", "identity", id.ID, "profile", p.ID)
		return &Link{CanonicalProfileID: p.ID, Type: profileType(p.Type)}, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}

	// genuinely unseen: vendors are provisioned server-side, so a fresh
	// profile is always a regular user
	created, err := l.dir.CreateProfile(ctx, &catalog.Profile{
		AccountID: id.AccountID,
		Email:     id.Email,
		Type:      catalog.ProfileTypeRegular,
	})
	if err != nil {
		return nil, err
	}
	// alias the identity right away so the next resolution finds the profile
	// without going through the account-id path
	if err := l.dir.RecordProfileAlias(ctx, created.ID, id.ID); err != nil {
		return nil, err
	}
	l.log.Info(ctx, "created profile for new identity", "identity", id.ID, "profile", created.ID)
	return &Link{CanonicalProfileID: created.ID, Type: ProfileTypeRegular}, nil
}

func profileType(s string) ProfileType {
	switch s {
	case catalog.ProfileTypeVendor:
		return ProfileTypeVendor
	case catalog.ProfileTypeRegular:
		return ProfileTypeRegular
	default:
		return ProfileTypeUnresolved
	}
}

// isRetryable classifies directory failures: not-found is an answer, data
// errors are final, anything infrastructure-shaped gets another attempt.
func isRetryable(err error) bool {
	switch {
	case errors.Is(err, common.ErrNotFound),
		errors.Is(err, common.ErrValidation),
		errors.Is(err, common.ErrRemoteRejected):
		return false
	}
	return true
}
