package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/vendora/mediasync/internal/common"
	"github.com/vendora/mediasync/internal/dbx"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// classifyDBError sorts catalog failures by SQLSTATE class. Data exceptions
// and integrity violations (classes 22 and 23) mean the catalog rejected the
// record itself, so retrying the same payload can never succeed; anything
// else is treated as infrastructure trouble worth retrying.
func classifyDBError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) >= 2 {
		switch pgErr.Code[:2] {
		case "22", "23":
			return fmt.Errorf("db error: %v: %w", err, common.ErrRemoteRejected)
		}
	}
	return fmt.Errorf("db error: %v: %w", err, common.ErrNetworkTransient)
}

// PostgresCatalog implements Catalog against the backend's Postgres-backed
// document catalog using a DBTX (either *sql.DB or *sql.Tx).
type PostgresCatalog struct {
	db dbx.DBTX
}

func NewPostgresCatalog(db dbx.DBTX) *PostgresCatalog {
	return &PostgresCatalog{db: db}
}

// Open connects to the catalog with the pgx stdlib driver.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog connection: %w", err)
	}
	return db, nil
}

func (c *PostgresCatalog) UpsertMediaRecord(ctx context.Context, rec *MediaRecord) (string, error) {
	query := `INSERT INTO media_records (id, author_id, classification, caption, blob_locator, posted_at)
	         VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (id) DO UPDATE SET
				author_id = excluded.author_id,
				classification = excluded.classification,
				caption = excluded.caption,
				blob_locator = excluded.blob_locator,
				posted_at = excluded.posted_at
			 RETURNING id
			 `

	var id string
	err := c.db.QueryRowContext(ctx, query,
		rec.ID, rec.AuthorID, rec.Classification, rec.Caption, rec.BlobLocator, rec.PostedAt).Scan(&id)
	if err != nil {
		return "", classifyDBError(err)
	}

	return id, nil
}

func (c *PostgresCatalog) FindProfileByIdentity(ctx context.Context, identityID string) (*Profile, error) {
	// the identity id either is a canonical profile id or was aliased to one
	// by an earlier resolution
	query := `SELECT p.id, p.account_id, p.email, p.profile_type, p.created_at FROM profiles p
			 LEFT JOIN profile_aliases a ON a.profile_id = p.id
			 WHERE p.id = $1 OR a.identity_id = $1
			 ORDER BY p.created_at
			 LIMIT 1
			 `

	p := &Profile{}
	err := c.db.QueryRowContext(ctx, query, identityID).Scan(&p.ID, &p.AccountID, &p.Email, &p.Type, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, classifyDBError(err)
	}

	return p, nil
}

func (c *PostgresCatalog) FindProfileByAccountID(ctx context.Context, accountID string) (*Profile, error) {
	// oldest first: when an account accumulated duplicate profiles across
	// environments, the earliest one is canonical
	query := `SELECT id, account_id, email, profile_type, created_at FROM profiles
			 WHERE account_id = $1
			 ORDER BY created_at
			 LIMIT 1
			 `

	p := &Profile{}
	err := c.db.QueryRowContext(ctx, query, accountID).Scan(&p.ID, &p.AccountID, &p.Email, &p.Type, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, classifyDBError(err)
	}

	return p, nil
}

func (c *PostgresCatalog) CreateProfile(ctx context.Context, p *Profile) (*Profile, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}

	query := `INSERT INTO profiles (id, account_id, email, profile_type)
	         VALUES ($1, $2, $3, $4)
			 RETURNING id, created_at
			 `

	err := c.db.QueryRowContext(ctx, query, p.ID, p.AccountID, p.Email, p.Type).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return nil, classifyDBError(err)
	}

	return p, nil
}

func (c *PostgresCatalog) RecordProfileAlias(ctx context.Context, profileID, identityID string) error {
	query := `INSERT INTO profile_aliases (identity_id, profile_id)
	         VALUES ($1, $2)
			 ON CONFLICT (identity_id) DO UPDATE SET profile_id = excluded.profile_id
			 `

	_, err := c.db.ExecContext(ctx, query, identityID, profileID)
	if err != nil {
		return classifyDBError(err)
	}

	return nil
}
