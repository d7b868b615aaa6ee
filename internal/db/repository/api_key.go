package repository

import (
	"context"
	"database/sql"
	"time"
)

// APIKeyPrincipal is the identity resolved from an API key.
type APIKeyPrincipal struct {
	Name    string
	IsAdmin bool
}

// APIKeyRepo implements middleware.APIKeyLookup.
type APIKeyRepo struct {
	db *sql.DB
}

// NewAPIKeyRepo creates a new APIKeyRepo.
func NewAPIKeyRepo(db *sql.DB) *APIKeyRepo {
	return &APIKeyRepo{db: db}
}

// LookupPrincipalByAPIKeyHash returns the principal associated with the
// given API key hash.
func (r *APIKeyRepo) LookupPrincipalByAPIKeyHash(ctx context.Context, keyHash string) (*APIKeyPrincipal, error) {
	var (
		p       APIKeyPrincipal
		isAdmin int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT principal_name, is_admin FROM api_keys WHERE key_hash = ?`, keyHash).
		Scan(&p.Name, &isAdmin)
	if err != nil {
		return nil, mapDBError(err)
	}
	p.IsAdmin = isAdmin != 0
	return &p, nil
}

// InsertKey registers an API key hash for a principal. Used by seeding and
// tests; key material itself is never stored.
func (r *APIKeyRepo) InsertKey(ctx context.Context, keyHash, principalName string, isAdmin bool) error {
	admin := int64(0)
	if isAdmin {
		admin = 1
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO api_keys (key_hash, principal_name, is_admin, created_at)
		VALUES (?, ?, ?, ?)`,
		keyHash, principalName, admin, time.Now().UTC(),
	)
	return mapDBError(err)
}
