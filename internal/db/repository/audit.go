package repository

import (
	"context"
	"database/sql"
	"strings"

	"scrumdeck/internal/domain"
)

// AuditRepo implements domain.AuditRepository on SQLite.
type AuditRepo struct {
	db *sql.DB
}

// NewAuditRepo creates a new AuditRepo.
func NewAuditRepo(db *sql.DB) *AuditRepo {
	return &AuditRepo{db: db}
}

var _ domain.AuditRepository = (*AuditRepo)(nil)

// Insert appends an audit entry.
func (r *AuditRepo) Insert(ctx context.Context, e *domain.AuditEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_log (occurred_at, principal_name, action, delegation_id, status, detail)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.OccurredAt.UTC(), e.PrincipalName, e.Action, nullString(e.DelegationID), e.Status, e.Detail,
	)
	return mapDBError(err)
}

// List returns audit entries matching the filter, newest first.
func (r *AuditRepo) List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, int64, error) {
	where := []string{"1=1"}
	args := []interface{}{}

	if filter.PrincipalName != nil {
		where = append(where, "principal_name = ?")
		args = append(args, *filter.PrincipalName)
	}
	if filter.Action != nil {
		where = append(where, "action = ?")
		args = append(args, *filter.Action)
	}
	if filter.DelegationID != nil {
		where = append(where, "delegation_id = ?")
		args = append(args, *filter.DelegationID)
	}
	if filter.Since != nil {
		where = append(where, "occurred_at >= ?")
		args = append(args, filter.Since.UTC())
	}
	cond := strings.Join(where, " AND ")

	var total int64
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM audit_log WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, mapDBError(err)
	}

	args = append(args, filter.Page.Limit(), filter.Page.Offset())
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, occurred_at, principal_name, action, delegation_id, status, detail
		FROM audit_log WHERE `+cond+`
		ORDER BY occurred_at DESC, id DESC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, 0, mapDBError(err)
	}
	defer rows.Close() //nolint:errcheck

	var out []domain.AuditEntry
	for rows.Next() {
		var (
			e            domain.AuditEntry
			delegationID sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.OccurredAt, &e.PrincipalName, &e.Action, &delegationID, &e.Status, &e.Detail); err != nil {
			return nil, 0, err
		}
		e.DelegationID = delegationID.String
		e.OccurredAt = e.OccurredAt.UTC()
		out = append(out, e)
	}
	return out, total, rows.Err()
}
