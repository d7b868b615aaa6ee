package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"scrumdeck/internal/domain"
)

// delegationColumns is the scan order shared by every delegation query.
const delegationColumns = `id, principal_id, agent_type, permissions,
	scope_kind, scope_product_id, scope_sprint_id,
	max_actions, max_cost_per_action, max_concurrent_tasks,
	actions_performed, total_cost, tasks_in_flight,
	status, created_at, expires_at, status_changed_at, version`

// DelegationRepo implements domain.DelegationRepository on SQLite.
//
// CompareAndSwap runs on the write pool, which is configured with a single
// connection and immediate transaction locking; combined with the version
// predicate on the UPDATE this gives the optimistic-concurrency semantics
// the engine's retry loop relies on.
type DelegationRepo struct {
	db *sql.DB
}

// NewDelegationRepo creates a new DelegationRepo on the given (write) pool.
func NewDelegationRepo(db *sql.DB) *DelegationRepo {
	return &DelegationRepo{db: db}
}

var _ domain.DelegationRepository = (*DelegationRepo)(nil)

// Create persists a new delegation record.
func (r *DelegationRepo) Create(ctx context.Context, d *domain.Delegation) (*domain.Delegation, error) {
	perms, err := json.Marshal(d.Permissions)
	if err != nil {
		return nil, fmt.Errorf("marshal permissions: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO delegations (`+delegationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.PrincipalID, d.AgentType, string(perms),
		string(d.Scope.Kind), nullString(d.Scope.ProductID), nullString(d.Scope.SprintID),
		d.Limits.MaxActions, d.Limits.MaxCostPerAction.String(), d.Limits.MaxConcurrentTasks,
		d.Usage.ActionsPerformed, d.Usage.TotalCost.String(), d.Usage.ConcurrentTasksInFlight,
		string(d.Status), d.CreatedAt.UTC(), nullTime(d.ExpiresAt), d.StatusChangedAt.UTC(), d.Version,
	)
	if err != nil {
		return nil, mapDBError(err)
	}
	return r.Get(ctx, d.ID)
}

// Get returns the current snapshot of a delegation.
func (r *DelegationRepo) Get(ctx context.Context, id string) (*domain.Delegation, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+delegationColumns+` FROM delegations WHERE id = ?`, id)
	d, err := scanDelegation(row)
	if err != nil {
		return nil, mapDBError(err)
	}
	return d, nil
}

// CompareAndSwap applies mutate to the stored record if and only if its
// version still equals expectedVersion. The read, the mutation, the
// invariant check, and the conditional write happen inside one immediate
// transaction, so no other reader ever observes a partially applied state.
func (r *DelegationRepo) CompareAndSwap(ctx context.Context, id string, expectedVersion int64, mutate domain.Mutator) (*domain.Delegation, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin cas tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	row := tx.QueryRowContext(ctx,
		`SELECT `+delegationColumns+` FROM delegations WHERE id = ?`, id)
	current, err := scanDelegation(row)
	if err != nil {
		return nil, mapDBError(err)
	}

	if current.Version != expectedVersion {
		return nil, &domain.VersionConflictError{DelegationID: id, ExpectedVersion: expectedVersion}
	}

	next := current.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	if err := next.CheckInvariants(); err != nil {
		return nil, err
	}

	perms, err := json.Marshal(next.Permissions)
	if err != nil {
		return nil, fmt.Errorf("marshal permissions: %w", err)
	}

	next.Version = expectedVersion + 1
	res, err := tx.ExecContext(ctx, `
		UPDATE delegations SET
			permissions = ?,
			scope_kind = ?, scope_product_id = ?, scope_sprint_id = ?,
			max_actions = ?, max_cost_per_action = ?, max_concurrent_tasks = ?,
			actions_performed = ?, total_cost = ?, tasks_in_flight = ?,
			status = ?, expires_at = ?, status_changed_at = ?,
			version = ?
		WHERE id = ? AND version = ?`,
		string(perms),
		string(next.Scope.Kind), nullString(next.Scope.ProductID), nullString(next.Scope.SprintID),
		next.Limits.MaxActions, next.Limits.MaxCostPerAction.String(), next.Limits.MaxConcurrentTasks,
		next.Usage.ActionsPerformed, next.Usage.TotalCost.String(), next.Usage.ConcurrentTasksInFlight,
		string(next.Status), nullTime(next.ExpiresAt), next.StatusChangedAt.UTC(),
		next.Version,
		id, expectedVersion,
	)
	if err != nil {
		return nil, mapDBError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("cas rows affected: %w", err)
	}
	if affected == 0 {
		return nil, &domain.VersionConflictError{DelegationID: id, ExpectedVersion: expectedVersion}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit cas tx: %w", err)
	}
	return next, nil
}

// ListByPrincipal returns the principal's delegations, newest first.
func (r *DelegationRepo) ListByPrincipal(ctx context.Context, principalID string, filter domain.DelegationFilter) ([]domain.Delegation, int64, error) {
	where := []string{"principal_id = ?"}
	args := []interface{}{principalID}

	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.AgentType != nil {
		where = append(where, "agent_type = ?")
		args = append(args, *filter.AgentType)
	}
	cond := strings.Join(where, " AND ")

	var total int64
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM delegations WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, mapDBError(err)
	}

	query := `SELECT ` + delegationColumns + ` FROM delegations WHERE ` + cond +
		` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, filter.Page.Limit(), filter.Page.Offset())

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, mapDBError(err)
	}
	defer rows.Close() //nolint:errcheck

	var out []domain.Delegation
	for rows.Next() {
		d, err := scanDelegation(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *d)
	}
	return out, total, rows.Err()
}

// Purge permanently deletes a delegation record.
func (r *DelegationRepo) Purge(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM delegations WHERE id = ?`, id)
	if err != nil {
		return mapDBError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrNotFound("delegation %s not found", id)
	}
	return nil
}

// ListExpirable returns active or suspended delegations whose expiry has
// passed. Used by the background sweep; the sweep still goes through
// CompareAndSwap to flip each one, so a concurrent mutation simply wins.
func (r *DelegationRepo) ListExpirable(ctx context.Context, now time.Time) ([]domain.Delegation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+delegationColumns+` FROM delegations
		WHERE status IN ('active', 'suspended')
		  AND expires_at IS NOT NULL AND expires_at <= ?`,
		now.UTC())
	if err != nil {
		return nil, mapDBError(err)
	}
	defer rows.Close() //nolint:errcheck

	var out []domain.Delegation
	for rows.Next() {
		d, err := scanDelegation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanDelegation(s scanner) (*domain.Delegation, error) {
	var (
		d         domain.Delegation
		permsJSON string
		scopeKind string
		productID sql.NullString
		sprintID  sql.NullString
		maxCost   string
		totalCost string
		status    string
		expiresAt sql.NullTime
	)

	err := s.Scan(
		&d.ID, &d.PrincipalID, &d.AgentType, &permsJSON,
		&scopeKind, &productID, &sprintID,
		&d.Limits.MaxActions, &maxCost, &d.Limits.MaxConcurrentTasks,
		&d.Usage.ActionsPerformed, &totalCost, &d.Usage.ConcurrentTasksInFlight,
		&status, &d.CreatedAt, &expiresAt, &d.StatusChangedAt, &d.Version,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(permsJSON), &d.Permissions); err != nil {
		return nil, fmt.Errorf("unmarshal permissions: %w", err)
	}
	d.Scope = domain.Scope{Kind: domain.ScopeKind(scopeKind), ProductID: productID.String, SprintID: sprintID.String}
	if d.Limits.MaxCostPerAction, err = decimal.NewFromString(maxCost); err != nil {
		return nil, fmt.Errorf("parse max_cost_per_action: %w", err)
	}
	if d.Usage.TotalCost, err = decimal.NewFromString(totalCost); err != nil {
		return nil, fmt.Errorf("parse total_cost: %w", err)
	}
	d.Status = domain.Status(status)
	if expiresAt.Valid {
		t := expiresAt.Time.UTC()
		d.ExpiresAt = &t
	}
	d.CreatedAt = d.CreatedAt.UTC()
	d.StatusChangedAt = d.StatusChangedAt.UTC()

	return &d, nil
}
