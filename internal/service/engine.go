package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"scrumdeck/internal/domain"
)

// casRetries bounds the internal retry loop on optimistic-concurrency
// conflicts. A losing CompareAndSwap re-runs the whole check against the
// now-current state; after casRetries losses the engine surfaces a
// TransientError instead of stale-reading.
const casRetries = 3

// DefaultRetention is how long a revoked or expired delegation must sit
// before an administrative purge may destroy it.
const DefaultRetention = 30 * 24 * time.Hour

// AuthorizationEngine is the façade combining the permission catalog, the
// delegation store, scope resolution, the lifecycle state machine, and the
// quota tracker into a single CheckAndReserve call. It also exposes the
// delegation CRUD surface used by the UI layer.
type AuthorizationEngine struct {
	store     domain.DelegationRepository
	catalog   *domain.PermissionCatalog
	scopes    *ScopeResolver
	lifecycle LifecycleStateMachine
	quota     *QuotaTracker
	audit     *AuditTrail
	logger    *slog.Logger
	retention time.Duration
	now       func() time.Time
}

// NewAuthorizationEngine wires the engine from its components.
func NewAuthorizationEngine(
	store domain.DelegationRepository,
	catalog *domain.PermissionCatalog,
	scopes *ScopeResolver,
	audit *AuditTrail,
	logger *slog.Logger,
) *AuthorizationEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthorizationEngine{
		store:     store,
		catalog:   catalog,
		scopes:    scopes,
		quota:     NewQuotaTracker(store),
		audit:     audit,
		logger:    logger,
		retention: DefaultRetention,
		now:       time.Now,
	}
}

// SetRetention overrides the purge retention period.
func (e *AuthorizationEngine) SetRetention(d time.Duration) { e.retention = d }

// SetClock overrides the engine's time source. Tests use this to drive
// expiry without sleeping.
func (e *AuthorizationEngine) SetClock(now func() time.Time) { e.now = now }

// CheckAndReserve authorizes one agent action against a delegation and, if
// every gate passes, atomically reserves quota for it. The gates run in
// order and short-circuit: existence, usability (status + expiry),
// permission membership, scope coverage, then quota. Nothing is mutated
// unless all gates pass. A version conflict during the reservation re-runs
// the whole check from a fresh snapshot, bounded by casRetries.
func (e *AuthorizationEngine) CheckAndReserve(ctx context.Context, delegationID, permission string, requested domain.Scope, cost decimal.Decimal) (*domain.Delegation, error) {
	now := e.now().UTC()

	for attempt := 0; attempt < casRetries; attempt++ {
		d, err := e.store.Get(ctx, delegationID)
		if err != nil {
			return nil, e.deny(ctx, delegationID, permission, err)
		}

		// Lazy expiry: flip past-due delegations before denying, so the
		// stored status converges even without a sweep.
		if d.Expired(now) && !d.Status.Terminal() {
			e.expireInPlace(ctx, d, now)
			return nil, e.deny(ctx, delegationID, permission, &domain.ExpiredError{DelegationID: d.ID})
		}

		if err := e.lifecycle.IsUsable(d, now); err != nil {
			return nil, e.deny(ctx, delegationID, permission, err)
		}
		if !d.HasPermission(permission) {
			return nil, e.deny(ctx, delegationID, permission, &domain.PermissionNotGrantedError{Permission: permission})
		}

		covered, err := e.scopes.Covers(ctx, d.Scope, requested)
		if err != nil {
			return nil, fmt.Errorf("resolve scope: %w", err)
		}
		if !covered {
			return nil, e.deny(ctx, delegationID, permission, &domain.ScopeMismatchError{Granted: d.Scope, Requested: requested})
		}

		updated, err := e.quota.Reserve(ctx, d, cost)
		if err != nil {
			var conflict *domain.VersionConflictError
			if errors.As(err, &conflict) {
				continue
			}
			return nil, e.deny(ctx, delegationID, permission, err)
		}

		e.audit.Record(ctx, updated.PrincipalID, domain.AuditCheckAllowed, updated.ID, "allow",
			fmt.Sprintf("permission=%s scope=%s cost=%s", permission, requested, cost))
		return updated, nil
	}

	return nil, &domain.TransientError{
		Message: fmt.Sprintf("check and reserve: delegation %s contended, retry later", delegationID),
	}
}

// Release returns a concurrency slot after an in-flight task finishes.
// Callers that abandon a committed reservation must call this or leak the
// slot. Idempotent: double-release is a no-op.
func (e *AuthorizationEngine) Release(ctx context.Context, delegationID string) (*domain.Delegation, error) {
	d, err := e.quota.Release(ctx, delegationID)
	if err != nil {
		return nil, err
	}
	e.audit.Record(ctx, d.PrincipalID, domain.AuditReleased, d.ID, "ok", "")
	return d, nil
}

// CreateDelegation validates and persists a new delegation owned by actor.
// Every requested permission must be grantable for the agent type per the
// permission catalog; the delegation always starts active with zeroed
// usage and version 1.
func (e *AuthorizationEngine) CreateDelegation(ctx context.Context, actor domain.Actor, req domain.CreateDelegationRequest) (*domain.Delegation, error) {
	now := e.now().UTC()

	if err := req.Validate(now); err != nil {
		return nil, err
	}
	for _, p := range req.Permissions {
		if !e.catalog.IsGrantable(req.AgentType, p) {
			return nil, domain.ErrValidation("permission %q is not grantable to agent type %q", p, req.AgentType)
		}
	}

	d := &domain.Delegation{
		ID:              domain.NewID(),
		PrincipalID:     actor.Name,
		AgentType:       req.AgentType,
		Permissions:     append([]string(nil), req.Permissions...),
		Scope:           req.Scope,
		Limits:          req.Limits,
		Usage:           domain.Usage{TotalCost: decimal.Zero},
		Status:          domain.StatusActive,
		CreatedAt:       now,
		ExpiresAt:       req.ExpiresAt,
		StatusChangedAt: now,
		Version:         1,
	}

	created, err := e.store.Create(ctx, d)
	if err != nil {
		return nil, err
	}

	e.audit.Record(ctx, actor.Name, domain.AuditDelegationCreated, created.ID, "ok",
		fmt.Sprintf("agent_type=%s scope=%s", created.AgentType, created.Scope))
	return created, nil
}

// Get returns the delegation, applying lazy expiry first so callers never
// observe an active status past its expiry.
func (e *AuthorizationEngine) Get(ctx context.Context, actor domain.Actor, id string) (*domain.Delegation, error) {
	d, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.MayManage(d.PrincipalID) {
		return nil, domain.ErrAccessDenied("principal %q may not view this delegation", actor.Name)
	}

	now := e.now().UTC()
	if d.Expired(now) && !d.Status.Terminal() {
		if flipped := e.expireInPlace(ctx, d, now); flipped != nil {
			return flipped, nil
		}
	}
	return d, nil
}

// Suspend transitions an active delegation to suspended.
func (e *AuthorizationEngine) Suspend(ctx context.Context, actor domain.Actor, id string) (*domain.Delegation, error) {
	return e.transition(ctx, actor, id, domain.StatusSuspended, domain.AuditDelegationSuspended)
}

// Revoke terminally revokes an active or suspended delegation.
func (e *AuthorizationEngine) Revoke(ctx context.Context, actor domain.Actor, id string) (*domain.Delegation, error) {
	return e.transition(ctx, actor, id, domain.StatusRevoked, domain.AuditDelegationRevoked)
}

// Reactivate transitions a suspended delegation back to active. If the
// delegation's expiry has passed while it sat suspended, it transitions to
// expired instead and the caller gets ExpiredError.
func (e *AuthorizationEngine) Reactivate(ctx context.Context, actor domain.Actor, id string) (*domain.Delegation, error) {
	now := e.now().UTC()

	for attempt := 0; attempt < casRetries; attempt++ {
		d, err := e.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if !actor.MayManage(d.PrincipalID) {
			return nil, domain.ErrAccessDenied("principal %q may not manage this delegation", actor.Name)
		}

		if d.Expired(now) && !d.Status.Terminal() {
			e.expireInPlace(ctx, d, now)
			return nil, &domain.ExpiredError{DelegationID: d.ID}
		}

		updated, err := e.store.CompareAndSwap(ctx, id, d.Version, func(cur *domain.Delegation) error {
			return e.lifecycle.Transition(cur, domain.StatusActive, now)
		})
		if err != nil {
			var conflict *domain.VersionConflictError
			if errors.As(err, &conflict) {
				continue
			}
			return nil, err
		}

		e.audit.Record(ctx, actor.Name, domain.AuditDelegationReactivated, id, "ok", "")
		return updated, nil
	}
	return nil, &domain.TransientError{Message: fmt.Sprintf("reactivate: delegation %s contended, retry later", id)}
}

// ListByPrincipal returns the actor's own delegations plus a summary.
// Admins may list on behalf of another principal.
func (e *AuthorizationEngine) ListByPrincipal(ctx context.Context, actor domain.Actor, principalID string, filter domain.DelegationFilter) ([]domain.Delegation, domain.DelegationSummary, int64, error) {
	if principalID == "" {
		principalID = actor.Name
	}
	if !actor.MayManage(principalID) {
		return nil, domain.DelegationSummary{}, 0, domain.ErrAccessDenied("principal %q may not list delegations for %q", actor.Name, principalID)
	}

	ds, total, err := e.store.ListByPrincipal(ctx, principalID, filter)
	if err != nil {
		return nil, domain.DelegationSummary{}, 0, err
	}
	return ds, domain.Summarize(ds), total, nil
}

// Purge destroys a revoked or expired delegation once the retention period
// has elapsed since its final status change. Admin only; a delegation is
// never destroyed while active or suspended.
func (e *AuthorizationEngine) Purge(ctx context.Context, actor domain.Actor, id string) error {
	if !actor.Admin {
		return domain.ErrAccessDenied("purge requires an administrative principal")
	}

	d, err := e.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if !d.Status.Terminal() {
		return domain.ErrValidation("only revoked or expired delegations can be purged (status: %s)", d.Status)
	}
	if e.now().UTC().Sub(d.StatusChangedAt) < e.retention {
		return domain.ErrValidation("retention period has not elapsed for delegation %s", id)
	}

	if err := e.store.Purge(ctx, id); err != nil {
		return err
	}
	e.audit.Record(ctx, actor.Name, domain.AuditDelegationPurged, id, "ok", "")
	return nil
}

// Catalog exposes the permission catalog for read-only listing.
func (e *AuthorizationEngine) Catalog() *domain.PermissionCatalog { return e.catalog }

// transition runs a single owner-gated lifecycle transition through
// CompareAndSwap with the standard bounded retry.
func (e *AuthorizationEngine) transition(ctx context.Context, actor domain.Actor, id string, to domain.Status, auditAction string) (*domain.Delegation, error) {
	now := e.now().UTC()

	for attempt := 0; attempt < casRetries; attempt++ {
		d, err := e.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if !actor.MayManage(d.PrincipalID) {
			return nil, domain.ErrAccessDenied("principal %q may not manage this delegation", actor.Name)
		}

		// A past-due delegation expires rather than suspending or revoking.
		if d.Expired(now) && !d.Status.Terminal() {
			e.expireInPlace(ctx, d, now)
			return nil, &domain.ExpiredError{DelegationID: d.ID}
		}

		updated, err := e.store.CompareAndSwap(ctx, id, d.Version, func(cur *domain.Delegation) error {
			return e.lifecycle.Transition(cur, to, now)
		})
		if err != nil {
			var conflict *domain.VersionConflictError
			if errors.As(err, &conflict) {
				continue
			}
			return nil, err
		}

		e.audit.Record(ctx, actor.Name, auditAction, id, "ok", "")
		return updated, nil
	}
	return nil, &domain.TransientError{Message: fmt.Sprintf("transition: delegation %s contended, retry later", id)}
}

// expireInPlace flips a past-due delegation to expired, best-effort. Losing
// the swap is fine: whoever won either expired it already or performed a
// terminal transition.
func (e *AuthorizationEngine) expireInPlace(ctx context.Context, d *domain.Delegation, now time.Time) *domain.Delegation {
	updated, err := e.store.CompareAndSwap(ctx, d.ID, d.Version, func(cur *domain.Delegation) error {
		if cur.Status.Terminal() {
			return &domain.NotActiveError{Status: cur.Status}
		}
		return e.lifecycle.Transition(cur, domain.StatusExpired, now)
	})
	if err != nil {
		e.logger.Debug("lazy expiry flip lost", "delegation_id", d.ID, "error", err)
		return nil
	}
	e.audit.Record(ctx, updated.PrincipalID, domain.AuditDelegationExpired, updated.ID, "ok", "")
	return updated
}

// deny records a denied check and passes the reason through unchanged.
func (e *AuthorizationEngine) deny(ctx context.Context, delegationID, permission string, reason error) error {
	e.audit.Record(ctx, "", domain.AuditCheckDenied, delegationID, "deny",
		fmt.Sprintf("permission=%s reason=%v", permission, reason))
	return reason
}
