package domain

import (
	"context"
	"time"
)

// Mutator transforms a delegation snapshot into its next state. It must be
// a pure function of its argument: CompareAndSwap may invoke it against a
// fresh snapshot on retry. Returning an error aborts the swap with no write.
type Mutator func(d *Delegation) error

// DelegationRepository is the durable store for delegation records. It is
// the single shared mutable resource in the engine; every mutation funnels
// through CompareAndSwap, which is what makes quota accounting race-free
// without a global lock.
type DelegationRepository interface {
	// Create persists a new delegation. Returns ConflictError if the id
	// already exists.
	Create(ctx context.Context, d *Delegation) (*Delegation, error)

	// Get returns the current snapshot. Returns NotFoundError if absent.
	Get(ctx context.Context, id string) (*Delegation, error)

	// CompareAndSwap atomically applies mutate to the stored record only if
	// its version still equals expectedVersion, bumping the version on
	// success. Returns VersionConflictError when the version moved, or the
	// mutator's error (no write) when it rejects the new state.
	CompareAndSwap(ctx context.Context, id string, expectedVersion int64, mutate Mutator) (*Delegation, error)

	// ListByPrincipal returns the principal's delegations, optionally
	// filtered by status and agent type, newest first.
	ListByPrincipal(ctx context.Context, principalID string, filter DelegationFilter) ([]Delegation, int64, error)

	// ListExpirable returns active or suspended delegations whose expiry
	// has passed, for the background sweep.
	ListExpirable(ctx context.Context, now time.Time) ([]Delegation, error)

	// Purge permanently deletes a delegation record. The engine only calls
	// this for revoked/expired delegations past the retention period.
	Purge(ctx context.Context, id string) error
}

// DelegationFilter narrows ListByPrincipal results.
type DelegationFilter struct {
	Status    *Status
	AgentType *string
	Page      PageRequest
}

// SprintOwnershipResolver reports which product a sprint belongs to.
// Sprint-to-product ownership is external domain data, so the scope
// resolver takes it as an injected dependency rather than hard-coding it.
type SprintOwnershipResolver interface {
	// ProductForSprint returns the owning product id, or NotFoundError if
	// the sprint is unknown.
	ProductForSprint(ctx context.Context, sprintID string) (string, error)
}

// SprintRepository registers and resolves sprint ownership records.
type SprintRepository interface {
	SprintOwnershipResolver

	// Register records (or updates) a sprint's owning product.
	Register(ctx context.Context, sprint *Sprint) error
}

// Sprint is the minimal sprint projection the engine needs: identity and
// owning product. The sprint's own lifecycle lives elsewhere.
type Sprint struct {
	ID        string    `json:"id"`
	ProductID string    `json:"productId"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// AuditRepository persists audit entries.
type AuditRepository interface {
	Insert(ctx context.Context, e *AuditEntry) error
	List(ctx context.Context, filter AuditFilter) ([]AuditEntry, int64, error)
}
