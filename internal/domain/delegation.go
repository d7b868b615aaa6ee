package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Agent type constants. Each identifies a kind of autonomous agent a
// principal can delegate to.
const (
	AgentProductOwner = "product_owner"
	AgentScrumMaster  = "scrum_master"
	AgentDeveloper    = "developer"
	AgentQAEngineer   = "qa_engineer"
)

// Status enumerates the delegation lifecycle states.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusRevoked   Status = "revoked"
	StatusExpired   Status = "expired"
)

// Valid reports whether s is a known lifecycle status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusSuspended, StatusRevoked, StatusExpired:
		return true
	}
	return false
}

// Terminal reports whether s has no outgoing transitions.
func (s Status) Terminal() bool {
	return s == StatusRevoked || s == StatusExpired
}

// MaxConcurrentTasksCeiling bounds fan-out per delegation.
const MaxConcurrentTasksCeiling = 10

// Limits are the numeric ceilings bounding how much a delegation may be used.
type Limits struct {
	MaxActions         int64           `json:"maxActions"`
	MaxCostPerAction   decimal.Decimal `json:"maxCostPerAction"`
	MaxConcurrentTasks int64           `json:"maxConcurrentTasks"`
}

// Validate checks that all three limits are positive and the concurrency
// ceiling is within [1, MaxConcurrentTasksCeiling].
func (l Limits) Validate() error {
	if l.MaxActions <= 0 {
		return ErrValidation("limits.maxActions must be positive")
	}
	if l.MaxCostPerAction.Sign() <= 0 {
		return ErrValidation("limits.maxCostPerAction must be positive")
	}
	if l.MaxConcurrentTasks < 1 || l.MaxConcurrentTasks > MaxConcurrentTasksCeiling {
		return ErrValidation("limits.maxConcurrentTasks must be between 1 and %d", MaxConcurrentTasksCeiling)
	}
	return nil
}

// Usage tracks consumed budget against Limits.
type Usage struct {
	ActionsPerformed        int64           `json:"actionsPerformed"`
	TotalCost               decimal.Decimal `json:"totalCost"`
	ConcurrentTasksInFlight int64           `json:"concurrentTasksInFlight"`
}

// Delegation is a grant of a bounded permission set from a principal to an
// agent type, scoped and quota-limited. All mutation goes through the
// store's CompareAndSwap keyed on Version.
type Delegation struct {
	ID              string     `json:"id"`
	PrincipalID     string     `json:"principalId"`
	AgentType       string     `json:"agentType"`
	Permissions     []string   `json:"permissions"`
	Scope           Scope      `json:"scope"`
	Limits          Limits     `json:"limits"`
	Usage           Usage      `json:"usage"`
	Status          Status     `json:"status"`
	CreatedAt       time.Time  `json:"createdAt"`
	ExpiresAt       *time.Time `json:"expiresAt,omitempty"`
	StatusChangedAt time.Time  `json:"statusChangedAt"`
	Version         int64      `json:"version"`
}

// HasPermission reports whether the delegation's own permission set contains
// name. The permission set, not the catalog, is the runtime source of truth.
func (d *Delegation) HasPermission(name string) bool {
	for _, p := range d.Permissions {
		if p == name {
			return true
		}
	}
	return false
}

// Expired reports whether the delegation's expiry, if any, has passed.
func (d *Delegation) Expired(now time.Time) bool {
	return d.ExpiresAt != nil && !now.Before(*d.ExpiresAt)
}

// CheckInvariants verifies the usage-vs-limits invariants that must hold
// after every mutation. The store rejects any write that would violate them.
func (d *Delegation) CheckInvariants() error {
	if d.Usage.ActionsPerformed < 0 || d.Usage.ConcurrentTasksInFlight < 0 {
		return ErrValidation("usage counters must not be negative")
	}
	if d.Usage.ActionsPerformed > d.Limits.MaxActions {
		return ErrValidation("usage.actionsPerformed (%d) exceeds limits.maxActions (%d)",
			d.Usage.ActionsPerformed, d.Limits.MaxActions)
	}
	if d.Usage.ConcurrentTasksInFlight > d.Limits.MaxConcurrentTasks {
		return ErrValidation("usage.concurrentTasksInFlight (%d) exceeds limits.maxConcurrentTasks (%d)",
			d.Usage.ConcurrentTasksInFlight, d.Limits.MaxConcurrentTasks)
	}
	return nil
}

// Clone returns a deep copy so CompareAndSwap mutators can work on a
// snapshot without aliasing the caller's view.
func (d *Delegation) Clone() *Delegation {
	c := *d
	c.Permissions = append([]string(nil), d.Permissions...)
	if d.ExpiresAt != nil {
		t := *d.ExpiresAt
		c.ExpiresAt = &t
	}
	return &c
}

// CreateDelegationRequest is the creation payload accepted by the engine.
type CreateDelegationRequest struct {
	AgentType   string     `json:"agentType"`
	Permissions []string   `json:"permissions"`
	Scope       Scope      `json:"scope"`
	Limits      Limits     `json:"limits"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
}

// Validate performs the structural checks that do not need the permission
// catalog: non-empty permission set, well-formed scope, positive limits,
// and a future expiry when one is set.
func (r CreateDelegationRequest) Validate(now time.Time) error {
	if r.AgentType == "" {
		return ErrValidation("agentType is required")
	}
	if len(r.Permissions) == 0 {
		return ErrValidation("permissions must not be empty")
	}
	seen := make(map[string]bool, len(r.Permissions))
	for _, p := range r.Permissions {
		if p == "" {
			return ErrValidation("permissions must not contain empty names")
		}
		if seen[p] {
			return ErrValidation("duplicate permission %q", p)
		}
		seen[p] = true
	}
	if err := r.Scope.Validate(); err != nil {
		return err
	}
	if err := r.Limits.Validate(); err != nil {
		return err
	}
	if r.ExpiresAt != nil && !r.ExpiresAt.After(now) {
		return ErrValidation("expiresAt must be in the future")
	}
	return nil
}

// DelegationSummary aggregates a principal's delegations for list responses.
type DelegationSummary struct {
	Total            int64           `json:"total"`
	Active           int64           `json:"active"`
	Suspended        int64           `json:"suspended"`
	Revoked          int64           `json:"revoked"`
	Expired          int64           `json:"expired"`
	ActionsPerformed int64           `json:"actionsPerformed"`
	TotalCost        decimal.Decimal `json:"totalCost"`
}

// Summarize builds a DelegationSummary over the given delegations.
func Summarize(ds []Delegation) DelegationSummary {
	s := DelegationSummary{TotalCost: decimal.Zero}
	for _, d := range ds {
		s.Total++
		switch d.Status {
		case StatusActive:
			s.Active++
		case StatusSuspended:
			s.Suspended++
		case StatusRevoked:
			s.Revoked++
		case StatusExpired:
			s.Expired++
		}
		s.ActionsPerformed += d.Usage.ActionsPerformed
		s.TotalCost = s.TotalCost.Add(d.Usage.TotalCost)
	}
	return s
}
