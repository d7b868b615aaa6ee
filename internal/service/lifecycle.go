// Package service implements the delegation engine: lifecycle, scope
// resolution, quota tracking, and the authorization façade.
package service

import (
	"time"

	"scrumdeck/internal/domain"
)

// LifecycleStateMachine governs delegation status transitions and expiry
// evaluation. It is stateless; all methods are pure functions of their
// arguments, so transitions compose into CompareAndSwap mutators.
type LifecycleStateMachine struct{}

// transitions is the set of legal status edges.
var transitions = map[domain.Status][]domain.Status{
	domain.StatusActive:    {domain.StatusSuspended, domain.StatusRevoked, domain.StatusExpired},
	domain.StatusSuspended: {domain.StatusActive, domain.StatusRevoked, domain.StatusExpired},
}

// CanTransition reports whether from → to is a legal edge. Revoked and
// expired are terminal.
func (LifecycleStateMachine) CanTransition(from, to domain.Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition mutates d's status to the target state, stamping
// StatusChangedAt. Returns NotActiveError when the edge is illegal.
func (m LifecycleStateMachine) Transition(d *domain.Delegation, to domain.Status, now time.Time) error {
	if !m.CanTransition(d.Status, to) {
		return &domain.NotActiveError{Status: d.Status}
	}
	d.Status = to
	d.StatusChangedAt = now.UTC()
	return nil
}

// IsUsable reports whether the delegation can authorize work right now:
// status must be active and any expiry must lie in the future. The check is
// re-evaluated on every authorization call rather than cached, because
// expiry is wall-clock-driven and independent of explicit mutation.
//
// Returns nil when usable, ExpiredError when the expiry has passed (even if
// the stored status still reads active), or NotActiveError
// otherwise.
func (LifecycleStateMachine) IsUsable(d *domain.Delegation, now time.Time) error {
	if d.Expired(now) && !d.Status.Terminal() {
		return &domain.ExpiredError{DelegationID: d.ID}
	}
	switch d.Status {
	case domain.StatusActive:
		return nil
	case domain.StatusExpired:
		return &domain.ExpiredError{DelegationID: d.ID}
	default:
		return &domain.NotActiveError{Status: d.Status}
	}
}
