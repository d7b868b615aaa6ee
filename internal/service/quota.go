package service

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"scrumdeck/internal/domain"
)

// releaseRetries bounds the CompareAndSwap retry loop in Release. Release
// contention is rare (only racing reservations/releases on one delegation),
// so a handful of attempts is plenty.
const releaseRetries = 5

// QuotaTracker atomically checks-and-increments usage counters against
// limits. The three checks and the three increments form one atomic unit:
// they run inside a single CompareAndSwap mutator, so no reader ever
// observes a partial reservation.
type QuotaTracker struct {
	store domain.DelegationRepository
}

// NewQuotaTracker creates a QuotaTracker over the given store.
func NewQuotaTracker(store domain.DelegationRepository) *QuotaTracker {
	return &QuotaTracker{store: store}
}

// Reserve consumes one action, cost budget, and one concurrency slot from
// the delegation snapshot d. Checks run in order against the stored state
// at swap time: action count, per-action cost ceiling, then concurrency.
// On any failure it returns QuotaExceededError naming the limit, with no
// mutation. A VersionConflictError means d was stale; the caller re-reads
// and retries.
func (t *QuotaTracker) Reserve(ctx context.Context, d *domain.Delegation, cost decimal.Decimal) (*domain.Delegation, error) {
	if cost.Sign() < 0 {
		return nil, domain.ErrValidation("cost must not be negative")
	}

	return t.store.CompareAndSwap(ctx, d.ID, d.Version, func(cur *domain.Delegation) error {
		if cur.Usage.ActionsPerformed >= cur.Limits.MaxActions {
			return &domain.QuotaExceededError{Limit: domain.LimitMaxActions}
		}
		if cost.GreaterThan(cur.Limits.MaxCostPerAction) {
			return &domain.QuotaExceededError{Limit: domain.LimitMaxCostPerAction}
		}
		if cur.Usage.ConcurrentTasksInFlight >= cur.Limits.MaxConcurrentTasks {
			return &domain.QuotaExceededError{Limit: domain.LimitMaxConcurrentTasks}
		}

		cur.Usage.ActionsPerformed++
		cur.Usage.ConcurrentTasksInFlight++
		cur.Usage.TotalCost = cur.Usage.TotalCost.Add(cost)
		return nil
	})
}

// Release returns one concurrency slot when an in-flight task completes or
// fails. Actions and cost are consumed, not reserved, so they are never
// rolled back. Release is idempotent: releasing a delegation with nothing
// in flight is a no-op, which tolerates at-least-once delivery from
// callers.
func (t *QuotaTracker) Release(ctx context.Context, id string) (*domain.Delegation, error) {
	for attempt := 0; attempt < releaseRetries; attempt++ {
		d, err := t.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if d.Usage.ConcurrentTasksInFlight == 0 {
			return d, nil
		}

		updated, err := t.store.CompareAndSwap(ctx, id, d.Version, func(cur *domain.Delegation) error {
			if cur.Usage.ConcurrentTasksInFlight > 0 {
				cur.Usage.ConcurrentTasksInFlight--
			}
			return nil
		})
		if err != nil {
			var conflict *domain.VersionConflictError
			if errors.As(err, &conflict) {
				continue
			}
			return nil, err
		}
		return updated, nil
	}
	return nil, &domain.TransientError{Message: "release: too many concurrent updates, retry later"}
}
