package service

import (
	"context"
	"errors"

	"scrumdeck/internal/domain"
)

// ScopeResolver decides whether a delegation's scope covers a requested
// resource scope. Sprint-to-product ownership is external domain data, so
// the resolver takes it as an injected lookup rather than hard-coding it.
type ScopeResolver struct {
	sprints domain.SprintOwnershipResolver
}

// NewScopeResolver creates a ScopeResolver backed by the given ownership
// lookup.
func NewScopeResolver(sprints domain.SprintOwnershipResolver) *ScopeResolver {
	return &ScopeResolver{sprints: sprints}
}

// Covers reports whether granted covers requested.
//
//   - Global covers any requested scope.
//   - Product{p} covers Product{p} and any Sprint{s} whose owning product
//     is p. It never covers Global or another product.
//   - Sprint{s} covers only Sprint{s} exactly, no implicit widening.
//
// An unknown sprint in the requested scope is simply not covered; only
// infrastructure failures from the ownership lookup surface as errors.
func (r *ScopeResolver) Covers(ctx context.Context, granted, requested domain.Scope) (bool, error) {
	switch granted.Kind {
	case domain.ScopeGlobal:
		return true, nil

	case domain.ScopeProduct:
		switch requested.Kind {
		case domain.ScopeProduct:
			return granted.ProductID == requested.ProductID, nil
		case domain.ScopeSprint:
			owner, err := r.sprints.ProductForSprint(ctx, requested.SprintID)
			if err != nil {
				var notFound *domain.NotFoundError
				if errors.As(err, &notFound) {
					return false, nil
				}
				return false, err
			}
			return owner == granted.ProductID, nil
		default:
			return false, nil
		}

	case domain.ScopeSprint:
		return requested.Kind == domain.ScopeSprint && granted.SprintID == requested.SprintID, nil

	default:
		return false, nil
	}
}
