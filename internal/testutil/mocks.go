// Package testutil provides in-memory implementations of the domain
// repositories for unit tests that need failure injection the SQLite-backed
// tests cannot easily produce.
package testutil

import (
	"context"
	"sync"
	"time"

	"scrumdeck/internal/domain"
)

// MemoryDelegationStore is an in-memory domain.DelegationRepository with the
// same optimistic-concurrency semantics as the SQLite one. ConflictEvery
// injects a VersionConflictError on every call when set to 1, every second
// call when 2, and so on, for exercising retry paths.
type MemoryDelegationStore struct {
	mu            sync.Mutex
	records       map[string]*domain.Delegation
	casCalls      int
	ConflictEvery int
}

// NewMemoryDelegationStore creates an empty store.
func NewMemoryDelegationStore() *MemoryDelegationStore {
	return &MemoryDelegationStore{records: make(map[string]*domain.Delegation)}
}

func (s *MemoryDelegationStore) Create(_ context.Context, d *domain.Delegation) (*domain.Delegation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[d.ID]; ok {
		return nil, domain.ErrConflict("delegation %s already exists", d.ID)
	}
	s.records[d.ID] = d.Clone()
	return d.Clone(), nil
}

func (s *MemoryDelegationStore) Get(_ context.Context, id string) (*domain.Delegation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.records[id]
	if !ok {
		return nil, domain.ErrNotFound("delegation %s not found", id)
	}
	return d.Clone(), nil
}

func (s *MemoryDelegationStore) CompareAndSwap(_ context.Context, id string, expectedVersion int64, mutate domain.Mutator) (*domain.Delegation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.casCalls++
	if s.ConflictEvery > 0 && s.casCalls%s.ConflictEvery == 0 {
		return nil, &domain.VersionConflictError{DelegationID: id, ExpectedVersion: expectedVersion}
	}

	cur, ok := s.records[id]
	if !ok {
		return nil, domain.ErrNotFound("delegation %s not found", id)
	}
	if cur.Version != expectedVersion {
		return nil, &domain.VersionConflictError{DelegationID: id, ExpectedVersion: expectedVersion}
	}

	next := cur.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	if err := next.CheckInvariants(); err != nil {
		return nil, err
	}
	next.Version = expectedVersion + 1
	s.records[id] = next
	return next.Clone(), nil
}

func (s *MemoryDelegationStore) ListByPrincipal(_ context.Context, principalID string, filter domain.DelegationFilter) ([]domain.Delegation, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Delegation
	for _, d := range s.records {
		if d.PrincipalID != principalID {
			continue
		}
		if filter.Status != nil && d.Status != *filter.Status {
			continue
		}
		if filter.AgentType != nil && d.AgentType != *filter.AgentType {
			continue
		}
		out = append(out, *d.Clone())
	}
	return out, int64(len(out)), nil
}

func (s *MemoryDelegationStore) ListExpirable(_ context.Context, now time.Time) ([]domain.Delegation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Delegation
	for _, d := range s.records {
		if !d.Status.Terminal() && d.Expired(now) {
			out = append(out, *d.Clone())
		}
	}
	return out, nil
}

func (s *MemoryDelegationStore) Purge(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return domain.ErrNotFound("delegation %s not found", id)
	}
	delete(s.records, id)
	return nil
}

// StaticSprintResolver resolves sprint ownership from a fixed map.
type StaticSprintResolver map[string]string

func (r StaticSprintResolver) ProductForSprint(_ context.Context, sprintID string) (string, error) {
	productID, ok := r[sprintID]
	if !ok {
		return "", domain.ErrNotFound("sprint %s not found", sprintID)
	}
	return productID, nil
}

// RecordingAuditRepo collects audit entries for assertions.
type RecordingAuditRepo struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (r *RecordingAuditRepo) Insert(_ context.Context, e *domain.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *e)
	return nil
}

func (r *RecordingAuditRepo) List(_ context.Context, _ domain.AuditFilter) ([]domain.AuditEntry, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]domain.AuditEntry(nil), r.entries...)
	return out, int64(len(out)), nil
}

// Actions returns the recorded audit actions in order.
func (r *RecordingAuditRepo) Actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	actions := make([]string, len(r.entries))
	for i := range r.entries {
		actions[i] = r.entries[i].Action
	}
	return actions
}
