package repository

import (
	"context"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internaldb "scrumdeck/internal/db"
	"scrumdeck/internal/domain"
)

func newTestDelegation() *domain.Delegation {
	now := time.Now().UTC().Truncate(time.Second)
	return &domain.Delegation{
		ID:          domain.NewID(),
		PrincipalID: "user-1",
		AgentType:   domain.AgentProductOwner,
		Permissions: []string{domain.PermCreateBacklogItems, domain.PermEditBacklogItems},
		Scope:       domain.ProductScope("P1"),
		Limits: domain.Limits{
			MaxActions:         5,
			MaxCostPerAction:   decimal.NewFromFloat(2.5),
			MaxConcurrentTasks: 2,
		},
		Usage: domain.Usage{
			TotalCost: decimal.Zero,
		},
		Status:          domain.StatusActive,
		CreatedAt:       now,
		StatusChangedAt: now,
		Version:         1,
	}
}

func setupDelegationRepo(t *testing.T) *DelegationRepo {
	t.Helper()
	writeDB, _ := internaldb.OpenTestSQLite(t)
	return NewDelegationRepo(writeDB)
}

func TestDelegationRepo_CreateGet(t *testing.T) {
	repo := setupDelegationRepo(t)
	ctx := context.Background()

	d := newTestDelegation()
	created, err := repo.Create(ctx, d)
	require.NoError(t, err)

	got, err := repo.Get(ctx, d.ID)
	require.NoError(t, err)

	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, d.PrincipalID, got.PrincipalID)
	assert.Equal(t, d.AgentType, got.AgentType)
	assert.Equal(t, d.Permissions, got.Permissions)
	assert.Equal(t, d.Scope, got.Scope)
	assert.Equal(t, d.Limits.MaxActions, got.Limits.MaxActions)
	assert.True(t, got.Limits.MaxCostPerAction.Equal(decimal.NewFromFloat(2.5)))
	assert.Equal(t, domain.StatusActive, got.Status)
	assert.Equal(t, int64(0), got.Usage.ActionsPerformed)
	assert.True(t, got.Usage.TotalCost.IsZero())
	assert.Equal(t, int64(1), got.Version)
	assert.Nil(t, got.ExpiresAt)
}

func TestDelegationRepo_Create_Duplicate(t *testing.T) {
	repo := setupDelegationRepo(t)
	ctx := context.Background()

	d := newTestDelegation()
	_, err := repo.Create(ctx, d)
	require.NoError(t, err)

	_, err = repo.Create(ctx, d)
	var conflict *domain.ConflictError
	assert.ErrorAs(t, err, &conflict)
}

func TestDelegationRepo_Get_NotFound(t *testing.T) {
	repo := setupDelegationRepo(t)

	_, err := repo.Get(context.Background(), "missing")
	var notFound *domain.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestDelegationRepo_CompareAndSwap(t *testing.T) {
	repo := setupDelegationRepo(t)
	ctx := context.Background()

	d := newTestDelegation()
	_, err := repo.Create(ctx, d)
	require.NoError(t, err)

	updated, err := repo.CompareAndSwap(ctx, d.ID, 1, func(cur *domain.Delegation) error {
		cur.Usage.ActionsPerformed++
		cur.Usage.TotalCost = cur.Usage.TotalCost.Add(decimal.NewFromFloat(0.5))
		cur.Usage.ConcurrentTasksInFlight++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)
	assert.Equal(t, int64(1), updated.Usage.ActionsPerformed)
	assert.True(t, updated.Usage.TotalCost.Equal(decimal.NewFromFloat(0.5)))

	// Stale version loses.
	_, err = repo.CompareAndSwap(ctx, d.ID, 1, func(cur *domain.Delegation) error {
		cur.Usage.ActionsPerformed++
		return nil
	})
	var conflict *domain.VersionConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, d.ID, conflict.DelegationID)

	// The losing attempt wrote nothing.
	got, err := repo.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Usage.ActionsPerformed)
	assert.Equal(t, int64(2), got.Version)
}

func TestDelegationRepo_CompareAndSwap_MutatorError(t *testing.T) {
	repo := setupDelegationRepo(t)
	ctx := context.Background()

	d := newTestDelegation()
	_, err := repo.Create(ctx, d)
	require.NoError(t, err)

	wantErr := &domain.QuotaExceededError{Limit: domain.LimitMaxActions}
	_, err = repo.CompareAndSwap(ctx, d.ID, 1, func(cur *domain.Delegation) error {
		return wantErr
	})
	assert.ErrorIs(t, err, wantErr)

	got, err := repo.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version, "aborted mutator must not bump the version")
}

func TestDelegationRepo_CompareAndSwap_InvariantViolation(t *testing.T) {
	repo := setupDelegationRepo(t)
	ctx := context.Background()

	d := newTestDelegation()
	_, err := repo.Create(ctx, d)
	require.NoError(t, err)

	_, err = repo.CompareAndSwap(ctx, d.ID, 1, func(cur *domain.Delegation) error {
		cur.Usage.ActionsPerformed = cur.Limits.MaxActions + 1
		return nil
	})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)

	got, err := repo.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Usage.ActionsPerformed)
}

func TestDelegationRepo_ListByPrincipal(t *testing.T) {
	repo := setupDelegationRepo(t)
	ctx := context.Background()

	first := newTestDelegation()
	_, err := repo.Create(ctx, first)
	require.NoError(t, err)

	second := newTestDelegation()
	second.AgentType = domain.AgentScrumMaster
	second.Permissions = []string{domain.PermManageSprints}
	second.CreatedAt = first.CreatedAt.Add(time.Minute)
	_, err = repo.Create(ctx, second)
	require.NoError(t, err)

	other := newTestDelegation()
	other.PrincipalID = "user-2"
	_, err = repo.Create(ctx, other)
	require.NoError(t, err)

	all, total, err := repo.ListByPrincipal(ctx, "user-1", domain.DelegationFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID, "newest first")

	agentType := domain.AgentScrumMaster
	filtered, total, err := repo.ListByPrincipal(ctx, "user-1", domain.DelegationFilter{AgentType: &agentType})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, filtered, 1)
	assert.Equal(t, second.ID, filtered[0].ID)

	status := domain.StatusRevoked
	none, total, err := repo.ListByPrincipal(ctx, "user-1", domain.DelegationFilter{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
	assert.Empty(t, none)
}

func TestDelegationRepo_Purge(t *testing.T) {
	repo := setupDelegationRepo(t)
	ctx := context.Background()

	d := newTestDelegation()
	_, err := repo.Create(ctx, d)
	require.NoError(t, err)

	require.NoError(t, repo.Purge(ctx, d.ID))

	var notFound *domain.NotFoundError
	_, err = repo.Get(ctx, d.ID)
	assert.ErrorAs(t, err, &notFound)

	err = repo.Purge(ctx, d.ID)
	assert.ErrorAs(t, err, &notFound)
}

func TestDelegationRepo_ListExpirable(t *testing.T) {
	repo := setupDelegationRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	expired := newTestDelegation()
	past := now.Add(-time.Hour)
	expired.ExpiresAt = &past
	_, err := repo.Create(ctx, expired)
	require.NoError(t, err)

	live := newTestDelegation()
	future := now.Add(time.Hour)
	live.ExpiresAt = &future
	_, err = repo.Create(ctx, live)
	require.NoError(t, err)

	permanent := newTestDelegation()
	_, err = repo.Create(ctx, permanent)
	require.NoError(t, err)

	due, err := repo.ListExpirable(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, expired.ID, due[0].ID)
}
