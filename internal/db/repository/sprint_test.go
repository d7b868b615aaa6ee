package repository

import (
	"context"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internaldb "scrumdeck/internal/db"
	"scrumdeck/internal/domain"
)

func TestSprintRepo_RegisterAndResolve(t *testing.T) {
	writeDB, _ := internaldb.OpenTestSQLite(t)
	repo := NewSprintRepo(writeDB)
	ctx := context.Background()

	sprint := &domain.Sprint{ID: "S1", ProductID: "P1", Name: "Sprint 1", CreatedAt: time.Now().UTC()}
	require.NoError(t, repo.Register(ctx, sprint))

	productID, err := repo.ProductForSprint(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, "P1", productID)

	// Re-registering moves the sprint to a new product.
	sprint.ProductID = "P2"
	require.NoError(t, repo.Register(ctx, sprint))

	productID, err = repo.ProductForSprint(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, "P2", productID)
}

func TestSprintRepo_UnknownSprint(t *testing.T) {
	writeDB, _ := internaldb.OpenTestSQLite(t)
	repo := NewSprintRepo(writeDB)

	_, err := repo.ProductForSprint(context.Background(), "S404")
	var notFound *domain.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestAuditRepo_InsertAndList(t *testing.T) {
	writeDB, _ := internaldb.OpenTestSQLite(t)
	repo := NewAuditRepo(writeDB)
	ctx := context.Background()

	entries := []domain.AuditEntry{
		{OccurredAt: time.Now().UTC().Add(-time.Minute), PrincipalName: "alice", Action: domain.AuditDelegationCreated, DelegationID: "d1", Status: "ok"},
		{OccurredAt: time.Now().UTC(), PrincipalName: "alice", Action: domain.AuditCheckDenied, DelegationID: "d1", Status: "quota_exceeded", Detail: "max_actions"},
		{OccurredAt: time.Now().UTC(), PrincipalName: "bob", Action: domain.AuditDelegationRevoked, DelegationID: "d2", Status: "ok"},
	}
	for i := range entries {
		require.NoError(t, repo.Insert(ctx, &entries[i]))
	}

	alice := "alice"
	got, total, err := repo.List(ctx, domain.AuditFilter{PrincipalName: &alice})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, got, 2)
	assert.Equal(t, domain.AuditCheckDenied, got[0].Action, "newest first")

	action := domain.AuditDelegationRevoked
	got, total, err = repo.List(ctx, domain.AuditFilter{Action: &action})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "bob", got[0].PrincipalName)
}
