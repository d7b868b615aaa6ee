package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internaldb "scrumdeck/internal/db"
	"scrumdeck/internal/db/repository"
	"scrumdeck/internal/domain"
)

func TestExpirySweeper_Sweep(t *testing.T) {
	writeDB, _ := internaldb.OpenTestSQLite(t)
	store := repository.NewDelegationRepo(writeDB)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	audit := NewAuditTrail(repository.NewAuditRepo(writeDB), logger)

	eng := NewAuthorizationEngine(store, domain.DefaultCatalog(), NewScopeResolver(repository.NewSprintRepo(writeDB)), audit, logger)
	clock := newTestClock()
	eng.SetClock(clock.Now)

	sweeper := NewExpirySweeper(store, audit, logger)
	sweeper.SetClock(clock.Now)
	ctx := context.Background()

	withExpiry := func(d time.Duration) domain.CreateDelegationRequest {
		req := basicRequest()
		exp := clock.Now().Add(d)
		req.ExpiresAt = &exp
		return req
	}

	dueActive := createTestDelegation(t, eng, withExpiry(time.Hour))
	dueSuspended := createTestDelegation(t, eng, withExpiry(time.Hour))
	_, err := eng.Suspend(ctx, owner, dueSuspended.ID)
	require.NoError(t, err)

	liveLater := createTestDelegation(t, eng, withExpiry(48*time.Hour))
	permanent := createTestDelegation(t, eng, basicRequest())

	clock.Advance(2 * time.Hour)

	n, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, id := range []string{dueActive.ID, dueSuspended.ID} {
		got, err := eng.Get(ctx, owner, id)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusExpired, got.Status)
	}

	got, err := eng.Get(ctx, owner, liveLater.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, got.Status)

	got, err = eng.Get(ctx, owner, permanent.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, got.Status)

	// Re-running is a no-op once everything due has been flipped.
	n, err = sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
