package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scrumdeck/internal/domain"
)

func TestLifecycle_CanTransition(t *testing.T) {
	m := LifecycleStateMachine{}

	tests := []struct {
		from, to domain.Status
		want     bool
	}{
		{domain.StatusActive, domain.StatusSuspended, true},
		{domain.StatusActive, domain.StatusRevoked, true},
		{domain.StatusActive, domain.StatusExpired, true},
		{domain.StatusSuspended, domain.StatusActive, true},
		{domain.StatusSuspended, domain.StatusRevoked, true},
		{domain.StatusSuspended, domain.StatusExpired, true},

		{domain.StatusActive, domain.StatusActive, false},
		{domain.StatusRevoked, domain.StatusActive, false},
		{domain.StatusRevoked, domain.StatusSuspended, false},
		{domain.StatusRevoked, domain.StatusExpired, false},
		{domain.StatusExpired, domain.StatusActive, false},
		{domain.StatusExpired, domain.StatusRevoked, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, m.CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestLifecycle_Transition(t *testing.T) {
	m := LifecycleStateMachine{}
	now := time.Now().UTC()

	d := &domain.Delegation{Status: domain.StatusActive}
	require.NoError(t, m.Transition(d, domain.StatusSuspended, now))
	assert.Equal(t, domain.StatusSuspended, d.Status)
	assert.Equal(t, now, d.StatusChangedAt)

	// Terminal states reject every outgoing edge.
	d.Status = domain.StatusRevoked
	err := m.Transition(d, domain.StatusActive, now)
	var notActive *domain.NotActiveError
	require.ErrorAs(t, err, &notActive)
	assert.Equal(t, domain.StatusRevoked, notActive.Status)
	assert.Equal(t, domain.StatusRevoked, d.Status, "failed transition must not mutate")
}

func TestLifecycle_IsUsable(t *testing.T) {
	m := LifecycleStateMachine{}
	now := time.Now().UTC()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	assert.NoError(t, m.IsUsable(&domain.Delegation{Status: domain.StatusActive}, now))
	assert.NoError(t, m.IsUsable(&domain.Delegation{Status: domain.StatusActive, ExpiresAt: &future}, now))

	var notActive *domain.NotActiveError
	err := m.IsUsable(&domain.Delegation{Status: domain.StatusSuspended}, now)
	assert.ErrorAs(t, err, &notActive)

	err = m.IsUsable(&domain.Delegation{Status: domain.StatusRevoked}, now)
	assert.ErrorAs(t, err, &notActive)

	// Expiry wins over stored status: an "active" record past its expiry is
	// reported expired, not usable.
	var expired *domain.ExpiredError
	err = m.IsUsable(&domain.Delegation{ID: "d1", Status: domain.StatusActive, ExpiresAt: &past}, now)
	assert.ErrorAs(t, err, &expired)

	err = m.IsUsable(&domain.Delegation{ID: "d1", Status: domain.StatusSuspended, ExpiresAt: &past}, now)
	assert.ErrorAs(t, err, &expired)

	err = m.IsUsable(&domain.Delegation{Status: domain.StatusExpired}, now)
	assert.ErrorAs(t, err, &expired)
}
