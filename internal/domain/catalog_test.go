package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPermissionCatalog_IsGrantable(t *testing.T) {
	cat := DefaultCatalog()

	assert.True(t, cat.IsGrantable(AgentProductOwner, PermCreateBacklogItems))
	assert.True(t, cat.IsGrantable(AgentScrumMaster, PermCloseSprints))
	assert.True(t, cat.IsGrantable(AgentQAEngineer, PermTriageBugReports))

	// Known permission, wrong agent type.
	assert.False(t, cat.IsGrantable(AgentQAEngineer, PermPrioritizeBacklog))
	assert.False(t, cat.IsGrantable(AgentDeveloper, PermCloseSprints))

	// Unknown permission or agent type.
	assert.False(t, cat.IsGrantable(AgentProductOwner, "canDeleteEverything"))
	assert.False(t, cat.IsGrantable("intern", PermCreateBacklogItems))
}

func TestPermissionCatalog_Entries(t *testing.T) {
	cat := NewPermissionCatalog([]CatalogEntry{
		{Name: "b", AllowedAgentTypes: []string{AgentDeveloper}},
		{Name: "a", AllowedAgentTypes: []string{AgentDeveloper}},
	})

	entries := cat.Entries()
	assert.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].Name)
	assert.Equal(t, "b", entries[1].Name)
}
