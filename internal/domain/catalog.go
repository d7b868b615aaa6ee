package domain

import "sort"

// Permission name constants for the closed catalog.
const (
	PermCreateBacklogItems = "canCreateBacklogItems"
	PermEditBacklogItems   = "canEditBacklogItems"
	PermPrioritizeBacklog  = "canPrioritizeBacklog"
	PermPlanSprints        = "canPlanSprints"
	PermManageSprints      = "canManageSprints"
	PermCloseSprints       = "canCloseSprints"
	PermCreateBugReports   = "canCreateBugReports"
	PermTriageBugReports   = "canTriageBugReports"
	PermUpdateProducts     = "canUpdateProducts"
	PermPostStatusReports  = "canPostStatusReports"
)

// CatalogEntry describes one known permission: its name, the agent types
// that may be granted it, and a human-readable description. Entries are
// immutable after deployment; changes are a catalog version bump.
type CatalogEntry struct {
	Name              string   `json:"name"`
	AllowedAgentTypes []string `json:"allowedAgentTypes"`
	Description       string   `json:"description"`
}

// PermissionCatalog is the static registry of known permissions. It is
// consulted only at delegation-creation time; the delegation's own
// permission set is the runtime source of truth, so a later catalog change
// never silently revokes an existing grant.
type PermissionCatalog struct {
	entries map[string]CatalogEntry
}

// NewPermissionCatalog builds a catalog from the given entries.
func NewPermissionCatalog(entries []CatalogEntry) *PermissionCatalog {
	m := make(map[string]CatalogEntry, len(entries))
	for _, e := range entries {
		m[e.Name] = e
	}
	return &PermissionCatalog{entries: m}
}

// DefaultCatalog returns the built-in catalog for the Scrum agent types.
func DefaultCatalog() *PermissionCatalog {
	return NewPermissionCatalog([]CatalogEntry{
		{
			Name:              PermCreateBacklogItems,
			AllowedAgentTypes: []string{AgentProductOwner, AgentDeveloper},
			Description:       "Create backlog items on the product backlog",
		},
		{
			Name:              PermEditBacklogItems,
			AllowedAgentTypes: []string{AgentProductOwner, AgentDeveloper},
			Description:       "Edit existing backlog items",
		},
		{
			Name:              PermPrioritizeBacklog,
			AllowedAgentTypes: []string{AgentProductOwner},
			Description:       "Reorder and prioritize the product backlog",
		},
		{
			Name:              PermPlanSprints,
			AllowedAgentTypes: []string{AgentProductOwner, AgentScrumMaster},
			Description:       "Create sprints and assign backlog items to them",
		},
		{
			Name:              PermManageSprints,
			AllowedAgentTypes: []string{AgentScrumMaster},
			Description:       "Update sprint goals, dates, and membership",
		},
		{
			Name:              PermCloseSprints,
			AllowedAgentTypes: []string{AgentScrumMaster},
			Description:       "Complete or cancel a sprint",
		},
		{
			Name:              PermCreateBugReports,
			AllowedAgentTypes: []string{AgentDeveloper, AgentQAEngineer},
			Description:       "File bug reports against a product",
		},
		{
			Name:              PermTriageBugReports,
			AllowedAgentTypes: []string{AgentQAEngineer, AgentScrumMaster},
			Description:       "Triage, deduplicate, and route bug reports",
		},
		{
			Name:              PermUpdateProducts,
			AllowedAgentTypes: []string{AgentProductOwner},
			Description:       "Update product metadata and vision",
		},
		{
			Name:              PermPostStatusReports,
			AllowedAgentTypes: []string{AgentScrumMaster, AgentProductOwner},
			Description:       "Post sprint and product status summaries",
		},
	})
}

// IsGrantable reports whether the named permission exists and may be granted
// to the given agent type. Unknown permissions return false.
func (c *PermissionCatalog) IsGrantable(agentType, permission string) bool {
	e, ok := c.entries[permission]
	if !ok {
		return false
	}
	for _, at := range e.AllowedAgentTypes {
		if at == agentType {
			return true
		}
	}
	return false
}

// Entries returns all catalog entries sorted by name.
func (c *PermissionCatalog) Entries() []CatalogEntry {
	out := make([]CatalogEntry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
