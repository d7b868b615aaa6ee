package domain

// Actor is the authenticated principal performing an operation. Admin
// actors may mutate and purge delegations they do not own. Authentication
// itself happens upstream; the engine only consumes the resolved identity.
type Actor struct {
	Name  string
	Admin bool
}

// MayManage reports whether the actor may mutate a delegation owned by
// principalID.
func (a Actor) MayManage(principalID string) bool {
	return a.Admin || a.Name == principalID
}
