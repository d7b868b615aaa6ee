package domain

import "time"

// Audit action names.
const (
	AuditDelegationCreated     = "delegation.created"
	AuditDelegationSuspended   = "delegation.suspended"
	AuditDelegationReactivated = "delegation.reactivated"
	AuditDelegationRevoked     = "delegation.revoked"
	AuditDelegationExpired     = "delegation.expired"
	AuditDelegationPurged      = "delegation.purged"
	AuditCheckAllowed          = "check.allowed"
	AuditCheckDenied           = "check.denied"
	AuditReleased              = "task.released"
)

// AuditEntry records one delegation lifecycle event or authorization
// decision. The engine emits entries best-effort; a failed write never
// blocks the decision itself.
type AuditEntry struct {
	ID            int64     `json:"id"`
	OccurredAt    time.Time `json:"occurredAt"`
	PrincipalName string    `json:"principalName"`
	Action        string    `json:"action"`
	DelegationID  string    `json:"delegationId,omitempty"`
	Status        string    `json:"status"`
	Detail        string    `json:"detail,omitempty"`
}

// AuditFilter holds filter parameters for querying audit entries.
type AuditFilter struct {
	PrincipalName *string
	Action        *string
	DelegationID  *string
	Since         *time.Time
	Page          PageRequest
}
