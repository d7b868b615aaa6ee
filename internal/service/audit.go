package service

import (
	"context"
	"log/slog"
	"time"

	"scrumdeck/internal/domain"
)

// AuditTrail records delegation lifecycle events and authorization
// decisions. Writes are best-effort: a failed insert is logged and
// swallowed, never blocking the decision that produced it.
type AuditTrail struct {
	repo   domain.AuditRepository
	logger *slog.Logger
}

// NewAuditTrail creates an AuditTrail over the given repository.
func NewAuditTrail(repo domain.AuditRepository, logger *slog.Logger) *AuditTrail {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditTrail{repo: repo, logger: logger}
}

// Record persists an audit entry and emits a structured log line.
func (a *AuditTrail) Record(ctx context.Context, principal, action, delegationID, status, detail string) {
	entry := &domain.AuditEntry{
		OccurredAt:    time.Now().UTC(),
		PrincipalName: principal,
		Action:        action,
		DelegationID:  delegationID,
		Status:        status,
		Detail:        detail,
	}

	a.logger.Info("audit",
		"action", action,
		"principal", principal,
		"delegation_id", delegationID,
		"status", status,
		"detail", detail,
	)

	if err := a.repo.Insert(ctx, entry); err != nil {
		a.logger.Warn("audit insert failed", "action", action, "error", err)
	}
}

// List returns audit entries matching the filter.
func (a *AuditTrail) List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, int64, error) {
	return a.repo.List(ctx, filter)
}
