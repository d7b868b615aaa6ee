// Package domain defines core types, interfaces, and errors for the
// agent delegation engine.
package domain

import "fmt"

// NotFoundError indicates a resource was not found.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ValidationError indicates invalid input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// AccessDeniedError indicates the acting principal is neither the
// delegation's owner nor an administrator.
type AccessDeniedError struct {
	Message string
}

func (e *AccessDeniedError) Error() string { return e.Message }

// ConflictError indicates a conflict (e.g., duplicate resource).
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// NotActiveError indicates an operation was attempted against a delegation
// that is not in a state that allows it. Status carries the delegation's
// current status so callers can distinguish suspended from revoked.
type NotActiveError struct {
	Status Status
}

func (e *NotActiveError) Error() string {
	return fmt.Sprintf("delegation is not active (status: %s)", e.Status)
}

// ExpiredError indicates a usability check against a delegation whose
// expires_at has passed.
type ExpiredError struct {
	DelegationID string
}

func (e *ExpiredError) Error() string {
	return fmt.Sprintf("delegation %s has expired", e.DelegationID)
}

// PermissionNotGrantedError indicates a requested permission is absent from
// the delegation's permission set.
type PermissionNotGrantedError struct {
	Permission string
}

func (e *PermissionNotGrantedError) Error() string {
	return fmt.Sprintf("permission %q not granted by this delegation", e.Permission)
}

// ScopeMismatchError indicates the requested resource scope is not covered
// by the delegation's scope.
type ScopeMismatchError struct {
	Granted   Scope
	Requested Scope
}

func (e *ScopeMismatchError) Error() string {
	return fmt.Sprintf("delegation scope %s does not cover requested scope %s", e.Granted, e.Requested)
}

// Quota limit identifiers used by QuotaExceededError.
const (
	LimitMaxActions         = "max_actions"
	LimitMaxCostPerAction   = "max_cost_per_action"
	LimitMaxConcurrentTasks = "max_concurrent_tasks"
)

// QuotaExceededError indicates one of the three quota dimensions would be
// breached. Limit identifies which (Limit* constants).
type QuotaExceededError struct {
	Limit string
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded: %s", e.Limit)
}

// VersionConflictError indicates a CompareAndSwap lost the race: the stored
// version no longer matches the expected version. Callers retry with a
// fresh read.
type VersionConflictError struct {
	DelegationID    string
	ExpectedVersion int64
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("version conflict on delegation %s (expected version %d)", e.DelegationID, e.ExpectedVersion)
}

// TransientError is surfaced after the engine exhausts its internal
// version-conflict retries. It signals the caller to retry later rather
// than treat the outcome as a denial.
type TransientError struct {
	Message string
}

func (e *TransientError) Error() string { return e.Message }

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrAccessDenied creates an AccessDeniedError with a formatted message.
func ErrAccessDenied(format string, args ...interface{}) *AccessDeniedError {
	return &AccessDeniedError{Message: fmt.Sprintf(format, args...)}
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ErrConflict creates a ConflictError with a formatted message.
func ErrConflict(format string, args ...interface{}) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}
