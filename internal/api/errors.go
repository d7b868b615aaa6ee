package api

import (
	"errors"
	"net/http"

	"scrumdeck/internal/domain"
)

// httpStatusFromDomainError maps domain errors to HTTP status codes. Denial
// reasons (not-active, expired, permission, scope) are 403: the request was
// understood and refused. Quota denials get 429 so agent runtimes can back
// off, and retry-exhaustion surfaces as 503.
func httpStatusFromDomainError(err error) int {
	var (
		notFound     *domain.NotFoundError
		accessDenied *domain.AccessDeniedError
		validation   *domain.ValidationError
		conflict     *domain.ConflictError
		notActive    *domain.NotActiveError
		expired      *domain.ExpiredError
		notGranted   *domain.PermissionNotGrantedError
		scope        *domain.ScopeMismatchError
		quota        *domain.QuotaExceededError
		version      *domain.VersionConflictError
		transient    *domain.TransientError
	)

	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &conflict), errors.As(err, &version):
		return http.StatusConflict
	case errors.As(err, &accessDenied),
		errors.As(err, &notActive),
		errors.As(err, &expired),
		errors.As(err, &notGranted),
		errors.As(err, &scope):
		return http.StatusForbidden
	case errors.As(err, &quota):
		return http.StatusTooManyRequests
	case errors.As(err, &transient):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// reasonFromDomainError returns a stable machine-readable reason code so
// callers can render "quota exceeded" differently from "not permitted"
// without parsing messages.
func reasonFromDomainError(err error) string {
	var (
		notFound     *domain.NotFoundError
		accessDenied *domain.AccessDeniedError
		validation   *domain.ValidationError
		conflict     *domain.ConflictError
		notActive    *domain.NotActiveError
		expired      *domain.ExpiredError
		notGranted   *domain.PermissionNotGrantedError
		scope        *domain.ScopeMismatchError
		quota        *domain.QuotaExceededError
		version      *domain.VersionConflictError
		transient    *domain.TransientError
	)

	switch {
	case errors.As(err, &notFound):
		return "not_found"
	case errors.As(err, &validation):
		return "validation"
	case errors.As(err, &conflict):
		return "conflict"
	case errors.As(err, &version):
		return "version_conflict"
	case errors.As(err, &accessDenied):
		return "access_denied"
	case errors.As(err, &notActive):
		return "delegation_not_active"
	case errors.As(err, &expired):
		return "delegation_expired"
	case errors.As(err, &notGranted):
		return "permission_not_granted"
	case errors.As(err, &scope):
		return "scope_mismatch"
	case errors.As(err, &quota):
		return "quota_exceeded:" + quota.Limit
	case errors.As(err, &transient):
		return "transient"
	default:
		return "internal"
	}
}
