package shared

import "fmt"

// DomainError represents a domain-level error
type DomainError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap exposes the underlying cause, if any.
func (e *DomainError) Unwrap() error {
	return e.cause
}

// Is matches domain errors by code so that errors.Is works against the
// package-level sentinels even after WithDetail or Wrap produced a copy.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithDetail returns a copy of the error carrying an extra detail entry.
// Details are for logs; they are never rendered to untrusted callers.
func (e *DomainError) WithDetail(key, value string) *DomainError {
	cp := *e
	cp.Details = make(map[string]string, len(e.Details)+1)
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	cp.Details[key] = value
	return &cp
}

// Wrap returns a copy of the error with cause attached.
func (e *DomainError) Wrap(cause error) *DomainError {
	cp := *e
	cp.cause = cause
	return &cp
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrNotFound      = NewDomainError("NOT_FOUND", "Resource not found")
	ErrAlreadyExists = NewDomainError("ALREADY_EXISTS", "Resource already exists")
	ErrInvalidInput  = NewDomainError("INVALID_INPUT", "Invalid input provided")
	ErrUnauthorized  = NewDomainError("UNAUTHORIZED", "Not authorized to perform this action")
	ErrForbidden     = NewDomainError("FORBIDDEN", "Access to this resource is forbidden")
)

// Tenant isolation errors
var (
	// ErrInvalidContext is returned when a security context is built from an
	// empty organization or caller id.
	ErrInvalidContext = NewDomainError("INVALID_CONTEXT", "Invalid security context")
	// ErrMissingContext is returned when a tenant-scoped operation runs with no
	// security context bound to the unit of work.
	ErrMissingContext = NewDomainError("MISSING_CONTEXT", "No security context bound")
	// ErrContextSyncFailed is returned when the storage layer could not be told
	// about the bound context. The operation is never executed.
	ErrContextSyncFailed = NewDomainError("CONTEXT_SYNC_FAILED", "Failed to synchronize security context with storage")
	// ErrContextConflict is returned when a unit of work tries to bind a second,
	// different security context.
	ErrContextConflict = NewDomainError("CONTEXT_CONFLICT", "A different security context is already bound")
	// ErrAccessDenied is the generic authorization failure. The message does not
	// say whether the target exists.
	ErrAccessDenied = NewDomainError("ACCESS_DENIED", "Not authorized")
	// ErrDuplicateIdentity is returned when create-or-return lost a race and the
	// single relookup still found nothing.
	ErrDuplicateIdentity = NewDomainError("DUPLICATE_IDENTITY", "Identity creation conflicted with a concurrent request")
	// ErrNoOrganization marks an authenticated caller without an active organization.
	ErrNoOrganization = NewDomainError("NO_ORGANIZATION", "Caller is not a member of any organization")
)
