package dto

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/adamj-ops/everyday-properties/internal/domain/shared"
)

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "ERR_INTERNAL"
	// ErrCodeUnavailable is used when a dependency (storage, context sync) is down
	ErrCodeUnavailable = "ERR_UNAVAILABLE"
)

// Authentication error codes
const (
	// ErrCodeUnauthorized is used when authentication is required but missing/invalid
	ErrCodeUnauthorized = "ERR_UNAUTHORIZED"
	// ErrCodeTokenExpired is used when the session token has expired
	ErrCodeTokenExpired = "ERR_TOKEN_EXPIRED"
	// ErrCodeTokenInvalid is used when the session token is invalid
	ErrCodeTokenInvalid = "ERR_TOKEN_INVALID"
	// ErrCodeInvalidSignature is used when a webhook delivery fails verification
	ErrCodeInvalidSignature = "ERR_INVALID_SIGNATURE"
)

// Authorization error codes
const (
	// ErrCodeForbidden is used when the caller lacks permission. The message
	// never says whether the target exists.
	ErrCodeForbidden = "ERR_FORBIDDEN"
	// ErrCodeNoOrganization is used for authenticated callers without an
	// active organization.
	ErrCodeNoOrganization = "ERR_NO_ORGANIZATION"
)

// Resource error codes
const (
	ErrCodeNotFound = "ERR_NOT_FOUND"
	ErrCodeConflict = "ERR_CONFLICT"
)

// Input error codes
const (
	ErrCodeBadRequest      = "ERR_BAD_REQUEST"
	ErrCodeInvalidInput    = "ERR_INVALID_INPUT"
	ErrCodeInvalidJSON     = "ERR_INVALID_JSON"
	ErrCodeRequestTooLarge = "ERR_REQUEST_TOO_LARGE"
)

// Rate limiting error codes
const (
	ErrCodeRateLimited = "ERR_RATE_LIMITED"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal:    http.StatusInternalServerError,
	ErrCodeUnavailable: http.StatusServiceUnavailable,

	ErrCodeUnauthorized:     http.StatusUnauthorized,
	ErrCodeTokenExpired:     http.StatusUnauthorized,
	ErrCodeTokenInvalid:     http.StatusUnauthorized,
	ErrCodeInvalidSignature: http.StatusUnauthorized,

	ErrCodeForbidden:      http.StatusForbidden,
	ErrCodeNoOrganization: http.StatusForbidden,

	ErrCodeNotFound: http.StatusNotFound,
	ErrCodeConflict: http.StatusConflict,

	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeInvalidInput:    http.StatusBadRequest,
	ErrCodeInvalidJSON:     http.StatusBadRequest,
	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,

	ErrCodeRateLimited: http.StatusTooManyRequests,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// domainErrorCodes maps domain error codes to API error codes.
var domainErrorCodes = map[string]string{
	shared.ErrNotFound.Code:          ErrCodeNotFound,
	shared.ErrAlreadyExists.Code:     ErrCodeConflict,
	shared.ErrInvalidInput.Code:      ErrCodeInvalidInput,
	shared.ErrUnauthorized.Code:      ErrCodeUnauthorized,
	shared.ErrForbidden.Code:         ErrCodeForbidden,
	shared.ErrInvalidContext.Code:    ErrCodeUnauthorized,
	shared.ErrMissingContext.Code:    ErrCodeUnauthorized,
	shared.ErrContextSyncFailed.Code: ErrCodeUnavailable,
	shared.ErrContextConflict.Code:   ErrCodeInternal,
	shared.ErrAccessDenied.Code:      ErrCodeForbidden,
	shared.ErrDuplicateIdentity.Code: ErrCodeConflict,
	shared.ErrNoOrganization.Code:    ErrCodeNoOrganization,
}

// Messages rendered instead of the domain message. Denials and context
// failures must not reveal which check failed or whether a record exists.
var publicMessages = map[string]string{
	ErrCodeForbidden:    "Not authorized",
	ErrCodeUnauthorized: "Authentication required",
	ErrCodeUnavailable:  "Service temporarily unavailable",
	ErrCodeInternal:     "An unexpected error occurred",
}

// NormalizeErrorCode converts a domain error code to the API error code.
// Domain validation codes (INVALID_*) collapse to ErrCodeInvalidInput; any
// other unknown code becomes ErrCodeInternal.
func NormalizeErrorCode(code string) string {
	if apiCode, ok := domainErrorCodes[code]; ok {
		return apiCode
	}
	if strings.HasPrefix(code, "INVALID_") {
		return ErrCodeInvalidInput
	}
	return ErrCodeInternal
}

// FromError converts err into an HTTP status and error body.
func FromError(err error) (int, ErrorInfo) {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusServiceUnavailable, ErrorInfo{Code: ErrCodeUnavailable, Message: publicMessages[ErrCodeUnavailable]}
	}

	var domainErr *shared.DomainError
	if !errors.As(err, &domainErr) {
		return http.StatusInternalServerError, ErrorInfo{Code: ErrCodeInternal, Message: publicMessages[ErrCodeInternal]}
	}

	code := NormalizeErrorCode(domainErr.Code)
	message := domainErr.Message
	if public, ok := publicMessages[code]; ok {
		message = public
	}
	return GetHTTPStatus(code), ErrorInfo{Code: code, Message: message}
}
