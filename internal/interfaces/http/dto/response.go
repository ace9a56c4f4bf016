package dto

import (
	"time"

	"github.com/adamj-ops/everyday-properties/internal/domain/access"
	"github.com/adamj-ops/everyday-properties/internal/domain/identity"
)

// Response represents a standard API response
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
	Meta    *Meta      `json:"meta,omitempty"`
}

// ErrorInfo represents error details
type ErrorInfo struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
	// Redirect is set for callers who must finish onboarding first.
	Redirect string             `json:"redirect,omitempty"`
	Details  []ValidationDetail `json:"details,omitempty"`
}

// ValidationDetail describes one invalid request field
type ValidationDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Meta represents list metadata
type Meta struct {
	Count  int `json:"count"`
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// NewSuccessResponse creates a success response
func NewSuccessResponse(data any) Response {
	return Response{
		Success: true,
		Data:    data,
	}
}

// NewListResponse creates a success response for a list of records
func NewListResponse(data any, count, limit, offset int) Response {
	return Response{
		Success: true,
		Data:    data,
		Meta:    &Meta{Count: count, Limit: limit, Offset: offset},
	}
}

// NewErrorResponse creates an error response
func NewErrorResponse(info ErrorInfo) Response {
	return Response{
		Success: false,
		Error:   &info,
	}
}

// ListRequest holds the query parameters accepted by record listings
type ListRequest struct {
	Limit   int    `form:"limit" binding:"omitempty,min=1,max=200"`
	Offset  int    `form:"offset" binding:"omitempty,min=0"`
	OrderBy string `form:"order_by"`
	Order   string `form:"order" binding:"omitempty,oneof=asc desc"`
}

// DefaultListRequest returns a list request with defaults
func DefaultListRequest() ListRequest {
	return ListRequest{
		Limit:   50,
		OrderBy: "created_at",
		Order:   "asc",
	}
}

// AddMemberRequest is the body of POST /members
type AddMemberRequest struct {
	ExternalID string `json:"external_id" binding:"required,max=255"`
	Role       string `json:"role" binding:"required"`
	Email      string `json:"email" binding:"omitempty,email"`
	FirstName  string `json:"first_name" binding:"max=100"`
	LastName   string `json:"last_name" binding:"max=100"`
	Phone      string `json:"phone" binding:"max=50"`
}

// Profile returns the contact fields of the request.
func (r AddMemberRequest) Profile() identity.Profile {
	return identity.Profile{
		Email:     r.Email,
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Phone:     r.Phone,
	}
}

// IdentityResponse is an identity as returned by the API
type IdentityResponse struct {
	ID         string    `json:"id"`
	OrgID      string    `json:"org_id"`
	ExternalID string    `json:"external_id"`
	FullName   string    `json:"full_name"`
	Email      string    `json:"email,omitempty"`
	Phone      string    `json:"phone,omitempty"`
	Role       string    `json:"role"`
	CreatedAt  time.Time `json:"created_at"`
}

// ToIdentityResponse converts a domain identity.
func ToIdentityResponse(i *identity.Identity) IdentityResponse {
	return IdentityResponse{
		ID:         i.ID.String(),
		OrgID:      i.OrgID,
		ExternalID: i.ExternalID,
		FullName:   i.FullName,
		Email:      i.Email,
		Phone:      i.Phone,
		Role:       i.Role.String(),
		CreatedAt:  i.CreatedAt,
	}
}

// MeResponse describes the caller bound to the request.
type MeResponse struct {
	Identity     IdentityResponse `json:"identity"`
	Organization access.Record    `json:"organization,omitempty"`
	Permissions  []string         `json:"permissions"`
	Staff        bool             `json:"staff"`
}
