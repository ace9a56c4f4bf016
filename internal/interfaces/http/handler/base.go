// Package handler contains the HTTP handlers of the API.
package handler

import (
	"net/http"

	"github.com/adamj-ops/everyday-properties/internal/interfaces/http/dto"
	"github.com/adamj-ops/everyday-properties/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// SuccessList sends a list response with its metadata
func (h *BaseHandler) SuccessList(c *gin.Context, data any, count, limit, offset int) {
	c.JSON(http.StatusOK, dto.NewListResponse(data, count, limit, offset))
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// NoContent sends a 204 no content response
func (h *BaseHandler) NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Error sends an error response for code, deriving the status from it
func (h *BaseHandler) Error(c *gin.Context, code, message string) {
	c.AbortWithStatusJSON(dto.GetHTTPStatus(code), dto.NewErrorResponse(dto.ErrorInfo{
		Code:      code,
		Message:   message,
		RequestID: middleware.GetRequestID(c),
	}))
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, dto.ErrCodeBadRequest, message)
}

// NotFound sends a 404 not found response
func (h *BaseHandler) NotFound(c *gin.Context, message string) {
	h.Error(c, dto.ErrCodeNotFound, message)
}

// HandleError converts domain and storage errors to HTTP responses
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	middleware.AbortWithError(c, err)
}

// BindingError reports a request that failed to bind
func (h *BaseHandler) BindingError(c *gin.Context, err error) {
	middleware.AbortWithBindingError(c, err)
}
