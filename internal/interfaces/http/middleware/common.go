// Package middleware provides the HTTP middleware of the API.
package middleware

import (
	"net/http"
	"time"

	"github.com/adamj-ops/everyday-properties/internal/infrastructure/config"
	"github.com/adamj-ops/everyday-properties/internal/infrastructure/logger"
	"github.com/adamj-ops/everyday-properties/internal/interfaces/http/dto"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

const (
	HeaderRequestID = "X-Request-ID"
	RequestIDKey    = "request_id"

	// MaxRequestIDLength bounds client supplied request ids.
	MaxRequestIDLength = 128
)

// RequestID assigns each request an id, echoes it in the response and adds
// it to the request context for logging.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" || len(requestID) > MaxRequestIDLength {
			requestID = uuid.NewString()
		}
		c.Set(RequestIDKey, requestID)
		c.Writer.Header().Set(HeaderRequestID, requestID)
		c.Request = c.Request.WithContext(logger.WithRequestID(c.Request.Context(), requestID))
		c.Next()
	}
}

// GetRequestID returns the id assigned by RequestID.
func GetRequestID(c *gin.Context) string {
	return c.GetString(RequestIDKey)
}

// CORS builds the CORS middleware from configuration. With no allowed
// origins no CORS headers are written, so browsers reject cross-origin calls.
func CORS(cfg config.HTTPConfig) gin.HandlerFunc {
	if len(cfg.CORSAllowOrigins) == 0 {
		return func(c *gin.Context) { c.Next() }
	}

	cc := cors.Config{
		AllowMethods:     cfg.CORSAllowMethods,
		AllowHeaders:     cfg.CORSAllowHeaders,
		ExposeHeaders:    []string{HeaderRequestID, "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if lo.Contains(cfg.CORSAllowOrigins, "*") {
		// Credentials cannot be combined with a wildcard origin.
		cc.AllowAllOrigins = true
		cc.AllowCredentials = false
	} else {
		cc.AllowOrigins = cfg.CORSAllowOrigins
	}
	return cors.New(cc)
}

// Secure adds the security headers every API response carries.
func Secure() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		h.Set("Cache-Control", "no-store")
		c.Next()
	}
}

// abortWithCode writes an error body for code and stops the chain.
func abortWithCode(c *gin.Context, code, message string) {
	c.AbortWithStatusJSON(dto.GetHTTPStatus(code), dto.NewErrorResponse(dto.ErrorInfo{
		Code:      code,
		Message:   message,
		RequestID: GetRequestID(c),
	}))
}

// abortWithError renders err and stops the chain.
func abortWithError(c *gin.Context, err error) {
	status, info := dto.FromError(err)
	info.RequestID = GetRequestID(c)
	c.AbortWithStatusJSON(status, dto.NewErrorResponse(info))
}

// NoRoute renders unknown routes in the API error format.
func NoRoute() gin.HandlerFunc {
	return func(c *gin.Context) {
		abortWithCode(c, dto.ErrCodeNotFound, http.StatusText(http.StatusNotFound))
	}
}
