package middleware

import (
	"context"
	"errors"
	"strings"

	appaccess "github.com/adamj-ops/everyday-properties/internal/application/access"
	appidentity "github.com/adamj-ops/everyday-properties/internal/application/identity"
	"github.com/adamj-ops/everyday-properties/internal/domain/access"
	"github.com/adamj-ops/everyday-properties/internal/domain/identity"
	"github.com/adamj-ops/everyday-properties/internal/infrastructure/auth"
	"github.com/adamj-ops/everyday-properties/internal/infrastructure/logger"
	"github.com/adamj-ops/everyday-properties/internal/infrastructure/telemetry"
	"github.com/adamj-ops/everyday-properties/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Session context keys
const (
	SecurityContextKey = "security_context"
	IdentityKey        = "identity"
	AuthHeaderKey      = "Authorization"
	// SessionCookieName is the provider's session cookie, used when no
	// Authorization header is sent.
	SessionCookieName = "__session"
)

// errRequestFailed rolls back the request's unit of work after the handler
// wrote an error response.
var errRequestFailed = errors.New("request failed")

// SessionVerifier validates provider session tokens.
type SessionVerifier interface {
	Verify(raw string) (*auth.Session, error)
}

// IdentityResolver maps a verified caller to an identity.
type IdentityResolver interface {
	Resolve(ctx context.Context, externalCallerID, externalOrgID string, profile identity.Profile) (*appidentity.Resolution, error)
}

// SessionRecorder counts session outcomes.
type SessionRecorder interface {
	RecordSession(ctx context.Context, outcome string)
}

// SessionConfig holds the collaborators of SessionAuth.
type SessionConfig struct {
	Verifier   SessionVerifier
	Resolver   IdentityResolver
	Propagator *appaccess.Propagator
	Metrics    SessionRecorder
	// OnboardingURL is where callers without an organization are sent.
	OnboardingURL string
	Logger        *zap.Logger
}

// SessionAuth authenticates the caller, resolves their identity in the
// active organization and runs the rest of the chain inside a unit of work
// with that security context bound. A 4xx or 5xx response rolls the unit of
// work back.
func SessionAuth(cfg SessionConfig) gin.HandlerFunc {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Propagator == nil {
		cfg.Propagator = appaccess.NewPropagator(nil, cfg.Logger)
	}
	record := func(ctx context.Context, outcome string) {
		if cfg.Metrics != nil {
			cfg.Metrics.RecordSession(ctx, outcome)
		}
	}

	return func(c *gin.Context) {
		ctx := c.Request.Context()
		log := logger.With(ctx, cfg.Logger)

		token := sessionToken(c)
		if token == "" {
			record(ctx, telemetry.SessionUnauthenticated)
			abortWithCode(c, dto.ErrCodeUnauthorized, "Authentication required")
			return
		}
		sess, err := cfg.Verifier.Verify(token)
		if err != nil {
			record(ctx, telemetry.SessionUnauthenticated)
			log.Debug("Session token rejected", zap.Error(err))
			if errors.Is(err, auth.ErrExpiredToken) {
				abortWithCode(c, dto.ErrCodeTokenExpired, "Session has expired")
				return
			}
			abortWithCode(c, dto.ErrCodeTokenInvalid, "Invalid session token")
			return
		}

		res, err := cfg.Resolver.Resolve(ctx, sess.CallerID, sess.OrgID, sess.Profile)
		if err != nil {
			record(ctx, telemetry.SessionFailed)
			log.Error("Failed to resolve identity",
				zap.String("caller_id", sess.CallerID),
				zap.String("org_id", sess.OrgID),
				zap.Error(err))
			abortWithError(c, err)
			return
		}
		if res.NoOrganization {
			record(ctx, telemetry.SessionNoOrganization)
			c.AbortWithStatusJSON(dto.GetHTTPStatus(dto.ErrCodeNoOrganization), dto.NewErrorResponse(dto.ErrorInfo{
				Code:      dto.ErrCodeNoOrganization,
				Message:   "Create or join an organization to continue",
				RequestID: GetRequestID(c),
				Redirect:  cfg.OnboardingURL,
			}))
			return
		}
		sc, err := res.SecurityContext()
		if err != nil {
			record(ctx, telemetry.SessionFailed)
			abortWithError(c, err)
			return
		}

		if res.Created {
			record(ctx, telemetry.SessionCreated)
		} else {
			record(ctx, telemetry.SessionResolved)
		}

		ctx = logger.WithCaller(ctx, sc.OrgID(), sc.CallerID(), sc.Role().String())
		if span := trace.SpanFromContext(ctx); span.IsRecording() {
			span.SetAttributes(
				telemetry.AttrOrgID.String(sc.OrgID()),
				attribute.String("app.caller_id", sc.CallerID()),
				attribute.String("app.role", sc.Role().String()),
			)
		}
		c.Set(SecurityContextKey, sc)
		c.Set(IdentityKey, res.Identity)

		outer := c.Request.WithContext(ctx)
		err = cfg.Propagator.RunWith(ctx, sc, func(bound context.Context) error {
			c.Request = outer.WithContext(bound)
			c.Next()
			if c.Writer.Status() >= 400 {
				return errRequestFailed
			}
			return nil
		})
		c.Request = outer
		if err == nil || errors.Is(err, errRequestFailed) {
			return
		}
		if c.Writer.Written() {
			// The response was sent but the unit of work failed to commit.
			logger.With(ctx, cfg.Logger).Error("Unit of work failed after response", zap.Error(err))
			return
		}
		abortWithError(c, err)
	}
}

// sessionToken returns the bearer token or session cookie.
func sessionToken(c *gin.Context) string {
	if h := strings.TrimSpace(c.GetHeader(AuthHeaderKey)); h != "" {
		return h
	}
	if cookie, err := c.Cookie(SessionCookieName); err == nil {
		return cookie
	}
	return ""
}

// GetSecurityContext returns the security context bound by SessionAuth.
func GetSecurityContext(c *gin.Context) (access.SecurityContext, bool) {
	v, ok := c.Get(SecurityContextKey)
	if !ok {
		return access.SecurityContext{}, false
	}
	sc, ok := v.(access.SecurityContext)
	return sc, ok
}

// GetIdentity returns the identity resolved by SessionAuth.
func GetIdentity(c *gin.Context) (*identity.Identity, bool) {
	v, ok := c.Get(IdentityKey)
	if !ok {
		return nil, false
	}
	ident, ok := v.(*identity.Identity)
	return ident, ok && ident != nil
}
