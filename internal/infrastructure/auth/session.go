package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/adamj-ops/everyday-properties/internal/domain/identity"
	"github.com/adamj-ops/everyday-properties/internal/infrastructure/config"
	"github.com/golang-jwt/jwt/v5"
)

// Common errors
var (
	ErrInvalidToken      = errors.New("invalid token")
	ErrExpiredToken      = errors.New("token has expired")
	ErrTokenNotYetValid  = errors.New("token is not yet valid")
	ErrMissingSubject    = errors.New("missing sub in claims")
	ErrNoVerificationKey = errors.New("no session verification key configured")
)

// Session is what a verified provider session token asserts about the caller.
type Session struct {
	// CallerID is the provider's user id (the sub claim).
	CallerID string
	// OrgID is the caller's active organization; empty when they have none.
	OrgID     string
	SessionID string
	Profile   identity.Profile
	ExpiresAt time.Time
}

// SessionVerifier validates session tokens issued by the identity provider.
// It never issues tokens.
type SessionVerifier struct {
	parser   *jwt.Parser
	key      any
	orgClaim string
}

// NewSessionVerifier builds a verifier from configuration. An RSA public key
// selects RS256; otherwise the HMAC secret selects HS256.
func NewSessionVerifier(cfg config.SessionConfig) (*SessionVerifier, error) {
	opts := []jwt.ParserOption{
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	var key any
	switch {
	case cfg.RSAPublicKeyPEM != "":
		pub, err := jwt.ParseRSAPublicKeyFromPEM([]byte(cfg.RSAPublicKeyPEM))
		if err != nil {
			return nil, err
		}
		key = pub
		opts = append(opts, jwt.WithValidMethods([]string{"RS256", "RS384", "RS512"}))
	case cfg.HMACSecret != "":
		key = []byte(cfg.HMACSecret)
		opts = append(opts, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
	default:
		return nil, ErrNoVerificationKey
	}

	orgClaim := cfg.OrgClaim
	if orgClaim == "" {
		orgClaim = "org_id"
	}
	return &SessionVerifier{parser: jwt.NewParser(opts...), key: key, orgClaim: orgClaim}, nil
}

// Verify parses and validates a raw token. A leading "Bearer " is accepted.
func (v *SessionVerifier) Verify(raw string) (*Session, error) {
	raw = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "Bearer "))
	if raw == "" {
		return nil, ErrInvalidToken
	}

	claims := jwt.MapClaims{}
	_, err := v.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
			return nil, ErrTokenNotYetValid
		}
		return nil, ErrInvalidToken
	}

	sub, err := claims.GetSubject()
	if err != nil || strings.TrimSpace(sub) == "" {
		return nil, ErrMissingSubject
	}

	s := &Session{
		CallerID:  strings.TrimSpace(sub),
		OrgID:     strings.TrimSpace(stringClaim(claims, v.orgClaim)),
		SessionID: stringClaim(claims, "sid"),
		Profile: identity.Profile{
			Email:     stringClaim(claims, "email"),
			FirstName: stringClaim(claims, "given_name"),
			LastName:  stringClaim(claims, "family_name"),
			Phone:     stringClaim(claims, "phone_number"),
		},
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		s.ExpiresAt = exp.Time
	}
	return s, nil
}

// stringClaim reads a string claim. A dotted name walks nested objects, so
// "o.id" reads {"o": {"id": "..."}}.
func stringClaim(claims jwt.MapClaims, name string) string {
	var cur any = map[string]any(claims)
	for _, part := range strings.Split(name, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return ""
		}
		cur = m[part]
	}
	s, _ := cur.(string)
	return s
}
