package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTConfig configures JWTAuthenticator.
type JWTConfig struct {
	// Secret is the HS256 signing key.
	Secret string `mapstructure:"secret"`

	// Issuer, when set, must match the iss claim.
	Issuer string `mapstructure:"issuer"`

	// Audience, when set, must be one of the aud claim values.
	Audience string `mapstructure:"audience"`

	// RolesClaim names the claim holding a list of roles.
	// Default: roles
	RolesClaim string `mapstructure:"roles_claim"`

	// Leeway tolerates clock skew on exp and nbf.
	Leeway time.Duration `mapstructure:"leeway"`
}

// JWTAuthenticator accepts HS256 bearer tokens.
type JWTAuthenticator struct {
	config JWTConfig
	parser *jwt.Parser
}

// NewJWTAuthenticator creates a bearer token authenticator.
func NewJWTAuthenticator(config JWTConfig) *JWTAuthenticator {
	if config.RolesClaim == "" {
		config.RolesClaim = "roles"
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(config.Leeway),
	}
	if config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(config.Issuer))
	}
	if config.Audience != "" {
		opts = append(opts, jwt.WithAudience(config.Audience))
	}
	return &JWTAuthenticator{config: config, parser: jwt.NewParser(opts...)}
}

func (a *JWTAuthenticator) Name() string { return string(MethodJWT) }

func (a *JWTAuthenticator) Supports(req *Request) bool {
	return strings.HasPrefix(req.Header.Get("Authorization"), "Bearer ")
}

func (a *JWTAuthenticator) Authenticate(_ context.Context, req *Request) (*Result, error) {
	raw := strings.TrimSpace(strings.TrimPrefix(req.Header.Get("Authorization"), "Bearer "))
	if raw == "" {
		return failure(ErrMissingCredentials, MethodJWT), nil
	}

	claims := jwt.MapClaims{}
	_, err := a.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(a.config.Secret), nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return failure(ErrTokenExpired, MethodJWT), nil
	case errors.Is(err, jwt.ErrTokenMalformed):
		return failure(ErrTokenMalformed, MethodJWT), nil
	case err != nil:
		return failure(ErrInvalidCredentials, MethodJWT), nil
	}

	id := &Identity{Method: MethodJWT, Claims: claims}
	id.Principal, _ = claims.GetSubject()
	if exp, _ := claims.GetExpirationTime(); exp != nil {
		id.ExpiresAt = exp.Time
	}
	if roles, ok := claims[a.config.RolesClaim].([]any); ok {
		for _, r := range roles {
			if s, ok := r.(string); ok {
				id.Roles = append(id.Roles, s)
			}
		}
	}
	return success(id), nil
}

var _ Authenticator = (*JWTAuthenticator)(nil)
