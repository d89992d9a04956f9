package auth

import (
	"slices"
	"time"
)

// Method records how an identity was authenticated.
type Method string

const (
	MethodAPIKey Method = "api_key"
	MethodJWT    Method = "jwt"
)

// Roles understood by the server.
const (
	// RoleOperator may override the budget estimate.
	RoleOperator = "operator"

	// RoleViewer may read status and stats.
	RoleViewer = "viewer"
)

// Identity is an authenticated operator.
type Identity struct {
	Principal string
	Roles     []string
	Method    Method
	ExpiresAt time.Time
	Claims    map[string]any
}

// HasRole reports whether the identity carries role.
func (id *Identity) HasRole(role string) bool {
	return id != nil && slices.Contains(id.Roles, role)
}

// Expired reports whether the identity has an expiry before now.
func (id *Identity) Expired(now time.Time) bool {
	return !id.ExpiresAt.IsZero() && now.After(id.ExpiresAt)
}
