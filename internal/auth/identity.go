package auth

import "context"

// Roles a user can hold.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Identity is the subset of a user carried inside a session token.
type Identity struct {
	ID             string
	Name           string
	Role           string
	ProfilePicture string
}

// ValidRole reports whether role is one the system issues.
func ValidRole(role string) bool {
	return role == RoleUser || role == RoleAdmin
}

type identityKey struct{}

// WithIdentity stores the authenticated identity on the context.
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFromContext returns the identity attached by the authentication middleware.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	identity, ok := ctx.Value(identityKey{}).(Identity)
	return identity, ok
}
