package domain

import "context"

// AuthRole represents a caller authorization role.
type AuthRole string

const (
	// AuthRoleAdmin may edit the global provider settings.
	AuthRoleAdmin AuthRole = "admin"
	AuthRoleUser  AuthRole = "user"
)

// AllAuthRoles lists every valid authorization role for validation purposes.
var AllAuthRoles = []AuthRole{AuthRoleAdmin, AuthRoleUser}

// Caller identifies the user on whose behalf a request runs. It is passed
// explicitly through the usecase layer.
type Caller struct {
	ID    string
	Roles []AuthRole
}

// IsAdmin reports whether the caller holds the admin role.
func (c Caller) IsAdmin() bool {
	for _, r := range c.Roles {
		if r == AuthRoleAdmin {
			return true
		}
	}
	return false
}

// Context helpers for the caller (mirrors the request ID pattern in context.go).

const callerCtxKey ctxKey = "caller"

// ContextWithCaller returns a new context carrying the caller.
func ContextWithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerCtxKey, c)
}

// CallerFromContext extracts the caller from the context.
func CallerFromContext(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerCtxKey).(Caller)
	return c, ok
}

// IsValidAuthRole returns true if the given string represents a known role.
func IsValidAuthRole(s string) bool {
	for _, r := range AllAuthRoles {
		if string(r) == s {
			return true
		}
	}
	return false
}

// StringsToAuthRoles converts a string slice to an AuthRole slice,
// skipping any unrecognized values.
func StringsToAuthRoles(ss []string) []AuthRole {
	roles := make([]AuthRole, 0, len(ss))
	for _, s := range ss {
		if IsValidAuthRole(s) {
			roles = append(roles, AuthRole(s))
		}
	}
	return roles
}
