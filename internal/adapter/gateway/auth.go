package gateway

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"ai-assist/internal/domain"
	"ai-assist/internal/infra/config"
)

// ClientInfo holds metadata about an authenticated caller.
type ClientInfo struct {
	Name  string
	Roles []string
}

// Caller converts the client into the identity used by the usecase layer.
func (c *ClientInfo) Caller() domain.Caller {
	return domain.Caller{ID: c.Name, Roles: domain.StringsToAuthRoles(c.Roles)}
}

// Authenticator validates bearer tokens.
type Authenticator interface {
	Authenticate(token string) (*ClientInfo, error)
}

type authEntry struct {
	token []byte
	info  *ClientInfo
}

// StaticTokenAuth authenticates callers against the configured token list
// using constant-time comparison.
type StaticTokenAuth struct {
	entries []authEntry
}

// NewStaticTokenAuth builds an authenticator from the configured tokens.
func NewStaticTokenAuth(tokens []config.TokenConfig) *StaticTokenAuth {
	a := &StaticTokenAuth{
		entries: make([]authEntry, len(tokens)),
	}
	for i, t := range tokens {
		roles := t.Roles
		if len(roles) == 0 {
			roles = []string{string(domain.AuthRoleUser)}
		}
		a.entries[i] = authEntry{
			token: []byte(t.Token),
			info:  &ClientInfo{Name: t.Caller, Roles: roles},
		}
	}
	return a
}

// Authenticate returns client info if the token is valid.
func (s *StaticTokenAuth) Authenticate(token string) (*ClientInfo, error) {
	if token == "" {
		return nil, domain.ErrGatewayAuthFailed
	}
	tokenBytes := []byte(token)
	for _, e := range s.entries {
		if subtle.ConstantTimeCompare(tokenBytes, e.token) == 1 {
			return e.info, nil
		}
	}
	return nil, domain.ErrGatewayAuthFailed
}

// requestToken reads a bearer token from the Authorization header, falling
// back to the token query parameter for WebSocket clients.
func requestToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return r.URL.Query().Get("token")
}
