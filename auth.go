package adapter

import (
	"context"
	"crypto/subtle"
)

// StaticAuthenticator is a minimal Authenticator backed by an in-memory
// username/password table, useful for tests and small fixed-credential
// deployments. Production deployments are expected to supply their own
// Authenticator backed by whatever identity system they already run.
type StaticAuthenticator struct {
	credentials map[string]string
}

var _ Authenticator = (*StaticAuthenticator)(nil)

// NewStaticAuthenticator builds a StaticAuthenticator from a username to
// password map.
func NewStaticAuthenticator(credentials map[string]string) *StaticAuthenticator {
	cp := make(map[string]string, len(credentials))
	for k, v := range credentials {
		cp[k] = v
	}
	return &StaticAuthenticator{credentials: cp}
}

// Authenticate implements Authenticator. clientID is used as the identity
// when authentication succeeds; remoteAddress is accepted but unused by this
// implementation.
func (a *StaticAuthenticator) Authenticate(_ context.Context, clientID, username, password, _ string) (Identity, error) {
	want, ok := a.credentials[username]
	if !ok || subtle.ConstantTimeCompare([]byte(want), []byte(password)) != 1 {
		return Identity{}, nil
	}
	return Identity{ID: clientID, IsAuthenticated: true}, nil
}
