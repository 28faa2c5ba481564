// Package authn resolves the authToken carried on every inbound request to
// a User, the way lib/auth.GCIPAuthenticator resolves a Firebase ID token
// in the teacher codebase. Models declare accessControl against the
// resolved User (schema.FilterRequest carries only the raw token; this
// package is what turns that token into an identity a hook can reason
// about before it runs).
package authn

import (
	"context"
	"errors"

	firebaseauth "firebase.google.com/go/v4/auth"
)

// ErrNoAuthToken indicates a request arrived with no authToken at all.
var ErrNoAuthToken = errors.New("authn: request carried no auth token")

// User is the identity a verified token resolves to.
type User struct {
	ID     string
	Claims map[string]any
}

// TokenVerifier is the narrow surface authn needs from a Firebase Auth
// client, mirroring lib/auth.UserAuthClient.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// Authenticator resolves auth tokens to Users via Firebase Auth (part of
// Google Cloud Identity Platform).
type Authenticator struct {
	verifier TokenVerifier
}

// New builds an Authenticator over verifier.
func New(verifier TokenVerifier) *Authenticator {
	return &Authenticator{verifier: verifier}
}

// Authenticate verifies idToken and resolves it to a User. An empty idToken
// is rejected before any verification call.
func (a *Authenticator) Authenticate(ctx context.Context, idToken string) (*User, error) {
	if idToken == "" {
		return nil, ErrNoAuthToken
	}

	token, err := a.verifier.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, err
	}

	return &User{ID: token.UID, Claims: token.Claims}, nil
}

// contextKey is unexported so no other package can collide with it.
type contextKey struct{}

// WithUser returns a context carrying u, for later retrieval via
// UserFromContext. FilterHook does not call it; it passes the User to its
// Authorize callback directly.
func WithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, contextKey{}, u)
}

// UserFromContext returns the User stashed by WithUser, if any.
func UserFromContext(ctx context.Context) (*User, bool) {
	u, ok := ctx.Value(contextKey{}).(*User)

	return u, ok
}
