// Package identity talks to the auth provider on behalf of one browser session.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Identity is the authenticated principal. It is owned by the provider;
// holders only reference it.
type Identity struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
}

// Provider is the auth provider as seen by a session store.
type Provider interface {
	SignIn(ctx context.Context, email, password string) (*Identity, error)
	CreateAccount(ctx context.Context, email, password string) (*Identity, error)
	SignOut(ctx context.Context) error
	// Subscribe calls fn with the current identity (nil when signed out)
	// before returning, then on every change. The returned func removes
	// the listener and is safe to call more than once.
	Subscribe(fn func(*Identity)) (unsubscribe func())
	// Token returns a bearer token valid for the current identity.
	// Callers fetch it per outgoing request instead of keeping it.
	Token(ctx context.Context) (string, error)
}

// ErrSignedOut is returned by Token when no identity is present.
var ErrSignedOut = errors.New("identity: no signed-in user")

// Provider error codes surfaced to the error translator.
const (
	CodeUserNotFound      = "auth/user-not-found"
	CodeWrongPassword     = "auth/wrong-password"
	CodeEmailInUse        = "auth/email-already-in-use"
	CodeWeakPassword      = "auth/weak-password"
	CodeInvalidEmail      = "auth/invalid-email"
	CodeInvalidCredential = "auth/invalid-credential"
	CodeTooManyRequests   = "auth/too-many-requests"
	CodeUserDisabled      = "auth/user-disabled"
	CodeTokenExpired      = "auth/user-token-expired"
	CodeInternal          = "auth/internal-error"
)

var providerCodes = map[string]string{
	"EMAIL_NOT_FOUND":             CodeUserNotFound,
	"USER_NOT_FOUND":              CodeUserNotFound,
	"INVALID_PASSWORD":            CodeWrongPassword,
	"EMAIL_EXISTS":                CodeEmailInUse,
	"WEAK_PASSWORD":               CodeWeakPassword,
	"INVALID_EMAIL":               CodeInvalidEmail,
	"MISSING_EMAIL":               CodeInvalidEmail,
	"INVALID_LOGIN_CREDENTIALS":   CodeInvalidCredential,
	"TOO_MANY_ATTEMPTS_TRY_LATER": CodeTooManyRequests,
	"USER_DISABLED":               CodeUserDisabled,
	"TOKEN_EXPIRED":               CodeTokenExpired,
	"INVALID_REFRESH_TOKEN":       CodeTokenExpired,
}

// AuthError is an error reported by the auth provider.
type AuthError struct {
	Code    string
	Message string
	Status  int
}

func (e *AuthError) Error() string {
	if e.Message == "" {
		return "auth provider: " + e.Code
	}
	return fmt.Sprintf("auth provider: %s (%s)", e.Code, e.Message)
}

// Revoked reports whether err means the provider no longer accepts the
// account's refresh token. Outages and throttling are not revocations.
func Revoked(err error) bool {
	var ae *AuthError
	if !errors.As(err, &ae) {
		return false
	}
	switch ae.Code {
	case CodeTokenExpired, CodeUserNotFound, CodeUserDisabled:
		return true
	}
	return false
}

// codeFor maps a raw provider message such as
// "WEAK_PASSWORD : Password should be at least 6 characters" to an auth/ code.
func codeFor(message string) string {
	key := strings.TrimSpace(message)
	if i := strings.IndexAny(key, " :"); i >= 0 {
		key = key[:i]
	}
	if c, ok := providerCodes[key]; ok {
		return c
	}
	return CodeInternal
}
