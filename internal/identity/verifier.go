package identity

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
)

// Token is a verified ID token that can expose its claims.
// It is satisfied by *oidc.IDToken and by test fakes.
type Token interface {
	Claims(v interface{}) error
}

// TokenVerifier checks an ID token issued by the auth provider.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (Token, error)
}

// OIDCVerifier verifies ID tokens against the provider's discovery document.
type OIDCVerifier struct {
	provider *oidc.Provider
	verifier *oidc.IDTokenVerifier
}

// NewOIDCVerifier discovers issuer and verifies tokens whose audience is clientID
// (the project id for identity-toolkit tokens).
func NewOIDCVerifier(ctx context.Context, issuer, clientID string) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}
	verifier := provider.Verifier(&oidc.Config{ClientID: clientID})
	return &OIDCVerifier{provider: provider, verifier: verifier}, nil
}

func (v *OIDCVerifier) Verify(ctx context.Context, raw string) (Token, error) {
	idToken, err := v.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, err
	}
	return idToken, nil
}

// tokenClaims are the identity fields read from a verified ID token.
type tokenClaims struct {
	Sub    string `json:"sub"`
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

func (c tokenClaims) uid() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.Sub
}

func verifyIdentity(ctx context.Context, v TokenVerifier, raw string) (tokenClaims, error) {
	var claims tokenClaims
	tok, err := v.Verify(ctx, raw)
	if err != nil {
		return claims, fmt.Errorf("verify id token: %w", err)
	}
	if err := tok.Claims(&claims); err != nil {
		return claims, fmt.Errorf("parse id token claims: %w", err)
	}
	return claims, nil
}
