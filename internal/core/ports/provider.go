package ports

import (
	"context"

	"github.com/99minutos/identity-system/internal/core/domain"
)

// ProviderTokenResponse is the subset of the token endpoint response the
// identity flow relies on.
type ProviderTokenResponse struct {
	AccessToken string
	IDToken     string
	TokenType   string
	ExpiresIn   int64
}

// ProviderClient performs server-to-server calls to an identity provider.
// Implementations bound every call with a timeout and never retry.
type ProviderClient interface {
	ExchangeCode(ctx context.Context, client *domain.AuthClient, code, redirectURI string) (*ProviderTokenResponse, error)
}

// IdentityVerifier verifies a provider-issued id_token and extracts the
// identity claims.
type IdentityVerifier interface {
	Verify(ctx context.Context, client *domain.AuthClient, idToken string) (*domain.OAuthUser, error)
}

// PasswordHasher is the opaque salted one-way function used for passwords.
type PasswordHasher interface {
	GenerateSalt() (string, error)
	Hash(password, salt string) (string, error)
	Verify(password, salt, hash string) bool
}
