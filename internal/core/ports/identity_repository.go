package ports

import (
	"context"
	"time"

	"github.com/99minutos/identity-system/internal/core/domain"
)

// AuthClientRepository reads external provider registrations.
type AuthClientRepository interface {
	// FindByURI returns domain.ErrClientNotFound when uri is unknown.
	FindByURI(ctx context.Context, uri string) (*domain.AuthClient, error)
	Upsert(ctx context.Context, client *domain.AuthClient) error
}

// ExternalUserRepository persists links between local users and provider
// identities.
type ExternalUserRepository interface {
	// Create returns domain.ErrExternalUserExists when the (type, external id)
	// pair is already linked.
	Create(ctx context.Context, externalUser *domain.ExternalUser) error
	// FindByExternalID returns (nil, nil) when no link exists.
	FindByExternalID(ctx context.Context, clientType domain.AuthClientType, externalID string) (*domain.ExternalUser, error)
	SetAuthenticationToken(ctx context.Context, id, token string, createdAt time.Time) error
	// ConsumeAuthenticationToken atomically clears a token created at or after
	// notBefore and returns the owning link. Returns domain.ErrInvalidToken
	// when no such token exists.
	ConsumeAuthenticationToken(ctx context.Context, token string, notBefore time.Time) (*domain.ExternalUser, error)
}
