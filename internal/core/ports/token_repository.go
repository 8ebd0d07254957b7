package ports

import (
	"context"
	"time"

	"github.com/99minutos/identity-system/internal/core/domain"
)

// RefreshTokenRepository persists refresh tokens.
type RefreshTokenRepository interface {
	Create(ctx context.Context, token *domain.RefreshToken) error
	// FindByToken returns domain.ErrInvalidToken when no token matches.
	FindByToken(ctx context.Context, token string) (*domain.RefreshToken, error)
	// Revoke atomically flips a single active token of userID (not revoked,
	// not expired at now) to revoked. It reports false when nothing matched,
	// which means the token was already used or never valid.
	Revoke(ctx context.Context, userID, token string, now time.Time) (bool, error)
	// RevokeAll revokes every non-revoked token owned by userID.
	RevokeAll(ctx context.Context, userID string) (int64, error)
}
