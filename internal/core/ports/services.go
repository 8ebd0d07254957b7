package ports

import (
	"context"

	"github.com/99minutos/identity-system/internal/core/domain"
)

// TokenService issues, validates, rotates and revokes token pairs.
type TokenService interface {
	CreateAccessTokens(ctx context.Context, user *domain.User) (*domain.AccessTokens, error)
	ValidateRefreshToken(ctx context.Context, token string) (*domain.RefreshToken, error)
	GetUserByRefreshToken(ctx context.Context, token string) (*domain.User, error)
	UpdateAccessTokens(ctx context.Context, user *domain.User, oldRefreshToken string) (*domain.AccessTokens, error)
	RevokeRefreshTokens(ctx context.Context, user *domain.User) error
}

// NewUser carries the data needed to create a local account.
type NewUser struct {
	UserName          string
	Email             string
	Name              string
	Password          string
	EmailWasConfirmed bool
	// Roles are attached on top of the default roles.
	Roles []string
}

// UserService authenticates local credentials and manages accounts.
type UserService interface {
	Login(ctx context.Context, userNameOrEmail, password string) (*domain.User, error)
	LoginByAuthenticationToken(ctx context.Context, authenticationToken string) (*domain.User, error)
	ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error
	GetByUserName(ctx context.Context, userName string) (*domain.User, error)
	CreateUser(ctx context.Context, in NewUser) (*domain.User, error)
	SetBlocked(ctx context.Context, userName string, blocked bool) error
}

// ExternalUserService bridges OAuth/OIDC providers to local accounts.
type ExternalUserService interface {
	GetRedirectLocation(ctx context.Context, clientURI string) (string, error)
	// Callback returns the client callback URL carrying the one-time
	// authentication token.
	Callback(ctx context.Context, clientURI, code string) (string, error)
}
