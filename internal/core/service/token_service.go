package service

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/99minutos/identity-system/internal/core/domain"
	"github.com/99minutos/identity-system/internal/core/ports"
)

// refreshTokenBytes gives 256 bits of entropy per refresh token.
const refreshTokenBytes = 32

// TokenSettings is the immutable token configuration injected at startup.
type TokenSettings struct {
	SigningKey *rsa.PrivateKey
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// TokenService implements ports.TokenService.
type TokenService struct {
	tokens   ports.RefreshTokenRepository
	users    ports.UserRepository
	roles    ports.RoleRepository
	settings TokenSettings
	log      zerolog.Logger
	now      func() time.Time
}

func NewTokenService(
	tokens ports.RefreshTokenRepository,
	users ports.UserRepository,
	roles ports.RoleRepository,
	settings TokenSettings,
	log zerolog.Logger,
) *TokenService {
	if settings.AccessTTL <= 0 {
		settings.AccessTTL = 15 * time.Minute
	}
	if settings.RefreshTTL <= 0 {
		settings.RefreshTTL = 30 * 24 * time.Hour
	}
	return &TokenService{
		tokens:   tokens,
		users:    users,
		roles:    roles,
		settings: settings,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateAccessTokens signs a new access token for user and persists a fresh
// refresh token next to it.
func (s *TokenService) CreateAccessTokens(ctx context.Context, user *domain.User) (*domain.AccessTokens, error) {
	now := s.now()

	accessToken, expiresAt, err := s.signAccessToken(ctx, user, now)
	if err != nil {
		return nil, err
	}

	refresh, err := randomToken(refreshTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: generate refresh token: %v", domain.ErrInternal, err)
	}

	record := &domain.RefreshToken{
		ID:         uuid.NewString(),
		Token:      refresh,
		UserID:     user.ID,
		CreatedAt:  now,
		ExpiryDate: now.Add(s.settings.RefreshTTL),
	}
	if err := s.tokens.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("create access tokens: %w", err)
	}

	return &domain.AccessTokens{
		AccessToken:  accessToken,
		RefreshToken: refresh,
		ExpiresAt:    expiresAt,
	}, nil
}

// ValidateRefreshToken returns the stored token when it is neither revoked
// nor expired.
func (s *TokenService) ValidateRefreshToken(ctx context.Context, token string) (*domain.RefreshToken, error) {
	if token == "" {
		return nil, domain.ErrInvalidToken
	}

	record, err := s.tokens.FindByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if !record.IsActive(s.now()) {
		return nil, domain.ErrInvalidToken
	}
	return record, nil
}

// GetUserByRefreshToken resolves the owner of token. Blocked users are
// reported as missing so they never receive new tokens.
func (s *TokenService) GetUserByRefreshToken(ctx context.Context, token string) (*domain.User, error) {
	record, err := s.tokens.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidToken) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}

	user, err := s.users.FindByID(ctx, record.UserID)
	if err != nil {
		return nil, err
	}
	if user.IsBlocked {
		return nil, domain.ErrUserNotFound
	}
	return user, nil
}

// UpdateAccessTokens revokes oldRefreshToken and issues a new pair. The
// revocation is a conditional update, so of two concurrent calls with the
// same token only one gets past it.
func (s *TokenService) UpdateAccessTokens(ctx context.Context, user *domain.User, oldRefreshToken string) (*domain.AccessTokens, error) {
	revoked, err := s.tokens.Revoke(ctx, user.ID, oldRefreshToken, s.now())
	if err != nil {
		return nil, fmt.Errorf("revoke refresh token: %w", err)
	}
	if !revoked {
		return nil, domain.ErrInvalidToken
	}
	return s.CreateAccessTokens(ctx, user)
}

// RevokeRefreshTokens ends every session of user.
func (s *TokenService) RevokeRefreshTokens(ctx context.Context, user *domain.User) error {
	n, err := s.tokens.RevokeAll(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("revoke refresh tokens: %w", err)
	}
	s.log.Info().Str("user_id", user.ID).Int64("revoked", n).Msg("refresh tokens revoked")
	return nil
}

func (s *TokenService) signAccessToken(ctx context.Context, user *domain.User, now time.Time) (string, time.Time, error) {
	if s.settings.SigningKey == nil {
		return "", time.Time{}, fmt.Errorf("%w: signing key is not configured", domain.ErrInternal)
	}

	superUser := false
	if len(user.Roles) > 0 {
		roles, err := s.roles.FindByCodes(ctx, user.Roles)
		if err != nil {
			return "", time.Time{}, fmt.Errorf("load roles: %w", err)
		}
		superUser = domain.IsSuperUser(roles)
	}

	expiresAt := now.Add(s.settings.AccessTTL)
	roles := user.Roles
	if roles == nil {
		roles = []string{}
	}
	claims := jwt.MapClaims{
		"sub":        user.ID,
		"name":       user.UserName,
		"email":      user.Email,
		"roles":      roles,
		"super_user": superUser,
		"iss":        s.settings.Issuer,
		"iat":        now.Unix(),
		"exp":        expiresAt.Unix(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.settings.SigningKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: sign access token: %v", domain.ErrInternal, err)
	}
	return signed, expiresAt, nil
}

// randomToken returns n random bytes, base64url encoded.
func randomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
