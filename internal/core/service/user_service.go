package service

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/99minutos/identity-system/internal/core/domain"
	"github.com/99minutos/identity-system/internal/core/ports"
)

// UserService implements local authentication and account management.
type UserService struct {
	users         ports.UserRepository
	roles         ports.RoleRepository
	externalUsers ports.ExternalUserRepository
	tokens        ports.TokenService
	hasher        ports.PasswordHasher
	authTokenTTL  time.Duration
	log           zerolog.Logger
	now           func() time.Time
}

func NewUserService(
	users ports.UserRepository,
	roles ports.RoleRepository,
	externalUsers ports.ExternalUserRepository,
	tokens ports.TokenService,
	hasher ports.PasswordHasher,
	authTokenTTL time.Duration,
	log zerolog.Logger,
) *UserService {
	if authTokenTTL <= 0 {
		authTokenTTL = 5 * time.Minute
	}
	return &UserService{
		users:         users,
		roles:         roles,
		externalUsers: externalUsers,
		tokens:        tokens,
		hasher:        hasher,
		authTokenTTL:  authTokenTTL,
		log:           log,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Login verifies a user name (or email) and password. Unknown users and wrong
// passwords produce the same error.
func (s *UserService) Login(ctx context.Context, userNameOrEmail, password string) (*domain.User, error) {
	if strings.TrimSpace(userNameOrEmail) == "" || password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	user, err := s.users.FindByUserNameOrEmail(ctx,
		domain.NormalizeUserName(userNameOrEmail),
		domain.NormalizeEmail(userNameOrEmail),
	)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}

	if !s.hasher.Verify(password, user.Salt, user.Password) {
		return nil, domain.ErrInvalidCredentials
	}
	if user.IsBlocked {
		return nil, domain.ErrAccountBlocked
	}
	return user, nil
}

// LoginByAuthenticationToken consumes a one-time token issued by the external
// login callback and returns its owner.
func (s *UserService) LoginByAuthenticationToken(ctx context.Context, authenticationToken string) (*domain.User, error) {
	if authenticationToken == "" {
		return nil, domain.ErrInvalidToken
	}

	link, err := s.externalUsers.ConsumeAuthenticationToken(ctx, authenticationToken, s.now().Add(-s.authTokenTTL))
	if err != nil {
		return nil, err
	}

	user, err := s.users.FindByID(ctx, link.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidToken
		}
		return nil, err
	}
	if user.IsBlocked {
		return nil, domain.ErrAccountBlocked
	}
	return user, nil
}

// ChangePassword replaces the password of userID and signs out every other
// session of that user.
func (s *UserService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if !s.hasher.Verify(currentPassword, user.Salt, user.Password) {
		return domain.ErrInvalidCredentials
	}

	salt, hash, err := s.hashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash, salt, s.now()); err != nil {
		return fmt.Errorf("change password: %w", err)
	}

	return s.tokens.RevokeRefreshTokens(ctx, user)
}

func (s *UserService) GetByUserName(ctx context.Context, userName string) (*domain.User, error) {
	normalized := domain.NormalizeUserName(userName)
	if normalized == "" {
		return nil, domain.ErrUserNotFound
	}
	return s.users.FindByUserName(ctx, normalized)
}

// CreateUser stores a new account attached to the default roles plus
// in.Roles.
func (s *UserService) CreateUser(ctx context.Context, in ports.NewUser) (*domain.User, error) {
	if strings.TrimSpace(in.UserName) == "" || strings.TrimSpace(in.Email) == "" || in.Password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	salt, hash, err := s.hashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	defaults, err := s.roles.FindDefault(ctx)
	if err != nil {
		return nil, fmt.Errorf("load default roles: %w", err)
	}
	roles := make([]string, 0, len(defaults)+len(in.Roles))
	for _, r := range defaults {
		roles = appendUnique(roles, r.Code)
	}
	for _, code := range in.Roles {
		roles = appendUnique(roles, code)
	}

	now := s.now()
	user := &domain.User{
		ID:                    uuid.NewString(),
		UserName:              strings.TrimSpace(in.UserName),
		UserNameNormalized:    domain.NormalizeUserName(in.UserName),
		Email:                 strings.TrimSpace(in.Email),
		EmailNormalized:       domain.NormalizeEmail(in.Email),
		Name:                  in.Name,
		Password:              hash,
		Salt:                  salt,
		EmailWasConfirmed:     in.EmailWasConfirmed,
		EmailConfirmationGUID: uuid.NewString(),
		GravatarHash:          GravatarHash(in.Email),
		Roles:                 roles,
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.log.Info().Str("user_id", user.ID).Strs("roles", roles).Msg("user created")
	return user, nil
}

// SetBlocked blocks or unblocks a user. Blocking also ends all sessions.
func (s *UserService) SetBlocked(ctx context.Context, userName string, blocked bool) error {
	user, err := s.GetByUserName(ctx, userName)
	if err != nil {
		return err
	}
	if err := s.users.SetBlocked(ctx, user.ID, blocked, s.now()); err != nil {
		return fmt.Errorf("set blocked: %w", err)
	}
	if blocked {
		return s.tokens.RevokeRefreshTokens(ctx, user)
	}
	return nil
}

func (s *UserService) hashPassword(password string) (salt, hash string, err error) {
	salt, err = s.hasher.GenerateSalt()
	if err != nil {
		return "", "", fmt.Errorf("%w: generate salt: %v", domain.ErrInternal, err)
	}
	hash, err = s.hasher.Hash(password, salt)
	if err != nil {
		return "", "", fmt.Errorf("%w: hash password: %v", domain.ErrInternal, err)
	}
	return salt, hash, nil
}

// GravatarHash is the md5 of the trimmed, lower-cased email, as Gravatar
// expects it.
func GravatarHash(email string) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(sum[:])
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
