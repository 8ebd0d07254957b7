package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/99minutos/identity-system/internal/core/domain"
	"github.com/99minutos/identity-system/internal/core/ports"
)

// authenticationTokenBytes gives 384 bits of entropy per one-time token.
const authenticationTokenBytes = 48

// AuthenticationTokenParam is the query parameter that carries the one-time
// token back to the client application.
const AuthenticationTokenParam = "authenticationToken"

// IdentitySettings is the immutable configuration of the external login flow.
type IdentitySettings struct {
	// BaseAddress is the public address of this service, used to build the
	// redirect URI registered at the provider.
	BaseAddress string
}

// ExternalUserService implements ports.ExternalUserService.
type ExternalUserService struct {
	clients       ports.AuthClientRepository
	externalUsers ports.ExternalUserRepository
	users         ports.UserRepository
	userService   ports.UserService
	provider      ports.ProviderClient
	verifier      ports.IdentityVerifier
	settings      IdentitySettings
	log           zerolog.Logger
	now           func() time.Time
}

func NewExternalUserService(
	clients ports.AuthClientRepository,
	externalUsers ports.ExternalUserRepository,
	users ports.UserRepository,
	userService ports.UserService,
	provider ports.ProviderClient,
	verifier ports.IdentityVerifier,
	settings IdentitySettings,
	log zerolog.Logger,
) *ExternalUserService {
	settings.BaseAddress = strings.TrimRight(settings.BaseAddress, "/")
	return &ExternalUserService{
		clients:       clients,
		externalUsers: externalUsers,
		users:         users,
		userService:   userService,
		provider:      provider,
		verifier:      verifier,
		settings:      settings,
		log:           log,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// GetRedirectLocation builds the provider authorization URL for clientURI.
func (s *ExternalUserService) GetRedirectLocation(ctx context.Context, clientURI string) (string, error) {
	if strings.TrimSpace(clientURI) == "" {
		return "", domain.ErrInvalidClientName
	}

	client, err := s.clients.FindByURI(ctx, clientURI)
	if err != nil {
		return "", err
	}

	location, err := url.Parse(client.AuthorizeURL)
	if err != nil {
		return "", fmt.Errorf("%w: parse authorize url of %q: %v", domain.ErrInternal, client.URI, err)
	}

	state, err := randomToken(16)
	if err != nil {
		return "", fmt.Errorf("%w: generate state: %v", domain.ErrInternal, err)
	}

	params := location.Query()
	params.Set("client_id", client.ClientID)
	params.Set("redirect_uri", s.redirectURI(client))
	params.Set("response_type", "code")
	params.Set("state", state)
	switch client.Type {
	case domain.AuthClientApple:
		// Apple only returns name and email with form_post.
		params.Set("scope", "name email")
		params.Set("response_mode", "form_post")
	default:
		params.Set("scope", "openid email profile")
	}
	location.RawQuery = params.Encode()

	return location.String(), nil
}

// Callback exchanges code for provider tokens, resolves the local user and
// returns the client callback URL carrying a fresh one-time token.
func (s *ExternalUserService) Callback(ctx context.Context, clientURI, code string) (string, error) {
	if strings.TrimSpace(clientURI) == "" {
		return "", domain.ErrInvalidClientName
	}
	if strings.TrimSpace(code) == "" {
		return "", domain.ErrCodeNotFound
	}

	// 1. Client registration.
	client, err := s.clients.FindByURI(ctx, clientURI)
	if err != nil {
		return "", err
	}

	// 2. Code exchange.
	tokenResp, err := s.provider.ExchangeCode(ctx, client, code, s.redirectURI(client))
	if err != nil {
		return "", fmt.Errorf("%w: exchange code: %v", domain.ErrExternalProvider, err)
	}
	if tokenResp.IDToken == "" {
		return "", fmt.Errorf("%w: token response has no id_token", domain.ErrInvalidIdentityToken)
	}

	// 3. Identity token.
	oauthUser, err := s.verifier.Verify(ctx, client, tokenResp.IDToken)
	if err != nil {
		return "", err
	}

	// 4. Local user and link.
	externalUser, err := s.resolveExternalUser(ctx, client, oauthUser)
	if err != nil {
		return "", err
	}

	// 5. One-time authentication token.
	authToken, err := randomToken(authenticationTokenBytes)
	if err != nil {
		return "", fmt.Errorf("%w: generate authentication token: %v", domain.ErrInternal, err)
	}
	if err := s.externalUsers.SetAuthenticationToken(ctx, externalUser.ID, authToken, s.now()); err != nil {
		return "", fmt.Errorf("store authentication token: %w", err)
	}

	// 6. Back to the client application.
	location, err := url.Parse(client.CallbackURL)
	if err != nil {
		return "", fmt.Errorf("%w: parse callback url of %q: %v", domain.ErrInternal, client.URI, err)
	}
	params := location.Query()
	params.Set(AuthenticationTokenParam, authToken)
	location.RawQuery = params.Encode()

	s.log.Info().
		Str("client", client.URI).
		Str("user_id", externalUser.UserID).
		Msg("external login completed")

	return location.String(), nil
}

// resolveExternalUser returns the link for the provider identity, creating
// the local user and the link when they do not exist yet. Concurrent
// callbacks for the same identity converge on the rows created by whichever
// request reached the store first.
func (s *ExternalUserService) resolveExternalUser(ctx context.Context, client *domain.AuthClient, oauthUser *domain.OAuthUser) (*domain.ExternalUser, error) {
	existing, err := s.externalUsers.FindByExternalID(ctx, client.Type, oauthUser.UniqueID)
	if err != nil {
		return nil, fmt.Errorf("find external user: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	user, err := s.findOrCreateUser(ctx, oauthUser)
	if err != nil {
		return nil, err
	}

	link := &domain.ExternalUser{
		ID:         uuid.NewString(),
		Type:       client.Type,
		ExternalID: oauthUser.UniqueID,
		UserID:     user.ID,
		CreatedAt:  s.now(),
	}
	err = s.externalUsers.Create(ctx, link)
	if err == nil {
		return link, nil
	}
	if !errors.Is(err, domain.ErrExternalUserExists) {
		return nil, fmt.Errorf("create external user: %w", err)
	}

	winner, err := s.externalUsers.FindByExternalID(ctx, client.Type, oauthUser.UniqueID)
	if err != nil {
		return nil, fmt.Errorf("find external user: %w", err)
	}
	if winner == nil {
		return nil, fmt.Errorf("%w: external user vanished after duplicate insert", domain.ErrInternal)
	}
	return winner, nil
}

const maxUserNameAttempts = 5

// findOrCreateUser links to an existing account with the same email before
// creating a new one.
func (s *ExternalUserService) findOrCreateUser(ctx context.Context, oauthUser *domain.OAuthUser) (*domain.User, error) {
	if strings.TrimSpace(oauthUser.Email) == "" {
		return nil, fmt.Errorf("%w: email claim is required to create an account", domain.ErrInvalidIdentityToken)
	}
	email := domain.NormalizeEmail(oauthUser.Email)

	user, err := s.users.FindByEmail(ctx, email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, fmt.Errorf("find user by email: %w", err)
	}

	for attempt := 0; attempt < maxUserNameAttempts; attempt++ {
		user, err = s.userService.CreateUser(ctx, ports.NewUser{
			UserName:          externalUserName(oauthUser.Email, attempt),
			Email:             oauthUser.Email,
			Name:              displayName(oauthUser),
			Password:          uuid.NewString(),
			EmailWasConfirmed: true,
		})
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, domain.ErrUserExists) {
			return nil, fmt.Errorf("create user: %w", err)
		}

		// A concurrent callback may have taken the email. Otherwise the
		// conflict was on the user name and another one is tried.
		user, err = s.users.FindByEmail(ctx, email)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, domain.ErrUserNotFound) {
			return nil, fmt.Errorf("find user by email: %w", err)
		}
	}
	return nil, fmt.Errorf("%w: no free user name for %s", domain.ErrInternal, oauthUser.Email)
}

// externalUserName is the local part of email, suffixed with random hex
// after the first attempt.
func externalUserName(email string, attempt int) string {
	name := strings.TrimSpace(email)
	if i := strings.LastIndex(name, "@"); i > 0 {
		name = name[:i]
	}
	name = strings.ReplaceAll(name, "@", "")
	if name == "" {
		name = "user"
	}
	if attempt == 0 {
		return name
	}
	return name + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func (s *ExternalUserService) redirectURI(client *domain.AuthClient) string {
	return s.settings.BaseAddress + "/identity/callback/" + url.PathEscape(client.URI)
}

func displayName(u *domain.OAuthUser) string {
	if u.Name != nil && strings.TrimSpace(*u.Name) != "" {
		return strings.TrimSpace(*u.Name)
	}
	var parts []string
	if u.GivenName != nil && *u.GivenName != "" {
		parts = append(parts, *u.GivenName)
	}
	if u.FamilyName != nil && *u.FamilyName != "" {
		parts = append(parts, *u.FamilyName)
	}
	if len(parts) > 0 {
		return strings.Join(parts, " ")
	}
	return u.Email
}
