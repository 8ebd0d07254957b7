package service

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/99minutos/identity-system/internal/core/domain"
)

func strPtr(s string) *string { return &s }

func TestExternalUserService_GetRedirectLocation(t *testing.T) {
	f := newFixture(t)

	location, err := f.external.GetRedirectLocation(context.Background(), "google")
	require.NoError(t, err)

	u, err := url.Parse(location)
	require.NoError(t, err)
	require.Equal(t, "accounts.google.com", u.Host)
	q := u.Query()
	require.Equal(t, "google-client", q.Get("client_id"))
	require.Equal(t, "http://identity.test/identity/callback/google", q.Get("redirect_uri"))
	require.Equal(t, "code", q.Get("response_type"))
	require.Equal(t, "openid email profile", q.Get("scope"))
	require.NotEmpty(t, q.Get("state"))
}

func TestExternalUserService_GetRedirectLocation_Apple(t *testing.T) {
	f := newFixture(t)
	_ = memClients{f.store}.Upsert(context.Background(), &domain.AuthClient{
		URI:          "apple",
		Type:         domain.AuthClientApple,
		ClientID:     "com.example.web",
		AuthorizeURL: "https://appleid.apple.com/auth/authorize",
	})

	location, err := f.external.GetRedirectLocation(context.Background(), "apple")
	require.NoError(t, err)

	u, _ := url.Parse(location)
	require.Equal(t, "form_post", u.Query().Get("response_mode"))
	require.Equal(t, "name email", u.Query().Get("scope"))
}

func TestExternalUserService_GetRedirectLocation_Errors(t *testing.T) {
	f := newFixture(t)

	_, err := f.external.GetRedirectLocation(context.Background(), "")
	require.ErrorIs(t, err, domain.ErrInvalidClientName)

	_, err = f.external.GetRedirectLocation(context.Background(), "unknown")
	require.ErrorIs(t, err, domain.ErrClientNotFound)
}

func TestExternalUserService_Callback_InputErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.external.Callback(ctx, "", "code")
	require.ErrorIs(t, err, domain.ErrInvalidClientName)

	_, err = f.external.Callback(ctx, "google", "")
	require.ErrorIs(t, err, domain.ErrCodeNotFound)

	_, err = f.external.Callback(ctx, "unknown", "code")
	require.ErrorIs(t, err, domain.ErrClientNotFound)
	require.Zero(t, f.provider.calls, "provider must not be called for unknown clients")
}

func TestExternalUserService_Callback_CreatesUserAndRedirects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.verifier.user = &domain.OAuthUser{
		UniqueID:   "google-sub-1",
		Email:      "Jane@Example.com",
		GivenName:  strPtr("Jane"),
		FamilyName: strPtr("Doe"),
	}

	location, err := f.external.Callback(ctx, "google", "auth-code")
	require.NoError(t, err)
	require.Equal(t, "http://identity.test/identity/callback/google", f.provider.gotURI)

	u, err := url.Parse(location)
	require.NoError(t, err)
	require.Equal(t, "app.test", u.Host)
	token := u.Query().Get(AuthenticationTokenParam)
	require.GreaterOrEqual(t, len(token), 64)

	user, err := memUsers{f.store}.FindByEmail(ctx, "JANE@EXAMPLE.COM")
	require.NoError(t, err)
	require.Equal(t, "Jane Doe", user.Name)
	require.True(t, user.EmailWasConfirmed)
	require.Contains(t, user.Roles, "member")
	require.Equal(t, GravatarHash("jane@example.com"), user.GravatarHash)

	// The one-time token logs the user in exactly once.
	loggedIn, err := f.users.LoginByAuthenticationToken(ctx, token)
	require.NoError(t, err)
	require.Equal(t, user.ID, loggedIn.ID)
	_, err = f.users.LoginByAuthenticationToken(ctx, token)
	require.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestExternalUserService_Callback_LinksExistingEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	local := f.createUser(t, "jane", "jane@example.com", "janepass1")
	f.verifier.user = &domain.OAuthUser{UniqueID: "google-sub-2", Email: "JANE@example.com"}

	_, err := f.external.Callback(ctx, "google", "auth-code")
	require.NoError(t, err)

	require.Equal(t, 1, memUsers{f.store}.count())
	link, err := memExternalUsers{f.store}.FindByExternalID(ctx, domain.AuthClientGoogle, "google-sub-2")
	require.NoError(t, err)
	require.NotNil(t, link)
	require.Equal(t, local.ID, link.UserID)
}

func TestExternalUserService_Callback_EmailsWithSameUserNameKeyGetSeparateAccounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Both addresses read "ABC.COM" once the "@" is stripped.
	f.verifier.user = &domain.OAuthUser{UniqueID: "sub-a", Email: "a@bc.com"}
	_, err := f.external.Callback(ctx, "google", "code-a")
	require.NoError(t, err)

	f.verifier.user = &domain.OAuthUser{UniqueID: "sub-b", Email: "ab@c.com"}
	location, err := f.external.Callback(ctx, "google", "code-b")
	require.NoError(t, err)
	require.Contains(t, location, AuthenticationTokenParam+"=")

	require.Equal(t, 2, memUsers{f.store}.count())
	first, err := memUsers{f.store}.FindByEmail(ctx, "A@BC.COM")
	require.NoError(t, err)
	second, err := memUsers{f.store}.FindByEmail(ctx, "AB@C.COM")
	require.NoError(t, err)
	require.NotEqual(t, first.UserNameNormalized, second.UserNameNormalized)

	link, err := memExternalUsers{f.store}.FindByExternalID(ctx, domain.AuthClientGoogle, "sub-b")
	require.NoError(t, err)
	require.NotNil(t, link)
	require.Equal(t, second.ID, link.UserID)
}

func TestExternalUserService_Callback_TakenUserNameGetsSuffix(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	local := f.createUser(t, "jane", "jane@example.com", "janepass1")
	f.verifier.user = &domain.OAuthUser{UniqueID: "ms-sub", Email: "jane@other.org"}

	_, err := f.external.Callback(ctx, "google", "auth-code")
	require.NoError(t, err)

	created, err := memUsers{f.store}.FindByEmail(ctx, "JANE@OTHER.ORG")
	require.NoError(t, err)
	require.NotEqual(t, local.ID, created.ID)
	require.True(t, strings.HasPrefix(created.UserName, "jane-"), created.UserName)
}

func TestExternalUserService_Callback_ReusesExistingLinkWithoutEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.verifier.user = &domain.OAuthUser{UniqueID: "apple-sub", Email: "hidden@privaterelay.appleid.com"}

	_, err := f.external.Callback(ctx, "google", "first")
	require.NoError(t, err)

	// Later logins may omit the email; the existing link is enough.
	f.verifier.user = &domain.OAuthUser{UniqueID: "apple-sub"}
	_, err = f.external.Callback(ctx, "google", "second")
	require.NoError(t, err)
	require.Equal(t, 1, memUsers{f.store}.count())
	require.Equal(t, 1, memExternalUsers{f.store}.count())
}

func TestExternalUserService_Callback_MissingEmailForNewAccount(t *testing.T) {
	f := newFixture(t)
	f.verifier.user = &domain.OAuthUser{UniqueID: "no-email"}

	_, err := f.external.Callback(context.Background(), "google", "auth-code")
	require.ErrorIs(t, err, domain.ErrInvalidIdentityToken)
	require.Zero(t, memUsers{f.store}.count())
}

func TestExternalUserService_Callback_ProviderFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.provider.err = errors.New("connection reset")
	_, err := f.external.Callback(ctx, "google", "auth-code")
	require.ErrorIs(t, err, domain.ErrExternalProvider)
	require.Equal(t, 1, f.provider.calls, "provider calls must not be retried")

	f.provider.err = nil
	f.provider.idTok = ""
	_, err = f.external.Callback(ctx, "google", "auth-code")
	require.ErrorIs(t, err, domain.ErrInvalidIdentityToken)

	f.provider.idTok = "id-token"
	f.verifier.err = domain.ErrInvalidIdentityToken
	_, err = f.external.Callback(ctx, "google", "auth-code")
	require.ErrorIs(t, err, domain.ErrInvalidIdentityToken)
}

func TestExternalUserService_Callback_ConcurrentDuplicatesCreateOneAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.verifier.user = &domain.OAuthUser{UniqueID: "dup-sub", Email: "dup@example.com"}

	const callers = 12
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.external.Callback(ctx, "google", "same-code")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, 1, memUsers{f.store}.count())
	require.Equal(t, 1, memExternalUsers{f.store}.count())
}
