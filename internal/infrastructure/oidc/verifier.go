package oidc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/99minutos/identity-system/internal/core/domain"
)

const clockLeeway = 30 * time.Second

type providerDefaults struct {
	jwksURL string
	issuers []string
}

var defaults = map[domain.AuthClientType]providerDefaults{
	domain.AuthClientApple: {
		jwksURL: "https://appleid.apple.com/auth/keys",
		issuers: []string{"https://appleid.apple.com"},
	},
	domain.AuthClientGoogle: {
		jwksURL: "https://www.googleapis.com/oauth2/v3/certs",
		issuers: []string{"https://accounts.google.com", "accounts.google.com"},
	},
	domain.AuthClientMicrosoft: {
		jwksURL: "https://login.microsoftonline.com/common/discovery/v2.0/keys",
	},
}

// Verifier checks provider id_tokens: RS256 signature against the provider
// JWKS, audience equal to the client id, issuer, and expiry.
type Verifier struct {
	keys *KeySet
	now  func() time.Time
}

func NewVerifier(keys *KeySet) *Verifier {
	return &Verifier{keys: keys, now: time.Now}
}

// Verify returns the identity carried by idToken.
func (v *Verifier) Verify(ctx context.Context, client *domain.AuthClient, idToken string) (*domain.OAuthUser, error) {
	def, ok := defaults[client.Type]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported client type %q", domain.ErrInvalidIdentityToken, client.Type)
	}
	jwksURL := def.jwksURL
	if client.JWKSURL != "" {
		jwksURL = client.JWKSURL
	}

	var keyErr error
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(idToken, claims, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		key, err := v.keys.Key(ctx, jwksURL, kid)
		if err != nil && !errors.Is(err, errKeyNotFound) {
			keyErr = err
		}
		return key, err
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(client.ClientID),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockLeeway),
		jwt.WithTimeFunc(v.now),
	)
	if keyErr != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrExternalProvider, keyErr)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidIdentityToken, err)
	}

	issuer, _ := claims.GetIssuer()
	if !issuerAllowed(client, def, issuer, claims) {
		return nil, fmt.Errorf("%w: unexpected issuer %q", domain.ErrInvalidIdentityToken, issuer)
	}

	subject, _ := claims.GetSubject()
	if subject == "" {
		return nil, fmt.Errorf("%w: missing sub claim", domain.ErrInvalidIdentityToken)
	}

	return oauthUser(client.Type, subject, claims), nil
}

func issuerAllowed(client *domain.AuthClient, def providerDefaults, issuer string, claims jwt.MapClaims) bool {
	if client.Issuer != "" {
		return issuer == client.Issuer
	}
	if client.Type == domain.AuthClientMicrosoft {
		// Microsoft issuers are per tenant.
		tid, _ := claims["tid"].(string)
		return tid != "" && issuer == "https://login.microsoftonline.com/"+tid+"/v2.0"
	}
	for _, allowed := range def.issuers {
		if issuer == allowed {
			return true
		}
	}
	return false
}

func oauthUser(clientType domain.AuthClientType, subject string, claims jwt.MapClaims) *domain.OAuthUser {
	user := &domain.OAuthUser{
		UniqueID: subject,
		Email:    stringClaim(claims, "email"),
	}

	switch clientType {
	case domain.AuthClientGoogle:
		user.GivenName = optionalClaim(claims, "given_name")
		user.FamilyName = optionalClaim(claims, "family_name")
		user.Name = optionalClaim(claims, "name")
	case domain.AuthClientMicrosoft:
		if user.Email == "" {
			user.Email = stringClaim(claims, "preferred_username")
		}
		user.Name = optionalClaim(claims, "name")
	}
	return user
}

func stringClaim(claims jwt.MapClaims, name string) string {
	s, _ := claims[name].(string)
	return strings.TrimSpace(s)
}

func optionalClaim(claims jwt.MapClaims, name string) *string {
	s := stringClaim(claims, name)
	if s == "" {
		return nil
	}
	return &s
}
