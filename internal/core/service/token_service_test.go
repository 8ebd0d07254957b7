package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/99minutos/identity-system/internal/core/domain"
)

func TestTokenService_CreateAccessTokens_SignsClaims(t *testing.T) {
	f := newFixture(t)
	user := f.createUser(t, "carol", "carol@example.com", "s3cret-pass", "administrator")

	pair, err := f.tokens.CreateAccessTokens(context.Background(), user)
	if err != nil {
		t.Fatalf("CreateAccessTokens: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("expected both tokens, got %+v", pair)
	}
	if len(pair.RefreshToken) < 40 {
		t.Fatalf("refresh token too short: %d chars", len(pair.RefreshToken))
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(pair.AccessToken, claims, func(token *jwt.Token) (interface{}, error) {
		return &f.key.PublicKey, nil
	}, jwt.WithValidMethods([]string{"RS256"}))
	if err != nil || !parsed.Valid {
		t.Fatalf("token invalid: %v", err)
	}
	if claims["sub"] != user.ID {
		t.Fatalf("expected sub %s, got %v", user.ID, claims["sub"])
	}
	if claims["super_user"] != true {
		t.Fatalf("expected super_user claim, got %v", claims["super_user"])
	}
	exp, _ := claims.GetExpirationTime()
	if exp == nil || !exp.Time.Equal(pair.ExpiresAt.Truncate(time.Second)) {
		t.Fatalf("exp %v does not match ExpiresAt %v", exp, pair.ExpiresAt)
	}
}

func TestTokenService_CreateAccessTokens_MissingKey(t *testing.T) {
	store := newMemStore()
	svc := NewTokenService(memTokens{store}, memUsers{store}, memRoles{store}, TokenSettings{}, zerolog.Nop())

	_, err := svc.CreateAccessTokens(context.Background(), &domain.User{ID: "u1"})
	if !errors.Is(err, domain.ErrInternal) {
		t.Fatalf("expected ErrInternal, got %v", err)
	}
}

func TestTokenService_ValidateRefreshToken(t *testing.T) {
	f := newFixture(t)
	user := f.createUser(t, "dave", "dave@example.com", "goodpass1")
	pair, err := f.tokens.CreateAccessTokens(context.Background(), user)
	if err != nil {
		t.Fatalf("CreateAccessTokens: %v", err)
	}

	if _, err := f.tokens.ValidateRefreshToken(context.Background(), pair.RefreshToken); err != nil {
		t.Fatalf("expected valid token, got %v", err)
	}
	if _, err := f.tokens.ValidateRefreshToken(context.Background(), pair.RefreshToken+"00"); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for unknown token, got %v", err)
	}

	f.tokens.now = func() time.Time { return time.Now().UTC().Add(2 * time.Hour) }
	if _, err := f.tokens.ValidateRefreshToken(context.Background(), pair.RefreshToken); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestTokenService_Refresh_RotatesToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createUser(t, "sandragreen", "sandragreen@testemail.com", "p@ssword")

	user, err := f.users.Login(ctx, "sandragreen", "p@ssword")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	first, err := f.tokens.CreateAccessTokens(ctx, user)
	if err != nil {
		t.Fatalf("CreateAccessTokens: %v", err)
	}

	second := refresh(t, f, first.RefreshToken)
	if second.RefreshToken == first.RefreshToken {
		t.Fatalf("expected a different refresh token after refresh")
	}

	// The rotated token must not be usable again.
	if _, err := f.tokens.ValidateRefreshToken(ctx, first.RefreshToken); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for rotated token, got %v", err)
	}
	if _, err := f.tokens.UpdateAccessTokens(ctx, user, first.RefreshToken); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken when replaying rotated token, got %v", err)
	}
}

func TestTokenService_Refresh_ConcurrentRotationSucceedsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.createUser(t, "race", "race@example.com", "racepass1")
	pair, err := f.tokens.CreateAccessTokens(ctx, user)
	if err != nil {
		t.Fatalf("CreateAccessTokens: %v", err)
	}

	const callers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.tokens.UpdateAccessTokens(ctx, user, pair.RefreshToken); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 {
		t.Fatalf("expected exactly one successful rotation, got %d", succeeded)
	}
}

func TestTokenService_GetUserByRefreshToken_BlockedUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.createUser(t, "johngreen", "johngreen@testemail.com", "p@ssword")
	pair, err := f.tokens.CreateAccessTokens(ctx, user)
	if err != nil {
		t.Fatalf("CreateAccessTokens: %v", err)
	}

	if err := (memUsers{f.store}).SetBlocked(ctx, user.ID, true, time.Now()); err != nil {
		t.Fatalf("block: %v", err)
	}

	if _, err := f.tokens.ValidateRefreshToken(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("token itself should still be valid, got %v", err)
	}
	if _, err := f.tokens.GetUserByRefreshToken(ctx, pair.RefreshToken); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound for blocked user, got %v", err)
	}
}

func TestTokenService_RevokeRefreshTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.createUser(t, "multi", "multi@example.com", "multipass1")

	var issued []string
	for i := 0; i < 3; i++ {
		pair, err := f.tokens.CreateAccessTokens(ctx, user)
		if err != nil {
			t.Fatalf("CreateAccessTokens: %v", err)
		}
		issued = append(issued, pair.RefreshToken)
	}

	if err := f.tokens.RevokeRefreshTokens(ctx, user); err != nil {
		t.Fatalf("RevokeRefreshTokens: %v", err)
	}
	for _, tok := range issued {
		if _, err := f.tokens.ValidateRefreshToken(ctx, tok); !errors.Is(err, domain.ErrInvalidToken) {
			t.Fatalf("expected revoked token to fail validation, got %v", err)
		}
	}
}

// refresh mirrors the /account/refresh handler.
func refresh(t *testing.T, f *fixture, token string) *domain.AccessTokens {
	t.Helper()
	ctx := context.Background()
	if _, err := f.tokens.ValidateRefreshToken(ctx, token); err != nil {
		t.Fatalf("validate: %v", err)
	}
	user, err := f.tokens.GetUserByRefreshToken(ctx, token)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	pair, err := f.tokens.UpdateAccessTokens(ctx, user, token)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	return pair
}
