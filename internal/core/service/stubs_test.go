package service

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/99minutos/identity-system/internal/core/domain"
	"github.com/99minutos/identity-system/internal/core/ports"
)

// ---------------------------------------------------------------------------
// memStore is an in-memory credential store. It enforces the same unique
// constraints as the mongo indexes so concurrency tests are meaningful.
// ---------------------------------------------------------------------------

type memStore struct {
	mu            sync.Mutex
	users         map[string]*domain.User
	roles         map[string]*domain.Role
	tokens        map[string]*domain.RefreshToken
	clients       map[string]*domain.AuthClient
	externalUsers map[string]*domain.ExternalUser
}

func newMemStore() *memStore {
	return &memStore{
		users:         make(map[string]*domain.User),
		roles:         make(map[string]*domain.Role),
		tokens:        make(map[string]*domain.RefreshToken),
		clients:       make(map[string]*domain.AuthClient),
		externalUsers: make(map[string]*domain.ExternalUser),
	}
}

func cloneUser(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	clone := *u
	clone.Roles = append([]string(nil), u.Roles...)
	return &clone
}

// users

type memUsers struct{ *memStore }

func (s memUsers) Create(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.UserNameNormalized == user.UserNameNormalized || u.EmailNormalized == user.EmailNormalized {
			return domain.ErrUserExists
		}
	}
	s.users[user.ID] = cloneUser(user)
	return nil
}

func (s memUsers) FindByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		return cloneUser(u), nil
	}
	return nil, domain.ErrUserNotFound
}

func (s memUsers) find(match func(*domain.User) bool) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if match(u) {
			return cloneUser(u), nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (s memUsers) FindByUserNameOrEmail(_ context.Context, userName, email string) (*domain.User, error) {
	if u, err := s.find(func(u *domain.User) bool { return u.EmailNormalized == email }); err == nil {
		return u, nil
	}
	return s.find(func(u *domain.User) bool { return u.UserNameNormalized == userName })
}

func (s memUsers) FindByUserName(_ context.Context, userName string) (*domain.User, error) {
	return s.find(func(u *domain.User) bool { return u.UserNameNormalized == userName })
}

func (s memUsers) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	return s.find(func(u *domain.User) bool { return u.EmailNormalized == email })
}

func (s memUsers) UpdatePassword(_ context.Context, userID, password, salt string, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.Password, u.Salt, u.UpdatedAt = password, salt, updatedAt
	return nil
}

func (s memUsers) SetBlocked(_ context.Context, userID string, blocked bool, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.IsBlocked, u.UpdatedAt = blocked, updatedAt
	return nil
}

func (s memUsers) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

// roles

type memRoles struct{ *memStore }

func (s memRoles) FindDefault(_ context.Context) ([]domain.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Role
	for _, r := range s.roles {
		if r.IsDefault {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s memRoles) FindByCodes(_ context.Context, codes []string) ([]domain.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Role
	for _, c := range codes {
		if r, ok := s.roles[c]; ok {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s memRoles) Upsert(_ context.Context, role *domain.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *role
	s.roles[role.Code] = &clone
	return nil
}

// refresh tokens

type memTokens struct{ *memStore }

func (s memTokens) Create(_ context.Context, token *domain.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *token
	s.tokens[token.Token] = &clone
	return nil
}

func (s memTokens) FindByToken(_ context.Context, token string) (*domain.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[token]
	if !ok {
		return nil, domain.ErrInvalidToken
	}
	clone := *t
	return &clone, nil
}

func (s memTokens) Revoke(_ context.Context, userID, token string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[token]
	if !ok || t.UserID != userID || !t.IsActive(now) {
		return false, nil
	}
	t.Revoked = true
	return true, nil
}

func (s memTokens) RevokeAll(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, t := range s.tokens {
		if t.UserID == userID && !t.Revoked {
			t.Revoked = true
			n++
		}
	}
	return n, nil
}

// auth clients

type memClients struct{ *memStore }

func (s memClients) FindByURI(_ context.Context, uri string) (*domain.AuthClient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[uri]
	if !ok {
		return nil, domain.ErrClientNotFound
	}
	clone := *c
	return &clone, nil
}

func (s memClients) Upsert(_ context.Context, client *domain.AuthClient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *client
	s.clients[client.URI] = &clone
	return nil
}

// external users

type memExternalUsers struct{ *memStore }

func externalKey(t domain.AuthClientType, id string) string { return string(t) + "|" + id }

func (s memExternalUsers) Create(_ context.Context, e *domain.ExternalUser) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := externalKey(e.Type, e.ExternalID)
	if _, exists := s.externalUsers[key]; exists {
		return domain.ErrExternalUserExists
	}
	clone := *e
	s.externalUsers[key] = &clone
	return nil
}

func (s memExternalUsers) FindByExternalID(_ context.Context, t domain.AuthClientType, id string) (*domain.ExternalUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.externalUsers[externalKey(t, id)]
	if !ok {
		return nil, nil
	}
	clone := *e
	return &clone, nil
}

func (s memExternalUsers) SetAuthenticationToken(_ context.Context, id, token string, createdAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.externalUsers {
		if e.ID == id {
			ts := createdAt
			e.AuthenticationToken, e.TokenCreatedAt = token, &ts
			return nil
		}
	}
	return domain.ErrUserNotFound
}

func (s memExternalUsers) ConsumeAuthenticationToken(_ context.Context, token string, notBefore time.Time) (*domain.ExternalUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.externalUsers {
		if e.AuthenticationToken == token && e.TokenCreatedAt != nil && !e.TokenCreatedAt.Before(notBefore) {
			clone := *e
			e.AuthenticationToken, e.TokenCreatedAt = "", nil
			return &clone, nil
		}
	}
	return nil, domain.ErrInvalidToken
}

func (s memExternalUsers) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.externalUsers)
}

// ---------------------------------------------------------------------------
// Other stubs
// ---------------------------------------------------------------------------

// stubHasher is a fast salted sha256; the real argon2 hasher lives in
// infrastructure/password.
type stubHasher struct{}

func (stubHasher) GenerateSalt() (string, error) { return randomToken(8) }

func (stubHasher) Hash(password, salt string) (string, error) {
	sum := sha256.Sum256([]byte(salt + ":" + password))
	return hex.EncodeToString(sum[:]), nil
}

func (h stubHasher) Verify(password, salt, hash string) bool {
	got, _ := h.Hash(password, salt)
	return got == hash
}

type stubProvider struct {
	mu     sync.Mutex
	calls  int
	idTok  string
	err    error
	gotURI string
}

func (p *stubProvider) ExchangeCode(_ context.Context, _ *domain.AuthClient, _ string, redirectURI string) (*ports.ProviderTokenResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.gotURI = redirectURI
	if p.err != nil {
		return nil, p.err
	}
	return &ports.ProviderTokenResponse{AccessToken: "provider-access", IDToken: p.idTok}, nil
}

type stubVerifier struct {
	user *domain.OAuthUser
	err  error
}

func (v *stubVerifier) Verify(_ context.Context, _ *domain.AuthClient, _ string) (*domain.OAuthUser, error) {
	if v.err != nil {
		return nil, v.err
	}
	clone := *v.user
	return &clone, nil
}

// ---------------------------------------------------------------------------
// Fixture wiring every service against one memStore.
// ---------------------------------------------------------------------------

type fixture struct {
	store    *memStore
	tokens   *TokenService
	users    *UserService
	external *ExternalUserService
	provider *stubProvider
	verifier *stubVerifier
	key      *rsa.PrivateKey
}

var (
	testKeyOnce sync.Once
	testKey     *rsa.PrivateKey
)

func signingKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	testKeyOnce.Do(func() {
		k, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		testKey = k
	})
	return testKey
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newMemStore()
	key := signingKey(t)

	_ = memRoles{store}.Upsert(context.Background(), &domain.Role{ID: "r1", Code: "member", Title: "Member", IsDefault: true})
	_ = memRoles{store}.Upsert(context.Background(), &domain.Role{ID: "r2", Code: "administrator", Title: "Administrator", HasSuperPrivileges: true})

	tokens := NewTokenService(memTokens{store}, memUsers{store}, memRoles{store}, TokenSettings{
		SigningKey: key,
		Issuer:     "http://identity.test",
		AccessTTL:  time.Minute,
		RefreshTTL: time.Hour,
	}, zerolog.Nop())
	users := NewUserService(memUsers{store}, memRoles{store}, memExternalUsers{store}, tokens, stubHasher{}, 5*time.Minute, zerolog.Nop())

	provider := &stubProvider{idTok: "id-token"}
	verifier := &stubVerifier{user: &domain.OAuthUser{UniqueID: "ext-1", Email: "jane@example.com"}}
	external := NewExternalUserService(memClients{store}, memExternalUsers{store}, memUsers{store}, users, provider, verifier,
		IdentitySettings{BaseAddress: "http://identity.test/"}, zerolog.Nop())

	_ = memClients{store}.Upsert(context.Background(), &domain.AuthClient{
		ID:           "c1",
		URI:          "google",
		Type:         domain.AuthClientGoogle,
		ClientID:     "google-client",
		ClientSecret: "google-secret",
		CallbackURL:  "https://app.test/login/callback",
		AuthorizeURL: "https://accounts.google.com/o/oauth2/v2/auth",
		TokenURL:     "https://oauth2.googleapis.com/token",
	})

	return &fixture{
		store:    store,
		tokens:   tokens,
		users:    users,
		external: external,
		provider: provider,
		verifier: verifier,
		key:      key,
	}
}

func (f *fixture) createUser(t *testing.T, userName, email, password string, roles ...string) *domain.User {
	t.Helper()
	u, err := f.users.CreateUser(context.Background(), ports.NewUser{
		UserName: userName,
		Email:    email,
		Name:     userName,
		Password: password,
		Roles:    roles,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}
