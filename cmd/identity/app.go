package main

import (
	"context"
	"crypto/rsa"

	mongodriver "go.mongodb.org/mongo-driver/mongo"

	"github.com/99minutos/identity-system/internal/core/service"
	"github.com/99minutos/identity-system/internal/infrastructure/db/mongo"
	"github.com/99minutos/identity-system/internal/infrastructure/oidc"
	"github.com/99minutos/identity-system/internal/infrastructure/password"
	"github.com/99minutos/identity-system/internal/pkg/config"
	"github.com/99minutos/identity-system/pkg/logger"
)

// app wires the repositories and services shared by every command.
type app struct {
	client    *mongodriver.Client
	db        *mongodriver.Database
	publicKey *rsa.PublicKey

	roles    *mongo.RoleRepository
	clients  *mongo.AuthClientRepository
	tokens   *service.TokenService
	users    *service.UserService
	external *service.ExternalUserService
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	signingKey, err := cfg.Tokens.SigningKey()
	if err != nil {
		return nil, err
	}
	if signingKey == nil {
		log := logger.Get()
		log.Warn().Msg("PRIVATE_KEY is not set; token issuance will fail")
	}

	client, db, err := mongo.Connect(ctx, mongo.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
	if err != nil {
		return nil, err
	}
	if err := mongo.EnsureIndexes(ctx, db); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	userRepo := mongo.NewUserRepository(db)
	externalUsers := mongo.NewExternalUserRepository(db)
	a := &app{
		client:  client,
		db:      db,
		roles:   mongo.NewRoleRepository(db),
		clients: mongo.NewAuthClientRepository(db),
	}
	if signingKey != nil {
		a.publicKey = &signingKey.PublicKey
	}

	a.tokens = service.NewTokenService(mongo.NewRefreshTokenRepository(db), userRepo, a.roles, service.TokenSettings{
		SigningKey: signingKey,
		Issuer:     cfg.Tokens.Issuer,
		AccessTTL:  cfg.Tokens.AccessTokenTTL,
		RefreshTTL: cfg.Tokens.RefreshTokenTTL,
	}, logger.Component("tokens"))

	a.users = service.NewUserService(userRepo, a.roles, externalUsers, a.tokens,
		password.NewArgon2Hasher(), cfg.Tokens.AuthenticationTokenTTL, logger.Component("users"))

	a.external = service.NewExternalUserService(a.clients, externalUsers, userRepo, a.users,
		oidc.NewClient(cfg.Identity.ProviderTimeout),
		oidc.NewVerifier(oidc.NewKeySet(cfg.Identity.ProviderTimeout, cfg.Identity.JWKSCacheTTL)),
		service.IdentitySettings{BaseAddress: cfg.BaseAddress},
		logger.Component("identity"))

	return a, nil
}

func (a *app) close(ctx context.Context) {
	if err := a.client.Disconnect(ctx); err != nil {
		log := logger.Get()
		log.Warn().Err(err).Msg("mongo disconnect")
	}
}
