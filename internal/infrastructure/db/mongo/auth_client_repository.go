package mongo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/99minutos/identity-system/internal/core/domain"
)

const collectionAuthClients = "auth_clients"

type AuthClientRepository struct {
	col *mongo.Collection
}

func NewAuthClientRepository(db *mongo.Database) *AuthClientRepository {
	return &AuthClientRepository{col: db.Collection(collectionAuthClients)}
}

func (r *AuthClientRepository) FindByURI(ctx context.Context, uri string) (*domain.AuthClient, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var c domain.AuthClient
	if err := r.col.FindOne(ctx, bson.M{"uri": uri}).Decode(&c); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrClientNotFound
		}
		return nil, fmt.Errorf("find auth client: %w", err)
	}
	return &c, nil
}

// Upsert creates or replaces the registration addressed by client.URI.
func (r *AuthClientRepository) Upsert(ctx context.Context, client *domain.AuthClient) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	id := client.ID
	if id == "" {
		id = uuid.NewString()
	}
	update := bson.M{
		"$set": bson.M{
			"type":          client.Type,
			"name":          client.Name,
			"client_id":     client.ClientID,
			"client_secret": client.ClientSecret,
			"callback_url":  client.CallbackURL,
			"authorize_url": client.AuthorizeURL,
			"token_url":     client.TokenURL,
			"jwks_url":      client.JWKSURL,
			"issuer":        client.Issuer,
		},
		"$setOnInsert": bson.M{"_id": id},
	}
	_, err := r.col.UpdateOne(ctx, bson.M{"uri": client.URI}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert auth client %q: %w", client.URI, err)
	}
	return nil
}
