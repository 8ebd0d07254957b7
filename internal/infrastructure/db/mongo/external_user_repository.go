package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/99minutos/identity-system/internal/core/domain"
)

const collectionExternalUsers = "external_users"

type ExternalUserRepository struct {
	col *mongo.Collection
}

func NewExternalUserRepository(db *mongo.Database) *ExternalUserRepository {
	return &ExternalUserRepository{col: db.Collection(collectionExternalUsers)}
}

// Create relies on the unique (type, external_id) index.
func (r *ExternalUserRepository) Create(ctx context.Context, externalUser *domain.ExternalUser) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if _, err := r.col.InsertOne(ctx, externalUser); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrExternalUserExists
		}
		return fmt.Errorf("insert external user: %w", err)
	}
	return nil
}

func (r *ExternalUserRepository) FindByExternalID(ctx context.Context, clientType domain.AuthClientType, externalID string) (*domain.ExternalUser, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var e domain.ExternalUser
	err := r.col.FindOne(ctx, bson.M{"type": clientType, "external_id": externalID}).Decode(&e)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("find external user: %w", err)
	}
	return &e, nil
}

func (r *ExternalUserRepository) SetAuthenticationToken(ctx context.Context, id, token string, createdAt time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"authentication_token": token,
		"token_created_at":     createdAt,
	}})
	if err != nil {
		return fmt.Errorf("set authentication token: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("set authentication token: external user %s not found", id)
	}
	return nil
}

// ConsumeAuthenticationToken finds and clears the token in one operation, so
// a token can be exchanged only once.
func (r *ExternalUserRepository) ConsumeAuthenticationToken(ctx context.Context, token string, notBefore time.Time) (*domain.ExternalUser, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := bson.M{
		"authentication_token": token,
		"token_created_at":     bson.M{"$gte": notBefore},
	}
	update := bson.M{"$unset": bson.M{
		"authentication_token": "",
		"token_created_at":     "",
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.Before)

	var e domain.ExternalUser
	if err := r.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&e); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrInvalidToken
		}
		return nil, fmt.Errorf("consume authentication token: %w", err)
	}
	return &e, nil
}
