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

const collectionUsers = "users"

// UserRepository implements ports.UserRepository using MongoDB.
type UserRepository struct {
	col *mongo.Collection
}

func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{col: db.Collection(collectionUsers)}
}

// Create inserts a user. The unique indexes on the normalized user name and
// email turn a concurrent duplicate into domain.ErrUserExists.
func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if _, err := r.col.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrUserExists
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

// FindByUserNameOrEmail can match two accounts, one by user name and one by
// email. The email match wins.
func (r *UserRepository) FindByUserNameOrEmail(ctx context.Context, userNameNormalized, emailNormalized string) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	cur, err := r.col.Find(ctx, bson.M{"$or": bson.A{
		bson.M{"user_name_normalized": userNameNormalized},
		bson.M{"email_normalized": emailNormalized},
	}}, options.Find().SetLimit(2))
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}

	var users []domain.User
	if err := cur.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	if len(users) == 0 {
		return nil, domain.ErrUserNotFound
	}
	for i := range users {
		if users[i].EmailNormalized == emailNormalized {
			return &users[i], nil
		}
	}
	return &users[0], nil
}

func (r *UserRepository) FindByUserName(ctx context.Context, userNameNormalized string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"user_name_normalized": userNameNormalized})
}

func (r *UserRepository) FindByEmail(ctx context.Context, emailNormalized string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"email_normalized": emailNormalized})
}

func (r *UserRepository) UpdatePassword(ctx context.Context, userID, password, salt string, updatedAt time.Time) error {
	return r.updateOne(ctx, userID, bson.M{
		"password":   password,
		"salt":       salt,
		"updated_at": updatedAt,
	})
}

func (r *UserRepository) SetBlocked(ctx context.Context, userID string, blocked bool, updatedAt time.Time) error {
	return r.updateOne(ctx, userID, bson.M{
		"is_blocked": blocked,
		"updated_at": updatedAt,
	})
}

func (r *UserRepository) findOne(ctx context.Context, filter bson.M) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var u domain.User
	if err := r.col.FindOne(ctx, filter).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &u, nil
}

func (r *UserRepository) updateOne(ctx context.Context, userID string, set bson.M) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}
