package mongo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/99minutos/identity-system/internal/core/domain"
)

const collectionRoles = "roles"

type RoleRepository struct {
	col *mongo.Collection
}

func NewRoleRepository(db *mongo.Database) *RoleRepository {
	return &RoleRepository{col: db.Collection(collectionRoles)}
}

// FindDefault returns the roles attached to every new user.
func (r *RoleRepository) FindDefault(ctx context.Context) ([]domain.Role, error) {
	return r.find(ctx, bson.M{"is_default": true})
}

func (r *RoleRepository) FindByCodes(ctx context.Context, codes []string) ([]domain.Role, error) {
	if len(codes) == 0 {
		return nil, nil
	}
	return r.find(ctx, bson.M{"code": bson.M{"$in": codes}})
}

// Upsert creates or updates a role by its code. The id of an existing role
// never changes.
func (r *RoleRepository) Upsert(ctx context.Context, role *domain.Role) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	id := role.ID
	if id == "" {
		id = uuid.NewString()
	}
	update := bson.M{
		"$set": bson.M{
			"title":                role.Title,
			"description":          role.Description,
			"is_default":           role.IsDefault,
			"has_super_privileges": role.HasSuperPrivileges,
		},
		"$setOnInsert": bson.M{"_id": id},
	}
	_, err := r.col.UpdateOne(ctx, bson.M{"code": role.Code}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert role %q: %w", role.Code, err)
	}
	return nil
}

func (r *RoleRepository) find(ctx context.Context, filter bson.M) ([]domain.Role, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	cur, err := r.col.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("find roles: %w", err)
	}
	var roles []domain.Role
	if err := cur.All(ctx, &roles); err != nil {
		return nil, fmt.Errorf("decode roles: %w", err)
	}
	return roles, nil
}
