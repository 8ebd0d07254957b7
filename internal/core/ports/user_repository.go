package ports

import (
	"context"
	"time"

	"github.com/99minutos/identity-system/internal/core/domain"
)

// UserRepository persists users. Create returns domain.ErrUserExists when the
// normalized user name or email is already taken.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	FindByID(ctx context.Context, id string) (*domain.User, error)
	// FindByUserNameOrEmail matches userNameNormalized against the user name
	// and emailNormalized against the email. An email match takes precedence.
	FindByUserNameOrEmail(ctx context.Context, userNameNormalized, emailNormalized string) (*domain.User, error)
	FindByUserName(ctx context.Context, userNameNormalized string) (*domain.User, error)
	FindByEmail(ctx context.Context, emailNormalized string) (*domain.User, error)
	UpdatePassword(ctx context.Context, userID, password, salt string, updatedAt time.Time) error
	SetBlocked(ctx context.Context, userID string, blocked bool, updatedAt time.Time) error
}

// RoleRepository reads roles and upserts them during seeding.
type RoleRepository interface {
	FindDefault(ctx context.Context) ([]domain.Role, error)
	FindByCodes(ctx context.Context, codes []string) ([]domain.Role, error)
	Upsert(ctx context.Context, role *domain.Role) error
}
