package repository

import (
	"context"

	"github.com/foyerhq/foyer/internal/domain"
)

// UserRepository persists users. Email arguments are expected in normalized
// form (see domain.NormalizeEmail); the store enforces email uniqueness.
type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
}
