package userRepo

import (
	"context"

	"guardget/models"
)

// UserRepository defines methods for user data access. Getters return nil,
// nil when no user matches.
type UserRepository interface {
	// GetByID retrieves a user by its unique ID.
	GetByID(ctx context.Context, id string) (*models.User, error)
	// GetByEmail retrieves a user by its lower-cased email address.
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	// GetByTokenHash finds the user whose current bearer token hashes to hash.
	GetByTokenHash(ctx context.Context, hash string) (*models.User, error)
	// Create inserts a new user record.
	Create(ctx context.Context, user *models.User) error
	// UpdateTokenHash replaces the stored bearer token hash and returns the
	// one it replaced.
	UpdateTokenHash(ctx context.Context, id, hash string) (string, error)
}
