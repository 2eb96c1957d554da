package repository

import (
	"context"

	"cabpool/internal/domain"
)

// UserRepository defines the read operations the core needs on users.
type UserRepository interface {
	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id string) (*domain.User, error)

	// GetGenders returns the gender of each known user in ids.
	GetGenders(ctx context.Context, ids []string) (map[string]domain.Gender, error)
}
