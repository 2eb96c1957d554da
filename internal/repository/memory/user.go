package memory

import (
	"context"

	"cabpool/internal/domain"
	"cabpool/internal/repository"
)

// UserRepository is an in-memory repository.UserRepository.
type UserRepository struct {
	s *Store
}

// NewUserRepository creates a user repository on s.
func NewUserRepository(s *Store) *UserRepository {
	return &UserRepository{s: s}
}

// Add stores or replaces a user.
func (r *UserRepository) Add(user *domain.User) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := *user
	r.s.users[user.ID] = &c
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *u
	return &c, nil
}

// GetGenders returns the gender of each known user in ids.
func (r *UserRepository) GetGenders(ctx context.Context, ids []string) (map[string]domain.Gender, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make(map[string]domain.Gender, len(ids))
	for _, id := range ids {
		if u, ok := r.s.users[id]; ok {
			out[id] = u.Gender
		}
	}
	return out, nil
}

var _ repository.UserRepository = (*UserRepository)(nil)
