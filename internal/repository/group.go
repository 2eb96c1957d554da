package repository

import (
	"context"

	"cabpool/internal/domain"
)

// MutateFunc computes the next state of a group from a fresh snapshot.
// Returning deleted=true removes the group. Returning changed=false skips the
// write. Any error aborts the mutation without side effects.
type MutateFunc func(current domain.Group) (next domain.Group, changed, deleted bool, err error)

// GroupRepository defines the persistence operations for groups.
type GroupRepository interface {
	// Create persists a new group with its members.
	Create(ctx context.Context, group *domain.Group) error

	// GetByID retrieves a group with its members.
	GetByID(ctx context.Context, id string) (*domain.Group, error)

	// ListByMember retrieves the groups a user belongs to.
	ListByMember(ctx context.Context, userID string) ([]*domain.Group, error)

	// FindCandidates returns open groups matching q that the excluded user is
	// not a member of.
	FindCandidates(ctx context.Context, q CandidateQuery) ([]*domain.Group, error)

	// Mutate applies fn atomically: the snapshot fn sees cannot change before
	// its result is written. It returns the stored group, or nil if deleted.
	Mutate(ctx context.Context, id string, fn MutateFunc) (*domain.Group, error)
}
