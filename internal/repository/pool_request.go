package repository

import (
	"context"

	"cabpool/internal/domain"
)

// PoolRequestRepository defines the persistence operations for pool requests.
type PoolRequestRepository interface {
	// Create persists a new pool request.
	Create(ctx context.Context, req *domain.PoolRequest) error

	// GetByID retrieves a pool request by ID.
	GetByID(ctx context.Context, id string) (*domain.PoolRequest, error)

	// ListByCreator retrieves the requests created by a user, newest first.
	ListByCreator(ctx context.Context, userID string) ([]*domain.PoolRequest, error)

	// UpdateStatus sets status, matched users and group of a request that is
	// still Open. It returns domain.ErrPoolRequestNotOpen when the stored
	// request already left Open.
	UpdateStatus(ctx context.Context, req *domain.PoolRequest) error

	// FindCandidates returns open requests matching q.
	FindCandidates(ctx context.Context, q CandidateQuery) ([]*domain.PoolRequest, error)
}
