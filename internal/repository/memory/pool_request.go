package memory

import (
	"context"
	"sort"

	"cabpool/internal/domain"
	"cabpool/internal/geo"
	"cabpool/internal/repository"
)

// PoolRequestRepository is an in-memory repository.PoolRequestRepository.
type PoolRequestRepository struct {
	s *Store
}

// NewPoolRequestRepository creates a pool request repository on s.
func NewPoolRequestRepository(s *Store) *PoolRequestRepository {
	return &PoolRequestRepository{s: s}
}

// Create persists a new pool request.
func (r *PoolRequestRepository) Create(ctx context.Context, req *domain.PoolRequest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.poolRequests[req.ID] = copyPoolRequest(req)
	r.s.poolOrder = append(r.s.poolOrder, req.ID)
	return nil
}

// GetByID retrieves a pool request by ID.
func (r *PoolRequestRepository) GetByID(ctx context.Context, id string) (*domain.PoolRequest, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	req, ok := r.s.poolRequests[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyPoolRequest(req), nil
}

// ListByCreator retrieves the requests created by a user, newest first.
func (r *PoolRequestRepository) ListByCreator(ctx context.Context, userID string) ([]*domain.PoolRequest, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*domain.PoolRequest
	for _, id := range r.s.poolOrder {
		if req := r.s.poolRequests[id]; req.CreatorID == userID {
			out = append(out, copyPoolRequest(req))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// UpdateStatus sets status, matched users and group of an open request.
func (r *PoolRequestRepository) UpdateStatus(ctx context.Context, req *domain.PoolRequest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.poolRequests[req.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if stored.Status != domain.PoolStatusOpen {
		return domain.ErrPoolRequestNotOpen
	}
	stored.Status = req.Status
	stored.MatchedUserIDs = append([]string(nil), req.MatchedUserIDs...)
	stored.GroupID = req.GroupID
	return nil
}

// FindCandidates returns open requests matching q, nearest pickup first.
func (r *PoolRequestRepository) FindCandidates(ctx context.Context, q repository.CandidateQuery) ([]*domain.PoolRequest, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	type hit struct {
		req  *domain.PoolRequest
		dist float64
	}
	var hits []hit
	for _, id := range r.s.poolOrder {
		req := r.s.poolRequests[id]
		if req.Status != domain.PoolStatusOpen || req.CreatorID == q.ExcludeUserID {
			continue
		}
		if req.DateTime.Before(q.From) || req.DateTime.After(q.To) {
			continue
		}
		if !req.PreferredGender.CompatibleWith(q.Gender) {
			continue
		}
		d := geo.DistanceMeters(q.Near, req.Pickup.Coord)
		if q.RadiusKm > 0 && d > q.RadiusKm*1000 {
			continue
		}
		hits = append(hits, hit{req: copyPoolRequest(req), dist: d})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].dist < hits[j].dist })

	out := make([]*domain.PoolRequest, len(hits))
	for i, h := range hits {
		out[i] = h.req
	}
	return out, nil
}

var _ repository.PoolRequestRepository = (*PoolRequestRepository)(nil)
