package memory

import (
	"context"
	"slices"
	"sort"

	"cabpool/internal/domain"
	"cabpool/internal/geo"
	"cabpool/internal/repository"
)

// GroupRepository is an in-memory repository.GroupRepository.
type GroupRepository struct {
	s *Store
}

// NewGroupRepository creates a group repository on s.
func NewGroupRepository(s *Store) *GroupRepository {
	return &GroupRepository{s: s}
}

// Create persists a new group with its members.
func (r *GroupRepository) Create(ctx context.Context, group *domain.Group) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.groups[group.ID] = copyGroup(group)
	r.s.groupOrder = append(r.s.groupOrder, group.ID)
	return nil
}

// GetByID retrieves a group with its members.
func (r *GroupRepository) GetByID(ctx context.Context, id string) (*domain.Group, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	g, ok := r.s.groups[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyGroup(g), nil
}

// ListByMember retrieves the groups a user belongs to, latest ride first.
func (r *GroupRepository) ListByMember(ctx context.Context, userID string) ([]*domain.Group, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*domain.Group
	for _, id := range r.s.groupOrder {
		g, ok := r.s.groups[id]
		if ok && g.IsMember(userID) {
			out = append(out, copyGroup(g))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DateTime.After(out[j].DateTime) })
	return out, nil
}

// FindCandidates returns open groups matching q, nearest pickup first.
func (r *GroupRepository) FindCandidates(ctx context.Context, q repository.CandidateQuery) ([]*domain.Group, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	type hit struct {
		group *domain.Group
		dist  float64
	}
	var hits []hit
	for _, id := range r.s.groupOrder {
		g, ok := r.s.groups[id]
		if !ok || g.Status != domain.GroupStatusOpen || g.IsMember(q.ExcludeUserID) {
			continue
		}
		if g.DateTime.Before(q.From) || g.DateTime.After(q.To) {
			continue
		}
		d := geo.DistanceMeters(q.Near, g.Route.Pickup.Coord)
		if q.RadiusKm > 0 && d > q.RadiusKm*1000 {
			continue
		}
		hits = append(hits, hit{group: copyGroup(g), dist: d})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].dist < hits[j].dist })

	out := make([]*domain.Group, len(hits))
	for i, h := range hits {
		out[i] = h.group
	}
	return out, nil
}

// Mutate applies fn under the store lock.
func (r *GroupRepository) Mutate(ctx context.Context, id string, fn repository.MutateFunc) (*domain.Group, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	current, ok := r.s.groups[id]
	if !ok {
		return nil, repository.ErrNotFound
	}

	next, changed, deleted, err := fn(*copyGroup(current))
	if err != nil {
		return nil, err
	}
	if deleted {
		delete(r.s.groups, id)
		r.s.groupOrder = slices.DeleteFunc(r.s.groupOrder, func(g string) bool { return g == id })
		return nil, nil
	}
	if !changed {
		return copyGroup(current), nil
	}
	if next.Version != current.Version {
		return nil, repository.ErrVersionConflict
	}

	next.Version = current.Version + 1
	r.s.groups[id] = copyGroup(&next)
	return copyGroup(&next), nil
}

var _ repository.GroupRepository = (*GroupRepository)(nil)
