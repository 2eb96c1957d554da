// Package memory implements the repositories in process memory. It backs the
// test suites and STORE_DRIVER=memory for local runs.
package memory

import (
	"sync"

	"cabpool/internal/domain"
)

// Store holds all entities behind one mutex, which also serializes group
// mutations.
type Store struct {
	mu           sync.RWMutex
	poolRequests map[string]*domain.PoolRequest
	poolOrder    []string
	groups       map[string]*domain.Group
	groupOrder   []string
	users        map[string]*domain.User
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		poolRequests: make(map[string]*domain.PoolRequest),
		groups:       make(map[string]*domain.Group),
		users:        make(map[string]*domain.User),
	}
}

func copyPoolRequest(r *domain.PoolRequest) *domain.PoolRequest {
	c := *r
	c.MatchedUserIDs = append([]string(nil), r.MatchedUserIDs...)
	return &c
}

func copyGroup(g *domain.Group) *domain.Group {
	c := *g
	c.Members = append([]domain.Member(nil), g.Members...)
	return &c
}
