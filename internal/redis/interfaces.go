package redis

import (
	"context"

	"cabpool/internal/domain"
)

// GeoIndex defines the pickup index used for candidate search.
type GeoIndex interface {
	Add(ctx context.Context, key, id string, c domain.Coordinate) error
	Nearby(ctx context.Context, key string, c domain.Coordinate, radiusKm float64) ([]string, error)
	Remove(ctx context.Context, key, id string) error
}

// UserCache defines batch user caching for the matching path.
type UserCache interface {
	GetUsersBatch(ctx context.Context, ids []string) (map[string]*CachedUser, []string, error)
	SetUsersBatch(ctx context.Context, users []*CachedUser) error
}

// Ensure concrete types implement interfaces.
var (
	_ GeoIndex  = (*LocationStore)(nil)
	_ UserCache = (*CacheStore)(nil)
)
