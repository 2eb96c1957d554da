package redis

import (
	"context"

	"github.com/redis/go-redis/v9"

	"cabpool/internal/domain"
)

// Geo index keys. Members are entity ids positioned at their pickup point.
const (
	PoolPickupKey  = "geo:pool:pickup"
	GroupPickupKey = "geo:group:pickup"
)

// LocationStore keeps pickup points of open entities in Redis GEO sets.
type LocationStore struct {
	client *redis.Client
}

// NewLocationStore creates a new LocationStore.
func NewLocationStore(client *redis.Client) *LocationStore {
	return &LocationStore{client: client}
}

// Add indexes id at c using GEOADD.
func (s *LocationStore) Add(ctx context.Context, key, id string, c domain.Coordinate) error {
	return s.client.GeoAdd(ctx, key, &redis.GeoLocation{
		Name:      id,
		Longitude: c.Lng,
		Latitude:  c.Lat,
	}).Err()
}

// Nearby returns ids within radiusKm of c, nearest first.
func (s *LocationStore) Nearby(ctx context.Context, key string, c domain.Coordinate, radiusKm float64) ([]string, error) {
	results, err := s.client.GeoSearch(ctx, key, &redis.GeoSearchQuery{
		Longitude:  c.Lng,
		Latitude:   c.Lat,
		Radius:     radiusKm,
		RadiusUnit: "km",
		Sort:       "ASC",
	}).Result()
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Remove drops id from the index.
func (s *LocationStore) Remove(ctx context.Context, key, id string) error {
	return s.client.ZRem(ctx, key, id).Err()
}
