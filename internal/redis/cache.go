package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"cabpool/internal/domain"
)

// UserCacheTTL bounds how stale a cached profile can be. Gender rarely
// changes, so a long TTL is fine.
const UserCacheTTL = 10 * time.Minute

const userCachePrefix = "cache:user:"

// CachedUser is the subset of a user the matching path needs.
type CachedUser struct {
	ID     string        `json:"id"`
	Gender domain.Gender `json:"gender"`
}

// CacheStore handles entity caching in Redis.
type CacheStore struct {
	client *redis.Client
}

// NewCacheStore creates a new CacheStore.
func NewCacheStore(client *redis.Client) *CacheStore {
	return &CacheStore{client: client}
}

// GetUsersBatch retrieves users from cache with one pipeline.
// Returns the hits keyed by id and the ids that missed.
func (s *CacheStore) GetUsersBatch(ctx context.Context, ids []string) (map[string]*CachedUser, []string, error) {
	result := make(map[string]*CachedUser, len(ids))
	if len(ids) == 0 {
		return result, nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, userCachePrefix+id)
	}
	// Exec reports redis.Nil when any key is missing; per-command errors are
	// inspected below.
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, nil, err
	}

	var missing []string
	for i, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			missing = append(missing, ids[i])
			continue
		}
		var user CachedUser
		if err := json.Unmarshal(data, &user); err != nil {
			missing = append(missing, ids[i])
			continue
		}
		result[ids[i]] = &user
	}
	return result, missing, nil
}

// SetUsersBatch stores users in cache with one pipeline.
func (s *CacheStore) SetUsersBatch(ctx context.Context, users []*CachedUser) error {
	if len(users) == 0 {
		return nil
	}

	pipe := s.client.Pipeline()
	for _, u := range users {
		data, err := json.Marshal(u)
		if err != nil {
			continue
		}
		pipe.Set(ctx, userCachePrefix+u.ID, data, UserCacheTTL)
	}
	_, err := pipe.Exec(ctx)
	return err
}
