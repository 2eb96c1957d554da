package redis

import (
	"context"

	"github.com/redis/go-redis/v9"
)

const chatRoomPrefix = "chat:room:"

// ChatStore keeps chat room membership for the external messaging service,
// keyed by a group's chat room id.
type ChatStore struct {
	client *redis.Client
}

// NewChatStore creates a new ChatStore.
func NewChatStore(client *redis.Client) *ChatStore {
	return &ChatStore{client: client}
}

func roomKey(roomID string) string {
	return chatRoomPrefix + roomID + ":members"
}

// EnsureRoom creates the room with the given members.
func (s *ChatStore) EnsureRoom(ctx context.Context, roomID string, memberIDs []string) error {
	if len(memberIDs) == 0 {
		return nil
	}
	members := make([]any, len(memberIDs))
	for i, id := range memberIDs {
		members[i] = id
	}
	return s.client.SAdd(ctx, roomKey(roomID), members...).Err()
}

// AddMember adds a user to the room.
func (s *ChatStore) AddMember(ctx context.Context, roomID, userID string) error {
	return s.client.SAdd(ctx, roomKey(roomID), userID).Err()
}

// RemoveMember removes a user from the room.
func (s *ChatStore) RemoveMember(ctx context.Context, roomID, userID string) error {
	return s.client.SRem(ctx, roomKey(roomID), userID).Err()
}

// DeleteRoom removes the room entirely.
func (s *ChatStore) DeleteRoom(ctx context.Context, roomID string) error {
	return s.client.Del(ctx, roomKey(roomID)).Err()
}
