package service

import (
	"context"
	"sync"
	"sync/atomic"

	"cabpool/internal/domain"
	"cabpool/internal/redis"
)

// ──────────────────────────────────────────────
// MOCK NOTIFIER
// ──────────────────────────────────────────────

type sentNotification struct {
	UserID  string
	Kind    string
	Payload map[string]any
}

// MockNotifier records notifications and can be told to fail.
type MockNotifier struct {
	mu   sync.Mutex
	sent []sentNotification

	NotifyError error
}

func (m *MockNotifier) Notify(_ context.Context, userID, kind string, payload map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentNotification{UserID: userID, Kind: kind, Payload: payload})
	return m.NotifyError
}

// Sent returns the notifications of the given kind, in order.
func (m *MockNotifier) Sent(kind string) []sentNotification {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []sentNotification
	for _, n := range m.sent {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

// ──────────────────────────────────────────────
// MOCK CHAT ROOMS
// ──────────────────────────────────────────────

// MockChatRooms keeps room membership in memory.
type MockChatRooms struct {
	mu    sync.Mutex
	rooms map[string]map[string]bool

	Err error
}

func NewMockChatRooms() *MockChatRooms {
	return &MockChatRooms{rooms: make(map[string]map[string]bool)}
}

func (m *MockChatRooms) EnsureRoom(_ context.Context, roomID string, memberIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	room := make(map[string]bool)
	for _, id := range memberIDs {
		room[id] = true
	}
	m.rooms[roomID] = room
	return nil
}

func (m *MockChatRooms) AddMember(_ context.Context, roomID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if m.rooms[roomID] == nil {
		m.rooms[roomID] = make(map[string]bool)
	}
	m.rooms[roomID][userID] = true
	return nil
}

func (m *MockChatRooms) RemoveMember(_ context.Context, roomID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	delete(m.rooms[roomID], userID)
	return nil
}

func (m *MockChatRooms) DeleteRoom(_ context.Context, roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	delete(m.rooms, roomID)
	return nil
}

// Room returns the members of a room and whether it exists.
func (m *MockChatRooms) Room(roomID string) (map[string]bool, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[roomID]
	return room, ok
}

// ──────────────────────────────────────────────
// MOCK USER CACHE
// ──────────────────────────────────────────────

// MockUserCache is a map-backed redis.UserCache.
type MockUserCache struct {
	mu    sync.Mutex
	users map[string]*redis.CachedUser

	GetCallCount int32
	SetCallCount int32
}

func NewMockUserCache() *MockUserCache {
	return &MockUserCache{users: make(map[string]*redis.CachedUser)}
}

func (m *MockUserCache) Put(id string, gender domain.Gender) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[id] = &redis.CachedUser{ID: id, Gender: gender}
}

func (m *MockUserCache) GetUsersBatch(_ context.Context, ids []string) (map[string]*redis.CachedUser, []string, error) {
	atomic.AddInt32(&m.GetCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	hits := make(map[string]*redis.CachedUser)
	var missing []string
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			hits[id] = u
		} else {
			missing = append(missing, id)
		}
	}
	return hits, missing, nil
}

func (m *MockUserCache) SetUsersBatch(_ context.Context, users []*redis.CachedUser) error {
	atomic.AddInt32(&m.SetCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range users {
		m.users[u.ID] = u
	}
	return nil
}

var (
	_ ChatRooms       = (*MockChatRooms)(nil)
	_ redis.UserCache = (*MockUserCache)(nil)
)
