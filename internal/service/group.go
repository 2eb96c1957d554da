package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"cabpool/internal/domain"
	"cabpool/internal/notify"
	"cabpool/internal/observability"
	"cabpool/internal/repository"
)

// ChatRooms is the external chat membership, keyed by a group's chat room id.
type ChatRooms interface {
	EnsureRoom(ctx context.Context, roomID string, memberIDs []string) error
	AddMember(ctx context.Context, roomID, userID string) error
	RemoveMember(ctx context.Context, roomID, userID string) error
	DeleteRoom(ctx context.Context, roomID string) error
}

// CreateGroupRequest contains the parameters for creating a group.
type CreateGroupRequest struct {
	CreatorID   string
	Name        string
	Description string
	Route       domain.Route
	SeatCount   int
	DateTime    time.Time
}

// GroupService owns the group lifecycle. Every change to an existing group
// goes through GroupRepository.Mutate, so checks and writes see the same
// snapshot.
type GroupService struct {
	groupRepo repository.GroupRepository
	notifier  notify.Notifier
	chat      ChatRooms
	logger    *slog.Logger
	now       func() time.Time
}

// NewGroupService creates a new GroupService. chat may be nil.
func NewGroupService(
	groupRepo repository.GroupRepository,
	notifier notify.Notifier,
	chat ChatRooms,
	logger *slog.Logger,
) *GroupService {
	return &GroupService{
		groupRepo: groupRepo,
		notifier:  notifier,
		chat:      chat,
		logger:    logger,
		now:       time.Now,
	}
}

// CreateGroup creates an open group with the creator as its admin.
func (s *GroupService) CreateGroup(ctx context.Context, req CreateGroupRequest) (*domain.Group, error) {
	if req.CreatorID == "" {
		return nil, ErrInvalidUserID
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, ErrMissingGroupName
	}
	if req.SeatCount < domain.MinSeatCount || req.SeatCount > domain.MaxSeatCount {
		return nil, ErrInvalidSeatCount
	}
	if err := validatePlace(req.Route.Pickup, ErrMissingPickup); err != nil {
		return nil, err
	}
	if err := validatePlace(req.Route.Drop, ErrMissingDrop); err != nil {
		return nil, err
	}
	if req.DateTime.IsZero() {
		return nil, ErrMissingDateTime
	}

	now := s.now()
	group := &domain.Group{
		ID:          uuid.New().String(),
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Members:     []domain.Member{{UserID: req.CreatorID, Role: domain.MemberRoleAdmin, JoinedAt: now}},
		Route:       req.Route,
		DateTime:    req.DateTime,
		SeatCount:   req.SeatCount,
		Status:      domain.GroupStatusOpen,
		ChatRoomID:  uuid.New().String(),
		Version:     1,
		CreatedAt:   now,
	}

	if err := s.groupRepo.Create(ctx, group); err != nil {
		s.record("create", err)
		return nil, err
	}
	s.record("create", nil)

	if s.chat != nil {
		if err := s.chat.EnsureRoom(ctx, group.ChatRoomID, []string{req.CreatorID}); err != nil {
			s.logger.WarnContext(ctx, "chat room create failed", "group_id", group.ID, "error", err)
		}
	}
	return group, nil
}

// JoinGroup adds userID to the group.
func (s *GroupService) JoinGroup(ctx context.Context, userID, groupID string) (*domain.Group, error) {
	if userID == "" {
		return nil, ErrInvalidUserID
	}

	group, err := s.groupRepo.Mutate(ctx, groupID, func(cur domain.Group) (domain.Group, bool, bool, error) {
		next, err := cur.WithMemberAdded(userID, s.now())
		return next, err == nil, false, err
	})
	s.record("join", err)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{"groupId": group.ID, "userId": userID}
	for _, m := range group.Members {
		if m.UserID != userID {
			s.notify(ctx, m.UserID, notify.KindMemberJoined, payload)
		}
	}
	if s.chat != nil {
		if err := s.chat.AddMember(ctx, group.ChatRoomID, userID); err != nil {
			s.logger.WarnContext(ctx, "chat add member failed", "group_id", group.ID, "user_id", userID, "error", err)
		}
	}
	return group, nil
}

// LeaveGroup removes userID from the group. The first remaining member
// becomes admin if the admin left; the group is deleted when it empties.
func (s *GroupService) LeaveGroup(ctx context.Context, userID, groupID string) error {
	if userID == "" {
		return ErrInvalidUserID
	}

	var before domain.Group
	group, err := s.groupRepo.Mutate(ctx, groupID, func(cur domain.Group) (domain.Group, bool, bool, error) {
		before = cur
		next, deleted, err := cur.WithMemberRemoved(userID)
		return next, err == nil, deleted, err
	})
	s.record("leave", err)
	if err != nil {
		return err
	}

	if group == nil {
		s.logger.InfoContext(ctx, "group deleted", "group_id", groupID)
		if s.chat != nil {
			if err := s.chat.DeleteRoom(ctx, before.ChatRoomID); err != nil {
				s.logger.WarnContext(ctx, "chat room delete failed", "group_id", groupID, "error", err)
			}
		}
		return nil
	}

	if s.chat != nil {
		if err := s.chat.RemoveMember(ctx, group.ChatRoomID, userID); err != nil {
			s.logger.WarnContext(ctx, "chat remove member failed", "group_id", groupID, "user_id", userID, "error", err)
		}
	}

	payload := map[string]any{"groupId": group.ID, "userId": userID}
	for _, m := range group.Members {
		s.notify(ctx, m.UserID, notify.KindMemberLeft, payload)
	}
	if admin := group.Admin(); admin != before.Admin() {
		s.notify(ctx, admin, notify.KindAdminPromoted, map[string]any{"groupId": group.ID})
	}
	return nil
}

// LockGroup closes the group to new members. Only the admin may lock; locking
// a locked group returns it unchanged.
func (s *GroupService) LockGroup(ctx context.Context, requesterID, groupID string) (*domain.Group, error) {
	var changed bool
	group, err := s.groupRepo.Mutate(ctx, groupID, func(cur domain.Group) (domain.Group, bool, bool, error) {
		next, ok, err := cur.Locked(requesterID)
		changed = ok
		return next, ok, false, err
	})
	s.record("lock", err)
	if err != nil {
		return nil, err
	}

	if changed {
		payload := map[string]any{"groupId": group.ID}
		for _, m := range group.Members {
			if m.UserID != requesterID {
				s.notify(ctx, m.UserID, notify.KindGroupLocked, payload)
			}
		}
	}
	return group, nil
}

// ListForUser returns the groups userID belongs to, latest ride first.
func (s *GroupService) ListForUser(ctx context.Context, userID string) ([]*domain.Group, error) {
	if userID == "" {
		return nil, ErrInvalidUserID
	}
	return s.groupRepo.ListByMember(ctx, userID)
}

// GetByID returns a group to one of its members.
func (s *GroupService) GetByID(ctx context.Context, groupID, requesterID string) (*domain.Group, error) {
	group, err := s.groupRepo.GetByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !group.IsMember(requesterID) {
		return nil, domain.ErrGroupAccessDenied
	}
	return group, nil
}

func (s *GroupService) notify(ctx context.Context, userID, kind string, payload map[string]any) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, userID, kind, payload); err != nil {
		s.logger.WarnContext(ctx, "notify failed", "user_id", userID, "kind", kind, "error", err)
	}
}

func (s *GroupService) record(op string, err error) {
	result := observability.ResultOK
	switch {
	case err == nil:
	case domain.KindOf(err) != domain.KindInternal:
		result = observability.ResultRejected
	default:
		result = observability.ResultError
	}
	observability.GroupTransitionsTotal.WithLabelValues(op, result).Inc()
}
