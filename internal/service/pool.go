package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"cabpool/internal/domain"
	"cabpool/internal/notify"
	"cabpool/internal/repository"
)

// CreatePoolRequest contains the parameters for creating a pool request.
type CreatePoolRequest struct {
	CreatorID       string
	Pickup          domain.Place
	Drop            domain.Place
	DateTime        time.Time
	PreferredGender domain.GenderPreference // Defaults to Any.
	SeatsNeeded     int                     // Defaults to 1.
	Mode            domain.PoolMode         // Defaults to Instant.
}

// SetStatusRequest moves a pool request out of Open.
type SetStatusRequest struct {
	RequestID      string
	Status         domain.PoolStatus
	MatchedUserIDs []string
	GroupID        string
}

// PoolService owns the pool request lifecycle.
type PoolService struct {
	poolRepo repository.PoolRequestRepository
	notifier notify.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewPoolService creates a new PoolService.
func NewPoolService(poolRepo repository.PoolRequestRepository, notifier notify.Notifier, logger *slog.Logger) *PoolService {
	return &PoolService{
		poolRepo: poolRepo,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// Create validates and stores a new open pool request.
func (s *PoolService) Create(ctx context.Context, req CreatePoolRequest) (*domain.PoolRequest, error) {
	if req.CreatorID == "" {
		return nil, ErrInvalidUserID
	}
	if err := validatePlace(req.Pickup, ErrMissingPickup); err != nil {
		return nil, err
	}
	if err := validatePlace(req.Drop, ErrMissingDrop); err != nil {
		return nil, err
	}
	if req.DateTime.IsZero() {
		return nil, ErrMissingDateTime
	}

	if req.PreferredGender == "" {
		req.PreferredGender = domain.PreferAny
	}
	if !req.PreferredGender.Valid() {
		return nil, ErrInvalidGender
	}
	if req.SeatsNeeded == 0 {
		req.SeatsNeeded = domain.MinSeatsNeeded
	}
	if req.SeatsNeeded < domain.MinSeatsNeeded || req.SeatsNeeded > domain.MaxSeatsNeeded {
		return nil, ErrInvalidSeatsNeeded
	}
	switch req.Mode {
	case "":
		req.Mode = domain.PoolModeInstant
	case domain.PoolModeInstant, domain.PoolModeScheduled:
	default:
		return nil, ErrInvalidMode
	}

	pr := &domain.PoolRequest{
		ID:              uuid.New().String(),
		CreatorID:       req.CreatorID,
		Pickup:          req.Pickup,
		Drop:            req.Drop,
		DateTime:        req.DateTime,
		PreferredGender: req.PreferredGender,
		SeatsNeeded:     req.SeatsNeeded,
		Mode:            req.Mode,
		Status:          domain.PoolStatusOpen,
		MatchedUserIDs:  []string{},
		CreatedAt:       s.now(),
	}
	if err := s.poolRepo.Create(ctx, pr); err != nil {
		return nil, err
	}
	return pr, nil
}

// Delete cancels an open request. Only its creator or an admin may do so.
// Cancelled requests stay readable but leave candidate search; cancelling
// one again is a no-op. Matched and Completed requests cannot be cancelled.
func (s *PoolService) Delete(ctx context.Context, requestID, requesterID string, role domain.UserRole) error {
	pr, err := s.poolRepo.GetByID(ctx, requestID)
	if err != nil {
		return err
	}
	if pr.CreatorID != requesterID && role != domain.UserRoleAdmin {
		return ErrNotRequestOwner
	}
	switch pr.Status {
	case domain.PoolStatusCancelled:
		return nil
	case domain.PoolStatusOpen:
	default:
		return ErrPoolRequestNotOpen
	}

	pr.Status = domain.PoolStatusCancelled
	err = s.poolRepo.UpdateStatus(ctx, pr)
	if errors.Is(err, ErrPoolRequestNotOpen) {
		// Lost a race; a concurrent cancel still counts as done.
		current, getErr := s.poolRepo.GetByID(ctx, requestID)
		if getErr == nil && current.Status == domain.PoolStatusCancelled {
			return nil
		}
	}
	return err
}

// SetStatus moves an open request to another status. Requests never return
// to Open. The repository rechecks Open on write, so a concurrent Delete and
// SetStatus cannot both succeed.
func (s *PoolService) SetStatus(ctx context.Context, req SetStatusRequest) (*domain.PoolRequest, error) {
	if !req.Status.Valid() {
		return nil, ErrInvalidStatus
	}

	pr, err := s.poolRepo.GetByID(ctx, req.RequestID)
	if err != nil {
		return nil, err
	}
	if pr.Status != domain.PoolStatusOpen || req.Status == domain.PoolStatusOpen {
		return nil, ErrPoolRequestNotOpen
	}

	pr.Status = req.Status
	if req.MatchedUserIDs != nil {
		pr.MatchedUserIDs = append([]string(nil), req.MatchedUserIDs...)
	}
	if req.GroupID != "" {
		pr.GroupID = req.GroupID
	}
	if err := s.poolRepo.UpdateStatus(ctx, pr); err != nil {
		return nil, err
	}

	if pr.Status == domain.PoolStatusMatched {
		payload := map[string]any{"poolRequestId": pr.ID, "groupId": pr.GroupID}
		s.notify(ctx, pr.CreatorID, notify.KindPoolMatched, payload)
		for _, id := range pr.MatchedUserIDs {
			if id != pr.CreatorID {
				s.notify(ctx, id, notify.KindPoolMatched, payload)
			}
		}
	}
	return pr, nil
}

// ListForUser returns the requests userID created, newest first.
func (s *PoolService) ListForUser(ctx context.Context, userID string) ([]*domain.PoolRequest, error) {
	if userID == "" {
		return nil, ErrInvalidUserID
	}
	return s.poolRepo.ListByCreator(ctx, userID)
}

// GetByID returns a pool request.
func (s *PoolService) GetByID(ctx context.Context, id string) (*domain.PoolRequest, error) {
	return s.poolRepo.GetByID(ctx, id)
}

func (s *PoolService) notify(ctx context.Context, userID, kind string, payload map[string]any) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, userID, kind, payload); err != nil {
		s.logger.WarnContext(ctx, "notify failed", "user_id", userID, "kind", kind, "error", err)
	}
}
