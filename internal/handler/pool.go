package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"cabpool/internal/domain"
	"cabpool/internal/service"
)

// PoolHandler handles HTTP requests for pool requests.
type PoolHandler struct {
	poolService     *service.PoolService
	matchingService *service.MatchingService
}

// NewPoolHandler creates a new PoolHandler.
func NewPoolHandler(poolService *service.PoolService, matchingService *service.MatchingService) *PoolHandler {
	return &PoolHandler{
		poolService:     poolService,
		matchingService: matchingService,
	}
}

// CreatePoolRequestBody is the HTTP request body for creating a pool request.
type CreatePoolRequestBody struct {
	PickupLocation  *Location `json:"pickupLocation"`
	DropLocation    *Location `json:"dropLocation"`
	DateTime        time.Time `json:"dateTime"`
	PreferredGender string    `json:"preferredGender,omitempty"`
	SeatsNeeded     int       `json:"seatsNeeded,omitempty"`
	Mode            string    `json:"mode"`
}

// SetPoolStatusBody is the HTTP request body for PATCH /v1/pool/:id/status.
type SetPoolStatusBody struct {
	Status         string   `json:"status"`
	MatchedUserIDs []string `json:"matchedUserIds,omitempty"`
	GroupID        string   `json:"groupId,omitempty"`
}

// PoolRequestResponse is the HTTP response for a pool request.
type PoolRequestResponse struct {
	ID              string    `json:"id"`
	CreatorID       string    `json:"creatorId"`
	PickupLocation  Location  `json:"pickupLocation"`
	DropLocation    Location  `json:"dropLocation"`
	DateTime        time.Time `json:"dateTime"`
	PreferredGender string    `json:"preferredGender"`
	SeatsNeeded     int       `json:"seatsNeeded"`
	Mode            string    `json:"mode"`
	Status          string    `json:"status"`
	MatchedUserIDs  []string  `json:"matchedUserIds"`
	GroupID         string    `json:"groupId,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// PoolMatchResponse is one ranked pool request.
type PoolMatchResponse struct {
	PoolRequestResponse
	ScoreFields
}

func toPoolRequestResponse(pr *domain.PoolRequest) PoolRequestResponse {
	matched := pr.MatchedUserIDs
	if matched == nil {
		matched = []string{}
	}
	return PoolRequestResponse{
		ID:              pr.ID,
		CreatorID:       pr.CreatorID,
		PickupLocation:  toLocation(pr.Pickup),
		DropLocation:    toLocation(pr.Drop),
		DateTime:        pr.DateTime,
		PreferredGender: string(pr.PreferredGender),
		SeatsNeeded:     pr.SeatsNeeded,
		Mode:            string(pr.Mode),
		Status:          string(pr.Status),
		MatchedUserIDs:  matched,
		GroupID:         pr.GroupID,
		CreatedAt:       pr.CreatedAt,
	}
}

// Create handles POST /v1/pool/create
func (h *PoolHandler) Create(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	var req CreatePoolRequestBody
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	pickup, err := req.PickupLocation.toPlace(service.ErrMissingPickup)
	if err != nil {
		respondError(c, err)
		return
	}
	drop, err := req.DropLocation.toPlace(service.ErrMissingDrop)
	if err != nil {
		respondError(c, err)
		return
	}

	pr, err := h.poolService.Create(c.Request.Context(), service.CreatePoolRequest{
		CreatorID:       p.UserID,
		Pickup:          pickup,
		Drop:            drop,
		DateTime:        req.DateTime,
		PreferredGender: domain.GenderPreference(req.PreferredGender),
		SeatsNeeded:     req.SeatsNeeded,
		Mode:            domain.PoolMode(req.Mode),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, toPoolRequestResponse(pr))
}

// Match handles POST /v1/pool/match
func (h *PoolHandler) Match(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	var req MatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	q, err := req.toQuery(p.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	matches, err := h.matchingService.MatchPools(c.Request.Context(), q)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := make([]PoolMatchResponse, 0, len(matches))
	for _, m := range matches {
		resp = append(resp, PoolMatchResponse{
			PoolRequestResponse: toPoolRequestResponse(m.Request),
			ScoreFields:         toScoreFields(m.Score),
		})
	}
	respondJSON(c, http.StatusOK, resp)
}

// Delete handles DELETE /v1/pool/:id
func (h *PoolHandler) Delete(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	if err := h.poolService.Delete(c.Request.Context(), c.Param("id"), p.UserID, p.Role); err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{})
}

// ListMine handles GET /v1/pool/my
func (h *PoolHandler) ListMine(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	requests, err := h.poolService.ListForUser(c.Request.Context(), p.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := make([]PoolRequestResponse, 0, len(requests))
	for _, pr := range requests {
		resp = append(resp, toPoolRequestResponse(pr))
	}
	respondJSON(c, http.StatusOK, resp)
}

// Get handles GET /v1/pool/:id
func (h *PoolHandler) Get(c *gin.Context) {
	pr, err := h.poolService.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toPoolRequestResponse(pr))
}

// SetStatus handles PATCH /v1/pool/:id/status
func (h *PoolHandler) SetStatus(c *gin.Context) {
	var req SetPoolStatusBody
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	pr, err := h.poolService.SetStatus(c.Request.Context(), service.SetStatusRequest{
		RequestID:      c.Param("id"),
		Status:         domain.PoolStatus(req.Status),
		MatchedUserIDs: req.MatchedUserIDs,
		GroupID:        req.GroupID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toPoolRequestResponse(pr))
}
