package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"cabpool/internal/domain"
	"cabpool/internal/service"
)

// GroupHandler handles HTTP requests for groups.
type GroupHandler struct {
	groupService    *service.GroupService
	matchingService *service.MatchingService
}

// NewGroupHandler creates a new GroupHandler.
func NewGroupHandler(groupService *service.GroupService, matchingService *service.MatchingService) *GroupHandler {
	return &GroupHandler{
		groupService:    groupService,
		matchingService: matchingService,
	}
}

// RouteBody is a group route on the wire.
type RouteBody struct {
	Pickup *Location `json:"pickup"`
	Drop   *Location `json:"drop"`
}

// CreateGroupBody is the HTTP request body for creating a group.
type CreateGroupBody struct {
	GroupName   string     `json:"groupName"`
	Description string     `json:"description,omitempty"`
	Route       *RouteBody `json:"route"`
	SeatCount   int        `json:"seatCount"`
	DateTime    time.Time  `json:"dateTime"`
}

// MemberResponse is one group member.
type MemberResponse struct {
	UserID   string    `json:"userId"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joinedAt"`
}

// RouteResponse is a group route.
type RouteResponse struct {
	Pickup Location `json:"pickup"`
	Drop   Location `json:"drop"`
}

// GroupResponse is the HTTP response for a group.
type GroupResponse struct {
	ID          string           `json:"id"`
	GroupName   string           `json:"groupName"`
	Description string           `json:"description,omitempty"`
	Members     []MemberResponse `json:"members"`
	Route       RouteResponse    `json:"route"`
	DateTime    time.Time        `json:"dateTime"`
	SeatCount   int              `json:"seatCount"`
	SeatsLeft   int              `json:"seatsLeft"`
	Status      string           `json:"status"`
	ChatRoomID  string           `json:"chatRoomId"`
	Version     int64            `json:"version"`
	CreatedAt   time.Time        `json:"createdAt"`
}

// GroupMatchResponse is one ranked group.
type GroupMatchResponse struct {
	GroupResponse
	ScoreFields
}

func toGroupResponse(g *domain.Group) GroupResponse {
	members := make([]MemberResponse, len(g.Members))
	for i, m := range g.Members {
		members[i] = MemberResponse{UserID: m.UserID, Role: string(m.Role), JoinedAt: m.JoinedAt}
	}
	return GroupResponse{
		ID:          g.ID,
		GroupName:   g.Name,
		Description: g.Description,
		Members:     members,
		Route:       RouteResponse{Pickup: toLocation(g.Route.Pickup), Drop: toLocation(g.Route.Drop)},
		DateTime:    g.DateTime,
		SeatCount:   g.SeatCount,
		SeatsLeft:   g.SeatsLeft(),
		Status:      string(g.Status),
		ChatRoomID:  g.ChatRoomID,
		Version:     g.Version,
		CreatedAt:   g.CreatedAt,
	}
}

// Create handles POST /v1/group
func (h *GroupHandler) Create(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	var req CreateGroupBody
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	if req.Route == nil {
		respondError(c, service.ErrMissingPickup)
		return
	}
	pickup, err := req.Route.Pickup.toPlace(service.ErrMissingPickup)
	if err != nil {
		respondError(c, err)
		return
	}
	drop, err := req.Route.Drop.toPlace(service.ErrMissingDrop)
	if err != nil {
		respondError(c, err)
		return
	}

	group, err := h.groupService.CreateGroup(c.Request.Context(), service.CreateGroupRequest{
		CreatorID:   p.UserID,
		Name:        req.GroupName,
		Description: req.Description,
		Route:       domain.Route{Pickup: pickup, Drop: drop},
		SeatCount:   req.SeatCount,
		DateTime:    req.DateTime,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusCreated, toGroupResponse(group))
}

// Join handles POST /v1/group/join/:groupId
func (h *GroupHandler) Join(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	group, err := h.groupService.JoinGroup(c.Request.Context(), p.UserID, c.Param("groupId"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toGroupResponse(group))
}

// Leave handles POST /v1/group/leave/:groupId
func (h *GroupHandler) Leave(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	if err := h.groupService.LeaveGroup(c.Request.Context(), p.UserID, c.Param("groupId")); err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{})
}

// Lock handles PATCH /v1/group/lock/:groupId
func (h *GroupHandler) Lock(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	group, err := h.groupService.LockGroup(c.Request.Context(), p.UserID, c.Param("groupId"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toGroupResponse(group))
}

// Match handles POST /v1/group/match
func (h *GroupHandler) Match(c *gin.Context) {
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

	matches, err := h.matchingService.MatchGroups(c.Request.Context(), q)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := make([]GroupMatchResponse, 0, len(matches))
	for _, m := range matches {
		resp = append(resp, GroupMatchResponse{
			GroupResponse: toGroupResponse(m.Group),
			ScoreFields:   toScoreFields(m.Score),
		})
	}
	respondJSON(c, http.StatusOK, resp)
}

// ListMine handles GET /v1/group/my
func (h *GroupHandler) ListMine(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	groups, err := h.groupService.ListForUser(c.Request.Context(), p.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := make([]GroupResponse, 0, len(groups))
	for _, g := range groups {
		resp = append(resp, toGroupResponse(g))
	}
	respondJSON(c, http.StatusOK, resp)
}

// Get handles GET /v1/group/:id
func (h *GroupHandler) Get(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	group, err := h.groupService.GetByID(c.Request.Context(), c.Param("id"), p.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toGroupResponse(group))
}
