package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"cabpool/internal/domain"
	"cabpool/internal/logging"
	"cabpool/internal/middleware"
	"cabpool/internal/repository"
	"cabpool/internal/repository/memory"
	"cabpool/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const userHeader = "X-Test-User"

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()

	store := memory.NewStore()
	pools := memory.NewPoolRequestRepository(store)
	groups := memory.NewGroupRepository(store)
	users := memory.NewUserRepository(store)
	users.Add(&domain.User{ID: "alice", Name: "Alice", Email: "alice@campus.edu", Gender: domain.GenderFemale, Role: domain.UserRoleUser})

	logger := logging.Discard()
	matching := service.NewMatchingService(pools, groups, users, nil, service.DefaultMatchConfig(), logger)
	poolHandler := NewPoolHandler(service.NewPoolService(pools, nil, logger), matching)
	groupHandler := NewGroupHandler(service.NewGroupService(groups, nil, nil, logger), matching)
	userHandler := NewUserHandler(users)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		if id := c.GetHeader(userHeader); id != "" {
			role := domain.UserRoleUser
			if id == "root" {
				role = domain.UserRoleAdmin
			}
			middleware.SetPrincipal(c, middleware.Principal{UserID: id, Role: role})
		}
		c.Next()
	})
	r.POST("/pool/create", poolHandler.Create)
	r.POST("/pool/match", poolHandler.Match)
	r.GET("/pool/my", poolHandler.ListMine)
	r.GET("/pool/:id", poolHandler.Get)
	r.DELETE("/pool/:id", poolHandler.Delete)
	r.PATCH("/pool/:id/status", poolHandler.SetStatus)
	r.POST("/group", groupHandler.Create)
	r.POST("/group/join/:groupId", groupHandler.Join)
	r.POST("/group/leave/:groupId", groupHandler.Leave)
	r.PATCH("/group/lock/:groupId", groupHandler.Lock)
	r.POST("/group/match", groupHandler.Match)
	r.GET("/group/my", groupHandler.ListMine)
	r.GET("/group/:id", groupHandler.Get)
	r.GET("/users/me", userHandler.Me)
	return r
}

func do(t *testing.T, r *gin.Engine, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(userHeader, user)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func poolBody() map[string]any {
	return map[string]any{
		"pickupLocation": map[string]any{"address": "Main Gate", "coordinates": []float64{77.209, 28.6139}},
		"dropLocation":   map[string]any{"address": "Airport T3", "coordinates": []float64{77.1, 28.55}},
		"dateTime":       "2026-03-02T08:30:00Z",
		"mode":           "Scheduled",
	}
}

func groupBody(seats int) map[string]any {
	return map[string]any{
		"groupName": "Airport run",
		"route": map[string]any{
			"pickup": map[string]any{"address": "Main Gate", "coordinates": []float64{77.209, 28.6139}},
			"drop":   map[string]any{"address": "Airport T3", "coordinates": []float64{77.1, 28.55}},
		},
		"seatCount": seats,
		"dateTime":  "2026-03-02T08:30:00Z",
	}
}

func TestPoolHandler_CreateAndGet(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t)
	w := do(t, r, http.MethodPost, "/pool/create", "alice", poolBody())
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	created := decode[PoolRequestResponse](t, w)
	if created.CreatorID != "alice" || created.Status != "Open" || created.PreferredGender != "Any" || created.SeatsNeeded != 1 {
		t.Errorf("unexpected response %+v", created)
	}
	if c := created.PickupLocation.Coordinates; len(c) != 2 || c[0] != 77.209 || c[1] != 28.6139 {
		t.Errorf("coordinates not echoed as [lng, lat]: %v", c)
	}

	w = do(t, r, http.MethodGet, "/pool/"+created.ID, "bob", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	w = do(t, r, http.MethodGet, "/pool/my", "alice", nil)
	if mine := decode[[]PoolRequestResponse](t, w); len(mine) != 1 {
		t.Errorf("expected one request, got %d", len(mine))
	}
}

func TestPoolHandler_CreateValidation(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t)

	missing := poolBody()
	delete(missing, "pickupLocation")
	threeCoords := poolBody()
	threeCoords["dropLocation"] = map[string]any{"coordinates": []float64{1, 2, 3}}
	badSeats := poolBody()
	badSeats["seatsNeeded"] = 7

	tests := []struct {
		name string
		body any
		want string
	}{
		{name: "malformed json", body: "{", want: "invalid request body"},
		{name: "missing pickup", body: missing, want: service.ErrMissingPickup.Error()},
		{name: "three coordinates", body: threeCoords, want: service.ErrInvalidCoordinates.Error()},
		{name: "too many seats", body: badSeats, want: service.ErrInvalidSeatsNeeded.Error()},
	}
	for _, tt := range tests {
		w := do(t, r, http.MethodPost, "/pool/create", "alice", tt.body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", tt.name, w.Code)
			continue
		}
		if got := decode[ErrorResponse](t, w); got.Error != tt.want {
			t.Errorf("%s: expected %q, got %q", tt.name, tt.want, got.Error)
		}
	}
}

func TestPoolHandler_MatchEmptyIsArray(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t)
	w := do(t, r, http.MethodPost, "/pool/match", "alice", poolBody())
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if body := bytes.TrimSpace(w.Body.Bytes()); string(body) != "[]" {
		t.Errorf("expected [], got %s", body)
	}
}

func TestPoolHandler_MatchIncludesScores(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t)
	if w := do(t, r, http.MethodPost, "/pool/create", "bob", poolBody()); w.Code != http.StatusCreated {
		t.Fatalf("create: %d", w.Code)
	}

	w := do(t, r, http.MethodPost, "/pool/match", "alice", poolBody())
	matches := decode[[]map[string]any](t, w)
	if len(matches) != 1 {
		t.Fatalf("expected one match, got %d", len(matches))
	}
	m := matches[0]
	if m["matchScore"] != 100.0 || m["pickupDistance"] != 0.0 || m["timeDiffMinutes"] != 0.0 {
		t.Errorf("unexpected score fields %v", m)
	}
	if m["creatorId"] != "bob" {
		t.Errorf("candidate fields not flattened: %v", m)
	}
}

func TestPoolHandler_DeleteAndStatus(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t)
	created := decode[PoolRequestResponse](t, do(t, r, http.MethodPost, "/pool/create", "alice", poolBody()))

	if w := do(t, r, http.MethodDelete, "/pool/"+created.ID, "mallory", nil); w.Code != http.StatusForbidden {
		t.Errorf("expected 403 for stranger, got %d", w.Code)
	}
	if w := do(t, r, http.MethodDelete, "/pool/missing", "alice", nil); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}

	w := do(t, r, http.MethodPatch, "/pool/"+created.ID+"/status", "root", map[string]any{"status": "Matched", "matchedUserIds": []string{"bob"}})
	if w.Code != http.StatusOK || decode[PoolRequestResponse](t, w).Status != "Matched" {
		t.Fatalf("expected Matched, got %d %s", w.Code, w.Body.String())
	}

	w = do(t, r, http.MethodDelete, "/pool/"+created.ID, "alice", nil)
	if w.Code != http.StatusBadRequest || decode[ErrorResponse](t, w).Error != "pool request is not open" {
		t.Errorf("expected 400 for matched request, got %d %s", w.Code, w.Body.String())
	}

	open := decode[PoolRequestResponse](t, do(t, r, http.MethodPost, "/pool/create", "alice", poolBody()))
	if w := do(t, r, http.MethodDelete, "/pool/"+open.ID, "alice", nil); w.Code != http.StatusOK || w.Body.String() != "{}" {
		t.Errorf("expected 200 {}, got %d %s", w.Code, w.Body.String())
	}
}

func TestGroupHandler_Lifecycle(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t)
	w := do(t, r, http.MethodPost, "/group", "alice", groupBody(2))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	g := decode[GroupResponse](t, w)
	if len(g.Members) != 1 || g.Members[0].Role != "admin" || g.SeatsLeft != 1 {
		t.Fatalf("unexpected group %+v", g)
	}

	if w := do(t, r, http.MethodPost, "/group/join/"+g.ID, "bob", nil); w.Code != http.StatusOK {
		t.Fatalf("join: expected 200, got %d", w.Code)
	}

	w = do(t, r, http.MethodPost, "/group/join/"+g.ID, "carol", nil)
	if w.Code != http.StatusBadRequest || decode[ErrorResponse](t, w).Error != "group is full" {
		t.Errorf("expected 400 group is full, got %d %s", w.Code, w.Body.String())
	}

	if w := do(t, r, http.MethodGet, "/group/"+g.ID, "carol", nil); w.Code != http.StatusForbidden {
		t.Errorf("expected 403 for non-member read, got %d", w.Code)
	}
	if w := do(t, r, http.MethodPatch, "/group/lock/"+g.ID, "bob", nil); w.Code != http.StatusForbidden {
		t.Errorf("expected 403 for non-admin lock, got %d", w.Code)
	}
	if w := do(t, r, http.MethodPatch, "/group/lock/missing", "alice", nil); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}

	w = do(t, r, http.MethodPost, "/group/leave/"+g.ID, "alice", nil)
	if w.Code != http.StatusOK || w.Body.String() != "{}" {
		t.Fatalf("leave: expected 200 {}, got %d %s", w.Code, w.Body.String())
	}

	after := decode[GroupResponse](t, do(t, r, http.MethodGet, "/group/"+g.ID, "bob", nil))
	if len(after.Members) != 1 || after.Members[0].UserID != "bob" || after.Members[0].Role != "admin" {
		t.Errorf("expected bob promoted, got %+v", after.Members)
	}

	mine := decode[[]GroupResponse](t, do(t, r, http.MethodGet, "/group/my", "bob", nil))
	if len(mine) != 1 {
		t.Errorf("expected one group for bob, got %d", len(mine))
	}
	if w := do(t, r, http.MethodGet, "/group/my", "nobody", nil); bytes.TrimSpace(w.Body.Bytes())[0] != '[' {
		t.Errorf("expected array for empty list, got %s", w.Body.String())
	}
}

func TestGroupHandler_CreateValidation(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t)
	body := groupBody(5)
	w := do(t, r, http.MethodPost, "/group", "alice", body)
	if w.Code != http.StatusBadRequest || decode[ErrorResponse](t, w).Error != service.ErrInvalidSeatCount.Error() {
		t.Errorf("expected seat count error, got %d %s", w.Code, w.Body.String())
	}

	noRoute := groupBody(3)
	delete(noRoute, "route")
	if w := do(t, r, http.MethodPost, "/group", "alice", noRoute); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without route, got %d", w.Code)
	}
}

func TestGroupHandler_Match(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t)
	if w := do(t, r, http.MethodPost, "/group", "bob", groupBody(3)); w.Code != http.StatusCreated {
		t.Fatalf("create: %d", w.Code)
	}

	w := do(t, r, http.MethodPost, "/group/match", "alice", poolBody())
	matches := decode[[]GroupMatchResponse](t, w)
	if len(matches) != 1 || matches[0].MatchScore != 100 || matches[0].GroupName != "Airport run" {
		t.Fatalf("unexpected matches %+v", matches)
	}

	own := decode[[]GroupMatchResponse](t, do(t, r, http.MethodPost, "/group/match", "bob", poolBody()))
	if len(own) != 0 {
		t.Errorf("member should not see own group, got %d", len(own))
	}
}

func TestUserHandler_Me(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t)
	w := do(t, r, http.MethodGet, "/users/me", "alice", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if u := decode[UserResponse](t, w); u.Email != "alice@campus.edu" || u.Gender != "Female" {
		t.Errorf("unexpected user %+v", u)
	}

	if w := do(t, r, http.MethodGet, "/users/me", "ghost", nil); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestMapErrorToHTTPStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		code int
	}{
		{service.ErrMissingPickup, http.StatusBadRequest},
		{repository.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("wrapped: %w", repository.ErrNotFound), http.StatusNotFound},
		{domain.ErrNotGroupAdmin, http.StatusForbidden},
		{domain.ErrGroupFull, http.StatusBadRequest},
		{errors.New("connection refused"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := mapErrorToHTTPStatus(tt.err); got != tt.code {
			t.Errorf("%v: expected %d, got %d", tt.err, tt.code, got)
		}
	}
}

func TestRespondError_HidesInternalErrors(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	respondError(c, errors.New("pq: password authentication failed"))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if got := decode[ErrorResponse](t, w); got.Error != "internal error" {
		t.Errorf("internal detail leaked: %q", got.Error)
	}
	if len(c.Errors) != 1 {
		t.Errorf("expected cause attached to context, got %d errors", len(c.Errors))
	}
}
