package service

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"cabpool/internal/domain"
	"cabpool/internal/geo"
	"cabpool/internal/logging"
	"cabpool/internal/repository/memory"
)

var (
	campus = domain.Coordinate{Lng: 77.209, Lat: 28.6139}
	at     = time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC)
)

// north shifts c due north by meters.
func north(c domain.Coordinate, meters float64) domain.Coordinate {
	c.Lat += meters / geo.EarthRadiusMeters * 180 / math.Pi
	return c
}

func place(c domain.Coordinate) domain.Place {
	return domain.Place{Address: "somewhere", Coord: c}
}

func baseQuery() MatchQuery {
	return MatchQuery{
		RequesterID: "requester",
		Pickup:      place(campus),
		Drop:        place(north(campus, 10000)),
		DateTime:    at,
	}
}

func TestScorePoolCandidates_KnownScore(t *testing.T) {
	t.Parallel()

	candidate := &domain.PoolRequest{
		ID:       "p1",
		Pickup:   place(north(campus, 2000)),
		Drop:     place(north(campus, 11000)),
		DateTime: at,
	}

	got := ScorePoolCandidates(baseQuery(), []*domain.PoolRequest{candidate}, 0)
	if len(got) != 1 {
		t.Fatalf("expected 1 match, got %d", len(got))
	}
	m := got[0]
	if math.Abs(m.PickupDistance-2000) > 1e-6 || math.Abs(m.DropDistance-1000) > 1e-6 {
		t.Errorf("unexpected distances %.6f / %.6f", m.PickupDistance, m.DropDistance)
	}
	if m.TimeDiffMinutes != 0 {
		t.Errorf("expected zero time diff, got %v", m.TimeDiffMinutes)
	}
	if math.Abs(m.MatchScore-97) > 1e-6 {
		t.Errorf("expected score 97, got %v", m.MatchScore)
	}
}

func TestScoreBands_ClampAtZero(t *testing.T) {
	t.Parallel()

	q := baseQuery()
	candidate := &domain.PoolRequest{
		Pickup:          place(north(campus, 60000)),
		Drop:            place(north(campus, 90000)),
		DateTime:        at.Add(-3 * time.Hour),
		PreferredGender: domain.PreferAny,
	}
	got := ScorePoolCandidates(q, []*domain.PoolRequest{candidate}, 0)
	if len(got) != 1 {
		t.Fatalf("expected 1 match, got %d", len(got))
	}
	if got[0].MatchScore != 20 {
		t.Errorf("expected only the gender band (20), got %v", got[0].MatchScore)
	}
	if got[0].TimeDiffMinutes != 180 {
		t.Errorf("expected 180 minutes, got %v", got[0].TimeDiffMinutes)
	}
}

func TestRank_StableOnTies(t *testing.T) {
	t.Parallel()

	q := baseQuery()
	same := func(id string) *domain.PoolRequest {
		return &domain.PoolRequest{ID: id, Pickup: q.Pickup, Drop: q.Drop, DateTime: at.Add(10 * time.Minute)}
	}
	best := &domain.PoolRequest{ID: "best", Pickup: q.Pickup, Drop: q.Drop, DateTime: at}

	got := ScorePoolCandidates(q, []*domain.PoolRequest{same("a"), same("b"), best, same("c")}, 0)
	want := []string{"best", "a", "b", "c"}
	for i, m := range got {
		if m.Request.ID != want[i] {
			t.Fatalf("position %d: expected %s, got %s", i, want[i], m.Request.ID)
		}
	}
}

func TestScore_AlwaysWithinBounds(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(7))
	randCoord := func() domain.Coordinate {
		return domain.Coordinate{Lng: rng.Float64()*360 - 180, Lat: rng.Float64()*180 - 90}
	}

	var candidates []*domain.PoolRequest
	for i := 0; i < 500; i++ {
		candidates = append(candidates, &domain.PoolRequest{
			Pickup:   place(randCoord()),
			Drop:     place(randCoord()),
			DateTime: at.Add(time.Duration(rng.Intn(240)-120) * time.Minute),
		})
	}
	q := baseQuery()
	q.Pickup, q.Drop = place(randCoord()), place(randCoord())

	got := ScorePoolCandidates(q, candidates, 0)
	for i, m := range got {
		if m.MatchScore < 0 || m.MatchScore > 100 {
			t.Fatalf("score %v out of range", m.MatchScore)
		}
		if i > 0 && got[i-1].MatchScore < m.MatchScore {
			t.Fatalf("ranking not non-increasing at %d", i)
		}
	}
}

func TestGroupGenderScore(t *testing.T) {
	t.Parallel()

	g := &domain.Group{Members: []domain.Member{{UserID: "f"}, {UserID: "m"}}}
	genders := map[string]domain.Gender{"f": domain.GenderFemale, "m": domain.GenderMale}

	tests := []struct {
		name string
		want domain.GenderPreference
		g    *domain.Group
		exp  float64
	}{
		{name: "no preference", want: "", g: g, exp: 20},
		{name: "any", want: domain.PreferAny, g: g, exp: 20},
		{name: "half female", want: domain.PreferFemale, g: g, exp: 10},
		{name: "empty group", want: domain.PreferFemale, g: &domain.Group{}, exp: 0},
	}
	for _, tt := range tests {
		if got := groupGenderScore(tt.g, tt.want, genders); got != tt.exp {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.exp, got)
		}
	}
}

func TestMatchQuery_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*MatchQuery)
		want   error
	}{
		{name: "valid", mutate: func(*MatchQuery) {}},
		{name: "missing pickup", mutate: func(q *MatchQuery) { q.Pickup = domain.Place{} }, want: ErrMissingPickup},
		{name: "missing drop", mutate: func(q *MatchQuery) { q.Drop = domain.Place{} }, want: ErrMissingDrop},
		{name: "missing time", mutate: func(q *MatchQuery) { q.DateTime = time.Time{} }, want: ErrMissingDateTime},
		{name: "latitude out of range", mutate: func(q *MatchQuery) { q.Pickup.Coord.Lat = 120 }, want: ErrInvalidCoordinates},
		{name: "NaN", mutate: func(q *MatchQuery) { q.Drop.Coord.Lng = math.NaN() }, want: ErrInvalidCoordinates},
		{name: "bad gender", mutate: func(q *MatchQuery) { q.PreferredGender = "Robot" }, want: ErrInvalidGender},
	}
	for _, tt := range tests {
		q := baseQuery()
		tt.mutate(&q)
		if err := q.Validate(); !errors.Is(err, tt.want) {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, err)
		}
	}
}

func newMatchingFixture(t *testing.T) (*MatchingService, *memory.Store, *MockUserCache) {
	t.Helper()
	store := memory.NewStore()
	users := memory.NewUserRepository(store)
	for id, g := range map[string]domain.Gender{"m1": domain.GenderMale, "m2": domain.GenderMale, "f1": domain.GenderFemale} {
		users.Add(&domain.User{ID: id, Gender: g})
	}
	cache := NewMockUserCache()
	svc := NewMatchingService(
		memory.NewPoolRequestRepository(store),
		memory.NewGroupRepository(store),
		users,
		cache,
		DefaultMatchConfig(),
		logging.Discard(),
	)
	return svc, store, cache
}

func TestMatchingService_MatchGroupsDropsLowScores(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, store, cache := newMatchingFixture(t)
	groups := memory.NewGroupRepository(store)

	q := baseQuery()
	q.PreferredGender = domain.PreferFemale

	mk := func(id string, drop domain.Coordinate, when time.Time, members ...string) {
		g := &domain.Group{
			ID:        id,
			SeatCount: 4,
			Status:    domain.GroupStatusOpen,
			Route:     domain.Route{Pickup: q.Pickup, Drop: place(drop)},
			DateTime:  when,
			Version:   1,
		}
		for i, m := range members {
			role := domain.MemberRoleMember
			if i == 0 {
				role = domain.MemberRoleAdmin
			}
			g.Members = append(g.Members, domain.Member{UserID: m, Role: role})
		}
		if err := groups.Create(ctx, g); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	mk("close", q.Drop.Coord, at, "f1", "m1")
	// 0 distance + 28 time + 0 gender.
	mk("weak", north(campus, 50000), at.Add(24*time.Minute), "m2")
	mk("mine", q.Drop.Coord, at, "requester")

	cache.Put("f1", domain.GenderFemale)

	got, err := svc.MatchGroups(ctx, q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Group.ID != "close" {
		t.Fatalf("expected only close, got %+v", got)
	}
	if math.Abs(got[0].MatchScore-90) > 1e-6 {
		t.Errorf("expected 40+40+10, got %v", got[0].MatchScore)
	}
	if cache.SetCallCount != 1 {
		t.Errorf("expected cache to be filled once, got %d", cache.SetCallCount)
	}
}

func TestMatchingService_MatchPoolsIsUnfilteredByScore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, store, _ := newMatchingFixture(t)
	pools := memory.NewPoolRequestRepository(store)

	q := baseQuery()
	q.PreferredGender = domain.PreferFemale
	for _, p := range []*domain.PoolRequest{
		{ID: "weak", CreatorID: "a", Pickup: q.Pickup, Drop: place(north(campus, 50000)), DateTime: at.Add(24 * time.Minute), PreferredGender: domain.PreferAny},
		{ID: "strong", CreatorID: "b", Pickup: q.Pickup, Drop: q.Drop, DateTime: at, PreferredGender: domain.PreferFemale},
		{ID: "incompatible", CreatorID: "c", Pickup: q.Pickup, Drop: q.Drop, DateTime: at, PreferredGender: domain.PreferMale},
		{ID: "outside-window", CreatorID: "d", Pickup: q.Pickup, Drop: q.Drop, DateTime: at.Add(26 * time.Minute)},
		{ID: "own", CreatorID: "requester", Pickup: q.Pickup, Drop: q.Drop, DateTime: at},
	} {
		p.Status = domain.PoolStatusOpen
		if err := pools.Create(ctx, p); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	got, err := svc.MatchPools(ctx, q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0].Request.ID != "strong" || got[1].Request.ID != "weak" {
		t.Fatalf("unexpected matches %+v", got)
	}
	if math.Abs(got[1].MatchScore-48) > 1e-6 {
		t.Errorf("expected weak candidate at 48, got %v", got[1].MatchScore)
	}
}

func TestMatchingService_EmptyCandidateSet(t *testing.T) {
	t.Parallel()

	svc, _, _ := newMatchingFixture(t)
	got, err := svc.MatchPools(context.Background(), baseQuery())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil result, got %#v", got)
	}
}
