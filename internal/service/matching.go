package service

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"time"

	"cabpool/internal/domain"
	"cabpool/internal/geo"
	"cabpool/internal/observability"
	"cabpool/internal/redis"
	"cabpool/internal/repository"
)

// Score bands. They sum to 100.
const (
	distanceBand = 40.0
	timeBand     = 40.0
	genderBand   = 20.0
	maxScore     = 100.0
)

// MatchConfig tunes candidate discovery and filtering.
type MatchConfig struct {
	RadiusKm      float64
	TimeWindow    time.Duration // Half width, applied on both sides of the query time.
	PoolMinScore  float64
	GroupMinScore float64
}

// DefaultMatchConfig returns the production defaults.
func DefaultMatchConfig() MatchConfig {
	return MatchConfig{
		RadiusKm:      5,
		TimeWindow:    25 * time.Minute,
		PoolMinScore:  0,
		GroupMinScore: 30,
	}
}

// MatchQuery is a search for pool requests or groups.
type MatchQuery struct {
	RequesterID     string
	Pickup          domain.Place
	Drop            domain.Place
	DateTime        time.Time
	PreferredGender domain.GenderPreference // Empty means no preference.
}

// Validate checks the required fields.
func (q MatchQuery) Validate() error {
	if err := validatePlace(q.Pickup, ErrMissingPickup); err != nil {
		return err
	}
	if err := validatePlace(q.Drop, ErrMissingDrop); err != nil {
		return err
	}
	if q.DateTime.IsZero() {
		return ErrMissingDateTime
	}
	if q.PreferredGender != "" && !q.PreferredGender.Valid() {
		return ErrInvalidGender
	}
	return nil
}

// Score is the breakdown of one candidate's match score. Distances are in
// meters.
type Score struct {
	MatchScore      float64
	PickupDistance  float64
	DropDistance    float64
	TimeDiffMinutes float64
}

// PoolMatch is a scored pool request.
type PoolMatch struct {
	Request *domain.PoolRequest
	Score
}

// GroupMatch is a scored group.
type GroupMatch struct {
	Group *domain.Group
	Score
}

func score(q MatchQuery, pickup, drop domain.Coordinate, at time.Time, gender float64) Score {
	pickupDist := geo.DistanceMeters(q.Pickup.Coord, pickup)
	dropDist := geo.DistanceMeters(q.Drop.Coord, drop)
	timeDiff := math.Abs(q.DateTime.Sub(at).Minutes())

	distanceScore := math.Max(0, distanceBand-(pickupDist+dropDist)/1000)
	timeScore := math.Max(0, timeBand-timeDiff/2)

	return Score{
		MatchScore:      math.Min(maxScore, distanceScore+timeScore+math.Max(0, gender)),
		PickupDistance:  pickupDist,
		DropDistance:    dropDist,
		TimeDiffMinutes: timeDiff,
	}
}

// poolGenderScore awards the full band when the candidate's preference is
// compatible with the searcher's.
func poolGenderScore(candidate, want domain.GenderPreference) float64 {
	if candidate.CompatibleWith(want) {
		return genderBand
	}
	return 0
}

// groupGenderScore scales the band by the share of members whose gender
// equals the requested preference. Members with unknown gender count as a
// mismatch.
func groupGenderScore(g *domain.Group, want domain.GenderPreference, genders map[string]domain.Gender) float64 {
	if want == "" || want == domain.PreferAny {
		return genderBand
	}
	if len(g.Members) == 0 {
		return 0
	}
	matching := 0
	for _, m := range g.Members {
		if string(genders[m.UserID]) == string(want) {
			matching++
		}
	}
	return genderBand * float64(matching) / float64(len(g.Members))
}

// ScorePoolCandidates scores, ranks and filters pool requests. Candidates
// scoring below minScore are dropped. Ties keep the input order.
func ScorePoolCandidates(q MatchQuery, candidates []*domain.PoolRequest, minScore float64) []PoolMatch {
	out := make([]PoolMatch, 0, len(candidates))
	for _, c := range candidates {
		s := score(q, c.Pickup.Coord, c.Drop.Coord, c.DateTime, poolGenderScore(c.PreferredGender, q.PreferredGender))
		if s.MatchScore < minScore {
			continue
		}
		out = append(out, PoolMatch{Request: c, Score: s})
	}
	rank(out, func(m PoolMatch) float64 { return m.MatchScore })
	return out
}

// ScoreGroupCandidates scores, ranks and filters groups. genders maps member
// ids to their recorded gender. Ties keep the input order.
func ScoreGroupCandidates(q MatchQuery, candidates []*domain.Group, genders map[string]domain.Gender, minScore float64) []GroupMatch {
	out := make([]GroupMatch, 0, len(candidates))
	for _, c := range candidates {
		s := score(q, c.Route.Pickup.Coord, c.Route.Drop.Coord, c.DateTime, groupGenderScore(c, q.PreferredGender, genders))
		if s.MatchScore < minScore {
			continue
		}
		out = append(out, GroupMatch{Group: c, Score: s})
	}
	rank(out, func(m GroupMatch) float64 { return m.MatchScore })
	return out
}

// rank sorts by score, highest first. The sort is stable so equal scores keep
// discovery order.
func rank[T any](items []T, scoreOf func(T) float64) {
	sort.SliceStable(items, func(i, j int) bool {
		return scoreOf(items[i]) > scoreOf(items[j])
	})
}

// MatchingService pulls open candidates from the stores and runs them through
// the scorer.
type MatchingService struct {
	poolRepo  repository.PoolRequestRepository
	groupRepo repository.GroupRepository
	userRepo  repository.UserRepository
	userCache redis.UserCache
	cfg       MatchConfig
	logger    *slog.Logger
}

// NewMatchingService creates a new MatchingService. userCache may be nil.
func NewMatchingService(
	poolRepo repository.PoolRequestRepository,
	groupRepo repository.GroupRepository,
	userRepo repository.UserRepository,
	userCache redis.UserCache,
	cfg MatchConfig,
	logger *slog.Logger,
) *MatchingService {
	return &MatchingService{
		poolRepo:  poolRepo,
		groupRepo: groupRepo,
		userRepo:  userRepo,
		userCache: userCache,
		cfg:       cfg,
		logger:    logger,
	}
}

func (s *MatchingService) candidateQuery(q MatchQuery) repository.CandidateQuery {
	from, to := repository.Window(q.DateTime, s.cfg.TimeWindow)
	return repository.CandidateQuery{
		Near:          q.Pickup.Coord,
		RadiusKm:      s.cfg.RadiusKm,
		From:          from,
		To:            to,
		ExcludeUserID: q.RequesterID,
		Gender:        q.PreferredGender,
	}
}

// MatchPools returns open pool requests ranked against q.
func (s *MatchingService) MatchPools(ctx context.Context, q MatchQuery) ([]PoolMatch, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	observability.MatchRequestsTotal.WithLabelValues(observability.KindPool).Inc()

	candidates, err := s.poolRepo.FindCandidates(ctx, s.candidateQuery(q))
	if err != nil {
		return nil, err
	}

	matches := ScorePoolCandidates(q, candidates, s.cfg.PoolMinScore)
	observability.MatchCandidates.WithLabelValues(observability.KindPool).Observe(float64(len(matches)))
	return matches, nil
}

// MatchGroups returns open groups ranked against q.
func (s *MatchingService) MatchGroups(ctx context.Context, q MatchQuery) ([]GroupMatch, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	observability.MatchRequestsTotal.WithLabelValues(observability.KindGroup).Inc()

	cq := s.candidateQuery(q)
	cq.Gender = ""
	candidates, err := s.groupRepo.FindCandidates(ctx, cq)
	if err != nil {
		return nil, err
	}

	var genders map[string]domain.Gender
	if q.PreferredGender != "" && q.PreferredGender != domain.PreferAny {
		genders, err = s.memberGenders(ctx, candidates)
		if err != nil {
			return nil, err
		}
	}

	matches := ScoreGroupCandidates(q, candidates, genders, s.cfg.GroupMinScore)
	observability.MatchCandidates.WithLabelValues(observability.KindGroup).Observe(float64(len(matches)))
	return matches, nil
}

// memberGenders resolves the gender of every member of groups, from the cache
// first and the user store for misses.
func (s *MatchingService) memberGenders(ctx context.Context, groups []*domain.Group) (map[string]domain.Gender, error) {
	seen := make(map[string]struct{})
	var ids []string
	for _, g := range groups {
		for _, m := range g.Members {
			if _, ok := seen[m.UserID]; !ok {
				seen[m.UserID] = struct{}{}
				ids = append(ids, m.UserID)
			}
		}
	}

	genders := make(map[string]domain.Gender, len(ids))
	missing := ids
	if s.userCache != nil && len(ids) > 0 {
		cached, miss, err := s.userCache.GetUsersBatch(ctx, ids)
		if err != nil {
			s.logger.WarnContext(ctx, "user cache read failed", "error", err)
		} else {
			for id, u := range cached {
				genders[id] = u.Gender
			}
			missing = miss
		}
	}
	if len(missing) == 0 {
		return genders, nil
	}

	fromDB, err := s.userRepo.GetGenders(ctx, missing)
	if err != nil {
		return nil, err
	}
	fill := make([]*redis.CachedUser, 0, len(fromDB))
	for id, g := range fromDB {
		genders[id] = g
		fill = append(fill, &redis.CachedUser{ID: id, Gender: g})
	}
	if s.userCache != nil {
		if err := s.userCache.SetUsersBatch(ctx, fill); err != nil {
			s.logger.WarnContext(ctx, "user cache write failed", "error", err)
		}
	}
	return genders, nil
}
