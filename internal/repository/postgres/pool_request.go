package postgres

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"cabpool/internal/domain"
	"cabpool/internal/geo"
	"cabpool/internal/redis"
	"cabpool/internal/repository"
)

const poolRequestColumns = `id, creator_id, pickup_address, pickup_lng, pickup_lat, drop_address, drop_lng, drop_lat,
	date_time, preferred_gender, seats_needed, mode, status, matched_user_ids, group_id, created_at`

type poolRequestRow struct {
	ID              string         `db:"id"`
	CreatorID       string         `db:"creator_id"`
	PickupAddress   string         `db:"pickup_address"`
	PickupLng       float64        `db:"pickup_lng"`
	PickupLat       float64        `db:"pickup_lat"`
	DropAddress     string         `db:"drop_address"`
	DropLng         float64        `db:"drop_lng"`
	DropLat         float64        `db:"drop_lat"`
	DateTime        time.Time      `db:"date_time"`
	PreferredGender string         `db:"preferred_gender"`
	SeatsNeeded     int            `db:"seats_needed"`
	Mode            string         `db:"mode"`
	Status          string         `db:"status"`
	MatchedUserIDs  pq.StringArray `db:"matched_user_ids"`
	GroupID         sql.NullString `db:"group_id"`
	CreatedAt       time.Time      `db:"created_at"`
}

func (r poolRequestRow) toDomain() *domain.PoolRequest {
	return &domain.PoolRequest{
		ID:              r.ID,
		CreatorID:       r.CreatorID,
		Pickup:          domain.Place{Address: r.PickupAddress, Coord: domain.Coordinate{Lng: r.PickupLng, Lat: r.PickupLat}},
		Drop:            domain.Place{Address: r.DropAddress, Coord: domain.Coordinate{Lng: r.DropLng, Lat: r.DropLat}},
		DateTime:        r.DateTime,
		PreferredGender: domain.GenderPreference(r.PreferredGender),
		SeatsNeeded:     r.SeatsNeeded,
		Mode:            domain.PoolMode(r.Mode),
		Status:          domain.PoolStatus(r.Status),
		MatchedUserIDs:  []string(r.MatchedUserIDs),
		GroupID:         r.GroupID.String,
		CreatedAt:       r.CreatedAt,
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// stringArray never returns nil: a nil pq.StringArray encodes as NULL.
func stringArray(ids []string) pq.StringArray {
	if ids == nil {
		return pq.StringArray{}
	}
	return pq.StringArray(ids)
}

// PoolRequestRepository is a PostgreSQL implementation of repository.PoolRequestRepository.
// Open requests are mirrored into a Redis GEO index for radius search; rows
// remain the source of truth, so stale index entries are filtered out by the
// status predicate.
type PoolRequestRepository struct {
	q     Querier
	index redis.GeoIndex
}

// NewPoolRequestRepository creates a new PostgreSQL pool request repository.
// index may be nil, in which case radius filtering happens in process.
func NewPoolRequestRepository(db *sqlx.DB, index redis.GeoIndex) *PoolRequestRepository {
	return &PoolRequestRepository{q: db, index: index}
}

// Create persists a new pool request.
func (r *PoolRequestRepository) Create(ctx context.Context, req *domain.PoolRequest) error {
	if r.index != nil {
		if err := r.index.Add(ctx, redis.PoolPickupKey, req.ID, req.Pickup.Coord); err != nil {
			return err
		}
	}

	query := `
		INSERT INTO pool_requests (` + poolRequestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err := r.q.ExecContext(ctx, query,
		req.ID,
		req.CreatorID,
		req.Pickup.Address,
		req.Pickup.Coord.Lng,
		req.Pickup.Coord.Lat,
		req.Drop.Address,
		req.Drop.Coord.Lng,
		req.Drop.Coord.Lat,
		req.DateTime,
		req.PreferredGender,
		req.SeatsNeeded,
		req.Mode,
		req.Status,
		stringArray(req.MatchedUserIDs),
		nullString(req.GroupID),
		req.CreatedAt,
	)
	if err != nil && r.index != nil {
		_ = r.index.Remove(ctx, redis.PoolPickupKey, req.ID)
	}
	return err
}

// GetByID retrieves a pool request by ID.
func (r *PoolRequestRepository) GetByID(ctx context.Context, id string) (*domain.PoolRequest, error) {
	var row poolRequestRow
	err := r.q.GetContext(ctx, &row, `SELECT `+poolRequestColumns+` FROM pool_requests WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return row.toDomain(), nil
}

// ListByCreator retrieves the requests created by a user, newest first.
func (r *PoolRequestRepository) ListByCreator(ctx context.Context, userID string) ([]*domain.PoolRequest, error) {
	var rows []poolRequestRow
	query := `SELECT ` + poolRequestColumns + ` FROM pool_requests WHERE creator_id = $1 ORDER BY created_at DESC`
	if err := r.q.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, err
	}

	out := make([]*domain.PoolRequest, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

// UpdateStatus sets status, matched users and group of an open request. The
// status predicate makes the check and the write one statement, so of two
// racing transitions only the first applies.
func (r *PoolRequestRepository) UpdateStatus(ctx context.Context, req *domain.PoolRequest) error {
	query := `UPDATE pool_requests SET status = $1, matched_user_ids = $2, group_id = $3 WHERE id = $4 AND status = 'Open'`

	result, err := r.q.ExecContext(ctx, query, req.Status, stringArray(req.MatchedUserIDs), nullString(req.GroupID), req.ID)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		var exists bool
		if err := r.q.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM pool_requests WHERE id = $1)`, req.ID); err != nil {
			return err
		}
		if !exists {
			return repository.ErrNotFound
		}
		return domain.ErrPoolRequestNotOpen
	}

	// A failed removal only leaves a stale index entry, which the status
	// predicate in FindCandidates already excludes.
	if req.Status != domain.PoolStatusOpen && r.index != nil {
		_ = r.index.Remove(ctx, redis.PoolPickupKey, req.ID)
	}
	return nil
}

// FindCandidates returns open requests matching q, nearest pickup first.
func (r *PoolRequestRepository) FindCandidates(ctx context.Context, q repository.CandidateQuery) ([]*domain.PoolRequest, error) {
	query := `
		SELECT ` + poolRequestColumns + `
		FROM pool_requests
		WHERE status = 'Open'
		  AND date_time BETWEEN $1 AND $2
		  AND creator_id <> $3
		  AND ($4 IN ('', 'Any') OR preferred_gender IN ('', 'Any') OR preferred_gender = $4)
	`
	args := []any{q.From, q.To, q.ExcludeUserID, string(q.Gender)}

	var ids []string
	if r.index != nil {
		var err error
		ids, err = r.index.Nearby(ctx, redis.PoolPickupKey, q.Near, q.RadiusKm)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return []*domain.PoolRequest{}, nil
		}
		query += ` AND id = ANY($5)`
		args = append(args, pq.Array(ids))
	}

	var rows []poolRequestRow
	if err := r.q.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}

	out := make([]*domain.PoolRequest, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	if ids != nil {
		return reorder(ids, out, func(p *domain.PoolRequest) string { return p.ID }), nil
	}
	return nearestPools(out, q), nil
}

// nearestPools filters by radius and sorts by pickup distance when no GEO
// index is configured.
func nearestPools(in []*domain.PoolRequest, q repository.CandidateQuery) []*domain.PoolRequest {
	dist := make(map[string]float64, len(in))
	out := in[:0]
	for _, p := range in {
		d := geo.DistanceMeters(q.Near, p.Pickup.Coord)
		if q.RadiusKm > 0 && d > q.RadiusKm*1000 {
			continue
		}
		dist[p.ID] = d
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool { return dist[out[i].ID] < dist[out[j].ID] })
	return out
}

// Ensure PoolRequestRepository implements repository.PoolRequestRepository.
var _ repository.PoolRequestRepository = (*PoolRequestRepository)(nil)
