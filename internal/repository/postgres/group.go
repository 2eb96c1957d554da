package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"cabpool/internal/domain"
	"cabpool/internal/geo"
	"cabpool/internal/redis"
	"cabpool/internal/repository"
)

const groupColumns = `id, name, description, pickup_address, pickup_lng, pickup_lat, drop_address, drop_lng, drop_lat,
	date_time, seat_count, status, chat_room_id, version, created_at`

type groupRow struct {
	ID            string    `db:"id"`
	Name          string    `db:"name"`
	Description   string    `db:"description"`
	PickupAddress string    `db:"pickup_address"`
	PickupLng     float64   `db:"pickup_lng"`
	PickupLat     float64   `db:"pickup_lat"`
	DropAddress   string    `db:"drop_address"`
	DropLng       float64   `db:"drop_lng"`
	DropLat       float64   `db:"drop_lat"`
	DateTime      time.Time `db:"date_time"`
	SeatCount     int       `db:"seat_count"`
	Status        string    `db:"status"`
	ChatRoomID    string    `db:"chat_room_id"`
	Version       int64     `db:"version"`
	CreatedAt     time.Time `db:"created_at"`
}

type memberRow struct {
	GroupID  string    `db:"group_id"`
	UserID   string    `db:"user_id"`
	Role     string    `db:"role"`
	JoinedAt time.Time `db:"joined_at"`
	Position int       `db:"position"`
}

func (r groupRow) toDomain(members []memberRow) *domain.Group {
	g := &domain.Group{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Route: domain.Route{
			Pickup: domain.Place{Address: r.PickupAddress, Coord: domain.Coordinate{Lng: r.PickupLng, Lat: r.PickupLat}},
			Drop:   domain.Place{Address: r.DropAddress, Coord: domain.Coordinate{Lng: r.DropLng, Lat: r.DropLat}},
		},
		DateTime:   r.DateTime,
		SeatCount:  r.SeatCount,
		Status:     domain.GroupStatus(r.Status),
		ChatRoomID: r.ChatRoomID,
		Version:    r.Version,
		CreatedAt:  r.CreatedAt,
		Members:    make([]domain.Member, 0, len(members)),
	}
	for _, m := range members {
		g.Members = append(g.Members, domain.Member{
			UserID:   m.UserID,
			Role:     domain.MemberRole(m.Role),
			JoinedAt: m.JoinedAt,
		})
	}
	return g
}

// GroupRepository is a PostgreSQL implementation of repository.GroupRepository.
type GroupRepository struct {
	db    *sqlx.DB
	index redis.GeoIndex
}

// NewGroupRepository creates a new PostgreSQL group repository.
// index may be nil, in which case radius filtering happens in process.
func NewGroupRepository(db *sqlx.DB, index redis.GeoIndex) *GroupRepository {
	return &GroupRepository{db: db, index: index}
}

// Create persists a new group with its members.
func (r *GroupRepository) Create(ctx context.Context, group *domain.Group) (err error) {
	if r.index != nil {
		if err := r.index.Add(ctx, redis.GroupPickupKey, group.ID, group.Route.Pickup.Coord); err != nil {
			return err
		}
		defer func() {
			if err != nil {
				_ = r.index.Remove(ctx, redis.GroupPickupKey, group.ID)
			}
		}()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	query := `
		INSERT INTO groups (` + groupColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err = tx.ExecContext(ctx, query,
		group.ID,
		group.Name,
		group.Description,
		group.Route.Pickup.Address,
		group.Route.Pickup.Coord.Lng,
		group.Route.Pickup.Coord.Lat,
		group.Route.Drop.Address,
		group.Route.Drop.Coord.Lng,
		group.Route.Drop.Coord.Lat,
		group.DateTime,
		group.SeatCount,
		group.Status,
		group.ChatRoomID,
		group.Version,
		group.CreatedAt,
	)
	if err != nil {
		return err
	}

	if err = insertMembers(ctx, tx, group.ID, group.Members); err != nil {
		return err
	}
	return tx.Commit()
}

// GetByID retrieves a group with its members.
func (r *GroupRepository) GetByID(ctx context.Context, id string) (*domain.Group, error) {
	return getGroup(ctx, r.db, id, false)
}

// ListByMember retrieves the groups a user belongs to, latest ride first.
func (r *GroupRepository) ListByMember(ctx context.Context, userID string) ([]*domain.Group, error) {
	query := `
		SELECT ` + prefixed("g", groupColumns) + `
		FROM groups g
		JOIN group_members m ON m.group_id = g.id
		WHERE m.user_id = $1
		ORDER BY g.date_time DESC
	`
	var rows []groupRow
	if err := r.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, err
	}
	return r.withMembers(ctx, rows)
}

// FindCandidates returns open groups matching q, nearest pickup first.
func (r *GroupRepository) FindCandidates(ctx context.Context, q repository.CandidateQuery) ([]*domain.Group, error) {
	query := `
		SELECT ` + groupColumns + `
		FROM groups g
		WHERE status = 'Open'
		  AND date_time BETWEEN $1 AND $2
		  AND NOT EXISTS (SELECT 1 FROM group_members m WHERE m.group_id = g.id AND m.user_id = $3)
	`
	args := []any{q.From, q.To, q.ExcludeUserID}

	var ids []string
	if r.index != nil {
		var err error
		ids, err = r.index.Nearby(ctx, redis.GroupPickupKey, q.Near, q.RadiusKm)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return []*domain.Group{}, nil
		}
		query += ` AND id = ANY($4)`
		args = append(args, pq.Array(ids))
	}

	var rows []groupRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	groups, err := r.withMembers(ctx, rows)
	if err != nil {
		return nil, err
	}

	if ids != nil {
		return reorder(ids, groups, func(g *domain.Group) string { return g.ID }), nil
	}
	return nearestGroups(groups, q), nil
}

// Mutate applies fn inside a transaction holding the group's row lock, then
// writes the result guarded by the version it read.
func (r *GroupRepository) Mutate(ctx context.Context, id string, fn repository.MutateFunc) (result *domain.Group, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	current, err := getGroup(ctx, tx, id, true)
	if err != nil {
		return nil, err
	}

	next, changed, deleted, err := fn(*current)
	if err != nil {
		return nil, err
	}

	switch {
	case deleted:
		if _, err = tx.ExecContext(ctx, `DELETE FROM groups WHERE id = $1 AND version = $2`, id, current.Version); err != nil {
			return nil, err
		}
		result = nil
	case !changed:
		result = current
	default:
		if err = updateGroup(ctx, tx, &next, current.Version); err != nil {
			return nil, err
		}
		next.Version = current.Version + 1
		result = &next
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}

	// Closed or deleted groups leave the candidate index. A failed removal
	// leaves a stale entry that the status predicate filters out.
	if r.index != nil && (result == nil || result.Status != domain.GroupStatusOpen) {
		_ = r.index.Remove(ctx, redis.GroupPickupKey, id)
	}
	return result, nil
}

func updateGroup(ctx context.Context, tx *sqlx.Tx, g *domain.Group, version int64) error {
	query := `UPDATE groups SET status = $1, version = version + 1 WHERE id = $2 AND version = $3`
	result, err := tx.ExecContext(ctx, query, g.Status, g.ID, version)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return repository.ErrVersionConflict
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM group_members WHERE group_id = $1`, g.ID); err != nil {
		return err
	}
	return insertMembers(ctx, tx, g.ID, g.Members)
}

func insertMembers(ctx context.Context, q Querier, groupID string, members []domain.Member) error {
	query := `INSERT INTO group_members (group_id, user_id, role, joined_at, position) VALUES ($1, $2, $3, $4, $5)`
	for i, m := range members {
		if _, err := q.ExecContext(ctx, query, groupID, m.UserID, m.Role, m.JoinedAt, i); err != nil {
			return fmt.Errorf("insert member %s: %w", m.UserID, err)
		}
	}
	return nil
}

func getGroup(ctx context.Context, q Querier, id string, forUpdate bool) (*domain.Group, error) {
	query := `SELECT ` + groupColumns + ` FROM groups WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var row groupRow
	if err := q.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	var members []memberRow
	memberQuery := `SELECT group_id, user_id, role, joined_at, position FROM group_members WHERE group_id = $1 ORDER BY position`
	if err := q.SelectContext(ctx, &members, memberQuery, id); err != nil {
		return nil, err
	}
	return row.toDomain(members), nil
}

// withMembers loads members for rows in one query.
func (r *GroupRepository) withMembers(ctx context.Context, rows []groupRow) ([]*domain.Group, error) {
	if len(rows) == 0 {
		return []*domain.Group{}, nil
	}

	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}

	var members []memberRow
	query := `SELECT group_id, user_id, role, joined_at, position FROM group_members WHERE group_id = ANY($1) ORDER BY group_id, position`
	if err := r.db.SelectContext(ctx, &members, query, pq.Array(ids)); err != nil {
		return nil, err
	}

	byGroup := make(map[string][]memberRow, len(rows))
	for _, m := range members {
		byGroup[m.GroupID] = append(byGroup[m.GroupID], m)
	}

	out := make([]*domain.Group, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain(byGroup[row.ID])
	}
	return out, nil
}

// nearestGroups filters by radius and sorts by pickup distance when no GEO
// index is configured.
func nearestGroups(in []*domain.Group, q repository.CandidateQuery) []*domain.Group {
	dist := make(map[string]float64, len(in))
	out := in[:0]
	for _, g := range in {
		d := geo.DistanceMeters(q.Near, g.Route.Pickup.Coord)
		if q.RadiusKm > 0 && d > q.RadiusKm*1000 {
			continue
		}
		dist[g.ID] = d
		out = append(out, g)
	}
	sort.SliceStable(out, func(i, j int) bool { return dist[out[i].ID] < dist[out[j].ID] })
	return out
}

// prefixed qualifies every column in a comma separated list with alias.
func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

// Ensure GroupRepository implements repository.GroupRepository.
var _ repository.GroupRepository = (*GroupRepository)(nil)
