package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"cabpool/internal/domain"
	"cabpool/internal/repository"
)

type userRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	Email     string    `db:"email"`
	Gender    string    `db:"gender"`
	Role      string    `db:"role"`
	CreatedAt time.Time `db:"created_at"`
}

// UserRepository implements repository.UserRepository using PostgreSQL.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	var row userRow
	err := r.db.GetContext(ctx, &row, `SELECT id, name, email, gender, role, created_at FROM users WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &domain.User{
		ID:        row.ID,
		Name:      row.Name,
		Email:     row.Email,
		Gender:    domain.Gender(row.Gender),
		Role:      domain.UserRole(row.Role),
		CreatedAt: row.CreatedAt,
	}, nil
}

// GetGenders returns the gender of each known user in ids.
func (r *UserRepository) GetGenders(ctx context.Context, ids []string) (map[string]domain.Gender, error) {
	out := make(map[string]domain.Gender, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var rows []struct {
		ID     string `db:"id"`
		Gender string `db:"gender"`
	}
	if err := r.db.SelectContext(ctx, &rows, `SELECT id, gender FROM users WHERE id = ANY($1)`, pq.Array(ids)); err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = domain.Gender(row.Gender)
	}
	return out, nil
}

var _ repository.UserRepository = (*UserRepository)(nil)
