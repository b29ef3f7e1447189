package repository

import (
	"context"
	"database/sql"
	"errors"

	"inspectionDispatch/models"
)

type UserRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// WithTx returns a copy of the repository bound to tx.
func (r *UserRepository) WithTx(tx *sql.Tx) *UserRepository {
	return &UserRepository{db: tx}
}

// Create inserts a new user. Role defaults to 'client'.
func (r *UserRepository) Create(ctx context.Context, u *models.User) (*models.User, error) {
	if u == nil {
		return nil, errors.New("user is nil")
	}
	if u.Role == "" {
		u.Role = models.RoleClient
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `INSERT INTO users (username, role, full_name, phone) VALUES (?,?,?,?)`,
		u.Username, u.Role, u.FullName, u.Phone)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	u.ID = id
	return u, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	return r.getOne(ctx, `SELECT id, username, role, full_name, phone FROM users WHERE id = ?`, id)
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.getOne(ctx, `SELECT id, username, role, full_name, phone FROM users WHERE username = ?`, username)
}

func (r *UserRepository) getOne(ctx context.Context, query string, arg any) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var u models.User
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Username, &u.Role, &u.FullName, &u.Phone)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

// ListByRole returns users holding role ordered by id.
func (r *UserRepository) ListByRole(ctx context.Context, role string, limit, offset int) ([]*models.User, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	ctx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `SELECT id, username, role, full_name, phone FROM users WHERE role = ? ORDER BY id LIMIT ? OFFSET ?`, role, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Role, &u.FullName, &u.Phone); err != nil {
			return nil, err
		}
		out = append(out, &u)
	}
	return out, rows.Err()
}
