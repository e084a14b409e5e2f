package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"filekeeper/internal/domain"
)

// UserRepository reads accounts and departments. Both tables are maintained
// by account administration.
type UserRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetUser(ctx context.Context, id int64) (*domain.Principal, error) {
	var p domain.Principal
	err := r.db.GetContext(ctx, &p,
		`SELECT id, username, role, department_id, user_type FROM users WHERE id = $1`, id)
	if err != nil {
		return nil, notFound(err, "user")
	}
	return &p, nil
}

func (r *UserRepository) GetDepartment(ctx context.Context, id int64) (*domain.Department, error) {
	var d domain.Department
	err := r.db.GetContext(ctx, &d,
		`SELECT id, name, folder_path FROM departments WHERE id = $1`, id)
	if err != nil {
		return nil, notFound(err, "department")
	}
	return &d, nil
}
