package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"filekeeper/internal/domain"
)

type PermissionRepository struct {
	db *sqlx.DB
}

func NewPermissionRepository(db *sqlx.DB) *PermissionRepository {
	return &PermissionRepository{db: db}
}

func (r *PermissionRepository) Create(ctx context.Context, g *domain.PermissionGrant) error {
	query := `
        INSERT INTO folder_permissions (
            user_id, folder_path, access_type, expires_at, granted_by
        ) VALUES (
            $1, $2, $3, $4, $5
        ) RETURNING id, created_at`

	err := r.db.QueryRowxContext(
		ctx,
		query,
		g.UserID,
		g.FolderPath,
		g.AccessType,
		g.ExpiresAt,
		g.GrantedBy,
	).Scan(&g.ID, &g.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create permission: %w", err)
	}
	return nil
}

// ListByUser returns every grant of the user, expired ones included. Callers
// decide expiry against their own clock.
func (r *PermissionRepository) ListByUser(ctx context.Context, userID int64) ([]domain.PermissionGrant, error) {
	query := `
        SELECT id, user_id, folder_path, access_type, expires_at, granted_by, created_at
        FROM folder_permissions
        WHERE user_id = $1
        ORDER BY folder_path, id`

	grants := []domain.PermissionGrant{}
	if err := r.db.SelectContext(ctx, &grants, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	return grants, nil
}

func (r *PermissionRepository) GetByID(ctx context.Context, id int64) (*domain.PermissionGrant, error) {
	query := `
        SELECT id, user_id, folder_path, access_type, expires_at, granted_by, created_at
        FROM folder_permissions
        WHERE id = $1`

	var g domain.PermissionGrant
	if err := r.db.GetContext(ctx, &g, query, id); err != nil {
		return nil, notFound(err, "permission")
	}
	return &g, nil
}

func (r *PermissionRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM folder_permissions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete permission: %w", err)
	}
	return expectOne(res, "permission")
}

// DeleteExpired removes grants whose expiry is at or before now.
func (r *PermissionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM folder_permissions WHERE expires_at IS NOT NULL AND expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired permissions: %w", err)
	}
	return res.RowsAffected()
}
