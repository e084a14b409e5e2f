package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"filekeeper/internal/domain"
)

const recycleColumns = `id, user_id, name, original_path, deleted_path, deletion_date, is_directory, deleted_by`

type RecycleRepository struct {
	db *sqlx.DB
}

func NewRecycleRepository(db *sqlx.DB) *RecycleRepository {
	return &RecycleRepository{db: db}
}

func (r *RecycleRepository) Create(ctx context.Context, item *domain.RecycleItem) error {
	query := `
        INSERT INTO recycle_bin (
            user_id, name, original_path, deleted_path, deletion_date, is_directory, deleted_by
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7
        ) RETURNING id`

	err := r.db.QueryRowxContext(ctx, query,
		item.UserID,
		item.Name,
		item.OriginalPath,
		item.DeletedPath,
		item.DeletionDate,
		item.IsDirectory,
		item.DeletedBy,
	).Scan(&item.ID)
	if err != nil {
		return fmt.Errorf("failed to create recycle item: %w", err)
	}
	return nil
}

func (r *RecycleRepository) GetByID(ctx context.Context, id int64) (*domain.RecycleItem, error) {
	var item domain.RecycleItem
	err := r.db.GetContext(ctx, &item, `SELECT `+recycleColumns+` FROM recycle_bin WHERE id = $1`, id)
	if err != nil {
		return nil, notFound(err, "recycle item")
	}
	return &item, nil
}

func (r *RecycleRepository) List(ctx context.Context) ([]domain.RecycleItem, error) {
	return r.selectItems(ctx, `SELECT `+recycleColumns+` FROM recycle_bin ORDER BY deletion_date DESC, id DESC`)
}

func (r *RecycleRepository) ListByUser(ctx context.Context, userID int64) ([]domain.RecycleItem, error) {
	return r.selectItems(ctx,
		`SELECT `+recycleColumns+` FROM recycle_bin WHERE user_id = $1 ORDER BY deletion_date DESC, id DESC`, userID)
}

// ListOlderThan returns items deleted strictly before cutoff, oldest first.
func (r *RecycleRepository) ListOlderThan(ctx context.Context, cutoff time.Time) ([]domain.RecycleItem, error) {
	return r.selectItems(ctx,
		`SELECT `+recycleColumns+` FROM recycle_bin WHERE deletion_date < $1 ORDER BY deletion_date, id`, cutoff)
}

func (r *RecycleRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM recycle_bin WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete recycle item: %w", err)
	}
	return expectOne(res, "recycle item")
}

func (r *RecycleRepository) selectItems(ctx context.Context, query string, args ...any) ([]domain.RecycleItem, error) {
	items := []domain.RecycleItem{}
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list recycle items: %w", err)
	}
	return items, nil
}
