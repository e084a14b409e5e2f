package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"filekeeper/internal/domain"
	"filekeeper/internal/storage"
)

type RecycleSettings struct {
	// Dir is the storage directory holding trashed content.
	Dir       string
	Retention time.Duration
}

// RecycleService moves content between its original location and the
// recycle directory. A recycle row exists exactly while its content sits
// under the recycle directory: trash writes the row after the move, restore
// deletes it after the move back.
type RecycleService struct {
	items     RecycleStore
	authz     Authorizer
	storage   storage.Backend
	audit     AuditSink
	dir       string
	retention time.Duration
	now       func() time.Time
	log       *zap.Logger
}

func NewRecycleService(
	items RecycleStore,
	authz Authorizer,
	backend storage.Backend,
	audit AuditSink,
	settings RecycleSettings,
	log *zap.Logger,
) (*RecycleService, error) {
	dir, err := domain.NormalizePath(settings.Dir)
	if err != nil {
		return nil, err
	}
	if dir == "" {
		return nil, fmt.Errorf("%w: recycle directory is required", domain.ErrInvalidInput)
	}
	return &RecycleService{
		items:     items,
		authz:     authz,
		storage:   backend,
		audit:     audit,
		dir:       dir,
		retention: settings.Retention,
		now:       time.Now,
		log:       log,
	}, nil
}

// Trash moves path into the recycle directory. The caller needs Contribute.
func (s *RecycleService) Trash(ctx context.Context, p *domain.Principal, path string) (*domain.RecycleItem, error) {
	if p == nil {
		return nil, domain.ErrForbidden
	}
	path, err := domain.NormalizePath(path)
	if err != nil {
		return nil, err
	}
	if path == "" || domain.IsWithin(path, s.dir) || domain.IsWithin(s.dir, path) {
		return nil, fmt.Errorf("%w: %q can not be trashed", domain.ErrInvalidInput, path)
	}

	decision, err := s.authz.Resolve(ctx, p, path, domain.AccessContribute)
	if err != nil {
		return nil, err
	}
	if decision == domain.Deny {
		return nil, domain.ErrForbidden
	}

	entry, err := s.storage.Stat(ctx, path)
	if err != nil {
		return nil, storageErr(err, path)
	}

	name := domain.BaseName(path)
	deletedPath := s.dir + "/" + uuid.NewString() + "_" + name
	if err := s.storage.Move(ctx, path, deletedPath); err != nil {
		return nil, storageErr(err, path)
	}

	item := &domain.RecycleItem{
		UserID:       p.ID,
		Name:         name,
		OriginalPath: path,
		DeletedPath:  deletedPath,
		DeletionDate: s.now().UTC(),
		IsDirectory:  entry.IsDir,
		DeletedBy:    p.Username,
	}
	if err := s.items.Create(ctx, item); err != nil {
		if mvErr := s.storage.Move(ctx, deletedPath, path); mvErr != nil {
			s.log.Error("failed to roll back trash move",
				zap.String("original_path", path),
				zap.String("deleted_path", deletedPath),
				zap.Error(mvErr))
		}
		return nil, fmt.Errorf("failed to record recycle item: %w", err)
	}

	s.log.Info("item trashed",
		zap.Int64("item_id", item.ID),
		zap.String("original_path", path),
		zap.Bool("is_directory", item.IsDirectory))
	s.record(ctx, domain.AuditItemTrashed, p, item)
	return item, nil
}

// Restore moves an item back to its original path. When that path is
// occupied it returns a *domain.ConflictError and leaves everything as is.
func (s *RecycleService) Restore(ctx context.Context, p *domain.Principal, id int64) error {
	item, err := s.owned(ctx, p, id)
	if err != nil {
		return err
	}

	occupied, err := s.storage.Exists(ctx, item.OriginalPath)
	if err != nil {
		return fmt.Errorf("failed to check %q: %w", item.OriginalPath, err)
	}
	if occupied {
		return &domain.ConflictError{ID: item.ID, Path: item.OriginalPath}
	}

	if err := s.storage.Move(ctx, item.DeletedPath, item.OriginalPath); err != nil {
		if errors.Is(err, storage.ErrExist) {
			return &domain.ConflictError{ID: item.ID, Path: item.OriginalPath}
		}
		return fmt.Errorf("failed to restore item %d: %w", item.ID, err)
	}
	if err := s.items.Delete(ctx, item.ID); err != nil {
		return fmt.Errorf("restored item %d but failed to delete its row: %w", item.ID, err)
	}

	s.log.Info("item restored", zap.Int64("item_id", item.ID), zap.String("original_path", item.OriginalPath))
	s.record(ctx, domain.AuditItemRestored, p, item)
	return nil
}

// Purge permanently deletes an item's content and row.
func (s *RecycleService) Purge(ctx context.Context, p *domain.Principal, id int64) error {
	item, err := s.owned(ctx, p, id)
	if err != nil {
		return err
	}
	return s.purge(ctx, p, item)
}

func (s *RecycleService) BulkRestore(ctx context.Context, p *domain.Principal, ids []int64) *domain.BulkResult[int64] {
	return s.bulk(ids, func(id int64) error { return s.Restore(ctx, p, id) })
}

func (s *RecycleService) BulkPurge(ctx context.Context, p *domain.Principal, ids []int64) *domain.BulkResult[int64] {
	return s.bulk(ids, func(id int64) error { return s.Purge(ctx, p, id) })
}

// ClearAll purges the caller's items, or every item for an Admin.
func (s *RecycleService) ClearAll(ctx context.Context, p *domain.Principal) (*domain.BulkResult[int64], error) {
	if p == nil {
		return nil, domain.ErrForbidden
	}
	var (
		items []domain.RecycleItem
		err   error
	)
	if p.IsAdmin() {
		items, err = s.items.List(ctx)
	} else {
		items, err = s.items.ListByUser(ctx, p.ID)
	}
	if err != nil {
		return nil, err
	}

	res := domain.NewBulkResult[int64]()
	for i := range items {
		if err := s.purge(ctx, p, &items[i]); err != nil {
			res.Fail(items[i].ID, err)
			continue
		}
		res.Succeed(items[i].ID)
	}
	s.log.Info("recycle bin cleared",
		zap.Int64("user_id", p.ID),
		zap.Int("succeeded", len(res.Succeeded)),
		zap.Int("failed", len(res.Failed)))
	return res, nil
}

// List returns the items p may see: all of them for an Admin, otherwise the
// items p deleted plus those whose original path p can still read.
func (s *RecycleService) List(ctx context.Context, p *domain.Principal) ([]domain.RecycleItem, error) {
	if p == nil {
		return nil, domain.ErrForbidden
	}
	items, err := s.items.List(ctx)
	if err != nil {
		return nil, err
	}
	if p.IsAdmin() {
		return items, nil
	}

	visible := make([]domain.RecycleItem, 0, len(items))
	for _, it := range items {
		if it.UserID == p.ID {
			visible = append(visible, it)
			continue
		}
		decision, err := s.authz.Resolve(ctx, p, it.OriginalPath, domain.AccessRead)
		if err != nil {
			return nil, err
		}
		if decision == domain.Allow {
			visible = append(visible, it)
		}
	}
	return visible, nil
}

// AutoCleanup purges items older than the retention period and returns how
// many were removed. A zero retention disables it.
func (s *RecycleService) AutoCleanup(ctx context.Context) (int, error) {
	if s.retention <= 0 {
		return 0, nil
	}
	items, err := s.items.ListOlderThan(ctx, s.now().Add(-s.retention))
	if err != nil {
		return 0, fmt.Errorf("failed to list expired recycle items: %w", err)
	}

	purged := 0
	for i := range items {
		if err := s.purge(ctx, nil, &items[i]); err != nil {
			s.log.Warn("failed to purge expired recycle item", zap.Int64("item_id", items[i].ID), zap.Error(err))
			continue
		}
		purged++
	}
	if purged > 0 {
		s.log.Info("recycle retention cleanup", zap.Int("purged", purged), zap.Int("candidates", len(items)))
	}
	return purged, nil
}

func (s *RecycleService) purge(ctx context.Context, p *domain.Principal, item *domain.RecycleItem) error {
	if err := s.storage.RemoveAll(ctx, item.DeletedPath); err != nil {
		return fmt.Errorf("failed to delete content of item %d: %w", item.ID, err)
	}
	if err := s.items.Delete(ctx, item.ID); err != nil {
		return err
	}
	s.record(ctx, domain.AuditItemPurged, p, item)
	return nil
}

// owned loads an item the caller may restore or purge.
func (s *RecycleService) owned(ctx context.Context, p *domain.Principal, id int64) (*domain.RecycleItem, error) {
	if p == nil {
		return nil, domain.ErrForbidden
	}
	item, err := s.items.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.UserID != p.ID && !p.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	return item, nil
}

func (s *RecycleService) bulk(ids []int64, op func(id int64) error) *domain.BulkResult[int64] {
	res := domain.NewBulkResult[int64]()
	for _, id := range ids {
		if err := op(id); err != nil {
			res.Fail(id, err)
			continue
		}
		res.Succeed(id)
	}
	return res
}

func (s *RecycleService) record(ctx context.Context, action string, p *domain.Principal, item *domain.RecycleItem) {
	ev := actorEvent(action, p, item.OriginalPath)
	ev.Detail = map[string]any{"item_id": item.ID, "deleted_path": item.DeletedPath}
	ev.Timestamp = s.now()
	s.audit.Record(ctx, ev)
}
