package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"filekeeper/internal/domain"
)

type RecycleStore struct {
	mu     sync.RWMutex
	nextID int64
	items  map[int64]domain.RecycleItem
}

func NewRecycleStore() *RecycleStore {
	return &RecycleStore{items: make(map[int64]domain.RecycleItem)}
}

func (s *RecycleStore) Create(_ context.Context, item *domain.RecycleItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.items {
		if existing.DeletedPath == item.DeletedPath {
			return fmt.Errorf("recycle item: deleted path %q already recorded", item.DeletedPath)
		}
	}
	s.nextID++
	item.ID = s.nextID
	s.items[item.ID] = *item
	return nil
}

func (s *RecycleStore) GetByID(_ context.Context, id int64) (*domain.RecycleItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[id]
	if !ok {
		return nil, fmt.Errorf("recycle item: %w", domain.ErrNotFound)
	}
	return &item, nil
}

func (s *RecycleStore) List(_ context.Context) ([]domain.RecycleItem, error) {
	return s.filter(func(domain.RecycleItem) bool { return true }, newestFirst), nil
}

func (s *RecycleStore) ListByUser(_ context.Context, userID int64) ([]domain.RecycleItem, error) {
	return s.filter(func(it domain.RecycleItem) bool { return it.UserID == userID }, newestFirst), nil
}

func (s *RecycleStore) ListOlderThan(_ context.Context, cutoff time.Time) ([]domain.RecycleItem, error) {
	return s.filter(func(it domain.RecycleItem) bool { return it.DeletionDate.Before(cutoff) }, oldestFirst), nil
}

func (s *RecycleStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[id]; !ok {
		return fmt.Errorf("recycle item: %w", domain.ErrNotFound)
	}
	delete(s.items, id)
	return nil
}

func newestFirst(a, b domain.RecycleItem) bool {
	if !a.DeletionDate.Equal(b.DeletionDate) {
		return a.DeletionDate.After(b.DeletionDate)
	}
	return a.ID > b.ID
}

func oldestFirst(a, b domain.RecycleItem) bool {
	return newestFirst(b, a)
}

func (s *RecycleStore) filter(keep func(domain.RecycleItem) bool, less func(a, b domain.RecycleItem) bool) []domain.RecycleItem {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []domain.RecycleItem{}
	for _, it := range s.items {
		if keep(it) {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}
