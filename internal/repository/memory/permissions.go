// Package memory holds in-memory implementations of the repository
// interfaces. They back the "memory" database driver and the service tests.
//
// Every store guards its maps with a single mutex and hands out copies, so
// callers never alias stored state.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"filekeeper/internal/domain"
)

type PermissionStore struct {
	mu     sync.RWMutex
	nextID int64
	grants map[int64]domain.PermissionGrant
	now    func() time.Time
}

func NewPermissionStore() *PermissionStore {
	return &PermissionStore{grants: make(map[int64]domain.PermissionGrant), now: time.Now}
}

func (s *PermissionStore) Create(_ context.Context, g *domain.PermissionGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	g.ID = s.nextID
	if g.CreatedAt.IsZero() {
		g.CreatedAt = s.now().UTC()
	}
	s.grants[g.ID] = copyGrant(*g)
	return nil
}

func (s *PermissionStore) ListByUser(_ context.Context, userID int64) ([]domain.PermissionGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []domain.PermissionGrant{}
	for _, g := range s.grants {
		if g.UserID == userID {
			out = append(out, copyGrant(g))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FolderPath != out[j].FolderPath {
			return out[i].FolderPath < out[j].FolderPath
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *PermissionStore) GetByID(_ context.Context, id int64) (*domain.PermissionGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.grants[id]
	if !ok {
		return nil, fmt.Errorf("permission: %w", domain.ErrNotFound)
	}
	g = copyGrant(g)
	return &g, nil
}

func (s *PermissionStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.grants[id]; !ok {
		return fmt.Errorf("permission: %w", domain.ErrNotFound)
	}
	delete(s.grants, id)
	return nil
}

func (s *PermissionStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, g := range s.grants {
		if g.Expired(now) {
			delete(s.grants, id)
			n++
		}
	}
	return n, nil
}

func copyGrant(g domain.PermissionGrant) domain.PermissionGrant {
	g.ExpiresAt = copyTime(g.ExpiresAt)
	return g
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
