package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"filekeeper/internal/domain"
)

// UserStore is a read-mostly directory of accounts and departments. Put
// methods exist for seeding.
type UserStore struct {
	mu          sync.RWMutex
	users       map[int64]domain.Principal
	departments map[int64]domain.Department
}

func NewUserStore() *UserStore {
	return &UserStore{
		users:       make(map[int64]domain.Principal),
		departments: make(map[int64]domain.Department),
	}
}

// PutUser adds or replaces an account. Usernames are unique ignoring case,
// matching the users table.
func (s *UserStore) PutUser(p domain.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, u := range s.users {
		if id != p.ID && strings.EqualFold(u.Username, p.Username) {
			return fmt.Errorf("%w: username %q is taken", domain.ErrConflict, p.Username)
		}
	}
	if p.DepartmentID != nil {
		id := *p.DepartmentID
		p.DepartmentID = &id
	}
	s.users[p.ID] = p
	return nil
}

func (s *UserStore) PutDepartment(d domain.Department) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.departments[d.ID] = d
}

func (s *UserStore) GetUser(_ context.Context, id int64) (*domain.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user: %w", domain.ErrNotFound)
	}
	if p.DepartmentID != nil {
		d := *p.DepartmentID
		p.DepartmentID = &d
	}
	return &p, nil
}

func (s *UserStore) GetDepartment(_ context.Context, id int64) (*domain.Department, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.departments[id]
	if !ok {
		return nil, fmt.Errorf("department: %w", domain.ErrNotFound)
	}
	return &d, nil
}
