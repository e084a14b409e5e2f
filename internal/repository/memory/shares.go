package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"filekeeper/internal/domain"
)

type ShareStore struct {
	mu          sync.Mutex
	issued      map[string]struct{}
	links       map[uuid.UUID]domain.ShareLink
	collections map[uuid.UUID]domain.ShareCollection
	now         func() time.Time
}

func NewShareStore() *ShareStore {
	return &ShareStore{
		issued:      make(map[string]struct{}),
		links:       make(map[uuid.UUID]domain.ShareLink),
		collections: make(map[uuid.UUID]domain.ShareCollection),
		now:         time.Now,
	}
}

// reserve must be called with mu held.
func (s *ShareStore) reserve(token string) error {
	if _, taken := s.issued[token]; taken {
		return domain.ErrTokenTaken
	}
	s.issued[token] = struct{}{}
	return nil
}

func (s *ShareStore) CreateLink(_ context.Context, link *domain.ShareLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.reserve(link.Token); err != nil {
		return err
	}
	link.CreatedAt = s.now().UTC()
	s.links[link.ID] = copyLink(*link)
	return nil
}

func (s *ShareStore) CreateCollection(_ context.Context, c *domain.ShareCollection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.reserve(c.Token); err != nil {
		return err
	}
	c.ItemCount = len(c.ItemPaths)
	c.CreatedAt = s.now().UTC()
	s.collections[c.ID] = copyCollection(*c)
	return nil
}

func (s *ShareStore) GetLink(_ context.Context, id uuid.UUID) (*domain.ShareLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.links[id]
	if !ok {
		return nil, fmt.Errorf("share link: %w", domain.ErrNotFound)
	}
	l = copyLink(l)
	return &l, nil
}

func (s *ShareStore) LinkByToken(_ context.Context, token string) (*domain.ShareLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, l := range s.links {
		if l.Token == token {
			l = copyLink(l)
			return &l, nil
		}
	}
	return nil, fmt.Errorf("share link: %w", domain.ErrNotFound)
}

func (s *ShareStore) TouchLink(_ context.Context, id uuid.UUID, now time.Time) (*domain.ShareLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.links[id]
	if !ok {
		return nil, fmt.Errorf("share link: %w", domain.ErrNotFound)
	}
	l.AccessCount++
	l.LastAccessed = &now
	s.links[id] = l
	l = copyLink(l)
	return &l, nil
}

func (s *ShareStore) ListLinks(_ context.Context, ownerID int64) ([]domain.ShareLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []domain.ShareLink{}
	for _, l := range s.links {
		if l.OwnerID == ownerID {
			out = append(out, copyLink(l))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *ShareStore) DeleteLink(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.links[id]; !ok {
		return fmt.Errorf("share link: %w", domain.ErrNotFound)
	}
	delete(s.links, id)
	return nil
}

func (s *ShareStore) GetCollection(_ context.Context, id uuid.UUID) (*domain.ShareCollection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[id]
	if !ok {
		return nil, fmt.Errorf("share collection: %w", domain.ErrNotFound)
	}
	c = copyCollection(c)
	return &c, nil
}

func (s *ShareStore) CollectionByToken(_ context.Context, token string) (*domain.ShareCollection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.collections {
		if c.Token == token {
			c = copyCollection(c)
			return &c, nil
		}
	}
	return nil, fmt.Errorf("share collection: %w", domain.ErrNotFound)
}

func (s *ShareStore) TouchCollection(_ context.Context, id uuid.UUID, now time.Time) (*domain.ShareCollection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[id]
	if !ok {
		return nil, fmt.Errorf("share collection: %w", domain.ErrNotFound)
	}
	c.AccessCount++
	c.LastAccessed = &now
	s.collections[id] = c
	c = copyCollection(c)
	return &c, nil
}

func (s *ShareStore) ListCollections(_ context.Context, ownerID int64) ([]domain.ShareCollection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []domain.ShareCollection{}
	for _, c := range s.collections {
		if c.OwnerID == ownerID {
			out = append(out, copyCollection(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *ShareStore) DeleteCollection(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[id]; !ok {
		return fmt.Errorf("share collection: %w", domain.ErrNotFound)
	}
	delete(s.collections, id)
	return nil
}

func copyLink(l domain.ShareLink) domain.ShareLink {
	l.ExpiresAt = copyTime(l.ExpiresAt)
	l.LastAccessed = copyTime(l.LastAccessed)
	if l.PasswordHash != nil {
		h := *l.PasswordHash
		l.PasswordHash = &h
	}
	return l
}

func copyCollection(c domain.ShareCollection) domain.ShareCollection {
	c.ExpiresAt = copyTime(c.ExpiresAt)
	c.LastAccessed = copyTime(c.LastAccessed)
	if c.PasswordHash != nil {
		h := *c.PasswordHash
		c.PasswordHash = &h
	}
	c.ItemPaths = append([]string{}, c.ItemPaths...)
	return c
}
