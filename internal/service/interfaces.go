package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"filekeeper/internal/domain"
)

// PermissionStore persists explicit grants. Implementations return every grant
// regardless of expiry; expiry is decided by the caller's clock.
type PermissionStore interface {
	Create(ctx context.Context, g *domain.PermissionGrant) error
	ListByUser(ctx context.Context, userID int64) ([]domain.PermissionGrant, error)
	GetByID(ctx context.Context, id int64) (*domain.PermissionGrant, error)
	Delete(ctx context.Context, id int64) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type DepartmentStore interface {
	GetDepartment(ctx context.Context, id int64) (*domain.Department, error)
}

type UserDirectory interface {
	GetUser(ctx context.Context, id int64) (*domain.Principal, error)
}

// ShareStore persists links and collections. Create methods record the token
// in a ledger that outlives the share and fail with domain.ErrTokenTaken when
// the token was ever issued before. Touch methods increment access_count and
// set last_accessed in one atomic step.
type ShareStore interface {
	CreateLink(ctx context.Context, link *domain.ShareLink) error
	GetLink(ctx context.Context, id uuid.UUID) (*domain.ShareLink, error)
	LinkByToken(ctx context.Context, token string) (*domain.ShareLink, error)
	TouchLink(ctx context.Context, id uuid.UUID, now time.Time) (*domain.ShareLink, error)
	ListLinks(ctx context.Context, ownerID int64) ([]domain.ShareLink, error)
	DeleteLink(ctx context.Context, id uuid.UUID) error

	CreateCollection(ctx context.Context, c *domain.ShareCollection) error
	GetCollection(ctx context.Context, id uuid.UUID) (*domain.ShareCollection, error)
	CollectionByToken(ctx context.Context, token string) (*domain.ShareCollection, error)
	TouchCollection(ctx context.Context, id uuid.UUID, now time.Time) (*domain.ShareCollection, error)
	ListCollections(ctx context.Context, ownerID int64) ([]domain.ShareCollection, error)
	DeleteCollection(ctx context.Context, id uuid.UUID) error
}

type RecycleStore interface {
	Create(ctx context.Context, item *domain.RecycleItem) error
	GetByID(ctx context.Context, id int64) (*domain.RecycleItem, error)
	List(ctx context.Context) ([]domain.RecycleItem, error)
	ListByUser(ctx context.Context, userID int64) ([]domain.RecycleItem, error)
	ListOlderThan(ctx context.Context, cutoff time.Time) ([]domain.RecycleItem, error)
	Delete(ctx context.Context, id int64) error
}

// Authorizer is the path gate consulted before direct path actions.
type Authorizer interface {
	Resolve(ctx context.Context, p *domain.Principal, path string, action domain.AccessType) (domain.Decision, error)
}

// AuditSink receives state-changing events. Recording never fails the caller.
type AuditSink interface {
	Record(ctx context.Context, ev domain.AuditEvent)
}
