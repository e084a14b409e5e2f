package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"filekeeper/internal/domain"
	"filekeeper/internal/storage"
)

const tokenAttempts = 5

type ShareSettings struct {
	TokenBytes int
	BcryptCost int
}

// ShareService issues and resolves share tokens. A token is the sole
// authorization for whoever presents it; resolution never consults the
// path resolver.
type ShareService struct {
	shares   ShareStore
	authz    Authorizer
	storage  storage.Backend
	audit    AuditSink
	settings ShareSettings
	now      func() time.Time
	log      *zap.Logger
}

func NewShareService(
	shares ShareStore,
	authz Authorizer,
	backend storage.Backend,
	audit AuditSink,
	settings ShareSettings,
	log *zap.Logger,
) *ShareService {
	if settings.TokenBytes <= 0 {
		settings.TokenBytes = 32
	}
	if settings.BcryptCost == 0 {
		settings.BcryptCost = bcrypt.DefaultCost
	}
	return &ShareService{
		shares:   shares,
		authz:    authz,
		storage:  backend,
		audit:    audit,
		settings: settings,
		now:      time.Now,
		log:      log,
	}
}

// CreateFileShare shares a single file. The owner must be able to read it now.
func (s *ShareService) CreateFileShare(ctx context.Context, owner *domain.Principal, path string, opts domain.ShareOptions) (*domain.ShareLink, error) {
	if owner == nil {
		return nil, domain.ErrForbidden
	}
	if err := s.checkExpiry(opts.ExpiresAt); err != nil {
		return nil, err
	}
	path, err := s.checkReadable(ctx, owner, path)
	if err != nil {
		return nil, err
	}
	entry, err := s.storage.Stat(ctx, path)
	if err != nil {
		return nil, storageErr(err, path)
	}
	if entry.IsDir {
		return nil, fmt.Errorf("%w: %q is a directory", domain.ErrInvalidInput, path)
	}
	hash, err := s.hashPassword(opts.Password)
	if err != nil {
		return nil, err
	}

	link := &domain.ShareLink{
		ID:           uuid.New(),
		OwnerID:      owner.ID,
		FilePath:     path,
		PasswordHash: hash,
		ExpiresAt:    opts.ExpiresAt,
	}
	err = s.withFreshToken(func(token string) error {
		link.Token = token
		return s.shares.CreateLink(ctx, link)
	})
	if err != nil {
		return nil, err
	}

	ev := actorEvent(domain.AuditShareCreated, owner, path)
	ev.Detail = map[string]any{"share_id": link.ID.String(), "kind": string(domain.ShareKindFile)}
	s.record(ctx, ev)
	return link, nil
}

// CreateCollectionShare shares an ordered list of paths under one token.
// Duplicate paths are kept as given.
func (s *ShareService) CreateCollectionShare(ctx context.Context, owner *domain.Principal, name string, paths []string, opts domain.ShareOptions) (*domain.ShareCollection, error) {
	if owner == nil {
		return nil, domain.ErrForbidden
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", domain.ErrInvalidInput)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: at least one path is required", domain.ErrInvalidInput)
	}
	if err := s.checkExpiry(opts.ExpiresAt); err != nil {
		return nil, err
	}

	items := make([]string, 0, len(paths))
	for _, p := range paths {
		norm, err := s.checkReadable(ctx, owner, p)
		if err != nil {
			return nil, err
		}
		ok, err := s.storage.Exists(ctx, norm)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %q: %w", norm, err)
		}
		if !ok {
			return nil, fmt.Errorf("%q: %w", norm, domain.ErrNotFound)
		}
		items = append(items, norm)
	}
	hash, err := s.hashPassword(opts.Password)
	if err != nil {
		return nil, err
	}

	c := &domain.ShareCollection{
		ID:           uuid.New(),
		OwnerID:      owner.ID,
		Name:         name,
		PasswordHash: hash,
		ItemPaths:    items,
		ExpiresAt:    opts.ExpiresAt,
	}
	err = s.withFreshToken(func(token string) error {
		c.Token = token
		return s.shares.CreateCollection(ctx, c)
	})
	if err != nil {
		return nil, err
	}

	ev := actorEvent(domain.AuditCollectionAdded, owner, name)
	ev.Detail = map[string]any{"share_id": c.ID.String(), "items": len(items)}
	s.record(ctx, ev)
	return c, nil
}

// Resolve accepts either kind of token. Link tokens are tried first.
func (s *ShareService) Resolve(ctx context.Context, token, password string) (*domain.ShareAccess, error) {
	access, err := s.ResolveLink(ctx, token, password)
	if errors.Is(err, domain.ErrNotFound) {
		return s.ResolveCollection(ctx, token, password)
	}
	return access, err
}

// ResolveLink validates a file share token and counts the access.
func (s *ShareService) ResolveLink(ctx context.Context, token, password string) (*domain.ShareAccess, error) {
	return s.openLink(ctx, token, password, true)
}

// ResolveCollection validates a collection token and counts the access.
func (s *ShareService) ResolveCollection(ctx context.Context, token, password string) (*domain.ShareAccess, error) {
	return s.openCollection(ctx, token, password, true)
}

// AuthorizeLinkDownload validates like ResolveLink without counting an access.
func (s *ShareService) AuthorizeLinkDownload(ctx context.Context, token, password string) (*domain.ShareAccess, error) {
	return s.openLink(ctx, token, password, false)
}

func (s *ShareService) AuthorizeCollectionDownload(ctx context.Context, token, password string) (*domain.ShareAccess, error) {
	return s.openCollection(ctx, token, password, false)
}

func (s *ShareService) openLink(ctx context.Context, token, password string, count bool) (*domain.ShareAccess, error) {
	if token == "" {
		return nil, domain.ErrNotFound
	}
	link, err := s.shares.LinkByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := checkGate(link.ExpiresAt, link.HasPassword(), link.PasswordHash, password, now); err != nil {
		return nil, err
	}
	if count {
		if link, err = s.shares.TouchLink(ctx, link.ID, now); err != nil {
			return nil, err
		}
	}
	return &domain.ShareAccess{
		Kind:         domain.ShareKindFile,
		ID:           link.ID,
		Name:         domain.BaseName(link.FilePath),
		Paths:        []string{link.FilePath},
		AccessCount:  link.AccessCount,
		LastAccessed: link.LastAccessed,
		ExpiresAt:    link.ExpiresAt,
	}, nil
}

func (s *ShareService) openCollection(ctx context.Context, token, password string, count bool) (*domain.ShareAccess, error) {
	if token == "" {
		return nil, domain.ErrNotFound
	}
	c, err := s.shares.CollectionByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := checkGate(c.ExpiresAt, c.HasPassword(), c.PasswordHash, password, now); err != nil {
		return nil, err
	}
	if count {
		if c, err = s.shares.TouchCollection(ctx, c.ID, now); err != nil {
			return nil, err
		}
	}
	return &domain.ShareAccess{
		Kind:         domain.ShareKindCollection,
		ID:           c.ID,
		Name:         c.Name,
		Paths:        c.ItemPaths,
		AccessCount:  c.AccessCount,
		LastAccessed: c.LastAccessed,
		ExpiresAt:    c.ExpiresAt,
	}, nil
}

// checkGate applies expiry before password so an expired share never
// reveals whether it was protected.
func checkGate(expiresAt *time.Time, protected bool, hash *string, password string, now time.Time) error {
	if domain.Expired(expiresAt, now) {
		return domain.ErrExpired
	}
	if !protected {
		return nil
	}
	if password == "" {
		return domain.ErrPasswordRequired
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*hash), []byte(password)); err != nil {
		return domain.ErrPasswordIncorrect
	}
	return nil
}

// Revoke deletes a file share. Shares of other users look like unknown ids
// unless the actor is an Admin.
func (s *ShareService) Revoke(ctx context.Context, actor *domain.Principal, id uuid.UUID) error {
	if actor == nil {
		return domain.ErrForbidden
	}
	link, err := s.shares.GetLink(ctx, id)
	if err != nil {
		return err
	}
	if link.OwnerID != actor.ID && !actor.IsAdmin() {
		return fmt.Errorf("share link: %w", domain.ErrNotFound)
	}
	if err := s.shares.DeleteLink(ctx, id); err != nil {
		return err
	}
	ev := actorEvent(domain.AuditShareRevoked, actor, link.FilePath)
	ev.Detail = map[string]any{"share_id": id.String(), "kind": string(domain.ShareKindFile)}
	s.record(ctx, ev)
	return nil
}

func (s *ShareService) RevokeCollection(ctx context.Context, actor *domain.Principal, id uuid.UUID) error {
	if actor == nil {
		return domain.ErrForbidden
	}
	c, err := s.shares.GetCollection(ctx, id)
	if err != nil {
		return err
	}
	if c.OwnerID != actor.ID && !actor.IsAdmin() {
		return fmt.Errorf("share collection: %w", domain.ErrNotFound)
	}
	if err := s.shares.DeleteCollection(ctx, id); err != nil {
		return err
	}
	ev := actorEvent(domain.AuditShareRevoked, actor, c.Name)
	ev.Detail = map[string]any{"share_id": id.String(), "kind": string(domain.ShareKindCollection)}
	s.record(ctx, ev)
	return nil
}

// RevokeMany revokes file shares independently.
func (s *ShareService) RevokeMany(ctx context.Context, actor *domain.Principal, ids []uuid.UUID) *domain.BulkResult[uuid.UUID] {
	res := domain.NewBulkResult[uuid.UUID]()
	for _, id := range ids {
		if err := s.Revoke(ctx, actor, id); err != nil {
			res.Fail(id, err)
			continue
		}
		res.Succeed(id)
	}
	return res
}

func (s *ShareService) ListOwned(ctx context.Context, owner *domain.Principal) ([]domain.ShareLink, error) {
	if owner == nil {
		return nil, domain.ErrForbidden
	}
	return s.shares.ListLinks(ctx, owner.ID)
}

func (s *ShareService) ListOwnedCollections(ctx context.Context, owner *domain.Principal) ([]domain.ShareCollection, error) {
	if owner == nil {
		return nil, domain.ErrForbidden
	}
	return s.shares.ListCollections(ctx, owner.ID)
}

// OpenContent streams one path of a validated share.
func (s *ShareService) OpenContent(ctx context.Context, access *domain.ShareAccess, path string) (io.ReadCloser, error) {
	for _, p := range access.Paths {
		if p == path {
			r, err := s.storage.Open(ctx, path)
			if err != nil {
				return nil, storageErr(err, path)
			}
			return r, nil
		}
	}
	return nil, fmt.Errorf("%q is not part of the share: %w", path, domain.ErrNotFound)
}

func (s *ShareService) checkReadable(ctx context.Context, owner *domain.Principal, path string) (string, error) {
	norm, err := domain.NormalizePath(path)
	if err != nil {
		return "", err
	}
	if norm == "" {
		return "", fmt.Errorf("%w: path is required", domain.ErrInvalidInput)
	}
	decision, err := s.authz.Resolve(ctx, owner, norm, domain.AccessRead)
	if err != nil {
		return "", err
	}
	if decision == domain.Deny {
		return "", domain.ErrForbidden
	}
	return norm, nil
}

func (s *ShareService) checkExpiry(expiresAt *time.Time) error {
	if domain.Expired(expiresAt, s.now()) {
		return fmt.Errorf("%w: expires_at is in the past", domain.ErrInvalidInput)
	}
	return nil
}

func (s *ShareService) hashPassword(password string) (*string, error) {
	if password == "" {
		return nil, nil
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), s.settings.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash share password: %w", err)
	}
	h := string(b)
	return &h, nil
}

// withFreshToken calls create with newly generated tokens until one has
// never been issued before.
func (s *ShareService) withFreshToken(create func(token string) error) error {
	for i := 0; i < tokenAttempts; i++ {
		token, err := generateToken(s.settings.TokenBytes)
		if err != nil {
			return err
		}
		err = create(token)
		if errors.Is(err, domain.ErrTokenTaken) {
			s.log.Warn("share token collision, regenerating", zap.Int("attempt", i+1))
			continue
		}
		return err
	}
	return fmt.Errorf("failed to issue a unique share token after %d attempts", tokenAttempts)
}

func (s *ShareService) record(ctx context.Context, ev domain.AuditEvent) {
	ev.Timestamp = s.now()
	s.audit.Record(ctx, ev)
}

func generateToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func storageErr(err error, path string) error {
	if errors.Is(err, storage.ErrNotExist) {
		return fmt.Errorf("%q: %w", path, domain.ErrNotFound)
	}
	return fmt.Errorf("storage failure on %q: %w", path, err)
}
