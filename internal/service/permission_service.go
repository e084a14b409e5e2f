package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"filekeeper/internal/domain"
)

// PermissionService administers explicit grants. Admins manage anyone; Leads
// manage users of their own department within the department's subtree.
type PermissionService struct {
	grants      PermissionStore
	users       UserDirectory
	departments DepartmentStore
	audit       AuditSink
	now         func() time.Time
	log         *zap.Logger
}

func NewPermissionService(
	grants PermissionStore,
	users UserDirectory,
	departments DepartmentStore,
	audit AuditSink,
	log *zap.Logger,
) *PermissionService {
	return &PermissionService{
		grants:      grants,
		users:       users,
		departments: departments,
		audit:       audit,
		now:         time.Now,
		log:         log,
	}
}

func (s *PermissionService) List(ctx context.Context, actor *domain.Principal, userID int64) ([]domain.PermissionGrant, error) {
	if _, err := s.authorizeTarget(ctx, actor, userID); err != nil {
		return nil, err
	}
	return s.grants.ListByUser(ctx, userID)
}

func (s *PermissionService) Grant(ctx context.Context, actor *domain.Principal, userID int64, spec domain.GrantSpec) (*domain.PermissionGrant, error) {
	if _, err := s.authorizeTarget(ctx, actor, userID); err != nil {
		return nil, err
	}
	spec, err := s.normalizeSpec(spec)
	if err != nil {
		return nil, err
	}
	if err := s.checkScope(ctx, actor, spec.FolderPath); err != nil {
		return nil, err
	}
	return s.create(ctx, actor, userID, spec)
}

func (s *PermissionService) Revoke(ctx context.Context, actor *domain.Principal, grantID int64) error {
	g, err := s.grants.GetByID(ctx, grantID)
	if err != nil {
		return err
	}
	if _, err := s.authorizeTarget(ctx, actor, g.UserID); err != nil {
		return err
	}
	if err := s.checkScope(ctx, actor, g.FolderPath); err != nil {
		return err
	}
	return s.delete(ctx, actor, g)
}

// ClearExpired deletes expired grants on behalf of an administrator.
func (s *PermissionService) ClearExpired(ctx context.Context, actor *domain.Principal) (int64, error) {
	if !actor.IsAdmin() {
		return 0, domain.ErrForbidden
	}
	return s.sweep(ctx, actor)
}

// SweepExpired is the unattended variant of ClearExpired used by the
// periodic job. Since expired grants are already ignored by resolution, the
// sweep never changes an access decision.
func (s *PermissionService) SweepExpired(ctx context.Context) (int64, error) {
	return s.sweep(ctx, nil)
}

func (s *PermissionService) sweep(ctx context.Context, actor *domain.Principal) (int64, error) {
	n, err := s.grants.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		ev := actorEvent(domain.AuditGrantsSwept, actor, "")
		ev.Detail = map[string]any{"count": n}
		s.record(ctx, ev)
	}
	return n, nil
}

// Reconcile brings the user's grants in line with desired. Grants whose path
// is not desired are removed, desired paths without a grant are added, and
// grants with a different shape are replaced by delete then create. Each
// step is applied on its own; failures are reported in the result and never
// undo earlier steps.
func (s *PermissionService) Reconcile(ctx context.Context, actor *domain.Principal, userID int64, desired []domain.GrantSpec) (*domain.ReconcileResult, error) {
	if _, err := s.authorizeTarget(ctx, actor, userID); err != nil {
		return nil, err
	}
	current, err := s.grants.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	res := &domain.ReconcileResult{
		Added:   []domain.PermissionGrant{},
		Removed: []int64{},
		Changed: []domain.PermissionGrant{},
		Failed:  []domain.BulkFailure[string]{},
	}
	fail := func(key string, err error) {
		res.Failed = append(res.Failed, domain.BulkFailure[string]{ID: key, Reason: domain.ReasonOf(err), Detail: err.Error()})
	}

	want := make(map[string]domain.GrantSpec, len(desired))
	var order []string
	for _, spec := range desired {
		norm, err := s.normalizeSpec(spec)
		if err != nil {
			fail(spec.FolderPath, err)
			continue
		}
		key := strings.ToLower(norm.FolderPath)
		if _, dup := want[key]; dup {
			fail(norm.FolderPath, fmt.Errorf("%w: duplicate folder path", domain.ErrInvalidInput))
			continue
		}
		if err := s.checkScope(ctx, actor, norm.FolderPath); err != nil {
			fail(norm.FolderPath, err)
			continue
		}
		want[key] = norm
		order = append(order, key)
	}

	settled := make(map[string]bool, len(want))
	for i := range current {
		g := &current[i]
		key := strings.ToLower(g.FolderPath)
		spec, wanted := want[key]

		if wanted && !settled[key] {
			settled[key] = true
			if spec.Matches(g) {
				continue
			}
			if err := s.delete(ctx, actor, g); err != nil {
				fail(g.FolderPath, err)
				continue
			}
			created, err := s.create(ctx, actor, userID, spec)
			if err != nil {
				fail(spec.FolderPath, err)
				continue
			}
			res.Changed = append(res.Changed, *created)
			continue
		}

		if err := s.checkScope(ctx, actor, g.FolderPath); err != nil {
			fail(g.FolderPath, err)
			continue
		}
		if err := s.delete(ctx, actor, g); err != nil {
			fail(g.FolderPath, err)
			continue
		}
		res.Removed = append(res.Removed, g.ID)
	}

	for _, key := range order {
		if settled[key] {
			continue
		}
		created, err := s.create(ctx, actor, userID, want[key])
		if err != nil {
			fail(want[key].FolderPath, err)
			continue
		}
		res.Added = append(res.Added, *created)
	}

	s.log.Info("grants reconciled",
		zap.Int64("user_id", userID),
		zap.Int("added", len(res.Added)),
		zap.Int("removed", len(res.Removed)),
		zap.Int("changed", len(res.Changed)),
		zap.Int("failed", len(res.Failed)))
	return res, nil
}

func (s *PermissionService) create(ctx context.Context, actor *domain.Principal, userID int64, spec domain.GrantSpec) (*domain.PermissionGrant, error) {
	g := &domain.PermissionGrant{
		UserID:     userID,
		FolderPath: spec.FolderPath,
		AccessType: spec.AccessType,
		ExpiresAt:  spec.ExpiresAt,
		GrantedBy:  actor.ID,
	}
	if err := s.grants.Create(ctx, g); err != nil {
		return nil, err
	}
	ev := actorEvent(domain.AuditGrantCreated, actor, g.FolderPath)
	ev.Detail = map[string]any{"grant_id": g.ID, "user_id": userID, "access_type": string(g.AccessType)}
	s.record(ctx, ev)
	return g, nil
}

func (s *PermissionService) delete(ctx context.Context, actor *domain.Principal, g *domain.PermissionGrant) error {
	if err := s.grants.Delete(ctx, g.ID); err != nil {
		return err
	}
	ev := actorEvent(domain.AuditGrantRevoked, actor, g.FolderPath)
	ev.Detail = map[string]any{"grant_id": g.ID, "user_id": g.UserID}
	s.record(ctx, ev)
	return nil
}

func (s *PermissionService) record(ctx context.Context, ev domain.AuditEvent) {
	ev.Timestamp = s.now()
	s.audit.Record(ctx, ev)
}

// authorizeTarget checks that actor may administer the grants of userID.
func (s *PermissionService) authorizeTarget(ctx context.Context, actor *domain.Principal, userID int64) (*domain.Principal, error) {
	if actor == nil || !(actor.IsAdmin() || actor.IsLead()) {
		return nil, domain.ErrForbidden
	}
	target, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if actor.IsAdmin() {
		return target, nil
	}
	if !target.InDepartment(actor.DepartmentID) {
		return nil, domain.ErrForbidden
	}
	return target, nil
}

// checkScope restricts Leads to folder paths inside their department.
func (s *PermissionService) checkScope(ctx context.Context, actor *domain.Principal, folderPath string) error {
	if actor.IsAdmin() {
		return nil
	}
	if actor.DepartmentID == nil {
		return domain.ErrForbidden
	}
	dept, err := s.departments.GetDepartment(ctx, *actor.DepartmentID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ErrForbidden
	}
	if err != nil {
		return err
	}
	root, err := domain.NormalizePath(dept.FolderPath)
	if err != nil || root == "" {
		return domain.ErrForbidden
	}
	path, err := domain.NormalizePath(folderPath)
	if err != nil {
		return err
	}
	if !domain.IsWithin(path, root) {
		return domain.ErrForbidden
	}
	return nil
}

func (s *PermissionService) normalizeSpec(spec domain.GrantSpec) (domain.GrantSpec, error) {
	path, err := domain.NormalizePath(spec.FolderPath)
	if err != nil {
		return spec, err
	}
	if path == "" {
		return spec, fmt.Errorf("%w: folder_path is required", domain.ErrInvalidInput)
	}
	access, err := domain.ParseAccessType(string(spec.AccessType))
	if err != nil {
		return spec, err
	}
	if spec.ExpiresAt != nil && !s.now().Before(*spec.ExpiresAt) {
		return spec, fmt.Errorf("%w: expires_at is in the past", domain.ErrInvalidInput)
	}
	return domain.GrantSpec{FolderPath: path, AccessType: access, ExpiresAt: spec.ExpiresAt}, nil
}
