package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"filekeeper/internal/domain"
)

// AuthorizationService answers "may principal do action on path". It only
// reads from its stores and is safe for concurrent use.
type AuthorizationService struct {
	grants      PermissionStore
	departments DepartmentStore
	now         func() time.Time
	log         *zap.Logger
}

func NewAuthorizationService(grants PermissionStore, departments DepartmentStore, log *zap.Logger) *AuthorizationService {
	return &AuthorizationService{
		grants:      grants,
		departments: departments,
		now:         time.Now,
		log:         log,
	}
}

// Resolve returns Allow or Deny. An error means the decision could not be
// made because a store failed or the input is malformed.
func (s *AuthorizationService) Resolve(ctx context.Context, p *domain.Principal, path string, action domain.AccessType) (domain.Decision, error) {
	if !action.Valid() {
		return domain.Deny, fmt.Errorf("%w: unknown action %q", domain.ErrInvalidInput, action)
	}
	access, err := s.EffectiveAccess(ctx, p, path)
	if err != nil {
		return domain.Deny, err
	}
	return domain.Decision(access.Covers(action)), nil
}

// EffectiveAccess returns the strongest access p holds on path, or "" when
// p holds none.
func (s *AuthorizationService) EffectiveAccess(ctx context.Context, p *domain.Principal, path string) (domain.AccessType, error) {
	if p == nil {
		return "", nil
	}
	path, err := domain.NormalizePath(path)
	if err != nil {
		return "", err
	}

	if p.IsAdmin() {
		return domain.AccessFull, nil
	}
	if domain.InPersonalSpace(path, p.Username) {
		return domain.AccessFull, nil
	}
	if p.IsLead() && p.DepartmentID != nil {
		inDept, err := s.inDepartment(ctx, *p.DepartmentID, path)
		if err != nil {
			return "", err
		}
		if inDept {
			return domain.AccessFull, nil
		}
	}

	grants, err := s.grants.ListByUser(ctx, p.ID)
	if err != nil {
		return "", fmt.Errorf("failed to load grants: %w", err)
	}
	best := bestGrant(grants, path, s.now())
	if best == nil {
		return "", nil
	}
	return best.AccessType, nil
}

func (s *AuthorizationService) inDepartment(ctx context.Context, departmentID int64, path string) (bool, error) {
	dept, err := s.departments.GetDepartment(ctx, departmentID)
	if errors.Is(err, domain.ErrNotFound) {
		s.log.Warn("lead references unknown department", zap.Int64("department_id", departmentID))
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load department: %w", err)
	}
	root, err := domain.NormalizePath(dept.FolderPath)
	if err != nil || root == "" {
		return false, nil
	}
	return domain.IsWithin(path, root), nil
}

// bestGrant picks the live grant with the longest matching prefix, breaking
// ties toward the more permissive access type. Expired grants are ignored.
func bestGrant(grants []domain.PermissionGrant, path string, now time.Time) *domain.PermissionGrant {
	var best *domain.PermissionGrant
	bestLen := -1
	for i := range grants {
		g := &grants[i]
		if g.Expired(now) {
			continue
		}
		root, err := domain.NormalizePath(g.FolderPath)
		if err != nil || root == "" || !domain.IsWithin(path, root) {
			continue
		}
		n := len(domain.Segments(root))
		if n > bestLen || (n == bestLen && g.AccessType.MorePermissive(best.AccessType)) {
			best, bestLen = g, n
		}
	}
	return best
}
