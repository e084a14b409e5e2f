package domain

import (
	"strings"
	"time"
)

type AccessType string

const (
	AccessRead       AccessType = "Read"
	AccessContribute AccessType = "Contribute"
	AccessFull       AccessType = "Full"
)

func (a AccessType) rank() int {
	switch a {
	case AccessRead:
		return 1
	case AccessContribute:
		return 2
	case AccessFull:
		return 3
	default:
		return 0
	}
}

// Covers reports whether a grant of access a permits action want.
// Full ⊇ Contribute ⊇ Read.
func (a AccessType) Covers(want AccessType) bool {
	return want.rank() > 0 && a.rank() >= want.rank()
}

// MorePermissive reports whether a ranks strictly above b.
func (a AccessType) MorePermissive(b AccessType) bool {
	return a.rank() > b.rank()
}

func (a AccessType) Valid() bool {
	return a.rank() > 0
}

// ParseAccessType accepts the canonical names case-insensitively, plus the
// legacy "Contributor" spelling.
func ParseAccessType(s string) (AccessType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "read":
		return AccessRead, nil
	case "contribute", "contributor":
		return AccessContribute, nil
	case "full":
		return AccessFull, nil
	}
	return "", invalidf("unknown access type %q", s)
}

// PermissionGrant is an explicit grant on a folder subtree. Grants are never
// updated in place; a change is a delete followed by a create.
type PermissionGrant struct {
	ID         int64      `json:"id" db:"id"`
	UserID     int64      `json:"user_id" db:"user_id"`
	FolderPath string     `json:"folder_path" db:"folder_path"`
	AccessType AccessType `json:"access_type" db:"access_type"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	GrantedBy  int64      `json:"granted_by" db:"granted_by"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

// Expired reports whether the grant is logically absent at now.
func (g *PermissionGrant) Expired(now time.Time) bool {
	return g.ExpiresAt != nil && !now.Before(*g.ExpiresAt)
}

// GrantSpec is the desired shape of a grant, as submitted by an administrator.
type GrantSpec struct {
	FolderPath string     `json:"folder_path" validate:"required"`
	AccessType AccessType `json:"access_type" validate:"required"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// Matches reports whether an existing grant already has this shape.
func (s GrantSpec) Matches(g *PermissionGrant) bool {
	if !strings.EqualFold(s.FolderPath, g.FolderPath) || s.AccessType != g.AccessType {
		return false
	}
	switch {
	case s.ExpiresAt == nil && g.ExpiresAt == nil:
		return true
	case s.ExpiresAt == nil || g.ExpiresAt == nil:
		return false
	default:
		return s.ExpiresAt.Equal(*g.ExpiresAt)
	}
}

// Decision is the outcome of an authorization check. Deny is a normal value.
type Decision bool

const (
	Deny  Decision = false
	Allow Decision = true
)

func (d Decision) String() string {
	if d {
		return "Allow"
	}
	return "Deny"
}

// ReconcileResult reports a differential grant sync. Changed grants are
// delete-and-recreate and appear in Changed only when both steps succeed.
type ReconcileResult struct {
	Added   []PermissionGrant     `json:"added"`
	Removed []int64               `json:"removed"`
	Changed []PermissionGrant     `json:"changed"`
	Failed  []BulkFailure[string] `json:"failed"`
}
