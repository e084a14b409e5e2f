package domain

import "time"

// RecycleItem is the only record mapping trashed content back to its
// original location.
type RecycleItem struct {
	ID           int64     `json:"id" db:"id"`
	UserID       int64     `json:"user_id" db:"user_id"`
	Name         string    `json:"name" db:"name"`
	OriginalPath string    `json:"original_path" db:"original_path"`
	DeletedPath  string    `json:"deleted_path" db:"deleted_path"`
	DeletionDate time.Time `json:"deletion_date" db:"deletion_date"`
	IsDirectory  bool      `json:"is_directory" db:"is_directory"`
	DeletedBy    string    `json:"deleted_by" db:"deleted_by"`
}

// AuditEvent is a write-only record of a state-changing action.
type AuditEvent struct {
	Action    string
	ActorID   int64
	Actor     string
	Target    string
	Detail    map[string]any
	Timestamp time.Time
}

const (
	AuditGrantCreated    = "grant.created"
	AuditGrantRevoked    = "grant.revoked"
	AuditGrantsSwept     = "grant.expired_swept"
	AuditItemTrashed     = "recycle.trashed"
	AuditItemRestored    = "recycle.restored"
	AuditItemPurged      = "recycle.purged"
	AuditShareCreated    = "share.created"
	AuditShareRevoked    = "share.revoked"
	AuditCollectionAdded = "share.collection_created"
)
