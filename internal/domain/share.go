package domain

import (
	"time"

	"github.com/google/uuid"
)

type ShareKind string

const (
	ShareKindFile       ShareKind = "file"
	ShareKindCollection ShareKind = "collection"
)

type ShareLink struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	OwnerID      int64      `json:"owner_id" db:"owner_id"`
	FilePath     string     `json:"file_path" db:"file_path"`
	Token        string     `json:"token" db:"token"`
	PasswordHash *string    `json:"-" db:"password_hash"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	AccessCount  int64      `json:"access_count" db:"access_count"`
	LastAccessed *time.Time `json:"last_accessed,omitempty" db:"last_accessed"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
}

func (s *ShareLink) HasPassword() bool {
	return s.PasswordHash != nil && *s.PasswordHash != ""
}

type ShareCollection struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	OwnerID      int64      `json:"owner_id" db:"owner_id"`
	Token        string     `json:"token" db:"token"`
	Name         string     `json:"name" db:"name"`
	PasswordHash *string    `json:"-" db:"password_hash"`
	ItemPaths    []string   `json:"item_paths" db:"-"`
	ItemCount    int        `json:"item_count" db:"item_count"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	AccessCount  int64      `json:"access_count" db:"access_count"`
	LastAccessed *time.Time `json:"last_accessed,omitempty" db:"last_accessed"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
}

func (c *ShareCollection) HasPassword() bool {
	return c.PasswordHash != nil && *c.PasswordHash != ""
}

// ShareOptions are the optional knobs of a new share.
type ShareOptions struct {
	Password  string
	ExpiresAt *time.Time
}

// ShareAccess is the content locator returned by a successful resolution.
type ShareAccess struct {
	Kind         ShareKind  `json:"kind"`
	ID           uuid.UUID  `json:"id"`
	Name         string     `json:"name"`
	Paths        []string   `json:"paths"`
	AccessCount  int64      `json:"access_count"`
	LastAccessed *time.Time `json:"last_accessed,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether a share with the given expiry is no longer usable at now.
func Expired(expiresAt *time.Time, now time.Time) bool {
	return expiresAt != nil && !now.Before(*expiresAt)
}
