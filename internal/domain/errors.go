package domain

import (
	"errors"
	"fmt"
)

// Expected outcomes. Callers branch on them with errors.Is; anything else
// returned by a service is an infrastructure failure.
var (
	ErrForbidden         = errors.New("forbidden")
	ErrNotFound          = errors.New("not found")
	ErrExpired           = errors.New("expired")
	ErrPasswordRequired  = errors.New("password required")
	ErrPasswordIncorrect = errors.New("password incorrect")
	ErrConflict          = errors.New("conflict")
	ErrInvalidInput      = errors.New("invalid input")

	// ErrTokenTaken is returned by share stores when a token was issued before.
	ErrTokenTaken = errors.New("share token already issued")
)

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// ConflictError reports that a restore target is occupied.
type ConflictError struct {
	ID   int64
	Path string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("restore of item %d: %q is occupied", e.ID, e.Path)
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// Reason codes used in bulk results.
const (
	ReasonNotFound  = "NotFound"
	ReasonForbidden = "Forbidden"
	ReasonConflict  = "Conflict"
	ReasonInvalid   = "InvalidInput"
	ReasonInternal  = "Internal"
)

// ReasonOf classifies err for a bulk failure entry.
func ReasonOf(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return ReasonNotFound
	case errors.Is(err, ErrForbidden):
		return ReasonForbidden
	case errors.Is(err, ErrConflict):
		return ReasonConflict
	case errors.Is(err, ErrInvalidInput):
		return ReasonInvalid
	default:
		return ReasonInternal
	}
}

type BulkFailure[K any] struct {
	ID     K      `json:"id"`
	Reason string `json:"reason"`
	Detail string `json:"detail,omitempty"`
}

// BulkResult aggregates a bulk operation. Items are processed independently,
// so a failure never rolls back an earlier success.
type BulkResult[K any] struct {
	Succeeded []K              `json:"succeeded"`
	Failed    []BulkFailure[K] `json:"failed"`
}

func NewBulkResult[K any]() *BulkResult[K] {
	return &BulkResult[K]{Succeeded: []K{}, Failed: []BulkFailure[K]{}}
}

func (r *BulkResult[K]) Succeed(id K) {
	r.Succeeded = append(r.Succeeded, id)
}

func (r *BulkResult[K]) Fail(id K, err error) {
	r.Failed = append(r.Failed, BulkFailure[K]{ID: id, Reason: ReasonOf(err), Detail: err.Error()})
}

func (r *BulkResult[K]) Partial() bool {
	return len(r.Failed) > 0
}
