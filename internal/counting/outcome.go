package counting

import (
	"errors"
	"fmt"
)

var (
	ErrSessionNotFound  = errors.New("count session not found")
	ErrNoCurrentArea    = errors.New("count session has no current area")
	ErrNoActiveSession  = errors.New("no active count session")
	ErrInvalidQuantity  = errors.New("counted quantity must be a finite number >= 0")
	ErrMissingProduct   = errors.New("product id is required")
	ErrBackendNotWired  = errors.New("no backend configured")
	ErrItemNotFound     = errors.New("count item not found")
	ErrSessionNotSynced = errors.New("count session is not synced")

	ErrSessionNotCompleted = errors.New("count session is not completed")
)

// Outcome is the result of a best-effort remote call. Callers are free to
// ignore it: local state has already been applied either way.
type Outcome struct {
	Attempted bool
	Err       error
}

// OK reports whether the call was made and succeeded
func (o Outcome) OK() bool { return o.Attempted && o.Err == nil }

// Skipped reports whether no remote call was needed or possible
func (o Outcome) Skipped() bool { return !o.Attempted }

func attempted(err error) Outcome { return Outcome{Attempted: true, Err: err} }

// AreaSyncError reports that an area was completed locally but the backend
// did not acknowledge it. The area stays flagged for retry.
type AreaSyncError struct {
	SessionID string
	AreaID    string
	Err       error
}

func (e *AreaSyncError) Error() string {
	return fmt.Sprintf("area %s of session %s not synced: %v", e.AreaID, e.SessionID, e.Err)
}

func (e *AreaSyncError) Unwrap() error { return e.Err }
