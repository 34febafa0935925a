package models

// SyncableEntity is implemented by records the engine mirrors to the backend.
// Event and log payloads identify records through it.
type SyncableEntity interface {
	GetEntityID() string
	GetEntityType() string
}

var (
	_ SyncableEntity = (*CountItem)(nil)
	_ SyncableEntity = (*CountSession)(nil)
)
