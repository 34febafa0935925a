package counting

import (
	"time"

	"github.com/edukinara/happybar-sub000/internal/models"
)

// EventType names a change in the engine's state
type EventType string

const (
	EventItemSaved        EventType = "count.item_saved"
	EventItemRemoved      EventType = "count.item_removed"
	EventItemsCleared     EventType = "count.items_cleared"
	EventSessionSaved     EventType = "count.session_saved"
	EventActiveChanged    EventType = "count.active_session_changed"
	EventAreaCompleted    EventType = "count.area_completed"
	EventSessionCompleted EventType = "count.session_completed"
)

// Event is published after the change it describes is visible to readers
type Event struct {
	Type       EventType `json:"type"`
	EntityType string    `json:"entityType,omitempty"`
	EntityID   string    `json:"entityId,omitempty"`
	Data       any       `json:"data,omitempty"`
	At         time.Time `json:"at"`
}

// Notifier receives engine events. Publish must not block.
type Notifier interface {
	Publish(Event)
}

func entityEvent(t EventType, e models.SyncableEntity, data any, at time.Time) Event {
	return Event{
		Type:       t,
		EntityType: e.GetEntityType(),
		EntityID:   e.GetEntityID(),
		Data:       data,
		At:         at,
	}
}
