package models

import (
	"time"

	"gorm.io/datatypes"
)

// CountType classifies a count session
type CountType string

const (
	CountTypeFull  CountType = "FULL"  // full inventory count
	CountTypeSpot  CountType = "SPOT"  // ad-hoc spot check
	CountTypeCycle CountType = "CYCLE" // rotating partial count
)

// Valid reports whether t is a known count type
func (t CountType) Valid() bool {
	switch t {
	case CountTypeFull, CountTypeSpot, CountTypeCycle:
		return true
	}
	return false
}

// CountStatus is the lifecycle state of a count session.
// APPROVED is only ever set by the backend.
type CountStatus string

const (
	CountStatusDraft      CountStatus = "DRAFT"
	CountStatusInProgress CountStatus = "IN_PROGRESS"
	CountStatusCompleted  CountStatus = "COMPLETED"
	CountStatusApproved   CountStatus = "APPROVED"
)

// AreaStatus is the progress of a single storage area within a session
type AreaStatus string

const (
	AreaStatusPending    AreaStatus = "PENDING"
	AreaStatusInProgress AreaStatus = "IN_PROGRESS"
	AreaStatusCompleted  AreaStatus = "COMPLETED"
)

// CountItem is one observation of a product's on-hand quantity.
// CountSessionID == nil means an ad-hoc count outside any session.
type CountItem struct {
	ID              string    `gorm:"primaryKey" json:"id"`
	InventoryItemID string    `gorm:"index" json:"inventoryItemId"`
	ProductID       string    `gorm:"index" json:"productId"`
	ProductName     string    `json:"productName"`
	SKU             string    `json:"sku,omitempty"`
	Barcode         string    `json:"barcode,omitempty"`
	Unit            string    `json:"unit"`
	Container       string    `json:"container,omitempty"`
	CurrentStock    float64   `json:"currentStock"`
	CountedQuantity float64   `json:"countedQuantity"`
	Variance        float64   `json:"variance"`
	ParLevel        float64   `json:"parLevel"`
	Timestamp       time.Time `json:"timestamp"`
	CountSessionID  *string   `gorm:"index" json:"countSessionId"`
	AreaID          *string   `gorm:"index" json:"areaId"`

	// Sync Meta
	RemoteID *string `json:"remoteId,omitempty"`
	Synced   bool    `gorm:"default:false" json:"synced"`

	// Seq orders items newest-first when reloaded from storage
	Seq int64 `gorm:"index" json:"-"`
}

func (CountItem) TableName() string {
	return "count_items"
}

// GetEntityID implements SyncableEntity
func (c *CountItem) GetEntityID() string { return c.ID }

// GetEntityType implements SyncableEntity
func (c *CountItem) GetEntityType() string { return "count_item" }

// Clone returns a copy that shares no pointers with c
func (c *CountItem) Clone() *CountItem {
	if c == nil {
		return nil
	}
	out := *c
	out.CountSessionID = cloneString(c.CountSessionID)
	out.AreaID = cloneString(c.AreaID)
	out.RemoteID = cloneString(c.RemoteID)
	return &out
}

// InSession reports whether the item belongs to session id
func (c *CountItem) InSession(id string) bool {
	return c.CountSessionID != nil && *c.CountSessionID == id
}

// CountArea is a storage area of a session, in traversal order.
// The id is backend-assigned once the session is synced, local before that.
type CountArea struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Order       int        `json:"order"`
	Status      AreaStatus `json:"status"`
	PendingSync bool       `json:"pendingSync,omitempty"` // status not yet acknowledged by the backend
}

// CountSession is a counting run over one location
type CountSession struct {
	ID            string                         `gorm:"primaryKey" json:"id"`
	Name          string                         `json:"name"`
	Type          CountType                      `json:"type"`
	Status        CountStatus                    `gorm:"index" json:"status"`
	LocationID    string                         `gorm:"index" json:"locationId"`
	LocationName  string                         `json:"locationName"`
	StorageAreas  datatypes.JSONSlice[string]    `json:"storageAreas"`
	Notes         string                         `json:"notes,omitempty"`
	StartedAt     time.Time                      `json:"startedAt"`
	CompletedAt   *time.Time                     `json:"completedAt"`
	TotalItems    int                            `json:"totalItems"`
	TotalVariance float64                        `json:"totalVariance"`
	APIID         *string                        `gorm:"column:api_id;index" json:"apiId"`
	Areas         datatypes.JSONSlice[CountArea] `json:"areas"`
	CurrentAreaID *string                        `json:"currentAreaId"`
	UpdatedAt     time.Time                      `json:"updatedAt"`

	Seq int64 `gorm:"index" json:"-"`
}

func (CountSession) TableName() string {
	return "count_sessions"
}

// GetEntityID implements SyncableEntity
func (s *CountSession) GetEntityID() string { return s.ID }

// GetEntityType implements SyncableEntity
func (s *CountSession) GetEntityType() string { return "count_session" }

// Clone returns a deep copy of the session
func (s *CountSession) Clone() *CountSession {
	if s == nil {
		return nil
	}
	out := *s
	if s.StorageAreas != nil {
		out.StorageAreas = append(datatypes.JSONSlice[string]{}, s.StorageAreas...)
	}
	if s.Areas != nil {
		out.Areas = append(datatypes.JSONSlice[CountArea]{}, s.Areas...)
	}
	out.APIID = cloneString(s.APIID)
	out.CurrentAreaID = cloneString(s.CurrentAreaID)
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}

// Synced reports whether the session is mirrored on the backend
func (s *CountSession) Synced() bool {
	return s.APIID != nil && *s.APIID != ""
}

// AreaIndex returns the position of area id in Areas, or -1
func (s *CountSession) AreaIndex(id string) int {
	for i := range s.Areas {
		if s.Areas[i].ID == id {
			return i
		}
	}
	return -1
}

// CountState is a small key/value table for engine-wide pointers
// such as the active session id.
type CountState struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (CountState) TableName() string {
	return "count_state"
}

// StateKeyActiveSession stores the active session pointer
const StateKeyActiveSession = "active_session_id"

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// StringPtr returns a pointer to a copy of v
func StringPtr(v string) *string {
	return &v
}
