package counts

import "github.com/edukinara/happybar-sub000/internal/models"

// AreaInput is an area name sent on count creation
type AreaInput struct {
	Name  string `json:"name"`
	Order int    `json:"order"`
}

// Area is a backend-assigned storage area
type Area struct {
	ID     string            `json:"id"`
	Name   string            `json:"name"`
	Order  int               `json:"order"`
	Status models.AreaStatus `json:"status,omitempty"`
}

// CreateCountRequest is the body of POST /inventory-counts
type CreateCountRequest struct {
	LocationID string           `json:"locationId"`
	Name       string           `json:"name,omitempty"`
	Type       models.CountType `json:"type"`
	Notes      string           `json:"notes,omitempty"`
	Areas      []AreaInput      `json:"areas,omitempty"`
}

// Count is the backend count resource
type Count struct {
	ID     string             `json:"id"`
	Name   string             `json:"name,omitempty"`
	Status models.CountStatus `json:"status"`
	Areas  []Area             `json:"areas,omitempty"`
}

// UpdateCountRequest is a partial update; nil fields are not sent
type UpdateCountRequest struct {
	Status *models.CountStatus `json:"status,omitempty"`
	Name   *string             `json:"name,omitempty"`
	Notes  *string             `json:"notes,omitempty"`
}

// StatusUpdate builds an UpdateCountRequest that only changes status
func StatusUpdate(status models.CountStatus) UpdateCountRequest {
	return UpdateCountRequest{Status: &status}
}

type areaStatusRequest struct {
	Status models.AreaStatus `json:"status"`
}

// AddItemRequest is the body of POST /inventory-counts/{id}/items.
// Quantities are whole units plus a tenths remainder.
type AddItemRequest struct {
	AreaID      string  `json:"areaId"`
	ProductID   string  `json:"productId"`
	FullUnits   int     `json:"fullUnits"`
	PartialUnit float64 `json:"partialUnit"`
	Notes       string  `json:"notes,omitempty"`
}

// NewAddItemRequest converts a counted quantity into the backend's unit split
func NewAddItemRequest(areaID, productID string, countedQuantity float64, notes string) AddItemRequest {
	full, partial := SplitQuantity(countedQuantity)
	return AddItemRequest{
		AreaID:      areaID,
		ProductID:   productID,
		FullUnits:   full,
		PartialUnit: partial,
		Notes:       notes,
	}
}

// CountItemRef is the backend's acknowledgement of a pushed item
type CountItemRef struct {
	ID string `json:"id"`
}

// envelope is the backend's response wrapper
type envelope[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}
