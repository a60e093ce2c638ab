package dto

import (
	"github.com/erp/backoffice/internal/domain/transfer"
)

// SelectionRequest is the body of item-level transfer decisions
type SelectionRequest struct {
	ClothIDs []int64 `json:"cloth_ids" binding:"omitempty,dive,gt=0"`
}

// ToggleSelectionRequest carries the currently selected transfer items
type ToggleSelectionRequest struct {
	Selected []int64 `json:"selected" binding:"omitempty,dive,gt=0"`
}

// ToggleSelectionResponse is the selection after a select-all toggle
type ToggleSelectionResponse struct {
	Selected []int64 `json:"selected"`
}

// CreateTransferRequest is the body of a new transfer request
type CreateTransferRequest struct {
	FromEntityType string  `json:"from_entity_type" binding:"required,oneof=branch factory workshop"`
	FromEntityID   int64   `json:"from_entity_id" binding:"required,gt=0"`
	ToEntityType   string  `json:"to_entity_type" binding:"required,oneof=branch factory workshop"`
	ToEntityID     int64   `json:"to_entity_id" binding:"required,gt=0"`
	TransferDate   string  `json:"transfer_date" binding:"omitempty,datetime=2006-01-02"`
	Notes          string  `json:"notes" binding:"omitempty,max=1000"`
	ClothIDs       []int64 `json:"cloth_ids" binding:"omitempty,dive,gt=0"`
}

// TransferResponse is a transfer request as shown on its detail page
type TransferResponse struct {
	*transfer.Request
	// PendingItemIDs are the items a partial decision may still select
	PendingItemIDs []int64 `json:"pending_item_ids"`
	// CanDecideWhole enables the approve-all and reject-all buttons
	CanDecideWhole bool `json:"can_decide_whole"`
}

// NewTransferResponse wraps a transfer request
func NewTransferResponse(r *transfer.Request) TransferResponse {
	return TransferResponse{
		Request:        r,
		PendingItemIDs: r.PendingItemIDs(),
		CanDecideWhole: r.CanDecideWhole(),
	}
}

// Draft converts the request body into a transfer draft
func (r CreateTransferRequest) Draft() transfer.Draft {
	return transfer.Draft{
		FromEntityType: transfer.EntityType(r.FromEntityType),
		FromEntityID:   r.FromEntityID,
		ToEntityType:   transfer.EntityType(r.ToEntityType),
		ToEntityID:     r.ToEntityID,
		TransferDate:   r.TransferDate,
		Notes:          r.Notes,
		ClothIDs:       r.ClothIDs,
	}
}
