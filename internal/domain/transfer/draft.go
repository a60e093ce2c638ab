package transfer

import (
	"fmt"

	"github.com/erp/backoffice/internal/domain/shared"
)

// Draft is the input of a new transfer request
type Draft struct {
	FromEntityType EntityType `json:"from_entity_type"`
	FromEntityID   int64      `json:"from_entity_id"`
	ToEntityType   EntityType `json:"to_entity_type"`
	ToEntityID     int64      `json:"to_entity_id"`
	TransferDate   string     `json:"transfer_date"`
	Notes          string     `json:"notes,omitempty"`
	ClothIDs       []int64    `json:"cloth_ids"`
}

// Validate checks a draft before it is sent to the backend
func (d Draft) Validate() error {
	if !d.FromEntityType.IsValid() {
		return invalidDraft(fmt.Sprintf("Unknown source entity type %q", d.FromEntityType))
	}
	if !d.ToEntityType.IsValid() {
		return invalidDraft(fmt.Sprintf("Unknown destination entity type %q", d.ToEntityType))
	}
	if d.FromEntityID <= 0 || d.ToEntityID <= 0 {
		return invalidDraft("Source and destination are required")
	}
	if d.FromEntityType == d.ToEntityType && d.FromEntityID == d.ToEntityID {
		return invalidDraft("Cannot transfer to the same entity")
	}
	if len(d.ClothIDs) == 0 {
		return shared.ErrEmptySelection
	}
	return nil
}

func invalidDraft(msg string) error {
	return shared.NewDomainError(shared.ErrInvalidTransfer.Code, msg)
}
