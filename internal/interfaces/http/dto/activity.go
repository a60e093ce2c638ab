package dto

import (
	"time"

	"github.com/erp/backoffice/internal/domain/activity"
)

// ActivityQuery filters the mutation journal
type ActivityQuery struct {
	Tag     string `form:"tag" binding:"omitempty,max=100"`
	Outcome string `form:"outcome" binding:"omitempty,oneof=success rolled_back rejected"`
	Limit   int    `form:"limit" binding:"omitempty,min=1,max=500"`
}

// ActivityResponse is one entry of the mutation journal
type ActivityResponse struct {
	ID         string    `json:"id"`
	Tag        string    `json:"tag"`
	Action     string    `json:"action"`
	EntityID   *int64    `json:"entity_id,omitempty"`
	Outcome    string    `json:"outcome"`
	Message    string    `json:"message,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
	UserID     string    `json:"user_id,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewActivityResponses converts journal records
func NewActivityResponses(records []activity.Record) []ActivityResponse {
	out := make([]ActivityResponse, len(records))
	for i, r := range records {
		out[i] = ActivityResponse{
			ID:         r.ID.String(),
			Tag:        r.Tag,
			Action:     r.Action,
			EntityID:   r.EntityID,
			Outcome:    string(r.Outcome),
			Message:    r.Message,
			RequestID:  r.RequestID,
			UserID:     r.UserID,
			DurationMS: r.Duration.Milliseconds(),
			CreatedAt:  r.CreatedAt,
		}
	}
	return out
}
