// Package activity records the outcome of every settled cache mutation.
package activity

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Outcome is how a mutation settled
type Outcome string

const (
	OutcomeSuccess    Outcome = "success"
	OutcomeRolledBack Outcome = "rolled_back"
	OutcomeRejected   Outcome = "rejected"
)

// IsValid checks if the outcome is known
func (o Outcome) IsValid() bool {
	switch o {
	case OutcomeSuccess, OutcomeRolledBack, OutcomeRejected:
		return true
	}
	return false
}

// Record is one settled mutation
type Record struct {
	ID        uuid.UUID
	Tag       string
	Action    string
	EntityID  *int64
	Outcome   Outcome
	Message   string
	RequestID string
	UserID    string
	Duration  time.Duration
	CreatedAt time.Time
}

// NewRecord creates a record with a fresh id
func NewRecord(tag, action string, outcome Outcome) *Record {
	return &Record{
		ID:        uuid.New(),
		Tag:       tag,
		Action:    action,
		Outcome:   outcome,
		CreatedAt: time.Now().UTC(),
	}
}

// WithEntity sets the entity the mutation targeted
func (r *Record) WithEntity(id int64) *Record {
	r.EntityID = &id
	return r
}

// Filter narrows a journal query
type Filter struct {
	Tag     string
	Outcome Outcome
	Limit   int
}

// Repository persists activity records
type Repository interface {
	Save(ctx context.Context, r *Record) error
	List(ctx context.Context, f Filter) ([]Record, error)
	CountByOutcome(ctx context.Context, tag string) (map[Outcome]int64, error)
}
