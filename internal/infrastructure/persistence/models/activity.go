// Package models holds the gorm models of the activity journal.
package models

import (
	"time"

	"github.com/erp/backoffice/internal/domain/activity"
	"github.com/google/uuid"
)

// ActivityModel is one row of the activity journal
type ActivityModel struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key"`
	Tag        string    `gorm:"type:varchar(64);not null;index:idx_activity_tag_created"`
	Action     string    `gorm:"type:varchar(64);not null"`
	EntityID   *int64
	Outcome    string    `gorm:"type:varchar(32);not null;index"`
	Message    string    `gorm:"type:text"`
	RequestID  string    `gorm:"type:varchar(64)"`
	UserID     string    `gorm:"type:varchar(64)"`
	DurationMS int64     `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null;index:idx_activity_tag_created"`
}

// TableName returns the table name for GORM
func (ActivityModel) TableName() string {
	return "backoffice_activities"
}

// ActivityModelFromDomain converts a domain record to the model
func ActivityModelFromDomain(r *activity.Record) *ActivityModel {
	return &ActivityModel{
		ID:         r.ID,
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

// ToDomain converts the model to a domain record
func (m *ActivityModel) ToDomain() activity.Record {
	return activity.Record{
		ID:        m.ID,
		Tag:       m.Tag,
		Action:    m.Action,
		EntityID:  m.EntityID,
		Outcome:   activity.Outcome(m.Outcome),
		Message:   m.Message,
		RequestID: m.RequestID,
		UserID:    m.UserID,
		Duration:  time.Duration(m.DurationMS) * time.Millisecond,
		CreatedAt: m.CreatedAt,
	}
}
