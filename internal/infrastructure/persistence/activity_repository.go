package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/backoffice/internal/domain/activity"
	"github.com/erp/backoffice/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// DefaultActivityLimit bounds journal queries that set no limit
const DefaultActivityLimit = 50

// MaxActivityLimit is the largest page a journal query may ask for
const MaxActivityLimit = 500

// GormActivityRepository implements activity.Repository using GORM
type GormActivityRepository struct {
	db *gorm.DB
}

// NewGormActivityRepository creates a new GormActivityRepository
func NewGormActivityRepository(db *gorm.DB) *GormActivityRepository {
	return &GormActivityRepository{db: db}
}

// Save appends a record to the journal
func (r *GormActivityRepository) Save(ctx context.Context, rec *activity.Record) error {
	if rec == nil {
		return fmt.Errorf("activity record is nil")
	}
	if err := r.db.WithContext(ctx).Create(models.ActivityModelFromDomain(rec)).Error; err != nil {
		return fmt.Errorf("saving activity: %w", err)
	}
	return nil
}

// List returns the newest records matching f
func (r *GormActivityRepository) List(ctx context.Context, f activity.Filter) ([]activity.Record, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultActivityLimit
	}
	if limit > MaxActivityLimit {
		limit = MaxActivityLimit
	}

	query := r.db.WithContext(ctx).Model(&models.ActivityModel{})
	if f.Tag != "" {
		query = query.Where("tag = ?", f.Tag)
	}
	if f.Outcome != "" {
		query = query.Where("outcome = ?", string(f.Outcome))
	}

	var rows []models.ActivityModel
	if err := query.Order("created_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing activities: %w", err)
	}

	out := make([]activity.Record, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}

// CountByOutcome counts records per outcome, optionally for one tag
func (r *GormActivityRepository) CountByOutcome(ctx context.Context, tag string) (map[activity.Outcome]int64, error) {
	query := r.db.WithContext(ctx).Model(&models.ActivityModel{})
	if tag != "" {
		query = query.Where("tag = ?", tag)
	}

	var rows []struct {
		Outcome string
		Total   int64
	}
	if err := query.Select("outcome, COUNT(*) AS total").Group("outcome").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("counting activities: %w", err)
	}

	out := make(map[activity.Outcome]int64, len(rows))
	for _, row := range rows {
		out[activity.Outcome(row.Outcome)] = row.Total
	}
	return out, nil
}

// DeleteBefore removes records created before t and returns how many were
// removed
func (r *GormActivityRepository) DeleteBefore(ctx context.Context, t time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("created_at < ?", t).Delete(&models.ActivityModel{})
	if result.Error != nil {
		return 0, fmt.Errorf("pruning activities: %w", result.Error)
	}
	return result.RowsAffected, nil
}
