// Package activity keeps a journal of settled mutations and serves it back.
package activity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/erp/backoffice/internal/application/cachesync"
	"github.com/erp/backoffice/internal/domain/activity"
	"github.com/erp/backoffice/internal/domain/shared"
	"github.com/erp/backoffice/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// saveTimeout bounds a single journal write
const saveTimeout = 2 * time.Second

// Recorder persists every settled mutation. It implements
// cachesync.SettleObserver. Writes run in the background; Wait blocks until
// the pending ones are done.
type Recorder struct {
	repo    activity.Repository
	logger  *zap.Logger
	pending sync.WaitGroup
}

// NewRecorder creates a Recorder
func NewRecorder(repo activity.Repository, log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{repo: repo, logger: log}
}

// MutationSettled implements cachesync.SettleObserver. The record is built
// from ctx before returning and saved on its own goroutine. Journal failures
// are logged and never reach the caller.
func (r *Recorder) MutationSettled(ctx context.Context, s cachesync.Settlement) {
	rec := activity.NewRecord(s.Tag, s.Action, s.Outcome)
	if s.HasEntity {
		rec.WithEntity(s.EntityID)
	}
	if s.Err != nil {
		rec.Message = cachesync.ErrorDetails(s.Err)
	}
	rec.Duration = s.Duration
	rec.RequestID = logger.GetRequestID(ctx)
	rec.UserID = logger.GetUserID(ctx)

	saveCtx := context.WithoutCancel(ctx)
	r.pending.Go(func() {
		ctx, cancel := context.WithTimeout(saveCtx, saveTimeout)
		defer cancel()
		if err := r.repo.Save(ctx, rec); err != nil {
			r.logger.Warn("Failed to record activity",
				zap.String("tag", s.Tag),
				zap.String("action", s.Action),
				zap.Error(err))
		}
	})
}

// Wait blocks until every journal write started so far has finished
func (r *Recorder) Wait() {
	r.pending.Wait()
}

// Summary is the outcome count of a tag's journal
type Summary struct {
	Tag        string `json:"tag,omitempty"`
	Success    int64  `json:"success"`
	RolledBack int64  `json:"rolled_back"`
	Rejected   int64  `json:"rejected"`
}

// Service answers journal queries
type Service struct {
	repo activity.Repository
}

// NewService creates a Service
func NewService(repo activity.Repository) *Service {
	return &Service{repo: repo}
}

// List returns the newest records matching f
func (s *Service) List(ctx context.Context, f activity.Filter) ([]activity.Record, error) {
	if f.Outcome != "" && !f.Outcome.IsValid() {
		return nil, shared.NewDomainError(shared.ErrInvalidInput.Code, fmt.Sprintf("Unknown outcome %q", f.Outcome))
	}
	return s.repo.List(ctx, f)
}

// Summarize counts outcomes for tag, or for every tag when tag is empty
func (s *Service) Summarize(ctx context.Context, tag string) (Summary, error) {
	counts, err := s.repo.CountByOutcome(ctx, tag)
	if err != nil {
		return Summary{}, err
	}
	return Summary{
		Tag:        tag,
		Success:    counts[activity.OutcomeSuccess],
		RolledBack: counts[activity.OutcomeRolledBack],
		Rejected:   counts[activity.OutcomeRejected],
	}, nil
}
