package cachesync

import (
	"context"

	"github.com/erp/backoffice/internal/domain/querycache"
)

// Create runs a creation. Nothing is predicted; on success the server
// entity seeds its entity entry and the lists are refetched.
func (s *Synchronizer) Create(ctx context.Context, tag string, mutate MutationFunc, cfg Config) (querycache.Record, error) {
	cfg.HasEntity = false
	cfg.UpdateEntity = false
	cfg.Remove = false
	return s.Perform(ctx, tag, mutate, querycache.NoUpdate(), cfg)
}

// Update merges patch into the entity with the given id in every cached
// list and in its entity entry, refreshing updated_at
func (s *Synchronizer) Update(ctx context.Context, tag string, id int64, patch querycache.Record, mutate MutationFunc, cfg Config) (querycache.Record, error) {
	cfg.EntityID, cfg.HasEntity = id, true
	cfg.UpdateEntity = true
	cfg.Remove = false
	return s.Perform(ctx, tag, mutate, querycache.MergeByID(id, patch, s.now()), cfg)
}

// Delete drops the entity from every cached list, decrementing totals, and
// removes its entity entry
func (s *Synchronizer) Delete(ctx context.Context, tag string, id int64, mutate MutationFunc, cfg Config) error {
	cfg.EntityID, cfg.HasEntity = id, true
	cfg.UpdateEntity = false
	cfg.Remove = true
	_, err := s.Perform(ctx, tag, mutate, querycache.RemoveByID(id), cfg)
	return err
}

// SetStatus sets a fixed status literal on the entity, e.g. a custody
// marked as returned
func (s *Synchronizer) SetStatus(ctx context.Context, tag string, id int64, field string, status any, mutate MutationFunc, cfg Config) (querycache.Record, error) {
	cfg.EntityID, cfg.HasEntity = id, true
	cfg.UpdateEntity = true
	cfg.Remove = false
	return s.Perform(ctx, tag, mutate, querycache.SetFieldByID(id, field, status, s.now()), cfg)
}
