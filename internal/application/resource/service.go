// Package resource serves the generic back-office collections through the
// query cache and mutates them with the optimistic mutation protocol.
package resource

import (
	"context"
	"fmt"
	"net/url"

	"github.com/erp/backoffice/internal/application/cachesync"
	"github.com/erp/backoffice/internal/domain/backoffice"
	"github.com/erp/backoffice/internal/domain/querycache"
	"github.com/erp/backoffice/internal/domain/shared"
	"github.com/erp/backoffice/internal/infrastructure/apiclient"
	"github.com/erp/backoffice/internal/infrastructure/notify"
)

// Getter reads from the REST backend
type Getter interface {
	Get(ctx context.Context, path string, params url.Values) (*apiclient.Envelope, error)
}

// Backend is the REST backend the service talks to
type Backend interface {
	Getter
	Post(ctx context.Context, path string, body any) (*apiclient.Envelope, error)
	Put(ctx context.Context, path string, body any) (*apiclient.Envelope, error)
	Delete(ctx context.Context, path string) (*apiclient.Envelope, error)
}

// Service provides list, get and mutations for every registered resource
type Service struct {
	registry *backoffice.Registry
	backend  Backend
	store    querycache.QueryStore
	sync     *cachesync.Synchronizer
	messages *notify.Catalog
}

// NewService creates a Service
func NewService(
	registry *backoffice.Registry,
	backend Backend,
	store querycache.QueryStore,
	sync *cachesync.Synchronizer,
	messages *notify.Catalog,
) *Service {
	return &Service{
		registry: registry,
		backend:  backend,
		store:    store,
		sync:     sync,
		messages: messages,
	}
}

// Resource looks up a resource by name
func (s *Service) Resource(name string) (backoffice.Resource, error) {
	return s.registry.Lookup(name)
}

// ===================== Query Methods =====================

// List returns one page of a collection, served from the cache while fresh
func (s *Service) List(ctx context.Context, name string, params url.Values) (querycache.Entry, error) {
	res, err := s.registry.Lookup(name)
	if err != nil {
		return nil, err
	}
	key := querycache.ListKey(res.Tag, params)
	return s.store.Fetch(ctx, key, Fetcher(ctx, s.backend, res.Path(), key.Values()))
}

// Get returns one entity, served from the cache while fresh
func (s *Service) Get(ctx context.Context, name string, id int64) (querycache.Entry, error) {
	res, err := s.registry.Lookup(name)
	if err != nil {
		return nil, err
	}
	if err := validID(id); err != nil {
		return nil, err
	}
	return s.store.Fetch(ctx, querycache.EntityKey(res.Tag, id), Fetcher(ctx, s.backend, res.ItemPath(id), nil))
}

// Fetcher loads path from the backend on behalf of the caller in ctx. The
// caller's token and language are kept so background refetches carry them.
func Fetcher(ctx context.Context, backend Getter, path string, params url.Values) querycache.Fetcher {
	token := apiclient.BearerToken(ctx)
	lang := apiclient.AcceptLanguage(ctx)
	return func(fctx context.Context) (querycache.Entry, error) {
		if token != "" && apiclient.BearerToken(fctx) == "" {
			fctx = apiclient.WithBearerToken(fctx, token)
		}
		if lang != "" && apiclient.AcceptLanguage(fctx) == "" {
			fctx = apiclient.WithAcceptLanguage(fctx, lang)
		}
		env, err := backend.Get(fctx, path, params)
		if err != nil {
			return nil, err
		}
		return env.Entry()
	}
}

// ===================== Mutation Methods =====================

// Create adds an entity. The new entity appears in lists after the refetch.
func (s *Service) Create(ctx context.Context, name string, body querycache.Record) (querycache.Record, error) {
	res, err := s.writable(name)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, shared.NewDomainError(shared.ErrInvalidInput.Code, "Request body must not be empty")
	}

	return s.sync.Create(ctx, res.Tag, func(ctx context.Context) (querycache.Record, error) {
		env, err := s.backend.Post(ctx, res.Path(), body)
		if err != nil {
			return nil, err
		}
		return env.Record()
	}, s.config(ctx, res, "create", notify.MsgCreated, notify.ActionCreate))
}

// Update merges patch into an entity
func (s *Service) Update(ctx context.Context, name string, id int64, patch querycache.Record) (querycache.Record, error) {
	res, err := s.writable(name)
	if err != nil {
		return nil, err
	}
	if err := validID(id); err != nil {
		return nil, err
	}
	if len(patch) == 0 {
		return nil, shared.NewDomainError(shared.ErrInvalidInput.Code, "Request body must not be empty")
	}
	// the id is addressed by the path, never by the body
	patch = patch.Clone()
	delete(patch, querycache.IDField)

	return s.sync.Update(ctx, res.Tag, id, patch, func(ctx context.Context) (querycache.Record, error) {
		env, err := s.backend.Put(ctx, res.ItemPath(id), patch)
		if err != nil {
			return nil, err
		}
		return env.Record()
	}, s.config(ctx, res, "update", notify.MsgUpdated, notify.ActionUpdate))
}

// Delete removes an entity
func (s *Service) Delete(ctx context.Context, name string, id int64) error {
	res, err := s.writable(name)
	if err != nil {
		return err
	}
	if err := validID(id); err != nil {
		return err
	}

	return s.sync.Delete(ctx, res.Tag, id, func(ctx context.Context) (querycache.Record, error) {
		_, err := s.backend.Delete(ctx, res.ItemPath(id))
		return nil, err
	}, s.config(ctx, res, "delete", notify.MsgDeleted, notify.ActionDelete))
}

// Transition applies a status action such as returning a custody
func (s *Service) Transition(ctx context.Context, name string, id int64, action backoffice.Action) (querycache.Record, error) {
	res, err := s.registry.Lookup(name)
	if err != nil {
		return nil, err
	}
	t, err := res.Transition(action)
	if err != nil {
		return nil, err
	}
	if err := validID(id); err != nil {
		return nil, err
	}

	cfg := s.config(ctx, res, string(action), notify.MsgStatusChanged, notify.ActionStatus)
	return s.sync.SetStatus(ctx, res.Tag, id, t.Field, t.Status, func(ctx context.Context) (querycache.Record, error) {
		env, err := s.backend.Post(ctx, t.Path(res, id), nil)
		if err != nil {
			return nil, err
		}
		return env.Record()
	}, cfg)
}

func (s *Service) writable(name string) (backoffice.Resource, error) {
	res, err := s.registry.Lookup(name)
	if err != nil {
		return res, err
	}
	if res.ReadOnly {
		return res, shared.NewDomainError(shared.ErrInvalidAction.Code, fmt.Sprintf("%s is read-only", res.Name))
	}
	return res, nil
}

func validID(id int64) error {
	if id <= 0 {
		return shared.NewDomainError(shared.ErrInvalidInput.Code, "ID must be positive")
	}
	return nil
}

func (s *Service) config(ctx context.Context, res backoffice.Resource, name string, success, action notify.Key) cachesync.Config {
	label := res.DisplayName(s.messages.IsEnglish(ctx))
	return cachesync.Config{
		Action:         name,
		SuccessMessage: s.messages.Sprintf(ctx, success, label),
		FailureMessage: s.messages.Sprintf(ctx, notify.MsgActionFailed, s.messages.Text(ctx, action), label),
	}
}
