// Package transfer drives the clothes-transfer approval workflow through the
// query cache: whole and item-level decisions, the workshop-side approval
// and the creation of new requests.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/erp/backoffice/internal/application/cachesync"
	"github.com/erp/backoffice/internal/application/resource"
	"github.com/erp/backoffice/internal/domain/backoffice"
	"github.com/erp/backoffice/internal/domain/querycache"
	"github.com/erp/backoffice/internal/domain/shared"
	domain "github.com/erp/backoffice/internal/domain/transfer"
	"github.com/erp/backoffice/internal/infrastructure/notify"
)

// clothesTag holds the cached clothes, whose location a transfer changes
const clothesTag = "CLOTHES_KEY"

const (
	itemsField  = "items"
	statusField = "status"
)

// Service runs transfer decisions against the backend
type Service struct {
	backend  resource.Backend
	store    querycache.QueryStore
	sync     *cachesync.Synchronizer
	messages *notify.Catalog
	res      backoffice.Resource
}

// NewService creates a Service. The clothes-transfers resource of registry
// provides the labels used in notifications.
func NewService(
	registry *backoffice.Registry,
	backend resource.Backend,
	store querycache.QueryStore,
	sync *cachesync.Synchronizer,
	messages *notify.Catalog,
) (*Service, error) {
	res, err := registry.Lookup(backoffice.ClothesTransfers)
	if err != nil {
		return nil, err
	}
	return &Service{
		backend:  backend,
		store:    store,
		sync:     sync,
		messages: messages,
		res:      res,
	}, nil
}

// ===================== Query Methods =====================

// Get returns the transfer addressed by route, served from the cache while fresh
func (s *Service) Get(ctx context.Context, route domain.Route) (*domain.Request, error) {
	if route.TransferID <= 0 {
		return nil, shared.NewDomainError(shared.ErrInvalidInput.Code, "Transfer ID must be positive")
	}
	key := querycache.EntityKey(route.Tag(), route.TransferID)
	entry, err := s.store.Fetch(ctx, key, resource.Fetcher(ctx, s.backend, route.Path(), nil))
	if err != nil {
		return nil, err
	}
	single, ok := entry.(querycache.Single)
	if !ok {
		return nil, fmt.Errorf("transfer %d: unexpected response shape", route.TransferID)
	}
	var req domain.Request
	if err := single.Record.Decode(&req); err != nil {
		return nil, fmt.Errorf("transfer %d: %w", route.TransferID, err)
	}
	return &req, nil
}

// List returns one page of the transfers reachable through route. Only the
// workshop id of route is used.
func (s *Service) List(ctx context.Context, route domain.Route, params url.Values) (querycache.Entry, error) {
	key := querycache.ListKey(route.Tag(), params)
	if route.IsWorkshop() {
		// workshop lists share one tag; the workshop id keeps their keys apart
		scoped := url.Values{}
		for k, v := range params {
			scoped[k] = v
		}
		scoped.Set("workshop_id", strconv.FormatInt(route.WorkshopID, 10))
		key = querycache.ListKey(route.Tag(), scoped)
	}
	return s.store.Fetch(ctx, key, resource.Fetcher(ctx, s.backend, route.ListPath(), params))
}

// ToggleAllPending flips the selection between none and every pending item
// of the transfer
func (s *Service) ToggleAllPending(ctx context.Context, route domain.Route, selected []int64) ([]int64, error) {
	req, err := s.Get(ctx, route)
	if err != nil {
		return nil, err
	}
	return domain.NewSelection(selected...).ToggleAllPending(req).IDs(), nil
}

// ===================== Decision Methods =====================

// ApproveAll approves every item of a pending transfer
func (s *Service) ApproveAll(ctx context.Context, transferID int64) (*domain.Request, error) {
	return s.decideAll(ctx, domain.DirectRoute(transferID), domain.DecisionApprove)
}

// RejectAll rejects every item of a pending transfer
func (s *Service) RejectAll(ctx context.Context, transferID int64) (*domain.Request, error) {
	return s.decideAll(ctx, domain.DirectRoute(transferID), domain.DecisionReject)
}

// ApprovePartial approves the selected pending items
func (s *Service) ApprovePartial(ctx context.Context, transferID int64, itemIDs []int64) (*domain.Request, error) {
	return s.decidePartial(ctx, domain.DirectRoute(transferID), itemIDs, domain.DecisionApprove)
}

// RejectPartial rejects the selected pending items
func (s *Service) RejectPartial(ctx context.Context, transferID int64, itemIDs []int64) (*domain.Request, error) {
	return s.decidePartial(ctx, domain.DirectRoute(transferID), itemIDs, domain.DecisionReject)
}

// ApproveWorkshop approves the selected pending items of a transfer received
// by a workshop
func (s *Service) ApproveWorkshop(ctx context.Context, workshopID, transferID int64, itemIDs []int64) (*domain.Request, error) {
	if workshopID <= 0 {
		return nil, shared.NewDomainError(shared.ErrInvalidInput.Code, "Workshop ID must be positive")
	}
	return s.decidePartial(ctx, domain.WorkshopRoute(workshopID, transferID), itemIDs, domain.DecisionApprove)
}

// decideAll sends a whole-request decision. Nothing is predicted: the server
// decides every item atomically and the transfer is refetched afterwards.
func (s *Service) decideAll(ctx context.Context, route domain.Route, d domain.Decision) (*domain.Request, error) {
	cfg := s.decisionConfig(ctx, route, d, false, 0)

	req, err := s.Get(ctx, route)
	if err != nil {
		return nil, err
	}
	if err := req.ValidateWholeDecision(); err != nil {
		details := s.messages.Sprintf(ctx, notify.MsgNotPending, s.messages.StatusLabel(ctx, string(req.Status)))
		return nil, s.sync.Reject(ctx, route.Tag(), cfg, shared.NewDomainError(shared.ErrInvalidState.Code, details))
	}

	path, err := route.ActionPath(d, false)
	if err != nil {
		return nil, s.sync.Reject(ctx, route.Tag(), cfg, shared.NewDomainError(shared.ErrInvalidAction.Code, err.Error()))
	}
	if _, err := s.sync.Perform(ctx, route.Tag(), s.post(path, nil), querycache.NoUpdate(), cfg); err != nil {
		return nil, err
	}
	return s.Get(ctx, route)
}

// decidePartial sends an item-level decision. The selected items and the
// derived aggregate are shown optimistically until the server answers.
func (s *Service) decidePartial(ctx context.Context, route domain.Route, itemIDs []int64, d domain.Decision) (*domain.Request, error) {
	ids, err := domain.NormalizeSelection(itemIDs)
	if err != nil {
		cfg := s.decisionConfig(ctx, route, d, true, 0)
		empty := shared.NewDomainError(shared.ErrEmptySelection.Code, s.messages.Text(ctx, notify.MsgEmptySelection))
		return nil, s.sync.Reject(ctx, route.Tag(), cfg, empty)
	}
	cfg := s.decisionConfig(ctx, route, d, true, len(ids))

	path, err := route.ActionPath(d, true)
	if err != nil {
		return nil, s.sync.Reject(ctx, route.Tag(), cfg, shared.NewDomainError(shared.ErrInvalidAction.Code, err.Error()))
	}

	req, err := s.Get(ctx, route)
	if err != nil {
		return nil, err
	}
	if _, err := req.ValidatePartialSelection(ids); err != nil {
		return nil, s.sync.Reject(ctx, route.Tag(), cfg, err)
	}

	updater := querycache.MapByID(route.TransferID, previewDecision(ids, d))
	body := domain.SelectionBody{ClothIDs: ids}
	if _, err := s.sync.Perform(ctx, route.Tag(), s.post(path, body), updater, cfg); err != nil {
		return nil, err
	}
	return s.Get(ctx, route)
}

// Create submits a new transfer request
func (s *Service) Create(ctx context.Context, draft domain.Draft) (querycache.Record, error) {
	label := s.res.DisplayName(s.messages.IsEnglish(ctx))
	cfg := cachesync.Config{
		Action:         "create",
		SuccessMessage: s.messages.Text(ctx, notify.MsgTransferCreated),
		FailureMessage: s.messages.Sprintf(ctx, notify.MsgActionFailed, s.messages.Text(ctx, notify.ActionCreate), label),
		AlsoInvalidate: []string{domain.WorkshopTag, clothesTag},
	}
	if err := draft.Validate(); err != nil {
		if errors.Is(err, shared.ErrEmptySelection) {
			err = shared.NewDomainError(shared.ErrEmptySelection.Code, s.messages.Text(ctx, notify.MsgEmptySelection))
		}
		return nil, s.sync.Reject(ctx, domain.Tag, cfg, err)
	}
	return s.sync.Create(ctx, domain.Tag, s.post(s.res.Path(), draft), cfg)
}

func (s *Service) post(path string, body any) cachesync.MutationFunc {
	return func(ctx context.Context) (querycache.Record, error) {
		env, err := s.backend.Post(ctx, path, body)
		if err != nil {
			return nil, err
		}
		return env.Record()
	}
}

// decisionConfig builds the mutation config of a decision. count is the
// number of selected items for partial decisions.
func (s *Service) decisionConfig(ctx context.Context, route domain.Route, d domain.Decision, partial bool, count int) cachesync.Config {
	label := s.res.DisplayName(s.messages.IsEnglish(ctx))
	action, success := notify.ActionApprove, notify.MsgTransferApproved
	if d == domain.DecisionReject {
		action, success = notify.ActionReject, notify.MsgTransferRejected
	}

	cfg := cachesync.Config{
		EntityID:       route.TransferID,
		HasEntity:      true,
		Action:         string(d),
		FailureMessage: s.messages.Sprintf(ctx, notify.MsgActionFailed, s.messages.Text(ctx, action), label),
		SuccessMessage: s.messages.Text(ctx, success),
		AlsoInvalidate: []string{otherTag(route), clothesTag},
	}
	if partial {
		cfg.Action = string(d) + "-partial"
		cfg.UpdateEntity = true
		if count > 0 {
			items := notify.MsgItemsApproved
			if d == domain.DecisionReject {
				items = notify.MsgItemsRejected
			}
			cfg.SuccessMessage = s.messages.Sprintf(ctx, items, count)
		}
	}
	return cfg
}

// otherTag is the tag of the other view of the same transfers
func otherTag(route domain.Route) string {
	if route.IsWorkshop() {
		return domain.Tag
	}
	return domain.WorkshopTag
}

// previewDecision moves the selected pending items of a cached transfer to
// the decision's status and recomputes the aggregate. Fields the preview
// does not know about are kept as they are.
func previewDecision(ids []int64, d domain.Decision) func(querycache.Record) querycache.Record {
	selected := domain.NewSelection(ids...)
	return func(rec querycache.Record) querycache.Record {
		items, ok := rec[itemsField].([]any)
		if !ok {
			return rec
		}
		statuses := make([]domain.ItemStatus, 0, len(items))
		for i, raw := range items {
			var item querycache.Record
			switch v := raw.(type) {
			case querycache.Record:
				item = v
			case map[string]any:
				item = querycache.Record(v)
			default:
				return rec
			}
			status := domain.ItemStatus(item.String(statusField))
			if id, ok := item.ID(); ok && selected.Contains(id) && status == domain.ItemPending {
				status = d.Target()
				item[statusField] = string(status)
			}
			items[i] = item
			statuses = append(statuses, status)
		}
		rec[itemsField] = items
		rec[statusField] = string(domain.DeriveAggregateStatus(statuses))
		return rec
	}
}
