// Package transfer models clothes transfer requests between branches,
// factories and workshops, and the per-item approval workflow that decides
// them.
package transfer

import (
	"fmt"
	"sort"

	"github.com/erp/backoffice/internal/domain/shared"
)

// EntityType is the kind of location that sends or receives a transfer
type EntityType string

const (
	EntityBranch   EntityType = "branch"
	EntityFactory  EntityType = "factory"
	EntityWorkshop EntityType = "workshop"
)

// IsValid checks if the entity type is known
func (t EntityType) IsValid() bool {
	switch t {
	case EntityBranch, EntityFactory, EntityWorkshop:
		return true
	}
	return false
}

// ItemStatus is the decision state of one transfer item
type ItemStatus string

const (
	ItemPending  ItemStatus = "pending"
	ItemApproved ItemStatus = "approved"
	ItemRejected ItemStatus = "rejected"
)

// IsValid checks if the status is a valid ItemStatus
func (s ItemStatus) IsValid() bool {
	switch s {
	case ItemPending, ItemApproved, ItemRejected:
		return true
	}
	return false
}

// IsDecided reports whether the item left pending
func (s ItemStatus) IsDecided() bool {
	return s == ItemApproved || s == ItemRejected
}

// CanTransitionTo checks if the status can transition to the target status
func (s ItemStatus) CanTransitionTo(target ItemStatus) bool {
	switch s {
	case ItemPending:
		return target == ItemApproved || target == ItemRejected
	case ItemApproved, ItemRejected:
		return false // Terminal states
	}
	return false
}

// AggregateStatus is the request-level status derived from the item statuses
type AggregateStatus string

const (
	StatusPending           AggregateStatus = "pending"
	StatusApproved          AggregateStatus = "approved"
	StatusRejected          AggregateStatus = "rejected"
	StatusPartiallyPending  AggregateStatus = "partially_pending"
	StatusPartiallyApproved AggregateStatus = "partially_approved"
)

// IsValid checks if the status is a valid AggregateStatus
func (s AggregateStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusPartiallyPending, StatusPartiallyApproved:
		return true
	}
	return false
}

// DeriveAggregateStatus computes the request status from its item statuses.
// The result depends only on how many items are in each status, never on
// the order in which they were decided.
//
//   - no items, or all pending: pending
//   - all approved: approved; all rejected: rejected
//   - some pending, some decided: partially_approved when nothing was
//     rejected, partially_pending otherwise
//   - nothing pending, approved and rejected mixed: partially_approved
func DeriveAggregateStatus(statuses []ItemStatus) AggregateStatus {
	var pending, approved, rejected int
	for _, s := range statuses {
		switch s {
		case ItemApproved:
			approved++
		case ItemRejected:
			rejected++
		default:
			pending++
		}
	}

	total := len(statuses)
	switch {
	case pending == total:
		return StatusPending
	case approved == total:
		return StatusApproved
	case rejected == total:
		return StatusRejected
	case pending > 0 && rejected == 0:
		return StatusPartiallyApproved
	case pending > 0:
		return StatusPartiallyPending
	default:
		return StatusPartiallyApproved
	}
}

// Decision is the action applied to pending items
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// Target returns the item status a decision moves items to
func (d Decision) Target() ItemStatus {
	if d == DecisionReject {
		return ItemRejected
	}
	return ItemApproved
}

// IsValid checks if the decision is known
func (d Decision) IsValid() bool {
	return d == DecisionApprove || d == DecisionReject
}

// Item is one clothing piece inside a transfer request
type Item struct {
	ID     int64      `json:"id"`
	Code   string     `json:"code"`
	Name   string     `json:"name"`
	Status ItemStatus `json:"status"`
}

// Request is a request to move clothes from one entity to another
type Request struct {
	ID             int64           `json:"id"`
	FromEntityType EntityType      `json:"from_entity_type"`
	FromEntityID   int64           `json:"from_entity_id"`
	FromEntityName string          `json:"from_entity_name"`
	ToEntityType   EntityType      `json:"to_entity_type"`
	ToEntityID     int64           `json:"to_entity_id"`
	ToEntityName   string          `json:"to_entity_name"`
	TransferDate   string          `json:"transfer_date"`
	Notes          string          `json:"notes"`
	CreatedAt      string          `json:"created_at"`
	Status         AggregateStatus `json:"status"`
	Items          []Item          `json:"items"`
}

// ItemStatuses returns the status of every item in order
func (r *Request) ItemStatuses() []ItemStatus {
	out := make([]ItemStatus, len(r.Items))
	for i, it := range r.Items {
		out[i] = it.Status
	}
	return out
}

// DerivedStatus previews the aggregate status from the current items
func (r *Request) DerivedStatus() AggregateStatus {
	return DeriveAggregateStatus(r.ItemStatuses())
}

// PendingItemIDs returns the ids of items still awaiting a decision
func (r *Request) PendingItemIDs() []int64 {
	ids := make([]int64, 0, len(r.Items))
	for _, it := range r.Items {
		if it.Status == ItemPending {
			ids = append(ids, it.ID)
		}
	}
	return ids
}

// Item returns the item with the given id
func (r *Request) Item(id int64) (*Item, bool) {
	for i := range r.Items {
		if r.Items[i].ID == id {
			return &r.Items[i], true
		}
	}
	return nil, false
}

// CanDecideWhole reports whether whole-request approve/reject is allowed.
// It is offered only while the server reports the request as pending.
func (r *Request) CanDecideWhole() bool {
	return r.Status == StatusPending
}

// ValidateWholeDecision checks the precondition of approve-all / reject-all
func (r *Request) ValidateWholeDecision() error {
	if !r.CanDecideWhole() {
		return shared.NewDomainError(shared.ErrInvalidState.Code,
			fmt.Sprintf("Transfer %d is %s; only pending transfers can be approved or rejected as a whole", r.ID, r.Status))
	}
	return nil
}

// ValidatePartialSelection checks the precondition of a partial decision:
// the selection is non-empty and every id is a pending item of this request.
// The returned ids are de-duplicated and sorted.
func (r *Request) ValidatePartialSelection(ids []int64) ([]int64, error) {
	unique, err := NormalizeSelection(ids)
	if err != nil {
		return nil, err
	}
	for _, id := range unique {
		it, ok := r.Item(id)
		if !ok {
			return nil, shared.NewDomainError(shared.ErrItemNotFound.Code,
				fmt.Sprintf("Item %d does not belong to transfer %d", id, r.ID))
		}
		if it.Status != ItemPending {
			return nil, shared.NewDomainError(shared.ErrItemNotPending.Code,
				fmt.Sprintf("Item %d is already %s", id, it.Status))
		}
	}
	return unique, nil
}

// ApplyDecision moves the given pending items to the decision's status and
// recomputes the aggregate. Nothing changes when any id fails validation.
func (r *Request) ApplyDecision(ids []int64, d Decision) error {
	if !d.IsValid() {
		return shared.NewDomainError(shared.ErrInvalidInput.Code, fmt.Sprintf("Unknown decision %q", d))
	}
	valid, err := r.ValidatePartialSelection(ids)
	if err != nil {
		return err
	}
	target := d.Target()
	for _, id := range valid {
		it, _ := r.Item(id)
		it.Status = target
	}
	r.Status = r.DerivedStatus()
	return nil
}

// DecideAll moves every pending item to the decision's status
func (r *Request) DecideAll(d Decision) error {
	if err := r.ValidateWholeDecision(); err != nil {
		return err
	}
	pending := r.PendingItemIDs()
	if len(pending) == 0 {
		r.Status = r.DerivedStatus()
		return nil
	}
	return r.ApplyDecision(pending, d)
}

// NormalizeSelection rejects an empty selection and returns the ids
// de-duplicated in ascending order
func NormalizeSelection(ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, shared.ErrEmptySelection
	}
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
