package transfer

import (
	"fmt"
)

// Tags of the cached transfer collections
const (
	Tag         = "CLOTHES_TRANSFERS_KEY"
	WorkshopTag = "WORKSHOP_TRANSFERS_KEY"
)

// Route addresses a transfer request on the backend. The workshop-side view
// of a transfer is reached through the workshop that receives it.
type Route struct {
	TransferID int64
	WorkshopID int64
}

// DirectRoute addresses a transfer through /clothes-transfers
func DirectRoute(transferID int64) Route {
	return Route{TransferID: transferID}
}

// WorkshopRoute addresses a transfer through /workshops/{workshopId}
func WorkshopRoute(workshopID, transferID int64) Route {
	return Route{TransferID: transferID, WorkshopID: workshopID}
}

// IsWorkshop reports whether the route goes through a workshop
func (r Route) IsWorkshop() bool {
	return r.WorkshopID > 0
}

// Tag returns the cache tag holding entries for this route
func (r Route) Tag() string {
	if r.IsWorkshop() {
		return WorkshopTag
	}
	return Tag
}

// Path returns the backend path of the transfer itself
func (r Route) Path() string {
	if r.IsWorkshop() {
		return fmt.Sprintf("/workshops/%d/clothes-transfers/%d", r.WorkshopID, r.TransferID)
	}
	return fmt.Sprintf("/clothes-transfers/%d", r.TransferID)
}

// ActionPath returns the backend path of a decision endpoint. Workshops
// only expose approve, which takes an item selection.
func (r Route) ActionPath(d Decision, partial bool) (string, error) {
	if r.IsWorkshop() {
		if d != DecisionApprove {
			return "", fmt.Errorf("workshop transfers cannot be %sd", d)
		}
		return r.Path() + "/approve", nil
	}
	if partial {
		return fmt.Sprintf("%s/%s-partial", r.Path(), d), nil
	}
	return fmt.Sprintf("%s/%s", r.Path(), d), nil
}

// ListPath returns the backend collection path for the route
func (r Route) ListPath() string {
	if r.IsWorkshop() {
		return fmt.Sprintf("/workshops/%d/clothes-transfers", r.WorkshopID)
	}
	return "/clothes-transfers"
}

// SelectionBody is the request body of item-level decisions
type SelectionBody struct {
	ClothIDs []int64 `json:"cloth_ids"`
}
