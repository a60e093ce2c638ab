// Package backoffice describes the REST resources the back-office pages
// manage: their cache tags, backend paths, labels and required permissions.
package backoffice

import (
	"fmt"
	"sort"
	"strings"

	"github.com/erp/backoffice/internal/domain/shared"
)

// Resource describes one backend collection
type Resource struct {
	// Name is the URL segment used by the BFF and the backend
	Name string
	// Tag identifies the cached collection and its entities
	Tag string
	// Label is the Arabic display name used in notifications
	Label string
	// ReadPermission guards list and get
	ReadPermission string
	// WritePermission guards create, update, delete and status actions
	WritePermission string
	// ReadOnly resources reject create, update and delete
	ReadOnly bool
	// Transitions are the status actions the resource supports
	Transitions map[Action]Transition
}

// Path returns the backend collection path
func (r Resource) Path() string {
	return "/" + r.Name
}

// DisplayName returns the name shown in notifications: the Arabic label, or
// the resource name spelled out for English
func (r Resource) DisplayName(english bool) string {
	if english || r.Label == "" {
		return strings.ReplaceAll(r.Name, "-", " ")
	}
	return r.Label
}

// ItemPath returns the backend path of one entity
func (r Resource) ItemPath(id int64) string {
	return fmt.Sprintf("/%s/%d", r.Name, id)
}

// Transition returns the status transition registered for action
func (r Resource) Transition(action Action) (Transition, error) {
	t, ok := r.Transitions[action]
	if !ok {
		return Transition{}, shared.NewDomainError(shared.ErrInvalidAction.Code,
			fmt.Sprintf("Action %q is not supported for %s", action, r.Name))
	}
	return t, nil
}

// Action names a status transition requested by a page
type Action string

// Transition maps a page action to the backend endpoint and the status the
// entity ends up in
type Transition struct {
	Action Action
	// Segment is appended to the entity path, e.g. "mark-lost"
	Segment string
	// Field is the status field set optimistically
	Field string
	// Status is the literal value written to Field
	Status string
	// Label is the Arabic verb shown in notifications
	Label string
}

// Path returns the backend path of the transition for one entity
func (t Transition) Path(r Resource, id int64) string {
	return r.ItemPath(id) + "/" + t.Segment
}

// Registry holds the known resources by name
type Registry struct {
	byName map[string]Resource
}

// NewRegistry creates a registry from resources
func NewRegistry(resources ...Resource) *Registry {
	reg := &Registry{byName: make(map[string]Resource, len(resources))}
	for _, r := range resources {
		reg.byName[r.Name] = r
	}
	return reg
}

// Lookup finds a resource by its URL name
func (reg *Registry) Lookup(name string) (Resource, error) {
	r, ok := reg.byName[name]
	if !ok {
		return Resource{}, shared.NewDomainError(shared.ErrUnknownResource.Code,
			fmt.Sprintf("Unknown resource %q", name))
	}
	return r, nil
}

// ByTag finds a resource by its cache tag
func (reg *Registry) ByTag(tag string) (Resource, bool) {
	for _, r := range reg.byName {
		if r.Tag == tag {
			return r, true
		}
	}
	return Resource{}, false
}

// Names returns every registered resource name in order
func (reg *Registry) Names() []string {
	names := make([]string, 0, len(reg.byName))
	for n := range reg.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
