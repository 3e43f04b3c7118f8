// Package unit holds the organizational tree that scopes visibility and
// permissions of entities.
package unit

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/cases"

	"umbrella-admin/internal/model"
)

// Hierarchy is an in-memory, validated view of the unit tree. It is safe for
// concurrent use.
type Hierarchy struct {
	mu       sync.RWMutex
	byID     map[string]model.Unit
	children map[string][]string
	rootID   string
}

// New builds a hierarchy from a flat list. It rejects trees with zero or
// several roots, dangling parents, cycles and case-insensitive name clashes.
func New(units []model.Unit) (*Hierarchy, error) {
	h := &Hierarchy{
		byID:     make(map[string]model.Unit, len(units)),
		children: make(map[string][]string, len(units)),
	}

	names := make(map[string]string, len(units))
	for _, u := range units {
		if strings.TrimSpace(u.ID) == "" {
			return nil, fmt.Errorf("unit %q: %w", u.Name, model.ErrInvalidInput)
		}
		if _, dup := h.byID[u.ID]; dup {
			return nil, fmt.Errorf("duplicate unit id %s: %w", u.ID, model.ErrInvalidInput)
		}
		key := fold(u.Name)
		if other, taken := names[key]; taken {
			return nil, fmt.Errorf("units %s and %s share name %q: %w", other, u.ID, u.Name, model.ErrUnitNameTaken)
		}
		names[key] = u.ID

		if u.IsRoot() {
			if h.rootID != "" {
				return nil, fmt.Errorf("units %s and %s are both roots: %w", h.rootID, u.ID, model.ErrUnitRoot)
			}
			h.rootID = u.ID
		}
		h.byID[u.ID] = u
	}

	if h.rootID == "" {
		return nil, model.ErrUnitRoot
	}

	for _, u := range units {
		if u.IsRoot() {
			continue
		}
		if _, ok := h.byID[u.ParentID]; !ok {
			return nil, fmt.Errorf("unit %s references parent %s: %w", u.ID, u.ParentID, model.ErrUnitNotFound)
		}
		h.children[u.ParentID] = append(h.children[u.ParentID], u.ID)
	}

	for _, u := range units {
		if err := h.checkAcyclic(u.ID); err != nil {
			return nil, err
		}
	}

	for parent := range h.children {
		h.sortChildren(parent)
	}

	return h, nil
}

func (h *Hierarchy) checkAcyclic(id string) error {
	seen := make(map[string]struct{}, 8)
	for cur := id; cur != ""; cur = h.byID[cur].ParentID {
		if _, loop := seen[cur]; loop {
			return fmt.Errorf("unit %s: %w", id, model.ErrUnitCycle)
		}
		seen[cur] = struct{}{}
	}
	return nil
}

func (h *Hierarchy) sortChildren(parent string) {
	ids := h.children[parent]
	sort.SliceStable(ids, func(i, j int) bool {
		return h.byID[ids[i]].Name < h.byID[ids[j]].Name
	})
}

// Resolve returns the unit with the given id.
func (h *Hierarchy) Resolve(id string) (model.Unit, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	u, ok := h.byID[id]
	if !ok {
		return model.Unit{}, fmt.Errorf("resolve unit %s: %w", id, model.ErrUnitNotFound)
	}
	return u, nil
}

func (h *Hierarchy) Root() model.Unit {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.byID[h.rootID]
}

// Ancestors returns the unit itself followed by its parents up to the root.
// An unknown id yields nil.
func (h *Hierarchy) Ancestors(id string) []model.Unit {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var chain []model.Unit
	for cur := id; cur != ""; {
		u, ok := h.byID[cur]
		if !ok {
			break
		}
		chain = append(chain, u)
		cur = u.ParentID
	}
	return chain
}

// IsAncestor reports whether ancestorID is id itself or one of its parents.
func (h *Hierarchy) IsAncestor(ancestorID string, id string) bool {
	for _, u := range h.Ancestors(id) {
		if u.ID == ancestorID {
			return true
		}
	}
	return false
}

func (h *Hierarchy) Children(id string) []model.Unit {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]model.Unit, 0, len(h.children[id]))
	for _, child := range h.children[id] {
		out = append(out, h.byID[child])
	}
	return out
}

// All lists every unit depth-first from the root, siblings by name.
func (h *Hierarchy) All() []model.Unit {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]model.Unit, 0, len(h.byID))
	var walk func(id string)
	walk = func(id string) {
		out = append(out, h.byID[id])
		for _, child := range h.children[id] {
			walk(child)
		}
	}
	walk(h.rootID)
	return out
}

func (h *Hierarchy) Tree() model.UnitNode {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var build func(id string) model.UnitNode
	build = func(id string) model.UnitNode {
		node := model.UnitNode{Unit: h.byID[id]}
		for _, child := range h.children[id] {
			node.Children = append(node.Children, build(child))
		}
		return node
	}
	return build(h.rootID)
}

// Add inserts a new non-root unit under an existing parent.
func (h *Hierarchy) Add(u model.Unit) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.checkAdd(u); err != nil {
		return err
	}
	h.byID[u.ID] = u
	h.children[u.ParentID] = append(h.children[u.ParentID], u.ID)
	h.sortChildren(u.ParentID)
	return nil
}

// CanAdd reports the error Add would return for u, without inserting it.
func (h *Hierarchy) CanAdd(u model.Unit) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.checkAdd(u)
}

func (h *Hierarchy) checkAdd(u model.Unit) error {
	if u.IsRoot() {
		return model.ErrUnitRoot
	}
	if _, exists := h.byID[u.ID]; exists {
		return fmt.Errorf("unit %s already exists: %w", u.ID, model.ErrInvalidInput)
	}
	if _, ok := h.byID[u.ParentID]; !ok {
		return fmt.Errorf("parent %s: %w", u.ParentID, model.ErrUnitNotFound)
	}
	key := fold(u.Name)
	for _, existing := range h.byID {
		if fold(existing.Name) == key {
			return fmt.Errorf("unit name %q: %w", u.Name, model.ErrUnitNameTaken)
		}
	}
	return nil
}

// NameAvailable reports whether no existing unit name contains name,
// ignoring case. Blank names are never available.
func (h *Hierarchy) NameAvailable(name string) bool {
	needle := fold(strings.TrimSpace(name))
	if needle == "" {
		return false
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, u := range h.byID {
		if strings.Contains(fold(u.Name), needle) {
			return false
		}
	}
	return true
}

// A cases.Caser is stateful, so one is built per call.
func fold(s string) string {
	return cases.Fold().String(s)
}
