package rights

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"umbrella-admin/internal/model"
	"umbrella-admin/internal/unit"
)

type cacheKey struct {
	subject    string
	grants     string
	kind       string
	id         string
	generation uint64
	action     Right
	header     headerState
}

// headerState is the part of an entity header rules can read. A check made
// with a stale header never fills the slot a fresh header looks up.
type headerState struct {
	status       string
	unitID       string
	blankOwnerID string
	deleted      bool
	updatedAt    int64
}

func stateOf(h *model.EntityHeader) headerState {
	return headerState{
		status:       h.Status,
		unitID:       h.UnitID,
		blankOwnerID: h.BlankOwnerID,
		deleted:      h.Deleted,
		updatedAt:    h.UpdatedAt.UnixNano(),
	}
}

// Decision is one row of a rights matrix.
type Decision struct {
	Right   Right `json:"right"`
	Allowed bool  `json:"allowed"`
}

// Evaluator applies policies against the unit hierarchy. Decisions on stored
// entities are cached until Expire is called for that entity.
type Evaluator struct {
	units *unit.Hierarchy
	cache *lru.Cache[cacheKey, bool]

	mu          sync.Mutex
	generations map[string]uint64
}

func NewEvaluator(units *unit.Hierarchy, cacheSize int) (*Evaluator, error) {
	if cacheSize <= 0 {
		cacheSize = 4096
	}
	cache, err := lru.New[cacheKey, bool](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create rights cache: %w", err)
	}
	return &Evaluator{
		units:       units,
		cache:       cache,
		generations: map[string]uint64{},
	}, nil
}

// Can reports whether subject may perform action on target. A nil policy
// denies everything. Can never panics: a failing rule counts as a denial.
func (e *Evaluator) Can(p *Policy, s *model.Subject, action Right, t Target) bool {
	if p == nil || s == nil {
		return false
	}
	if p.exempt {
		return true
	}
	rule, declared := p.rules[action]
	if !declared || rule == nil {
		return false
	}

	cacheable := t.Entity != nil && t.Entity.ID != ""
	var key cacheKey
	if cacheable {
		key = cacheKey{
			subject:    s.ID,
			grants:     grantsKey(s),
			kind:       t.Entity.Kind,
			id:         t.Entity.ID,
			generation: e.generation(t.Entity.Kind, t.Entity.ID),
			action:     action,
			header:     stateOf(t.Entity),
		}
		if allowed, hit := e.cache.Get(key); hit {
			return allowed
		}
	}

	allowed := e.evaluate(rule, Check{Subject: s, Action: action, Target: t, units: e.units, policy: p})
	if cacheable {
		e.cache.Add(key, allowed)
	}
	return allowed
}

func (e *Evaluator) evaluate(rule Rule, c Check) (allowed bool) {
	defer func() {
		if recovered := recover(); recovered != nil {
			slog.Error("rights rule panicked", "kind", c.Target.Kind, "right", c.Action, "error", fmt.Sprintf("%v", recovered))
			allowed = false
		}
	}()
	return rule(c)
}

// Matrix evaluates every right the policy declares, in declaration order.
func (e *Evaluator) Matrix(p *Policy, s *model.Subject, t Target) []Decision {
	rights := p.Rights()
	out := make([]Decision, 0, len(rights))
	for _, r := range rights {
		out = append(out, Decision{Right: r, Allowed: e.Can(p, s, r, t)})
	}
	return out
}

// Selectable lists the units in which subject holds action for kind.
func (e *Evaluator) Selectable(p *Policy, s *model.Subject, action Right, kind string) []model.Unit {
	var out []model.Unit
	for _, u := range e.units.All() {
		if e.Can(p, s, action, OnUnit(kind, &u)) {
			out = append(out, u)
		}
	}
	return out
}

// Expire invalidates cached decisions for one entity. It must be called
// after any mutation that can change the rights it grants.
func (e *Evaluator) Expire(kind string, id string) {
	e.mu.Lock()
	e.generations[kind+"/"+id]++
	e.mu.Unlock()
}

func (e *Evaluator) generation(kind string, id string) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.generations[kind+"/"+id]
}

// grantsKey fingerprints what a subject holds, so decisions cached before a
// grant change are not reused after it.
func grantsKey(s *model.Subject) string {
	parts := make([]string, 0, len(s.Grants)+1)
	if s.Superuser {
		parts = append(parts, "*")
	}
	for _, g := range s.Grants {
		parts = append(parts, g.UnitID+"="+g.Capability)
	}
	slices.Sort(parts)
	return strings.Join(parts, ",")
}
