// Package rights decides whether a subject may perform an action on an
// entity or within a unit.
package rights

import (
	"umbrella-admin/internal/model"
	"umbrella-admin/internal/unit"
)

type Right string

const (
	Show     Right = "SHOW"
	Edit     Right = "EDIT"
	Create   Right = "CREATE"
	Delete   Right = "DELETE"
	Validate Right = "VALIDATE"
	List     Right = "LIST"
	Restore  Right = "RESTORE"
	Export   Right = "EXPORT"
)

// Target is what a right is checked against: a single entity, or a unit
// (nil for unscoped) when no instance exists yet.
type Target struct {
	Kind   string
	Unit   *model.Unit
	Entity *model.EntityHeader
}

func OnUnit(kind string, u *model.Unit) Target {
	return Target{Kind: kind, Unit: u}
}

func OnEntity(h *model.EntityHeader, u *model.Unit) Target {
	return Target{Kind: h.Kind, Unit: u, Entity: h}
}

// Check is the input handed to every rule.
type Check struct {
	Subject *model.Subject
	Action  Right
	Target  Target

	units  *unit.Hierarchy
	policy *Policy
}

// Holds reports whether the subject holds one of caps on the target unit,
// directly or through an ancestor the policy lets it inherit from.
func (c Check) Holds(caps ...string) bool {
	if c.Subject == nil || c.Target.Unit == nil || c.units == nil {
		return false
	}
	target := *c.Target.Unit
	for _, at := range c.units.Ancestors(target.ID) {
		for _, capability := range caps {
			if !c.Subject.HasGrant(at.ID, capability) {
				continue
			}
			if at.ID == target.ID || c.policy.inherits(c.Subject, capability, at, target) {
				return true
			}
		}
	}
	return false
}

// HoldsAtRoot reports whether the subject holds one of caps on the root unit.
func (c Check) HoldsAtRoot(caps ...string) bool {
	if c.Subject == nil || c.units == nil {
		return false
	}
	root := c.units.Root()
	for _, capability := range caps {
		if c.Subject.HasGrant(root.ID, capability) {
			return true
		}
	}
	return false
}

type Rule func(c Check) bool

// OverrideFunc decides whether a capability granted on an ancestor applies
// to a descendant target.
type OverrideFunc func(s *model.Subject, capability string, grantedAt model.Unit, target model.Unit) bool

// Policy maps each right a kind declares to the rule granting it.
type Policy struct {
	rules    map[Right]Rule
	order    []Right
	exempt   bool
	override OverrideFunc
}

func NewPolicy() *Policy {
	return &Policy{rules: map[Right]Rule{}}
}

// Unrestricted is the explicit exemption for kinds that need no rights
// checks: every right is granted.
func Unrestricted() *Policy {
	p := NewPolicy()
	p.exempt = true
	return p
}

// Allow declares a right. Declaring it again replaces the rule but keeps the
// original position.
func (p *Policy) Allow(r Right, rule Rule) *Policy {
	if _, exists := p.rules[r]; !exists {
		p.order = append(p.order, r)
	}
	p.rules[r] = rule
	return p
}

func (p *Policy) WithOverride(fn OverrideFunc) *Policy {
	p.override = fn
	return p
}

// Rights lists the declared rights in declaration order.
func (p *Policy) Rights() []Right {
	if p == nil {
		return nil
	}
	out := make([]Right, len(p.order))
	copy(out, p.order)
	return out
}

func (p *Policy) inherits(s *model.Subject, capability string, grantedAt model.Unit, target model.Unit) bool {
	if p == nil || p.override == nil {
		return true
	}
	return p.override(s, capability, grantedAt, target)
}
