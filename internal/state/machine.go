// Package state models the guarded workflow an entity kind moves through.
package state

import (
	"context"
	"fmt"

	"umbrella-admin/internal/model"
)

type State struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// Guard decides whether subject may move entity along one transition. A
// denial carries a human-readable reason.
type Guard[T any] func(ctx context.Context, s *model.Subject, entity T) (bool, string)

// BonusForm collects extra data some transitions require. Apply copies the
// submitted values onto the entity and returns field errors, if any.
type BonusForm[T any] struct {
	Fields []string
	Apply  func(entity T, data map[string]any) map[string]string
}

// ConfigError reports a workflow misconfiguration, such as a reference to an
// undeclared state. It is a programming error, not a user error.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string {
	return "state configuration: " + e.Msg
}

type Decision struct {
	Allowed     bool     `json:"allowed"`
	Reason      string   `json:"reason,omitempty"`
	BonusFields []string `json:"bonus_fields,omitempty"`
}

// Definition is the ordered state set of a kind and its transition table.
// The first declared state is the initial one.
type Definition[T any] struct {
	states      []State
	index       map[string]int
	transitions map[[2]string]Guard[T]
	bonus       map[string]BonusForm[T]
}

func New[T any](states ...State) *Definition[T] {
	d := &Definition[T]{
		index:       make(map[string]int, len(states)),
		transitions: map[[2]string]Guard[T]{},
		bonus:       map[string]BonusForm[T]{},
	}
	for _, s := range states {
		if _, dup := d.index[s.Key]; dup {
			panic(&ConfigError{Msg: fmt.Sprintf("state %q declared twice", s.Key)})
		}
		d.index[s.Key] = len(d.states)
		d.states = append(d.states, s)
	}
	return d
}

// Allow registers a transition. A nil guard always allows. Unknown states
// panic since definitions are built at startup.
func (d *Definition[T]) Allow(from string, to string, guard Guard[T]) *Definition[T] {
	d.mustDeclare(from)
	d.mustDeclare(to)
	if guard == nil {
		guard = func(context.Context, *model.Subject, T) (bool, string) { return true, "" }
	}
	d.transitions[[2]string{from, to}] = guard
	return d
}

func (d *Definition[T]) Bonus(to string, form BonusForm[T]) *Definition[T] {
	d.mustDeclare(to)
	d.bonus[to] = form
	return d
}

func (d *Definition[T]) mustDeclare(key string) {
	if !d.Declared(key) {
		panic(&ConfigError{Msg: fmt.Sprintf("state %q is not declared", key)})
	}
}

func (d *Definition[T]) Initial() string {
	if len(d.states) == 0 {
		return ""
	}
	return d.states[0].Key
}

func (d *Definition[T]) States() []State {
	out := make([]State, len(d.states))
	copy(out, d.states)
	return out
}

func (d *Definition[T]) Declared(key string) bool {
	_, ok := d.index[key]
	return ok
}

// Label returns the display label of key, or key itself when undeclared.
func (d *Definition[T]) Label(key string) string {
	if i, ok := d.index[key]; ok {
		return d.states[i].Label
	}
	return key
}

// Targets lists the states reachable from one step away, in declaration
// order, ignoring guards.
func (d *Definition[T]) Targets(from string) []string {
	var out []string
	for _, s := range d.states {
		if _, ok := d.transitions[[2]string{from, s.Key}]; ok {
			out = append(out, s.Key)
		}
	}
	return out
}

// Check evaluates moving entity from one state to another. Undeclared
// states yield a *ConfigError; everything else is a Decision.
func (d *Definition[T]) Check(ctx context.Context, s *model.Subject, entity T, from string, to string) (Decision, error) {
	if !d.Declared(to) {
		return Decision{}, &ConfigError{Msg: fmt.Sprintf("destination state %q is not declared", to)}
	}
	if !d.Declared(from) {
		return Decision{}, &ConfigError{Msg: fmt.Sprintf("current state %q is not declared", from)}
	}

	decision := Decision{BonusFields: d.bonus[to].Fields}
	if from == to {
		decision.Reason = "already in this state"
		return decision, nil
	}

	guard, ok := d.transitions[[2]string{from, to}]
	if !ok {
		decision.Reason = fmt.Sprintf("cannot go from %s to %s", d.Label(from), d.Label(to))
		return decision, nil
	}

	decision.Allowed, decision.Reason = guard(ctx, s, entity)
	if !decision.Allowed && decision.Reason == "" {
		decision.Reason = "transition not allowed"
	}
	return decision, nil
}

// ApplyBonus validates and applies the bonus form of to, if any. Missing
// required fields are reported as errors.
func (d *Definition[T]) ApplyBonus(to string, entity T, data map[string]any) map[string]string {
	form, ok := d.bonus[to]
	if !ok {
		return nil
	}

	errs := map[string]string{}
	for _, field := range form.Fields {
		if v, present := data[field]; !present || v == nil || v == "" {
			errs[field] = "this field is required"
		}
	}
	if len(errs) > 0 {
		return errs
	}
	if form.Apply != nil {
		return form.Apply(entity, data)
	}
	return nil
}
