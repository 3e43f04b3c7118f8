package lifecycle

import (
	"context"
	"sync"

	"umbrella-admin/internal/model"
	"umbrella-admin/internal/rights"
	"umbrella-admin/internal/state"
)

// KindInfo is the public description of a registered kind.
type KindInfo struct {
	Name       string         `json:"name"`
	Label      string         `json:"label"`
	UnitScoped bool           `json:"unit_scoped"`
	AllowBlank bool           `json:"allow_blank"`
	Moderation string         `json:"moderation,omitempty"`
	States     []state.State  `json:"states,omitempty"`
	Rights     []rights.Right `json:"rights"`
	Contact    bool           `json:"contact"`
}

// Endpoint is an orchestrator with its entity type erased, for transports
// that dispatch on the kind name.
type Endpoint interface {
	Describe() KindInfo
	List(ctx context.Context, s *model.Subject, q ListQuery) (ListResult[model.Entity], error)
	ListDeleted(ctx context.Context, s *model.Subject, q ListQuery) (ListResult[model.Entity], error)
	ListRelated(ctx context.Context, s *model.Subject, q ListQuery) (ListResult[model.Entity], error)
	Export(ctx context.Context, s *model.Subject, q ListQuery) ([]model.Entity, error)
	Show(ctx context.Context, s *model.Subject, id string) (ShowResult[model.Entity], error)
	Submit(ctx context.Context, s *model.Subject, req SubmitRequest) (SubmitResult[model.Entity], error)
	Delete(ctx context.Context, s *model.Subject, id string, confirm bool) (DeleteOutcome[model.Entity], error)
	Restore(ctx context.Context, s *model.Subject, id string) (model.Entity, error)
	SwitchStatus(ctx context.Context, s *model.Subject, req SwitchRequest) (SwitchOutcome[model.Entity], error)
	Contact(ctx context.Context, s *model.Subject, req ContactRequest) error
}

type Registry struct {
	mu    sync.RWMutex
	kinds map[string]Endpoint
	order []string
}

func NewRegistry() *Registry {
	return &Registry{kinds: map[string]Endpoint{}}
}

// Register builds an orchestrator for kind and makes it reachable by name.
func Register[T model.Entity](r *Registry, engine *Engine, kind Kind[T]) (*Orchestrator[T], error) {
	o, err := New(engine, kind)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.kinds[kind.Name]; dup {
		return nil, &ConfigError{Kind: kind.Name, Msg: "kind registered twice"}
	}
	r.kinds[kind.Name] = endpoint[T]{o}
	r.order = append(r.order, kind.Name)
	return o, nil
}

func MustRegister[T model.Entity](r *Registry, engine *Engine, kind Kind[T]) *Orchestrator[T] {
	o, err := Register(r, engine, kind)
	if err != nil {
		panic(err)
	}
	return o
}

// Find returns the typed orchestrator registered under name, for
// callers that need more than the Endpoint surface.
func Find[T model.Entity](r *Registry, name string) (*Orchestrator[T], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.kinds[name].(endpoint[T])
	if !ok {
		return nil, false
	}
	return e.o, true
}

func (r *Registry) Lookup(name string) (Endpoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.kinds[name]
	return e, ok
}

// All returns the registered kinds in registration order.
func (r *Registry) All() []KindInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]KindInfo, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.kinds[name].Describe())
	}
	return out
}

type endpoint[T model.Entity] struct {
	o *Orchestrator[T]
}

func (e endpoint[T]) Describe() KindInfo {
	k := e.o.kind
	info := KindInfo{
		Name:       k.Name,
		Label:      k.label(),
		UnitScoped: k.UnitScoped,
		AllowBlank: k.AllowBlank,
		Moderation: k.Moderation,
		Contact:    k.Contacts != nil,
	}
	if k.Policy != nil {
		info.Rights = k.Policy.Rights()
	}
	if k.States != nil {
		info.States = k.States.States()
	}
	return info
}

func (e endpoint[T]) List(ctx context.Context, s *model.Subject, q ListQuery) (ListResult[model.Entity], error) {
	res, err := e.o.List(ctx, s, q)
	return eraseList(res), err
}

func (e endpoint[T]) ListDeleted(ctx context.Context, s *model.Subject, q ListQuery) (ListResult[model.Entity], error) {
	res, err := e.o.ListDeleted(ctx, s, q)
	return eraseList(res), err
}

func (e endpoint[T]) ListRelated(ctx context.Context, s *model.Subject, q ListQuery) (ListResult[model.Entity], error) {
	res, err := e.o.ListRelated(ctx, s, q)
	return eraseList(res), err
}

func (e endpoint[T]) Export(ctx context.Context, s *model.Subject, q ListQuery) ([]model.Entity, error) {
	items, err := e.o.Export(ctx, s, q)
	return erase(items), err
}

func (e endpoint[T]) Show(ctx context.Context, s *model.Subject, id string) (ShowResult[model.Entity], error) {
	res, err := e.o.Show(ctx, s, id)
	return ShowResult[model.Entity]{
		Entity:      res.Entity,
		Rights:      res.Rights,
		History:     res.History,
		CurrentUnit: res.CurrentUnit,
		StatusLabel: res.StatusLabel,
		NextStates:  res.NextStates,
	}, err
}

func (e endpoint[T]) Submit(ctx context.Context, s *model.Subject, req SubmitRequest) (SubmitResult[model.Entity], error) {
	res, err := e.o.Submit(ctx, s, req)
	return SubmitResult[model.Entity]{Entity: res.Entity, Created: res.Created, Next: res.Next}, err
}

func (e endpoint[T]) Delete(ctx context.Context, s *model.Subject, id string, confirm bool) (DeleteOutcome[model.Entity], error) {
	res, err := e.o.Delete(ctx, s, id, confirm)
	return DeleteOutcome[model.Entity]{Entity: res.Entity, CanDelete: res.CanDelete, Reason: res.Reason, Done: res.Done}, err
}

func (e endpoint[T]) Restore(ctx context.Context, s *model.Subject, id string) (model.Entity, error) {
	obj, err := e.o.Restore(ctx, s, id)
	if err != nil {
		return nil, err
	}
	return obj, nil
}

func (e endpoint[T]) SwitchStatus(ctx context.Context, s *model.Subject, req SwitchRequest) (SwitchOutcome[model.Entity], error) {
	res, err := e.o.SwitchStatus(ctx, s, req)
	return SwitchOutcome[model.Entity]{
		Entity:       res.Entity,
		From:         res.From,
		To:           res.To,
		FromLabel:    res.FromLabel,
		ToLabel:      res.ToLabel,
		Decision:     res.Decision,
		Done:         res.Done,
		NoMoreAccess: res.NoMoreAccess,
	}, err
}

func (e endpoint[T]) Contact(ctx context.Context, s *model.Subject, req ContactRequest) error {
	return e.o.Contact(ctx, s, req)
}

func eraseList[T model.Entity](res ListResult[T]) ListResult[model.Entity] {
	return ListResult[model.Entity]{
		Items:           erase(res.Items),
		Meta:            res.Meta,
		CurrentUnit:     res.CurrentUnit,
		SelectableUnits: res.SelectableUnits,
		Moderables:      erase(res.Moderables),
		CanCreate:       res.CanCreate,
	}
}

func erase[T model.Entity](items []T) []model.Entity {
	if items == nil {
		return nil
	}
	out := make([]model.Entity, len(items))
	for i, item := range items {
		out[i] = item
	}
	return out
}
