// Package lifecycle runs the uniform list, show, edit, delete, restore and
// status-switch operations for every registered entity kind.
package lifecycle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"umbrella-admin/internal/audit"
	"umbrella-admin/internal/event"
	"umbrella-admin/internal/model"
	"umbrella-admin/internal/repository"
	"umbrella-admin/internal/rights"
	"umbrella-admin/internal/state"
)

// Post-save destinations returned by Submit.
const (
	NextShow = "show"
	NextEdit = "edit"
	NextNew  = "new"
)

// newID is the id clients send to ask for a fresh instance.
const newID = "~"

type Orchestrator[T model.Entity] struct {
	engine *Engine
	kind   Kind[T]
}

func New[T model.Entity](engine *Engine, kind Kind[T]) (*Orchestrator[T], error) {
	if err := engine.validate(); err != nil {
		return nil, err
	}
	if err := kind.validate(); err != nil {
		return nil, err
	}
	return &Orchestrator[T]{engine: engine, kind: kind}, nil
}

type ListQuery struct {
	UnitID string
	Status []string
	Page   int
	Limit  int
}

type ListResult[T any] struct {
	Items           []T          `json:"items"`
	Meta            model.Meta   `json:"-"`
	CurrentUnit     *model.Unit  `json:"current_unit,omitempty"`
	SelectableUnits []model.Unit `json:"selectable_units,omitempty"`
	Moderables      []T          `json:"moderables,omitempty"`
	CanCreate       bool         `json:"can_create"`
}

// List returns the live entities visible at the requested unit. Unscoped
// listings show superusers every unscoped entity and everyone else only
// the entities they blank-own. For moderated kinds a subject without LIST
// still gets the moderation queue, with no items.
func (o *Orchestrator[T]) List(ctx context.Context, s *model.Subject, q ListQuery) (res ListResult[T], err error) {
	defer o.observe("list", time.Now(), &err)

	cur, err := o.resolveUnit(q.UnitID)
	if err != nil {
		return res, err
	}

	res = ListResult[T]{
		Items:       []T{},
		CurrentUnit: cur,
		CanCreate:   o.canOnUnit(s, rights.Create, cur),
	}
	if o.kind.UnitScoped {
		res.SelectableUnits = o.engine.Rights.Selectable(o.kind.Policy, s, rights.List, o.kind.Name)
	}
	if o.kind.Moderation != "" {
		if res.Moderables, err = o.moderables(ctx, s); err != nil {
			return res, err
		}
	}

	if !o.canOnUnit(s, rights.List, cur) {
		if len(res.Moderables) == 0 {
			return ListResult[T]{}, notFound(o.kind.label())
		}
		res.Meta = model.NewMeta(q.Page, q.Limit, 0)
		return res, nil
	}

	query := o.scopedQuery(s, cur, false)
	query.Status = q.Status
	if res.Items, res.Meta, err = o.page(ctx, query, q.Page, q.Limit); err != nil {
		return res, err
	}
	return res, nil
}

// ListRelated lists every live entity of a unit to subjects who may
// validate there. There is no unscoped mode: an empty unit means the root.
func (o *Orchestrator[T]) ListRelated(ctx context.Context, s *model.Subject, q ListQuery) (res ListResult[T], err error) {
	defer o.observe("list_related", time.Now(), &err)

	if !o.kind.UnitScoped {
		return res, notFound(o.kind.label())
	}
	cur, err := o.resolveUnitStrict(q.UnitID)
	if err != nil {
		return res, err
	}
	if !o.canOnUnit(s, rights.Validate, cur) {
		return res, notFound(o.kind.label())
	}

	query := model.EntityQuery{Kind: o.kind.Name, Unit: model.InUnit(cur.ID), Status: q.Status}
	items, meta, err := o.page(ctx, query, q.Page, q.Limit)
	if err != nil {
		return res, err
	}
	return ListResult[T]{
		Items:           items,
		Meta:            meta,
		CurrentUnit:     cur,
		SelectableUnits: o.engine.Rights.Selectable(o.kind.Policy, s, rights.Validate, o.kind.Name),
	}, nil
}

// ListDeleted returns soft-deleted entities at the requested unit to
// subjects allowed to restore there, most recently touched first.
func (o *Orchestrator[T]) ListDeleted(ctx context.Context, s *model.Subject, q ListQuery) (res ListResult[T], err error) {
	defer o.observe("list_deleted", time.Now(), &err)

	cur, err := o.resolveUnit(q.UnitID)
	if err != nil {
		return res, err
	}
	if !o.canOnUnit(s, rights.Restore, cur) {
		return res, notFound(o.kind.label())
	}

	records, err := repository.Collect(o.engine.Backend.Entities().Query(ctx, o.scopedQuery(s, cur, true)))
	if err != nil {
		return res, fmt.Errorf("list deleted %s: %w", o.kind.Name, err)
	}

	touched := make(map[string]time.Time, len(records))
	for _, rec := range records {
		last := rec.UpdatedAt
		history, err := o.engine.Backend.Audit().History(ctx, o.kind.Name, rec.ID)
		if err != nil {
			return res, fmt.Errorf("load history: %w", err)
		}
		if len(history) > 0 && history[0].OccurredAt.After(last) {
			last = history[0].OccurredAt
		}
		touched[rec.ID] = last
	}
	slices.SortStableFunc(records, func(a, b model.EntityRecord) int {
		return touched[b.ID].Compare(touched[a.ID])
	})

	meta := model.NewMeta(q.Page, q.Limit, len(records))
	start := min((meta.Page-1)*meta.Limit, len(records))
	end := min(start+meta.Limit, len(records))

	items := make([]T, 0, end-start)
	for _, rec := range records[start:end] {
		obj, err := o.decode(rec)
		if err != nil {
			return res, err
		}
		items = append(items, obj)
	}

	res = ListResult[T]{Items: items, Meta: meta, CurrentUnit: cur}
	if o.kind.UnitScoped {
		res.SelectableUnits = o.engine.Rights.Selectable(o.kind.Policy, s, rights.Restore, o.kind.Name)
	}
	return res, nil
}

// Export returns every live entity matching q, unpaged, to subjects holding
// EXPORT. An empty UnitID exports the whole organization, unscoped entities
// included, and requires EXPORT at the root.
func (o *Orchestrator[T]) Export(ctx context.Context, s *model.Subject, q ListQuery) (items []T, err error) {
	defer o.observe("export", time.Now(), &err)

	query := model.EntityQuery{Kind: o.kind.Name, Status: q.Status}
	var at *model.Unit
	if o.kind.UnitScoped {
		if at, err = o.resolveUnitStrict(q.UnitID); err != nil {
			return nil, err
		}
		if q.UnitID != "" {
			query.Unit = model.InUnit(at.ID)
		}
	}
	if !o.canOnUnit(s, rights.Export, at) {
		return nil, notFound(o.kind.label())
	}

	items = make([]T, 0)
	for rec, err := range o.engine.Backend.Entities().Query(ctx, query) {
		if err != nil {
			return nil, fmt.Errorf("export %s: %w", o.kind.Name, err)
		}
		obj, err := o.decode(rec)
		if err != nil {
			return nil, err
		}
		items = append(items, obj)
	}
	return items, nil
}

func (o *Orchestrator[T]) scopedQuery(s *model.Subject, cur *model.Unit, deleted bool) model.EntityQuery {
	query := model.EntityQuery{Kind: o.kind.Name, Deleted: deleted}
	if !o.kind.UnitScoped {
		return query
	}
	if cur != nil {
		query.Unit = model.InUnit(cur.ID)
		return query
	}
	query.Unit = model.InUnit("")
	if !s.Superuser {
		query.BlankOwnerID = s.ID
	}
	return query
}

func (o *Orchestrator[T]) page(ctx context.Context, query model.EntityQuery, page int, limit int) ([]T, model.Meta, error) {
	store := o.engine.Backend.Entities()

	total, err := store.Count(ctx, query)
	if err != nil {
		return nil, model.Meta{}, fmt.Errorf("count %s: %w", o.kind.Name, err)
	}
	meta := model.NewMeta(page, limit, total)
	query.Offset = (meta.Page - 1) * meta.Limit
	query.Limit = meta.Limit

	items := make([]T, 0, min(meta.Limit, total))
	for rec, err := range store.Query(ctx, query) {
		if err != nil {
			return nil, model.Meta{}, fmt.Errorf("list %s: %w", o.kind.Name, err)
		}
		obj, err := o.decode(rec)
		if err != nil {
			return nil, model.Meta{}, err
		}
		items = append(items, obj)
	}
	return items, meta, nil
}

func (o *Orchestrator[T]) moderables(ctx context.Context, s *model.Subject) ([]T, error) {
	out := make([]T, 0)
	query := model.EntityQuery{Kind: o.kind.Name, Status: []string{o.kind.Moderation}}
	for rec, err := range o.engine.Backend.Entities().Query(ctx, query) {
		if err != nil {
			return nil, fmt.Errorf("list moderables: %w", err)
		}
		obj, err := o.decode(rec)
		if err != nil {
			return nil, err
		}
		if o.can(s, rights.Validate, obj) {
			out = append(out, obj)
		}
	}
	return out, nil
}

type ShowResult[T any] struct {
	Entity      T                  `json:"entity"`
	Rights      []rights.Decision  `json:"rights"`
	History     []model.AuditEntry `json:"history"`
	CurrentUnit *model.Unit        `json:"current_unit,omitempty"`
	StatusLabel string             `json:"status_label,omitempty"`
	NextStates  []state.State      `json:"next_states,omitempty"`
}

// Show returns one live entity with the rights the subject holds on it and
// its history, newest first. CurrentUnit is the entity's unit, which callers
// should adopt as their current unit.
func (o *Orchestrator[T]) Show(ctx context.Context, s *model.Subject, id string) (res ShowResult[T], err error) {
	defer o.observe("show", time.Now(), &err)

	obj, err := o.load(ctx, s, id, rights.Show, false)
	if err != nil {
		return res, err
	}
	h := obj.Header()

	history, err := o.engine.Backend.Audit().History(ctx, o.kind.Name, h.ID)
	if err != nil {
		return res, fmt.Errorf("load history: %w", err)
	}

	cur, _ := o.unitOf(h)
	res = ShowResult[T]{
		Entity:      obj,
		Rights:      o.engine.Rights.Matrix(o.kind.Policy, s, rights.OnEntity(h, cur)),
		History:     history,
		CurrentUnit: cur,
	}
	if o.kind.States != nil {
		res.StatusLabel = o.kind.States.Label(h.Status)
		for _, key := range o.kind.States.Targets(h.Status) {
			res.NextStates = append(res.NextStates, state.State{Key: key, Label: o.kind.States.Label(key)})
		}
	}
	return res, nil
}

type SubmitRequest struct {
	// ID is empty or "~" to create.
	ID     string
	UnitID string
	Data   json.RawMessage
	Dest   string
}

type SubmitResult[T any] struct {
	Entity  T      `json:"entity"`
	Created bool   `json:"created"`
	Next    string `json:"next"`
}

// Submit creates or edits an entity from form data. Header fields (id,
// unit, owner, status, deletion flag) cannot be set through Data.
func (o *Orchestrator[T]) Submit(ctx context.Context, s *model.Subject, req SubmitRequest) (res SubmitResult[T], err error) {
	defer o.observe("submit", time.Now(), &err)

	created := req.ID == "" || req.ID == newID

	var obj T
	var before audit.Snapshot
	if created {
		obj, err = o.fresh(s, req.UnitID)
		if err != nil {
			return res, err
		}
		if !o.can(s, rights.Create, obj) {
			return res, notFound(o.kind.label())
		}
	} else {
		obj, err = o.load(ctx, s, req.ID, rights.Edit, false)
		if err != nil {
			return res, err
		}
		before = o.kind.Snapshot(obj)
	}

	header := *obj.Header()
	if len(bytes.TrimSpace(req.Data)) > 0 {
		dec := json.NewDecoder(bytes.NewReader(req.Data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(obj); err != nil {
			return res, invalid(map[string]string{"data": err.Error()})
		}
	}
	*obj.Header() = header

	if o.kind.Validate != nil {
		if fields := o.kind.Validate(ctx, obj); len(fields) > 0 {
			return res, invalid(fields)
		}
	}

	action := model.AuditEdited
	if created {
		action = model.AuditCreated
	}

	err = o.engine.Backend.Atomically(ctx, func(tx repository.Backend) error {
		if err := o.save(ctx, tx, obj); err != nil {
			return err
		}
		if o.kind.Hooks.Saved != nil {
			if err := o.kind.Hooks.Saved(ctx, tx, s, obj, created); err != nil {
				return fmt.Errorf("save hook: %w", err)
			}
		}
		_, err := o.engine.Recorder.Record(ctx, tx.Audit(), s, action, *obj.Header(), before, o.kind.Snapshot(obj))
		return err
	})
	if err != nil {
		return res, err
	}

	o.committed(s, obj, action, eventFor(action), "", "")

	next := NextShow
	switch req.Dest {
	case "":
	case NextNew:
		next = NextNew
	default:
		next = NextEdit
	}
	return SubmitResult[T]{Entity: obj, Created: created, Next: next}, nil
}

func (o *Orchestrator[T]) fresh(s *model.Subject, unitID string) (T, error) {
	obj := o.kind.New()
	h := obj.Header()
	*h = model.EntityHeader{Kind: o.kind.Name}
	if o.kind.States != nil {
		h.Status = o.kind.States.Initial()
	}
	if !o.kind.UnitScoped {
		return obj, nil
	}

	cur, err := o.resolveUnit(unitID)
	if err != nil {
		var zero T
		return zero, err
	}
	if cur != nil {
		h.UnitID = cur.ID
	} else {
		h.BlankOwnerID = s.ID
	}
	return obj, nil
}

type DeleteOutcome[T any] struct {
	Entity    T      `json:"entity"`
	CanDelete bool   `json:"can_delete"`
	Reason    string `json:"reason,omitempty"`
	Done      bool   `json:"done"`
}

// Delete soft-deletes a live entity when confirm is set; otherwise it only
// reports whether deletion is possible. An already deleted entity is not
// found.
func (o *Orchestrator[T]) Delete(ctx context.Context, s *model.Subject, id string, confirm bool) (res DeleteOutcome[T], err error) {
	defer o.observe("delete", time.Now(), &err)

	obj, err := o.load(ctx, s, id, rights.Delete, false)
	if err != nil {
		return res, err
	}

	res = DeleteOutcome[T]{Entity: obj, CanDelete: true}
	if o.kind.Hooks.CanDelete != nil {
		res.CanDelete, res.Reason = o.kind.Hooks.CanDelete(ctx, s, obj)
	}
	if !confirm {
		return res, nil
	}
	if !res.CanDelete {
		return res, &Error{Code: CodeDeleteVetoed, Message: res.Reason}
	}

	h := obj.Header()
	err = o.engine.Backend.Atomically(ctx, func(tx repository.Backend) error {
		if err := tx.Entities().SoftDelete(ctx, o.kind.Name, h.ID); err != nil {
			return fmt.Errorf("soft delete: %w", err)
		}
		h.Deleted = true
		if o.kind.Hooks.Deleted != nil {
			if err := o.kind.Hooks.Deleted(ctx, tx, s, obj); err != nil {
				return fmt.Errorf("delete hook: %w", err)
			}
		}
		_, err := o.engine.Recorder.Record(ctx, tx.Audit(), s, model.AuditDeleted, *h, nil, nil)
		return err
	})
	if err != nil {
		h.Deleted = false
		return res, err
	}

	o.committed(s, obj, model.AuditDeleted, event.TypeEntityDeleted, "", "")
	res.Done = true
	return res, nil
}

// Restore brings back a soft-deleted entity. A live entity is not found.
func (o *Orchestrator[T]) Restore(ctx context.Context, s *model.Subject, id string) (obj T, err error) {
	defer o.observe("restore", time.Now(), &err)

	obj, err = o.load(ctx, s, id, rights.Restore, true)
	if err != nil {
		return obj, err
	}

	h := obj.Header()
	err = o.engine.Backend.Atomically(ctx, func(tx repository.Backend) error {
		if err := tx.Entities().Restore(ctx, o.kind.Name, h.ID); err != nil {
			return fmt.Errorf("restore: %w", err)
		}
		h.Deleted = false
		if o.kind.Hooks.Restored != nil {
			if err := o.kind.Hooks.Restored(ctx, tx, s, obj); err != nil {
				return fmt.Errorf("restore hook: %w", err)
			}
		}
		_, err := o.engine.Recorder.Record(ctx, tx.Audit(), s, model.AuditRestored, *h, nil, nil)
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}

	o.committed(s, obj, model.AuditRestored, event.TypeEntityRestored, "", "")
	return obj, nil
}

type SwitchRequest struct {
	ID      string
	Dest    string
	Confirm bool
	Bonus   map[string]any
}

type SwitchOutcome[T any] struct {
	Entity       T              `json:"entity"`
	From         string         `json:"from"`
	To           string         `json:"to"`
	FromLabel    string         `json:"from_label"`
	ToLabel      string         `json:"to_label"`
	Decision     state.Decision `json:"decision"`
	Done         bool           `json:"done"`
	NoMoreAccess bool           `json:"no_more_access"`
}

// SwitchStatus moves an entity along its workflow when confirm is set;
// otherwise it only reports whether the move is allowed. NoMoreAccess tells
// the caller the subject lost SHOW through the transition.
func (o *Orchestrator[T]) SwitchStatus(ctx context.Context, s *model.Subject, req SwitchRequest) (res SwitchOutcome[T], err error) {
	defer o.observe("switch_status", time.Now(), &err)

	states := o.kind.States
	if states == nil {
		return res, &ConfigError{Kind: o.kind.Name, Msg: "kind has no workflow"}
	}

	obj, err := o.load(ctx, s, req.ID, rights.Show, false)
	if err != nil {
		return res, err
	}
	h := obj.Header()
	from := h.Status

	decision, err := states.Check(ctx, s, obj, from, req.Dest)
	if err != nil {
		return res, &ConfigError{Kind: o.kind.Name, Msg: err.Error()}
	}

	res = SwitchOutcome[T]{
		Entity:    obj,
		From:      from,
		To:        req.Dest,
		FromLabel: states.Label(from),
		ToLabel:   states.Label(req.Dest),
		Decision:  decision,
	}
	if !req.Confirm {
		return res, nil
	}
	if !decision.Allowed {
		return res, &Error{Code: CodeTransitionDenied, Message: decision.Reason}
	}
	if fields := states.ApplyBonus(req.Dest, obj, req.Bonus); len(fields) > 0 {
		return res, invalid(fields)
	}

	err = o.engine.Backend.Atomically(ctx, func(tx repository.Backend) error {
		h.Status = req.Dest
		if err := o.save(ctx, tx, obj); err != nil {
			return err
		}
		if o.kind.Hooks.StatusSwitched != nil {
			if err := o.kind.Hooks.StatusSwitched(ctx, tx, s, obj, from, req.Dest, req.Bonus); err != nil {
				return fmt.Errorf("status hook: %w", err)
			}
		}
		_, err := o.engine.Recorder.Transition(ctx, tx.Audit(), s, *h, res.FromLabel, res.ToLabel)
		return err
	})
	if err != nil {
		h.Status = from
		return res, err
	}

	o.committed(s, obj, model.AuditStateChanged, event.TypeEntityStatusChanged, from, req.Dest)
	if o.kind.Hooks.AfterSwitch != nil {
		o.kind.Hooks.AfterSwitch(ctx, s, obj, from, req.Dest)
	}
	res.Done = true
	res.NoMoreAccess = !o.can(s, rights.Show, obj)
	return res, nil
}

type ContactRequest struct {
	ID      string
	Group   string
	Subject string
	Message string
}

// Contact sends a message to one of the entity's contact groups.
func (o *Orchestrator[T]) Contact(ctx context.Context, s *model.Subject, req ContactRequest) (err error) {
	defer o.observe("contact", time.Now(), &err)

	if o.kind.Contacts == nil {
		return notFound(o.kind.label())
	}
	obj, err := o.load(ctx, s, req.ID, rights.Show, false)
	if err != nil {
		return err
	}

	fields := map[string]string{}
	recipients, ok := o.kind.Contacts(obj)[req.Group]
	if !ok {
		fields["group"] = "unknown contact group"
	}
	if req.Subject == "" {
		fields["subject"] = "this field is required"
	}
	if req.Message == "" {
		fields["message"] = "this field is required"
	}
	if len(fields) > 0 {
		return invalid(fields)
	}
	if o.engine.Notifier == nil {
		return &ConfigError{Kind: o.kind.Name, Msg: "no notifier configured"}
	}

	h := obj.Header()
	return o.engine.Notifier.Send(ctx, recipients, req.Subject, req.Message, map[string]any{
		"kind":   o.kind.Name,
		"id":     h.ID,
		"sender": s.Username,
		"group":  req.Group,
	})
}

// load fetches an entity and checks right on it. Missing entities, entities
// in the wrong deletion state and denied rights all look the same.
func (o *Orchestrator[T]) load(ctx context.Context, s *model.Subject, id string, right rights.Right, deleted bool) (T, error) {
	var zero T

	rec, err := o.engine.Backend.Entities().Get(ctx, o.kind.Name, id)
	if errors.Is(err, model.ErrEntityNotFound) {
		return zero, notFound(o.kind.label())
	}
	if err != nil {
		return zero, fmt.Errorf("load %s: %w", o.kind.Name, err)
	}
	if rec.Deleted != deleted {
		return zero, notFound(o.kind.label())
	}

	obj, err := o.decode(rec)
	if err != nil {
		return zero, err
	}
	if !o.can(s, right, obj) {
		return zero, notFound(o.kind.label())
	}
	return obj, nil
}

func (o *Orchestrator[T]) decode(rec model.EntityRecord) (T, error) {
	obj := o.kind.New()
	if len(rec.Data) > 0 {
		if err := json.Unmarshal(rec.Data, obj); err != nil {
			var zero T
			return zero, fmt.Errorf("decode %s %s: %w", o.kind.Name, rec.ID, err)
		}
	}
	*obj.Header() = rec.EntityHeader

	if o.kind.States != nil && !o.kind.States.Declared(rec.Status) {
		var zero T
		return zero, &ConfigError{Kind: o.kind.Name, Msg: fmt.Sprintf("stored status %q of %s is not declared", rec.Status, rec.ID)}
	}
	return obj, nil
}

// save persists obj and copies the stored header back onto it.
func (o *Orchestrator[T]) save(ctx context.Context, tx repository.Backend, obj T) error {
	data, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("encode %s: %w", o.kind.Name, err)
	}
	rec := model.EntityRecord{EntityHeader: *obj.Header(), Data: data}
	if err := tx.Entities().Save(ctx, &rec); err != nil {
		return fmt.Errorf("save %s: %w", o.kind.Name, err)
	}
	*obj.Header() = rec.EntityHeader
	return nil
}

// resolveUnit maps a requested unit id to the current unit. Unit-scoped
// kinds fall back to unscoped when blank ownership is allowed, otherwise to
// the root. Other kinds are always unscoped.
func (o *Orchestrator[T]) resolveUnit(unitID string) (*model.Unit, error) {
	if !o.kind.UnitScoped {
		return nil, nil
	}
	if unitID == "" {
		if o.kind.AllowBlank {
			return nil, nil
		}
		root := o.engine.Units.Root()
		return &root, nil
	}
	u, err := o.engine.Units.Resolve(unitID)
	if err != nil {
		return nil, notFound("unit")
	}
	return &u, nil
}

// resolveUnitStrict is resolveUnit without the unscoped fallback.
func (o *Orchestrator[T]) resolveUnitStrict(unitID string) (*model.Unit, error) {
	if unitID == "" {
		root := o.engine.Units.Root()
		return &root, nil
	}
	u, err := o.engine.Units.Resolve(unitID)
	if err != nil {
		return nil, notFound("unit")
	}
	return &u, nil
}

func (o *Orchestrator[T]) unitOf(h *model.EntityHeader) (*model.Unit, error) {
	if h.UnitID == "" {
		return nil, nil
	}
	u, err := o.engine.Units.Resolve(h.UnitID)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (o *Orchestrator[T]) can(s *model.Subject, right rights.Right, obj T) bool {
	h := obj.Header()
	u, err := o.unitOf(h)
	if err != nil {
		return false
	}
	return o.engine.Rights.Can(o.kind.Policy, s, right, rights.OnEntity(h, u))
}

func (o *Orchestrator[T]) canOnUnit(s *model.Subject, right rights.Right, u *model.Unit) bool {
	return o.engine.Rights.Can(o.kind.Policy, s, right, rights.OnUnit(o.kind.Name, u))
}

// committed runs the after-commit bookkeeping of a mutation.
func (o *Orchestrator[T]) committed(s *model.Subject, obj T, action model.AuditAction, typ event.Type, from string, to string) {
	h := obj.Header()
	o.engine.Rights.Expire(o.kind.Name, h.ID)
	o.engine.Metrics.AuditRecorded(o.kind.Name, string(action))
	o.engine.publish(event.Event{
		Type:    typ,
		ActorID: s.ID,
		Payload: event.EntityPayload{Kind: o.kind.Name, ID: h.ID, UnitID: h.UnitID, From: from, To: to},
	})
	o.engine.logger().Info("entity mutated", "kind", o.kind.Name, "id", h.ID, "action", action, "actor", s.Username)
}

func (o *Orchestrator[T]) observe(operation string, started time.Time, errp *error) {
	outcome := "ok"
	if err := *errp; err != nil {
		var userErr *Error
		var cfgErr *ConfigError
		switch {
		case errors.As(err, &userErr):
			outcome = string(userErr.Code)
		case errors.As(err, &cfgErr):
			outcome = "config_error"
			o.engine.logger().Error("lifecycle misconfiguration", "kind", o.kind.Name, "operation", operation, "error", err)
		default:
			outcome = "error"
		}
	}
	o.engine.Metrics.Observe(o.kind.Name, operation, outcome, time.Since(started))
}

func eventFor(action model.AuditAction) event.Type {
	if action == model.AuditCreated {
		return event.TypeEntityCreated
	}
	return event.TypeEntityEdited
}
