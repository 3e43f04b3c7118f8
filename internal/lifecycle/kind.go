package lifecycle

import (
	"context"

	"umbrella-admin/internal/audit"
	"umbrella-admin/internal/model"
	"umbrella-admin/internal/repository"
	"umbrella-admin/internal/rights"
	"umbrella-admin/internal/state"
)

// Kind declares an entity type to the engine. Optional capabilities are
// expressed by leaving fields nil: a kind without States has no workflow, a
// kind without Contacts cannot be contacted, and so on.
type Kind[T model.Entity] struct {
	Name  string
	Label string

	// New returns a fresh zero instance. T must be a pointer type.
	New      func() T
	Snapshot func(T) audit.Snapshot

	// Policy nil means every right is denied; use rights.Unrestricted to
	// exempt a kind from checks.
	Policy *rights.Policy
	States *state.Definition[T]

	// UnitScoped kinds belong to a unit. AllowBlank lets them exist without
	// one, owned by the subject that created them.
	UnitScoped bool
	AllowBlank bool

	// Moderation names the status of items awaiting a decision by subjects
	// holding VALIDATE.
	Moderation string

	Validate func(ctx context.Context, entity T) map[string]string

	// Contacts maps contact group names to recipients.
	Contacts func(entity T) map[string][]string

	Hooks Hooks[T]
}

// Hooks run inside the mutation's transaction; an error aborts the whole
// mutation. tx gives access to the same transaction.
type Hooks[T model.Entity] struct {
	Saved          func(ctx context.Context, tx repository.Backend, s *model.Subject, entity T, created bool) error
	Deleted        func(ctx context.Context, tx repository.Backend, s *model.Subject, entity T) error
	Restored       func(ctx context.Context, tx repository.Backend, s *model.Subject, entity T) error
	StatusSwitched func(ctx context.Context, tx repository.Backend, s *model.Subject, entity T, from string, to string, bonus map[string]any) error

	// AfterSwitch runs once a status change has committed, outside the
	// transaction. Side effects such as mail belong here.
	AfterSwitch func(ctx context.Context, s *model.Subject, entity T, from string, to string)

	// CanDelete may veto a deletion with a reason.
	CanDelete func(ctx context.Context, s *model.Subject, entity T) (bool, string)
}

func (k Kind[T]) validate() error {
	fail := func(msg string) error { return &ConfigError{Kind: k.Name, Msg: msg} }

	switch {
	case k.Name == "":
		return fail("kind has no name")
	case k.New == nil:
		return fail("kind has no constructor")
	case k.Snapshot == nil:
		return fail("kind has no snapshot function")
	case k.AllowBlank && !k.UnitScoped:
		return fail("blank ownership requires a unit-scoped kind")
	case k.States != nil && len(k.States.States()) == 0:
		return fail("workflow declares no states")
	case k.Moderation != "" && (k.States == nil || !k.States.Declared(k.Moderation)):
		return fail("moderation state " + k.Moderation + " is not declared")
	}
	return nil
}

func (k Kind[T]) label() string {
	if k.Label != "" {
		return k.Label
	}
	return k.Name
}
