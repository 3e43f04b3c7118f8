package accounting

import (
	"context"
	"strings"
	"time"

	"umbrella-admin/internal/audit"
	"umbrella-admin/internal/lifecycle"
	"umbrella-admin/internal/model"
	"umbrella-admin/internal/rights"
	"umbrella-admin/internal/state"
)

const YearKindName = "accounting_year"

const (
	YearPreparing = "0_preparing"
	YearActive    = "1_active"
	YearClosing   = "2_closing"
	YearArchived  = "3_archived"
)

// AccountingYear is a fiscal period. Years are shared by every unit.
type AccountingYear struct {
	model.EntityHeader
	Name               string     `json:"name"`
	StartDate          time.Time  `json:"start_date"`
	EndDate            time.Time  `json:"end_date"`
	SubventionDeadline *time.Time `json:"subvention_deadline,omitempty"`
}

func YearKind(rootID string) lifecycle.Kind[*AccountingYear] {
	managers := rights.AnyOf(rights.Superuser(), rights.CapabilityAtRoot(CapTreasury, CapSecretariat))

	policy := rights.NewPolicy().
		Allow(rights.Show, rights.Authenticated()).
		Allow(rights.List, rights.Authenticated()).
		Allow(rights.Create, managers).
		Allow(rights.Edit, rights.AllOf(managers, rights.Not(rights.StatusIn(YearArchived)))).
		Allow(rights.Delete, managers).
		Allow(rights.Restore, managers)

	treasury := func(_ context.Context, s *model.Subject, _ *AccountingYear) (bool, string) {
		if treasurer(s, rootID) {
			return true, ""
		}
		return false, "only the treasury can change the state of an accounting year"
	}

	states := state.New[*AccountingYear](
		state.State{Key: YearPreparing, Label: "In preparation"},
		state.State{Key: YearActive, Label: "Active"},
		state.State{Key: YearClosing, Label: "Closing"},
		state.State{Key: YearArchived, Label: "Archived"},
	).
		Allow(YearPreparing, YearActive, treasury).
		Allow(YearActive, YearPreparing, treasury).
		Allow(YearActive, YearClosing, treasury).
		Allow(YearClosing, YearActive, treasury).
		Allow(YearClosing, YearArchived, treasury)

	return lifecycle.Kind[*AccountingYear]{
		Name:     YearKindName,
		Label:    "Accounting year",
		New:      func() *AccountingYear { return &AccountingYear{} },
		Snapshot: yearSnapshot,
		Policy:   policy,
		States:   states,
		Validate: validateYear,
		Hooks: lifecycle.Hooks[*AccountingYear]{
			CanDelete: func(_ context.Context, _ *model.Subject, y *AccountingYear) (bool, string) {
				if y.Status != YearPreparing {
					return false, "only accounting years in preparation can be deleted"
				}
				return true, ""
			},
		},
	}
}

func yearSnapshot(y *AccountingYear) audit.Snapshot {
	snap := audit.Snapshot{
		"name":       y.Name,
		"start_date": y.StartDate,
		"end_date":   y.EndDate,
	}
	if y.SubventionDeadline != nil {
		snap["subvention_deadline"] = *y.SubventionDeadline
	}
	return snap
}

func validateYear(_ context.Context, y *AccountingYear) map[string]string {
	fields := map[string]string{}
	if strings.TrimSpace(y.Name) == "" {
		fields["name"] = required
	}
	if y.StartDate.IsZero() {
		fields["start_date"] = required
	}
	if y.EndDate.IsZero() {
		fields["end_date"] = required
	}
	if !y.StartDate.IsZero() && !y.EndDate.IsZero() && !y.EndDate.After(y.StartDate) {
		fields["end_date"] = "must be after the start date"
	}
	if d := y.SubventionDeadline; d != nil && !y.EndDate.IsZero() && d.After(y.EndDate) {
		fields["subvention_deadline"] = "must be within the accounting year"
	}
	return fields
}
