package accounting

import (
	"context"
	"fmt"
	"strings"

	"umbrella-admin/internal/audit"
	"umbrella-admin/internal/lifecycle"
	"umbrella-admin/internal/model"
	"umbrella-admin/internal/rights"
	"umbrella-admin/internal/state"
)

const SubventionKindName = "subvention"

const (
	SubventionDraft     = "0_draft"
	SubventionSubmitted = "1_submited"
	SubventionTreated   = "2_treated"
)

// Subvention is a funding request for one accounting year. Units file them,
// and so do outside associations, which own their requests without a unit.
type Subvention struct {
	model.EntityHeader
	Name             string  `json:"name"`
	AccountingYearID string  `json:"accounting_year_id"`
	AssociationName  string  `json:"association_name,omitempty"`
	ContactEmail     string  `json:"contact_email"`
	Description      string  `json:"description"`
	AmountAsked      float64 `json:"amount_asked"`
	AmountGiven      float64 `json:"amount_given"`
	MobilityAsked    float64 `json:"mobility_asked"`
	MobilityGiven    float64 `json:"mobility_given"`
	Comment          string  `json:"comment,omitempty"`
}

func SubventionKind(rootID string, years yearLookup, mail mailer) lifecycle.Kind[*Subvention] {
	treasury := rights.AnyOf(rights.Superuser(), rights.CapabilityAtRoot(CapTreasury))
	owners := rights.AnyOf(rights.Capability(CapPresidency, CapTreasury), rights.BlankOwner())
	draft := rights.StatusIn(SubventionDraft)

	policy := rights.NewPolicy().
		Allow(rights.Show, rights.AnyOf(treasury, owners)).
		Allow(rights.List, rights.AnyOf(treasury, owners)).
		Allow(rights.Create, rights.AnyOf(treasury, owners)).
		Allow(rights.Edit, rights.AnyOf(treasury, rights.AllOf(owners, draft))).
		Allow(rights.Delete, rights.AnyOf(treasury, rights.AllOf(owners, draft))).
		Allow(rights.Validate, treasury).
		Allow(rights.Restore, treasury).
		Allow(rights.Export, treasury)

	asked := func(_ context.Context, _ *model.Subject, s *Subvention) (bool, string) {
		if s.AmountAsked <= 0 && s.MobilityAsked <= 0 {
			return false, "ask for an amount before submitting"
		}
		return true, ""
	}
	onlyTreasury := func(_ context.Context, s *model.Subject, _ *Subvention) (bool, string) {
		if treasurer(s, rootID) {
			return true, ""
		}
		return false, "only the treasury can treat a subvention"
	}

	states := state.New[*Subvention](
		state.State{Key: SubventionDraft, Label: "Draft"},
		state.State{Key: SubventionSubmitted, Label: "Submitted"},
		state.State{Key: SubventionTreated, Label: "Treated"},
	).
		Allow(SubventionDraft, SubventionSubmitted, asked).
		Allow(SubventionSubmitted, SubventionDraft, nil).
		Allow(SubventionSubmitted, SubventionTreated, onlyTreasury).
		Bonus(SubventionTreated, state.BonusForm[*Subvention]{
			Fields: []string{"amount_given"},
			Apply:  applyTreatment,
		})

	return lifecycle.Kind[*Subvention]{
		Name:       SubventionKindName,
		Label:      "Subvention",
		New:        func() *Subvention { return &Subvention{} },
		Snapshot:   subventionSnapshot,
		Policy:     policy,
		States:     states,
		UnitScoped: true,
		AllowBlank: true,
		Moderation: SubventionSubmitted,
		Validate: func(ctx context.Context, s *Subvention) map[string]string {
			return validateSubvention(ctx, s, years)
		},
		Contacts: func(s *Subvention) map[string][]string {
			return map[string][]string{"requester": recipients(s.ContactEmail)}
		},
		Hooks: lifecycle.Hooks[*Subvention]{
			CanDelete: func(_ context.Context, _ *model.Subject, s *Subvention) (bool, string) {
				if s.Status == SubventionTreated {
					return false, "treated subventions are kept for the accounts"
				}
				return true, ""
			},
			AfterSwitch: func(ctx context.Context, _ *model.Subject, s *Subvention, _ string, to string) {
				if to == SubventionTreated {
					body := fmt.Sprintf("Your subvention request %q was treated: %.2f CHF granted, %.2f CHF for mobility.", s.Name, s.AmountGiven, s.MobilityGiven)
					mail.send(ctx, s.ContactEmail, "Subvention "+s.Name, body, s.Header())
				}
			},
		},
	}
}

func applyTreatment(s *Subvention, data map[string]any) map[string]string {
	fields := map[string]string{}

	given, ok := number(data["amount_given"])
	switch {
	case !ok:
		fields["amount_given"] = "must be a number"
	case given < 0:
		fields["amount_given"] = "cannot be negative"
	}

	mobility := s.MobilityGiven
	if v, present := data["mobility_given"]; present && v != nil {
		m, ok := number(v)
		if !ok || m < 0 {
			fields["mobility_given"] = "must be a positive number"
		}
		mobility = m
	}
	if len(fields) > 0 {
		return fields
	}

	s.AmountGiven = given
	s.MobilityGiven = mobility
	if c, ok := data["comment"].(string); ok {
		s.Comment = c
	}
	return nil
}

func subventionSnapshot(s *Subvention) audit.Snapshot {
	return audit.Snapshot{
		"name":               s.Name,
		"accounting_year_id": s.AccountingYearID,
		"association_name":   s.AssociationName,
		"contact_email":      s.ContactEmail,
		"description":        s.Description,
		"amount_asked":       s.AmountAsked,
		"amount_given":       s.AmountGiven,
		"mobility_asked":     s.MobilityAsked,
		"mobility_given":     s.MobilityGiven,
		"comment":            s.Comment,
	}
}

func validateSubvention(ctx context.Context, s *Subvention, years yearLookup) map[string]string {
	fields := map[string]string{}
	if strings.TrimSpace(s.Name) == "" {
		fields["name"] = required
	}
	if s.Unscoped() && strings.TrimSpace(s.AssociationName) == "" {
		fields["association_name"] = "required for requests made outside a unit"
	}
	if strings.TrimSpace(s.ContactEmail) == "" {
		fields["contact_email"] = required
	} else if !strings.Contains(s.ContactEmail, "@") {
		fields["contact_email"] = "not a valid email address"
	}
	if s.AmountAsked < 0 {
		fields["amount_asked"] = "cannot be negative"
	}
	if s.MobilityAsked < 0 {
		fields["mobility_asked"] = "cannot be negative"
	}
	if s.Status != SubventionTreated && (s.AmountGiven != 0 || s.MobilityGiven != 0) {
		fields["amount_given"] = "granted amounts are set when the request is treated"
	}
	if msg := years.check(ctx, s.AccountingYearID); msg != "" {
		fields["accounting_year_id"] = msg
	}
	return fields
}
