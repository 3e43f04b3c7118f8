package accounting

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"umbrella-admin/internal/lifecycle"
	"umbrella-admin/internal/model"
	"umbrella-admin/internal/unit"
)

// SubventionTotals sums the amounts of a group of subventions.
type SubventionTotals struct {
	Count         int     `json:"count"`
	AmountAsked   float64 `json:"amount_asked"`
	AmountGiven   float64 `json:"amount_given"`
	MobilityAsked float64 `json:"mobility_asked"`
	MobilityGiven float64 `json:"mobility_given"`
}

func (t *SubventionTotals) add(s *Subvention) {
	t.Count++
	t.AmountAsked += s.AmountAsked
	t.AmountGiven += s.AmountGiven
	t.MobilityAsked += s.MobilityAsked
	t.MobilityGiven += s.MobilityGiven
}

// SubventionStatistics splits totals between units and outside
// associations.
type SubventionStatistics struct {
	Units        SubventionTotals `json:"units"`
	Associations SubventionTotals `json:"associations"`
}

// RequesterLine is one subvention with the name of whoever asked for it.
type RequesterLine struct {
	Requester  string      `json:"requester"`
	Subvention *Subvention `json:"subvention"`
}

type YearReport struct {
	Year        *AccountingYear      `json:"year"`
	Subventions []RequesterLine      `json:"subventions"`
	Statistics  SubventionStatistics `json:"statistics"`
}

// Reports builds the treasury's subvention exports. Every report requires
// EXPORT on subventions for the whole organization.
type Reports struct {
	units       *unit.Hierarchy
	years       *lifecycle.Orchestrator[*AccountingYear]
	subventions *lifecycle.Orchestrator[*Subvention]
}

func NewReports(units *unit.Hierarchy, years *lifecycle.Orchestrator[*AccountingYear], subventions *lifecycle.Orchestrator[*Subvention]) *Reports {
	return &Reports{units: units, years: years, subventions: subventions}
}

// ReportsFrom looks up the accounting kinds Register added to reg.
func ReportsFrom(reg *lifecycle.Registry, units *unit.Hierarchy) (*Reports, error) {
	years, ok := lifecycle.Find[*AccountingYear](reg, YearKindName)
	if !ok {
		return nil, &lifecycle.ConfigError{Kind: YearKindName, Msg: "kind is not registered"}
	}
	subventions, ok := lifecycle.Find[*Subvention](reg, SubventionKindName)
	if !ok {
		return nil, &lifecycle.ConfigError{Kind: SubventionKindName, Msg: "kind is not registered"}
	}
	return NewReports(units, years, subventions), nil
}

// SubventionYear lists the live subventions of one accounting year ordered
// by requester name, with their statistics.
func (r *Reports) SubventionYear(ctx context.Context, s *model.Subject, yearID string) (YearReport, error) {
	all, err := r.subventions.Export(ctx, s, lifecycle.ListQuery{})
	if err != nil {
		return YearReport{}, err
	}
	year, err := r.years.Show(ctx, s, yearID)
	if err != nil {
		return YearReport{}, err
	}

	report := YearReport{Year: year.Entity, Subventions: make([]RequesterLine, 0)}
	for _, sub := range all {
		if sub.AccountingYearID != yearID {
			continue
		}
		if sub.Unscoped() {
			report.Statistics.Associations.add(sub)
		} else {
			report.Statistics.Units.add(sub)
		}
		report.Subventions = append(report.Subventions, RequesterLine{Requester: r.requester(sub), Subvention: sub})
	}
	slices.SortStableFunc(report.Subventions, func(a, b RequesterLine) int {
		return cmp.Compare(strings.ToLower(a.Requester), strings.ToLower(b.Requester))
	})
	return report, nil
}

func (r *Reports) requester(s *Subvention) string {
	if s.Unscoped() {
		return s.AssociationName
	}
	u, err := r.units.Resolve(s.UnitID)
	if err != nil {
		return fmt.Sprintf("unit %s", s.UnitID)
	}
	return u.Name
}
