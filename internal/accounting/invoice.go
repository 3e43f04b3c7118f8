package accounting

import (
	"context"
	"fmt"
	"math"
	"strings"

	"umbrella-admin/internal/audit"
	"umbrella-admin/internal/lifecycle"
	"umbrella-admin/internal/model"
	"umbrella-admin/internal/rights"
	"umbrella-admin/internal/state"
)

const InvoiceKindName = "invoice"

const (
	InvoicePreparing = "0_preparing"
	InvoiceNeedBVR   = "1_need_bvr"
	InvoiceSent      = "2_sent"
	InvoiceArchived  = "3_archived"
	InvoiceCanceled  = "4_canceled"
)

type InvoiceLine struct {
	Label     string  `json:"label"`
	Quantity  float64 `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

// Invoice is a bill a unit sends to an outside client. A BVR is the payment
// slip reference the treasury assigns before sending.
type Invoice struct {
	model.EntityHeader
	Title            string        `json:"title"`
	AccountingYearID string        `json:"accounting_year_id"`
	ClientName       string        `json:"client_name"`
	ClientAddress    string        `json:"client_address"`
	ClientEmail      string        `json:"client_email"`
	Lines            []InvoiceLine `json:"lines"`
	BVRReference     string        `json:"bvr_reference,omitempty"`
	Annex            bool          `json:"annex"`
}

// Total is the sum of all lines, rounded to the cent.
func (i *Invoice) Total() float64 {
	var sum float64
	for _, l := range i.Lines {
		sum += l.Quantity * l.UnitPrice
	}
	return math.Round(sum*100) / 100
}

func InvoiceKind(rootID string, years yearLookup, mail mailer) lifecycle.Kind[*Invoice] {
	staff := rights.AnyOf(rights.Superuser(), rights.Capability(CapTreasury, CapPresidency))
	treasury := rights.AnyOf(rights.Superuser(), rights.CapabilityAtRoot(CapTreasury))

	policy := rights.NewPolicy().
		Allow(rights.Show, staff).
		Allow(rights.List, staff).
		Allow(rights.Create, staff).
		Allow(rights.Edit, rights.AnyOf(treasury, rights.AllOf(staff, rights.StatusIn(InvoicePreparing)))).
		Allow(rights.Delete, rights.AllOf(staff, rights.StatusIn(InvoicePreparing, InvoiceCanceled))).
		Allow(rights.Restore, treasury).
		Allow(rights.Export, staff)

	onlyTreasury := func(_ context.Context, s *model.Subject, _ *Invoice) (bool, string) {
		if treasurer(s, rootID) {
			return true, ""
		}
		return false, "only the treasury can do this"
	}
	hasLines := func(_ context.Context, _ *model.Subject, i *Invoice) (bool, string) {
		if len(i.Lines) == 0 {
			return false, "an invoice needs at least one line"
		}
		return true, ""
	}
	always := func(context.Context, *model.Subject, *Invoice) (bool, string) { return true, "" }

	states := state.New[*Invoice](
		state.State{Key: InvoicePreparing, Label: "In preparation"},
		state.State{Key: InvoiceNeedBVR, Label: "Waiting for a BVR"},
		state.State{Key: InvoiceSent, Label: "Sent"},
		state.State{Key: InvoiceArchived, Label: "Archived"},
		state.State{Key: InvoiceCanceled, Label: "Canceled"},
	).
		Allow(InvoicePreparing, InvoiceNeedBVR, hasLines).
		Allow(InvoicePreparing, InvoiceSent, hasLines).
		Allow(InvoicePreparing, InvoiceCanceled, always).
		Allow(InvoiceNeedBVR, InvoicePreparing, always).
		Allow(InvoiceNeedBVR, InvoiceSent, onlyTreasury).
		Allow(InvoiceNeedBVR, InvoiceCanceled, always).
		Allow(InvoiceSent, InvoiceArchived, onlyTreasury).
		Allow(InvoiceSent, InvoiceCanceled, onlyTreasury).
		Allow(InvoiceCanceled, InvoicePreparing, always)

	return lifecycle.Kind[*Invoice]{
		Name:       InvoiceKindName,
		Label:      "Invoice",
		New:        func() *Invoice { return &Invoice{} },
		Snapshot:   invoiceSnapshot,
		Policy:     policy,
		States:     states,
		UnitScoped: true,
		Validate: func(ctx context.Context, i *Invoice) map[string]string {
			return validateInvoice(ctx, i, years)
		},
		Contacts: func(i *Invoice) map[string][]string {
			return map[string][]string{"client": recipients(i.ClientEmail)}
		},
		Hooks: lifecycle.Hooks[*Invoice]{
			AfterSwitch: func(ctx context.Context, _ *model.Subject, i *Invoice, _ string, to string) {
				if to != InvoiceSent {
					return
				}
				body := fmt.Sprintf("Please find invoice %q for %.2f CHF.", i.Title, i.Total())
				if i.BVRReference != "" {
					body += " Payment reference: " + i.BVRReference + "."
				}
				mail.send(ctx, i.ClientEmail, "Invoice "+i.Title, body, i.Header())
			},
		},
	}
}

func invoiceSnapshot(i *Invoice) audit.Snapshot {
	lines := make([]string, 0, len(i.Lines))
	for _, l := range i.Lines {
		lines = append(lines, fmt.Sprintf("%s: %g x %.2f", l.Label, l.Quantity, l.UnitPrice))
	}
	return audit.Snapshot{
		"title":              i.Title,
		"accounting_year_id": i.AccountingYearID,
		"client_name":        i.ClientName,
		"client_address":     i.ClientAddress,
		"client_email":       i.ClientEmail,
		"lines":              lines,
		"bvr_reference":      i.BVRReference,
		"annex":              i.Annex,
	}
}

func validateInvoice(ctx context.Context, i *Invoice, years yearLookup) map[string]string {
	fields := map[string]string{}
	if strings.TrimSpace(i.Title) == "" {
		fields["title"] = required
	}
	if strings.TrimSpace(i.ClientName) == "" {
		fields["client_name"] = required
	}
	if i.ClientEmail != "" && !strings.Contains(i.ClientEmail, "@") {
		fields["client_email"] = "not a valid email address"
	}
	for n, l := range i.Lines {
		key := fmt.Sprintf("lines[%d]", n)
		switch {
		case strings.TrimSpace(l.Label) == "":
			fields[key] = "label is required"
		case l.Quantity <= 0:
			fields[key] = "quantity must be positive"
		}
	}
	if msg := years.check(ctx, i.AccountingYearID); msg != "" {
		fields["accounting_year_id"] = msg
	}
	return fields
}
