// Package accounting declares the business object kinds of the umbrella
// organization and registers them with the lifecycle engine.
package accounting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"umbrella-admin/internal/lifecycle"
	"umbrella-admin/internal/model"
	"umbrella-admin/internal/notify"
	"umbrella-admin/internal/repository"
)

// Capabilities granted to subjects in units.
const (
	CapTreasury    = "TRESORERIE"
	CapSecretariat = "SECRETARIAT"
	CapPresidency  = "PRESIDENCE"
)

const required = "this field is required"

// Register adds every accounting kind to reg.
func Register(reg *lifecycle.Registry, engine *lifecycle.Engine) error {
	rootID := engine.Units.Root().ID
	lookup := yearLookup{store: engine.Backend}
	mailer := mailer{notifier: engine.Notifier, logger: engine.Logger}

	if _, err := lifecycle.Register(reg, engine, YearKind(rootID)); err != nil {
		return fmt.Errorf("register accounting years: %w", err)
	}
	if _, err := lifecycle.Register(reg, engine, InvoiceKind(rootID, lookup, mailer)); err != nil {
		return fmt.Errorf("register invoices: %w", err)
	}
	if _, err := lifecycle.Register(reg, engine, SubventionKind(rootID, lookup, mailer)); err != nil {
		return fmt.Errorf("register subventions: %w", err)
	}
	return nil
}

// treasurer reports whether s may act for the treasury of the whole
// organization.
func treasurer(s *model.Subject, rootID string) bool {
	return s.Superuser || s.HasGrant(rootID, CapTreasury)
}

type yearLookup struct {
	store repository.Backend
}

// check returns a field message when yearID does not name a live accounting
// year open for new documents.
func (l yearLookup) check(ctx context.Context, yearID string) string {
	if strings.TrimSpace(yearID) == "" {
		return required
	}
	if l.store == nil {
		return ""
	}
	rec, err := l.store.Entities().Get(ctx, YearKindName, yearID)
	if errors.Is(err, model.ErrEntityNotFound) || (err == nil && rec.Deleted) {
		return "unknown accounting year"
	}
	if err != nil {
		slog.Warn("accounting year lookup failed", "year_id", yearID, "error", err)
		return "accounting year could not be checked"
	}
	if rec.Status == YearArchived {
		return "this accounting year is archived"
	}
	return ""
}

// mailer sends status notifications. Failures are logged and never abort
// the mutation that triggered them.
type mailer struct {
	notifier notify.Notifier
	logger   *slog.Logger
}

func (m mailer) send(ctx context.Context, to string, subject string, body string, h *model.EntityHeader) {
	if m.notifier == nil || to == "" {
		return
	}
	err := m.notifier.Send(ctx, []string{to}, subject, body, map[string]any{"kind": h.Kind, "id": h.ID})
	if err != nil {
		logger := m.logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("notification failed", "kind", h.Kind, "id", h.ID, "error", err)
	}
}

func recipients(addrs ...string) []string {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

// number reads a numeric bonus value, which JSON decoding delivers as
// float64 or json.Number.
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
