package service

import (
	"context"
	"strings"
	"time"

	"umbrella-admin/internal/model"
	"umbrella-admin/internal/repository"
	"umbrella-admin/pkg/apierror"
)

// AuditFilter is the raw filter of an audit search, as received.
type AuditFilter struct {
	Kind     string
	EntityID string
	Action   string
	ActorID  string
	From     string
	To       string
	Page     int
	Limit    int
}

type AuditService struct {
	log repository.AuditLog
}

func NewAuditService(log repository.AuditLog) *AuditService {
	return &AuditService{log: log}
}

// Query searches the audit log across all kinds, newest first.
func (s *AuditService) Query(ctx context.Context, filter AuditFilter) ([]model.AuditEntry, model.Meta, error) {
	from, err := parseOptionalAuditTime(filter.From)
	if err != nil {
		return nil, model.Meta{}, apierror.BadRequest("invalid 'from' datetime format", filter.From)
	}

	to, err := parseOptionalAuditTime(filter.To)
	if err != nil {
		return nil, model.Meta{}, apierror.BadRequest("invalid 'to' datetime format", filter.To)
	}

	page, limit := model.NormalizePage(filter.Page, filter.Limit)
	return s.log.Query(ctx, model.AuditQuery{
		Kind:     strings.TrimSpace(filter.Kind),
		EntityID: strings.TrimSpace(filter.EntityID),
		Action:   strings.ToLower(strings.TrimSpace(filter.Action)),
		ActorID:  strings.TrimSpace(filter.ActorID),
		From:     from,
		To:       to,
		Page:     page,
		Limit:    limit,
	})
}

func parseOptionalAuditTime(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, nil
	}

	return parseAuditTime(trimmed)
}

func parseAuditTime(raw string) (time.Time, error) {
	if value, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return value.UTC(), nil
	}

	value, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, err
	}

	return value.UTC(), nil
}
