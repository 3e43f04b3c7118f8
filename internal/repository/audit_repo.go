package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"umbrella-admin/internal/model"
)

type AuditRepository struct {
	q querier
}

const auditColumns = `id, kind, entity_id, action, actor_user_id, actor_username, occurred_at, payload`

func (r *AuditRepository) Append(ctx context.Context, entry *model.AuditEntry) error {
	var payload []byte
	if len(entry.Payload) > 0 {
		payload = entry.Payload
	}

	_, err := r.q.Exec(ctx,
		`INSERT INTO audit_entries (`+auditColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, entry.Kind, entry.EntityID, string(entry.Action),
		entry.Actor.UserID, entry.Actor.Username, entry.OccurredAt, payload)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

func (r *AuditRepository) History(ctx context.Context, kind string, entityID string) ([]model.AuditEntry, error) {
	rows, err := r.q.Query(ctx,
		`SELECT `+auditColumns+` FROM audit_entries
		 WHERE kind = $1 AND entity_id = $2
		 ORDER BY occurred_at DESC`, kind, entityID)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()
	return scanAuditRows(rows)
}

func (r *AuditRepository) Query(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error) {
	query.Page, query.Limit = model.NormalizePage(query.Page, query.Limit)

	where := make([]string, 0)
	args := make([]any, 0)
	argIdx := 1

	if kind := strings.TrimSpace(query.Kind); kind != "" {
		where = append(where, fmt.Sprintf("kind = $%d", argIdx))
		args = append(args, kind)
		argIdx++
	}
	if entityID := strings.TrimSpace(query.EntityID); entityID != "" {
		where = append(where, fmt.Sprintf("entity_id = $%d", argIdx))
		args = append(args, entityID)
		argIdx++
	}
	if action := strings.TrimSpace(query.Action); action != "" {
		where = append(where, fmt.Sprintf("lower(action) = lower($%d)", argIdx))
		args = append(args, action)
		argIdx++
	}
	if actorID := strings.TrimSpace(query.ActorID); actorID != "" {
		where = append(where, fmt.Sprintf("actor_user_id = $%d", argIdx))
		args = append(args, actorID)
		argIdx++
	}
	if !query.From.IsZero() {
		where = append(where, fmt.Sprintf("occurred_at >= $%d", argIdx))
		args = append(args, query.From)
		argIdx++
	}
	if !query.To.IsZero() {
		where = append(where, fmt.Sprintf("occurred_at <= $%d", argIdx))
		args = append(args, query.To)
		argIdx++
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.q.QueryRow(ctx, "SELECT COUNT(*) FROM audit_entries "+whereClause, args...).Scan(&total); err != nil {
		return nil, model.Meta{}, fmt.Errorf("count audit entries: %w", err)
	}
	meta := model.NewMeta(query.Page, query.Limit, total)

	offset := (query.Page - 1) * query.Limit
	dataQuery := fmt.Sprintf(
		`SELECT %s FROM audit_entries %s
		 ORDER BY occurred_at DESC
		 LIMIT $%d OFFSET $%d`, auditColumns, whereClause, argIdx, argIdx+1)
	args = append(args, query.Limit, offset)

	rows, err := r.q.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, model.Meta{}, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	entries, err := scanAuditRows(rows)
	if err != nil {
		return nil, model.Meta{}, err
	}
	return entries, meta, nil
}

func scanAuditRows(rows pgx.Rows) ([]model.AuditEntry, error) {
	entries := make([]model.AuditEntry, 0)
	for rows.Next() {
		var e model.AuditEntry
		var action string
		var payload []byte
		if err := rows.Scan(&e.ID, &e.Kind, &e.EntityID, &action,
			&e.Actor.UserID, &e.Actor.Username, &e.OccurredAt, &payload); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Action = model.AuditAction(action)
		e.OccurredAt = e.OccurredAt.UTC()
		if len(payload) > 0 {
			e.Payload = payload
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
