package repository

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"umbrella-admin/internal/model"
)

type EntityRepository struct {
	q querier
}

const entityColumns = `id, kind, unit_id, blank_owner_id, deleted, status, data, created_at, updated_at`

func (r *EntityRepository) Get(ctx context.Context, kind string, id string) (model.EntityRecord, error) {
	row := r.q.QueryRow(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE kind = $1 AND id = $2`, kind, id)

	rec, err := scanEntity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.EntityRecord{}, fmt.Errorf("%s %s: %w", kind, id, model.ErrEntityNotFound)
	}
	if err != nil {
		return model.EntityRecord{}, fmt.Errorf("get entity: %w", err)
	}
	return rec, nil
}

func (r *EntityRepository) Save(ctx context.Context, rec *model.EntityRecord) error {
	now := time.Now().UTC()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	_, err := r.q.Exec(ctx,
		`INSERT INTO entities (`+entityColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO UPDATE SET
		   unit_id = EXCLUDED.unit_id,
		   blank_owner_id = EXCLUDED.blank_owner_id,
		   deleted = EXCLUDED.deleted,
		   status = EXCLUDED.status,
		   data = EXCLUDED.data,
		   updated_at = EXCLUDED.updated_at`,
		rec.ID, rec.Kind, rec.UnitID, rec.BlankOwnerID, rec.Deleted, rec.Status,
		[]byte(rec.Data), rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save entity: %w", err)
	}
	return nil
}

func (r *EntityRepository) SoftDelete(ctx context.Context, kind string, id string) error {
	return r.setDeleted(ctx, kind, id, true)
}

func (r *EntityRepository) Restore(ctx context.Context, kind string, id string) error {
	return r.setDeleted(ctx, kind, id, false)
}

func (r *EntityRepository) setDeleted(ctx context.Context, kind string, id string, deleted bool) error {
	tag, err := r.q.Exec(ctx,
		`UPDATE entities SET deleted = $3, updated_at = $4 WHERE kind = $1 AND id = $2`,
		kind, id, deleted, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set entity deleted=%t: %w", deleted, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, model.ErrEntityNotFound)
	}
	return nil
}

// Query streams matching records, newest first. The statement only runs
// once the sequence is iterated.
func (r *EntityRepository) Query(ctx context.Context, q model.EntityQuery) iter.Seq2[model.EntityRecord, error] {
	return func(yield func(model.EntityRecord, error) bool) {
		where, args := entityFilter(q)
		sql := `SELECT ` + entityColumns + ` FROM entities WHERE ` + where + ` ORDER BY created_at DESC, id`
		if q.Limit > 0 {
			args = append(args, q.Limit, q.Offset)
			sql += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
		}

		rows, err := r.q.Query(ctx, sql, args...)
		if err != nil {
			yield(model.EntityRecord{}, fmt.Errorf("query entities: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			rec, err := scanEntity(rows)
			if err != nil {
				yield(model.EntityRecord{}, fmt.Errorf("scan entity: %w", err))
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(model.EntityRecord{}, fmt.Errorf("iterate entities: %w", err))
		}
	}
}

func (r *EntityRepository) Count(ctx context.Context, q model.EntityQuery) (int, error) {
	where, args := entityFilter(q)
	var total int
	if err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM entities WHERE `+where, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count entities: %w", err)
	}
	return total, nil
}

func entityFilter(q model.EntityQuery) (string, []any) {
	where := []string{"kind = $1", "deleted = $2"}
	args := []any{q.Kind, q.Deleted}

	if q.Unit.Set {
		args = append(args, q.Unit.ID)
		where = append(where, fmt.Sprintf("unit_id = $%d", len(args)))
	}
	if q.BlankOwnerID != "" {
		args = append(args, q.BlankOwnerID)
		where = append(where, fmt.Sprintf("blank_owner_id = $%d", len(args)))
	}
	if len(q.Status) > 0 {
		args = append(args, q.Status)
		where = append(where, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	return strings.Join(where, " AND "), args
}

func scanEntity(row pgx.Row) (model.EntityRecord, error) {
	var rec model.EntityRecord
	var data []byte
	err := row.Scan(&rec.ID, &rec.Kind, &rec.UnitID, &rec.BlankOwnerID, &rec.Deleted,
		&rec.Status, &data, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return model.EntityRecord{}, err
	}
	rec.Data = data
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return rec, nil
}
