package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"umbrella-admin/internal/model"
)

// DirectoryRepository stores units, accounts and grants in Postgres.
type DirectoryRepository struct {
	q querier
}

func (r *DirectoryRepository) ListUnits(ctx context.Context) ([]model.Unit, error) {
	rows, err := r.q.Query(ctx, `SELECT id, parent_id, name, created_at FROM units ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list units: %w", err)
	}
	defer rows.Close()

	units := make([]model.Unit, 0)
	for rows.Next() {
		var u model.Unit
		if err := rows.Scan(&u.ID, &u.ParentID, &u.Name, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan unit: %w", err)
		}
		u.CreatedAt = u.CreatedAt.UTC()
		units = append(units, u)
	}
	return units, rows.Err()
}

func (r *DirectoryRepository) CreateUnit(ctx context.Context, u model.Unit) error {
	_, err := r.q.Exec(ctx,
		`INSERT INTO units (id, parent_id, name, created_at) VALUES ($1, $2, $3, $4)`,
		u.ID, u.ParentID, u.Name, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("create unit: %w", err)
	}
	return nil
}

func (r *DirectoryRepository) FindAccount(ctx context.Context, id string) (model.Account, error) {
	return r.findAccount(ctx, `id = $1`, id)
}

func (r *DirectoryRepository) FindAccountByUsername(ctx context.Context, username string) (model.Account, error) {
	return r.findAccount(ctx, `lower(username) = lower($1)`, strings.TrimSpace(username))
}

func (r *DirectoryRepository) findAccount(ctx context.Context, predicate string, arg string) (model.Account, error) {
	var a model.Account
	err := r.q.QueryRow(ctx,
		`SELECT id, username, password_hash, superuser, created_at FROM accounts WHERE `+predicate, arg).
		Scan(&a.ID, &a.Username, &a.PasswordHash, &a.Superuser, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Account{}, fmt.Errorf("account %s: %w", arg, model.ErrSubjectNotFound)
	}
	if err != nil {
		return model.Account{}, fmt.Errorf("find account: %w", err)
	}
	a.CreatedAt = a.CreatedAt.UTC()

	rows, err := r.q.Query(ctx,
		`SELECT unit_id, capability FROM grants WHERE subject_id = $1 ORDER BY unit_id, capability`, a.ID)
	if err != nil {
		return model.Account{}, fmt.Errorf("query grants: %w", err)
	}
	defer rows.Close()

	a.Grants = make([]model.Grant, 0)
	for rows.Next() {
		var g model.Grant
		if err := rows.Scan(&g.UnitID, &g.Capability); err != nil {
			return model.Account{}, fmt.Errorf("scan grant: %w", err)
		}
		a.Grants = append(a.Grants, g)
	}
	return a, rows.Err()
}

func (r *DirectoryRepository) CreateAccount(ctx context.Context, a model.Account) error {
	var exists bool
	if err := r.q.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM accounts WHERE lower(username) = lower($1))`, a.Username).Scan(&exists); err != nil {
		return fmt.Errorf("check username exists: %w", err)
	}
	if exists {
		return fmt.Errorf("account %s: %w", a.Username, model.ErrSubjectAlreadyExists)
	}

	_, err := r.q.Exec(ctx,
		`INSERT INTO accounts (id, username, password_hash, superuser, created_at) VALUES ($1, $2, $3, $4, $5)`,
		a.ID, a.Username, a.PasswordHash, a.Superuser, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	return r.SetGrants(ctx, a.ID, a.Grants)
}

func (r *DirectoryRepository) SetGrants(ctx context.Context, subjectID string, grants []model.Grant) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM grants WHERE subject_id = $1`, subjectID); err != nil {
		return fmt.Errorf("clear grants: %w", err)
	}
	for _, g := range grants {
		if _, err := r.q.Exec(ctx,
			`INSERT INTO grants (subject_id, unit_id, capability) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
			subjectID, g.UnitID, g.Capability); err != nil {
			return fmt.Errorf("insert grant: %w", err)
		}
	}
	return nil
}

func (r *DirectoryRepository) CountAccounts(ctx context.Context) (int, error) {
	var count int
	if err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count accounts: %w", err)
	}
	return count, nil
}
