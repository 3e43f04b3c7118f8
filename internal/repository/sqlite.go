package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"umbrella-admin/internal/model"
)

// storedAccount keeps the password hash, which model.Account hides from JSON.
type storedAccount struct {
	model.Subject
	PasswordHash string `json:"password_hash"`
}

var sqliteBuckets = []string{"entities", "audit", "units", "accounts"}

// NewSQLiteBackend returns an in-memory backend whose committed state is
// snapshotted into a single SQLite table, one JSON payload per bucket.
func NewSQLiteBackend(ctx context.Context, db *sql.DB) (*MemoryBackend, error) {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("create state table: %w", err)
	}

	state, err := loadSQLiteState(ctx, db)
	if err != nil {
		return nil, err
	}

	b := NewMemoryBackend()
	b.state = state
	b.persist = func(s *memState) error {
		return persistSQLiteState(context.WithoutCancel(ctx), db, s)
	}
	return b, nil
}

func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return db, nil
}

func loadSQLiteState(ctx context.Context, db *sql.DB) (*memState, error) {
	rows, err := db.QueryContext(ctx, `SELECT bucket, payload FROM state`)
	if err != nil {
		return nil, fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()

	state := newMemState()
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return nil, fmt.Errorf("scan state: %w", err)
		}

		switch bucket {
		case "entities":
			err = json.Unmarshal(payload, &state.Entities)
		case "audit":
			err = json.Unmarshal(payload, &state.Audit)
		case "units":
			err = json.Unmarshal(payload, &state.Units)
		case "accounts":
			var accounts map[string]storedAccount
			if err = json.Unmarshal(payload, &accounts); err == nil {
				for id, a := range accounts {
					state.Accounts[id] = model.Account{Subject: a.Subject, PasswordHash: a.PasswordHash}
				}
			}
		}
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", bucket, err)
		}
	}
	return state, rows.Err()
}

func persistSQLiteState(ctx context.Context, db *sql.DB, s *memState) (retErr error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin sqlite transaction: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	for _, bucket := range sqliteBuckets {
		var data []byte
		switch bucket {
		case "entities":
			data, err = json.Marshal(s.Entities)
		case "audit":
			data, err = json.Marshal(s.Audit)
		case "units":
			data, err = json.Marshal(s.Units)
		case "accounts":
			accounts := make(map[string]storedAccount, len(s.Accounts))
			for id, a := range s.Accounts {
				accounts[id] = storedAccount{Subject: a.Subject, PasswordHash: a.PasswordHash}
			}
			data, err = json.Marshal(accounts)
		}
		if err != nil {
			return fmt.Errorf("encode %s: %w", bucket, err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO state (bucket, payload) VALUES (?, ?)
			 ON CONFLICT(bucket) DO UPDATE SET payload = excluded.payload`, bucket, data); err != nil {
			return fmt.Errorf("write %s: %w", bucket, err)
		}
	}
	return tx.Commit()
}
