package database

import (
	"fmt"
	"strings"

	"github.com/xo/dburl"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Target is a parsed DATABASE_URL.
type Target struct {
	Driver string
	// DSN is what the driver opens: the original URL for Postgres, a file
	// path for SQLite.
	DSN string
	// Redacted is safe to log.
	Redacted string
}

// ParseURL maps DATABASE_URL to a backend. An empty URL selects the
// volatile in-memory backend.
func ParseURL(raw string) (Target, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == DriverMemory {
		return Target{Driver: DriverMemory, Redacted: DriverMemory}, nil
	}

	u, err := dburl.Parse(raw)
	if err != nil {
		return Target{}, fmt.Errorf("parse database url: %w", err)
	}

	switch u.Driver {
	case "postgres":
		return Target{Driver: DriverPostgres, DSN: raw, Redacted: u.Redacted()}, nil
	case "sqlite3":
		return Target{Driver: DriverSQLite, DSN: u.DSN, Redacted: u.Redacted()}, nil
	default:
		return Target{}, fmt.Errorf("unsupported database driver %q", u.Driver)
	}
}
