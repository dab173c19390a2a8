package store

import (
	"context"
	"database/sql"
	"strings"
)

// StatusRepository probes the database for health information.
type StatusRepository struct {
	db     *sql.DB
	dbName string
}

func NewStatusRepository(db *sql.DB, dbName string) *StatusRepository {
	return &StatusRepository{db: db, dbName: dbName}
}

// DatabaseVersion returns the Postgres server version, e.g. "16.3".
func (r *StatusRepository) DatabaseVersion(ctx context.Context) (string, error) {
	var raw string
	if err := r.db.QueryRowContext(ctx, `SELECT version()`).Scan(&raw); err != nil {
		return "", err
	}
	// "PostgreSQL 16.3 on x86_64-pc-linux-gnu, ..." -> "16.3"
	fields := strings.Fields(raw)
	if len(fields) > 1 {
		return fields[1], nil
	}
	return raw, nil
}

// MaxConnections returns the server's max_connections setting.
func (r *StatusRepository) MaxConnections(ctx context.Context) (int, error) {
	var max int
	err := r.db.QueryRowContext(ctx, `SELECT setting::int FROM pg_settings WHERE name = 'max_connections'`).Scan(&max)
	return max, err
}

// OpenedConnections counts connections currently open against the database.
func (r *StatusRepository) OpenedConnections(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(
		ctx,
		`SELECT count(*)::int FROM pg_stat_activity WHERE datname = $1`,
		r.dbName,
	).Scan(&count)
	return count, err
}
