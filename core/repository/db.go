package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Supported ledger drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DB is the ledger database holding job events and artifacts
type DB struct {
	*sql.DB
	driver string
}

var schemas = map[string][]string{
	DriverSQLite: {
		`CREATE TABLE IF NOT EXISTS job_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			job_id TEXT NOT NULL,
			run_id TEXT NOT NULL,
			operation TEXT NOT NULL,
			at TEXT NOT NULL,
			from_state TEXT,
			to_state TEXT NOT NULL,
			reason TEXT NOT NULL,
			meta_json TEXT NOT NULL DEFAULT '{}'
		)`,
		`CREATE INDEX IF NOT EXISTS job_events_job_id ON job_events (job_id)`,
		`CREATE TABLE IF NOT EXISTS job_artifacts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			job_id TEXT NOT NULL,
			run_id TEXT NOT NULL,
			type TEXT NOT NULL,
			uri TEXT NOT NULL,
			created_at TEXT NOT NULL,
			meta_json TEXT NOT NULL DEFAULT '{}'
		)`,
		`CREATE INDEX IF NOT EXISTS job_artifacts_job_id ON job_artifacts (job_id)`,
	},
	DriverPostgres: {
		`CREATE TABLE IF NOT EXISTS job_events (
			id BIGSERIAL PRIMARY KEY,
			job_id TEXT NOT NULL,
			run_id TEXT NOT NULL,
			operation TEXT NOT NULL,
			at TEXT NOT NULL,
			from_state TEXT,
			to_state TEXT NOT NULL,
			reason TEXT NOT NULL,
			meta_json TEXT NOT NULL DEFAULT '{}'
		)`,
		`CREATE INDEX IF NOT EXISTS job_events_job_id ON job_events (job_id)`,
		`CREATE TABLE IF NOT EXISTS job_artifacts (
			id BIGSERIAL PRIMARY KEY,
			job_id TEXT NOT NULL,
			run_id TEXT NOT NULL,
			type TEXT NOT NULL,
			uri TEXT NOT NULL,
			created_at TEXT NOT NULL,
			meta_json TEXT NOT NULL DEFAULT '{}'
		)`,
		`CREATE INDEX IF NOT EXISTS job_artifacts_job_id ON job_artifacts (job_id)`,
	},
}

// NewDB opens the ledger and creates its tables if needed
func NewDB(ctx context.Context, driver, dsn string) (*DB, error) {
	schema, ok := schemas[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported ledger driver: %s", driver)
	}

	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s ledger", driver)
	}
	if driver == DriverSQLite {
		// one writer at a time; concurrent job passes share this handle
		sqlDB.SetMaxOpenConns(1)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, errors.Wrapf(err, "failed to connect to %s ledger", driver)
	}

	db := &DB{DB: sqlDB, driver: driver}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			sqlDB.Close()
			return nil, errors.Wrap(err, "failed to migrate ledger")
		}
	}
	return db, nil
}

// Driver returns the driver name the ledger was opened with
func (db *DB) Driver() string {
	return db.driver
}

// rebind rewrites ? placeholders into the driver's bind syntax
func (db *DB) rebind(query string) string {
	if db.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
