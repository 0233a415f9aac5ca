// Package sqlstore opens the relational stores the converter reads from: the
// production Postgres database through pgx, or a local SQLite copy.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "modernc.org/sqlite"             // pure go sqlite driver
)

const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"

	defaultDSN = "postgres://localhost/geoportal?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex

	identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// OverrideSQLOpen swaps the function used to open connections and returns a restore
// func. Tests use it to inject stub databases.
func OverrideSQLOpen(fn func(driver, dsn string) (*sql.DB, error)) func() {
	openMu.Lock()
	prev := sqlOpen
	sqlOpen = fn
	openMu.Unlock()
	return func() {
		openMu.Lock()
		sqlOpen = prev
		openMu.Unlock()
	}
}

// Open connects and pings. An empty driver means Postgres, an empty dsn the local
// default database.
func Open(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	if driver == "" || driver == "postgres" {
		driver = DriverPostgres
	}
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(driver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return db, nil
}

// Table returns schema.table after checking both are plain identifiers, since they
// end up in SQL text. An empty schema yields the bare table name.
func Table(schema, table string) (string, error) {
	if !identPattern.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	if schema == "" {
		return table, nil
	}
	if !identPattern.MatchString(schema) {
		return "", fmt.Errorf("invalid schema name %q", schema)
	}
	return schema + "." + table, nil
}

// Placeholder returns the bind parameter marker for the n-th argument (1-based).
// Postgres numbers its markers, SQLite takes plain question marks.
func Placeholder(driver string, n int) string {
	if driver == DriverSQLite {
		return "?"
	}
	return fmt.Sprintf("$%d", n)
}
