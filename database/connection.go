package database

import (
	"context"
	"strings"

	"github.com/juju/errors"
)

// Config selects a driver and how to reach the store.
type Config struct {
	Driver Dialect
	// DSN is the file path for SQLite and a connection string otherwise.
	DSN string
	// ForeignKeys turns on foreign key enforcement for SQLite connections.
	ForeignKeys bool
}

// NullValue is returned by Store.Query for a NULL in any selected column.
// Selected values become record ids and parameters, and NULL has no text
// form that could stand for it.
const NullValue = errors.ConstError("NULL value in query result")

// Store is the single connection the pruner works through. Values are
// always bound as parameters; callers embed only validated identifiers.
type Store interface {
	// Dialect reports the SQL flavour, used for placeholders and
	// introspection queries.
	Dialect() Dialect
	// Query runs a statement and returns every row with each column
	// rendered as text. A NULL fails the query with NullValue.
	Query(ctx context.Context, query string, args ...any) ([][]string, error)
	// Exec runs a statement and returns the number of affected rows.
	Exec(ctx context.Context, query string, args ...any) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

// Open connects to the store described by cfg and checks it answers.
func Open(ctx context.Context, cfg Config) (Store, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.NotValidf("empty %s connection string", cfg.Driver)
	}
	var (
		store Store
		err   error
	)
	switch cfg.Driver {
	case SQLite, "":
		store, err = openSQLite(ctx, cfg)
	case Postgres:
		store, err = openPostgres(ctx, cfg)
	case MySQL, SQLServer:
		store, err = openSQL(ctx, cfg.Driver, cfg.DSN)
	default:
		return nil, errors.NotSupportedf("driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, errors.Annotatef(err, "opening %s store", cfg.Driver)
	}
	return store, nil
}

// QueryStrings runs a query and returns the first column of every row.
func QueryStrings(ctx context.Context, s Store, query string, args ...any) ([]string, error) {
	rows, err := s.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			return nil, errors.Errorf("query returned no columns")
		}
		out = append(out, row[0])
	}
	return out, nil
}
