package database

import (
	"fmt"
	"strings"

	"github.com/juju/errors"
)

// Dialect names a supported SQL flavour. The value doubles as the
// database/sql driver name where one is used.
type Dialect string

const (
	SQLite    Dialect = "sqlite"
	Postgres  Dialect = "postgres"
	MySQL     Dialect = "mysql"
	SQLServer Dialect = "sqlserver"
)

// ParseDialect maps a configured driver name onto a Dialect. The empty
// string selects SQLite.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	case "mysql", "mariadb":
		return MySQL, nil
	case "sqlserver", "mssql":
		return SQLServer, nil
	}
	return "", errors.NotValidf("store driver %q", s)
}

// Placeholder returns the bind marker for the n-th parameter, counting
// from 1.
func (d Dialect) Placeholder(n int) string {
	switch d {
	case Postgres:
		return fmt.Sprintf("$%d", n)
	case SQLServer:
		return fmt.Sprintf("@p%d", n)
	default:
		return "?"
	}
}

// IsFileBased reports whether the DSN is a path on disk.
func (d Dialect) IsFileBased() bool {
	return d == SQLite || d == ""
}

func (d Dialect) String() string {
	if d == "" {
		return string(SQLite)
	}
	return string(d)
}

// SelectText wraps a selected column so the store returns the value as it
// is stored. The SQLite driver turns DATE, DATETIME and TIMESTAMP columns
// into time values, and their rendering no longer matches the stored text
// when bound back as a parameter.
func (d Dialect) SelectText(column string) string {
	if d.IsFileBased() {
		return "CAST(" + column + " AS TEXT)"
	}
	return column
}
