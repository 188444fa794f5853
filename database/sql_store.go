package database

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/juju/errors"
	_ "github.com/microsoft/go-mssqldb"
	_ "modernc.org/sqlite"
)

// sqlStore serves every dialect reachable through database/sql.
type sqlStore struct {
	db      *sql.DB
	dialect Dialect
}

func openSQLite(ctx context.Context, cfg Config) (Store, error) {
	s, err := openSQL(ctx, SQLite, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if cfg.ForeignKeys {
		if _, err := s.Exec(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			_ = s.Close()
			return nil, errors.Annotate(err, "enabling foreign keys")
		}
	}
	return s, nil
}

func openSQL(ctx context.Context, dialect Dialect, dsn string) (*sqlStore, error) {
	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, errors.Trace(err)
	}
	// One connection for the whole run; SQLite pragmas are per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Annotate(err, "ping")
	}
	return &sqlStore{db: db, dialect: dialect}, nil
}

func (s *sqlStore) Dialect() Dialect { return s.dialect }

func (s *sqlStore) Query(ctx context.Context, query string, args ...any) ([][]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, errors.Trace(err)
	}

	var out [][]string
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.Annotate(err, "scanning row")
		}
		row := make([]string, len(cols))
		for i, v := range values {
			if v == nil {
				return nil, errors.Annotatef(NullValue, "column %s of row %d", cols[i], len(out)+1)
			}
			row[i] = textValue(v)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Annotate(err, "iterating rows")
	}
	return out, nil
}

func (s *sqlStore) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, errors.Trace(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Annotate(err, "reading affected rows")
	}
	return n, nil
}

func (s *sqlStore) Ping(ctx context.Context) error {
	return errors.Trace(s.db.PingContext(ctx))
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}

// textValue renders a scanned driver value as the identifier text used for
// file names and child parameters.
func textValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case [16]byte:
		return fmt.Sprintf("%x-%x-%x-%x-%x", x[0:4], x[4:6], x[6:8], x[8:10], x[10:16])
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
