package database

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/juju/errors"
)

// pgxStore holds one PostgreSQL connection; there is no pool.
type pgxStore struct {
	conn *pgx.Conn
}

func openPostgres(ctx context.Context, cfg Config) (Store, error) {
	connCfg, err := pgx.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, errors.Annotate(err, "parsing connection string")
	}
	// Identifiers arrive as text; the simple protocol lets the server
	// coerce them to the column type instead of failing to encode.
	connCfg.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	conn, err := pgx.ConnectConfig(ctx, connCfg)
	if err != nil {
		return nil, errors.Annotate(err, "connect")
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close(ctx)
		return nil, errors.Annotate(err, "ping")
	}
	return &pgxStore{conn: conn}, nil
}

func (s *pgxStore) Dialect() Dialect { return Postgres }

func (s *pgxStore) Query(ctx context.Context, query string, args ...any) ([][]string, error) {
	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var out [][]string
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, errors.Annotate(err, "reading row")
		}
		row := make([]string, len(values))
		for i, v := range values {
			if v == nil {
				return nil, errors.Annotatef(NullValue, "column %s of row %d", fields[i].Name, len(out)+1)
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

func (s *pgxStore) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := s.conn.Exec(ctx, query, args...)
	if err != nil {
		return 0, errors.Trace(err)
	}
	return tag.RowsAffected(), nil
}

func (s *pgxStore) Ping(ctx context.Context) error {
	return errors.Trace(s.conn.Ping(ctx))
}

func (s *pgxStore) Close() error {
	return s.conn.Close(context.Background())
}
