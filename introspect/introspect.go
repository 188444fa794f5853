package introspect

import (
	"context"
	"sort"
	"strconv"

	"github.com/juju/errors"

	"github.com/ridoystarlord/archiveprune/database"
	"github.com/ridoystarlord/archiveprune/schema"
)

// queries holds the two metadata statements of one dialect. The columns
// query binds the table name as its only parameter and returns name, type
// and ordinal position.
type queries struct {
	tables  string
	columns string
}

var dialectQueries = map[database.Dialect]queries{
	database.SQLite: {
		tables: `
	SELECT name FROM sqlite_master
	WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
	ORDER BY name;
	`,
		columns: `
	SELECT name, type, cid FROM pragma_table_info(?)
	ORDER BY cid;
	`,
	},
	database.Postgres: {
		tables: `
	SELECT table_name
	FROM information_schema.tables
	WHERE table_schema = 'public' AND table_type = 'BASE TABLE'
	ORDER BY table_name;
	`,
		columns: `
	SELECT column_name, data_type, ordinal_position
	FROM information_schema.columns
	WHERE table_schema = 'public' AND table_name = $1
	ORDER BY ordinal_position;
	`,
	},
	database.MySQL: {
		tables: `
	SELECT TABLE_NAME
	FROM information_schema.TABLES
	WHERE TABLE_SCHEMA = DATABASE() AND TABLE_TYPE = 'BASE TABLE'
	ORDER BY TABLE_NAME;
	`,
		columns: `
	SELECT COLUMN_NAME, COLUMN_TYPE, ORDINAL_POSITION
	FROM information_schema.COLUMNS
	WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?
	ORDER BY ORDINAL_POSITION;
	`,
	},
	database.SQLServer: {
		tables: `
	SELECT TABLE_NAME
	FROM INFORMATION_SCHEMA.TABLES
	WHERE TABLE_SCHEMA = 'dbo' AND TABLE_TYPE = 'BASE TABLE' AND TABLE_NAME <> 'sysdiagrams'
	ORDER BY TABLE_NAME;
	`,
		columns: `
	SELECT COLUMN_NAME, DATA_TYPE, ORDINAL_POSITION
	FROM INFORMATION_SCHEMA.COLUMNS
	WHERE TABLE_SCHEMA = 'dbo' AND TABLE_NAME = @p1
	ORDER BY ORDINAL_POSITION;
	`,
	},
}

// Tables returns every user table of the store with its columns in
// declared order. Tables are sorted by name so the result does not depend
// on the store's collation.
func Tables(ctx context.Context, store database.Store) ([]schema.Table, error) {
	q, ok := dialectQueries[store.Dialect()]
	if !ok {
		return nil, errors.NotSupportedf("introspecting %s", store.Dialect())
	}

	names, err := database.QueryStrings(ctx, store, q.tables)
	if err != nil {
		return nil, errors.Annotate(err, "querying tables")
	}
	sort.Strings(names)

	tables := make([]schema.Table, 0, len(names))
	for _, name := range names {
		columns, err := getColumns(ctx, store, q.columns, name)
		if err != nil {
			return nil, errors.Annotatef(err, "getting columns for table %s", name)
		}
		tables = append(tables, schema.Table{Name: name, Columns: columns})
	}
	return tables, nil
}

func getColumns(ctx context.Context, store database.Store, query, table string) ([]schema.Column, error) {
	rows, err := store.Query(ctx, query, table)
	if err != nil {
		return nil, errors.Annotate(err, "querying columns")
	}

	columns := make([]schema.Column, 0, len(rows))
	for _, row := range rows {
		if len(row) < 3 {
			return nil, errors.Errorf("column query returned %d fields, want 3", len(row))
		}
		pos, err := strconv.Atoi(row[2])
		if err != nil {
			return nil, errors.Annotatef(err, "column %s position", row[0])
		}
		columns = append(columns, schema.Column{Name: row[0], Type: row[1], Position: pos})
	}
	return columns, nil
}
