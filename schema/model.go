package schema

// Table is the metadata of one user table as read from the store.
type Table struct {
	Name    string
	Columns []Column
}

// Column is one column of a Table. Position is the declared ordinal,
// starting at whatever the store reports (0 for SQLite, 1 elsewhere).
type Column struct {
	Name     string
	Type     string
	Position int
}
