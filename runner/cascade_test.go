package runner

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/juju/clock/testclock"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridoystarlord/archiveprune/database"
	"github.com/ridoystarlord/archiveprune/sandbox"
	"github.com/ridoystarlord/archiveprune/validator"
	"github.com/ridoystarlord/archiveprune/workflow"
)

type call struct {
	kind  string
	query string
	param string
}

// recordingStore records every statement before passing it on.
type recordingStore struct {
	database.Store
	calls []call
}

func (r *recordingStore) Query(ctx context.Context, query string, args ...any) ([][]string, error) {
	r.calls = append(r.calls, call{kind: "query", query: query, param: firstArg(args)})
	return r.Store.Query(ctx, query, args...)
}

func (r *recordingStore) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	r.calls = append(r.calls, call{kind: "exec", query: query, param: firstArg(args)})
	return r.Store.Exec(ctx, query, args...)
}

func (r *recordingStore) execs() []call {
	var out []call
	for _, c := range r.calls {
		if c.kind == "exec" {
			out = append(out, c)
		}
	}
	return out
}

func firstArg(args []any) string {
	if len(args) == 0 {
		return ""
	}
	s, _ := args[0].(string)
	return s
}

func newStore(t *testing.T, stmts ...string) *recordingStore {
	t.Helper()
	ctx := context.Background()
	store, err := database.Open(ctx, database.Config{
		Driver:      database.SQLite,
		DSN:         filepath.Join(t.TempDir(), "cascade.db"),
		ForeignKeys: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	for _, s := range stmts {
		_, err := store.Exec(ctx, s)
		require.NoError(t, err, s)
	}
	return &recordingStore{Store: store}
}

func count(t *testing.T, store database.Store, query string) int {
	t.Helper()
	ids, err := database.QueryStrings(context.Background(), store, query)
	require.NoError(t, err)
	require.Len(t, ids, 1)
	n := 0
	for _, c := range ids[0] {
		n = n*10 + int(c-'0')
	}
	return n
}

func exists(t *testing.T, fs billy.Basic, path string) bool {
	t.Helper()
	_, err := fs.Stat(path)
	return err == nil
}

func testLogger(t *testing.T) (loggo.Logger, *loggo.TestWriter) {
	t.Helper()
	ctx := loggo.NewContext(loggo.DEBUG)
	tw := &loggo.TestWriter{}
	require.NoError(t, ctx.AddWriter("test", tw))
	return ctx.GetLogger("archiveprune.runner"), tw
}

var orderSchema = []string{
	"CREATE TABLE Orders (id INTEGER PRIMARY KEY, customer TEXT)",
	"CREATE TABLE OrderItems (id INTEGER PRIMARY KEY, order_id INTEGER NOT NULL REFERENCES Orders(id))",
	"INSERT INTO Orders (id, customer) VALUES (5, 'a'), (6, 'b')",
	"INSERT INTO OrderItems (id, order_id) VALUES (10, 5), (11, 5), (12, 6)",
}

func orderGraph(t *testing.T) *workflow.Graph {
	t.Helper()
	g, err := workflow.Build([]workflow.Node{
		{Table: "Orders", Column: "id", WhereClause: "id", Params: "5"},
		{Table: "OrderItems", Column: "id", WhereClause: "order_id", Parent: "Orders"},
	})
	require.NoError(t, err)
	return g
}

var orderFiles = map[string]string{
	"Orders":     "/pcf/orders",
	"OrderItems": "/pcf/items",
}

func seedFiles(t *testing.T, fs billy.Basic, paths ...string) {
	t.Helper()
	for _, p := range paths {
		require.NoError(t, util.WriteFile(fs, p, []byte("x"), 0o644))
	}
}

func TestRunDeletesChildrenBeforeParent(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, orderSchema...)
	fs := memfs.New()
	seedFiles(t, fs, "/pcf/orders/5", "/pcf/orders/6", "/pcf/items/10", "/pcf/items/11", "/pcf/items/12")
	logger, _ := testLogger(t)

	report, err := NewExecutor(store, orderGraph(t), orderFiles,
		WithFilesystem(fs), WithLogger(logger)).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, []call{
		{kind: "exec", query: "DELETE FROM OrderItems WHERE order_id = ?", param: "5"},
		{kind: "exec", query: "DELETE FROM Orders WHERE id = ?", param: "5"},
	}, store.execs())

	assert.Equal(t, 1, count(t, store, "SELECT COUNT(*) FROM Orders"))
	assert.Equal(t, 1, count(t, store, "SELECT COUNT(*) FROM OrderItems WHERE order_id = 6"))

	assert.False(t, exists(t, fs, "/pcf/orders/5"))
	assert.False(t, exists(t, fs, "/pcf/items/10"))
	assert.False(t, exists(t, fs, "/pcf/items/11"))
	assert.True(t, exists(t, fs, "/pcf/orders/6"))
	assert.True(t, exists(t, fs, "/pcf/items/12"))

	assert.Equal(t, map[string]int64{"Orders": 1, "OrderItems": 2}, report.RowsDeleted)
	assert.Equal(t, int64(3), report.TotalRows())
	assert.Equal(t, 2, report.Statements)
	assert.Equal(t, 3, report.FilesDeleted)
	assert.Equal(t, 0, report.FileFailures)
	assert.Equal(t, 2, report.NodesVisited)
	assert.Equal(t, []string{"OrderItems", "Orders"}, report.Tables())
}

func TestRunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, orderSchema...)
	fs := memfs.New()
	logger, _ := testLogger(t)
	exec := NewExecutor(store, orderGraph(t), orderFiles, WithFilesystem(fs), WithLogger(logger))

	_, err := exec.Run(ctx)
	require.NoError(t, err)

	store.calls = nil
	report, err := exec.Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, store.execs())
	assert.Equal(t, []call{{kind: "query", query: "SELECT CAST(id AS TEXT) FROM Orders WHERE id = ?", param: "5"}}, store.calls)
	assert.Zero(t, report.TotalRows())
	assert.Zero(t, report.Statements)
	assert.Zero(t, report.FileFailures)
}

func TestRunMissingFilesAreNotFatal(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, orderSchema...)
	logger, tw := testLogger(t)

	report, err := NewExecutor(store, orderGraph(t), orderFiles,
		WithFilesystem(memfs.New()), WithLogger(logger)).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 0, count(t, store, "SELECT COUNT(*) FROM Orders WHERE id = 5"))
	assert.Equal(t, 0, count(t, store, "SELECT COUNT(*) FROM OrderItems WHERE order_id = 5"))
	assert.Equal(t, 3, report.FileFailures)
	assert.Equal(t, 0, report.FilesDeleted)

	var failures int
	for _, e := range tw.Log() {
		if e.Level == loggo.ERROR {
			failures++
			assert.Contains(t, e.Message, "Failed to delete file")
		}
	}
	assert.Equal(t, 3, failures)
}

func TestRunWithoutFileMappings(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, orderSchema...)
	logger, _ := testLogger(t)

	report, err := NewExecutor(store, orderGraph(t), nil,
		WithFilesystem(memfs.New()), WithLogger(logger)).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), report.TotalRows())
	assert.Zero(t, report.FileFailures)
	assert.Zero(t, report.FilesDeleted)
}

func TestRunTraversalOrder(t *testing.T) {
	ctx := context.Background()
	store := newStore(t,
		"CREATE TABLE Orders (id INTEGER PRIMARY KEY)",
		"CREATE TABLE OrderItems (id INTEGER PRIMARY KEY, order_id INTEGER REFERENCES Orders(id))",
		"CREATE TABLE ItemNotes (id INTEGER PRIMARY KEY, item_id INTEGER REFERENCES OrderItems(id))",
		"CREATE TABLE Shipments (id INTEGER PRIMARY KEY, order_id INTEGER REFERENCES Orders(id))",
		"INSERT INTO Orders (id) VALUES (5)",
		"INSERT INTO OrderItems (id, order_id) VALUES (10, 5), (11, 5)",
		"INSERT INTO ItemNotes (id, item_id) VALUES (100, 10)",
		"INSERT INTO Shipments (id, order_id) VALUES (20, 5)",
	)
	g, err := workflow.Build([]workflow.Node{
		{Table: "Orders", Column: "id", WhereClause: "id", Params: "5"},
		{Table: "OrderItems", Column: "id", WhereClause: "order_id", Parent: "Orders"},
		{Table: "ItemNotes", Column: "id", WhereClause: "item_id", Parent: "OrderItems"},
		{Table: "Shipments", Column: "id", WhereClause: "order_id", Parent: "Orders"},
	})
	require.NoError(t, err)
	logger, _ := testLogger(t)

	_, err = NewExecutor(store, g, nil, WithFilesystem(memfs.New()), WithLogger(logger)).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, []call{
		{"query", "SELECT CAST(id AS TEXT) FROM Orders WHERE id = ?", "5"},
		{"query", "SELECT CAST(id AS TEXT) FROM OrderItems WHERE order_id = ?", "5"},
		{"query", "SELECT CAST(id AS TEXT) FROM ItemNotes WHERE item_id = ?", "10"},
		{"exec", "DELETE FROM ItemNotes WHERE item_id = ?", "10"},
		{"query", "SELECT CAST(id AS TEXT) FROM ItemNotes WHERE item_id = ?", "11"},
		{"exec", "DELETE FROM OrderItems WHERE order_id = ?", "5"},
		{"query", "SELECT CAST(id AS TEXT) FROM Shipments WHERE order_id = ?", "5"},
		{"exec", "DELETE FROM Shipments WHERE order_id = ?", "5"},
		{"exec", "DELETE FROM Orders WHERE id = ?", "5"},
	}, store.calls)
}

func TestRunNonRootIgnoresOwnParams(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, orderSchema...)
	g, err := workflow.Build([]workflow.Node{
		{Table: "Orders", Column: "id", WhereClause: "id", Params: "5"},
		{Table: "OrderItems", Column: "id", WhereClause: "order_id", Params: "6", Parent: "Orders"},
	})
	require.NoError(t, err)
	logger, _ := testLogger(t)

	_, err = NewExecutor(store, g, nil, WithFilesystem(memfs.New()), WithLogger(logger)).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count(t, store, "SELECT COUNT(*) FROM OrderItems WHERE order_id = 6"))
}

func TestRunRejectsInvalidIdentifierBeforeAnyQuery(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, orderSchema...)
	g, err := workflow.Build([]workflow.Node{
		{Table: "Orders", Column: "id", WhereClause: "id", Params: "5"},
		{Table: "OrderItems", Column: "id", WhereClause: "order_id = 1 OR 1", Parent: "Orders"},
	})
	require.NoError(t, err)
	logger, _ := testLogger(t)

	_, err = NewExecutor(store, g, nil, WithFilesystem(memfs.New()), WithLogger(logger)).Run(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, validator.InvalidIdentifier))
	assert.Empty(t, store.calls)
	assert.Equal(t, 2, count(t, store, "SELECT COUNT(*) FROM Orders"))
}

func TestRunStoreErrorAborts(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, orderSchema...)
	g, err := workflow.Build([]workflow.Node{
		{Table: "Orders", Column: "id", WhereClause: "id", Params: "5"},
		{Table: "Missing", Column: "id", WhereClause: "order_id", Parent: "Orders"},
		{Table: "OrderItems", Column: "id", WhereClause: "order_id", Parent: "Orders"},
	})
	require.NoError(t, err)
	logger, _ := testLogger(t)

	_, err = NewExecutor(store, g, nil, WithFilesystem(memfs.New()), WithLogger(logger)).Run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Missing")
	assert.Empty(t, store.execs())
	assert.Equal(t, 2, count(t, store, "SELECT COUNT(*) FROM Orders"))
}

func TestRunConstraintViolationAborts(t *testing.T) {
	ctx := context.Background()
	// OrderItems is not part of the workflow, so deleting the order
	// violates its foreign key.
	store := newStore(t, orderSchema...)
	g, err := workflow.Build([]workflow.Node{
		{Table: "Orders", Column: "id", WhereClause: "id", Params: "5"},
	})
	require.NoError(t, err)
	logger, _ := testLogger(t)

	_, err = NewExecutor(store, g, nil, WithFilesystem(memfs.New()), WithLogger(logger)).Run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deleting from Orders")
}

func TestRunDryRun(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, orderSchema...)
	fs := memfs.New()
	seedFiles(t, fs, "/pcf/orders/5", "/pcf/items/10")
	logger, tw := testLogger(t)

	report, err := NewExecutor(store, orderGraph(t), orderFiles,
		WithFilesystem(fs), WithLogger(logger), WithDryRun(true)).Run(ctx)
	require.NoError(t, err)

	assert.Empty(t, store.execs())
	assert.True(t, exists(t, fs, "/pcf/orders/5"))
	assert.True(t, exists(t, fs, "/pcf/items/10"))
	assert.True(t, report.DryRun)
	assert.Equal(t, map[string]int64{"Orders": 1, "OrderItems": 2}, report.RowsDeleted)
	assert.Equal(t, 2, report.Statements)

	var planned int
	for _, e := range tw.Log() {
		if e.Level == loggo.INFO && len(e.Message) > 13 && e.Message[:13] == "Would execute" {
			planned++
		}
	}
	assert.Equal(t, 2, planned)
}

func TestRunSelfReferencingHierarchy(t *testing.T) {
	ctx := context.Background()
	store := newStore(t,
		"CREATE TABLE Folders (id INTEGER PRIMARY KEY, parent_id INTEGER REFERENCES Folders(id))",
		"INSERT INTO Folders (id, parent_id) VALUES (1, NULL), (2, 1), (3, 2), (4, NULL)",
	)
	g, err := workflow.Build([]workflow.Node{
		{Table: "Folders", Column: "id", WhereClause: "id", Params: "1"},
		{Table: "Folders", Column: "id", WhereClause: "parent_id", Parent: "Folders"},
	})
	require.NoError(t, err)
	logger, _ := testLogger(t)

	_, err = NewExecutor(store, g, nil, WithFilesystem(memfs.New()), WithLogger(logger)).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, []call{
		{kind: "exec", query: "DELETE FROM Folders WHERE parent_id = ?", param: "2"},
		{kind: "exec", query: "DELETE FROM Folders WHERE parent_id = ?", param: "1"},
		{kind: "exec", query: "DELETE FROM Folders WHERE id = ?", param: "1"},
	}, store.execs())
	assert.Equal(t, 1, count(t, store, "SELECT COUNT(*) FROM Folders"))
}

func TestRunDetectsCycles(t *testing.T) {
	ctx := context.Background()
	store := newStore(t,
		"CREATE TABLE Folders (id INTEGER PRIMARY KEY, parent_id INTEGER)",
		"INSERT INTO Folders (id, parent_id) VALUES (1, 2), (2, 1)",
	)
	g, err := workflow.Build([]workflow.Node{
		{Table: "Folders", Column: "id", WhereClause: "id", Params: "1"},
		{Table: "Folders", Column: "id", WhereClause: "parent_id", Parent: "Folders"},
	})
	require.NoError(t, err)
	logger, _ := testLogger(t)

	_, err = NewExecutor(store, g, nil, WithFilesystem(memfs.New()), WithLogger(logger)).Run(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, CycleDetected))
	assert.Empty(t, store.execs())
}

func TestRunEscapingRecordIDFailClosed(t *testing.T) {
	ctx := context.Background()
	store := newStore(t,
		"CREATE TABLE Docs (id TEXT PRIMARY KEY, owner TEXT)",
		"INSERT INTO Docs (id, owner) VALUES ('../secret', 'bob'), ('ok', 'bob')",
	)
	g, err := workflow.Build([]workflow.Node{
		{Table: "Docs", Column: "id", WhereClause: "owner", Params: "bob"},
	})
	require.NoError(t, err)
	fs := memfs.New()
	seedFiles(t, fs, "/pcf/secret", "/pcf/docs/ok")
	logger, _ := testLogger(t)

	report, err := NewExecutor(store, g, map[string]string{"Docs": "/pcf/docs"},
		WithFilesystem(fs), WithLogger(logger), WithSandboxPolicy(sandbox.FailClosed)).Run(ctx)
	require.NoError(t, err)

	assert.True(t, exists(t, fs, "/pcf/secret"))
	assert.False(t, exists(t, fs, "/pcf/docs/ok"))
	assert.Equal(t, 1, report.FileFailures)
	assert.Equal(t, 1, report.FilesDeleted)
	assert.Equal(t, int64(2), report.TotalRows())
}

func TestRunCancelledContext(t *testing.T) {
	store := newStore(t, orderSchema...)
	logger, _ := testLogger(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewExecutor(store, orderGraph(t), nil, WithFilesystem(memfs.New()), WithLogger(logger)).Run(ctx)
	require.Error(t, err)
	assert.Empty(t, store.execs())
}

func TestRunUsesClock(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clk := testclock.NewClock(start)
	store := newStore(t, orderSchema...)
	logger, _ := testLogger(t)

	report, err := NewExecutor(store, orderGraph(t), nil,
		WithFilesystem(memfs.New()), WithLogger(logger), WithClock(clk)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, start, report.StartedAt)
	assert.Equal(t, start, report.FinishedAt)
	assert.Zero(t, report.Duration())
}

func TestRunEscapingRecordIDFailOpenKeepsDirectory(t *testing.T) {
	ctx := context.Background()
	store := newStore(t,
		"CREATE TABLE Docs (id TEXT PRIMARY KEY, owner TEXT)",
		"INSERT INTO Docs (id, owner) VALUES ('../..', 'bob')",
	)
	g, err := workflow.Build([]workflow.Node{
		{Table: "Docs", Column: "id", WhereClause: "owner", Params: "bob"},
	})
	require.NoError(t, err)
	fs := memfs.New()
	require.NoError(t, fs.MkdirAll("/pcf/docs", 0o755))
	logger, _ := testLogger(t)

	report, err := NewExecutor(store, g, map[string]string{"Docs": "/pcf/docs"},
		WithFilesystem(fs), WithLogger(logger)).Run(ctx)
	require.NoError(t, err)

	assert.True(t, exists(t, fs, "/pcf/docs"))
	assert.Equal(t, 1, report.FileFailures)
	assert.Equal(t, int64(1), report.TotalRows())
}

func TestRunNullIDAborts(t *testing.T) {
	ctx := context.Background()
	store := newStore(t,
		"CREATE TABLE Orders (id INTEGER PRIMARY KEY, ref TEXT)",
		"CREATE TABLE Refs (id INTEGER PRIMARY KEY, code TEXT)",
		"INSERT INTO Orders (id, ref) VALUES (5, NULL)",
		"INSERT INTO Refs (id, code) VALUES (1, '')",
	)
	g, err := workflow.Build([]workflow.Node{
		{Table: "Orders", Column: "ref", WhereClause: "id", Params: "5"},
		{Table: "Refs", Column: "id", WhereClause: "code", Parent: "Orders"},
	})
	require.NoError(t, err)
	logger, _ := testLogger(t)

	_, err = NewExecutor(store, g, nil, WithFilesystem(memfs.New()), WithLogger(logger)).Run(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, database.NullValue))
	assert.Empty(t, store.execs())
	assert.Len(t, store.calls, 1)
	assert.Equal(t, 1, count(t, store, "SELECT COUNT(*) FROM Refs"))
	assert.Equal(t, 1, count(t, store, "SELECT COUNT(*) FROM Orders"))
}

func TestRunDatetimeKeyedParent(t *testing.T) {
	ctx := context.Background()
	store := newStore(t,
		"CREATE TABLE Days (day DATETIME PRIMARY KEY, label TEXT)",
		"CREATE TABLE Entries (id INTEGER PRIMARY KEY, day DATETIME NOT NULL REFERENCES Days(day))",
		"INSERT INTO Days (day, label) VALUES ('2024-01-02 03:04:05', 'x'), ('2024-01-03 00:00:00', 'y')",
		"INSERT INTO Entries (id, day) VALUES (1, '2024-01-02 03:04:05'), (2, '2024-01-03 00:00:00')",
	)
	g, err := workflow.Build([]workflow.Node{
		{Table: "Days", Column: "day", WhereClause: "label", Params: "x"},
		{Table: "Entries", Column: "id", WhereClause: "day", Parent: "Days"},
	})
	require.NoError(t, err)
	fs := memfs.New()
	seedFiles(t, fs, "/pcf/days/2024-01-02 03:04:05")
	logger, _ := testLogger(t)

	report, err := NewExecutor(store, g, map[string]string{"Days": "/pcf/days"},
		WithFilesystem(fs), WithLogger(logger)).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, []call{
		{kind: "exec", query: "DELETE FROM Entries WHERE day = ?", param: "2024-01-02 03:04:05"},
		{kind: "exec", query: "DELETE FROM Days WHERE label = ?", param: "x"},
	}, store.execs())
	assert.Equal(t, map[string]int64{"Days": 1, "Entries": 1}, report.RowsDeleted)
	assert.False(t, exists(t, fs, "/pcf/days/2024-01-02 03:04:05"))
	assert.Equal(t, 1, count(t, store, "SELECT COUNT(*) FROM Entries"))
}
