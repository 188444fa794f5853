// Package runner walks a workflow graph and deletes the matched records,
// children before parents, together with their files.
package runner

import (
	"context"
	"fmt"

	billy "github.com/go-git/go-billy/v5"
	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo"

	"github.com/ridoystarlord/archiveprune/database"
	"github.com/ridoystarlord/archiveprune/sandbox"
	"github.com/ridoystarlord/archiveprune/validator"
	"github.com/ridoystarlord/archiveprune/workflow"
)

// CycleDetected is returned when a workflow is asked to process a parameter
// it is already processing further up the stack; the data loops back on
// itself and the walk would never end.
const CycleDetected = errors.ConstError("cascade cycle detected")

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger used for progress and file failures.
func WithLogger(logger loggo.Logger) Option {
	return func(e *Executor) { e.logger = logger }
}

// WithFilesystem replaces the host filesystem used to remove record files.
func WithFilesystem(fs billy.Basic) Option {
	return func(e *Executor) { e.fs = fs }
}

// WithSandboxPolicy sets how record ids that escape their table directory
// are handled. The default is sandbox.FailOpen.
func WithSandboxPolicy(p sandbox.Policy) Option {
	return func(e *Executor) { e.policy = p }
}

// WithDryRun makes the executor select and log without removing files or
// rows.
func WithDryRun(dryRun bool) Option {
	return func(e *Executor) { e.dryRun = dryRun }
}

// WithClock sets the clock used to time the run.
func WithClock(c clock.Clock) Option {
	return func(e *Executor) { e.clock = c }
}

// statements holds the SQL of one workflow node, built from validated
// identifiers only.
type statements struct {
	selectIDs string
	deleteAll string
}

// Executor deletes the record tree described by a workflow graph.
type Executor struct {
	store  database.Store
	graph  *workflow.Graph
	files  map[string]string
	logger loggo.Logger
	fs     billy.Basic
	policy sandbox.Policy
	dryRun bool
	clock  clock.Clock
}

// NewExecutor returns an Executor over store and graph. files maps a table
// name onto the directory holding its record files.
func NewExecutor(store database.Store, graph *workflow.Graph, files map[string]string, opts ...Option) *Executor {
	e := &Executor{
		store:  store,
		graph:  graph,
		files:  files,
		logger: loggo.GetLogger("archiveprune.runner"),
		policy: sandbox.FailOpen,
		clock:  clock.WallClock,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.fs == nil {
		e.fs = defaultFilesystem()
	}
	return e
}

// compile validates every node's identifiers and builds its statements.
func compile(n workflow.Node, d database.Dialect) (statements, error) {
	table, err := validator.NewIdentifier(n.Table)
	if err != nil {
		return statements{}, errors.Annotate(err, "table name")
	}
	column, err := validator.NewIdentifier(n.Column)
	if err != nil {
		return statements{}, errors.Annotatef(err, "column name of %s", n.Table)
	}
	where, err := validator.NewIdentifier(n.WhereClause)
	if err != nil {
		return statements{}, errors.Annotatef(err, "where clause of %s", n.Table)
	}
	return statements{
		selectIDs: fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s", d.SelectText(column.String()), table, where, d.Placeholder(1)),
		deleteAll: fmt.Sprintf("DELETE FROM %s WHERE %s = %s", table, where, d.Placeholder(1)),
	}, nil
}

// frame is one pending workflow invocation on the explicit stack.
type frame struct {
	node  int
	param string
	ids   []string
	// next is the index into ids being processed.
	next int
	// child is the next child of ids[next] to run.
	child int
	// started is set once the file of ids[next] was handled.
	started bool
}

// Run deletes the record tree rooted at the graph's root, binding the
// root's Params. For every matched id the record file is removed and every
// child workflow runs with the id as its parameter; only then are the
// node's own rows removed with a single DELETE using the original
// parameter. Store errors abort the run; file errors do not.
func (e *Executor) Run(ctx context.Context) (*Report, error) {
	report := newReport(e.dryRun)
	report.StartedAt = e.clock.Now()
	defer func() { report.FinishedAt = e.clock.Now() }()

	compiled := make([]statements, e.graph.Len())
	for i := 0; i < e.graph.Len(); i++ {
		st, err := compile(e.graph.Node(i), e.store.Dialect())
		if err != nil {
			return report, errors.Trace(err)
		}
		compiled[i] = st
	}

	e.logger.Debugf("Starting process_workflows")
	root := e.graph.RootIndex()
	first, err := e.open(ctx, root, e.graph.Node(root).Params, compiled[root], report)
	if err != nil {
		return report, errors.Trace(err)
	}
	stack := []frame{first}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return report, errors.Trace(err)
		}
		top := len(stack) - 1
		f := &stack[top]
		node := e.graph.Node(f.node)

		if f.next >= len(f.ids) {
			if len(f.ids) > 0 {
				if err := e.deleteRows(ctx, node, f.param, len(f.ids), compiled[f.node], report); err != nil {
					return report, errors.Trace(err)
				}
			}
			stack = stack[:top]
			continue
		}

		id := f.ids[f.next]
		if !f.started {
			f.started = true
			if dir, ok := e.files[node.Table]; ok {
				e.logger.Debugf("Processing files for table: %s", node.Table)
				e.removeRecordFile(node.Table, dir, id, report)
			}
		}

		children := e.graph.ChildIndexes(node.Table)
		if f.child < len(children) {
			c := children[f.child]
			f.child++
			if onStack(stack, c, id) {
				return report, errors.Annotatef(CycleDetected, "%s with %s = %q", e.graph.Node(c).Table, e.graph.Node(c).WhereClause, id)
			}
			// f is not used past this append, which may move the stack.
			child, err := e.open(ctx, c, id, compiled[c], report)
			if err != nil {
				return report, errors.Trace(err)
			}
			stack = append(stack, child)
			continue
		}

		f.next++
		f.child = 0
		f.started = false
	}

	e.logger.Debugf("Finished process_workflows")
	return report, nil
}

// open selects the ids a node invocation will process.
func (e *Executor) open(ctx context.Context, idx int, param string, st statements, report *Report) (frame, error) {
	node := e.graph.Node(idx)
	e.logger.Debugf("Processing workflow: table=%s, column=%s, where_clause=%s, params=%s, parent=%s",
		node.Table, node.Column, node.WhereClause, node.Params, node.Parent)
	e.logger.Debugf("Executing query: %s", st.selectIDs)
	e.logger.Debugf("Param: %q", param)

	ids, err := database.QueryStrings(ctx, e.store, st.selectIDs, param)
	if err != nil {
		return frame{}, errors.Annotatef(err, "selecting %s from %s", node.Column, node.Table)
	}
	e.logger.Debugf("Found IDs: %v", ids)
	report.NodesVisited++
	return frame{node: idx, param: param, ids: ids}, nil
}

func (e *Executor) deleteRows(ctx context.Context, node workflow.Node, param string, matched int, st statements, report *Report) error {
	report.Statements++
	if e.dryRun {
		e.logger.Infof("Would execute: %s with param %q (%d rows)", st.deleteAll, param, matched)
		report.RowsDeleted[node.Table] += int64(matched)
		return nil
	}
	e.logger.Debugf("Executing delete query: %s", st.deleteAll)
	e.logger.Debugf("Param: %q", param)

	n, err := e.store.Exec(ctx, st.deleteAll, param)
	if err != nil {
		return errors.Annotatef(err, "deleting from %s", node.Table)
	}
	e.logger.Infof("Deleted %d entries from table %s", n, node.Table)
	report.RowsDeleted[node.Table] += n
	return nil
}

func onStack(stack []frame, node int, param string) bool {
	for _, f := range stack {
		if f.node == node && f.param == param {
			return true
		}
	}
	return false
}
