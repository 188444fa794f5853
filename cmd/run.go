package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	billy "github.com/go-git/go-billy/v5"
	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo"

	"github.com/ridoystarlord/archiveprune/logging"
	"github.com/ridoystarlord/archiveprune/runner"
	"github.com/ridoystarlord/archiveprune/validator"
	"github.com/ridoystarlord/archiveprune/workflow"
)

// runOptions carries everything one run needs. The zero values of the
// trailing fields select the real console, environment, filesystem and
// clock.
type runOptions struct {
	BaseDir       string
	ConfigFile    string
	LogFile       string
	LogLevel      string
	SandboxPolicy string
	DryRun        bool

	Console    io.Writer
	Getenv     func(string) string
	Filesystem billy.Basic
	Clock      clock.Clock
}

// prune performs one complete run: logging, configuration, schema check and
// the cascade.
func prune(ctx context.Context, opts runOptions) (*runner.Report, error) {
	logs, err := logging.New(logging.Config{
		File:    opts.LogFile,
		Level:   opts.LogLevel,
		Console: opts.Console,
	})
	if err != nil {
		return nil, errors.Annotate(err, "setting up logging")
	}
	defer logs.Close()
	logger := logs.Logger("archiveprune")

	clk := opts.Clock
	if clk == nil {
		clk = clock.WallClock
	}
	start := clk.Now()
	logger.Infof("Program started at %s", start.Format(time.DateTime))

	report, err := cascade(ctx, opts, logs, logger, clk)
	if err != nil {
		logger.Errorf("%v", err)
		return report, err
	}

	end := clk.Now()
	logger.Infof("Program ended at %s", end.Format(time.DateTime))
	logger.Infof("Total execution time: %d seconds", int64(end.Sub(start).Seconds()))
	return report, nil
}

func cascade(ctx context.Context, opts runOptions, logs *logging.Logging, logger loggo.Logger, clk clock.Clock) (*runner.Report, error) {
	s, err := loadSession(opts.ConfigFile, opts.BaseDir, opts.SandboxPolicy, opts.Getenv)
	if err != nil {
		return nil, errors.Trace(err)
	}
	graph, err := workflow.Build(s.config.Workflows)
	if err != nil {
		return nil, errors.Annotate(err, "building workflow graph")
	}
	for _, n := range graph.Unreachable() {
		logger.Warningf("Workflow %s is not reachable from root %s and will not run", n, graph.Root().Table)
	}

	logger.Debugf("Opening database connection")
	if err := s.connect(ctx); err != nil {
		return nil, errors.Trace(err)
	}
	defer s.Close()
	logger.Debugf("Database connection opened successfully")

	if err := verifySchema(ctx, s, logger); err != nil {
		return nil, errors.Trace(err)
	}

	execOpts := []runner.Option{
		runner.WithLogger(logs.Logger("archiveprune.runner")),
		runner.WithSandboxPolicy(s.sandbox.Policy()),
		runner.WithDryRun(opts.DryRun),
		runner.WithClock(clk),
	}
	if opts.Filesystem != nil {
		execOpts = append(execOpts, runner.WithFilesystem(opts.Filesystem))
	}
	report, err := runner.NewExecutor(s.store, graph, s.resolved.Files, execOpts...).Run(ctx)
	if err != nil {
		return report, errors.Annotate(err, "processing workflows")
	}
	return report, nil
}

// verifySchema gates the run on the configured fingerprint. A missing
// hash only warns.
func verifySchema(ctx context.Context, s *session, logger loggo.Logger) error {
	expected := s.resolved.ExpectedHash
	if expected == "" {
		logger.Warningf("No schema hash provided in configuration, skipping validation")
		return nil
	}
	logger.Debugf("Validating database schema")
	actual, err := validator.NewSchemaValidator(s.store).Verify(ctx, expected)
	if actual != "" {
		logger.Infof("Final schema hash: %s", actual)
	}
	if err != nil {
		if errors.Is(err, validator.SchemaMismatch) {
			logger.Errorf("Database schema hash mismatch!")
			logger.Errorf("Expected:   %s", expected)
			logger.Errorf("Calculated: %s", actual)
		}
		return errors.Trace(err)
	}
	logger.Infof("Database schema validation successful")
	return nil
}

func printReport(r *runner.Report) {
	if r == nil {
		return
	}
	title := "✅ Cascade completed"
	if r.DryRun {
		title = "🔍 Dry run completed, nothing was deleted"
	}
	color.Green(title)

	fmt.Println(strings.Repeat("-", 40))
	for _, table := range r.Tables() {
		fmt.Printf("  %-28s %8d\n", table, r.RowsDeleted[table])
	}
	fmt.Println(strings.Repeat("-", 40))
	fmt.Printf("📊 Rows: %d  Statements: %d  Workflows run: %d\n", r.TotalRows(), r.Statements, r.NodesVisited)
	fmt.Printf("📁 Files deleted: %d\n", r.FilesDeleted)
	if r.FileFailures > 0 {
		color.Yellow("⚠️  Files not deleted: %d (see the run log)", r.FileFailures)
	}
	fmt.Printf("⏱️  Took %s\n", r.Duration().Round(time.Millisecond))
}
