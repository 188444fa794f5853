package validator

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/juju/errors"

	"github.com/ridoystarlord/archiveprune/database"
	"github.com/ridoystarlord/archiveprune/introspect"
	"github.com/ridoystarlord/archiveprune/loader"
	"github.com/ridoystarlord/archiveprune/sandbox"
	"github.com/ridoystarlord/archiveprune/schema"
	"github.com/ridoystarlord/archiveprune/workflow"
)

// SchemaMismatch is matched by errors.Is for every *MismatchError.
const SchemaMismatch = errors.ConstError("database schema does not match configuration")

// MismatchError reports a fingerprint that differs from the configured one.
type MismatchError struct {
	Expected string
	Actual   string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%s: expected %s, calculated %s", SchemaMismatch, e.Expected, e.Actual)
}

// Is lets errors.Is(err, SchemaMismatch) match.
func (e *MismatchError) Is(target error) bool {
	return target == SchemaMismatch
}

// ValidationError represents a validation error with details
type ValidationError struct {
	Type     string `json:"type"`
	Table    string `json:"table,omitempty"`
	Column   string `json:"column,omitempty"`
	Path     string `json:"path,omitempty"`
	Message  string `json:"message"`
	Severity string `json:"severity"` // "error", "warning", "info"
}

// ValidationResult contains all validation results
type ValidationResult struct {
	Valid    bool              `json:"valid"`
	Errors   []ValidationError `json:"errors"`
	Warnings []ValidationError `json:"warnings"`
	Info     []ValidationError `json:"info"`
}

func newResult() *ValidationResult {
	return &ValidationResult{
		Valid:    true,
		Errors:   []ValidationError{},
		Warnings: []ValidationError{},
		Info:     []ValidationError{},
	}
}

func (r *ValidationResult) addError(e ValidationError) {
	e.Severity = "error"
	r.Errors = append(r.Errors, e)
	r.Valid = false
}

func (r *ValidationResult) addWarning(e ValidationError) {
	e.Severity = "warning"
	r.Warnings = append(r.Warnings, e)
}

func (r *ValidationResult) addInfo(e ValidationError) {
	e.Severity = "info"
	r.Info = append(r.Info, e)
}

// SchemaValidator checks the store against the configuration
type SchemaValidator struct {
	store database.Store
}

// NewSchemaValidator creates a validator reading metadata from store
func NewSchemaValidator(store database.Store) *SchemaValidator {
	return &SchemaValidator{store: store}
}

// Fingerprint computes the schema fingerprint of the store.
func (v *SchemaValidator) Fingerprint(ctx context.Context) (string, error) {
	tables, err := introspect.Tables(ctx, v.store)
	if err != nil {
		return "", errors.Trace(err)
	}
	return schema.Fingerprint(tables), nil
}

// TableDigests returns the per-table digests the fingerprint is folded from.
func (v *SchemaValidator) TableDigests(ctx context.Context) ([]schema.TableDigest, error) {
	tables, err := introspect.Tables(ctx, v.store)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return schema.TableDigests(tables), nil
}

// Verify computes the fingerprint and compares it with expected, ignoring
// surrounding whitespace and hex case. It returns the computed fingerprint
// and a *MismatchError when they differ.
func (v *SchemaValidator) Verify(ctx context.Context, expected string) (string, error) {
	actual, err := v.Fingerprint(ctx)
	if err != nil {
		return "", errors.Annotate(err, "calculating schema hash")
	}
	if !strings.EqualFold(strings.TrimSpace(expected), actual) {
		return actual, &MismatchError{Expected: expected, Actual: actual}
	}
	return actual, nil
}

// ValidateSchema validates the configuration and then checks every
// workflow table and column against the store's metadata.
func (v *SchemaValidator) ValidateSchema(ctx context.Context, cfg *loader.Config, sb *sandbox.Sandbox) (*ValidationResult, error) {
	result := ValidateConfig(cfg, sb)

	tables, err := introspect.Tables(ctx, v.store)
	if err != nil {
		return nil, errors.Annotate(err, "failed to get database tables")
	}
	dbTables := make(map[string]map[string]bool, len(tables))
	for _, t := range tables {
		cols := make(map[string]bool, len(t.Columns))
		for _, c := range t.Columns {
			cols[c.Name] = true
		}
		dbTables[t.Name] = cols
	}

	for _, n := range cfg.Workflows {
		cols, ok := dbTables[n.Table]
		if !ok {
			result.addError(ValidationError{
				Type:    "table_missing",
				Table:   n.Table,
				Message: fmt.Sprintf("Table '%s' does not exist in database", n.Table),
			})
			continue
		}
		for _, col := range []string{n.Column, n.WhereClause} {
			if col != "" && !cols[col] {
				result.addError(ValidationError{
					Type:    "column_missing",
					Table:   n.Table,
					Column:  col,
					Message: fmt.Sprintf("Column '%s' does not exist in table '%s'", col, n.Table),
				})
			}
		}
	}
	return result, nil
}

var hexDigest = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

// ValidateConfig validates the configuration without a database
// connection. When sb is nil, path containment is not checked.
func ValidateConfig(cfg *loader.Config, sb *sandbox.Sandbox) *ValidationResult {
	result := newResult()

	validateWorkflows(cfg.Workflows, result)
	validateFilePaths(cfg, sb, result)

	if _, err := database.ParseDialect(cfg.Store.Driver); err != nil {
		result.addError(ValidationError{Type: "store_driver", Message: err.Error()})
	}
	if _, err := sandbox.ParsePolicy(cfg.SandboxPolicy); err != nil {
		result.addError(ValidationError{Type: "sandbox_policy", Message: err.Error()})
	}
	return result
}

func validateWorkflows(nodes []workflow.Node, result *ValidationResult) {
	for _, n := range nodes {
		for _, f := range []struct{ kind, value string }{
			{"table", n.Table},
			{"column", n.Column},
			{"where_clause", n.WhereClause},
		} {
			if !IsValidIdentifier(f.value) {
				result.addError(ValidationError{
					Type:    f.kind + "_name",
					Table:   n.Table,
					Message: fmt.Sprintf("%s '%s' must be non-empty and contain only letters, digits and underscores", f.kind, f.value),
				})
			}
		}
	}

	g, err := workflow.Build(nodes)
	if err != nil {
		result.addError(ValidationError{Type: "root", Message: err.Error()})
		return
	}
	if g.Root().Params == "" {
		result.addWarning(ValidationError{
			Type:    "root_params",
			Table:   g.Root().Table,
			Message: "Root workflow has empty params; only rows matching an empty value are deleted",
		})
	}
	for _, n := range g.Unreachable() {
		result.addWarning(ValidationError{
			Type:    "unreachable",
			Table:   n.Table,
			Message: fmt.Sprintf("Workflow '%s' has parent '%s' which is never reached from the root; it will not run", n.Table, n.Parent),
		})
	}

	seen := make(map[workflow.Node]bool)
	for _, n := range nodes {
		key := workflow.Node{Table: n.Table, WhereClause: n.WhereClause, Parent: n.Parent}
		if seen[key] {
			result.addInfo(ValidationError{
				Type:    "duplicate_workflow",
				Table:   n.Table,
				Message: fmt.Sprintf("Workflow '%s' under '%s' is declared more than once; each declaration runs", n.Table, n.Parent),
			})
		}
		seen[key] = true
	}
}

func validateFilePaths(cfg *loader.Config, sb *sandbox.Sandbox, result *ValidationResult) {
	tables := make(map[string]bool, len(cfg.Workflows))
	for _, n := range cfg.Workflows {
		tables[n.Table] = true
	}

	driver, _ := database.ParseDialect(cfg.Store.Driver)
	db, hasDB := cfg.FilePaths[loader.DatabaseKey]
	switch {
	case !hasDB && driver.IsFileBased():
		result.addError(ValidationError{
			Type:    "database_path",
			Message: fmt.Sprintf("file_paths has no '%s' entry for the %s store", loader.DatabaseKey, driver),
		})
	case hasDB && db.Hash == "":
		result.addWarning(ValidationError{
			Type:    "schema_hash",
			Message: "No schema hash configured; schema validation will be skipped",
		})
	case hasDB && !hexDigest.MatchString(db.Hash):
		result.addWarning(ValidationError{
			Type:    "schema_hash",
			Message: fmt.Sprintf("Schema hash '%s' is not a 64 character hex digest and can never match", db.Hash),
		})
	}

	keys := make([]string, 0, len(cfg.FilePaths))
	for key := range cfg.FilePaths {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		p := cfg.FilePaths[key]
		if key != loader.DatabaseKey && !tables[key] {
			result.addWarning(ValidationError{
				Type:    "unused_path",
				Table:   key,
				Path:    p.Path,
				Message: fmt.Sprintf("file_paths entry '%s' does not match any workflow table", key),
			})
		}
		if sb == nil {
			continue
		}
		resolved, err := sb.Resolve(p.Path)
		switch {
		case err != nil:
			result.addError(ValidationError{Type: "path_escape", Table: key, Path: p.Path, Message: err.Error()})
		case resolved == sb.Base() && key != loader.DatabaseKey:
			result.addWarning(ValidationError{
				Type:    "path_base",
				Table:   key,
				Path:    p.Path,
				Message: fmt.Sprintf("Path for '%s' resolves to the base directory itself", key),
			})
		}
	}
}
