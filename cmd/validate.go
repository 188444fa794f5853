package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/juju/errors"
	"github.com/spf13/cobra"

	"github.com/ridoystarlord/archiveprune/loader"
	"github.com/ridoystarlord/archiveprune/sandbox"
	"github.com/ridoystarlord/archiveprune/validator"
)

var validateCmd = &cobra.Command{
	Use:   "validate [base-dir]",
	Short: "Validate the configuration file",
	Long: `Validate the configuration file before running it.

This command checks:
- Table, column and where_clause names (letters, digits and underscores)
- Exactly one root workflow, and workflows never reached from it
- file_paths entries, the DataBase entry and the schema hash format
- Path containment inside <base-dir>, when given
- Store driver and sandbox policy values

The validator works in two modes:
- Offline: Validates the configuration only (no database required)
- Online: Also checks workflow tables and columns against the store
  (--online, requires <base-dir>)

Examples:
  archiveprune validate                          # Validate config.yaml
  archiveprune validate /data/pcf                # Also check path containment
  archiveprune validate /data/pcf --online       # Also check the store
  archiveprune validate --format json            # Output results as JSON
`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		baseDir := ""
		if len(args) == 1 {
			baseDir = args[0]
		}
		valid, err := validateConfig(baseDir)
		if err != nil {
			fmt.Printf("❌ Configuration validation failed: %v\n", err)
			os.Exit(1)
		}
		if !valid {
			os.Exit(1)
		}
	},
}

var (
	validateFormat string
	validateOnline bool
)

func init() {
	validateCmd.Flags().StringVarP(&validateFormat, "format", "f", "text", "Output format (text, json)")
	validateCmd.Flags().BoolVar(&validateOnline, "online", false, "Also check workflow tables and columns against the store")
}

func validateConfig(baseDir string) (bool, error) {
	if validateFormat != "text" && validateFormat != "json" {
		return false, errors.NotValidf("output format %q", validateFormat)
	}
	if validateOnline {
		if baseDir == "" {
			return false, errors.New("--online needs a base directory")
		}
		return validateOnlineConfig(baseDir)
	}

	cfg, err := loader.LoadConfig(configFile)
	if err != nil {
		return false, errors.Trace(err)
	}

	var sb *sandbox.Sandbox
	if baseDir != "" {
		policy := sandboxPolicy
		if policy == "" {
			policy = cfg.SandboxPolicy
		}
		// An invalid policy is reported by ValidateConfig.
		p, err := sandbox.ParsePolicy(policy)
		if err != nil {
			p = sandbox.FailOpen
		}
		if sb, err = sandbox.New(baseDir, p); err != nil {
			return false, errors.Trace(err)
		}
	}

	result := validator.ValidateConfig(cfg, sb)
	return result.Valid, outputResult(os.Stdout, result)
}

func validateOnlineConfig(baseDir string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
	defer cancel()

	s, err := loadSession(configFile, baseDir, sandboxPolicy, nil)
	if err != nil {
		return false, errors.Trace(err)
	}
	if err := s.connect(ctx); err != nil {
		return false, errors.Trace(err)
	}
	defer s.Close()

	result, err := validator.NewSchemaValidator(s.store).ValidateSchema(ctx, s.config, s.sandbox)
	if err != nil {
		return false, errors.Trace(err)
	}
	return result.Valid, outputResult(os.Stdout, result)
}

func outputResult(w io.Writer, result *validator.ValidationResult) error {
	if validateFormat == "json" {
		return outputJSON(w, result)
	}
	outputText(w, result)
	return nil
}

func outputJSON(w io.Writer, result *validator.ValidationResult) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func outputText(w io.Writer, result *validator.ValidationResult) {
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)

	if result.Valid {
		green.Fprintln(w, "✅ Configuration validation passed!")
	} else {
		red.Fprintln(w, "❌ Configuration validation failed!")
	}

	printFindings(w, "🔴 Errors", result.Errors)
	printFindings(w, "🟡 Warnings", result.Warnings)
	printFindings(w, "🔵 Info", result.Info)

	fmt.Fprintf(w, "\n📊 Summary:\n")
	fmt.Fprintf(w, "  • Errors: %d\n", len(result.Errors))
	fmt.Fprintf(w, "  • Warnings: %d\n", len(result.Warnings))
	fmt.Fprintf(w, "  • Info: %d\n", len(result.Info))

	if result.Valid {
		fmt.Fprintf(w, "\n🎉 Your configuration is ready to run!\n")
	} else {
		fmt.Fprintf(w, "\n💡 Fix the errors above before running.\n")
	}
}

func printFindings(w io.Writer, title string, findings []validator.ValidationError) {
	if len(findings) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s (%d):\n", title, len(findings))
	for i, f := range findings {
		fmt.Fprintf(w, "  %d. ", i+1)
		if f.Table != "" {
			fmt.Fprintf(w, "[%s]", f.Table)
		}
		if f.Column != "" {
			fmt.Fprintf(w, ".%s", f.Column)
		}
		if f.Path != "" {
			fmt.Fprintf(w, " (path: %s)", f.Path)
		}
		fmt.Fprintf(w, ": %s\n", f.Message)
	}
}
