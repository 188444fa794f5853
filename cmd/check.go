package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/juju/errors"
	"github.com/spf13/cobra"

	"github.com/ridoystarlord/archiveprune/validator"
)

var checkCmd = &cobra.Command{
	Use:   "check <base-dir>",
	Short: "Compute the schema hash and compare it with the configuration",
	Long: `Compute the schema hash of the configured store and compare it with
the hash of the DataBase entry in file_paths.

Use the printed hash to fill in the configuration after a schema change.
The command exits with status 1 when the hashes differ.

Examples:
  archiveprune check /data/pcf               # Compare with config.yaml
  archiveprune check /data/pcf --tables      # Also print per-table digests
  archiveprune check /data/pcf --timeout 30s # Set custom timeout
`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := checkSchemaHash(args[0]); err != nil {
			fmt.Printf("❌ Schema check failed: %v\n", err)
			os.Exit(1)
		}
	},
}

var (
	checkTimeout time.Duration
	checkTables  bool
)

func init() {
	checkCmd.Flags().DurationVarP(&checkTimeout, "timeout", "t", 30*time.Second, "Timeout for schema check")
	checkCmd.Flags().BoolVar(&checkTables, "tables", false, "Print the digest of every table")
}

func checkSchemaHash(baseDir string) error {
	ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
	defer cancel()

	s, err := loadSession(configFile, baseDir, sandboxPolicy, nil)
	if err != nil {
		return errors.Trace(err)
	}
	if err := s.connect(ctx); err != nil {
		return errors.Trace(err)
	}
	defer s.Close()

	v := validator.NewSchemaValidator(s.store)
	if checkTables {
		digests, err := v.TableDigests(ctx)
		if err != nil {
			return errors.Trace(err)
		}
		fmt.Printf("📋 Tables (%d):\n", len(digests))
		for _, d := range digests {
			fmt.Printf("  %-32s %s\n", d.Table, d.Digest)
		}
		fmt.Println(strings.Repeat("-", 60))
	}

	expected := s.resolved.ExpectedHash
	if expected == "" {
		actual, err := v.Fingerprint(ctx)
		if err != nil {
			return errors.Trace(err)
		}
		fmt.Printf("🔑 Schema hash: %s\n", actual)
		color.Yellow("⚠️  No schema hash configured; runs will skip schema validation")
		return nil
	}

	actual, err := v.Verify(ctx, expected)
	if actual != "" {
		fmt.Printf("🔑 Schema hash: %s\n", actual)
	}
	if err != nil {
		if errors.Is(err, validator.SchemaMismatch) {
			fmt.Printf("   Expected:    %s\n", expected)
		}
		return err
	}
	color.Green("✅ Schema hash matches the configuration")
	return nil
}
