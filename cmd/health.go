package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/juju/errors"
	"github.com/spf13/cobra"

	"github.com/ridoystarlord/archiveprune/introspect"
)

var healthCmd = &cobra.Command{
	Use:   "health <base-dir>",
	Short: "Check database connectivity",
	Long: `Check if the configured store is accessible and responsive.

Examples:
  archiveprune health /data/pcf                # Check the configured store
  archiveprune health /data/pcf --timeout 10s  # Set custom timeout
`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := checkDatabaseHealth(args[0]); err != nil {
			fmt.Printf("❌ Database health check failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("✅ Database is healthy and accessible")
	},
}

var healthTimeout time.Duration

func init() {
	healthCmd.Flags().DurationVarP(&healthTimeout, "timeout", "t", 5*time.Second, "Timeout for health check")
}

func checkDatabaseHealth(baseDir string) error {
	ctx, cancel := context.WithTimeout(context.Background(), healthTimeout)
	defer cancel()

	s, err := loadSession(configFile, baseDir, sandboxPolicy, nil)
	if err != nil {
		return errors.Trace(err)
	}
	if err := s.connect(ctx); err != nil {
		return errors.Trace(err)
	}
	defer s.Close()

	if err := s.store.Ping(ctx); err != nil {
		return errors.Annotate(err, "failed to ping database")
	}

	tables, err := introspect.Tables(ctx, s.store)
	if err != nil {
		return errors.Annotate(err, "failed to list tables")
	}
	fmt.Printf("📊 %s store with %d tables\n", s.store.Dialect(), len(tables))

	known := make(map[string]bool, len(tables))
	for _, t := range tables {
		known[t.Name] = true
	}
	for _, n := range s.config.Workflows {
		if !known[n.Table] {
			fmt.Printf("⚠️  Workflow table %s not found in the store\n", n.Table)
		}
	}
	return nil
}
