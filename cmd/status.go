package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/juju/errors"
	"github.com/spf13/cobra"

	"github.com/ridoystarlord/archiveprune/loader"
	"github.com/ridoystarlord/archiveprune/workflow"
)

var statusCmd = &cobra.Command{
	Use:   "status [base-dir]",
	Short: "Show the configured workflow tree",
	Long: `Show the workflow tree in the order a run visits it, with the record
directory of each table. With <base-dir> the directories are resolved the
way a run resolves them.

Examples:
  archiveprune status
  archiveprune status /data/pcf
`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		baseDir := ""
		if len(args) == 1 {
			baseDir = args[0]
		}
		if err := showStatus(baseDir); err != nil {
			fmt.Println("❌ Status error:", err)
			os.Exit(1)
		}
	},
}

func showStatus(baseDir string) error {
	cfg, err := loader.LoadConfig(configFile)
	if err != nil {
		return errors.Trace(err)
	}
	graph, err := workflow.Build(cfg.Workflows)
	if err != nil {
		return errors.Trace(err)
	}

	dirs := make(map[string]string, len(cfg.FilePaths))
	for table, p := range cfg.FilePaths {
		dirs[table] = p.Path
	}
	if baseDir != "" {
		s, err := loadSession(configFile, baseDir, sandboxPolicy, nil)
		if err != nil {
			return errors.Trace(err)
		}
		dirs = s.resolved.Files
	}

	fmt.Println("🌳 Workflow tree:")
	var sb strings.Builder
	writeTree(&sb, graph, graph.Root(), dirs, 0, map[string]bool{})
	fmt.Print(sb.String())

	if db, ok := cfg.FilePaths[loader.DatabaseKey]; ok {
		fmt.Printf("\n🗄️  Store: %s", db.Path)
		if db.Hash == "" {
			color.Yellow(" (no schema hash)")
		} else {
			fmt.Printf(" (hash %s)\n", db.Hash)
		}
	}

	if unreachable := graph.Unreachable(); len(unreachable) > 0 {
		color.Yellow("\n⚠️  Never run (parent not reachable from the root):")
		for _, n := range unreachable {
			fmt.Println("   -", n)
		}
	}
	return nil
}

// writeTree renders n and its children. A table already on the current
// path is printed once more and not expanded.
func writeTree(sb *strings.Builder, g *workflow.Graph, n workflow.Node, dirs map[string]string, depth int, path map[string]bool) {
	fmt.Fprintf(sb, "%s- %s.%s by %s", strings.Repeat("  ", depth+1), n.Table, n.Column, n.WhereClause)
	if n.IsRoot() {
		fmt.Fprintf(sb, " = %q", n.Params)
	}
	if dir, ok := dirs[n.Table]; ok {
		fmt.Fprintf(sb, "  📁 %s", dir)
	}
	if path[n.Table] {
		sb.WriteString("  ↺ (repeats for each level)\n")
		return
	}
	sb.WriteString("\n")

	path[n.Table] = true
	for _, c := range g.ChildrenOf(n.Table) {
		writeTree(sb, g, c, dirs, depth+1, path)
	}
	delete(path, n.Table)
}
