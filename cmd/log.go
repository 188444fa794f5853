package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/juju/loggo"
	"github.com/spf13/cobra"

	"github.com/ridoystarlord/archiveprune/logging"
)

var (
	logLimit    int
	logMinLevel string
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Show recent run log entries",
	Long: `Show recent entries of the run log.

Examples:
  archiveprune log                    # Show the last 50 entries
  archiveprune log --limit 20         # Show the last 20 entries
  archiveprune log --level warn       # Only warnings and errors
  archiveprune log --log-file ./x.log # Read another run log
`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		lines, err := logging.Tail(logFile, logLimit, logMinLevel)
		if err != nil {
			fmt.Printf("❌ Error reading run log: %v\n", err)
			os.Exit(1)
		}

		if len(lines) == 0 {
			fmt.Println("📋 No run log entries found")
			return
		}
		showLogLines(lines)
	},
}

func showLogLines(lines []logging.Line) {
	yellow := color.New(color.FgYellow, color.Bold)
	red := color.New(color.FgRed, color.Bold)
	blue := color.New(color.FgBlue, color.Bold)
	cyan := color.New(color.FgCyan)

	fmt.Println("📋 Recent Run Log Entries")
	fmt.Println(strings.Repeat("=", 60))

	for _, line := range lines {
		switch level := line.Severity(); {
		case level >= loggo.ERROR:
			red.Print("❌ ")
		case level == loggo.WARNING:
			yellow.Print("⚠️  ")
		case level == loggo.INFO:
			blue.Print("ℹ️  ")
		default:
			fmt.Print("📝 ")
		}
		cyan.Printf("[%s] ", line.Timestamp.Format(logging.TimestampLayout))
		fmt.Println(line.Message)
	}

	fmt.Println(strings.Repeat("-", 60))
	fmt.Printf("📊 Showing %d log entries\n", len(lines))
}

func init() {
	logCmd.Flags().IntVarP(&logLimit, "limit", "l", 50, "Limit number of log entries to show")
	logCmd.Flags().StringVar(&logMinLevel, "level", "INFO", "Minimum level to show")
}
