package cmd

import (
	"fmt"
	"os"

	"github.com/juju/errors"
	"github.com/spf13/cobra"
)

var initForce bool

const sampleConfig = `# Workflows form a tree keyed by table name. The workflow without a parent
# is the root and binds params; every other workflow binds the ids selected
# by its parent. Children are always deleted before their parent.
workflows:
  - table: Orders
    column: id
    where_clause: id
    params: "1001"
  - table: OrderItems
    column: id
    where_clause: order_id
    parent: Orders
  - table: ItemNotes
    column: id
    where_clause: item_id
    parent: OrderItems

# Directories holding one file per record, named by the record id. Relative
# paths are resolved inside the base directory given on the command line.
# DataBase is the store itself; its hash is the expected schema hash printed
# by "archiveprune check".
file_paths:
  DataBase:
    path: archive.db
    hash: ""
  Orders:
    path: files/orders
  OrderItems:
    path: files/items

# Optional. sqlite (default), postgres, mysql or sqlserver. Network drivers
# read dsn, or DATABASE_URL when set.
store:
  driver: sqlite
  foreign_keys: true

# Optional. fail-open (default) falls back to the base directory when a path
# escapes it; fail-closed refuses the path.
sandbox:
  policy: fail-open
`

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a sample configuration file",
	Long: `Write a commented sample configuration to the --config path.

Examples:
  archiveprune init                       # Write config.yaml next to the binary
  archiveprune init --config ./config.yaml
  archiveprune init --force               # Overwrite an existing file`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if err := writeSampleConfig(configFile, initForce); err != nil {
			fmt.Printf("❌ %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("✅ Created %s\n", configFile)
		fmt.Println("📝 Next steps:")
		fmt.Println("   1. Edit the workflows and file_paths for your store")
		fmt.Println("   2. Run 'archiveprune check <base-dir>' and copy the hash into file_paths.DataBase")
		fmt.Println("   3. Run 'archiveprune validate <base-dir>'")
		fmt.Println("   4. Try 'archiveprune <base-dir> --dry-run'")
	},
}

func writeSampleConfig(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return errors.AlreadyExistsf("%s (use --force to overwrite)", path)
	}
	return errors.Trace(os.WriteFile(path, []byte(sampleConfig), 0o644))
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing configuration file")
}
