package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jbweber/renumber/internal/output"
	"github.com/jbweber/renumber/internal/renumber"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var startAfter bool

var rootCmd = &cobra.Command{
	Use:   "renumber <old-id> <new-id> [yes|no]",
	Short: "Renumber - change a guest's identifier in place",
	Long: `Renumber changes the identifier of a VM or container while keeping its
storage volumes, configuration and local state.

It stops the guest, backs up the original configuration, renames every
backing volume on its storage backend (Ceph RBD, ZFS, LVM-thin), rewrites
the configuration for the new identifier and moves any host-local image
directory. A timestamped backup directory with a rename-mapping log is
left behind for manual recovery.

The optional third argument ("yes" or "no", default "no") starts the
guest after the renumber; --start is the equivalent flag.`,
	Version: fmt.Sprintf("%s (commit: %s)", version, commit),
	Args:    cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		oldID, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("old identifier %q is not a number", args[0])
		}
		newID, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("new identifier %q is not a number", args[1])
		}

		start := startAfter
		if len(args) == 3 {
			switch args[2] {
			case "yes":
				start = true
			case "no":
			default:
				return fmt.Errorf("start flag must be \"yes\" or \"no\", got %q", args[2])
			}
		}

		fmt.Printf("Renumbering guest %d to %d\n", oldID, newID)

		result, err := renumber.Run(renumber.Options{
			OldID:      oldID,
			NewID:      newID,
			StartAfter: start,
		})
		if err != nil {
			return err
		}

		fmt.Println("✓ Renumber completed successfully!")
		fmt.Print(output.FormatResult(result))
		return nil
	},
}

func init() {
	rootCmd.Flags().BoolVar(&startAfter, "start", false, "start the guest after renumbering")
}
