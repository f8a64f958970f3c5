package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ajitpratap0/syncflow/pkg/connector/registry"

	// Register the SQL connectors
	_ "github.com/ajitpratap0/syncflow/pkg/connector/destinations/sqldest"
	_ "github.com/ajitpratap0/syncflow/pkg/connector/sources/sqlsource"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "syncflow",
		Short: "syncflow - scheduled, rate limited syncs between SQL databases",
		Long: `syncflow moves the rows of a model query from a source database into a
destination table. Syncs run on demand or on an interval or cron schedule;
writes are paced by the destination's rate limit and full refresh syncs clear
the destination before their first write.`,
		SilenceUsage: true,
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "syncflow v%s\n", version)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List available connectors",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Available Source Connectors:")
			for _, source := range registry.ListSources() {
				fmt.Fprintf(out, "  - %s\n", source)
			}
			fmt.Fprintln(out, "\nAvailable Destination Connectors:")
			for _, dest := range registry.ListDestinations() {
				fmt.Fprintf(out, "  - %s\n", dest)
			}
		},
	})

	root.AddCommand(newValidateCommand())
	root.AddCommand(newRunCommand())
	root.AddCommand(newScheduleCommand())
	return root
}
