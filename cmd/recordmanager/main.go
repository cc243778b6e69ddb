// Command recordmanager is the operator-facing CLI: harvest, import,
// export, manage, and datasources subcommands over the ingest/dedup/solr
// update pipeline, grounded on meadow-test's Cobra-based command layout.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "recordmanager",
		Short:         "Harvest, normalize, deduplicate, and index bibliographic metadata",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newHarvestCmd(),
		newImportCmd(),
		newExportCmd(),
		newManageCmd(),
		newDataSourcesCmd(),
	)
	return root
}

// withApp bootstraps the dependency graph, runs fn, and always tears the
// graph back down, so every subcommand's RunE is just fn's body.
func withApp(fn func(ctx context.Context, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()
		return fn(ctx, a)
	}
}
