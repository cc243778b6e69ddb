package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

func newImportCmd() *cobra.Command {
	var (
		fileGlob   string
		sourceFlag string
		deleteFlag bool
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load one or more files matching a glob as records for a data source",
		RunE: withApp(func(ctx context.Context, a *app) error {
			if fileGlob == "" {
				return fmt.Errorf("--file is required")
			}
			if sourceFlag == "" {
				return fmt.Errorf("--source is required")
			}

			ds, err := a.sourceByID(sourceFlag)
			if err != nil {
				return err
			}
			src := ingestSourceConfig(ds)

			paths, err := filepath.Glob(fileGlob)
			if err != nil {
				return fmt.Errorf("--file: %w", err)
			}
			if len(paths) == 0 {
				a.logger.WithContext(ctx).Warnf("import %s: no files matched %q", sourceFlag, fileGlob)
				return nil
			}

			var written int
			for _, path := range paths {
				payload, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read %s: %w", path, err)
				}

				n, err := a.ingest.StoreRecord(ctx, src, "", deleteFlag, payload)
				if err != nil {
					a.logger.WithContext(ctx).WithError(err).Errorf("import %s: failed to store %s", sourceFlag, path)
					continue
				}
				written += n
			}

			a.logger.WithContext(ctx).Infof("import %s: wrote %d record(s) from %d file(s)", sourceFlag, written, len(paths))
			return nil
		}),
	}

	cmd.Flags().StringVar(&fileGlob, "file", "", "glob of files to import (required)")
	cmd.Flags().StringVar(&sourceFlag, "source", "", "data source id the files belong to (required)")
	cmd.Flags().BoolVar(&deleteFlag, "delete", false, "mark the matching records deleted instead of storing them")

	return cmd
}
