package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/recordmanager/internal/config"
)

func newDataSourcesCmd() *cobra.Command {
	var searchFlag string

	cmd := &cobra.Command{
		Use:   "datasources",
		Short: "List configured data sources, optionally filtered by a regular expression",
		RunE: withApp(func(ctx context.Context, a *app) error {
			if searchFlag == "" {
				return listAllSources(a.sources)
			}
			ids, err := config.Search(a.sources, searchFlag)
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Println(id)
			}
			return nil
		}),
	}

	cmd.Flags().StringVar(&searchFlag, "search", "", "regular expression to match source ids against")
	return cmd
}

func listAllSources(sources map[string]config.DataSource) error {
	ids, err := config.Search(sources, ".")
	if err != nil {
		return err
	}
	for _, id := range ids {
		fmt.Println(id)
	}
	return nil
}
