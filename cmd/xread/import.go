package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/gitter-badger/xread/internal/app"
	"github.com/gitter-badger/xread/internal/importer"
)

func newImportCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "import <feed-url>",
		Short: "Fetch an RSS or Atom feed once and store its entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				res, err := a.Importer().Import(ctx, importer.Source{ID: args[0], Name: name, URL: args[0]})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "fallback feed title when the document has none")
	return cmd
}
