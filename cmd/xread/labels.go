package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/gitter-badger/xread/internal/app"
	"github.com/gitter-badger/xread/internal/domain"
)

func newLabelsCmd(name, short string) *cobra.Command {
	var names bool
	cmd := &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				cat := a.Catalog()
				if names {
					all := cat.AllTopics
					if name == "tags" {
						all = cat.AllTags
					}
					values, err := all(ctx)
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), values)
				}

				counted := cat.Topics
				if name == "tags" {
					counted = cat.Tags
				}
				labels, err := counted(ctx)
				if err != nil {
					return err
				}
				if labels == nil {
					labels = []domain.Label{}
				}
				return printJSON(cmd.OutOrStdout(), labels)
			})
		},
	}
	cmd.Flags().BoolVar(&names, "names", false, "print distinct names only")
	return cmd
}
