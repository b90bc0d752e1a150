package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/gitter-badger/xread/internal/app"
	"github.com/gitter-badger/xread/internal/catalog"
)

func newFeedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Read and write feeds",
	}

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Print one feed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				feed, err := a.Catalog().GetFeed(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), feed)
			})
		},
	}

	var page pageFlags
	list := &cobra.Command{
		Use:   "list",
		Short: "Print a page of feeds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				feeds, err := a.Catalog().ListFeeds(ctx, page.request(cmd))
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), feeds)
			})
		},
	}
	page.register(list)

	var title string
	add := &cobra.Command{
		Use:   "add <link>",
		Short: "Create or update a feed keyed by its link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				feed, err := a.Catalog().AddFeed(ctx, catalog.FeedInput{Link: args[0], Title: title})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), feed)
			})
		},
	}
	add.Flags().StringVar(&title, "title", "", "feed title")

	cmd.AddCommand(get, list, add)
	return cmd
}
