package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/gitter-badger/xread/internal/app"
	"github.com/gitter-badger/xread/internal/catalog"
	"github.com/gitter-badger/xread/internal/pagination"
)

func newArticleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "article",
		Short: "Read, write and enrich articles",
	}
	cmd.AddCommand(
		newArticleGetCmd(),
		newArticleListCmd(),
		newArticleAddCmd(),
		newArticleClassifyCmd(),
		newArticleKeywordsCmd(),
	)
	return cmd
}

func newArticleGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Print one article",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				article, err := a.Catalog().GetArticle(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), article)
			})
		},
	}
}

func newArticleListCmd() *cobra.Command {
	var (
		page               pageFlags
		feedID, tag, topic string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print a page of articles, optionally filtered",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := page.request(cmd)
			for key, value := range map[pagination.FilterKey]string{
				pagination.FilterFeedID: feedID,
				pagination.FilterTag:    tag,
				pagination.FilterTopic:  topic,
			} {
				if value != "" {
					req = req.With(key, value)
				}
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				articles, err := a.Catalog().ListArticles(ctx, req)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), articles)
			})
		},
	}
	page.register(cmd)
	cmd.Flags().StringVar(&feedID, "feed-id", "", "only articles of this feed")
	cmd.Flags().StringVar(&tag, "tag", "", "only articles carrying this tag")
	cmd.Flags().StringVar(&topic, "topic", "", "only articles with this topic")
	return cmd
}

func newArticleAddCmd() *cobra.Command {
	var in catalog.ArticleInput
	cmd := &cobra.Command{
		Use:   "add <link>",
		Short: "Create or update an article keyed by title and link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Link = args[0]
			if in.Time == 0 {
				in.Time = time.Now().UnixMilli()
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				article, err := a.Catalog().AddArticle(ctx, in)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), article)
			})
		},
	}
	cmd.Flags().StringVar(&in.Title, "title", "", "article title")
	cmd.Flags().StringVar(&in.Summary, "summary", "", "article summary (HTML allowed)")
	cmd.Flags().Int64Var(&in.Time, "time", 0, "publication time in epoch milliseconds (default now)")
	cmd.Flags().StringVar(&in.FeedID, "feed-id", "", "owning feed id")
	return cmd
}

func newArticleClassifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <id>",
		Short: "Classify an article's topic now and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				article, err := a.Catalog().GetArticle(ctx, args[0])
				if err != nil {
					return err
				}
				topic, err := a.Pipeline().ClassifyTopic(ctx, article)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]string{"id": article.ID, "topic": topic})
			})
		},
	}
}

func newArticleKeywordsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keywords <id>",
		Short: "Extract keywords for an article, store them as tags and print them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				article, err := a.Catalog().GetArticle(ctx, args[0])
				if err != nil {
					return err
				}
				tags, err := a.Pipeline().ExtractKeywords(ctx, article)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{"id": article.ID, "tags": tags})
			})
		},
	}
}
