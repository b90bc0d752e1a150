package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/gitter-badger/xread/internal/app"
	"github.com/gitter-badger/xread/internal/config"
	"github.com/gitter-badger/xread/internal/logger"
	"github.com/gitter-badger/xread/internal/pagination"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "xread",
		Short:         "Feed reader backend with cursor pagination and background enrichment",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newServeCmd(),
		newFeedCmd(),
		newArticleCmd(),
		newLabelsCmd("tags", "List article tags as {id, name} items"),
		newLabelsCmd("topics", "List article topics as {id, name} items"),
		newImportCmd(),
	)
	return root
}

// withApp loads config, builds the runtime with its enrichment workers
// running, calls fn and drains before returning.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.Init(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.ErrorObj("failed to initialize xread", "error", err.Error())
		return err
	}
	a.Start(ctx)

	runErr := fn(ctx, a)
	if err := a.Close(context.WithoutCancel(ctx)); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type pageFlags struct {
	first, last   int
	after, before string
}

func (p *pageFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&p.first, "first", 20, "number of records after the --after cursor")
	cmd.Flags().StringVar(&p.after, "after", "", "cursor to page forward from")
	cmd.Flags().IntVar(&p.last, "last", 0, "number of records before the --before cursor")
	cmd.Flags().StringVar(&p.before, "before", "", "cursor to page backward from")
}

// request maps the flags onto a page request. --last switches to backward
// paging unless --first was also given, which the engine rejects.
func (p *pageFlags) request(cmd *cobra.Command) pagination.Request {
	flags := cmd.Flags()
	if !flags.Changed("last") {
		return pagination.Forward(p.first, p.after)
	}
	req := pagination.Backward(p.last, p.before)
	if flags.Changed("first") {
		first := p.first
		req.First = &first
	}
	if flags.Changed("after") {
		req.After = p.after
	}
	return req
}
