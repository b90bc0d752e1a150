// Package app assembles the xread runtime: storage, catalog, enrichment,
// dispatchers and the feed import loop.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gitter-badger/xread/internal/catalog"
	"github.com/gitter-badger/xread/internal/config"
	"github.com/gitter-badger/xread/internal/enrichment"
	"github.com/gitter-badger/xread/internal/importer"
	"github.com/gitter-badger/xread/internal/logger"
	"github.com/gitter-badger/xread/internal/pagination"
	"github.com/gitter-badger/xread/internal/storage"
	"github.com/gitter-badger/xread/pkg/classifier"
	"github.com/gitter-badger/xread/pkg/dispatchers"
)

// App owns every long-lived component. Build it with New, call Start (or
// Run) and always Close it.
type App struct {
	cfg *config.Config
	log logger.Logger

	driver    *storage.TrackedDriver
	catalog   *catalog.Service
	pipeline  *enrichment.Pipeline
	queue     *enrichment.Queue
	fanout    *dispatchers.Fanout
	consumers []dispatchers.Consumer
	importer  *importer.Service
	sources   []importer.Source

	closeOnce sync.Once
	closeErr  error
}

// New builds the runtime from cfg. Nothing runs until Start or Run.
func New(ctx context.Context, cfg *config.Config, log logger.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	log = logger.Ensure(log)
	if ctx == nil {
		ctx = context.Background()
	}

	drv, err := storage.NewDriver(ctx, cfg.StorageType, storage.Options{
		MongoURI:      cfg.MongoURI,
		MongoDatabase: cfg.MongoDatabase,
		BoltPath:      cfg.BBoltPath,
	})
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	tracked := storage.Track(drv)
	log.InfoObj("storage initialized", "storage_config", map[string]any{
		"type":     cfg.StorageType,
		"path":     cfg.BBoltPath,
		"database": cfg.MongoDatabase,
	})

	a := &App{cfg: cfg, log: log, driver: tracked}
	pages := pagination.NewEngine(tracked, pagination.Config{MaxPageSize: cfg.MaxPageSize}, log)
	a.catalog = catalog.NewService(tracked, pages, log)

	cls, err := classifier.New(classifier.Options{
		Type:         cfg.ClassifierType,
		BaseURL:      cfg.ClassifierURL,
		APIKey:       cfg.ClassifierAPIKey,
		SecretKey:    cfg.ClassifierSecretKey,
		Timeout:      cfg.ClassifierTimeout,
		RetryCount:   cfg.ClassifierRetryCount,
		RetryWait:    cfg.ClassifierRetryWait,
		RetryMaxWait: cfg.ClassifierRetryMaxWait,
	}, log)
	if err != nil {
		a.abort(ctx)
		return nil, fmt.Errorf("init classifier: %w", err)
	}
	a.pipeline = enrichment.NewPipeline(a.catalog, cls, cfg.ClassifierTimeout, log)
	a.queue = enrichment.NewQueue(a.pipeline, enrichment.QueueConfig{
		Size:         cfg.EnrichmentQueueSize,
		Workers:      cfg.EnrichmentWorkers,
		DrainTimeout: cfg.DrainTimeout,
	}, log)

	var sink enrichment.Submitter = a.queue
	if cfg.DispatchersFile != "" {
		if err := a.buildDispatchers(ctx); err != nil {
			a.abort(ctx)
			return nil, err
		}
		sink = a.fanout
	}
	a.catalog.SetNotifier(enrichment.NewScheduler(sink, cfg.KeywordsOnUpsert, log))

	a.importer = importer.NewService(nil, a.catalog, cfg.ImportRequestTimeout, log)
	if cfg.SourcesFile != "" {
		srcs, err := importer.LoadSources(cfg.SourcesFile)
		if err != nil {
			a.abort(ctx)
			return nil, fmt.Errorf("load sources: %w", err)
		}
		a.sources = srcs
		ids := make([]string, 0, len(srcs))
		for _, s := range srcs {
			ids = append(ids, s.ID)
		}
		log.InfoObj("sources loaded", "sources_meta", map[string]any{
			"count": len(ids),
			"ids":   ids,
		})
	}

	return a, nil
}

func (a *App) buildDispatchers(ctx context.Context) error {
	reg, err := dispatchers.LoadRegistry(a.cfg.DispatchersFile)
	if err != nil {
		return fmt.Errorf("load dispatchers registry: %w", err)
	}
	enabled := reg.Enabled()
	if len(enabled) == 0 {
		return fmt.Errorf("no dispatchers enabled in %s", a.cfg.DispatchersFile)
	}

	built, err := dispatchers.BuildAll(ctx, dispatchers.DefaultRegistry(), enabled, dispatchers.Deps{
		Local: a.queue,
		Log:   a.log,
	})
	if err != nil {
		return fmt.Errorf("build dispatchers: %w", err)
	}
	a.fanout = dispatchers.NewFanout(built)

	consumers, err := dispatchers.ConsumersFrom(built, enabled)
	if err != nil {
		a.fanout.Close()
		a.fanout = nil
		return fmt.Errorf("build consumers: %w", err)
	}
	a.consumers = consumers

	summaries := make([]map[string]any, 0, len(enabled))
	for _, c := range enabled {
		summaries = append(summaries, map[string]any{"id": c.ID, "type": c.Type, "consume": c.Consume})
	}
	a.log.InfoObj("dispatchers registry loaded", "dispatchers_meta", map[string]any{
		"count":       len(summaries),
		"dispatchers": summaries,
	})
	return nil
}

// Catalog exposes the read/write facade.
func (a *App) Catalog() *catalog.Service { return a.catalog }

// Pipeline exposes synchronous enrichment for explicit requests.
func (a *App) Pipeline() *enrichment.Pipeline { return a.pipeline }

// Importer exposes the feed importer.
func (a *App) Importer() *importer.Service { return a.importer }

// Start launches the enrichment workers.
func (a *App) Start(ctx context.Context) {
	a.queue.Start(ctx)
}

// Run serves until ctx is cancelled: enrichment workers, external queue
// consumers and the import loop. It drains and releases everything before
// returning.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.catalog == nil {
		return fmt.Errorf("app is not initialized")
	}
	a.Start(ctx)

	var wg sync.WaitGroup
	for _, c := range a.consumers {
		wg.Add(1)
		go func(c dispatchers.Consumer) {
			defer wg.Done()
			a.log.InfoObj("consumer starting", "consumer", map[string]any{"id": c.ID(), "type": c.Type()})
			if err := c.Consume(ctx, a.pipeline.Handle); err != nil && ctx.Err() == nil {
				a.log.ErrorObj("consumer stopped", "consumer_error", map[string]any{
					"id":    c.ID(),
					"error": err.Error(),
				})
			}
		}(c)
	}

	if len(a.sources) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.importer.Run(ctx, a.sources, a.cfg.ImportInterval); err != nil {
				a.log.ErrorObj("import loop stopped", "import_error", map[string]any{"error": err.Error()})
			}
		}()
	}

	a.log.InfoObj("xread running", "app_state", map[string]any{
		"consumers":   len(a.consumers),
		"sources":     len(a.sources),
		"dispatchers": a.fanout.Size(),
	})
	<-ctx.Done()
	wg.Wait()
	a.log.InfoObj("xread stopping", "reason", ctx.Err().Error())

	return a.Close(context.WithoutCancel(ctx))
}

// Close drains the enrichment queue, then releases dispatchers and storage.
func (a *App) Close(ctx context.Context) error {
	if a == nil {
		return nil
	}
	a.closeOnce.Do(func() {
		var errs []error
		if a.queue != nil {
			if err := a.queue.Close(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		a.fanout.Close()
		if err := a.driver.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close storage: %w", err))
		}
		if n := a.driver.Outstanding(); n != 0 {
			a.log.WarnObj("storage handles still outstanding at shutdown", "storage_handles", n)
		}
		a.closeErr = errors.Join(errs...)
	})
	return a.closeErr
}

func (a *App) abort(ctx context.Context) {
	a.fanout.Close()
	if err := a.driver.Close(ctx); err != nil {
		a.log.ErrorObj("storage close failed", "error", err.Error())
	}
}
