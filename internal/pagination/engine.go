package pagination

import (
	"context"
	"strings"

	"github.com/gitter-badger/xread/internal/logger"
	"github.com/gitter-badger/xread/internal/storage"
)

// Config bounds page sizes.
type Config struct {
	MaxPageSize int
}

const defaultMaxPageSize = 100

// Engine builds and executes connection queries.
type Engine struct {
	driver storage.Driver
	cfg    Config
	log    logger.Logger
}

// NewEngine creates an engine over driver.
func NewEngine(driver storage.Driver, cfg Config, log logger.Logger) *Engine {
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = defaultMaxPageSize
	}
	return &Engine{driver: driver, cfg: cfg, log: logger.Ensure(log)}
}

// Query translates a validated request into a store query. Limits above the
// configured maximum are clamped.
func (e *Engine) Query(schema Schema, req Request) (storage.Query, error) {
	if err := req.Validate(); err != nil {
		return storage.Query{}, err
	}

	codec := e.driver.Codec()
	q := storage.Query{}
	if req.Forward() {
		q.Order = storage.Ascending
		q.Limit = *req.First
		if req.After != "" {
			key, err := codec.Decode(req.After)
			if err != nil {
				return storage.Query{}, err
			}
			q.After = key
		}
	} else {
		q.Order = storage.Descending
		q.Limit = *req.Last
		if req.Before != "" {
			key, err := codec.Decode(req.Before)
			if err != nil {
				return storage.Query{}, err
			}
			q.Before = key
		}
	}
	if q.Limit > e.cfg.MaxPageSize {
		q.Limit = e.cfg.MaxPageSize
	}

	for _, key := range req.filterKeys() {
		value := strings.TrimSpace(req.Filters[key])
		if value == "" {
			continue
		}
		field, ok := schema.Fields[key]
		if !ok {
			e.log.DebugObj("ignoring filter not accepted by collection", "pagination_filter", map[string]any{
				"collection": schema.Collection,
				"key":        string(key),
			})
			continue
		}
		q.Filter.Eq = append(q.Filter.Eq, storage.Cond{Field: field, Value: value})
	}
	return q, nil
}

// List runs one snapshot query and returns documents in the requested
// direction. An empty result is not an error.
func (e *Engine) List(ctx context.Context, schema Schema, req Request) ([]storage.Document, error) {
	q, err := e.Query(schema, req)
	if err != nil {
		return nil, err
	}

	return storage.Within(ctx, e.driver, func(h storage.Handle) ([]storage.Document, error) {
		return h.Collection(schema.Collection).Find(ctx, q)
	})
}

// ID returns the external id of a document.
func (e *Engine) ID(doc storage.Document) string {
	return e.driver.Codec().Encode(doc.Key())
}
