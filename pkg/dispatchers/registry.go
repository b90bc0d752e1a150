// Package dispatchers hands enrichment tasks to in-process or external
// queues, and reads them back from the external ones.
package dispatchers

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/gitter-badger/xread/internal/domain"
)

// Dispatcher delivers a task to one sink (local queue, SQS, HTTP, etc).
type Dispatcher interface {
	ID() string
	Type() string
	Dispatch(ctx context.Context, task domain.Task) error
}

// Submitter is the in-process queue a local dispatcher feeds.
type Submitter interface {
	Submit(ctx context.Context, task domain.Task) error
}

// Deps carries process-level collaborators for builders.
type Deps struct {
	Local Submitter
	Log   Logger
}

// Builder creates a Dispatcher from a config entry.
type Builder func(ctx context.Context, cfg Config, deps Deps) (Dispatcher, error)

// Registry maps dispatcher types to builders.
type Registry interface {
	Register(typ string, builder Builder)
	DispatcherFor(ctx context.Context, cfg Config, deps Deps) (Dispatcher, error)
}

type registry struct {
	mu       sync.RWMutex
	builders map[string]Builder
}

// NewRegistry returns a registry with optional pre-registered builders.
func NewRegistry(builders map[string]Builder) Registry {
	r := &registry{
		builders: make(map[string]Builder),
	}
	for typ, b := range builders {
		r.Register(typ, b)
	}
	return r
}

// Register associates a builder with a dispatcher type.
func (r *registry) Register(typ string, builder Builder) {
	if typ = strings.TrimSpace(strings.ToLower(typ)); typ == "" || builder == nil {
		return
	}

	r.mu.Lock()
	r.builders[typ] = builder
	r.mu.Unlock()
}

// DispatcherFor returns the dispatcher built for the provided config.
func (r *registry) DispatcherFor(ctx context.Context, cfg Config, deps Deps) (Dispatcher, error) {
	if cfg.Type == "" {
		return nil, fmt.Errorf("dispatcher %q has no type configured", cfg.ID)
	}

	r.mu.RLock()
	builder := r.builders[strings.ToLower(cfg.Type)]
	r.mu.RUnlock()

	if builder == nil {
		return nil, fmt.Errorf("no dispatcher registered for type %q", cfg.Type)
	}
	return builder(ctx, cfg, deps)
}

// DefaultRegistry wires up known dispatchers.
func DefaultRegistry() Registry {
	return NewRegistry(map[string]Builder{
		TypeLocal:  newLocalDispatcher,
		TypeHTTP:   newHTTPDispatcher,
		TypeSQS:    newSQSDispatcher,
		TypeSNS:    newSNSDispatcher,
		TypePubSub: newPubSubDispatcher,
	})
}

// BuildAll instantiates dispatchers for configs using the registry.
func BuildAll(ctx context.Context, reg Registry, cfgs []Config, deps Deps) ([]Dispatcher, error) {
	if reg == nil || len(cfgs) == 0 {
		return nil, nil
	}

	var out []Dispatcher
	for _, cfg := range cfgs {
		d, err := reg.DispatcherFor(ctx, cfg, deps)
		if err != nil {
			closeAll(out)
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// closer is implemented by dispatchers holding network clients.
type closer interface {
	Close() error
}

func closeAll(ds []Dispatcher) {
	for _, d := range ds {
		if c, ok := d.(closer); ok {
			_ = c.Close()
		}
	}
}
