package dispatchers

import (
	"context"
	"fmt"

	"github.com/gitter-badger/xread/internal/domain"
)

type localDispatcher struct {
	id    string
	queue Submitter
}

func newLocalDispatcher(_ context.Context, cfg Config, deps Deps) (Dispatcher, error) {
	if deps.Local == nil {
		return nil, fmt.Errorf("dispatcher %q: no local queue available", cfg.ID)
	}
	return &localDispatcher{id: cfg.ID, queue: deps.Local}, nil
}

// NewLocal wraps an in-process queue as a dispatcher.
func NewLocal(id string, queue Submitter) Dispatcher {
	return &localDispatcher{id: id, queue: queue}
}

func (l *localDispatcher) ID() string   { return l.id }
func (l *localDispatcher) Type() string { return TypeLocal }

func (l *localDispatcher) Dispatch(ctx context.Context, task domain.Task) error {
	return l.queue.Submit(ctx, task)
}
