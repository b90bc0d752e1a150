package dispatchers

import (
	"context"
	"fmt"

	"github.com/gitter-badger/xread/internal/domain"
)

// HandlerFunc processes a task read from an external queue.
type HandlerFunc func(ctx context.Context, task domain.Task) error

// Consumer reads tasks from an external queue until its context ends.
type Consumer interface {
	ID() string
	Type() string
	Consume(ctx context.Context, handle HandlerFunc) error
}

// ConsumersFrom returns the dispatchers that can also be consumed and are
// marked for consumption in cfgs.
func ConsumersFrom(ds []Dispatcher, cfgs []Config) ([]Consumer, error) {
	want := make(map[string]bool, len(cfgs))
	for _, cfg := range cfgs {
		if cfg.Consume {
			want[cfg.ID] = true
		}
	}

	var out []Consumer
	for _, d := range ds {
		if !want[d.ID()] {
			continue
		}
		c, ok := d.(Consumer)
		if !ok {
			return nil, fmt.Errorf("dispatcher %q of type %q cannot be consumed", d.ID(), d.Type())
		}
		out = append(out, c)
	}
	return out, nil
}
