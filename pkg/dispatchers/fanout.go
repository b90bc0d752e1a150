package dispatchers

import (
	"context"
	"errors"
	"fmt"

	"github.com/gitter-badger/xread/internal/domain"
)

// Fanout dispatches tasks to all configured dispatchers.
type Fanout struct {
	dispatchers []Dispatcher
}

// NewFanout builds a dispatcher that fans out tasks across dispatchers.
func NewFanout(ds []Dispatcher) *Fanout {
	cp := make([]Dispatcher, 0, len(ds))
	for _, d := range ds {
		if d == nil {
			continue
		}
		cp = append(cp, d)
	}
	return &Fanout{dispatchers: cp}
}

// Dispatch forwards the task to every registered dispatcher.
// It returns the number of dispatchers that successfully accepted the task.
func (f *Fanout) Dispatch(ctx context.Context, task domain.Task) (int, error) {
	if f == nil || len(f.dispatchers) == 0 {
		return 0, nil
	}

	var errs []error
	successful := 0
	for _, d := range f.dispatchers {
		if err := d.Dispatch(ctx, task); err != nil {
			errs = append(errs, fmt.Errorf("%s dispatcher[%s]: %w", d.Type(), d.ID(), err))
		} else {
			successful++
		}
	}
	return successful, errors.Join(errs...)
}

// Submit dispatches task and fails only when no dispatcher accepted it.
func (f *Fanout) Submit(ctx context.Context, task domain.Task) error {
	n, err := f.Dispatch(ctx, task)
	if n == 0 {
		if err == nil {
			err = errors.New("no dispatchers configured")
		}
		return err
	}
	return nil
}

// Size returns the number of active dispatchers.
func (f *Fanout) Size() int {
	if f == nil {
		return 0
	}
	return len(f.dispatchers)
}

// Close releases dispatchers that hold network clients.
func (f *Fanout) Close() {
	if f == nil {
		return
	}
	closeAll(f.dispatchers)
}
