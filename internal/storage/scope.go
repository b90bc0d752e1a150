package storage

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/gitter-badger/xread/internal/cursor"
)

// WithHandle acquires a handle from d, runs fn with it and releases the handle
// on every exit path, including a panic inside fn.
func WithHandle(ctx context.Context, d Driver, fn func(Handle) error) (err error) {
	h, err := d.Acquire(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := h.Close(context.WithoutCancel(ctx)); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(h)
}

// Within is WithHandle for operations that produce a value.
func Within[T any](ctx context.Context, d Driver, fn func(Handle) (T, error)) (T, error) {
	var out T
	err := WithHandle(ctx, d, func(h Handle) error {
		var ferr error
		out, ferr = fn(h)
		return ferr
	})
	return out, err
}

// TrackedDriver counts handles that were acquired but not yet released.
type TrackedDriver struct {
	Driver
	open atomic.Int64
}

// Track wraps d so outstanding handles can be observed.
func Track(d Driver) *TrackedDriver {
	return &TrackedDriver{Driver: d}
}

// Acquire leases a handle from the wrapped driver.
func (t *TrackedDriver) Acquire(ctx context.Context) (Handle, error) {
	h, err := t.Driver.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	t.open.Add(1)
	return &trackedHandle{Handle: h, owner: t}, nil
}

// Outstanding returns the number of handles not yet closed.
func (t *TrackedDriver) Outstanding() int64 {
	return t.open.Load()
}

// Codec forwards to the wrapped driver.
func (t *TrackedDriver) Codec() cursor.Codec { return t.Driver.Codec() }

type trackedHandle struct {
	Handle
	owner *TrackedDriver
	once  sync.Once
}

func (h *trackedHandle) Close(ctx context.Context) error {
	var err error
	h.once.Do(func() {
		h.owner.open.Add(-1)
		err = h.Handle.Close(ctx)
	})
	return err
}
