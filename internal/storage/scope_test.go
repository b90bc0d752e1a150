package storage

import (
	"context"
	"errors"
	"testing"
)

func TestWithHandleReleasesOnEveryExitPath(t *testing.T) {
	drv := Track(openTestBolt(t))
	ctx := context.Background()

	if err := WithHandle(ctx, drv, func(Handle) error { return nil }); err != nil {
		t.Fatalf("success path: %v", err)
	}

	boom := errors.New("boom")
	if err := WithHandle(ctx, drv, func(Handle) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("error path returned %v", err)
	}

	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Fatalf("expected panic to propagate")
			}
		}()
		_ = WithHandle(ctx, drv, func(Handle) error { panic("unwind") })
	}()

	if n := drv.Outstanding(); n != 0 {
		t.Fatalf("expected no outstanding handles, got %d", n)
	}
}

func TestWithinReturnsValue(t *testing.T) {
	drv := Track(openTestBolt(t))
	got, err := Within(context.Background(), drv, func(Handle) (int, error) { return 7, nil })
	if err != nil || got != 7 {
		t.Fatalf("Within = %d, %v", got, err)
	}
	if n := drv.Outstanding(); n != 0 {
		t.Fatalf("expected no outstanding handles, got %d", n)
	}
}

func TestWithHandleSurfacesAcquireFailure(t *testing.T) {
	drv := Track(openTestBolt(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := WithHandle(ctx, drv, func(Handle) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if called {
		t.Fatalf("fn must not run when acquire fails")
	}
	if n := drv.Outstanding(); n != 0 {
		t.Fatalf("expected no outstanding handles, got %d", n)
	}
}
