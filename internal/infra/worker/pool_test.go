//go:build !integration

package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPool(t *testing.T) {
	t.Run("runs submitted tasks", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		p := NewPool("test", 3, nil)
		p.Start(ctx)
		defer p.Stop()

		var n int32
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			err := p.SubmitWait(ctx, func(ctx context.Context) error {
				defer wg.Done()
				atomic.AddInt32(&n, 1)
				return nil
			})
			if err != nil {
				t.Fatalf("submit: %v", err)
			}
		}
		wg.Wait()
		if got := atomic.LoadInt32(&n); got != 10 {
			t.Fatalf("ran %d tasks, want 10", got)
		}
	})

	t.Run("survives failing and panicking tasks", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		p := NewPool("test", 1, nil)
		p.Start(ctx)
		defer p.Stop()

		_ = p.SubmitWait(ctx, func(context.Context) error { return errors.New("boom") })
		_ = p.SubmitWait(ctx, func(context.Context) error { panic("boom") })
		done := make(chan struct{})
		_ = p.SubmitWait(ctx, func(context.Context) error { close(done); return nil })
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("worker did not recover")
		}
	})

	t.Run("submit reports a full queue", func(t *testing.T) {
		p := NewPool("test", 1, nil) // not started: nothing drains the queue
		var err error
		for i := 0; i < 10 && err == nil; i++ {
			err = p.Submit(func(context.Context) error { return nil })
		}
		if !errors.Is(err, ErrQueueFull) {
			t.Fatalf("want ErrQueueFull, got %v", err)
		}
		if err := p.Submit(nil); err == nil {
			t.Fatal("nil task accepted")
		}
	})

	t.Run("submit wait honours context", func(t *testing.T) {
		p := NewPool("test", 1, nil)
		for p.Submit(func(context.Context) error { return nil }) == nil {
		}
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		if err := p.SubmitWait(ctx, func(context.Context) error { return nil }); !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("want deadline exceeded, got %v", err)
		}
	})
}
