package lifecycle

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestLoopRunnerStartStopIdempotent(t *testing.T) {
	t.Parallel()

	r := NewLoopRunner()
	if r.Start(nil) {
		t.Fatalf("expected nil loop to be rejected")
	}
	exited := make(chan struct{})
	if !r.Start(func(stop <-chan struct{}) { <-stop; close(exited) }) {
		t.Fatalf("expected first start to succeed")
	}
	if r.Start(func(stop <-chan struct{}) { <-stop }) {
		t.Fatalf("expected second start to be ignored")
	}
	if !r.Running() {
		t.Fatalf("expected running")
	}
	if !r.Stop() {
		t.Fatalf("expected stop to succeed")
	}
	select {
	case <-exited:
	default:
		t.Fatalf("expected loop to have exited when Stop returned")
	}
	if r.Stop() || r.Running() {
		t.Fatalf("expected runner stopped")
	}
}

func TestEveryTicksUntilStopped(t *testing.T) {
	t.Parallel()

	var n int32
	r := NewLoopRunner()
	r.Start(Every(5*time.Millisecond, func() { atomic.AddInt32(&n, 1) }))
	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt32(&n) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	r.Stop()
	if atomic.LoadInt32(&n) < 2 {
		t.Fatalf("expected at least two ticks, got %d", n)
	}
}

func TestWithContextCancelsOnStop(t *testing.T) {
	t.Parallel()

	r := NewLoopRunner()
	done := make(chan struct{})
	r.Start(WithContext(func(ctx context.Context) {
		<-ctx.Done()
		close(done)
	}))
	r.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("expected context canceled on stop")
	}
}
