package lifecycle

import (
	"context"
	"sync"
	"time"
)

// LoopRunner provides a reusable start/stop lifecycle for background loops.
// It guarantees idempotent start/stop and waits for loop exit on stop.
type LoopRunner struct {
	mu      sync.RWMutex
	wg      sync.WaitGroup
	running bool
	stopCh  chan struct{}
}

func NewLoopRunner() *LoopRunner {
	return &LoopRunner{}
}

func (r *LoopRunner) Start(loop func(stop <-chan struct{})) bool {
	if loop == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return false
	}

	stopCh := make(chan struct{})
	r.stopCh = stopCh
	r.running = true
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		loop(stopCh)
	}()
	return true
}

func (r *LoopRunner) Stop() bool {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return false
	}
	stopCh := r.stopCh
	r.stopCh = nil
	r.running = false
	close(stopCh)
	r.mu.Unlock()

	r.wg.Wait()
	return true
}

func (r *LoopRunner) Running() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

// Every builds a loop that calls fn on each tick until stopped.
func Every(interval time.Duration, fn func()) func(stop <-chan struct{}) {
	return func(stop <-chan struct{}) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				fn()
			}
		}
	}
}

// WithContext adapts a context-driven loop to the stop channel.
func WithContext(loop func(ctx context.Context)) func(stop <-chan struct{}) {
	return func(stop <-chan struct{}) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			select {
			case <-stop:
				cancel()
			case <-ctx.Done():
			}
		}()
		loop(ctx)
	}
}
