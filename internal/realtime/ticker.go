package realtime

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultProgressInterval is how often playback progress is published.
const DefaultProgressInterval = time.Second

// ProgressFunc produces the sample to publish on each tick.
type ProgressFunc func(ctx context.Context) any

// ProgressTicker periodically publishes playback progress to observers. It
// is an explicitly owned repeating timer with a start/stop handle, so tests
// and shutdown can halt it deterministically.
type ProgressTicker struct {
	interval time.Duration
	progress ProgressFunc
	publish  func(any)

	started  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewProgressTicker returns a stopped ticker. interval <= 0 uses
// DefaultProgressInterval.
func NewProgressTicker(interval time.Duration, progress ProgressFunc, publish func(any)) *ProgressTicker {
	if interval <= 0 {
		interval = DefaultProgressInterval
	}
	return &ProgressTicker{
		interval: interval,
		progress: progress,
		publish:  publish,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins ticking in a background goroutine until Stop is called or
// ctx is canceled.
func (t *ProgressTicker) Start(ctx context.Context) {
	if !t.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer close(t.done)
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.stop:
				return
			case <-ticker.C:
				t.publish(t.progress(ctx))
			}
		}
	}()
}

// Stop halts the ticker and waits for the tick goroutine to exit.
// Idempotent.
func (t *ProgressTicker) Stop() {
	t.stopOnce.Do(func() { close(t.stop) })
	if t.started.Load() {
		<-t.done
	}
}
