package recorder

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Sink receives batches of usage records from a BufferedRecorder. A sink
// error fails only that batch; the recorder logs it and keeps draining.
type Sink interface {
	Write(ctx context.Context, events []Event) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, events []Event) error

func (f SinkFunc) Write(ctx context.Context, events []Event) error { return f(ctx, events) }

// BufferedRecorder decouples the evaluation hot path from the sink with a
// bounded queue and a single drain worker. Record is non-blocking: when the
// queue is full the event is dropped and counted, never queued at the cost
// of latency.
type BufferedRecorder struct {
	sink     Sink
	log      *slog.Logger
	queue    chan Event
	batch    int
	interval time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	dropped uint64
}

// BufferedOption configures a BufferedRecorder.
type BufferedOption func(*BufferedRecorder)

// WithQueueSize bounds the number of in-flight usage records.
func WithQueueSize(n int) BufferedOption {
	return func(r *BufferedRecorder) {
		if n > 0 {
			r.queue = make(chan Event, n)
		}
	}
}

// WithBatchSize caps how many records one sink write carries.
func WithBatchSize(n int) BufferedOption {
	return func(r *BufferedRecorder) {
		if n > 0 {
			r.batch = n
		}
	}
}

// WithFlushInterval sets how long a partial batch may wait before it is
// written anyway.
func WithFlushInterval(d time.Duration) BufferedOption {
	return func(r *BufferedRecorder) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithRecorderLogger sets the logger for drop and sink diagnostics.
func WithRecorderLogger(log *slog.Logger) BufferedOption {
	return func(r *BufferedRecorder) {
		if log != nil {
			r.log = log
		}
	}
}

// NewBufferedRecorder creates a recorder draining into sink. Call Start to
// launch the worker and Stop to flush and tear it down.
func NewBufferedRecorder(sink Sink, opts ...BufferedOption) *BufferedRecorder {
	r := &BufferedRecorder{
		sink:     sink,
		log:      slog.New(slog.DiscardHandler),
		queue:    make(chan Event, 1024),
		batch:    64,
		interval: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record implements Recorder. It never blocks; a full queue drops the event.
func (r *BufferedRecorder) Record(_ context.Context, event Event) {
	select {
	case r.queue <- event:
	default:
		r.mu.Lock()
		r.dropped++
		dropped := r.dropped
		r.mu.Unlock()
		if dropped%1000 == 1 {
			r.log.Warn("usage recorder queue full, dropping events",
				slog.Uint64("dropped_total", dropped))
		}
	}
}

// Start launches the drain worker. Starting an already started recorder is
// a no-op.
func (r *BufferedRecorder) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	done := make(chan struct{})
	r.done = done
	go r.drain(ctx, done)
}

// Stop flushes what is queued and stops the worker. Safe to call more than
// once.
func (r *BufferedRecorder) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (r *BufferedRecorder) drain(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	pending := make([]Event, 0, r.batch)
	flush := func() {
		if len(pending) == 0 {
			return
		}
		// Flushes get their own deadline so a wedged sink cannot stall the
		// worker forever.
		flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := r.sink.Write(flushCtx, pending); err != nil {
			r.log.Warn("usage sink write failed",
				slog.Int("batch", len(pending)),
				slog.Any("error", err))
		}
		cancel()
		pending = pending[:0]
	}

	for {
		select {
		case <-ctx.Done():
			// Final sweep of whatever is still queued.
			for {
				select {
				case event := <-r.queue:
					pending = append(pending, event)
					if len(pending) >= r.batch {
						flush()
					}
				default:
					flush()
					return
				}
			}
		case event := <-r.queue:
			pending = append(pending, event)
			if len(pending) >= r.batch {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
