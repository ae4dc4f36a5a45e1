package orchestration

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const defaultTaskQueueCapacity = 64

type task struct {
	name     string
	run      func(ctx context.Context)
	queuedAt time.Time
}

// runtime is the single event loop that owns all engine state. Everything
// that reads or mutates state runs as a task on it; blocking work runs on
// workers and posts its continuation back.
type runtime struct {
	queue   chan task
	closeCh chan struct{}
	done    chan struct{}

	startOnce sync.Once
	endOnce   sync.Once
	started   atomic.Bool

	workers conc.WaitGroup
	// inflight counts dispatched workers whose continuation has not run yet.
	// Only touched on the loop.
	inflight int
}

func newRuntime(capacity int) *runtime {
	if capacity <= 0 {
		capacity = defaultTaskQueueCapacity
	}
	return &runtime{
		queue:   make(chan task, capacity),
		closeCh: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (r *runtime) start(ctx context.Context) (started bool) {
	if r.isClosed() {
		return false
	}

	r.startOnce.Do(func() {
		started = true
		r.started.Store(true)
		go func() {
			defer close(r.done)

			for {
				select {
				case <-r.closeCh:
					return
				case queued := <-r.queue:
					if r.isClosed() {
						return
					}
					r.process(ctx, queued)
				}
			}
		}()
	})
	return started
}

func (r *runtime) process(ctx context.Context, queued task) {
	defer func() {
		if recovered := recover(); recovered != nil {
			logger.ErrorContext(ctx, "engine task panicked", "task", queued.name, "panic", fmt.Sprint(recovered))
		}
	}()

	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.AddEvent("taken out of queue", trace.WithAttributes(
			attribute.String("engine.task", queued.name),
			attribute.Float64("engine.queued_time", time.Since(queued.queuedAt).Seconds()),
		))
	}
	queued.run(ctx)
}

// end stops the loop and waits for it and every dispatched worker to finish.
func (r *runtime) end() {
	r.endOnce.Do(func() {
		close(r.closeCh)
	})
	if r.started.Load() {
		<-r.done
	}
	r.workers.Wait()
}

func (r *runtime) isClosed() bool {
	select {
	case <-r.closeCh:
		return true
	default:
		return false
	}
}

// post queues fn on the loop. It reports false once the loop is closed.
func (r *runtime) post(name string, fn func(ctx context.Context)) bool {
	if r.isClosed() {
		return false
	}

	select {
	case <-r.closeCh:
		return false
	case r.queue <- task{name: name, run: fn, queuedAt: time.Now()}:
		return true
	}
}

// do runs fn on the loop and waits for it to finish. It must not be called
// from the loop itself.
func (r *runtime) do(ctx context.Context, name string, fn func(ctx context.Context)) error {
	if !r.started.Load() && !r.isClosed() {
		return ErrEngineNotStarted
	}

	finished := make(chan struct{})
	if !r.post(name, func(ctx context.Context) {
		defer close(finished)
		fn(ctx)
	}) {
		return ErrEngineClosed
	}

	select {
	case <-finished:
		return nil
	case <-r.closeCh:
		return ErrEngineClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// dispatch runs work on a worker goroutine and applies the continuation it
// returns back on the loop. It must be called from the loop.
func (r *runtime) dispatch(ctx context.Context, name string, work func(ctx context.Context) func(), onPanic func(error)) {
	r.inflight++
	r.workers.Go(func() {
		var continuation func()
		if err := panicSafeNamedWorker(name, func(ctx context.Context) error {
			continuation = work(ctx)
			return nil
		})(ctx); err != nil {
			continuation = func() { onPanic(err) }
		}

		r.post(name+" continuation", func(context.Context) {
			r.inflight--
			if continuation != nil {
				continuation()
			}
		})
	})
}
