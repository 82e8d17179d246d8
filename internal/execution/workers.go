package execution

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"alert-executor/internal/alert"
	"alert-executor/internal/ledger"
)

var (
	ErrQueueFull   = errors.New("background queue is full")
	ErrQueueClosed = errors.New("background queue is closed")
)

// Handler processes one payload; Pipeline.Handle satisfies it.
type Handler func(ctx context.Context, payload map[string]any, source alert.Source) (alert.Alert, error)

// Workers runs background deliveries on a bounded queue. Each payload gets
// its own deadline, independent of the request that enqueued it.
type Workers struct {
	handle   Handler
	queue    chan map[string]any
	workers  int
	deadline time.Duration
	log      *zap.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewWorkers creates a pool; call Start before Submit.
func NewWorkers(handle Handler, workers, queueSize int, deadline time.Duration, log *zap.Logger) *Workers {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	if deadline <= 0 {
		deadline = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Workers{
		handle:   handle,
		queue:    make(chan map[string]any, queueSize),
		workers:  workers,
		deadline: deadline,
		log:      log.Named("workers"),
	}
}

// Start launches the workers. Cancelling ctx does not drop queued payloads;
// use Close to drain.
func (w *Workers) Start(ctx context.Context) {
	base := context.WithoutCancel(ctx)
	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			for payload := range w.queue {
				w.run(base, payload)
			}
		}()
	}
}

func (w *Workers) run(base context.Context, payload map[string]any) {
	ctx, cancel := context.WithTimeout(base, w.deadline)
	defer cancel()

	start := time.Now()
	a, err := w.handle(ctx, payload, alert.SourceBackground)
	switch {
	case err == nil:
		w.log.Debug("background alert handled", zap.String("alert_id", a.ID),
			zap.String("status", string(a.Status)), zap.Duration("latency", time.Since(start)))
	case errors.Is(err, ledger.ErrDuplicate), errors.Is(err, ErrAlreadyProcessed), errors.Is(err, ErrInFlight):
		w.log.Debug("background alert skipped", zap.String("alert_id", a.ID), zap.Error(err))
	default:
		w.log.Error("background alert failed", zap.String("alert_id", a.ID),
			zap.Duration("latency", time.Since(start)), zap.Error(err))
	}
}

// Submit enqueues payload without blocking.
func (w *Workers) Submit(payload map[string]any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrQueueClosed
	}
	select {
	case w.queue <- payload:
		return nil
	default:
		return ErrQueueFull
	}
}

// Pending returns the number of queued payloads.
func (w *Workers) Pending() int {
	return len(w.queue)
}

// Close stops accepting work and waits for queued payloads to finish.
func (w *Workers) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.queue)
	w.mu.Unlock()

	w.wg.Wait()
}
