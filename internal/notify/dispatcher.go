// Package notify tells offline participants about new messages. Work is
// queued on a bounded dispatcher so the append path never waits on SMTP.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
)

// Job describes one appended message that may need notifications.
type Job struct {
	ConversationID uuid.UUID
	MessageID      uuid.UUID
	SenderID       uuid.UUID
	Preview        string
}

type Handler interface {
	Handle(ctx context.Context, job Job) error
}

type HandlerFunc func(ctx context.Context, job Job) error

func (f HandlerFunc) Handle(ctx context.Context, job Job) error { return f(ctx, job) }

// Dispatcher runs jobs on a fixed set of workers. Enqueue never blocks: when
// the queue is full the job is dropped and counted.
type Dispatcher struct {
	handler Handler
	logger  *slog.Logger
	workers int

	mu     sync.RWMutex
	queue  chan Job
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     conc.WaitGroup

	dropped atomic.Int64
	failed  atomic.Int64
}

func NewDispatcher(h Handler, workers, queueSize int, logger *slog.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		handler: h,
		logger:  logger,
		workers: workers,
		queue:   make(chan Job, queueSize),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the workers.
func (d *Dispatcher) Start() {
	for range d.workers {
		d.wg.Go(d.work)
	}
}

// Enqueue reports whether job was accepted.
func (d *Dispatcher) Enqueue(job Job) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	select {
	case d.queue <- job:
		return true
	default:
		d.dropped.Add(1)
		d.logger.Warn("notify: queue full, job dropped",
			"conversation_id", job.ConversationID, "message_id", job.MessageID)
		return false
	}
}

// Stop stops accepting jobs and waits for queued ones to finish. When ctx
// ends first, in-flight handlers are cancelled.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}

// Dropped is the number of jobs rejected because the queue was full.
func (d *Dispatcher) Dropped() int64 { return d.dropped.Load() }

// Failed is the number of jobs whose handler returned an error or panicked.
func (d *Dispatcher) Failed() int64 { return d.failed.Load() }

func (d *Dispatcher) work() {
	for job := range d.queue {
		var err error
		var pc panics.Catcher
		pc.Try(func() { err = d.handler.Handle(d.ctx, job) })

		if r := pc.Recovered(); r != nil {
			d.failed.Add(1)
			d.logger.Error("notify: handler panicked",
				"conversation_id", job.ConversationID, "panic", r.String())
			continue
		}
		if err != nil {
			d.failed.Add(1)
			d.logger.Warn("notify: handler failed",
				"conversation_id", job.ConversationID, "message_id", job.MessageID, "error", err)
		}
	}
}
