package replication

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zalando/replicator/logging"
	"github.com/zalando/replicator/metrics"
)

const (
	DefaultWorkers   = 20
	DefaultQueueSize = 500
	DefaultTimeout   = 5 * time.Second

	KeyDispatched = "replication.dispatched"
	KeyDropped    = "replication.dropped"
	KeyDone       = "replication.done"
	KeyFailed     = "replication.failed"
	KeyQueue      = "replication.queue"
	KeyQueueWait  = "replication.queue.wait"
)

// Task is a unit of work run by a dispatcher worker. The context
// carries the per task deadline.
type Task func(ctx context.Context) error

type queued struct {
	task     Task
	enqueued time.Time
}

// DispatcherOptions configure a Dispatcher. Zero values take the
// defaults.
type DispatcherOptions struct {
	Workers   int
	QueueSize int
	// Timeout is the deadline of a single task.
	Timeout time.Duration
	Metrics metrics.Metrics
	Log     logging.Logger
}

// Dispatcher runs tasks on a fixed number of workers fed from a
// bounded queue. Submit never blocks.
type Dispatcher struct {
	queue   chan queued
	timeout time.Duration
	metrics metrics.Metrics
	log     logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(o DispatcherOptions) *Dispatcher {
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	if o.QueueSize <= 0 {
		o.QueueSize = DefaultQueueSize
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Metrics == nil {
		o.Metrics = metrics.NewVoid()
	}
	if o.Log == nil {
		o.Log = logging.New()
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		queue:   make(chan queued, o.QueueSize),
		timeout: o.Timeout,
		metrics: o.Metrics,
		log:     o.Log,
		ctx:     ctx,
		cancel:  cancel,
		group:   &errgroup.Group{},
	}

	for range o.Workers {
		d.group.Go(d.work)
	}

	return d
}

// Submit enqueues t. It returns false and drops t when the queue is
// full or the dispatcher is closed.
func (d *Dispatcher) Submit(t Task) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.drop("dispatcher closed")
		return false
	}

	select {
	case d.queue <- queued{task: t, enqueued: time.Now()}:
		d.metrics.IncCounter(KeyDispatched)
		d.metrics.UpdateGauge(KeyQueue, float64(len(d.queue)))
		return true
	default:
		d.drop("queue full")
		return false
	}
}

func (d *Dispatcher) drop(reason string) {
	d.metrics.IncCounter(KeyDropped)
	d.log.Debugf("Replication dropped: %s", reason)
}

func (d *Dispatcher) work() error {
	for q := range d.queue {
		d.metrics.MeasureSince(KeyQueueWait, q.enqueued)
		d.run(q.task)
	}
	return nil
}

func (d *Dispatcher) run(t Task) {
	ctx, cancel := context.WithTimeout(d.ctx, d.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			d.metrics.IncCounter(KeyFailed)
			d.log.Errorf("Replication task panic: %v\n%s", r, debug.Stack())
		}
	}()

	if err := t(ctx); err != nil {
		d.metrics.IncCounter(KeyFailed)
		return
	}
	d.metrics.IncCounter(KeyDone)
}

// Close stops accepting tasks and waits until the queued tasks are
// done. When ctx expires first, running and queued tasks are cancelled
// and an error wrapping ctx.Err() is returned after the workers exit.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- d.group.Wait() }()

	select {
	case err := <-done:
		d.cancel()
		return err
	case <-ctx.Done():
		d.cancel()
		<-done
		return fmt.Errorf("failed to drain replication queue: %w", ctx.Err())
	}
}
