package helpers

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Task is a unit of background work. The context is cancelled once the queue
// has stopped and drained.
type Task func(ctx context.Context)

// TaskQueue is a bounded fire-and-forget queue served by a single worker.
// Submit never blocks: when the buffer is full the task is dropped.
type TaskQueue struct {
	name    string
	tasks   chan Task
	logger  *logrus.Entry
	stop    chan struct{}
	done    chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	started atomic.Bool
	stopped atomic.Bool
	once    sync.Once
	dropped atomic.Int64
}

func NewTaskQueue(name string, size int, logger *logrus.Logger) *TaskQueue {
	if size <= 0 {
		size = 1
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &TaskQueue{
		name:   name,
		tasks:  make(chan Task, size),
		logger: logger.WithField("queue", name),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the worker. Calling it twice is a no-op.
func (q *TaskQueue) Start() {
	if !q.started.CompareAndSwap(false, true) {
		return
	}
	go q.loop()
}

// Submit enqueues t and reports whether it was accepted.
func (q *TaskQueue) Submit(t Task) bool {
	if q.stopped.Load() {
		q.dropped.Add(1)
		q.logger.Warn("task queue stopped, dropping task")
		return false
	}
	select {
	case q.tasks <- t:
		return true
	default:
		q.dropped.Add(1)
		q.logger.WithField("capacity", cap(q.tasks)).Warn("task queue full, dropping task")
		return false
	}
}

// Dropped is the number of tasks rejected so far.
func (q *TaskQueue) Dropped() int64 { return q.dropped.Load() }

// Stop stops accepting work, lets the worker drain what is buffered and waits
// for it or for ctx, whichever comes first.
func (q *TaskQueue) Stop(ctx context.Context) error {
	q.once.Do(func() {
		q.stopped.Store(true)
		close(q.stop)
	})
	if !q.started.Load() {
		q.cancel()
		return nil
	}
	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		q.cancel()
		return ctx.Err()
	}
}

func (q *TaskQueue) loop() {
	defer close(q.done)
	defer q.cancel()
	for {
		select {
		case t := <-q.tasks:
			q.run(t)
		case <-q.stop:
			for {
				select {
				case t := <-q.tasks:
					q.run(t)
				default:
					return
				}
			}
		}
	}
}

func (q *TaskQueue) run(t Task) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.WithField("panic", r).Error("task panicked")
		}
	}()
	t(q.ctx)
}
