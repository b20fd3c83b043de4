package mailer

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/account-guard/pkg/helpers"
)

const deliverTimeout = 15 * time.Second

// Dispatcher queues notices so account operations never wait on delivery.
type Dispatcher struct {
	queue     *helpers.TaskQueue
	transport Transport
	logger    *logrus.Logger
	sent      atomic.Int64
	failed    atomic.Int64
}

func NewDispatcher(transport Transport, size int, logger *logrus.Logger) *Dispatcher {
	return &Dispatcher{
		queue:     helpers.NewTaskQueue("mail", size, logger),
		transport: transport,
		logger:    logger,
	}
}

func (d *Dispatcher) Start() { d.queue.Start() }

// Stop drains pending notices, bounded by ctx.
func (d *Dispatcher) Stop(ctx context.Context) error { return d.queue.Stop(ctx) }

// Enqueue reports whether the job was accepted. A rejected job is logged and lost.
// Jobs without an ID get one so delivery can be traced across processes.
func (d *Dispatcher) Enqueue(job EmailJob) bool {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	return d.queue.Submit(func(ctx context.Context) {
		c, cancel := context.WithTimeout(ctx, deliverTimeout)
		defer cancel()
		if err := d.transport.Deliver(c, job); err != nil {
			d.failed.Add(1)
			d.logger.WithError(err).WithFields(logrus.Fields{"job": job.ID, "to": job.To}).Error("notice delivery failed")
			return
		}
		d.sent.Add(1)
	})
}

func (d *Dispatcher) Sent() int64    { return d.sent.Load() }
func (d *Dispatcher) Failed() int64  { return d.failed.Load() }
func (d *Dispatcher) Dropped() int64 { return d.queue.Dropped() }
