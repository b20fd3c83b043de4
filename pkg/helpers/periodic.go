package helpers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// PeriodicTask runs fn every interval until stopped. A failing or panicking
// run is logged and the next tick still fires.
type PeriodicTask struct {
	name     string
	interval time.Duration
	fn       func(ctx context.Context) error
	logger   *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func NewPeriodicTask(name string, interval time.Duration, fn func(ctx context.Context) error, logger *logrus.Logger) *PeriodicTask {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &PeriodicTask{
		name:     name,
		interval: interval,
		fn:       fn,
		logger:   logger.WithField("component", name),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Start begins the periodic loop
func (p *PeriodicTask) Start() {
	p.once.Do(func() {
		p.logger.WithField("interval", p.interval).Info("starting periodic task")
		go p.loop()
	})
}

// Stop signals the loop and blocks until the in-flight run has returned.
func (p *PeriodicTask) Stop() {
	p.cancel()
	// never started: nothing will close done
	p.once.Do(func() { close(p.done) })
	<-p.done
	p.logger.Info("periodic task stopped")
}

// RunOnce executes fn with the catch-all boundary used by the loop.
func (p *PeriodicTask) RunOnce(ctx context.Context) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panicked: %v", p.name, r)
		}
		if err != nil {
			p.logger.WithError(err).Error("periodic run failed")
			return
		}
		p.logger.WithField("took", time.Since(start)).Debug("periodic run finished")
	}()
	return p.fn(ctx)
}

func (p *PeriodicTask) loop() {
	defer close(p.done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_ = p.RunOnce(p.ctx)
		case <-p.ctx.Done():
			return
		}
	}
}
