package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smolentsev/shopbot/pkg/logger"
)

// Runner executes named background tasks on goroutines, detached from the
// caller's cancellation but tracked for graceful shutdown.
type Runner struct {
	logg    *logger.Logger
	wg      sync.WaitGroup
	success *prometheus.CounterVec
	failure *prometheus.CounterVec
}

// New builds a Runner. The registerer is optional; without it tasks still
// run but are not counted.
func New(logg *logger.Logger, reg prometheus.Registerer) (*Runner, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger is required")
	}

	r := &Runner{logg: logg}
	if reg != nil {
		r.success = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "task_success",
			Help: "Background tasks that completed without error.",
		}, []string{"task"})
		r.failure = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "task_failure",
			Help: "Background tasks that returned an error or panicked.",
		}, []string{"task"})
		reg.MustRegister(r.success, r.failure)
	}
	return r, nil
}

// Submit runs fn on its own goroutine. The task keeps the caller's context
// values but survives the caller's cancellation, so a user walking away
// mid-flow does not abort persistence work already in flight.
func (r *Runner) Submit(ctx context.Context, name string, fn func(ctx context.Context) error) {
	taskCtx := context.WithoutCancel(ctx)
	taskCtx = r.logg.WithField(taskCtx, "task", name)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				r.incFailure(name)
				r.logg.Error(taskCtx, "task panicked", fmt.Errorf("panic: %v", rec))
			}
		}()

		started := time.Now()
		if err := fn(taskCtx); err != nil {
			r.incFailure(name)
			r.logg.Error(taskCtx, "task failed", err)
			return
		}
		r.incSuccess(name)
		r.logg.Info(r.logg.WithField(taskCtx, "elapsed", time.Since(started).String()), "task completed")
	}()
}

// Wait blocks until every submitted task has finished or the context is done.
func (r *Runner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) incSuccess(name string) {
	if r.success != nil {
		r.success.WithLabelValues(name).Inc()
	}
}

func (r *Runner) incFailure(name string) {
	if r.failure != nil {
		r.failure.WithLabelValues(name).Inc()
	}
}
