// Package worker runs the outbox relay: it leases due tasks, hands them to a
// dispatcher and records the outcome.  Delivery is at least once.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/dojo-schedule/internal/config"
	"github.com/iliyamo/dojo-schedule/internal/model"
	"github.com/iliyamo/dojo-schedule/internal/service"
)

// Dispatcher delivers one task.  Returning nil completes it.
type Dispatcher interface {
	Dispatch(ctx context.Context, task model.OutboxTask) error
}

// DispatchFunc adapts a function to Dispatcher.
type DispatchFunc func(ctx context.Context, task model.OutboxTask) error

// Dispatch calls f.
func (f DispatchFunc) Dispatch(ctx context.Context, task model.OutboxTask) error { return f(ctx, task) }

// Relay polls the outbox.
type Relay struct {
	store      service.OutboxStore
	dispatcher Dispatcher
	cfg        config.OutboxConfig
	owner      string
	now        func() time.Time
	logger     *slog.Logger
}

// NewRelay returns a relay whose lease owner is unique to this process.
func NewRelay(store service.OutboxStore, d Dispatcher, cfg config.OutboxConfig, logger *slog.Logger) *Relay {
	host, _ := os.Hostname()
	return &Relay{
		store:      store,
		dispatcher: d,
		cfg:        cfg,
		owner:      fmt.Sprintf("%s/%s", host, uuid.NewString()[:8]),
		now:        func() time.Time { return time.Now().UTC() },
		logger:     logger,
	}
}

// Run polls until ctx is cancelled.  A full batch is followed immediately
// by another poll.
func (r *Relay) Run(ctx context.Context) {
	r.logger.Info("outbox relay started", "owner", r.owner, "interval", r.cfg.PollInterval.String())
	for {
		n, err := r.Tick(ctx)
		if err != nil && ctx.Err() == nil {
			r.logger.Error("outbox relay: poll failed", "err", err)
		}
		if n >= r.cfg.BatchSize && err == nil {
			continue
		}
		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay stopped", "owner", r.owner)
			return
		case <-time.After(r.cfg.PollInterval):
		}
	}
}

// Tick leases one batch and processes it, returning the number of tasks
// leased.
func (r *Relay) Tick(ctx context.Context) (int, error) {
	now := r.now()
	tasks, err := r.store.LeaseTasks(ctx, r.owner, r.cfg.BatchSize, now, r.cfg.LeaseTTL)
	if err != nil {
		return 0, err
	}
	for _, t := range tasks {
		r.process(ctx, t)
	}
	return len(tasks), nil
}

func (r *Relay) process(ctx context.Context, t model.OutboxTask) {
	log := r.logger.With("task_id", t.ID, "kind", t.Kind, "attempt", t.Attempts)
	err := r.dispatcher.Dispatch(ctx, t)
	if err == nil {
		if err := r.store.CompleteTask(ctx, t.ID, r.owner, r.now()); err != nil {
			log.Warn("outbox relay: complete failed", "err", err)
		}
		return
	}
	dead := t.Attempts >= r.cfg.MaxAttempts
	next := r.now().Add(r.Backoff(t.Attempts))
	if rerr := r.store.RetryTask(ctx, t.ID, r.owner, err.Error(), next, dead); rerr != nil {
		log.Warn("outbox relay: retry bookkeeping failed", "err", rerr)
		return
	}
	if dead {
		log.Error("outbox relay: task dead", "err", err)
		return
	}
	log.Warn("outbox relay: dispatch failed", "err", err, "next_attempt_at", next)
}

// Backoff is BackoffBase doubled per attempt after the first, capped at
// BackoffMax.
func (r *Relay) Backoff(attempt int) time.Duration {
	d := r.cfg.BackoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= r.cfg.BackoffMax {
			return r.cfg.BackoffMax
		}
	}
	if d > r.cfg.BackoffMax {
		return r.cfg.BackoffMax
	}
	return d
}

// EvaluateInProcess is the dispatcher used without a broker: it evaluates
// the student directly.
func EvaluateInProcess(eval *service.EligibilityEvaluator, notifier service.Notifier) DispatchFunc {
	return func(ctx context.Context, task model.OutboxTask) error {
		if task.Kind != model.TaskEvaluateEligibility {
			return fmt.Errorf("worker: unsupported task kind %q", task.Kind)
		}
		_, err := eval.Evaluate(ctx, task.StudentID, notifier)
		return err
	}
}
