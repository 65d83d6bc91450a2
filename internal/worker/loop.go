package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/baharkarakas/ledgerq/internal/lock"
	"github.com/baharkarakas/ledgerq/internal/metrics"
	"github.com/baharkarakas/ledgerq/internal/models"
	"github.com/baharkarakas/ledgerq/internal/queue"
)

type LoopConfig struct {
	QueueName    string
	MaxAttempts  int
	PollInterval time.Duration
	Backoff      time.Duration
}

// Loop is the message intake loop: pull one message, lock the accounts it
// touches, route it, settle it. Strictly sequential within one process;
// throughput scales by running more worker processes against the same broker
// and lock store.
type Loop struct {
	cfg    LoopConfig
	queue  queue.Queue
	locks  *lock.Manager
	router *Router
	log    *slog.Logger
}

func NewLoop(cfg LoopConfig, q queue.Queue, locks *lock.Manager, router *Router, log *slog.Logger) *Loop {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 500 * time.Millisecond
	}
	return &Loop{cfg: cfg, queue: q, locks: locks, router: router, log: log}
}

// Run polls until ctx is cancelled. A single bad message never stops the
// loop; every failure path settles the message and continues.
func (l *Loop) Run(ctx context.Context) error {
	l.log.Info("worker started", "queue", l.cfg.QueueName)
	for {
		if ctx.Err() != nil {
			l.log.Info("worker stopping")
			return nil
		}
		msg, err := l.queue.Get(ctx)
		if errors.Is(err, queue.ErrEmpty) {
			sleep(ctx, l.cfg.PollInterval)
			continue
		}
		if err != nil {
			l.log.Error("queue get", "err", err)
			sleep(ctx, l.cfg.Backoff)
			continue
		}
		l.handle(ctx, msg)
	}
}

func (l *Loop) handle(ctx context.Context, msg queue.Message) {
	env, err := models.DecodeEnvelope(msg.Body())
	if err != nil {
		// Malformed envelope can never succeed; ack it out of circulation.
		l.log.Error("poison message", "err", err)
		l.ack(msg, models.TaskEnvelope{}, failure("malformed envelope"))
		return
	}

	ids, err := env.AccountIDs()
	if err != nil {
		l.ack(msg, env, failure("malformed payload"))
		return
	}
	if len(ids) == 2 && ids[0] == ids[1] {
		// Self-transfer: skip before taking any lock.
		l.log.Info("self transfer skipped", "account", ids[0])
		l.ack(msg, env, failure("sender and receiver cannot be the same"))
		return
	}

	// Cheap advisory pre-filter; the real exclusion is Acquire below.
	if len(ids) > 0 && l.locks.IsLocked(ctx, ids) {
		l.requeueContended(ctx, msg, ids)
		return
	}

	if len(ids) > 0 {
		lease, err := l.locks.Acquire(ctx, ids)
		if err != nil {
			if !errors.Is(err, lock.ErrContended) {
				l.log.Error("lock acquire", "err", err)
			}
			l.requeueContended(ctx, msg, ids)
			return
		}
		defer lease.Release(ctx)
	}

	out := l.router.Route(ctx, env)
	if out.Retry {
		l.retry(ctx, msg, env, out)
		return
	}
	l.ack(msg, env, out)
}

// ack settles a message with a terminal outcome and logs enough to
// reconstruct the task.
func (l *Loop) ack(msg queue.Message, env models.TaskEnvelope, out Outcome) {
	// Poison messages never decode to a task; keep the metric label stable.
	task := string(env.Task)
	if task == "" {
		task = "unknown"
	}
	metrics.TasksProcessed.WithLabelValues(task, out.Status).Inc()
	if out.Status == "success" {
		l.log.Info("task done", "task", env.Task)
	} else {
		l.log.Warn("task failed", "task", env.Task, "detail", out.Detail, "attempts", env.Attempts)
	}
	if err := msg.Ack(); err != nil {
		l.log.Error("ack", "err", err)
	}
}

func (l *Loop) requeueContended(ctx context.Context, msg queue.Message, ids []string) {
	metrics.LockContention.Inc()
	l.log.Debug("accounts locked, requeueing", "accounts", ids)
	if err := msg.Nack(true); err != nil {
		l.log.Error("nack", "err", err)
	}
	sleep(ctx, l.cfg.Backoff)
}

// retry resubmits an envelope that hit a transient failure, bumping its
// attempt counter. Past the budget it goes to the dead-letter queue instead
// of circulating forever.
func (l *Loop) retry(ctx context.Context, msg queue.Message, env models.TaskEnvelope, out Outcome) {
	env.Attempts++
	body, err := env.Encode()
	if err != nil {
		l.ack(msg, env, failure("internal error"))
		return
	}

	if env.Attempts >= l.cfg.MaxAttempts {
		metrics.TasksDeadLettered.Inc()
		l.log.Error("task dead-lettered",
			"task", env.Task, "attempts", env.Attempts, "detail", out.Detail)
		if err := l.queue.PublishTo(ctx, queue.DeadLetterName(l.cfg.QueueName), body); err != nil {
			// Could not park it; leave the original in circulation.
			l.log.Error("dead-letter publish", "err", err)
			_ = msg.Nack(true)
			return
		}
		_ = msg.Ack()
		return
	}

	metrics.TaskRetries.Inc()
	l.log.Warn("task retry", "task", env.Task, "attempts", env.Attempts, "detail", out.Detail)
	if err := l.queue.PublishTo(ctx, l.cfg.QueueName, body); err != nil {
		l.log.Error("resubmit", "err", err)
		_ = msg.Nack(true)
		return
	}
	_ = msg.Ack()
	sleep(ctx, l.cfg.Backoff)
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
