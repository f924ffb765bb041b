// Package notify delivers outbound mention notifications. A Dispatcher
// accepts jobs without blocking the caller and hands them to a pool of
// workers that call the configured Sender with retries.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rcarls/ghast/internal/indieweb"
	"github.com/rcarls/ghast/internal/logging"
	"github.com/rcarls/ghast/internal/metrics"
)

// Defaults applied by NewDispatcher.
const (
	DefaultWorkers    = 2
	DefaultQueueDepth = 256
	DefaultTimeout    = 10 * time.Second
)

// ErrQueueFull is returned by Notify when the job was dropped.
var ErrQueueFull = errors.New("notification queue is full")

// Job is one source→target notification.
type Job struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
}

// Sender delivers a single job. Errors wrapped with Permanent are not retried.
type Sender interface {
	Send(ctx context.Context, job Job) error
}

// Config controls the worker pool.
type Config struct {
	Workers     int
	QueueDepth  int
	MaxAttempts int
	Timeout     time.Duration
}

// Dispatcher implements indieweb.Notifier.
type Dispatcher struct {
	cfg    Config
	sender Sender
	retry  RetryPolicy
	ids    indieweb.IDGenerator
	logger *zap.Logger
	jobs   chan Job
	wg     sync.WaitGroup
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithRetryPolicy replaces the exponential policy built from Config.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(d *Dispatcher) { d.retry = policy }
}

// NewDispatcher validates inputs and applies defaults.
func NewDispatcher(
	cfg Config,
	sender Sender,
	ids indieweb.IDGenerator,
	logger *zap.Logger,
	opts ...Option,
) (*Dispatcher, error) {
	if sender == nil {
		return nil, errors.New("dispatcher requires a sender")
	}
	if ids == nil {
		return nil, errors.New("dispatcher requires an id generator")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = DefaultQueueDepth
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	d := &Dispatcher{
		cfg:    cfg,
		sender: sender,
		retry:  NewExponentialRetryPolicy(cfg.MaxAttempts, 0, 0),
		ids:    ids,
		logger: logging.Named(logger, "notify"),
		jobs:   make(chan Job, cfg.QueueDepth),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Notify queues a notification. It never blocks; when the queue is full the
// job is dropped and ErrQueueFull returned.
func (d *Dispatcher) Notify(_ context.Context, source, target string) error {
	if _, err := indieweb.CanonicalURL(source); err != nil {
		return &indieweb.ValidationError{Field: "source", Reason: "must be an absolute URL"}
	}
	if _, err := indieweb.CanonicalURL(target); err != nil {
		return &indieweb.ValidationError{Field: "target", Reason: "must be an absolute URL"}
	}
	id, err := d.ids.NewID()
	if err != nil {
		return fmt.Errorf("notification id: %w", err)
	}
	job := Job{ID: id, Source: source, Target: target}

	select {
	case d.jobs <- job:
		metrics.SetQueueDepth(len(d.jobs))
		d.logger.Debug("notification queued", zap.String("job_id", id), zap.String("target", target))
		return nil
	default:
		metrics.ObserveNotification("dropped")
		d.logger.Warn("notification dropped", zap.String("job_id", id), zap.String("target", target))
		return ErrQueueFull
	}
}

// Run starts the workers and blocks until ctx is done and they have exited.
// Jobs still queued at shutdown are not delivered.
func (d *Dispatcher) Run(ctx context.Context) {
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go func(worker int) {
			defer d.wg.Done()
			d.work(ctx, worker)
		}(i)
	}
	d.logger.Info("notification workers started", zap.Int("workers", d.cfg.Workers))
	<-ctx.Done()
	d.wg.Wait()
	if pending := len(d.jobs); pending > 0 {
		d.logger.Warn("notification workers stopped with pending jobs", zap.Int("pending", pending))
	}
}

func (d *Dispatcher) work(ctx context.Context, worker int) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-d.jobs:
			metrics.SetQueueDepth(len(d.jobs))
			d.deliver(ctx, worker, job)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, worker int, job Job) {
	logger := d.logger.With(
		zap.Int("worker", worker),
		zap.String("job_id", job.ID),
		zap.String("source", job.Source),
		zap.String("target", job.Target),
	)
	for attempt := 1; ; attempt++ {
		sendCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
		err := d.sender.Send(sendCtx, job)
		cancel()
		if err == nil {
			metrics.ObserveNotification("sent")
			logger.Info("notification sent", zap.Int("attempt", attempt))
			return
		}
		if !d.retry.ShouldRetry(err, attempt) || ctx.Err() != nil {
			metrics.ObserveNotification("failed")
			logger.Warn("notification failed", zap.Int("attempt", attempt), zap.Error(err))
			return
		}

		wait := d.retry.Backoff(attempt)
		logger.Debug("notification retry scheduled", zap.Int("attempt", attempt), zap.Duration("backoff", wait), zap.Error(err))
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			metrics.ObserveNotification("failed")
			return
		case <-timer.C:
		}
	}
}
