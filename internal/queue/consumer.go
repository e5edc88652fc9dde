// Package queue runs the relay job consumer: a pool of workers that claim due
// jobs from the relay_jobs table, relay the referenced message, and settle
// the job from the returned outcome. Transient failures are requeued with
// exponential backoff until the attempt budget is spent.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/tbourn/go-relay-bridge/internal/config"
	"github.com/tbourn/go-relay-bridge/internal/domain"
	"github.com/tbourn/go-relay-bridge/internal/repo"
)

// queueJobs gauges jobs per status, refreshed by Sweep.
var queueJobs = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "relay_queue_jobs",
		Help: "Number of relay jobs by status.",
	},
	[]string{"status"},
)

func init() {
	prometheus.MustRegister(queueJobs)
}

// JobStore is the queue persistence contract.
type JobStore interface {
	ClaimNextJob(ctx context.Context, db *gorm.DB, now time.Time) (*domain.RelayJob, error)
	CompleteJob(ctx context.Context, db *gorm.DB, id, outcome string) error
	RetryJob(ctx context.Context, db *gorm.DB, id string, next time.Time, lastErr string) error
	FailJob(ctx context.Context, db *gorm.DB, id, outcome, lastErr string) error
	RequeueStaleJobs(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error)
	CountJobsByStatus(ctx context.Context, db *gorm.DB) (map[string]int64, error)
}

// MessageLoader loads the message a job refers to.
type MessageLoader interface {
	GetMessage(ctx context.Context, db *gorm.DB, id string) (*domain.Message, error)
}

// Relayer delivers one message.
type Relayer interface {
	Relay(ctx context.Context, msg *domain.Message) domain.DeliveryOutcome
}

// Consumer drains the relay queue.
type Consumer struct {
	DB       *gorm.DB
	Jobs     JobStore
	Messages MessageLoader
	Relayer  Relayer

	Workers        int
	PollInterval   time.Duration
	MaxAttempts    int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	Lease          time.Duration

	Log zerolog.Logger

	// Test seams.
	now       func() time.Time
	randomize float64
}

// NewConsumer builds a consumer from queue settings.
func NewConsumer(db *gorm.DB, jobs JobStore, msgs MessageLoader, r Relayer, cfg config.QueueConfig, log zerolog.Logger) *Consumer {
	return &Consumer{
		DB:             db,
		Jobs:           jobs,
		Messages:       msgs,
		Relayer:        r,
		Workers:        cfg.Workers,
		PollInterval:   cfg.PollInterval,
		MaxAttempts:    cfg.MaxAttempts,
		BackoffInitial: cfg.BackoffInitial,
		BackoffMax:     cfg.BackoffMax,
		Lease:          cfg.Lease,
		Log:            log.With().Str("component", "queue").Logger(),
		now:            func() time.Time { return time.Now().UTC() },
		randomize:      backoff.DefaultRandomizationFactor,
	}
}

// Run starts the workers and a sweeper and blocks until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	workers := c.Workers
	if workers < 1 {
		workers = 1
	}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for {
			c.Sweep(ctx)
			if !sleep(ctx, c.pollInterval()) {
				return nil
			}
		}
	})

	for i := 0; i < workers; i++ {
		lg := c.Log.With().Int("worker", i).Logger()
		g.Go(func() error {
			lg.Info().Msg("worker started")
			defer lg.Info().Msg("worker stopped")
			for {
				if ctx.Err() != nil {
					return nil
				}
				processed, err := c.ProcessOne(ctx)
				if err != nil && ctx.Err() == nil {
					lg.Error().Err(err).Msg("queue poll failed")
				}
				if processed {
					continue
				}
				if !sleep(ctx, c.pollInterval()) {
					return nil
				}
			}
		})
	}
	return g.Wait()
}

// Sweep hands expired leases out again and refreshes the queue gauges.
func (c *Consumer) Sweep(ctx context.Context) {
	if c.Lease > 0 {
		n, err := c.Jobs.RequeueStaleJobs(ctx, c.DB, c.clock().Add(-c.Lease))
		if err != nil && ctx.Err() == nil {
			c.Log.Error().Err(err).Msg("requeue stale jobs failed")
		} else if n > 0 {
			c.Log.Warn().Int64("jobs", n).Msg("requeued jobs with expired lease")
		}
	}
	counts, err := c.Jobs.CountJobsByStatus(ctx, c.DB)
	if err != nil {
		return
	}
	for status, n := range counts {
		queueJobs.WithLabelValues(status).Set(float64(n))
	}
}

// ProcessOne claims and settles at most one job. It reports whether a job
// was processed; the error is only about the queue itself.
func (c *Consumer) ProcessOne(ctx context.Context) (bool, error) {
	job, err := c.Jobs.ClaimNextJob(ctx, c.DB, c.clock())
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	lg := c.Log.With().
		Str("job_id", job.ID).
		Str("message_id", job.MessageID).
		Int("attempt", job.Attempts).
		Logger()

	msg, err := c.Messages.GetMessage(ctx, c.DB, job.MessageID)
	if errors.Is(err, repo.ErrNotFound) {
		lg.Error().Msg("message vanished; failing job")
		return true, c.Jobs.FailJob(ctx, c.DB, job.ID, string(domain.OutcomePermanentFailure), "message not found")
	}
	if err != nil {
		return true, c.settle(ctx, lg, job, domain.TransientFailure("load message: "+err.Error()))
	}

	out := c.Relayer.Relay(ctx, msg)
	return true, c.settle(ctx, lg, job, out)
}

func (c *Consumer) settle(ctx context.Context, lg zerolog.Logger, job *domain.RelayJob, out domain.DeliveryOutcome) error {
	if !out.ShouldRequeue() {
		label := string(out.Kind)
		if out.Skipped {
			label = "skipped"
		}
		lg.Debug().Str("outcome", label).Msg("job settled")
		return c.Jobs.CompleteJob(ctx, c.DB, job.ID, label)
	}
	if c.MaxAttempts > 0 && job.Attempts >= c.MaxAttempts {
		lg.Warn().Str("reason", out.Reason).Msg("attempts exhausted; failing job")
		return c.Jobs.FailJob(ctx, c.DB, job.ID, string(out.Kind), out.Reason)
	}
	delay := c.Backoff(job.Attempts)
	lg.Info().Dur("delay", delay).Str("reason", out.Reason).Msg("requeueing job")
	return c.Jobs.RetryJob(ctx, c.DB, job.ID, c.clock().Add(delay), out.Reason)
}

// Backoff returns the delay before the next try after attempt (1-based)
// attempts.
func (c *Consumer) Backoff(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	if c.BackoffInitial > 0 {
		b.InitialInterval = c.BackoffInitial
	}
	if c.BackoffMax > 0 {
		b.MaxInterval = c.BackoffMax
	}
	b.Multiplier = 2
	b.RandomizationFactor = c.randomize
	b.Reset()
	d := b.NextBackOff()
	for i := 1; i < attempt; i++ {
		d = b.NextBackOff()
	}
	return d
}

func (c *Consumer) clock() time.Time {
	if c.now != nil {
		return c.now()
	}
	return time.Now().UTC()
}

func (c *Consumer) pollInterval() time.Duration {
	if c.PollInterval > 0 {
		return c.PollInterval
	}
	return time.Second
}

// sleep waits for d and reports false when ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
