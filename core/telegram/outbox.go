package telegram

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/soundloader/core/logger"
	"github.com/m3rciful/soundloader/core/telegram/netutil"
)

var (
	// ErrOutboxClosed is returned when enqueue is attempted after Close.
	ErrOutboxClosed = errors.New("telegram outbox: closed")
	// ErrOutboxFull indicates the queue is saturated and the job was not accepted.
	ErrOutboxFull = errors.New("telegram outbox: queue full")
)

// OutboxOptions controls the behaviour of the best-effort sender.
type OutboxOptions struct {
	QueueSize    int
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
}

type outboxJob struct {
	ctx    context.Context
	action string
	run    func() error
}

// Outbox executes fire-and-forget outbound calls asynchronously with retries.
// It carries notices and broadcasts that no conversation waits on; calls that
// need a MessageRef back stay synchronous on the BotAPI.
type Outbox struct {
	opts OutboxOptions
	jobs chan outboxJob
	stop chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// NewOutbox starts an outbox with sane defaults if options are zeroed.
func NewOutbox(opts OutboxOptions) *Outbox {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 128
	}
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 2 * time.Second
	}

	o := &Outbox{
		opts: opts,
		jobs: make(chan outboxJob, opts.QueueSize),
		stop: make(chan struct{}),
	}

	o.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go o.worker()
	}

	return o
}

// Enqueue schedules the provided function for asynchronous execution.
func (o *Outbox) Enqueue(ctx context.Context, action string, run func() error) error {
	if run == nil {
		return errors.New("telegram outbox: nil run function")
	}
	select {
	case <-o.stop:
		return ErrOutboxClosed
	default:
	}

	select {
	case o.jobs <- outboxJob{ctx: ctx, action: action, run: run}:
		return nil
	default:
		return ErrOutboxFull
	}
}

// Close stops workers after draining queued jobs.
func (o *Outbox) Close() {
	o.once.Do(func() {
		close(o.stop)
		close(o.jobs)
		o.wg.Wait()
	})
}

func (o *Outbox) worker() {
	defer o.wg.Done()
	for j := range o.jobs {
		o.handleJob(j)
	}
}

func (o *Outbox) handleJob(j outboxJob) {
	ctx := j.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	start := time.Now()
	attempts := o.opts.MaxRetries + 1
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := j.run(); err != nil {
			lastErr = err
			if !netutil.ShouldRetry(err) || attempt == attempts {
				break
			}
			time.Sleep(o.opts.RetryBackoff * time.Duration(attempt))
			continue
		}
		if attempt > 1 {
			logger.TG.LogAttrs(ctx, slog.LevelInfo, "send.retry.success",
				slog.String("action", j.action),
				slog.Int("attempt", attempt),
				slog.Duration("duration", logger.Took(start)),
			)
		}
		return
	}

	logger.TG.LogAttrs(ctx, slog.LevelError, "send.fail",
		slog.String("action", j.action),
		slog.Int("attempts", attempts),
		slog.Duration("duration", logger.Took(start)),
		slog.String("err", lastErr.Error()),
	)
}
