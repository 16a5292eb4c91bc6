package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/m3rciful/soundloader/core/logger"
	"github.com/m3rciful/soundloader/core/telegram"
	"github.com/m3rciful/soundloader/internal/callbacks"
	"github.com/m3rciful/soundloader/internal/event"
	"github.com/m3rciful/soundloader/internal/locale"
)

// fetchRetryDelay spaces out fetch attempts after a transport error.
const fetchRetryDelay = time.Second

// Dispatcher is the single control loop: it fetches event batches, classifies
// each event and either spawns a worker, forwards into a mailbox, or answers
// directly. It holds no conversation state and is the only registry writer.
type Dispatcher struct {
	deps *Deps
	reg  *Registry
	loc  *locale.Localizer

	pollTimeout time.Duration
	cursor      int
}

// NewDispatcher builds a dispatcher with an empty registry.
func NewDispatcher(deps *Deps, pollTimeout time.Duration) (*Dispatcher, error) {
	loc, err := locale.New(deps.DefaultLanguage, deps.FallbackLanguage)
	if err != nil {
		return nil, fmt.Errorf("engine: dispatcher localizer: %w", err)
	}
	return &Dispatcher{
		deps:        deps,
		reg:         NewRegistry(),
		loc:         loc,
		pollTimeout: pollTimeout,
	}, nil
}

// Run fetches and routes events until the context is cancelled, then stops
// every live worker before returning.
func (d *Dispatcher) Run(ctx context.Context) error {
	logger.DISP.LogAttrs(ctx, slog.LevelInfo, "dispatch.start",
		slog.Duration("poll_timeout", d.pollTimeout),
	)

	for ctx.Err() == nil {
		events, next, err := d.deps.Bot.FetchEvents(ctx, d.cursor, d.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			logger.DISP.LogAttrs(ctx, slog.LevelError, "fetch.fail",
				slog.Int("cursor", d.cursor),
				slog.String("err", err.Error()),
			)
			time.Sleep(fetchRetryDelay)
			continue
		}
		d.cursor = next
		for _, ev := range events {
			d.route(ctx, ev)
		}
	}

	d.shutdown(context.WithoutCancel(ctx))
	return nil
}

func (d *Dispatcher) shutdown(ctx context.Context) {
	workers := d.reg.Drain()
	for _, w := range workers {
		w.Stop(event.StopRequest)
	}
	logger.DISP.LogAttrs(ctx, slog.LevelInfo, "dispatch.stop",
		slog.Int("workers", len(workers)),
	)
}

func (d *Dispatcher) route(ctx context.Context, ev event.Event) {
	switch e := ev.(type) {
	case event.TextMessage:
		ctx = withEventMeta(ctx, e.Update, e.ChatID, e.Sender.ID)
		d.routeText(ctx, e)
	case event.CallbackQuery:
		ctx = withEventMeta(ctx, e.Update, e.SenderID, e.SenderID)
		d.routeCallback(ctx, e)
	case event.PreCheckoutQuery:
		ctx = withEventMeta(ctx, e.Update, e.SenderID, e.SenderID)
		d.routePreCheckout(ctx, e)
	}
}

func withEventMeta(ctx context.Context, updateID int, chatID, userID int64) context.Context {
	ctx = logger.WithRID(ctx, logger.BuildRID(updateID, chatID, userID))
	return logger.WithUpdateMeta(ctx, updateID, chatID, userID)
}

func (d *Dispatcher) routeText(ctx context.Context, e event.TextMessage) {
	if !e.Private {
		d.notify(ctx, e.ChatID, "error_nonprivate_chat", nil)
		return
	}
	if isStartCommand(e.Text) {
		d.startWorker(ctx, e)
		return
	}

	w := d.reg.Get(e.ChatID)
	if w == nil {
		d.notify(ctx, e.ChatID, "error_no_worker_for_chat", telegram.RemoveKeyboard())
		return
	}
	if w.IsStopped() {
		// Terminated entries linger until the dispatcher observes them.
		d.reg.Remove(e.ChatID)
		d.notify(ctx, e.ChatID, "error_no_worker_for_chat", telegram.RemoveKeyboard())
		return
	}
	if !w.IsReady() {
		d.notify(ctx, e.ChatID, "error_worker_not_ready", nil)
		return
	}

	if e.Text == w.CancelLabel() {
		logger.DISP.LogAttrs(ctx, slog.LevelDebug, "route.cancel")
		w.Cancel()
		return
	}
	w.Deliver(e)
}

// startWorker replaces any existing worker for the chat. The old worker is
// stopped and joined before the new one is registered, so no event can reach
// a worker that is mid-termination.
func (d *Dispatcher) startWorker(ctx context.Context, e event.TextMessage) {
	if old := d.reg.Get(e.ChatID); old != nil {
		logger.DISP.LogAttrs(ctx, slog.LevelInfo, "worker.replace")
		old.Stop(event.StopRequest)
		d.reg.Remove(e.ChatID)
	}

	w := NewWorker(e.ChatID, e.Sender, d.deps)
	d.reg.Put(e.ChatID, w)
	w.Start(ctx)
	logger.DISP.LogAttrs(ctx, slog.LevelInfo, "worker.start")
}

func (d *Dispatcher) routeCallback(ctx context.Context, e event.CallbackQuery) {
	w := d.reg.Get(e.SenderID)
	if w == nil || w.IsStopped() {
		if w != nil {
			d.reg.Remove(e.SenderID)
		}
		if err := d.deps.Bot.AnswerCallback(ctx, e.QueryID); err != nil {
			logger.DISP.LogAttrs(ctx, slog.LevelDebug, "callback.answer.fail",
				slog.String("err", err.Error()),
			)
		}
		d.notify(ctx, e.SenderID, "error_no_worker_for_chat", telegram.RemoveKeyboard())
		return
	}

	if callbacks.Action(e.Data) == actionCancel {
		if err := d.deps.Bot.AnswerCallback(ctx, e.QueryID); err != nil {
			logger.DISP.LogAttrs(ctx, slog.LevelDebug, "callback.answer.fail",
				slog.String("err", err.Error()),
			)
		}
		logger.DISP.LogAttrs(ctx, slog.LevelDebug, "route.cancel")
		w.Cancel()
		return
	}

	// Acknowledgment for ordinary callbacks happens at the wait point.
	w.Deliver(e)
}

func (d *Dispatcher) routePreCheckout(ctx context.Context, e event.PreCheckoutQuery) {
	w := d.reg.Get(e.SenderID)
	if w == nil || w.InvoicePayload() == "" || w.InvoicePayload() != e.InvoicePayload {
		// Answering can itself fail when the query already expired; that is
		// logged and not retried.
		if err := d.deps.Bot.AnswerPreCheckout(ctx, e.QueryID, false, d.loc.Get("error_invoice_expired")); err != nil {
			logger.DISP.LogAttrs(ctx, slog.LevelError, "precheckout.reject.fail",
				slog.String("err", err.Error()),
			)
		}
		logger.DISP.LogAttrs(ctx, slog.LevelInfo, "precheckout.stale")
		return
	}
	w.Deliver(e)
}

// notify sends a fixed informational reply through the async outbox; nothing
// waits on it and failures are logged by the outbox itself.
func (d *Dispatcher) notify(ctx context.Context, chatID int64, key string, kb *telegram.Keyboard) {
	text := d.loc.Get(key)
	var opts *telegram.SendOptions
	if kb != nil {
		opts = &telegram.SendOptions{Keyboard: kb}
	}
	err := d.deps.Outbox.Enqueue(ctx, "notify."+key, func() error {
		_, err := d.deps.Bot.SendText(ctx, chatID, text, opts)
		return err
	})
	if err != nil {
		logger.DISP.LogAttrs(ctx, slog.LevelWarn, "notify.enqueue.fail",
			slog.String("key", key),
			slog.String("err", err.Error()),
		)
	}
}

func isStartCommand(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), "/start")
}
