package engine

import (
	"context"
	"database/sql"
	"log/slog"
	"runtime/debug"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/m3rciful/soundloader/core/logger"
	"github.com/m3rciful/soundloader/core/telegram"
	"github.com/m3rciful/soundloader/internal/event"
	"github.com/m3rciful/soundloader/internal/locale"
	"github.com/m3rciful/soundloader/internal/storage"
)

const (
	stateStarting int32 = iota
	stateActive
	stateStopped
)

// Worker owns one chat's conversation: its mailbox, its storage session and
// the state machine task. It never touches the registry.
type Worker struct {
	chatID int64
	sender event.UserInfo
	deps   *Deps

	mbox  *mailbox
	state atomic.Int32
	done  chan struct{}

	finishOnce sync.Once

	// loc is written during bootstrap, before the state becomes Active.
	// The dispatcher reads it only through CancelLabel on ready workers.
	loc *locale.Localizer

	payMu          sync.Mutex
	invoicePayload string
}

// NewWorker builds a worker for one chat. Start must be called to run it.
func NewWorker(chatID int64, sender event.UserInfo, deps *Deps) *Worker {
	return &Worker{
		chatID: chatID,
		sender: sender,
		deps:   deps,
		mbox:   newMailbox(),
		done:   make(chan struct{}),
	}
}

// Start spawns the conversation task.
func (w *Worker) Start(ctx context.Context) {
	go w.run(ctx)
}

// IsReady reports whether bootstrap has completed and events can be handled.
func (w *Worker) IsReady() bool {
	return w.state.Load() == stateActive
}

// IsStopped reports whether the worker has terminated.
func (w *Worker) IsStopped() bool {
	return w.state.Load() == stateStopped
}

// CancelLabel is the localized reply-keyboard text that maps to a cancel
// signal. Valid only once the worker is ready.
func (w *Worker) CancelLabel() string {
	if w.loc == nil {
		return ""
	}
	return w.loc.Get("menu_cancel")
}

// Deliver enqueues an ordinary event.
func (w *Worker) Deliver(ev event.Event) {
	w.mbox.push(ev)
}

// Cancel enqueues a cancel signal.
func (w *Worker) Cancel() {
	w.mbox.push(event.CancelSignal{})
}

// Stop enqueues a stop signal and blocks until the worker task has exited.
func (w *Worker) Stop(reason event.StopReason) {
	w.mbox.push(event.StopSignal{Reason: reason})
	<-w.done
}

// InvoicePayload returns the payload of the currently open purchase flow,
// or "" when none is open.
func (w *Worker) InvoicePayload() string {
	w.payMu.Lock()
	defer w.payMu.Unlock()
	return w.invoicePayload
}

func (w *Worker) setInvoicePayload(p string) {
	w.payMu.Lock()
	w.invoicePayload = p
	w.payMu.Unlock()
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)
	ctx = logger.WithUpdateMeta(ctx, 0, w.chatID, w.sender.ID)

	var session StoreSession
	defer func() {
		if r := recover(); r != nil {
			logger.WRK.LogAttrs(ctx, slog.LevelError, "conversation.panic",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			w.sendFatalNotice(ctx)
			w.finish(ctx, session, "")
		}
	}()

	session, admin, err := w.bootstrap(ctx)
	if err != nil {
		logger.WRK.LogAttrs(ctx, slog.LevelError, "worker.bootstrap.fail",
			slog.String("err", err.Error()),
		)
		w.sendFatalNotice(ctx)
		w.finish(ctx, session, "")
		return
	}

	w.state.Store(stateActive)
	logger.WRK.LogAttrs(ctx, slog.LevelInfo, "worker.ready",
		slog.Bool("admin", admin),
	)

	conv := newConversation(w, admin)
	reason, err := conv.run(ctx)
	logger.WRK.LogAttrs(ctx, slog.LevelInfo, "conversation.done",
		slog.String("status", logger.Status(err)),
	)
	if err != nil {
		logger.WRK.LogAttrs(ctx, slog.LevelError, "conversation.fail",
			slog.String("err", err.Error()),
		)
		w.sendFatalNotice(ctx)
		w.finish(ctx, session, "")
		return
	}
	w.finish(ctx, session, reason)
}

// bootstrap opens the storage session, registers the user on first contact
// and resolves the localizer and admin role.
func (w *Worker) bootstrap(ctx context.Context) (StoreSession, bool, error) {
	session, err := w.deps.Store.Session(ctx)
	if err != nil {
		return nil, false, err
	}

	user, err := session.GetUser(ctx, w.chatID)
	if err != nil {
		return session, false, err
	}
	created := false
	if user == nil {
		lang := w.sender.LanguageCode
		if lang == "" {
			lang = w.deps.DefaultLanguage
		}
		user = &storage.User{
			UserID:    w.chatID,
			FirstName: w.sender.FirstName,
			LastName:  sql.NullString{String: w.sender.LastName, Valid: w.sender.LastName != ""},
			Username:  sql.NullString{String: w.sender.Username, Valid: w.sender.Username != ""},
			Language:  lang,
		}
		if err := session.CreateUser(ctx, user); err != nil {
			return session, false, err
		}
		created = true
	}

	loc, err := locale.New(user.Language, w.deps.FallbackLanguage)
	if err != nil {
		return session, false, err
	}
	w.loc = loc

	adminRec, err := session.GetAdmin(ctx, w.chatID)
	if err != nil {
		return session, false, err
	}

	if created {
		hasAdmins, err := session.HasAdmins(ctx)
		if err != nil {
			return session, false, err
		}
		if !hasAdmins {
			// The very first user becomes the bot owner.
			if err := session.PromoteAdmin(ctx, w.chatID, true); err != nil {
				return session, false, err
			}
			adminRec = &storage.Admin{UserID: w.chatID, IsOwner: true}
		} else {
			w.broadcastNewUser(ctx, session, user)
		}
	}

	return session, adminRec != nil, nil
}

// broadcastNewUser notifies every admin about a fresh registration.
// Failures are per-admin, logged, and never abort the bootstrap.
func (w *Worker) broadcastNewUser(ctx context.Context, session StoreSession, user *storage.User) {
	total, err := session.CountUsers(ctx)
	if err != nil {
		logger.WRK.LogAttrs(ctx, slog.LevelWarn, "broadcast.count.fail",
			slog.String("err", err.Error()),
		)
		return
	}
	admins, err := session.ListAdmins(ctx)
	if err != nil {
		logger.WRK.LogAttrs(ctx, slog.LevelWarn, "broadcast.admins.fail",
			slog.String("err", err.Error()),
		)
		return
	}

	text := w.loc.Get("new_user_in",
		"new", user.Label(),
		"number", strconv.Itoa(total),
	)
	for _, a := range admins {
		if a.UserID == w.chatID {
			continue
		}
		adminID := a.UserID
		err := w.deps.Outbox.Enqueue(ctx, "broadcast.new_user", func() error {
			_, err := w.deps.Bot.SendText(ctx, adminID, text, nil)
			return err
		})
		if err != nil {
			logger.WRK.LogAttrs(ctx, slog.LevelWarn, "broadcast.enqueue.fail",
				slog.Int64("admin_id", adminID),
				slog.String("err", err.Error()),
			)
		}
	}
}

func (w *Worker) sendFatalNotice(ctx context.Context) {
	loc := w.loc
	if loc == nil {
		var err error
		loc, err = locale.New(w.deps.DefaultLanguage, w.deps.FallbackLanguage)
		if err != nil {
			return
		}
	}
	text := loc.Get("fatal_conversation_exception")
	if _, err := w.deps.Bot.SendText(ctx, w.chatID, text, &telegram.SendOptions{Keyboard: telegram.RemoveKeyboard()}); err != nil {
		logger.WRK.LogAttrs(ctx, slog.LevelWarn, "fatal.notice.fail",
			slog.String("err", err.Error()),
		)
	}
}

/// finish runs the graceful-stop routine exactly once: expired notice on
// timeout, storage session close, terminal state.
func (w *Worker) finish(ctx context.Context, session StoreSession, reason event.StopReason) {
	w.finishOnce.Do(func() {
		if reason == event.StopTimeout && w.loc != nil {
			text := w.loc.Get("conversation_expired")
			opts := &telegram.SendOptions{Keyboard: telegram.RemoveKeyboard()}
			if _, err := w.deps.Bot.SendText(ctx, w.chatID, text, opts); err != nil {
				logger.WRK.LogAttrs(ctx, slog.LevelWarn, "expired.notice.fail",
					slog.String("err", err.Error()),
				)
			}
		}
		if session != nil {
			if err := session.Close(); err != nil {
				logger.WRK.LogAttrs(ctx, slog.LevelWarn, "session.close.fail",
					slog.String("err", err.Error()),
				)
			}
		}
		w.state.Store(stateStopped)
		logger.WRK.LogAttrs(ctx, slog.LevelInfo, "worker.stopped",
			slog.String("reason", string(reason)),
		)
	})
}
