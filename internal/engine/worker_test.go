package engine

import (
	"testing"
	"time"

	"github.com/m3rciful/soundloader/internal/event"
)

func TestWorkerStopJoins(t *testing.T) {
	bot := &fakeBot{}
	sess := existingUserSession(1)
	deps := newTestDeps(t, bot, sess)
	loc := testLocalizer(t)

	w := startTestWorker(t, deps, 1)
	w.Stop(event.StopRequest)

	if !w.IsStopped() {
		t.Fatal("worker not stopped after Stop returned")
	}
	if sess.closedCount() != 1 {
		t.Fatalf("session closed %d times", sess.closedCount())
	}
	// A requested stop is silent; only timeouts notify the user.
	if got := bot.countSent(loc.Get("conversation_expired")); got != 0 {
		t.Fatalf("expired notices = %d", got)
	}
}

func TestWorkerTimeoutSendsExpiredNotice(t *testing.T) {
	bot := &fakeBot{}
	sess := existingUserSession(1)
	deps := newTestDeps(t, bot, sess)
	deps.ConversationTimeout = 30 * time.Millisecond
	loc := testLocalizer(t)

	w := startTestWorker(t, deps, 1)
	waitUntil(t, func() bool { return w.IsStopped() })

	expired := loc.Get("conversation_expired")
	waitUntil(t, func() bool { return bot.countSent(expired) == 1 })
	last := bot.lastSent()
	if last.text != expired || last.opts == nil || last.opts.Keyboard == nil || !last.opts.Keyboard.Remove {
		t.Fatalf("expired notice = %+v", last)
	}
	if sess.closedCount() != 1 {
		t.Fatalf("session closed %d times", sess.closedCount())
	}
}

func TestWorkerIgnoresEventsAfterStop(t *testing.T) {
	bot := &fakeBot{}
	deps := newTestDeps(t, bot, existingUserSession(1))

	w := startTestWorker(t, deps, 1)
	w.Stop(event.StopRequest)

	before := len(bot.sentTexts())
	w.Deliver(event.TextMessage{Update: 30, ChatID: 1, Text: "hello", Private: true, Sender: eventSender(1)})
	w.Cancel()
	time.Sleep(30 * time.Millisecond)
	if after := len(bot.sentTexts()); after != before {
		t.Fatalf("stopped worker produced output: %d -> %d", before, after)
	}
}
