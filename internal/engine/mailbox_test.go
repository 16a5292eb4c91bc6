package engine

import (
	"testing"
	"time"

	"github.com/m3rciful/soundloader/internal/event"
)

func TestMailboxFIFO(t *testing.T) {
	m := newMailbox()
	for i := 1; i <= 3; i++ {
		m.push(event.TextMessage{Update: i, Text: "msg"})
	}

	for i := 1; i <= 3; i++ {
		r := m.receive(time.Second)
		if r.kind != receiptDelivered {
			t.Fatalf("receipt %d kind = %d", i, r.kind)
		}
		if got := r.event.Seq(); got != i {
			t.Fatalf("delivery out of order: got seq %d, want %d", got, i)
		}
	}
}

func TestMailboxTimeoutSynthesizesStop(t *testing.T) {
	m := newMailbox()
	start := time.Now()
	r := m.receive(20 * time.Millisecond)
	if r.kind != receiptStopped || r.reason != event.StopTimeout {
		t.Fatalf("receipt = %+v", r)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Fatal("receive returned before the timeout elapsed")
	}
}

func TestMailboxControlSignals(t *testing.T) {
	m := newMailbox()
	m.push(event.CancelSignal{})
	m.push(event.StopSignal{Reason: event.StopRequest})

	if r := m.receive(time.Second); r.kind != receiptCancelled {
		t.Fatalf("first receipt = %+v", r)
	}
	r := m.receive(time.Second)
	if r.kind != receiptStopped || r.reason != event.StopRequest {
		t.Fatalf("second receipt = %+v", r)
	}
}

func TestMailboxWakesBlockedReceiver(t *testing.T) {
	m := newMailbox()
	go func() {
		time.Sleep(20 * time.Millisecond)
		m.push(event.TextMessage{Update: 7})
	}()

	r := m.receive(time.Second)
	if r.kind != receiptDelivered || r.event.Seq() != 7 {
		t.Fatalf("receipt = %+v", r)
	}
}
