// Package engine implements the dispatch-and-worker conversation core: a
// single-threaded dispatcher routing inbound events to one stateful worker
// per chat, each driving a menu conversation over the extraction pipeline.
package engine

import (
	"sync"
	"time"

	"github.com/m3rciful/soundloader/internal/event"
)

type receiptKind int

const (
	// receiptDelivered carries an ordinary event.
	receiptDelivered receiptKind = iota
	// receiptCancelled means the current wait point was abandoned.
	receiptCancelled
	// receiptStopped means the worker must terminate gracefully.
	receiptStopped
)

// receipt is the explicit result of one mailbox receive. Branching on it
// replaces unwinding waits through panics or exceptions.
type receipt struct {
	kind   receiptKind
	event  event.Event
	reason event.StopReason
}

// mailbox is an unbounded FIFO queue with a single producer class (the
// dispatcher) and a single consumer (the owning worker).
type mailbox struct {
	mu    sync.Mutex
	queue []any
	wake  chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{wake: make(chan struct{}, 1)}
}

// push appends an event or control signal and wakes the consumer.
func (m *mailbox) push(item any) {
	m.mu.Lock()
	m.queue = append(m.queue, item)
	m.mu.Unlock()
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *mailbox) take() (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		return nil, false
	}
	item := m.queue[0]
	m.queue = m.queue[1:]
	return item, true
}

// receive blocks up to timeout for the next queue item. A timeout does not
// surface as an error: it synthesizes a stop receipt with the timeout reason
// so every conversation exit funnels through the same stop routine. A
// non-positive timeout blocks indefinitely.
func (m *mailbox) receive(timeout time.Duration) receipt {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		if item, ok := m.take(); ok {
			switch v := item.(type) {
			case event.CancelSignal:
				return receipt{kind: receiptCancelled}
			case event.StopSignal:
				return receipt{kind: receiptStopped, reason: v.Reason}
			case event.Event:
				return receipt{kind: receiptDelivered, event: v}
			}
			// Unknown item kinds are dropped.
			continue
		}
		select {
		case <-m.wake:
		case <-expired:
			return receipt{kind: receiptStopped, reason: event.StopTimeout}
		}
	}
}
