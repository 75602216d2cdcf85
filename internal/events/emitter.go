package events

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// #region sink

// Sink receives every event, in order, from the drain goroutine. Used for
// journaling; errors are logged, never propagated back to producers.
type Sink func(Event) error

// #endregion sink

// #region emitter

// Emitter is the single ordered sink for every governor occurrence.
// Producers enqueue under a lock that also assigns Seq and a monotonically
// non-decreasing timestamp; one dedicated goroutine drains in order, so the
// stream can neither reorder nor drop events regardless of scheduler luck.
type Emitter struct {
	mu     sync.Mutex
	seq    int64
	lastT  time.Time
	closed bool
	now    func() time.Time

	ch   chan Event
	done chan struct{}
	sink Sink

	subMu sync.Mutex
	subs  []chan Event
}

// NewEmitter starts the drain goroutine. sink may be nil.
func NewEmitter(sink Sink) *Emitter {
	e := &Emitter{
		now:  time.Now,
		ch:   make(chan Event, 64),
		done: make(chan struct{}),
		sink: sink,
	}
	go e.drain()
	return e
}

// #endregion emitter

// #region emit

// Emit appends one event to the stream. Ordering across producers is the
// order Emit acquires the lock, which is the order the causing operations
// completed.
func (e *Emitter) Emit(kind Kind, payload Payload) Event {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		log.Printf("[EVENT] dropped %s after close", kind)
		return Event{}
	}
	e.seq++
	t := e.now().UTC()
	if t.Before(e.lastT) {
		t = e.lastT
	}
	e.lastT = t
	ev := Event{ID: uuid.NewString(), Seq: e.seq, T: t, Kind: kind, Payload: payload}
	e.ch <- ev
	e.mu.Unlock()
	return ev
}

// #endregion emit

// #region drain

func (e *Emitter) drain() {
	defer close(e.done)
	for ev := range e.ch {
		if e.sink != nil {
			if err := e.sink(ev); err != nil {
				log.Printf("[EVENT] sink failed for %s (seq %d): %v", ev.Kind, ev.Seq, err)
			}
		}
		e.subMu.Lock()
		subs := e.subs
		e.subMu.Unlock()
		for _, sub := range subs {
			// Blocking send: a slow consumer applies backpressure rather
			// than losing or reordering events.
			sub <- ev
		}
	}
}

// #endregion drain

// #region subscribe

// Subscribe returns a channel receiving every event emitted after the call.
// The caller sizes the buffer; the channel is closed by Close. Subscribing
// after Close yields an already-closed channel so ranging consumers exit
// immediately.
func (e *Emitter) Subscribe(buffer int) <-chan Event {
	ch := make(chan Event, buffer)
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		close(ch)
		return ch
	}
	e.subMu.Lock()
	e.subs = append(e.subs, ch)
	e.subMu.Unlock()
	e.mu.Unlock()
	return ch
}

// #endregion subscribe

// #region close

// Close stops accepting events, waits for the drain goroutine to flush
// everything already enqueued, and closes all subscriber channels.
func (e *Emitter) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	close(e.ch)
	e.mu.Unlock()

	<-e.done

	e.subMu.Lock()
	for _, sub := range e.subs {
		close(sub)
	}
	e.subs = nil
	e.subMu.Unlock()
}

// #endregion close
