// Package broadcast fans process output out to every connected subscriber.
package broadcast

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// DefaultBuffer is the default per-subscriber queue length.
const DefaultBuffer = 256

// Kind distinguishes process output from lifecycle notices.
type Kind int

const (
	KindOutput Kind = iota
	KindStarted
	KindStopped
	KindExited
)

func (k Kind) String() string {
	switch k {
	case KindOutput:
		return "output"
	case KindStarted:
		return "started"
	case KindStopped:
		return "stopped"
	case KindExited:
		return "exited"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Message is one chunk of output from one project's process, or a change in
// that process's lifecycle. Both share a subscriber's queue so a subscriber
// sees them in publish order.
type Message struct {
	Kind    Kind
	Project string
	Stream  string
	Data    string
	Time    time.Time

	PID      int  // Lifecycle only
	ExitCode *int // KindExited only
}

// Subscriber is a registered receiver with a bounded queue.
// When the queue is full the oldest message is dropped to make room.
type Subscriber struct {
	id string
	ch chan Message

	dropped atomic.Uint64

	mu sync.Mutex
	// +checklocks:mu
	closed bool
}

// ID returns the subscriber's unique identifier.
func (s *Subscriber) ID() string { return s.id }

// C returns the receive channel. It is closed when the subscriber is removed.
func (s *Subscriber) C() <-chan Message { return s.ch }

// Dropped returns how many messages were discarded because the queue was full.
func (s *Subscriber) Dropped() uint64 { return s.dropped.Load() }

// offer enqueues msg without blocking, evicting the oldest message if needed.
func (s *Subscriber) offer(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- msg:
		return
	default:
	}
	select {
	case <-s.ch:
		s.dropped.Add(1)
	default:
	}
	select {
	case s.ch <- msg:
	default:
		s.dropped.Add(1)
	}
}

func (s *Subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Broadcaster holds the current set of subscribers.
type Broadcaster struct {
	buffer int

	mu sync.RWMutex
	// +checklocks:mu
	subs map[string]*Subscriber
}

// New creates a Broadcaster whose subscribers queue up to buffer messages.
// A non-positive buffer uses DefaultBuffer.
func New(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Broadcaster{
		buffer: buffer,
		subs:   make(map[string]*Subscriber),
	}
}

// Subscribe registers and returns a new subscriber.
func (b *Broadcaster) Subscribe() *Subscriber {
	s := &Subscriber{
		id: uuid.NewString(),
		ch: make(chan Message, b.buffer),
	}
	b.mu.Lock()
	b.subs[s.id] = s
	b.mu.Unlock()
	return s
}

// Unsubscribe removes s and closes its channel. It is safe to call on a
// subscriber that was never added or was already removed.
func (b *Broadcaster) Unsubscribe(s *Subscriber) {
	if s == nil {
		return
	}
	b.mu.Lock()
	if cur, ok := b.subs[s.id]; ok && cur == s {
		delete(b.subs, s.id)
	}
	b.mu.Unlock()
	s.close()
}

// Publish delivers msg to every current subscriber. It never blocks.
func (b *Broadcaster) Publish(msg Message) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		s.offer(msg)
	}
}

// Count returns the number of subscribers.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close removes every subscriber.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[string]*Subscriber)
	b.mu.Unlock()

	for _, s := range subs {
		s.close()
	}
}
