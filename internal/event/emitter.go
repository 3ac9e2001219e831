// Package event provides generic synchronous event emission.
package event

import "sync"

// Emitter fans events out to registered handlers. The zero value is ready
// to use.
type Emitter[E any] struct {
	mu sync.RWMutex
	// +checklocks:mu
	handlers map[uint64]func(E)
	// +checklocks:mu
	order []uint64
	// +checklocks:mu
	next uint64
}

// OnEvent registers handler and returns a function that removes it.
// Handlers run synchronously on the emitting goroutine, in registration
// order. Calling the returned function more than once is harmless.
func (e *Emitter[E]) OnEvent(handler func(E)) (cancel func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.handlers == nil {
		e.handlers = make(map[uint64]func(E))
	}
	e.next++
	id := e.next
	e.handlers[id] = handler
	e.order = append(e.order, id)

	return func() { e.remove(id) }
}

func (e *Emitter[E]) remove(id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.handlers[id]; !ok {
		return
	}
	delete(e.handlers, id)
	for i, v := range e.order {
		if v == id {
			e.order = append(e.order[:i:i], e.order[i+1:]...)
			break
		}
	}
}

// Emit sends event to every registered handler. Handlers may register or
// cancel handlers; such changes apply from the next Emit.
func (e *Emitter[E]) Emit(event E) {
	e.mu.RLock()
	handlers := make([]func(E), 0, len(e.order))
	for _, id := range e.order {
		handlers = append(handlers, e.handlers[id])
	}
	e.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
}

// Len returns the number of registered handlers.
func (e *Emitter[E]) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.handlers)
}
