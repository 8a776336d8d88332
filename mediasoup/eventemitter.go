package mediasoup

import "sync"

// IEventEmitter is the minimal per-object emitter pattern used throughout
// the proxy objects: "business" events (close, score, layerschange, ...)
// plus the internal "@close"/"@producerclose" events a parent subscribes
// to in order to deregister the child (spec.md §9).
type IEventEmitter interface {
	On(event string, listener func(args ...interface{}))
	Once(event string, listener func(args ...interface{}))
	Emit(event string, args ...interface{})
	// SafeEmit emits but recovers from a panicking listener, logging it
	// instead of tearing down the event loop (spec.md §7 "safeEmit").
	SafeEmit(event string, args ...interface{})
	RemoveAllListeners(event ...string)
	ListenerCount(event string) int
}

type listenerEntry struct {
	fn   func(args ...interface{})
	once bool
}

type eventEmitter struct {
	mu        sync.Mutex
	listeners map[string][]*listenerEntry
	logger    func(event string, r interface{})
}

// NewEventEmitter constructs a fresh, empty emitter.
func NewEventEmitter() IEventEmitter {
	logger := NewLogger("EventEmitter")
	return &eventEmitter{
		listeners: make(map[string][]*listenerEntry),
		logger: func(event string, r interface{}) {
			logger.Error(nil, "event listener panicked", "event", event, "panic", r)
		},
	}
}

func (e *eventEmitter) On(event string, listener func(args ...interface{})) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners[event] = append(e.listeners[event], &listenerEntry{fn: listener})
}

func (e *eventEmitter) Once(event string, listener func(args ...interface{})) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners[event] = append(e.listeners[event], &listenerEntry{fn: listener, once: true})
}

func (e *eventEmitter) snapshot(event string) []*listenerEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	entries := e.listeners[event]
	out := make([]*listenerEntry, len(entries))
	copy(out, entries)

	remaining := entries[:0]
	for _, en := range entries {
		if !en.once {
			remaining = append(remaining, en)
		}
	}
	if len(remaining) == 0 {
		delete(e.listeners, event)
	} else {
		e.listeners[event] = remaining
	}
	return out
}

func (e *eventEmitter) Emit(event string, args ...interface{}) {
	for _, en := range e.snapshot(event) {
		en.fn(args...)
	}
}

func (e *eventEmitter) SafeEmit(event string, args ...interface{}) {
	for _, en := range e.snapshot(event) {
		func() {
			defer func() {
				if r := recover(); r != nil && e.logger != nil {
					e.logger(event, r)
				}
			}()
			en.fn(args...)
		}()
	}
}

func (e *eventEmitter) RemoveAllListeners(event ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(event) == 0 {
		e.listeners = make(map[string][]*listenerEntry)
		return
	}
	for _, ev := range event {
		delete(e.listeners, ev)
	}
}

func (e *eventEmitter) ListenerCount(event string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners[event])
}
