package channel

import "sync"

// Listeners is a per-channel listener table keyed by normalized event name.
type Listeners struct {
	mu sync.RWMutex
	m  map[string][]Listener
}

// Add registers cb for event.
func (l *Listeners) Add(event string, cb Listener) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.m == nil {
		l.m = make(map[string][]Listener)
	}
	event = NormalizeEvent(event)
	l.m[event] = append(l.m[event], cb)
}

// Dispatch calls every listener of event with payload and reports whether
// any was registered.
func (l *Listeners) Dispatch(event string, payload map[string]any) bool {
	l.mu.RLock()
	hs := append([]Listener(nil), l.m[NormalizeEvent(event)]...)
	l.mu.RUnlock()
	for _, cb := range hs {
		cb(payload)
	}
	return len(hs) > 0
}

// Len reports the number of listeners for event.
func (l *Listeners) Len(event string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.m[NormalizeEvent(event)])
}
