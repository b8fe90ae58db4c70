package capture

import (
	"context"
	"sync"
)

type Listener func(ctx context.Context, e Event)

type EventTarget interface {
	// AddListener registers fn for kind and returns a func that removes it.
	AddListener(kind Kind, fn Listener) (remove func())
}

// Dispatcher is an in-process EventTarget. Listeners run synchronously on
// the dispatching goroutine.
type Dispatcher struct {
	mu        sync.RWMutex
	nextID    uint64
	listeners map[Kind]map[uint64]Listener
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{listeners: make(map[Kind]map[uint64]Listener)}
}

func (d *Dispatcher) AddListener(kind Kind, fn Listener) func() {
	d.mu.Lock()
	d.nextID++
	id := d.nextID
	byKind, ok := d.listeners[kind]
	if !ok {
		byKind = make(map[uint64]Listener)
		d.listeners[kind] = byKind
	}
	byKind[id] = fn
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			delete(d.listeners[kind], id)
			if len(d.listeners[kind]) == 0 {
				delete(d.listeners, kind)
			}
		})
	}
}

// Dispatch delivers e to every listener of its kind and reports how many ran.
func (d *Dispatcher) Dispatch(ctx context.Context, e Event) int {
	d.mu.RLock()
	fns := make([]Listener, 0, len(d.listeners[e.Kind()]))
	for _, fn := range d.listeners[e.Kind()] {
		fns = append(fns, fn)
	}
	d.mu.RUnlock()
	for _, fn := range fns {
		fn(ctx, e)
	}
	return len(fns)
}

func (d *Dispatcher) ListenerCount(kind Kind) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.listeners[kind])
}

func (d *Dispatcher) TotalListeners() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n := 0
	for _, byKind := range d.listeners {
		n += len(byKind)
	}
	return n
}
