package realtime

import (
	"context"
	"sync"
)

const subscriberBuffer = 64

type memorySubscriber struct {
	filter Filter
	ch     chan Change
}

// InMemoryBroker delivers changes within the process. Slow subscribers drop
// changes rather than blocking publishers.
type InMemoryBroker struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]*memorySubscriber
}

func NewInMemoryBroker() *InMemoryBroker {
	return &InMemoryBroker{subs: make(map[uint64]*memorySubscriber)}
}

func (b *InMemoryBroker) Publish(_ context.Context, change Change) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if !sub.filter.Matches(change) {
			continue
		}
		select {
		case sub.ch <- change:
		default:
		}
	}
	return nil
}

func (b *InMemoryBroker) Subscribe(_ context.Context, filter Filter) (*Subscription, error) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	sub := &memorySubscriber{filter: filter, ch: make(chan Change, subscriberBuffer)}
	b.subs[id] = sub
	b.mu.Unlock()

	var once sync.Once
	return &Subscription{
		C: sub.ch,
		cancel: func() {
			once.Do(func() {
				b.mu.Lock()
				delete(b.subs, id)
				b.mu.Unlock()
				close(sub.ch)
			})
		},
	}, nil
}

func (b *InMemoryBroker) subscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
