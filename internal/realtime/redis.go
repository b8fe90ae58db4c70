package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisBroker shares changes between gateway replicas over Redis pub/sub,
// one channel per table.
type RedisBroker struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisBroker(client redis.UniversalClient, prefix string) *RedisBroker {
	if prefix == "" {
		prefix = "realtime"
	}
	return &RedisBroker{client: client, prefix: prefix}
}

func (b *RedisBroker) Publish(ctx context.Context, change Change) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("marshal change: %w", err)
	}
	return b.client.Publish(ctx, b.channel(change.Table), payload).Err()
}

func (b *RedisBroker) Subscribe(ctx context.Context, filter Filter) (*Subscription, error) {
	var pubsub *redis.PubSub
	if filter.Table == "" || filter.Table == "*" {
		pubsub = b.client.PSubscribe(ctx, b.channel("*"))
	} else {
		pubsub = b.client.Subscribe(ctx, b.channel(filter.Table))
	}
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	out := make(chan Change, subscriberBuffer)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			var change Change
			if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
				continue
			}
			if !filter.Matches(change) {
				continue
			}
			select {
			case out <- change:
			default:
			}
		}
	}()

	var once sync.Once
	return &Subscription{
		C: out,
		cancel: func() {
			once.Do(func() { _ = pubsub.Close() })
		},
	}, nil
}

func (b *RedisBroker) channel(table string) string {
	return fmt.Sprintf("%s:%s", b.prefix, table)
}
