package geoip

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "geoip"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) Get(ctx context.Context, ip string) (Info, bool, error) {
	if s.client == nil {
		return Info{}, false, nil
	}
	raw, err := s.client.Get(ctx, s.key(ip)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Info{}, false, nil
	}
	if err != nil {
		return Info{}, false, err
	}
	var info Info
	if err := json.Unmarshal(raw, &info); err != nil {
		return Info{}, false, fmt.Errorf("decode cached geoip: %w", err)
	}
	return info, true, nil
}

func (s *RedisStore) Set(ctx context.Context, ip string, info Info, ttl time.Duration) error {
	if s.client == nil || ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("encode geoip: %w", err)
	}
	return s.client.Set(ctx, s.key(ip), raw, ttl).Err()
}

func (s *RedisStore) key(ip string) string {
	return fmt.Sprintf("%s:ip:%s", s.prefix, ip)
}
