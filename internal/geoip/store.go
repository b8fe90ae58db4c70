package geoip

import (
	"context"
	"sync"
	"time"
)

type Store interface {
	Get(ctx context.Context, ip string) (Info, bool, error)
	Set(ctx context.Context, ip string, info Info, ttl time.Duration) error
}

type NoopStore struct{}

func NewNoopStore() *NoopStore { return &NoopStore{} }

func (NoopStore) Get(context.Context, string) (Info, bool, error) { return Info{}, false, nil }

func (NoopStore) Set(context.Context, string, Info, time.Duration) error { return nil }

type memoryEntry struct {
	info      Info
	expiresAt time.Time
}

type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[string]memoryEntry)}
}

func (s *InMemoryStore) Get(_ context.Context, ip string) (Info, bool, error) {
	now := time.Now().UTC()
	s.mu.RLock()
	entry, ok := s.entries[ip]
	s.mu.RUnlock()
	if !ok {
		return Info{}, false, nil
	}
	if now.After(entry.expiresAt) {
		s.mu.Lock()
		if current, ok := s.entries[ip]; ok && current.expiresAt.Equal(entry.expiresAt) {
			delete(s.entries, ip)
		}
		s.mu.Unlock()
		return Info{}, false, nil
	}
	return entry.info, true, nil
}

func (s *InMemoryStore) Set(_ context.Context, ip string, info Info, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[ip] = memoryEntry{info: info, expiresAt: time.Now().UTC().Add(ttl)}
	return nil
}
