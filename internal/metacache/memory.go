package metacache

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements an in-process metadata cache with TTL support
type MemoryStore struct {
	data   sync.Map
	config Config
	cancel context.CancelFunc
	now    func() time.Time
}

type memoryItem struct {
	document   []byte
	expiration time.Time
}

// NewMemoryStore creates a memory store and starts its cleanup loop
func NewMemoryStore(config Config) *MemoryStore {
	ctx, cancel := context.WithCancel(context.Background())
	m := &MemoryStore{
		config: config,
		cancel: cancel,
		now:    time.Now,
	}
	go m.cleanupExpired(ctx, time.Minute)
	return m
}

// Get retrieves a document
func (m *MemoryStore) Get(ctx context.Context, serviceRoot string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := Key(serviceRoot)
	value, ok := m.data.Load(key)
	if !ok {
		return nil, ErrCacheMiss{ServiceRoot: serviceRoot}
	}

	item := value.(memoryItem)
	if m.expired(item) {
		m.data.Delete(key)
		return nil, ErrCacheMiss{ServiceRoot: serviceRoot}
	}
	return append([]byte(nil), item.document...), nil
}

// Set stores a document
func (m *MemoryStore) Set(ctx context.Context, serviceRoot string, document []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ttl == 0 {
		ttl = m.config.DefaultTTL
	}

	m.data.Store(Key(serviceRoot), memoryItem{
		document:   append([]byte(nil), document...),
		expiration: expiry(m.now(), ttl),
	})
	return nil
}

// Delete removes a document
func (m *MemoryStore) Delete(ctx context.Context, serviceRoot string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.data.Delete(Key(serviceRoot))
	return nil
}

// Clear removes all documents
func (m *MemoryStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.data.Range(func(key, _ any) bool {
		m.data.Delete(key)
		return true
	})
	return nil
}

// Close stops the cleanup loop
func (m *MemoryStore) Close() error {
	if m.cancel != nil {
		m.cancel()
	}
	return nil
}

func (m *MemoryStore) expired(item memoryItem) bool {
	return !item.expiration.IsZero() && m.now().After(item.expiration)
}

func (m *MemoryStore) cleanupExpired(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.data.Range(func(key, value any) bool {
				if m.expired(value.(memoryItem)) {
					m.data.Delete(key)
				}
				return true
			})
		}
	}
}
