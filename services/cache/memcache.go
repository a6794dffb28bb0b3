package cache

import (
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

// MemcacheService implements CacheService on memcached. Host rate-limit
// blocks stored here outlive a single run and are visible to every scraper
// instance pointed at the same server.
type MemcacheService struct {
	client *memcache.Client
}

// NewMemcacheService creates a cache service backed by the memcached server
// at serverAddr
func NewMemcacheService(serverAddr string) *MemcacheService {
	return &MemcacheService{
		client: memcache.New(serverAddr),
	}
}

// Get retrieves a value; an absent or expired key yields ErrCacheMiss
func (m *MemcacheService) Get(key string) ([]byte, error) {
	item, err := m.client.Get(key)
	if err == memcache.ErrCacheMiss {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	return item.Value, nil
}

// Set stores a value with an expiration time. memcached counts expirations
// in whole seconds; sub-second block times round down.
func (m *MemcacheService) Set(key string, value []byte, expiration time.Duration) error {
	return m.client.Set(&memcache.Item{
		Key:        key,
		Value:      value,
		Expiration: int32(expiration.Seconds()),
	})
}

// Delete removes a value; deleting a key that is already gone is not an error
func (m *MemcacheService) Delete(key string) error {
	err := m.client.Delete(key)
	if err == memcache.ErrCacheMiss {
		return nil
	}
	return err
}
