package cache

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// Manager wraps an in-memory TTL cache for query results. A disabled
// manager keeps the same API but never stores or returns anything, so
// callers do not need to branch on configuration.
type Manager struct {
	cache   *cache.Cache
	enabled bool
	mu      sync.RWMutex
}

func NewManager(defaultTTL time.Duration, enabled bool) *Manager {
	return &Manager{
		cache:   cache.New(defaultTTL, 10*time.Minute),
		enabled: enabled,
	}
}

func (m *Manager) Enabled() bool {
	return m.enabled
}

func (m *Manager) Get(key string) (interface{}, bool) {
	if !m.enabled {
		return nil, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cache.Get(key)
}

func (m *Manager) Set(key string, value interface{}, ttl time.Duration) {
	if !m.enabled {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.Set(key, value, ttl)
}

func (m *Manager) Delete(key string) {
	if !m.enabled {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.Delete(key)
}

func (m *Manager) Flush() {
	if !m.enabled {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.Flush()
}

// ItemCount returns the number of live entries, expired items included
func (m *Manager) ItemCount() int {
	if !m.enabled {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cache.ItemCount()
}
