package storage

import (
	"fmt"
	"sort"
	"time"

	"github.com/patrickmn/go-cache"
)

// MemoryStore is an in-process Store backed by go-cache.
type MemoryStore struct {
	cache *cache.Cache
}

// NewMemoryStore creates a memory store. A ttl <= 0 keeps entries forever.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	expiration, cleanup := cache.NoExpiration, time.Duration(0)
	if ttl > 0 {
		expiration, cleanup = ttl, ttl*2
	}
	return &MemoryStore{cache: cache.New(expiration, cleanup)}
}

func (m *MemoryStore) Put(f EntityForecast) error {
	if f.EntityID == "" {
		return fmt.Errorf("%w: empty entity id", ErrInvalidForecast)
	}
	m.cache.Set(f.EntityID, f, cache.DefaultExpiration)
	return nil
}

func (m *MemoryStore) Get(entityID string) (EntityForecast, bool, error) {
	v, ok := m.cache.Get(entityID)
	if !ok {
		return EntityForecast{}, false, nil
	}
	return v.(EntityForecast), true, nil
}

// Entities returns the stored entity ids in ascending order.
func (m *MemoryStore) Entities() ([]string, error) {
	items := m.cache.Items()
	ids := make([]string, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Len returns the number of stored entities.
func (m *MemoryStore) Len() int {
	return m.cache.ItemCount()
}
