package store

import (
	"context"
	"sync"

	"github.com/phlu-lernkoop/interviewd/internal/netmap"
)

// MapCache caches network-map lookups per user in front of a NetworkMapStore.
// The map editor invalidates a user's entry whenever the map changes; there
// is no TTL because the map only changes through that one collaborator.
type MapCache struct {
	src NetworkMapStore

	mu      sync.Mutex
	entries map[string][]netmap.Person
}

func NewMapCache(src NetworkMapStore) *MapCache {
	return &MapCache{
		src:     src,
		entries: make(map[string][]netmap.Person),
	}
}

// MapForUser returns the cached map, filling from the backing store on miss.
func (c *MapCache) MapForUser(ctx context.Context, userID string) ([]netmap.Person, error) {
	c.mu.Lock()
	if people, ok := c.entries[userID]; ok {
		c.mu.Unlock()
		return people, nil
	}
	c.mu.Unlock()

	people, err := c.src.MapForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[userID] = people
	c.mu.Unlock()
	return people, nil
}

// Invalidate drops the cached entry for one user.
func (c *MapCache) Invalidate(userID string) {
	c.mu.Lock()
	delete(c.entries, userID)
	c.mu.Unlock()
}

// SaveMap writes through to the backing store and invalidates the cache tag.
func (c *MapCache) SaveMap(ctx context.Context, userID string, people []netmap.Person) error {
	if err := c.src.SaveMap(ctx, userID, people); err != nil {
		return err
	}
	c.Invalidate(userID)
	return nil
}
