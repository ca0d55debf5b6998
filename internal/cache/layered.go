package cache

import (
	"errors"
	"sync/atomic"
	"time"
)

// LayeredCache checks memory first, then disk, and promotes disk hits
type LayeredCache struct {
	memory *MemoryCache
	disk   *DiskCache

	hits   atomic.Int64
	misses atomic.Int64
}

// Stats counts lookups since creation
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// NewLayeredCache creates a memory layer in front of a disk layer at diskDir
func NewLayeredCache(memoryTTL time.Duration, diskDir string, diskTTL time.Duration) *LayeredCache {
	return &LayeredCache{
		memory: NewMemoryCache(memoryTTL, 10*time.Minute),
		disk:   NewDiskCache(diskDir, diskTTL),
	}
}

func (c *LayeredCache) Get(key string) ([]byte, bool) {
	if val, found := c.memory.Get(key); found {
		c.hits.Add(1)
		return val, true
	}

	if val, found := c.disk.Get(key); found {
		_ = c.memory.Set(key, val, 0)
		c.hits.Add(1)
		return val, true
	}

	c.misses.Add(1)
	return nil, false
}

// Set stores value in both layers. The disk ttl applies to both when given.
func (c *LayeredCache) Set(key string, value []byte, ttl time.Duration) error {
	if err := c.memory.Set(key, value, ttl); err != nil {
		return err
	}
	return c.disk.Set(key, value, ttl)
}

func (c *LayeredCache) Delete(key string) error {
	return errors.Join(c.memory.Delete(key), c.disk.Delete(key))
}

func (c *LayeredCache) Clear() error {
	return errors.Join(c.memory.Clear(), c.disk.Clear())
}

// Prune drops expired disk entries
func (c *LayeredCache) Prune() (int, error) {
	return c.disk.Prune()
}

// Stats returns hit and miss counts
func (c *LayeredCache) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}
