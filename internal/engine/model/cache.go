package model

import (
	"sync"

	"github.com/Faultbox/bdae-viewer/pkg/archive"
	"github.com/Faultbox/bdae-viewer/pkg/bres"
	"github.com/Faultbox/bdae-viewer/pkg/formats"
)

// Asset is the immutable part of a model shared between instances.
type Asset struct {
	Container *bres.Container
	Data      *formats.BDAE
}

// Cache holds decoded assets keyed by normalised file name. It is owned by
// a Loader and safe for concurrent use by tile workers.
type Cache struct {
	mu     sync.Mutex
	assets map[string]*Asset
	hits   int
	misses int
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{assets: make(map[string]*Asset)}
}

// Get returns the asset stored for name.
func (c *Cache) Get(name string) (*Asset, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.assets[archive.NormalizePath(name)]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return a, ok
}

// Put stores a and returns the asset now cached for name, which is the
// earlier one when two loads raced.
func (c *Cache) Put(name string, a *Asset) *Asset {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := archive.NormalizePath(name)
	if prev, ok := c.assets[key]; ok {
		return prev
	}
	c.assets[key] = a
	return a
}

// Len returns the number of cached assets.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.assets)
}

// Clear drops all assets and resets stats.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.assets = make(map[string]*Asset)
	c.hits = 0
	c.misses = 0
}

// Stats returns cache statistics.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
