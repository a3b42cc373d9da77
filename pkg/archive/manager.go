package archive

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/multierr"
)

// Manager searches a stack of archives.
// Archives are searched in reverse order (last added = highest priority).
type Manager struct {
	archives []Archive
	cache    *Cache
	mu       sync.RWMutex
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{cache: NewCache()}
}

// Add pushes an archive on top of the search stack.
func (m *Manager) Add(a Archive) {
	m.mu.Lock()
	m.archives = append(m.archives, a)
	m.mu.Unlock()
}

// Mount opens path as a zip pack or a directory, by extension.
func (m *Manager) Mount(path string) error {
	var (
		a   Archive
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".zip", ".pak", ".obb":
		a, err = OpenZip(path)
	default:
		a, err = OpenDir(path)
	}
	if err != nil {
		return fmt.Errorf("mounting %s: %w", path, err)
	}
	m.Add(a)
	return nil
}

// Open opens name from the highest-priority archive that has it.
func (m *Manager) Open(name string) (File, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := len(m.archives) - 1; i >= 0; i-- {
		f, err := m.archives[i].Open(name)
		if err == nil {
			return f, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
}

// ReadFile returns the whole entry, cached after the first read.
func (m *Manager) ReadFile(name string) ([]byte, error) {
	key := NormalizePath(name)
	if data, ok := m.cache.Get(key); ok {
		return data, nil
	}

	f, err := m.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	m.cache.Set(key, data)
	return data, nil
}

// Contains reports whether any archive has name.
func (m *Manager) Contains(name string) bool {
	f, err := m.Open(name)
	if err != nil {
		return false
	}
	f.Close()
	return true
}

// List returns the union of entry names.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]bool)
	var out []string
	for _, a := range m.archives {
		for _, name := range a.List() {
			if !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
	}
	return out
}

// Close closes all archives.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var err error
	for _, a := range m.archives {
		err = multierr.Append(err, a.Close())
	}
	m.archives = nil
	m.cache.Clear()
	return err
}

// Cache is an in-memory byte cache for archive reads.
type Cache struct {
	data map[string][]byte
	mu   sync.RWMutex

	hits   int
	misses int
}

// NewCache creates a new cache.
func NewCache() *Cache {
	return &Cache{data: make(map[string][]byte)}
}

// Get retrieves an item from cache.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, ok := c.data[key]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return data, ok
}

// Set stores an item in cache.
func (c *Cache) Set(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = data
}

// Clear empties the cache and resets stats.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string][]byte)
	c.hits = 0
	c.misses = 0
}

// Stats returns cache statistics.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}
