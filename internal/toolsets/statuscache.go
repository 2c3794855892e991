package toolsets

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultCacheTTL is how long a cached toolset status stays fresh.
const DefaultCacheTTL = 10 * time.Minute

// CacheEntry is the persisted status for one toolset.
type CacheEntry struct {
	Status      Status `json:"status"`
	Error       string `json:"error,omitempty"`
	LastChecked int64  `json:"last_checked_unix"`
}

// StatusCache persists toolset prerequisite results to a JSON file so
// startup can skip re-checking recently verified toolsets. The cache is
// strictly optional; a missing or unreadable file behaves as empty.
type StatusCache struct {
	mu      sync.Mutex
	path    string
	ttl     time.Duration
	entries map[string]CacheEntry
	now     func() time.Time
}

// OpenStatusCache loads the cache at path, tolerating absence and
// corruption. A zero ttl means DefaultCacheTTL.
func OpenStatusCache(path string, ttl time.Duration) *StatusCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	c := &StatusCache{
		path:    path,
		ttl:     ttl,
		entries: map[string]CacheEntry{},
		now:     time.Now,
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return c
	}
	// A corrupt cache is discarded, not fatal.
	_ = json.Unmarshal(data, &c.entries)
	if c.entries == nil {
		c.entries = map[string]CacheEntry{}
	}
	return c
}

// Lookup returns the cached entry for a toolset if it is still fresh.
func (c *StatusCache) Lookup(name string) (CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[name]
	if !ok {
		return CacheEntry{}, false
	}
	if c.now().Unix()-entry.LastChecked > int64(c.ttl.Seconds()) {
		return CacheEntry{}, false
	}
	return entry, true
}

// Record stores a check outcome and flushes the file. Write errors are
// swallowed: the cache is an optimization, never a requirement.
func (c *StatusCache) Record(name string, status Status, errMsg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[name] = CacheEntry{
		Status:      status,
		Error:       errMsg,
		LastChecked: c.now().Unix(),
	}
	_ = c.flushLocked()
}

// Invalidate drops all entries and removes the file.
func (c *StatusCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = map[string]CacheEntry{}
	_ = os.Remove(c.path)
}

func (c *StatusCache) flushLocked() error {
	data, err := json.MarshalIndent(c.entries, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(c.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := fmt.Sprintf("%s.tmp", c.path)
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, c.path)
}
