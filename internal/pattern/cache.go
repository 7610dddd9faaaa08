package pattern

import (
	"container/list"
	"strconv"
	"sync"

	"github.com/standardbeagle/filterline/internal/types"
)

// maxCachedPatternLength bounds what the cache will hold
const maxCachedPatternLength = 1000

// Cache is an LRU of compiled patterns keyed by pattern text and the options
// that affect compilation. Compiled values are immutable and safe to share.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	lru     *list.List
	maxSize int

	stats CacheStats
}

// CacheStats tracks cache performance statistics
type CacheStats struct {
	Hits      int64
	Misses    int64
	Evictions int64
}

type cacheEntry struct {
	key      string
	compiled *Compiled
}

// NewCache creates a cache holding at most maxSize patterns
func NewCache(maxSize int) *Cache {
	if maxSize <= 0 {
		maxSize = 64
	}
	return &Cache{
		entries: make(map[string]*list.Element),
		lru:     list.New(),
		maxSize: maxSize,
	}
}

func cacheKey(pattern string, opts types.SearchOptions) string {
	return strconv.FormatBool(opts.RegexMode) +
		strconv.FormatBool(opts.MatchPatternSelf) +
		strconv.FormatBool(EffectiveIgnoreCase(pattern, opts)) +
		"\x00" + pattern
}

// Compile returns a cached matcher or compiles and caches a new one.
// Failed compilations are not cached.
func (c *Cache) Compile(pattern string, opts types.SearchOptions) (*Compiled, error) {
	if len(pattern) > maxCachedPatternLength {
		return Compile(pattern, opts)
	}

	key := cacheKey(pattern, opts)

	c.mu.Lock()
	if elem, ok := c.entries[key]; ok {
		c.lru.MoveToFront(elem)
		c.stats.Hits++
		compiled := elem.Value.(*cacheEntry).compiled
		c.mu.Unlock()
		return compiled, nil
	}
	c.stats.Misses++
	c.mu.Unlock()

	compiled, err := Compile(pattern, opts)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.entries[key]; ok {
		// Another caller won the race
		c.lru.MoveToFront(elem)
		return elem.Value.(*cacheEntry).compiled, nil
	}
	if c.lru.Len() >= c.maxSize {
		c.evict()
	}
	c.entries[key] = c.lru.PushFront(&cacheEntry{key: key, compiled: compiled})
	return compiled, nil
}

// evict removes the least recently used entry
func (c *Cache) evict() {
	back := c.lru.Back()
	if back == nil {
		return
	}
	delete(c.entries, back.Value.(*cacheEntry).key)
	c.lru.Remove(back)
	c.stats.Evictions++
}

// Stats returns cache statistics
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Len returns the number of cached patterns
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Clear drops all cached patterns and resets statistics
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.lru = list.New()
	c.stats = CacheStats{}
}
