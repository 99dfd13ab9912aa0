package devopscache

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"
)

// DefaultTTL is used when Put is called without an explicit TTL.
const DefaultTTL = 30 * time.Second

// Cache is the process-wide Devops Cache. Entries live in memory,
// guarded by a mutex; writes persist asynchronously to a single JSON
// document on disk, written atomically via temp file + rename.
type Cache struct {
	path string

	mu         sync.RWMutex
	entries    map[string]Entry
	generation uint64
}

// NewCache constructs a Cache backed by path, loading any existing
// on-disk document. A missing file starts empty.
func NewCache(path string) (*Cache, error) {
	c := &Cache{path: path, entries: make(map[string]Entry)}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	if err := c.load(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	return c, nil
}

func (c *Cache) load() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return err
	}

	var file cacheFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse cache file: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation = file.Generation
	c.entries = file.Entries
	if c.entries == nil {
		c.entries = make(map[string]Entry)
	}
	return nil
}

// save writes the cache atomically via a temp file + rename.
func (c *Cache) save() error {
	c.mu.RLock()
	file := cacheFile{Generation: c.generation, Entries: c.entries}
	c.mu.RUnlock()

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache: %w", err)
	}

	tmpPath := c.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp cache file: %w", err)
	}
	if err := os.Rename(tmpPath, c.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename cache file: %w", err)
	}
	return nil
}

// Get returns a deep copy of the named card's value along with its age,
// staleness, and the cache's current generation counter. ok is false on
// a miss.
func (c *Cache) Get(card string) (GetResult, bool) {
	c.mu.RLock()
	entry, ok := c.entries[card]
	generation := c.generation
	c.mu.RUnlock()
	if !ok {
		return GetResult{}, false
	}

	value, err := deepCopy(entry.Value)
	if err != nil {
		value = entry.Value
	}

	return GetResult{
		Value:      value,
		CapturedAt: entry.CapturedAt,
		Age:        time.Since(entry.CapturedAt),
		Stale:      isStale(entry),
		Generation: generation,
	}, true
}

// Put stores value under card, stat'ing each of inputs to compute
// inputs_mtime_max, and schedules an asynchronous persist. ttl<=0 uses
// DefaultTTL.
func (c *Cache) Put(card string, value interface{}, inputs []string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	var maxMtime time.Time
	for _, p := range inputs {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		if info.ModTime().After(maxMtime) {
			maxMtime = info.ModTime()
		}
	}

	entry := Entry{
		Card:           card,
		Value:          value,
		CapturedAt:     time.Now(),
		InputsMtimeMax: maxMtime,
		TTL:            ttl,
		Inputs:         inputs,
	}

	c.mu.Lock()
	c.entries[card] = entry
	c.mu.Unlock()

	go func() { _ = c.save() }()
}

// Invalidate removes cards matching pattern: an exact card name, the
// literal "all", or a path.Match-style glob. It bumps the generation
// counter so clients presenting a stale last-seen generation are forced
// to refetch.
func (c *Cache) Invalidate(pattern string) {
	c.mu.Lock()
	if pattern == "all" || pattern == "*" {
		c.entries = make(map[string]Entry)
	} else if _, ok := c.entries[pattern]; ok {
		delete(c.entries, pattern)
	} else {
		for card := range c.entries {
			if matched, _ := path.Match(pattern, card); matched {
				delete(c.entries, card)
			}
		}
	}
	c.generation++
	c.mu.Unlock()

	go func() { _ = c.save() }()
}

// Generation returns the current coherence generation counter.
func (c *Cache) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation
}

func isStale(e Entry) bool {
	if time.Since(e.CapturedAt) >= e.TTL {
		return true
	}
	for _, p := range e.Inputs {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		if info.ModTime().After(e.InputsMtimeMax) {
			return true
		}
	}
	return false
}

func deepCopy(value interface{}) (interface{}, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	var out interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
