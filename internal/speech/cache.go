package speech

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"sync"

	"github.com/hammamikhairi/tabkha/internal/logger"
)

const defaultCacheEntries = 64

// AudioCache keeps synthesized replies so repeated lines (greetings,
// favourite recipes read twice) are not synthesized again. Entries are
// keyed by sha256(voice + ":" + text); memory holds the most recently used
// entries and an optional directory persists them across runs.
type AudioCache struct {
	voice     string
	cacheDir  string
	diskWrite bool
	limit     int
	log       *logger.Logger

	mu      sync.Mutex
	order   *list.List // front = most recent; values are keys
	entries map[string]*list.Element
	data    map[string][]byte
	hits    int64
	misses  int64
}

// NewAudioCache creates a cache.
//
//   - voice:     baked into every key, so switching voices misses.
//   - cacheDir:  on-disk layer; empty disables it.
//   - diskWrite: persist new entries. Existing files are read either way.
func NewAudioCache(voice, cacheDir string, diskWrite bool, log *logger.Logger) *AudioCache {
	if cacheDir != "" && diskWrite {
		if err := os.MkdirAll(cacheDir, 0o755); err != nil {
			log.Error("cache: failed to create cache dir %s: %v", cacheDir, err)
		}
	}
	return &AudioCache{
		voice:     voice,
		cacheDir:  cacheDir,
		diskWrite: diskWrite,
		limit:     defaultCacheEntries,
		log:       log,
		order:     list.New(),
		entries:   make(map[string]*list.Element),
		data:      make(map[string][]byte),
	}
}

// Get returns cached audio for text, checking memory then disk.
func (c *AudioCache) Get(text string) ([]byte, bool) {
	key := c.key(text)

	c.mu.Lock()
	if el, ok := c.entries[key]; ok {
		c.order.MoveToFront(el)
		c.hits++
		audio := c.data[key]
		c.mu.Unlock()
		c.log.Debug("cache hit (mem): %s", truncate(text, 40))
		return audio, true
	}
	c.mu.Unlock()

	if c.cacheDir != "" {
		if audio, err := os.ReadFile(c.path(key)); err == nil {
			c.mu.Lock()
			c.storeLocked(key, audio)
			c.hits++
			c.mu.Unlock()
			c.log.Debug("cache hit (disk): %s", truncate(text, 40))
			return audio, true
		}
	}

	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
	return nil, false
}

// Put stores audio for text in memory and, if enabled, on disk.
func (c *AudioCache) Put(text string, audio []byte) {
	key := c.key(text)

	c.mu.Lock()
	c.storeLocked(key, audio)
	c.mu.Unlock()

	if c.cacheDir != "" && c.diskWrite {
		if err := os.WriteFile(c.path(key), audio, 0o644); err != nil {
			c.log.Error("cache: disk write failed: %v", err)
		}
	}
}

// Len returns the number of in-memory entries.
func (c *AudioCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns hit and miss counts.
func (c *AudioCache) Stats() (hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// storeLocked must be called with c.mu held.
func (c *AudioCache) storeLocked(key string, audio []byte) {
	if el, ok := c.entries[key]; ok {
		c.order.MoveToFront(el)
		c.data[key] = audio
		return
	}
	c.entries[key] = c.order.PushFront(key)
	c.data[key] = audio

	for c.order.Len() > c.limit {
		oldest := c.order.Back()
		k := oldest.Value.(string)
		c.order.Remove(oldest)
		delete(c.entries, k)
		delete(c.data, k)
	}
}

func (c *AudioCache) key(text string) string {
	h := sha256.Sum256([]byte(c.voice + ":" + text))
	return hex.EncodeToString(h[:])
}

func (c *AudioCache) path(key string) string {
	return filepath.Join(c.cacheDir, key+".audio")
}
