package linklist

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/tilinna/clock"
)

// Cache is used to store Documents which have already been parsed, so that
// the same text need not be parsed over and over.
//
// Documents retrieved from a Cache are shared, and must not be modified.
type Cache interface {

	// Set stores the Document under the given key. The Document will be
	// cleared from the Cache once the expiry is reached.
	Set(key string, doc Document, expiresAt time.Time)

	// Get returns the Document stored under the key, and true, if Set has been
	// called with the key and the expiry from that call has not yet elapsed.
	Get(key string) (Document, bool)

	Close() error
}

// CacheKey returns the key under which the Document parsed from the given
// text and source name should be cached.
func CacheKey(text, sourceName string) string {
	h := sha256.New()
	h.Write([]byte(sourceName))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// MemoryCacheOpts are optional parameters to NewMemoryCache. A nil value is
// equivalent to a zero value.
type MemoryCacheOpts struct {
	// Clock is used for controlling the view of time.
	//
	// Defaults to clock.Realtime().
	Clock clock.Clock
}

func (o *MemoryCacheOpts) withDefaults() *MemoryCacheOpts {
	if o == nil {
		o = new(MemoryCacheOpts)
	}

	if o.Clock == nil {
		o.Clock = clock.Realtime()
	}

	return o
}

type memCacheEntry struct {
	doc       Document
	expiresAt time.Time
}

type inMemCache struct {
	opts *MemoryCacheOpts

	m          map[string]memCacheEntry
	l          sync.RWMutex
	closeCh    chan struct{}
	spinLoopCh chan struct{} // only used by tests
}

const inMemCacheGCPeriod = 5 * time.Second

// NewMemoryCache initializes and returns an in-memory Cache implementation.
func NewMemoryCache(opts *MemoryCacheOpts) Cache {
	c := &inMemCache{
		opts:       opts.withDefaults(),
		m:          map[string]memCacheEntry{},
		closeCh:    make(chan struct{}),
		spinLoopCh: make(chan struct{}, 1),
	}
	go c.spin(c.opts.Clock.NewTicker(inMemCacheGCPeriod))
	return c
}

func (c *inMemCache) spin(ticker *clock.Ticker) {
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := c.opts.Clock.Now()

			c.l.Lock()
			for key, entry := range c.m {
				if !now.Before(entry.expiresAt) {
					delete(c.m, key)
				}
			}
			c.l.Unlock()

		case <-c.closeCh:
			return
		}

		select {
		case c.spinLoopCh <- struct{}{}:
		default:
		}
	}
}

func (c *inMemCache) Set(key string, doc Document, expiresAt time.Time) {
	c.l.Lock()
	defer c.l.Unlock()
	c.m[key] = memCacheEntry{doc, expiresAt}
}

func (c *inMemCache) Get(key string) (Document, bool) {
	c.l.RLock()
	defer c.l.RUnlock()

	entry, ok := c.m[key]
	if !ok || !entry.expiresAt.After(c.opts.Clock.Now()) {
		return Document{}, false
	}
	return entry.doc, true
}

func (c *inMemCache) Close() error {
	close(c.closeCh)
	return nil
}

// CachedParser wraps a Parser, storing and re-using results from a Cache.
type CachedParser struct {
	Parser *Parser
	Cache  Cache

	// TTL is how long a parsed Document remains cached.
	TTL time.Duration

	// Clock is used for controlling the view of time.
	//
	// Defaults to clock.Realtime().
	Clock clock.Clock
}

// Parse returns the cached Document for the text and source name if there is
// one, otherwise it parses the text and caches the result. The returned bool
// is true if the Document came from the Cache.
func (c CachedParser) Parse(text, sourceName string) (Document, bool) {
	key := CacheKey(text, sourceName)
	if doc, ok := c.Cache.Get(key); ok {
		return doc, true
	}

	clk := c.Clock
	if clk == nil {
		clk = clock.Realtime()
	}

	doc := c.Parser.Parse(text, sourceName)
	c.Cache.Set(key, doc, clk.Now().Add(c.TTL))
	return doc, false
}
