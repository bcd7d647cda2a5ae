// Package cache implements the QueryCache described in spec.md §4.6: a
// size-capped, sliding+absolute-expiring store keyed by
// (databaseId, physicalCollection, variant, hashOfParameters), with
// invalidation driven by a per-(databaseId, physicalCollection)
// monotonic token rather than by scanning and deleting individual keys.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"sync/atomic"
	"time"
)

// Variant distinguishes the shape of request that produced a cached
// result, since the same collection can be queried through several
// dialects that must not collide on the same key.
type Variant string

const (
	VariantList             Variant = "list"
	VariantHTTPJSONQuery     Variant = "http-json-query"
	VariantQueryStringQuery Variant = "query-string-query"
	VariantCount            Variant = "count"
	VariantBinaryQuery       Variant = "binary-query"
)

// HashParameters returns a short, stable hex digest of a parameter
// payload (a JSON body, a query-string, or encoded descriptor bytes)
// suitable for folding into a cache key.
func HashParameters(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])[:16]
}

// Key builds the cache key for one (database, collection, variant,
// parameters) tuple. physicalCollection is the engine-facing name
// (after namespace resolution), not the caller's logical name.
func Key(databaseID, physicalCollection string, variant Variant, parametersHash string) string {
	return databaseID + "\x00" + physicalCollection + "\x00" + string(variant) + "\x00" + parametersHash
}

type entry struct {
	value      interface{}
	token      int64
	insertedAt time.Time
	lastHit    time.Time
	absoluteAt time.Time
}

// Config holds the tunables named in spec.md §6 under QueryCache.*.
type Config struct {
	Enabled                 bool
	SlidingExpiration       time.Duration
	AbsoluteExpiration      time.Duration
	MaxEntries              int
	MaxResultSetSize        int
}

func DefaultConfig() Config {
	return Config{
		Enabled:            false,
		SlidingExpiration:  30 * time.Second,
		AbsoluteExpiration: 5 * time.Minute,
		MaxEntries:         10_000,
		MaxResultSetSize:   5_000,
	}
}

// dbCol names one (databaseId, physicalCollection) pair for the
// invalidation-token map.
type dbCol struct {
	databaseID string
	collection string
}

// Cache is the QueryCache. The zero value is not usable; use New.
type Cache struct {
	cfg Config

	mu      sync.RWMutex
	entries map[string]*entry

	tokMu  sync.Mutex
	tokens map[dbCol]*atomic.Int64
}

// New constructs a Cache. A disabled cache (cfg.Enabled == false) still
// satisfies the interface but Get always misses and Set is a no-op, so
// callers never need to branch on Enabled themselves.
func New(cfg Config) *Cache {
	if cfg.SlidingExpiration <= 0 {
		cfg.SlidingExpiration = 30 * time.Second
	}
	if cfg.AbsoluteExpiration <= 0 {
		cfg.AbsoluteExpiration = 5 * time.Minute
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 10_000
	}
	return &Cache{
		cfg:     cfg,
		entries: make(map[string]*entry),
		tokens:  make(map[dbCol]*atomic.Int64),
	}
}

func (c *Cache) tokenFor(databaseID, physicalCollection string) *atomic.Int64 {
	k := dbCol{databaseID, physicalCollection}
	c.tokMu.Lock()
	defer c.tokMu.Unlock()
	tok, ok := c.tokens[k]
	if !ok {
		tok = &atomic.Int64{}
		c.tokens[k] = tok
	}
	return tok
}

// Get returns the cached value for key if present, not expired, and not
// invalidated since it was written. A hit refreshes the sliding window.
func (c *Cache) Get(key string, databaseID, physicalCollection string) (interface{}, bool) {
	if !c.cfg.Enabled {
		return nil, false
	}
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}

	now := time.Now()
	if now.After(e.absoluteAt) {
		c.evict(key)
		return nil, false
	}
	if now.After(e.lastHit.Add(c.cfg.SlidingExpiration)) {
		c.evict(key)
		return nil, false
	}
	if e.token != c.tokenFor(databaseID, physicalCollection).Load() {
		c.evict(key)
		return nil, false
	}

	c.mu.Lock()
	e.lastHit = now
	c.mu.Unlock()
	return e.value, true
}

// Set stores value under key, stamped with the current invalidation
// token for (databaseID, physicalCollection) so a later Invalidate call
// renders it stale without needing to find and delete it.
func (c *Cache) Set(key string, value interface{}, databaseID, physicalCollection string) {
	if !c.cfg.Enabled {
		return
	}
	now := time.Now()
	e := &entry{
		value:      value,
		token:      c.tokenFor(databaseID, physicalCollection).Load(),
		insertedAt: now,
		lastHit:    now,
		absoluteAt: now.Add(c.cfg.AbsoluteExpiration),
	}

	c.mu.Lock()
	c.entries[key] = e
	over := len(c.entries) - c.cfg.MaxEntries
	c.mu.Unlock()

	if over > 0 {
		c.evictOldest(over)
	}
}

func (c *Cache) evict(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// evictOldest drops the n least-recently-hit entries. It is the size
// guard for MaxEntries; invalidated entries are already handled lazily
// by the per-(db,col) token check in Get and are not specifically
// targeted here.
func (c *Cache) evictOldest(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := 0; i < n && len(c.entries) > 0; i++ {
		var oldestKey string
		var oldest time.Time
		first := true
		for k, e := range c.entries {
			if first || e.lastHit.Before(oldest) {
				oldestKey, oldest, first = k, e.lastHit, false
			}
		}
		if oldestKey != "" {
			delete(c.entries, oldestKey)
		}
	}
}

// Invalidate bumps the invalidation token for (databaseID,
// physicalCollection). Every entry previously written against that pair
// stops matching on its next Get and is lazily reclaimed; Invalidate
// itself does not walk the entry map.
func (c *Cache) Invalidate(databaseID, physicalCollection string) {
	c.tokenFor(databaseID, physicalCollection).Add(1)
}

// InvalidateDatabase bumps the token for every (databaseID, *) pair
// currently tracked, covering operations that affect a whole database
// (deprovisioning, a restore) rather than one collection.
func (c *Cache) InvalidateDatabase(databaseID string) {
	c.tokMu.Lock()
	defer c.tokMu.Unlock()
	for k, tok := range c.tokens {
		if k.databaseID == databaseID {
			tok.Add(1)
		}
	}
}

// Len reports the current number of live entries, for metrics.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
