package cache

import (
	"sync"
	"time"

	"modelcat/internal/catalog"
	"modelcat/internal/errors"
	"modelcat/internal/logging"
)

// KV is the persistent string-keyed store the cache serializes into. The
// production implementation is a sqlite table (internal/state); tests use
// MemKV.
type KV interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
}

// indexKey is where the serialized index lives inside the KV.
const indexKey = "search_cache_index"

// Store is the bounded multi-level search cache: query → page offset →
// items, LRU-evicted at both levels and written through to the KV after
// every mutation.
type Store struct {
	kv     KV
	limits Limits
	log    *logging.Logger
	now    func() time.Time

	mu sync.Mutex
	ix Index
}

// NewStore loads any persisted index from kv. A corrupted blob silently
// resets to an empty cache.
func NewStore(kv KV, limits Limits, log *logging.Logger) *Store {
	s := &Store{kv: kv, limits: limits, log: log, now: time.Now, ix: NewIndex()}
	if kv == nil {
		return s
	}
	blob, ok, err := kv.Get(indexKey)
	if err != nil {
		log.Warnf("cache load: %v", err)
		return s
	}
	if !ok {
		return s
	}
	ix, ok := decode([]byte(blob))
	if !ok {
		log.Warnf("%v", errors.CacheCorrupt(nil))
	}
	s.ix = ix
	return s
}

// Get returns the cached page for (query, offset) and bumps the query's
// LRU position.
func (s *Store) Get(query string, offset int) ([]catalog.Item, bool) {
	key := catalog.CacheKey(query)
	s.mu.Lock()
	items, ix, ok := s.ix.get(key, offset, s.now())
	s.ix = ix
	s.mu.Unlock()
	if ok {
		s.persist()
	}
	return items, ok
}

// Put inserts or overwrites a page and writes the index through to the KV.
func (s *Store) Put(query string, offset int, items []catalog.Item) {
	key := catalog.CacheKey(query)
	s.mu.Lock()
	s.ix = s.ix.put(key, offset, items, s.limits, s.now())
	s.mu.Unlock()
	s.persist()
}

// AllForQuery returns the deduplicated union of every cached page for the
// query, most recently cached pages first, capped at limit. This is the
// fallback snapshot shown when a live fetch fails; serving it bumps the
// query's LRU position like any other read.
func (s *Store) AllForQuery(query string, limit int) []catalog.Item {
	key := catalog.CacheKey(query)
	s.mu.Lock()
	items, ix := s.ix.allForQuery(key, limit, s.now())
	s.ix = ix
	s.mu.Unlock()
	if items != nil {
		s.persist()
	}
	return items
}

// Queries reports how many distinct queries are cached.
func (s *Store) Queries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ix.Len()
}

// PagesFor reports how many pages are cached for the query.
func (s *Store) PagesFor(query string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ix.Pages(catalog.CacheKey(query))
}

func (s *Store) persist() {
	if s.kv == nil {
		return
	}
	s.mu.Lock()
	blob, err := encode(s.ix)
	s.mu.Unlock()
	if err != nil {
		s.log.Warnf("cache encode: %v", err)
		return
	}
	if err := s.kv.Set(indexKey, string(blob)); err != nil {
		s.log.Warnf("cache persist: %v", err)
	}
}

// MemKV is an in-memory KV for tests and ephemeral runs.
type MemKV struct {
	mu sync.Mutex
	m  map[string]string
}

func NewMemKV() *MemKV { return &MemKV{m: map[string]string{}} }

func (kv *MemKV) Get(key string) (string, bool, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	v, ok := kv.m[key]
	return v, ok, nil
}

func (kv *MemKV) Set(key, value string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.m[key] = value
	return nil
}
