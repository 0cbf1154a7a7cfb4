package cache

import (
	"sort"
	"time"

	"modelcat/internal/catalog"
)

// Limits bound the persisted cache. Zero values mean "no bound" and are only
// used in tests; production limits come from config.
type Limits struct {
	MaxQueries       int
	MaxPagesPerQuery int
	MaxItemsPerPage  int
}

// Page is one cached result page for a query.
type Page struct {
	Offset   int
	Items    []catalog.Item
	StoredAt time.Time
}

type queryEntry struct {
	Pages       map[int]Page
	LastTouched time.Time
}

// Index is the in-memory cache of query → page-offset → items. Values are
// treated as immutable: every mutation returns a fresh Index so concurrent
// readers never observe a half-updated structure.
type Index struct {
	entries map[string]queryEntry
}

// NewIndex returns an empty index.
func NewIndex() Index {
	return Index{entries: map[string]queryEntry{}}
}

// Len reports the number of distinct cached queries.
func (ix Index) Len() int { return len(ix.entries) }

// Pages reports the number of cached pages for key, 0 if unknown.
func (ix Index) Pages(key string) int { return len(ix.entries[key].Pages) }

// get returns the cached page items and an index with the query's
// LastTouched bumped to now.
func (ix Index) get(key string, offset int, now time.Time) ([]catalog.Item, Index, bool) {
	e, ok := ix.entries[key]
	if !ok {
		return nil, ix, false
	}
	p, ok := e.Pages[offset]
	if !ok {
		return nil, ix, false
	}
	return p.Items, ix.touch(key, now), true
}

// put inserts or overwrites a page, truncating items to MaxItemsPerPage and
// applying strict LRU eviction at both granularities: the least-recently
// touched query goes first when MaxQueries would be exceeded, the oldest
// page within the query when MaxPagesPerQuery would be.
func (ix Index) put(key string, offset int, items []catalog.Item, lim Limits, now time.Time) Index {
	if lim.MaxItemsPerPage > 0 && len(items) > lim.MaxItemsPerPage {
		items = items[:lim.MaxItemsPerPage]
	}
	entries := cloneEntries(ix.entries)

	e, exists := entries[key]
	if !exists {
		if lim.MaxQueries > 0 && len(entries) >= lim.MaxQueries {
			evictQuery(entries, lim.MaxQueries-1)
		}
		e = queryEntry{Pages: map[int]Page{}}
	} else {
		e.Pages = clonePages(e.Pages)
	}
	if _, replacing := e.Pages[offset]; !replacing && lim.MaxPagesPerQuery > 0 && len(e.Pages) >= lim.MaxPagesPerQuery {
		evictPage(e.Pages, lim.MaxPagesPerQuery-1)
	}
	e.Pages[offset] = Page{Offset: offset, Items: items, StoredAt: now}
	e.LastTouched = now
	entries[key] = e
	return Index{entries: entries}
}

// allForQuery gathers items across all cached pages for key, most recently
// stored pages first, deduplicated by repo id and capped at limit. Like get,
// it counts as a read: the returned index has the query's LastTouched bumped
// so a query served repeatedly from fallback stays off the eviction list.
func (ix Index) allForQuery(key string, limit int, now time.Time) ([]catalog.Item, Index) {
	e, ok := ix.entries[key]
	if !ok {
		return nil, ix
	}
	pages := make([]Page, 0, len(e.Pages))
	for _, p := range e.Pages {
		pages = append(pages, p)
	}
	sort.Slice(pages, func(i, j int) bool {
		if !pages[i].StoredAt.Equal(pages[j].StoredAt) {
			return pages[i].StoredAt.After(pages[j].StoredAt)
		}
		return pages[i].Offset < pages[j].Offset
	})
	var merged []catalog.Item
	for _, p := range pages {
		merged = catalog.Merge(merged, p.Items)
		if limit > 0 && len(merged) >= limit {
			merged = merged[:limit]
			break
		}
	}
	return merged, ix.touch(key, now)
}

func (ix Index) touch(key string, now time.Time) Index {
	e, ok := ix.entries[key]
	if !ok {
		return ix
	}
	entries := cloneEntries(ix.entries)
	e.LastTouched = now
	entries[key] = e
	return Index{entries: entries}
}

// evictQuery drops least-recently-touched queries until at most max remain.
func evictQuery(entries map[string]queryEntry, max int) {
	for len(entries) > max {
		victim := ""
		for k, e := range entries {
			if victim == "" {
				victim = k
				continue
			}
			v := entries[victim]
			if e.LastTouched.Before(v.LastTouched) ||
				(e.LastTouched.Equal(v.LastTouched) && k < victim) {
				victim = k
			}
		}
		delete(entries, victim)
	}
}

// evictPage drops oldest-stored pages until at most max remain.
func evictPage(pages map[int]Page, max int) {
	for len(pages) > max {
		victim, found := 0, false
		for off, p := range pages {
			if !found {
				victim, found = off, true
				continue
			}
			v := pages[victim]
			if p.StoredAt.Before(v.StoredAt) ||
				(p.StoredAt.Equal(v.StoredAt) && off < victim) {
				victim = off
			}
		}
		delete(pages, victim)
	}
}

func cloneEntries(in map[string]queryEntry) map[string]queryEntry {
	out := make(map[string]queryEntry, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func clonePages(in map[int]Page) map[int]Page {
	out := make(map[int]Page, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
