package cache

import (
	"encoding/json"
	"sort"
	"time"

	"modelcat/internal/catalog"
)

// schemaVersion is bumped on any incompatible change to the persisted
// shape. Load discards mismatching blobs instead of migrating them.
const schemaVersion = 1

type persistedIndex struct {
	Version int              `json:"version"`
	Entries []persistedQuery `json:"entries"`
}

type persistedQuery struct {
	QueryKey    string          `json:"queryKey"`
	Pages       []persistedPage `json:"pages"`
	LastTouched int64           `json:"lastTouched"`
}

type persistedPage struct {
	Offset   int            `json:"offset"`
	Items    []catalog.Item `json:"items"`
	StoredAt int64          `json:"storedAt"`
}

// encode serializes the index to its versioned JSON shape. Entries are
// emitted in key order so identical indexes produce identical blobs.
func encode(ix Index) ([]byte, error) {
	p := persistedIndex{Version: schemaVersion}
	keys := make([]string, 0, len(ix.entries))
	for k := range ix.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		e := ix.entries[k]
		pq := persistedQuery{QueryKey: k, LastTouched: e.LastTouched.Unix()}
		offsets := make([]int, 0, len(e.Pages))
		for off := range e.Pages {
			offsets = append(offsets, off)
		}
		sort.Ints(offsets)
		for _, off := range offsets {
			pg := e.Pages[off]
			pq.Pages = append(pq.Pages, persistedPage{
				Offset:   off,
				Items:    pg.Items,
				StoredAt: pg.StoredAt.Unix(),
			})
		}
		p.Entries = append(p.Entries, pq)
	}
	return json.Marshal(p)
}

// decode parses a persisted blob, validating shape and version. A corrupted
// or mismatching blob yields an empty index and ok=false; it must never
// crash startup.
func decode(b []byte) (Index, bool) {
	if len(b) == 0 {
		return NewIndex(), false
	}
	var p persistedIndex
	if err := json.Unmarshal(b, &p); err != nil {
		return NewIndex(), false
	}
	if p.Version != schemaVersion {
		return NewIndex(), false
	}
	ix := NewIndex()
	for _, pq := range p.Entries {
		if pq.QueryKey == "" {
			return NewIndex(), false
		}
		e := queryEntry{
			Pages:       make(map[int]Page, len(pq.Pages)),
			LastTouched: time.Unix(pq.LastTouched, 0),
		}
		for _, pg := range pq.Pages {
			if pg.Offset < 0 {
				return NewIndex(), false
			}
			e.Pages[pg.Offset] = Page{
				Offset:   pg.Offset,
				Items:    pg.Items,
				StoredAt: time.Unix(pg.StoredAt, 0),
			}
		}
		ix.entries[pq.QueryKey] = e
	}
	return ix, true
}
