package search

import (
	"context"

	"modelcat/internal/hub"
)

// The hub paginates with opaque continuation tokens, not page numbers. The
// cursor map records, per query key, the token that reaches each page: page
// 1 is always the empty token, page N>1 is whatever fetching page N−1
// returned. First-time forward paging is therefore sequential; revisits hit
// the map directly.

// knownCursor returns the recorded token for (key, page).
func (s *Service) knownCursor(key string, page int) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.cursors[key]
	if !ok {
		return "", false
	}
	c, ok := m[page]
	return c, ok
}

// recordCursor stores the token that reaches page.
func (s *Service) recordCursor(key string, page int, cursor string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.cursors[key]
	if !ok {
		m = map[int]string{}
		s.cursors[key] = m
	}
	m[page] = cursor
}

// resolveCursor walks the cursor chain until the token for targetPage is
// known, fetching intermediate pages live when their next-cursor was never
// observed. A cached page does not imply a known chain: its contents were
// stored, its continuation token may not have been, and learning it costs
// one fetch. Returns ok=false when the page is unreachable; err is non-nil
// only when a fetch failed, so the caller can tell exhaustion (no more
// pages) apart from a resolution failure worth falling back for.
func (s *Service) resolveCursor(ctx context.Context, key, query string, targetPage int, tok uint64) (string, bool, error) {
	if targetPage <= 1 {
		return "", true, nil
	}
	if c, ok := s.knownCursor(key, targetPage); ok {
		return c, true, nil
	}
	prev, ok, err := s.resolveCursor(ctx, key, query, targetPage-1, tok)
	if !ok {
		return "", false, err
	}
	if s.stale(tok) {
		return "", false, nil
	}
	page, err := s.hub.Search(ctx, query, hub.SearchOptions{
		Limit:  s.cfg.Search.PageSize,
		Cursor: prev,
		Offset: (targetPage - 2) * s.cfg.Search.PageSize,
	})
	if err != nil {
		s.noteFailure(err)
		return "", false, err
	}
	// The fetched page is correct data regardless of token freshness.
	s.cache.Put(query, targetPage-1, page.Items)
	if page.NextCursor == "" {
		return "", false, nil
	}
	s.recordCursor(key, targetPage, page.NextCursor)
	if s.stale(tok) {
		return "", false, nil
	}
	return page.NextCursor, true, nil
}
