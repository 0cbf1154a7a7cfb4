// Package search owns the "current search" lifecycle: debounce, request
// tokens, cache-vs-live-vs-fallback policy, and cursor-based paging. It is
// the single authority for what result set is currently displayed.
package search

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"modelcat/internal/cache"
	"modelcat/internal/catalog"
	"modelcat/internal/config"
	"modelcat/internal/errors"
	"modelcat/internal/hub"
	"modelcat/internal/logging"
	"modelcat/internal/metrics"
	"modelcat/internal/reactive"
)

// Phase is where the current search session stands.
type Phase string

const (
	PhaseIdle            Phase = "idle"
	PhaseDebouncing      Phase = "debouncing"
	PhaseResolving       Phase = "resolving"
	PhaseLiveFetching    Phase = "live_fetching"
	PhaseCacheOnly       Phase = "cache_only"
	PhaseOfflineFallback Phase = "offline_fallback"
	PhaseSettled         Phase = "settled"
)

// Snapshot is the whole displayed search state. Published as a complete
// replacement value on every change; consumers must treat it as read-only.
type Snapshot struct {
	Query           string
	PendingFilename string
	Page            int
	Items           []catalog.Item
	Facets          catalog.Facets
	Origin          catalog.Origin
	Phase           Phase
	// Unavailable is set when neither live nor cached nor seed data could
	// serve the query. The UI must show an explicit message, never a blank
	// screen.
	Unavailable bool
	NoMorePages bool
	Notice      string
}

// Service orchestrates searches against the hub with a write-through page
// cache. Superseded requests are never cancelled; their replies are
// discarded by token comparison and their cache writes still land.
type Service struct {
	cfg   *config.Config
	log   *logging.Logger
	hub   hub.Searcher
	meta  hub.MetadataFetcher // may be nil
	cache *cache.Store
	met   *metrics.Manager // may be nil
	seed  []catalog.Item

	results *reactive.Store[Snapshot]
	token   atomic.Uint64

	mu            sync.Mutex
	cursors       map[string]map[int]string
	cooldownUntil time.Time
	debounce      *time.Timer
	pendingRaw    string
	lastNorm      catalog.Normalized

	now func() time.Time
	ctx context.Context
}

func New(ctx context.Context, cfg *config.Config, client hub.Searcher, meta hub.MetadataFetcher, store *cache.Store, met *metrics.Manager, seedItems []catalog.Item, log *logging.Logger) *Service {
	if !cfg.Search.UseSeed {
		seedItems = nil
	}
	return &Service{
		cfg:     cfg,
		log:     log.With("search"),
		hub:     client,
		meta:    meta,
		cache:   store,
		met:     met,
		seed:    seedItems,
		results: reactive.NewStore(Snapshot{Phase: PhaseIdle}),
		cursors: map[string]map[int]string{},
		now:     time.Now,
		ctx:     ctx,
	}
}

// Results is the reactive stream the UI subscribes to.
func (s *Service) Results() *reactive.Store[Snapshot] { return s.results }

// SetQuery feeds one keystroke of raw input. The search fires after the
// debounce window; typing again restarts the window without issuing a
// request.
func (s *Service) SetQuery(raw string) {
	s.mu.Lock()
	s.pendingRaw = raw
	if s.debounce != nil {
		s.debounce.Stop()
	}
	s.debounce = time.AfterFunc(s.cfg.Debounce(), s.debounceFired)
	s.mu.Unlock()

	cur := s.results.Get()
	cur.Phase = PhaseDebouncing
	s.results.Set(cur)
}

func (s *Service) debounceFired() {
	s.mu.Lock()
	raw := s.pendingRaw
	s.mu.Unlock()
	s.start(raw, 1)
}

// SearchNow skips the debounce (the user pressed Enter).
func (s *Service) SearchNow(raw string) {
	s.mu.Lock()
	if s.debounce != nil {
		s.debounce.Stop()
	}
	s.pendingRaw = raw
	s.mu.Unlock()
	s.start(raw, 1)
}

// LoadPage navigates the current query to the given 1-based page.
func (s *Service) LoadPage(page int) {
	if page < 1 {
		page = 1
	}
	s.mu.Lock()
	n := s.lastNorm
	if s.debounce != nil {
		s.debounce.Stop()
	}
	s.mu.Unlock()
	tok := s.token.Add(1)
	go s.run(tok, n, page)
}

// Close stops the pending debounce timer, if any.
func (s *Service) Close() {
	s.mu.Lock()
	if s.debounce != nil {
		s.debounce.Stop()
	}
	s.mu.Unlock()
}

// start mints a new token, implicitly invalidating every in-flight request,
// and launches the search session.
func (s *Service) start(raw string, page int) {
	n := catalog.Normalize(raw)
	s.mu.Lock()
	s.lastNorm = n
	s.mu.Unlock()
	tok := s.token.Add(1)
	if s.met != nil {
		s.met.IncSearches()
	}
	go s.run(tok, n, page)
}

func (s *Service) stale(tok uint64) bool { return tok != s.token.Load() }

// publish pushes a snapshot unless the request that produced it lost the
// current-token race. This is the core correctness check: out-of-order
// replies must never override a newer request's results.
func (s *Service) publish(tok uint64, snap Snapshot) {
	if s.stale(tok) {
		return
	}
	snap.Facets = catalog.ComputeFacets(snap.Items)
	s.results.Set(snap)
}

func (s *Service) run(tok uint64, n catalog.Normalized, page int) {
	key := catalog.CacheKey(n.Query)
	snap := Snapshot{
		Query:           n.Query,
		PendingFilename: n.PendingFilename,
		Page:            page,
		Phase:           PhaseResolving,
	}

	// Optimistic display from cache (and the seed list on the trending
	// view) while the live fetch runs.
	if cached, ok := s.cache.Get(n.Query, page); ok {
		snap.Items = catalog.Merge(s.seedFor(key), tagged(cached, catalog.OriginCache))
		snap.Origin = catalog.OriginCache
		if s.met != nil {
			s.met.IncCacheHits()
		}
	} else if sd := s.seedFor(key); len(sd) > 0 && page == 1 {
		snap.Items = sd
		snap.Origin = catalog.OriginStatic
	}
	s.publish(tok, snap)

	// The cool-down gates every live fetch, including the ones the cursor
	// resolver would issue while walking the chain for a deep page.
	if until := s.cooldownDeadline(); s.now().Before(until) {
		s.log.Debugf("cooldown active until %s, skipping live fetch", until.Format(time.RFC3339))
		s.fallback(tok, snap, n.Query, key, PhaseOfflineFallback, "showing cached results while offline")
		return
	}

	cursor := ""
	if page > 1 {
		c, ok, rerr := s.resolveCursor(s.ctx, key, n.Query, page, tok)
		if !ok {
			if s.stale(tok) {
				return
			}
			if rerr != nil {
				phase := PhaseCacheOnly
				if errors.KindOf(rerr) == errors.KindNetwork {
					phase = PhaseOfflineFallback
				}
				s.fallback(tok, snap, n.Query, key, phase, "live search failed, showing cached results")
				return
			}
			snap.Phase = PhaseSettled
			snap.NoMorePages = true
			s.publish(tok, snap)
			return
		}
		cursor = c
	}
	if s.stale(tok) {
		return
	}

	snap.Phase = PhaseLiveFetching
	s.publish(tok, snap)
	if s.met != nil {
		s.met.IncLiveFetches()
	}
	res, err := s.hub.Search(s.ctx, n.Query, hub.SearchOptions{
		Limit:  s.cfg.Search.PageSize,
		Cursor: cursor,
		Offset: (page - 1) * s.cfg.Search.PageSize,
	})
	if err != nil {
		s.noteFailure(err)
		if s.stale(tok) {
			return
		}
		phase := PhaseCacheOnly
		if errors.KindOf(err) == errors.KindNetwork {
			phase = PhaseOfflineFallback
		}
		s.fallback(tok, snap, n.Query, key, phase, "live search failed, showing cached results")
		return
	}

	// Write-through happens even for superseded requests: the data is
	// correct, it is just not necessarily the latest view.
	s.cache.Put(n.Query, page, res.Items)
	if res.NextCursor != "" {
		s.recordCursor(key, page+1, res.NextCursor)
	}
	s.clearCooldown()
	if s.stale(tok) {
		return
	}

	snap.Items = catalog.Merge(snap.Items, res.Items)
	snap.Origin = catalog.OriginLive
	snap.Phase = PhaseSettled
	snap.Notice = ""
	snap.Unavailable = false
	s.publish(tok, snap)

	if s.meta != nil {
		s.enrich(tok, snap.Items)
	}
}

// fallback serves the best cached snapshot for the query, the seed list for
// the trending view, or an explicit unavailable state. Never leaves the UI
// blank and unexplained.
func (s *Service) fallback(tok uint64, snap Snapshot, query, key string, phase Phase, notice string) {
	if s.met != nil {
		s.met.IncFallbacks()
	}
	limit := s.cfg.Search.PageSize * s.cfg.Cache.MaxPagesPerQuery
	items := s.cache.AllForQuery(query, limit)
	switch {
	case len(items) > 0:
		snap.Items = catalog.Merge(s.seedFor(key), tagged(items, catalog.OriginCache))
		snap.Origin = catalog.OriginCache
		snap.Notice = notice
	case key == catalog.TrendingKey && len(s.seed) > 0:
		snap.Items = s.seedFor(key)
		snap.Origin = catalog.OriginStatic
		snap.Notice = notice
	default:
		snap.Items = nil
		snap.Unavailable = true
		snap.Notice = "search unavailable"
	}
	snap.Phase = phase
	s.publish(tok, snap)
	snap.Phase = PhaseSettled
	s.publish(tok, snap)
}

// enrich resolves missing optional fields for the visible items, a few
// repos at a time. Results merge stickily, so a later less-informative
// source can never blank them again.
func (s *Service) enrich(tok uint64, items []catalog.Item) {
	var todo []catalog.Item
	for _, it := range items {
		if it.ParameterCount == nil || it.ContextLength == nil {
			todo = append(todo, it)
		}
	}
	if len(todo) == 0 {
		return
	}
	var mu sync.Mutex
	var enriched []catalog.Item
	g, ctx := errgroup.WithContext(s.ctx)
	g.SetLimit(4)
	for _, it := range todo {
		it := it
		g.Go(func() error {
			info, err := s.meta.ModelInfo(ctx, it.RepoID)
			if err != nil {
				// Best effort; the field simply stays unknown.
				s.log.Debugf("enrich %s: %v", it.RepoID, err)
				return nil
			}
			upd := catalog.Item{RepoID: it.RepoID}
			upd.ParameterCount = info.ParameterCount
			upd.ContextLength = info.ContextLength
			mu.Lock()
			enriched = append(enriched, upd)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	if len(enriched) == 0 || s.stale(tok) {
		return
	}
	cur := s.results.Get()
	cur.Items = catalog.Merge(cur.Items, enriched)
	s.publish(tok, cur)
}

// seedFor returns the static seed list for the trending key, tagged so
// consumers can tell it apart from cached or live data.
func (s *Service) seedFor(key string) []catalog.Item {
	if key != catalog.TrendingKey {
		return nil
	}
	return s.seed
}

// noteFailure arms the cool-down after network-class failures. API failures
// skip it: the service is reachable, just erroring.
func (s *Service) noteFailure(err error) {
	kind := errors.KindOf(err)
	s.log.Warnf("live fetch failed (%s): %v", kind, err)
	if kind != errors.KindNetwork {
		return
	}
	s.mu.Lock()
	s.cooldownUntil = s.now().Add(s.cfg.Cooldown())
	s.mu.Unlock()
}

func (s *Service) cooldownDeadline() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cooldownUntil
}

func (s *Service) clearCooldown() {
	s.mu.Lock()
	s.cooldownUntil = time.Time{}
	s.mu.Unlock()
}

// tagged returns a copy of items with every Origin set to o.
func tagged(items []catalog.Item, o catalog.Origin) []catalog.Item {
	out := make([]catalog.Item, len(items))
	copy(out, items)
	for i := range out {
		out[i].Origin = o
	}
	return out
}
