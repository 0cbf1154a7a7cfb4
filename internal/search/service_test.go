package search

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"modelcat/internal/cache"
	"modelcat/internal/catalog"
	"modelcat/internal/config"
	"modelcat/internal/errors"
	"modelcat/internal/hub"
	"modelcat/internal/logging"
)

// fakeHub is a scriptable transport. Each call is recorded; the respond
// function decides the reply. An optional gate blocks matching queries
// until released, for ordering races.
type fakeHub struct {
	mu      sync.Mutex
	calls   []hub.SearchOptions
	queries []string
	respond func(query string, opts hub.SearchOptions) (hub.Page, error)

	gateQuery string
	gate      chan struct{}
}

func (f *fakeHub) Search(ctx context.Context, query string, opts hub.SearchOptions) (hub.Page, error) {
	f.mu.Lock()
	f.calls = append(f.calls, opts)
	f.queries = append(f.queries, query)
	gate := f.gate
	gated := f.gateQuery != "" && query == f.gateQuery
	f.mu.Unlock()
	if gated {
		<-gate
	}
	return f.respond(query, opts)
}

func (f *fakeHub) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeHub) lastQuery() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queries) == 0 {
		return ""
	}
	return f.queries[len(f.queries)-1]
}

func pageOf(cursorOut string, ids ...string) (hub.Page, error) {
	p := hub.Page{NextCursor: cursorOut}
	for _, id := range ids {
		p.Items = append(p.Items, catalog.Item{RepoID: id, Origin: catalog.OriginLive})
	}
	return p, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	c := &config.Config{Version: 1}
	c.Search.DebounceMS = 20
	c.Search.CooldownSecs = 30
	c.Search.PageSize = 10
	c.Cache.MaxQueries = 5
	c.Cache.MaxPagesPerQuery = 5
	c.Cache.MaxItemsPerPage = 20
	if err := c.Validate(); err != nil {
		t.Fatal(err)
	}
	return c
}

func newTestService(t *testing.T, cfg *config.Config, f *fakeHub, seed []catalog.Item) (*Service, *cache.Store) {
	t.Helper()
	log := logging.NewWriter("error", false, io.Discard)
	store := cache.NewStore(nil, cache.Limits{
		MaxQueries:       cfg.Cache.MaxQueries,
		MaxPagesPerQuery: cfg.Cache.MaxPagesPerQuery,
		MaxItemsPerPage:  cfg.Cache.MaxItemsPerPage,
	}, log)
	svc := New(context.Background(), cfg, f, nil, store, nil, seed, log)
	t.Cleanup(svc.Close)
	return svc, store
}

// waitFor polls the published snapshot until cond holds. Polling (rather
// than consuming the subscription channel) is immune to coalescing.
func waitFor(t *testing.T, svc *Service, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		s := svc.Results().Get()
		if cond(s) {
			return s
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition never held; last snapshot: %+v", svc.Results().Get())
	return Snapshot{}
}

func settled(s Snapshot) bool { return s.Phase == PhaseSettled }

func TestSearchNowPublishesLiveResults(t *testing.T) {
	f := &fakeHub{respond: func(q string, _ hub.SearchOptions) (hub.Page, error) {
		return pageOf("", "org/alpha", "org/beta")
	}}
	svc, store := newTestService(t, testConfig(t), f, nil)

	svc.SearchNow("alpha")
	s := waitFor(t, svc, settled)
	if s.Query != "alpha" || s.Origin != catalog.OriginLive || len(s.Items) != 2 {
		t.Errorf("snapshot = %+v", s)
	}
	if store.PagesFor("alpha") != 1 {
		t.Error("live page was not written through to the cache")
	}
}

func TestDebounceCoalescesKeystrokes(t *testing.T) {
	f := &fakeHub{respond: func(q string, _ hub.SearchOptions) (hub.Page, error) {
		return pageOf("", "org/llama")
	}}
	svc, _ := newTestService(t, testConfig(t), f, nil)

	svc.SetQuery("l")
	time.Sleep(5 * time.Millisecond)
	svc.SetQuery("ll")
	time.Sleep(5 * time.Millisecond)
	svc.SetQuery("llama")

	waitFor(t, svc, settled)
	// Give any spurious extra fetch time to land.
	time.Sleep(50 * time.Millisecond)
	if n := f.callCount(); n != 1 {
		t.Errorf("debounced typing issued %d fetches, want 1", n)
	}
	if f.lastQuery() != "llama" {
		t.Errorf("fetched query = %q, want %q", f.lastQuery(), "llama")
	}
}

func TestStaleReplyNeverOverridesNewerRequest(t *testing.T) {
	gate := make(chan struct{})
	f := &fakeHub{
		gateQuery: "old",
		gate:      gate,
		respond: func(q string, _ hub.SearchOptions) (hub.Page, error) {
			return pageOf("", "org/"+q)
		},
	}
	svc, store := newTestService(t, testConfig(t), f, nil)

	svc.SearchNow("old")
	waitFor(t, svc, func(s Snapshot) bool { return s.Query == "old" })
	svc.SearchNow("new")
	s := waitFor(t, svc, func(s Snapshot) bool { return s.Query == "new" && s.Phase == PhaseSettled })
	if len(s.Items) != 1 || s.Items[0].RepoID != "org/new" {
		t.Fatalf("newer request produced %+v", s.Items)
	}

	// Let the superseded request finish out of order.
	close(gate)
	time.Sleep(50 * time.Millisecond)

	final := svc.Results().Get()
	if final.Query != "new" {
		t.Errorf("stale reply overrode the display: query = %q", final.Query)
	}
	if len(final.Items) != 1 || final.Items[0].RepoID != "org/new" {
		t.Errorf("stale reply overrode the items: %+v", final.Items)
	}
	// The stale request's cache write still lands.
	waitFor(t, svc, func(Snapshot) bool { return store.PagesFor("old") == 1 })
}

func TestNetworkFailureFallsBackToCache(t *testing.T) {
	f := &fakeHub{respond: func(q string, _ hub.SearchOptions) (hub.Page, error) {
		return hub.Page{}, errors.Network(fmt.Errorf("connection refused"))
	}}
	svc, store := newTestService(t, testConfig(t), f, nil)
	store.Put("llama", 1, []catalog.Item{{RepoID: "org/cached"}})

	svc.SearchNow("llama")
	s := waitFor(t, svc, settled)
	if s.Origin != catalog.OriginCache {
		t.Errorf("Origin = %q, want cache", s.Origin)
	}
	if len(s.Items) != 1 || s.Items[0].RepoID != "org/cached" {
		t.Errorf("Items = %+v", s.Items)
	}
	if s.Items[0].Origin != catalog.OriginCache {
		t.Error("fallback items not tagged as cached")
	}
	if s.Notice == "" {
		t.Error("fallback published without a notice")
	}
	if s.Unavailable {
		t.Error("Unavailable set despite cached data")
	}
}

func TestCooldownSuppressesLiveFetches(t *testing.T) {
	f := &fakeHub{respond: func(q string, _ hub.SearchOptions) (hub.Page, error) {
		return hub.Page{}, errors.Network(fmt.Errorf("timeout"))
	}}
	svc, store := newTestService(t, testConfig(t), f, nil)
	store.Put("llama", 1, []catalog.Item{{RepoID: "org/cached"}})

	svc.SearchNow("llama")
	waitFor(t, svc, settled)
	before := f.callCount()
	if before != 1 {
		t.Fatalf("first search issued %d fetches, want 1", before)
	}

	// Within the cool-down window the service must not go live again.
	svc.SearchNow("llama")
	s := waitFor(t, svc, settled)
	if f.callCount() != before {
		t.Errorf("live fetch issued during cool-down: %d calls", f.callCount())
	}
	if s.Origin != catalog.OriginCache {
		t.Errorf("cool-down search Origin = %q, want cache", s.Origin)
	}
}

func TestCooldownSuppressesPagingFetches(t *testing.T) {
	f := &fakeHub{respond: func(q string, _ hub.SearchOptions) (hub.Page, error) {
		return hub.Page{}, errors.Network(fmt.Errorf("timeout"))
	}}
	svc, store := newTestService(t, testConfig(t), f, nil)
	store.Put("llama", 1, []catalog.Item{{RepoID: "org/cached"}})

	svc.SearchNow("llama")
	waitFor(t, svc, settled)
	before := f.callCount()
	if before != 1 {
		t.Fatalf("first search issued %d fetches, want 1", before)
	}

	// Paging to a cold page would normally walk the cursor chain live.
	// During the cool-down it must not; the resolver is gated too.
	svc.LoadPage(2)
	s := waitFor(t, svc, func(s Snapshot) bool { return settled(s) && s.Page == 2 })
	if f.callCount() != before {
		t.Errorf("live fetch issued during cool-down: %d calls, want %d", f.callCount(), before)
	}
	if s.Origin != catalog.OriginCache {
		t.Errorf("cool-down paging Origin = %q, want cache", s.Origin)
	}
	if s.NoMorePages {
		t.Error("cool-down paging claimed the results were exhausted")
	}
}

func TestAPIFailureDoesNotArmCooldown(t *testing.T) {
	f := &fakeHub{respond: func(q string, _ hub.SearchOptions) (hub.Page, error) {
		return hub.Page{}, errors.API(500, nil)
	}}
	svc, store := newTestService(t, testConfig(t), f, nil)
	store.Put("llama", 1, []catalog.Item{{RepoID: "org/cached"}})

	svc.SearchNow("llama")
	waitFor(t, svc, settled)
	svc.SearchNow("llama")
	waitFor(t, svc, settled)
	if n := f.callCount(); n != 2 {
		t.Errorf("API failures should not pause live fetching: %d calls, want 2", n)
	}
}

func TestSuccessClearsCooldown(t *testing.T) {
	var fail bool
	var mu sync.Mutex
	f := &fakeHub{respond: func(q string, _ hub.SearchOptions) (hub.Page, error) {
		mu.Lock()
		defer mu.Unlock()
		if fail {
			return hub.Page{}, errors.Network(fmt.Errorf("timeout"))
		}
		return pageOf("", "org/live")
	}}
	cfg := testConfig(t)
	svc, _ := newTestService(t, cfg, f, nil)

	mu.Lock()
	fail = true
	mu.Unlock()
	svc.SearchNow("q")
	waitFor(t, svc, settled)

	// Expire the cool-down manually, then succeed once.
	svc.mu.Lock()
	svc.cooldownUntil = time.Time{}
	svc.mu.Unlock()
	mu.Lock()
	fail = false
	mu.Unlock()

	svc.SearchNow("q")
	waitFor(t, svc, func(s Snapshot) bool { return settled(s) && s.Origin == catalog.OriginLive })
	svc.SearchNow("q")
	s := waitFor(t, svc, func(s Snapshot) bool { return settled(s) && s.Origin == catalog.OriginLive })
	if s.Origin != catalog.OriginLive {
		t.Errorf("cool-down not cleared after success; Origin = %q", s.Origin)
	}
}

func TestUnavailableWhenNothingToShow(t *testing.T) {
	f := &fakeHub{respond: func(q string, _ hub.SearchOptions) (hub.Page, error) {
		return hub.Page{}, errors.Network(fmt.Errorf("no such host"))
	}}
	svc, _ := newTestService(t, testConfig(t), f, nil)

	svc.SearchNow("nothing cached")
	s := waitFor(t, svc, settled)
	if !s.Unavailable {
		t.Error("Unavailable not set with no live, cached, or seed data")
	}
	if s.Notice == "" {
		t.Error("unavailable state published without a message")
	}
}

func TestSeedServesTrendingOffline(t *testing.T) {
	f := &fakeHub{respond: func(q string, _ hub.SearchOptions) (hub.Page, error) {
		return hub.Page{}, errors.Network(fmt.Errorf("no such host"))
	}}
	cfg := testConfig(t)
	cfg.Search.UseSeed = true
	seed := []catalog.Item{{RepoID: "seed/one", Origin: catalog.OriginStatic}}
	svc, _ := newTestService(t, cfg, f, seed)

	svc.SearchNow("")
	s := waitFor(t, svc, settled)
	if s.Origin != catalog.OriginStatic || len(s.Items) != 1 {
		t.Errorf("trending fallback = %+v", s)
	}
	if s.Unavailable {
		t.Error("Unavailable set despite seed data")
	}
}

func TestSeedNotUsedForRealQueries(t *testing.T) {
	f := &fakeHub{respond: func(q string, _ hub.SearchOptions) (hub.Page, error) {
		return pageOf("", "org/result")
	}}
	cfg := testConfig(t)
	cfg.Search.UseSeed = true
	seed := []catalog.Item{{RepoID: "seed/one", Origin: catalog.OriginStatic}}
	svc, _ := newTestService(t, cfg, f, seed)

	svc.SearchNow("llama")
	s := waitFor(t, svc, settled)
	for _, it := range s.Items {
		if it.RepoID == "seed/one" {
			t.Error("seed item leaked into a non-trending query")
		}
	}
}

func TestColdDeepPageResolvesCursorChain(t *testing.T) {
	pages := map[string]hub.Page{}
	for i := 1; i <= 5; i++ {
		in := ""
		if i > 1 {
			in = fmt.Sprintf("c%d", i)
		}
		out := fmt.Sprintf("c%d", i+1)
		if i == 5 {
			out = ""
		}
		p, _ := pageOf(out, fmt.Sprintf("org/p%d", i))
		pages[in] = p
	}
	f := &fakeHub{respond: func(q string, opts hub.SearchOptions) (hub.Page, error) {
		p, ok := pages[opts.Cursor]
		if !ok {
			return hub.Page{}, errors.API(404, nil)
		}
		return p, nil
	}}
	svc, store := newTestService(t, testConfig(t), f, nil)

	svc.SearchNow("q")
	waitFor(t, svc, settled)
	if f.callCount() != 1 {
		t.Fatalf("initial search issued %d fetches", f.callCount())
	}

	// Page 5 is cold: pages 2..4 must be fetched first to learn the chain.
	svc.LoadPage(5)
	s := waitFor(t, svc, func(s Snapshot) bool { return settled(s) && s.Page == 5 })
	if len(s.Items) == 0 || s.Items[len(s.Items)-1].RepoID != "org/p5" {
		t.Errorf("page 5 items = %+v", s.Items)
	}
	if n := f.callCount(); n != 5 {
		t.Errorf("cold page 5 took %d fetches, want 5 (pages 2..4 plus 5)", n)
	}
	// Intermediate pages were cached along the way.
	for p := 1; p <= 5; p++ {
		if _, ok := store.Get("q", p); !ok {
			t.Errorf("page %d missing from cache after chain walk", p)
		}
	}

	// Revisiting an already-resolved page costs exactly one fetch.
	before := f.callCount()
	svc.LoadPage(3)
	waitFor(t, svc, func(s Snapshot) bool { return settled(s) && s.Page == 3 })
	if n := f.callCount() - before; n != 1 {
		t.Errorf("warm page 3 took %d fetches, want 1", n)
	}
}

func TestPagingFetchFailureFallsBackWithoutClaimingExhaustion(t *testing.T) {
	var fail bool
	var mu sync.Mutex
	f := &fakeHub{respond: func(q string, opts hub.SearchOptions) (hub.Page, error) {
		mu.Lock()
		defer mu.Unlock()
		if fail {
			return hub.Page{}, errors.Network(fmt.Errorf("timeout"))
		}
		return pageOf("c2", "org/p1")
	}}
	svc, _ := newTestService(t, testConfig(t), f, nil)

	svc.SearchNow("q")
	waitFor(t, svc, settled)

	// The chain continues ("c2" is known) but fetching the next page dies
	// on the network. That is a fallback, not the end of the results.
	mu.Lock()
	fail = true
	mu.Unlock()
	svc.LoadPage(3)
	s := waitFor(t, svc, func(s Snapshot) bool { return settled(s) && s.Page == 3 })
	if s.NoMorePages {
		t.Error("transient fetch failure reported as exhausted results")
	}
	if s.Origin != catalog.OriginCache || s.Notice == "" {
		t.Errorf("expected cached fallback with a notice, got %+v", s)
	}
}

func TestExhaustedResultsSetNoMorePages(t *testing.T) {
	f := &fakeHub{respond: func(q string, opts hub.SearchOptions) (hub.Page, error) {
		return pageOf("", "org/only") // no continuation
	}}
	svc, _ := newTestService(t, testConfig(t), f, nil)

	svc.SearchNow("q")
	waitFor(t, svc, settled)
	svc.LoadPage(2)
	s := waitFor(t, svc, func(s Snapshot) bool { return settled(s) && s.Page == 2 })
	if !s.NoMorePages {
		t.Error("NoMorePages not set after the chain ended")
	}
}

type fakeMeta struct{}

func (fakeMeta) ModelInfo(ctx context.Context, repoID string) (hub.Info, error) {
	n := int64(7_000_000_000)
	c := int64(4096)
	return hub.Info{ParameterCount: &n, ContextLength: &c}, nil
}

func TestEnrichmentFillsOptionalFields(t *testing.T) {
	f := &fakeHub{respond: func(q string, _ hub.SearchOptions) (hub.Page, error) {
		return pageOf("", "org/alpha")
	}}
	cfg := testConfig(t)
	log := logging.NewWriter("error", false, io.Discard)
	store := cache.NewStore(nil, cache.Limits{}, log)
	svc := New(context.Background(), cfg, f, fakeMeta{}, store, nil, nil, log)
	t.Cleanup(svc.Close)

	svc.SearchNow("alpha")
	s := waitFor(t, svc, func(s Snapshot) bool {
		return settled(s) && len(s.Items) == 1 && s.Items[0].ParameterCount != nil
	})
	if *s.Items[0].ParameterCount != 7_000_000_000 || *s.Items[0].ContextLength != 4096 {
		t.Errorf("enriched item = %+v", s.Items[0])
	}
}
