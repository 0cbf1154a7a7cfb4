// Package testutil provides shared test fixtures: a scriptable hub server,
// an in-memory state database, and a quiet logger.
package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"modelcat/internal/config"
	"modelcat/internal/logging"
	"modelcat/internal/state"
)

// MockResponse is one canned HTTP response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
}

// MockHubServer serves canned hub API responses keyed by path (optionally
// path?query) and records every request it sees.
type MockHubServer struct {
	*httptest.Server

	mu        sync.Mutex
	responses map[string]MockResponse
	requests  []string
}

func NewMockHubServer() *MockHubServer {
	ms := &MockHubServer{responses: map[string]MockResponse{}}
	ms.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path
		if r.URL.RawQuery != "" {
			key += "?" + r.URL.RawQuery
		}
		ms.mu.Lock()
		ms.requests = append(ms.requests, key)
		resp, ok := ms.responses[key]
		if !ok {
			resp, ok = ms.responses[r.URL.Path]
		}
		ms.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = fmt.Fprintf(w, "no mock response for %s", key)
			return
		}
		for k, v := range resp.Headers {
			w.Header().Set(k, v)
		}
		w.WriteHeader(resp.StatusCode)
		_, _ = io.WriteString(w, resp.Body)
	}))
	return ms
}

// AddResponse registers a canned response for a path (or path?query).
func (ms *MockHubServer) AddResponse(path string, resp MockResponse) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.responses[path] = resp
}

// AddJSON registers a JSON response.
func (ms *MockHubServer) AddJSON(path string, status int, body string) {
	ms.AddResponse(path, MockResponse{
		StatusCode: status,
		Body:       body,
		Headers:    map[string]string{"Content-Type": "application/json"},
	})
}

// AddSearchPage registers a search page at path with the given model ids
// and continuation cursor.
func (ms *MockHubServer) AddSearchPage(path string, ids []string, nextCursor string) {
	type model struct {
		ID string `json:"id"`
	}
	payload := struct {
		Models     []model `json:"models"`
		NextCursor string  `json:"nextCursor"`
	}{NextCursor: nextCursor}
	for _, id := range ids {
		payload.Models = append(payload.Models, model{ID: id})
	}
	b, _ := json.Marshal(payload)
	ms.AddJSON(path, http.StatusOK, string(b))
}

// Requests returns the request keys seen so far.
func (ms *MockHubServer) Requests() []string {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	out := make([]string, len(ms.requests))
	copy(out, ms.requests)
	return out
}

// RequestCount counts requests whose key contains substr.
func (ms *MockHubServer) RequestCount(substr string) int {
	n := 0
	for _, r := range ms.Requests() {
		if strings.Contains(r, substr) {
			n++
		}
	}
	return n
}

// TestDB opens an in-memory state database, closed with the test.
func TestDB(t *testing.T) *state.DB {
	t.Helper()
	db, err := state.OpenMemory()
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("close test db: %v", err)
		}
	})
	return db
}

// TestConfig returns a validated config pointed at the mock hub, with fast
// debounce and small cache limits suitable for tests.
func TestConfig(t *testing.T, hubURL string) *config.Config {
	t.Helper()
	c := &config.Config{Version: 1}
	c.Hub.BaseURL = hubURL
	c.Hub.RateRPS = 1000
	c.Hub.RateBurst = 1000
	c.Search.DebounceMS = 20
	c.Search.CooldownSecs = 30
	c.Search.PageSize = 10
	c.Cache.MaxQueries = 3
	c.Cache.MaxPagesPerQuery = 3
	c.Cache.MaxItemsPerPage = 10
	if err := c.Validate(); err != nil {
		t.Fatalf("test config: %v", err)
	}
	return c
}

// QuietLogger discards all output below error.
func QuietLogger() *logging.Logger {
	return logging.NewWriter("error", false, io.Discard)
}
