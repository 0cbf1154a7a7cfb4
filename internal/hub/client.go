// Package hub implements the remote model catalog transport: cursor-based
// search plus best-effort per-repo metadata lookups.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"modelcat/internal/catalog"
	"modelcat/internal/config"
	"modelcat/internal/errors"
	"modelcat/internal/logging"
)

// SearchOptions parameterize one search call. Cursor is the opaque
// continuation token from the previous page; empty means "start".
type SearchOptions struct {
	Limit  int
	Cursor string
	Offset int
}

// Page is one page of search results plus the cursor for the page after it.
// An empty NextCursor means the result set is exhausted.
type Page struct {
	Items      []catalog.Item
	NextCursor string
}

// Info is the lazily resolved per-repo metadata.
type Info struct {
	ParameterCount *int64
	ContextLength  *int64
}

// Searcher is what the search orchestrator requires from a transport.
// Assumed idempotent and side-effect-free.
type Searcher interface {
	Search(ctx context.Context, query string, opts SearchOptions) (Page, error)
}

// MetadataFetcher resolves optional per-repo fields; failures are non-fatal.
type MetadataFetcher interface {
	ModelInfo(ctx context.Context, repoID string) (Info, error)
}

// Client talks to a HuggingFace-style model hub API. Requests are paced by
// a client-side rate limiter so bursty UI-driven searching cannot trip
// server-side limits.
type Client struct {
	base    string
	ua      string
	token   string
	http    *http.Client
	limiter *rate.Limiter
	log     *logging.Logger
}

func NewClient(cfg *config.Config, log *logging.Logger) *Client {
	token := ""
	if env := strings.TrimSpace(cfg.Hub.TokenEnv); env != "" {
		token = strings.TrimSpace(os.Getenv(env))
	}
	return &Client{
		base:  strings.TrimRight(cfg.Hub.BaseURL, "/"),
		ua:    cfg.Network.UserAgent,
		token: token,
		http: &http.Client{
			Timeout: time.Duration(cfg.Network.TimeoutSeconds) * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.Hub.RateRPS), cfg.Hub.RateBurst),
		log:     log.With("hub"),
	}
}

// modelRecord is the hub's JSON shape for one model.
type modelRecord struct {
	ID           string   `json:"id"`
	Author       string   `json:"author"`
	Tags         []string `json:"tags"`
	PipelineTag  string   `json:"pipeline_tag"`
	Downloads    int64    `json:"downloads"`
	Likes        int64    `json:"likes"`
	LastModified string   `json:"lastModified"`
	Siblings     []struct {
		Filename string `json:"rfilename"`
		Size     int64  `json:"size"`
	} `json:"siblings"`
}

type searchResponse struct {
	Models     []modelRecord `json:"models"`
	NextCursor string        `json:"nextCursor"`
}

// Search issues one catalog search. Pagination is cursor-in/cursor-out; the
// returned NextCursor is opaque and only meaningful for the same query.
func (c *Client) Search(ctx context.Context, query string, opts SearchOptions) (Page, error) {
	q := url.Values{}
	if query != "" {
		q.Set("search", query)
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Cursor != "" {
		q.Set("cursor", opts.Cursor)
	}
	if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}
	u := c.base + "/api/models?" + q.Encode()
	c.log.Debugf("search %s", logging.SanitizeURL(u))

	body, err := c.get(ctx, u)
	if err != nil {
		return Page{}, err
	}
	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Page{}, errors.API(0, fmt.Errorf("decode search response: %w", err))
	}
	page := Page{NextCursor: resp.NextCursor}
	for _, m := range resp.Models {
		page.Items = append(page.Items, recordToItem(m))
	}
	return page, nil
}

type infoResponse struct {
	Safetensors *struct {
		Total int64 `json:"total"`
	} `json:"safetensors"`
	Config *struct {
		MaxPositionEmbeddings int64 `json:"max_position_embeddings"`
	} `json:"config"`
}

// ModelInfo fetches the optional per-repo fields. Best effort: callers
// treat any error as "still unknown".
func (c *Client) ModelInfo(ctx context.Context, repoID string) (Info, error) {
	u := c.base + "/api/models/" + repoID
	body, err := c.get(ctx, u)
	if err != nil {
		return Info{}, err
	}
	var resp infoResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Info{}, errors.API(0, fmt.Errorf("decode model info: %w", err))
	}
	var info Info
	if resp.Safetensors != nil && resp.Safetensors.Total > 0 {
		n := resp.Safetensors.Total
		info.ParameterCount = &n
	}
	if resp.Config != nil && resp.Config.MaxPositionEmbeddings > 0 {
		n := resp.Config.MaxPositionEmbeddings
		info.ContextLength = &n
	}
	return info, nil
}

func (c *Client) get(ctx context.Context, u string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.Network(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.API(0, err)
	}
	req.Header.Set("User-Agent", c.ua)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Network(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, errors.API(resp.StatusCode, fmt.Errorf("GET %s: status %d", logging.SanitizeURL(u), resp.StatusCode))
	}
	return io.ReadAll(resp.Body)
}

// recordToItem maps the wire shape onto a catalog item. License and
// languages ride in the tag list with "license:" and "language:" prefixes.
func recordToItem(m modelRecord) catalog.Item {
	it := catalog.Item{
		RepoID:      m.ID,
		Author:      m.Author,
		PipelineTag: m.PipelineTag,
		Downloads:   m.Downloads,
		Likes:       m.Likes,
		Origin:      catalog.OriginLive,
	}
	if it.Author == "" {
		if i := strings.IndexByte(m.ID, '/'); i > 0 {
			it.Author = m.ID[:i]
		}
	}
	for _, t := range m.Tags {
		switch {
		case strings.HasPrefix(t, "license:"):
			it.License = strings.TrimPrefix(t, "license:")
		case strings.HasPrefix(t, "language:"):
			it.Languages = append(it.Languages, strings.TrimPrefix(t, "language:"))
		default:
			it.Tags = append(it.Tags, t)
		}
	}
	if ts, err := time.Parse(time.RFC3339, m.LastModified); err == nil {
		it.LastModified = ts
	}
	for _, s := range m.Siblings {
		it.Files = append(it.Files, catalog.FileVariant{
			Filename: s.Filename,
			Size:     s.Size,
			Quant:    extractQuant(s.Filename),
		})
	}
	if n, ok := inferParams(m.ID); ok {
		it.ParameterCount = &n
	}
	return it
}

// inferParams guesses the parameter count from a size marker in the repo
// name, e.g. "Mistral-7B-v0.1" or "SmolLM2-360M". The metadata endpoint
// overrides this when it answers; merges keep whichever resolved first.
func inferParams(repoID string) (int64, bool) {
	name := strings.ToUpper(repoID)
	for i := 0; i < len(name); i++ {
		if name[i] != 'B' && name[i] != 'M' {
			continue
		}
		// Walk back over the number preceding the unit.
		j := i
		for j > 0 && (isDigit(name[j-1]) || name[j-1] == '.') {
			j--
		}
		if j == i {
			continue
		}
		// The marker must stand alone: "-7B" or "7B-", not "F16" or "V2B3".
		if j > 0 && isAlnum(name[j-1]) {
			continue
		}
		if i+1 < len(name) && isAlnum(name[i+1]) {
			continue
		}
		v, err := strconv.ParseFloat(name[j:i], 64)
		if err != nil || v <= 0 {
			continue
		}
		mult := float64(1_000_000)
		if name[i] == 'B' {
			mult = 1_000_000_000
		}
		return int64(v * mult), true
	}
	return 0, false
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isAlnum(c byte) bool {
	return isDigit(c) || (c >= 'A' && c <= 'Z')
}

var quantMarkers = []string{
	"Q2_K", "Q3_K_S", "Q3_K_M", "Q3_K_L", "Q4_0", "Q4_1",
	"Q4_K_S", "Q4_K_M", "Q5_0", "Q5_1", "Q5_K_S", "Q5_K_M",
	"Q6_K", "Q8_0", "F16", "F32", "FP16", "FP32",
}

func extractQuant(filename string) string {
	upper := strings.ToUpper(filename)
	for _, m := range quantMarkers {
		if strings.Contains(upper, m) {
			return m
		}
	}
	return ""
}
