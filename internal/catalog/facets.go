package catalog

import (
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// FacetCount is one facet value with its occurrence count in the current
// catalog.
type FacetCount struct {
	Value string
	Count int
}

// Facets are derived from the deduplicated catalog, never stored. Recompute
// whenever the catalog changes.
type Facets struct {
	Pipelines []FacetCount
	Licenses  []FacetCount
	Languages []FacetCount
}

// ComputeFacets scans the catalog and counts pipeline tags, licenses and
// languages, each sorted by descending count (ties by value for stable
// output).
func ComputeFacets(items []Item) Facets {
	pipelines := map[string]int{}
	licenses := map[string]int{}
	languages := map[string]int{}
	for _, it := range items {
		if it.PipelineTag != "" {
			pipelines[it.PipelineTag]++
		}
		if it.License != "" {
			licenses[it.License]++
		}
		for _, l := range it.Languages {
			if l != "" {
				languages[l]++
			}
		}
	}
	return Facets{
		Pipelines: sortedCounts(pipelines),
		Licenses:  sortedCounts(licenses),
		Languages: sortedCounts(languages),
	}
}

func sortedCounts(m map[string]int) []FacetCount {
	out := make([]FacetCount, 0, len(m))
	for v, c := range m {
		out = append(out, FacetCount{Value: v, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})
	return out
}

// Top returns the n most common facet values; the rest are reachable via
// FilterFacets.
func (f Facets) Top(counts []FacetCount, n int) []FacetCount {
	if n <= 0 || n >= len(counts) {
		return counts
	}
	return counts[:n]
}

// FilterFacets fuzzy-matches facet values against q, for the
// search-within-facets control. Empty q returns counts unchanged.
func FilterFacets(counts []FacetCount, q string) []FacetCount {
	q = strings.TrimSpace(q)
	if q == "" {
		return counts
	}
	var out []FacetCount
	for _, c := range counts {
		if fuzzy.MatchFold(q, c.Value) {
			out = append(out, c)
		}
	}
	return out
}

// FilterItems narrows items to those whose repo id or tags fuzzy-match q.
// Used for local (offline) narrowing of an already fetched catalog.
func FilterItems(items []Item, q string) []Item {
	q = strings.TrimSpace(q)
	if q == "" {
		return items
	}
	var out []Item
	for _, it := range items {
		if fuzzy.MatchFold(q, it.RepoID) {
			out = append(out, it)
			continue
		}
		for _, t := range it.Tags {
			if fuzzy.MatchFold(q, t) {
				out = append(out, it)
				break
			}
		}
	}
	return out
}
