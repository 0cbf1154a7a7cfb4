package catalog

import (
	"net/url"
	"strings"
)

// TrendingKey is the cache key for the default (no query) view. It must be
// distinct from any key a real query can produce, which CacheKey guarantees
// because real keys never start with "@@".
const TrendingKey = "@@trending"

// Normalized is the result of interpreting raw search-box input.
type Normalized struct {
	Query string
	// PendingFilename is set when the input was a pasted URL pointing at a
	// specific file inside a repo.
	PendingFilename string
}

// Normalize turns raw user input into a canonical query. Pasted catalog URLs
// of the forms
//
//	https://huggingface.co/{owner}/{repo}
//	https://huggingface.co/{owner}/{repo}/resolve/{rev}/{file}
//	hf://{owner}/{repo}[/{file}]
//
// are reduced to the repo id (plus the filename when one is embedded); any
// other input is treated as trimmed free text. Runs on every keystroke, so
// it never returns an error.
func Normalize(raw string) Normalized {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Normalized{}
	}
	if strings.HasPrefix(s, "hf://") {
		return normalizeHFScheme(strings.TrimPrefix(s, "hf://"))
	}
	if strings.Contains(s, "huggingface.co/") {
		if n, ok := normalizeWebURL(s); ok {
			return n
		}
	}
	return Normalized{Query: s}
}

func normalizeHFScheme(s string) Normalized {
	if i := strings.IndexByte(s, '?'); i >= 0 {
		s = s[:i]
	}
	parts := strings.Split(strings.Trim(s, "/"), "/")
	switch {
	case len(parts) >= 3:
		return Normalized{
			Query:           parts[0] + "/" + parts[1],
			PendingFilename: strings.Join(parts[2:], "/"),
		}
	case len(parts) == 2:
		return Normalized{Query: parts[0] + "/" + parts[1]}
	default:
		return Normalized{Query: s}
	}
}

func normalizeWebURL(s string) (Normalized, bool) {
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil || !strings.HasSuffix(u.Host, "huggingface.co") {
		return Normalized{}, false
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return Normalized{}, false
	}
	repoID := parts[0] + "/" + parts[1]
	// .../resolve/{rev}/{file} and .../blob/{rev}/{file} embed a filename.
	if len(parts) >= 5 && (parts[2] == "resolve" || parts[2] == "blob") {
		return Normalized{Query: repoID, PendingFilename: strings.Join(parts[4:], "/")}, true
	}
	return Normalized{Query: repoID}, true
}

// CacheKey maps a query to its deterministic cache key: lower-cased and
// trimmed, with the empty query mapped to TrendingKey.
func CacheKey(query string) string {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return TrendingKey
	}
	return q
}
