package logging

import (
	"net/url"
	"strings"
)

// SanitizeURL strips userinfo, query and fragment so URLs can be logged
// without leaking tokens. Scheme, host and path are preserved.
func SanitizeURL(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return s
	}
	u, err := url.Parse(s)
	if err != nil {
		return s
	}
	u.User = nil
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
