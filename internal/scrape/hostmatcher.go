package scrape

import (
	"net/url"
	"path"
	"strings"
)

// HostMatcher matches URLs against host patterns such as "app.example.com"
// or "*.webflow.io". A bare domain also matches its subdomains.
type HostMatcher struct {
	patterns []string
}

// NewHostMatcher creates a HostMatcher. Patterns are compared lowercase.
func NewHostMatcher(patterns []string) *HostMatcher {
	m := &HostMatcher{}
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			m.patterns = append(m.patterns, p)
		}
	}
	return m
}

// Patterns returns the configured patterns.
func (m *HostMatcher) Patterns() []string {
	return m.patterns
}

// Matches reports whether the host of rawURL matches any pattern.
func (m *HostMatcher) Matches(rawURL string) bool {
	if m == nil || len(m.patterns) == 0 {
		return false
	}
	u, err := url.Parse(NormalizeURL(rawURL))
	if err != nil {
		return false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	for _, p := range m.patterns {
		if matchHost(p, host) {
			return true
		}
	}
	return false
}

func matchHost(pattern, host string) bool {
	if ok, _ := path.Match(pattern, host); ok {
		return true
	}
	pattern = strings.TrimPrefix(pattern, "www.")
	return host == pattern || strings.HasSuffix(host, "."+pattern)
}
