// Package scrape fetches company websites and parses them into summaries.
// Fetching is a capability (PageFetcher) with a lightweight HTTP variant and
// a rendered variant for pages that only produce content after JavaScript runs.
package scrape

import (
	"context"
	"fmt"
	"strings"
)

// RawPage is the HTML returned by a PageFetcher.
type RawPage struct {
	URL        string
	StatusCode int
	HTML       string
	Source     string
}

// PageFetcher fetches one URL and returns its HTML.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*RawPage, error)
	Name() string
}

// BlockedError is returned when a page was served but is an anti-bot wall or
// an empty JavaScript shell.
type BlockedError struct {
	URL  string
	Type BlockType
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("scrape: %s blocked (%s)", e.URL, e.Type)
}

// NormalizeURL trims the URL and prefixes https:// when it has no scheme.
func NormalizeURL(raw string) string {
	u := strings.TrimSpace(raw)
	if u == "" {
		return ""
	}
	lower := strings.ToLower(u)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return u
	}
	return "https://" + strings.TrimPrefix(u, "//")
}
