package abilities

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const searchUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

// WebSearchConfig holds the settings for the web-search backend.
type WebSearchConfig struct {
	// Enabled toggles the ability; when false it returns a notice instead
	// of failing, so plans that include a search step still proceed.
	Enabled bool
	// ResultCount caps the number of results returned.
	ResultCount int
	// Timeout bounds a single search request.
	Timeout time.Duration
}

// WebSearch returns an ability that queries the DuckDuckGo HTML endpoint
// and formats the top results as numbered text.
func WebSearch(cfg WebSearchConfig) Func {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client := &http.Client{Timeout: timeout}

	return func(ctx context.Context, query string) (string, error) {
		if !cfg.Enabled {
			return "Web search is disabled in configuration.", nil
		}

		searchURL := "https://duckduckgo.com/html/?q=" + url.QueryEscape(query)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
		if err != nil {
			return "", fmt.Errorf("build search request: %w", err)
		}
		req.Header.Set("User-Agent", searchUserAgent)

		start := time.Now()
		resp, err := client.Do(req)
		if err != nil {
			return "", fmt.Errorf("search request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("search returned status %d", resp.StatusCode)
		}

		doc, err := goquery.NewDocumentFromReader(resp.Body)
		if err != nil {
			return "", fmt.Errorf("parse search results: %w", err)
		}

		formatted := FormatSearchResults(doc, cfg.ResultCount)
		if formatted == "" {
			return "No search results found.", nil
		}

		log.Printf("[ability] web-search completed in %.2fs", time.Since(start).Seconds())
		return formatted, nil
	}
}

// FormatSearchResults extracts up to max results from a DuckDuckGo HTML
// document and renders them as numbered entries.
func FormatSearchResults(doc *goquery.Document, max int) string {
	var b strings.Builder
	count := 0

	doc.Find(".result").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		title := strings.TrimSpace(sel.Find(".result__title").Text())
		link := strings.TrimSpace(sel.Find(".result__url").Text())
		snippet := strings.TrimSpace(sel.Find(".result__snippet").Text())

		if title == "" || link == "" {
			return true
		}

		count++
		fmt.Fprintf(&b, "%d. %s\n   URL: %s\n   %s\n\n", count, title, link, snippet)
		return count < max
	})

	return b.String()
}
