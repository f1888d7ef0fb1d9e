package abilities

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// maxScrapeChars caps extracted page content before it is handed back to
// the loop as a dependency output.
const maxScrapeChars = 8000

var (
	urlPattern        = regexp.MustCompile(`https?://[^\s]+`)
	newlineRunPattern = regexp.MustCompile(`\n+`)
	spaceRunPattern   = regexp.MustCompile(`\s+`)
)

// WebScrapeConfig holds the settings for the web-scrape backend.
type WebScrapeConfig struct {
	// Timeout bounds a single page fetch.
	Timeout time.Duration
}

// WebScrape returns an ability that fetches a URL and extracts its readable
// content. The input may be a bare URL or free text containing one.
func WebScrape(cfg WebScrapeConfig) Func {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("stopped after 10 redirects")
			}
			return nil
		},
	}

	return func(ctx context.Context, input string) (string, error) {
		target := strings.TrimSpace(input)
		if !strings.HasPrefix(target, "http") {
			match := urlPattern.FindString(target)
			if match == "" {
				return "", fmt.Errorf("no valid URL found in input")
			}
			target = match
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return "", fmt.Errorf("build scrape request: %w", err)
		}
		req.Header.Set("User-Agent", searchUserAgent)

		start := time.Now()
		resp, err := client.Do(req)
		if err != nil {
			return "", fmt.Errorf("fetch %s: %w", target, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			return "", fmt.Errorf("fetch %s: status %d", target, resp.StatusCode)
		}

		doc, err := goquery.NewDocumentFromReader(resp.Body)
		if err != nil {
			return "", fmt.Errorf("parse %s: %w", target, err)
		}

		content := ExtractContent(doc)
		title := strings.TrimSpace(doc.Find("title").First().Text())
		if title == "" {
			title = "No title found"
		}

		log.Printf("[ability] web-scrape completed in %.2fs", time.Since(start).Seconds())
		return fmt.Sprintf("Title: %s\nURL: %s\n\nContent:\n%s", title, target, content), nil
	}
}

// ExtractContent pulls the readable text out of a parsed HTML document.
// It prefers main-content containers and falls back to the whole body,
// stripping chrome elements first.
func ExtractContent(doc *goquery.Document) string {
	doc.Find("script, style, nav, footer, header").Remove()

	var text string
	main := doc.Find("main, article, .content, #content, .main, #main").First()
	if main.Length() > 0 {
		text = main.Text()
	} else {
		text = doc.Find("body").Text()
	}

	text = newlineRunPattern.ReplaceAllString(text, "\n")
	text = spaceRunPattern.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)

	if len(text) > maxScrapeChars {
		text = text[:maxScrapeChars] + "...\n[Content truncated due to length]"
	}
	return text
}
