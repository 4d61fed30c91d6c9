package news

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"crypto-predictor/internal/logger"
	"crypto-predictor/internal/types"
)

// Source is one configured RSS feed.
type Source struct {
	Name string
	URL  string
}

// Fetcher pulls headlines from RSS feeds.
type Fetcher struct {
	sources  []Source
	timeout  time.Duration
	maxItems int
}

// NewFetcher creates a fetcher over the configured sources.
func NewFetcher(sources []Source, timeout time.Duration, maxItems int) *Fetcher {
	if maxItems <= 0 {
		maxItems = 50
	}
	return &Fetcher{sources: sources, timeout: timeout, maxItems: maxItems}
}

// FetchAll fetches every source, skipping any that fails: one bad feed must
// never abort the whole refresh. Returns an error only when every source
// failed.
func (f *Fetcher) FetchAll(ctx context.Context) ([]types.NewsItem, error) {
	all := []types.NewsItem{}
	failed := 0
	for _, src := range f.sources {
		items, err := f.fetchSource(ctx, src)
		if err != nil {
			logger.Warn(ctx, "News source failed, skipping", "source", src.Name, "error", err)
			failed++
			continue
		}
		all = append(all, items...)
	}
	if len(f.sources) > 0 && failed == len(f.sources) {
		return nil, fmt.Errorf("all %d news sources failed", failed)
	}
	return all, nil
}

func (f *Fetcher) fetchSource(ctx context.Context, src Source) ([]types.NewsItem, error) {
	u, err := url.Parse(src.URL)
	if err != nil {
		return nil, fmt.Errorf("parse feed url: %w", err)
	}

	c := colly.NewCollector(
		colly.AllowedDomains(u.Hostname()),
		colly.MaxDepth(1),
	)
	c.SetRequestTimeout(f.timeout)
	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	})

	items := []types.NewsItem{}
	c.OnXML("//item", func(e *colly.XMLElement) {
		if len(items) >= f.maxItems {
			return
		}
		title := cleanText(e.ChildText("title"))
		link := strings.TrimSpace(e.ChildText("link"))
		if title == "" || link == "" {
			return
		}
		items = append(items, types.NewsItem{
			Title:       title,
			Source:      src.Name,
			URL:         link,
			PublishedAt: parsePubDate(e.ChildText("pubDate")),
		})
	})

	var fetchErr error
	c.OnError(func(r *colly.Response, err error) {
		fetchErr = err
	})

	if err := c.Visit(src.URL); err != nil {
		return nil, fmt.Errorf("visit %s: %w", src.URL, err)
	}
	c.Wait()
	if fetchErr != nil {
		return nil, fetchErr
	}
	return items, nil
}

// cleanText strips any embedded HTML markup from a feed field.
func cleanText(s string) string {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, "<") {
		return s
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	return strings.TrimSpace(doc.Text())
}

// pubDateLayouts covers the date spellings seen across the configured feeds.
var pubDateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	time.RFC3339,
}

func parsePubDate(s string) int64 {
	s = strings.TrimSpace(s)
	for _, layout := range pubDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UnixMilli()
		}
	}
	return time.Now().UnixMilli()
}
