package news

import (
	"context"
	"encoding/json"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"crypto-predictor/internal/logger"
	"crypto-predictor/internal/store"
	"crypto-predictor/internal/types"
)

// Freshness is the cache validity window.
const Freshness = 24 * time.Hour

// headlineFetcher lets tests substitute the RSS fetcher.
type headlineFetcher interface {
	FetchAll(ctx context.Context) ([]types.NewsItem, error)
}

// Service aggregates news sentiment: fetch, score, deduplicate, cache.
type Service struct {
	fetcher   headlineFetcher
	analyzer  *SentimentAnalyzer
	cachePath string
	maxItems  int

	mu        sync.Mutex
	items     []types.NewsItem
	updatedAt time.Time
}

// NewService creates the aggregator. cachePath may be empty to disable the
// cache file.
func NewService(fetcher *Fetcher, cachePath string, maxItems int) *Service {
	s := &Service{
		fetcher:   fetcher,
		analyzer:  NewSentimentAnalyzer(),
		cachePath: cachePath,
		maxItems:  maxItems,
	}
	s.loadCache()
	return s
}

type cacheDoc struct {
	UpdatedAt int64            `json:"updatedAt"`
	Items     []types.NewsItem `json:"items"`
}

func (s *Service) loadCache() {
	if s.cachePath == "" {
		return
	}
	b, err := os.ReadFile(s.cachePath)
	if err != nil {
		return
	}
	var doc cacheDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		logger.Warn(context.Background(), "News cache corrupt, ignoring", "path", s.cachePath, "error", err)
		return
	}
	s.items = doc.Items
	s.updatedAt = time.UnixMilli(doc.UpdatedAt)
}

func (s *Service) writeCache(items []types.NewsItem, at time.Time) {
	if s.cachePath == "" {
		return
	}
	data, err := json.MarshalIndent(cacheDoc{UpdatedAt: at.UnixMilli(), Items: items}, "", "  ")
	if err != nil {
		return
	}
	if err := store.AtomicWrite(s.cachePath, data); err != nil {
		logger.Warn(context.Background(), "News cache write failed", "error", err)
	}
}

// Cached returns the current items and their age without fetching.
func (s *Service) Cached() ([]types.NewsItem, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.NewsItem, len(s.items))
	copy(out, s.items)
	return out, s.updatedAt
}

// Fresh reports whether the cache is still within its freshness window.
func (s *Service) Fresh(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items) > 0 && now.Sub(s.updatedAt) < Freshness
}

// Refresh fetches and rescores the feeds. Without force it is a no-op while
// the cache is fresh. When every source fails, the previous cache contents
// are returned unchanged rather than an empty set.
func (s *Service) Refresh(ctx context.Context, force bool) ([]types.NewsItem, error) {
	now := time.Now()
	if !force && s.Fresh(now) {
		items, _ := s.Cached()
		return items, nil
	}

	fetched, err := s.fetcher.FetchAll(ctx)
	if err != nil {
		items, _ := s.Cached()
		if s.Fresh(now) {
			logger.Warn(ctx, "News refresh failed, serving cached items", "error", err, "cached", len(items))
			return items, nil
		}
		return items, err
	}

	items := s.score(Dedupe(fetched))
	sort.Slice(items, func(i, j int) bool { return items[i].PublishedAt > items[j].PublishedAt })
	if s.maxItems > 0 && len(items) > s.maxItems {
		items = items[:s.maxItems]
	}

	s.mu.Lock()
	s.items = items
	s.updatedAt = now
	s.mu.Unlock()
	s.writeCache(items, now)

	logger.Info(ctx, "News refreshed", "items", len(items))
	return items, nil
}

func (s *Service) score(items []types.NewsItem) []types.NewsItem {
	for i := range items {
		if items[i].Sentiment == "" {
			items[i].Sentiment = s.analyzer.Sentiment(items[i].Title)
		} else {
			items[i].Sentiment = NormalizeSentiment(items[i].Sentiment)
		}
		if items[i].Impact == "" {
			items[i].Impact = s.analyzer.Impact(items[i].Title)
		} else {
			items[i].Impact = NormalizeImpact(items[i].Impact)
		}
	}
	return items
}

// Dedupe drops repeated headlines across sources, keyed by normalized
// (title, url).
func Dedupe(items []types.NewsItem) []types.NewsItem {
	seen := make(map[string]bool, len(items))
	out := make([]types.NewsItem, 0, len(items))
	for _, it := range items {
		key := strings.ToLower(strings.TrimSpace(it.Title)) + "|" + strings.TrimSpace(it.URL)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, it)
	}
	return out
}

// Impact aggregates the cached items into the two scalars consumed by the
// prediction engine: recency-weighted polarity over the short (≤24h) and
// long (≤14d) buckets, each in roughly [-1, 1].
func Impact(items []types.NewsItem, now time.Time) types.NewsImpact {
	const (
		shortWindow = 24 * time.Hour
		longWindow  = 14 * 24 * time.Hour
	)
	var shortSum, longSum float64
	var shortN, longN int
	for _, it := range items {
		age := now.Sub(time.UnixMilli(it.PublishedAt))
		if age < 0 {
			age = 0
		}
		pol := polarity(it.Sentiment)
		if age <= shortWindow {
			shortSum += pol * (1 - age.Seconds()/shortWindow.Seconds())
			shortN++
		}
		if age <= longWindow {
			longSum += pol * (1 - age.Seconds()/longWindow.Seconds())
			longN++
		}
	}
	imp := types.NewsImpact{}
	if shortN > 0 {
		imp.Short = shortSum / float64(shortN)
	}
	if longN > 0 {
		imp.Long = longSum / float64(longN)
	}
	return imp
}

func polarity(sentiment string) float64 {
	switch sentiment {
	case "positive":
		return 1
	case "negative":
		return -1
	default:
		return 0
	}
}
