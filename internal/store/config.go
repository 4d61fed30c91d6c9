package store

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// NewsFeed is one configured RSS source.
type NewsFeed struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// AppConfig is the environment-level configuration loaded from config.yaml.
// Runtime-tunable intervals live in the persisted state config instead; the
// values here only seed the defaults on first start.
type AppConfig struct {
	Pair    string `yaml:"pair"`
	DataDir string `yaml:"data_dir"`

	HTTP struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"http"`

	Feed struct {
		RESTURL        string `yaml:"rest_url"`
		WSURL          string `yaml:"ws_url"`
		Interval       string `yaml:"interval"` // kline interval, e.g. "1m"
		Limit          int    `yaml:"limit"`
		Live           bool   `yaml:"live"` // subscribe to the trade stream
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"feed"`

	News struct {
		Feeds          []NewsFeed `yaml:"feeds"`
		TimeoutSeconds int        `yaml:"timeout_seconds"`
		MaxItems       int        `yaml:"max_items"`
	} `yaml:"news"`

	Intervals struct {
		AnalysisSeconds   int `yaml:"analysis_seconds"`
		CloseSeconds      int `yaml:"close_seconds"`
		SimulationSeconds int `yaml:"simulation_seconds"` // holding period
		NewsSeconds       int `yaml:"news_seconds"`
	} `yaml:"intervals"`
}

func (c *AppConfig) Validate() error {
	if c.Pair == "" {
		return fmt.Errorf("pair cannot be empty")
	}
	if c.Feed.RESTURL == "" {
		return fmt.Errorf("feed.rest_url cannot be empty")
	}
	if c.Intervals.AnalysisSeconds <= 0 || c.Intervals.SimulationSeconds <= 0 {
		return fmt.Errorf("intervals must be positive")
	}
	return nil
}

// LoadAppConfig reads config.yaml, applying defaults for missing values.
func LoadAppConfig(path string) (*AppConfig, error) {
	var c AppConfig
	b, err := os.ReadFile(path)
	if err == nil {
		if uerr := yaml.Unmarshal(b, &c); uerr != nil {
			return nil, fmt.Errorf("parse %s: %w", path, uerr)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	if c.Pair == "" {
		c.Pair = "BTSUSDT"
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.HTTP.Host == "" {
		c.HTTP.Host = "0.0.0.0"
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.Feed.RESTURL == "" {
		c.Feed.RESTURL = "https://api.binance.com/api/v3/klines"
	}
	if c.Feed.WSURL == "" {
		c.Feed.WSURL = "wss://stream.binance.com:9443/ws"
	}
	if c.Feed.Interval == "" {
		c.Feed.Interval = "1m"
	}
	if c.Feed.Limit == 0 {
		c.Feed.Limit = 500
	}
	if c.Feed.TimeoutSeconds == 0 {
		c.Feed.TimeoutSeconds = 10
	}
	if c.News.TimeoutSeconds == 0 {
		c.News.TimeoutSeconds = 15
	}
	if c.News.MaxItems == 0 {
		c.News.MaxItems = 50
	}
	if len(c.News.Feeds) == 0 {
		c.News.Feeds = []NewsFeed{
			{Name: "CoinDesk", URL: "https://www.coindesk.com/arc/outboundfeeds/rss/"},
			{Name: "CoinTelegraph", URL: "https://cointelegraph.com/rss"},
			{Name: "GoogleNews", URL: "https://news.google.com/rss/search?q=bitshares+OR+cryptocurrency"},
		}
	}
	if c.Intervals.AnalysisSeconds == 0 {
		c.Intervals.AnalysisSeconds = 60
	}
	if c.Intervals.CloseSeconds == 0 {
		c.Intervals.CloseSeconds = 30
	}
	if c.Intervals.SimulationSeconds == 0 {
		c.Intervals.SimulationSeconds = 300
	}
	if c.Intervals.NewsSeconds == 0 {
		c.Intervals.NewsSeconds = 3600
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &c, nil
}
