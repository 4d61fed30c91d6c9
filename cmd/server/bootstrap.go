package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"crypto-predictor/internal/logger"
	"crypto-predictor/internal/market"
	"crypto-predictor/internal/metrics"
	"crypto-predictor/internal/news"
	"crypto-predictor/internal/scheduler"
	"crypto-predictor/internal/server"
	"crypto-predictor/internal/sim"
	"crypto-predictor/internal/simlog"
	"crypto-predictor/internal/store"
)

// app holds the wired components for the lifetime of the process.
type app struct {
	cfg    *store.AppConfig
	store  *store.Store
	market *market.Service
	news   *news.Service
	sims   *sim.Manager
	sched  *scheduler.Scheduler
	server *server.Server
}

// bootstrap loads configuration and wires every service together.
func bootstrap(ctx context.Context) (*app, error) {
	cfgPath := os.Getenv("PREDICTOR_CONFIG")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := store.LoadAppConfig(cfgPath)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	compressOldLogs(ctx)

	st, err := store.Open(filepath.Join(cfg.DataDir, "state.json"), cfg)
	if err != nil {
		return nil, err
	}

	interval, err := time.ParseDuration(cfg.Feed.Interval)
	if err != nil {
		// Binance spells minutes "1m", which ParseDuration happens to accept;
		// anything it can't parse falls back to one minute.
		interval = time.Minute
	}
	mkt := market.NewService(market.ServiceConfig{
		RESTURL:  cfg.Feed.RESTURL,
		WSURL:    cfg.Feed.WSURL,
		Pair:     cfg.Pair,
		Interval: interval,
		KlineStr: cfg.Feed.Interval,
		Limit:    cfg.Feed.Limit,
		Timeout:  time.Duration(cfg.Feed.TimeoutSeconds) * time.Second,
		Live:     cfg.Feed.Live,
	})

	sources := make([]news.Source, 0, len(cfg.News.Feeds))
	for _, f := range cfg.News.Feeds {
		sources = append(sources, news.Source{Name: f.Name, URL: f.URL})
	}
	fetcher := news.NewFetcher(sources, time.Duration(cfg.News.TimeoutSeconds)*time.Second, cfg.News.MaxItems)
	nws := news.NewService(fetcher, filepath.Join(cfg.DataDir, "news_cache.json"), cfg.News.MaxItems)

	rec := metrics.New()
	sims := sim.NewManager(st)
	sched := scheduler.New(st, mkt, nws, sims, rec, cfg.Pair,
		time.Duration(cfg.Intervals.CloseSeconds)*time.Second)

	handler := server.NewHandler(st, sched, mkt, nws, sims, cfg.Pair)
	srv := server.New(handler,
		server.WithHost(cfg.HTTP.Host),
		server.WithPort(cfg.HTTP.Port),
	)

	return &app{
		cfg:    cfg,
		store:  st,
		market: mkt,
		news:   nws,
		sims:   sims,
		sched:  sched,
		server: srv,
	}, nil
}

// compressOldLogs gzips old simulation log files when retention is set.
func compressOldLogs(ctx context.Context) {
	if v := os.Getenv("PREDICTOR_LOG_RETENTION_DAYS"); v != "" {
		var n int
		fmt.Sscanf(v, "%d", &n)
		if err := simlog.CompressOlder(n); err != nil {
			logger.Warn(ctx, "Failed to compress old logs", "error", err)
		}
	}
}
