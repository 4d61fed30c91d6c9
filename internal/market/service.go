package market

import (
	"context"
	"sync"
	"time"

	"crypto-predictor/internal/logger"
	"crypto-predictor/internal/types"
)

// minRealCandles is the threshold below which an unreachable feed triggers
// the synthetic fallback.
const minRealCandles = 80

// ServiceConfig configures the market data service.
type ServiceConfig struct {
	RESTURL   string
	WSURL     string
	Pair      string
	Interval  time.Duration // candle bucket, e.g. 1m
	KlineStr  string        // interval as the feed spells it, e.g. "1m"
	Limit     int           // klines per REST fetch
	BufferCap int
	Timeout   time.Duration
	Live      bool // subscribe to the trade stream
}

// Service owns the candle buffer and keeps it filled, from the REST feed
// when reachable and from the synthesizer otherwise.
type Service struct {
	cfg    ServiceConfig
	buf    *Buffer
	feed   *Feed
	synth  *Synthesizer
	stream *Stream

	mu     sync.Mutex
	source types.CandleSource
}

// NewService creates the market data service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.BufferCap == 0 {
		cfg.BufferCap = 2000
	}
	if cfg.Interval == 0 {
		cfg.Interval = time.Minute
	}
	s := &Service{
		cfg:    cfg,
		buf:    NewBuffer(cfg.BufferCap),
		feed:   NewFeed(cfg.RESTURL, cfg.Pair, cfg.KlineStr, cfg.Limit, cfg.Timeout),
		synth:  NewSynthesizer(0, cfg.Interval),
		source: types.SourceRest,
	}
	if cfg.Live {
		s.stream = NewStream(cfg.WSURL, cfg.Pair)
		s.stream.OnTrade = func(price, qty float64) {
			s.buf.MergeTrade(price, qty)
			s.setSource(types.SourceLive)
		}
	}
	return s
}

// Buffer exposes the candle buffer to readers.
func (s *Service) Buffer() *Buffer { return s.buf }

// Synth exposes the synthesizer for last-resort exit pricing.
func (s *Service) Synth() *Synthesizer { return s.synth }

// Source reports where the newest data came from.
func (s *Service) Source() types.CandleSource {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source
}

func (s *Service) setSource(src types.CandleSource) {
	s.mu.Lock()
	s.source = src
	s.mu.Unlock()
}

// StartStream launches the live trade stream when enabled.
func (s *Service) StartStream(ctx context.Context) {
	if s.stream == nil {
		return
	}
	go s.stream.Start(ctx)
}

// Refresh pulls fresh klines into the buffer. When the feed is unreachable
// and the buffer is too thin to analyze, it backfills synthetic candles so
// the rest of the system stays live; synthetic data is always tagged.
func (s *Service) Refresh(ctx context.Context) error {
	candles, err := s.feed.Fetch(ctx)
	if err == nil {
		for _, c := range candles {
			s.buf.Append(c)
		}
		if s.Source() != types.SourceLive {
			s.setSource(types.SourceRest)
		}
		logger.Debug(ctx, "Candles refreshed", "count", len(candles), "buffered", s.buf.Len())
		return nil
	}

	logger.Warn(ctx, "Feed unreachable", "error", err, "buffered", s.buf.Len())
	if s.buf.Len() < minRealCandles {
		need := minRealCandles - s.buf.Len()
		s.synth.Backfill(s.buf, need, time.Now())
		s.setSource(types.SourceSynthetic)
		logger.Warn(ctx, "Backfilled synthetic candles", "count", need)
	}
	return err
}
