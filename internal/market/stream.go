package market

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"crypto-predictor/internal/logger"
)

// Stream subscribes to the exchange trade stream and feeds live prices into
// the candle buffer between REST refreshes.
type Stream struct {
	url  string
	pair string

	// OnTrade receives every parsed trade. Set before Start.
	OnTrade func(price, qty float64)
}

// NewStream creates a trade-stream subscriber for one pair.
func NewStream(baseURL, pair string) *Stream {
	return &Stream{
		url:  fmt.Sprintf("%s/%s@trade", baseURL, strings.ToLower(pair)),
		pair: pair,
	}
}

type tradeMsg struct {
	Price string `json:"p"`
	Qty   string `json:"q"`
	Time  int64  `json:"T"`
}

// Start connects and reads trades until ctx is cancelled, reconnecting with
// backoff on any failure. The backoff resets after every successful
// connection so a flaky period does not degrade reconnect latency for
// good. Blocks; run it in its own goroutine.
func (s *Stream) Start(ctx context.Context) {
	backoff := time.Second
	for {
		connected, err := s.run(ctx)
		if connected {
			backoff = time.Second
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn(ctx, "Trade stream disconnected, reconnecting", "url", s.url, "error", err, "backoff", backoff)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

// run dials and reads one stream session. The bool reports whether the
// dial succeeded.
func (s *Stream) run(ctx context.Context) (bool, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	logger.Info(ctx, "Trade stream connected", "pair", s.pair)

	// Unblock ReadMessage when the context is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return true, fmt.Errorf("read: %w", err)
		}
		var msg tradeMsg
		if err := json.Unmarshal(raw, &msg); err != nil {
			logger.Debug(ctx, "Skipping unparseable stream message", "error", err)
			continue
		}
		price, perr := strconv.ParseFloat(msg.Price, 64)
		qty, qerr := strconv.ParseFloat(msg.Qty, 64)
		if perr != nil || qerr != nil || price <= 0 {
			continue
		}
		if s.OnTrade != nil {
			s.OnTrade(price, qty)
		}
	}
}
