package market

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"crypto-predictor/internal/api"
	"crypto-predictor/internal/types"
)

// Feed fetches klines from the Binance-style REST endpoint.
type Feed struct {
	client   *api.Client
	baseURL  string
	pair     string
	interval string
	limit    int
}

// NewFeed creates a REST kline feed for one trading pair.
func NewFeed(baseURL, pair, interval string, limit int, timeout time.Duration) *Feed {
	return &Feed{
		client:   api.NewClient(api.WithTimeout(timeout)),
		baseURL:  baseURL,
		pair:     pair,
		interval: interval,
		limit:    limit,
	}
}

// Fetch pulls the most recent klines. Each row is a JSON array:
// [openTime, open, high, low, close, volume, closeTime, ...].
func (f *Feed) Fetch(ctx context.Context) ([]types.Candle, error) {
	url := fmt.Sprintf("%s?symbol=%s&interval=%s&limit=%d", f.baseURL, f.pair, f.interval, f.limit)
	resp, err := f.client.GETWithRetry(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch klines: %w", err)
	}

	var rows [][]json.RawMessage
	if err := resp.ParseJSON(&rows); err != nil {
		return nil, fmt.Errorf("fetch klines: %w", err)
	}

	candles := make([]types.Candle, 0, len(rows))
	for _, row := range rows {
		c, err := parseKline(row)
		if err != nil {
			return nil, fmt.Errorf("fetch klines: %w", err)
		}
		candles = append(candles, c)
	}
	return candles, nil
}

func parseKline(row []json.RawMessage) (types.Candle, error) {
	if len(row) < 7 {
		return types.Candle{}, fmt.Errorf("kline row too short: %d fields", len(row))
	}
	var c types.Candle
	if err := json.Unmarshal(row[0], &c.OpenTime); err != nil {
		return c, err
	}
	if err := json.Unmarshal(row[6], &c.CloseTime); err != nil {
		return c, err
	}
	var err error
	if c.Open, err = parseQuoted(row[1]); err != nil {
		return c, err
	}
	if c.High, err = parseQuoted(row[2]); err != nil {
		return c, err
	}
	if c.Low, err = parseQuoted(row[3]); err != nil {
		return c, err
	}
	if c.Close, err = parseQuoted(row[4]); err != nil {
		return c, err
	}
	if c.Volume, err = parseQuoted(row[5]); err != nil {
		return c, err
	}
	c.Source = types.SourceRest
	return c, nil
}

// parseQuoted reads a Binance decimal, which arrives as a JSON string.
func parseQuoted(raw json.RawMessage) (float64, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		// Some mirrors send plain numbers.
		var f float64
		if nerr := json.Unmarshal(raw, &f); nerr == nil {
			return f, nil
		}
		return 0, err
	}
	return strconv.ParseFloat(s, 64)
}
