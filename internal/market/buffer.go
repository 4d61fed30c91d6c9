package market

import (
	"sync"

	"crypto-predictor/internal/types"
)

// Buffer is the rolling bounded candle sequence. Candles are ordered by
// open time and unique by open time; appending a candle whose open time
// matches the newest entry replaces it in place (the upstream feed keeps
// re-sending the in-progress bar until it closes).
type Buffer struct {
	mu      sync.RWMutex
	candles []types.Candle
	cap     int
}

// NewBuffer creates a buffer that retains at most cap candles.
func NewBuffer(cap int) *Buffer {
	if cap <= 0 {
		cap = 2000
	}
	return &Buffer{candles: make([]types.Candle, 0, cap), cap: cap}
}

// Append adds a candle, replacing the newest entry on an open-time match
// and evicting the oldest entry once the cap is exceeded. Candles older
// than the newest entry are dropped, so re-fetching an overlapping kline
// window never duplicates or reorders the sequence.
func (b *Buffer) Append(c types.Candle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(b.candles)
	if n > 0 {
		last := b.candles[n-1].OpenTime
		if c.OpenTime == last {
			b.candles[n-1] = c
			return
		}
		if c.OpenTime < last {
			return
		}
	}
	b.candles = append(b.candles, c)
	if len(b.candles) > b.cap {
		b.candles = b.candles[len(b.candles)-b.cap:]
	}
}

// MergeTrade folds a live trade into the newest candle without changing
// its time bucket. No-op on an empty buffer.
func (b *Buffer) MergeTrade(price, qty float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(b.candles)
	if n == 0 {
		return
	}
	c := &b.candles[n-1]
	c.Close = price
	if price > c.High {
		c.High = price
	}
	if price < c.Low {
		c.Low = price
	}
	c.Volume += qty
	c.Source = types.SourceLive
}

// Window returns a copy of the last n candles, or all of them when fewer
// exist.
func (b *Buffer) Window(n int) []types.Candle {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if n <= 0 || n > len(b.candles) {
		n = len(b.candles)
	}
	out := make([]types.Candle, n)
	copy(out, b.candles[len(b.candles)-n:])
	return out
}

// Last returns the newest candle.
func (b *Buffer) Last() (types.Candle, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.candles) == 0 {
		return types.Candle{}, false
	}
	return b.candles[len(b.candles)-1], true
}

// Len returns the number of buffered candles.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.candles)
}
