package market

import (
	"math/rand"
	"time"

	"crypto-predictor/internal/types"
)

// Synthesizer produces plausible-but-fake candles from the last known price
// as a liveness fallback when the feed is unreachable. Its output is always
// tagged SourceSynthetic; this is the only place randomness enters the
// analysis path.
type Synthesizer struct {
	rnd       *rand.Rand
	basePrice float64
	interval  time.Duration
}

// NewSynthesizer creates a generator walking from basePrice.
func NewSynthesizer(basePrice float64, interval time.Duration) *Synthesizer {
	if basePrice <= 0 {
		basePrice = 0.045 // plausible BTS/USDT level
	}
	return &Synthesizer{
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
		basePrice: basePrice,
		interval:  interval,
	}
}

// maxStepPct bounds the per-candle random walk.
const maxStepPct = 0.005

// Next continues the walk from prev. With a zero prev it starts a fresh
// series at the base price.
func (s *Synthesizer) Next(prev types.Candle, openTime int64) types.Candle {
	last := prev.Close
	if last <= 0 {
		last = s.basePrice
	}
	step := (s.rnd.Float64()*2 - 1) * maxStepPct
	close := last * (1 + step)
	high := close
	low := close
	if last > close {
		high = last
	} else {
		low = last
	}
	jitter := last * maxStepPct * s.rnd.Float64()
	return types.Candle{
		OpenTime:  openTime,
		Open:      last,
		High:      high + jitter,
		Low:       low - jitter,
		Close:     close,
		Volume:    50000 + s.rnd.Float64()*150000,
		CloseTime: openTime + s.interval.Milliseconds() - 1,
		Source:    types.SourceSynthetic,
	}
}

// Backfill extends the buffer with n synthetic candles ending at now.
func (s *Synthesizer) Backfill(buf *Buffer, n int, now time.Time) {
	step := s.interval.Milliseconds()
	start := now.UnixMilli() - int64(n)*step
	prev, _ := buf.Last()
	for i := 0; i < n; i++ {
		c := s.Next(prev, start+int64(i)*step)
		buf.Append(c)
		prev = c
	}
}

// PerturbPrice returns price moved by a small random amount, used as the
// last-resort exit price when no candle is available at close time.
func (s *Synthesizer) PerturbPrice(price float64) float64 {
	return price * (1 + (s.rnd.Float64()*2-1)*maxStepPct)
}
