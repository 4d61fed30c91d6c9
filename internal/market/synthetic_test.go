package market

import (
	"math"
	"testing"
	"time"

	"crypto-predictor/internal/types"
)

func TestSyntheticStepBound(t *testing.T) {
	s := NewSynthesizer(0.045, time.Minute)
	prev := types.Candle{Close: 0.045}
	for i := 0; i < 200; i++ {
		c := s.Next(prev, int64(i)*60_000)
		step := math.Abs(c.Close-prev.Close) / prev.Close
		if step > maxStepPct {
			t.Fatalf("Step %f exceeds bound %f", step, maxStepPct)
		}
		if c.Source != types.SourceSynthetic {
			t.Fatal("Synthetic candles must carry the synthetic tag")
		}
		if c.Open != prev.Close {
			t.Fatalf("Expected open to continue from previous close, got %f vs %f", c.Open, prev.Close)
		}
		if c.High < c.Close || c.High < c.Open || c.Low > c.Close || c.Low > c.Open {
			t.Fatalf("OHLC ordering violated: %+v", c)
		}
		prev = c
	}
}

func TestSyntheticStartsFromBasePrice(t *testing.T) {
	s := NewSynthesizer(1.0, time.Minute)
	c := s.Next(types.Candle{}, 0)
	if c.Open != 1.0 {
		t.Errorf("Expected fresh series to start at base price, got %f", c.Open)
	}
}

func TestBackfill(t *testing.T) {
	s := NewSynthesizer(0.045, time.Minute)
	buf := NewBuffer(100)
	now := time.Now()
	s.Backfill(buf, 80, now)

	if buf.Len() != 80 {
		t.Fatalf("Expected 80 backfilled candles, got %d", buf.Len())
	}
	w := buf.Window(0)
	for i := 1; i < len(w); i++ {
		if w[i].OpenTime <= w[i-1].OpenTime {
			t.Fatal("Backfilled candles must be strictly ordered by open time")
		}
	}
	last, _ := buf.Last()
	if last.OpenTime >= now.UnixMilli() {
		t.Error("Backfill must end at or before now")
	}
}

func TestPerturbPrice(t *testing.T) {
	s := NewSynthesizer(0.045, time.Minute)
	for i := 0; i < 100; i++ {
		p := s.PerturbPrice(100.0)
		if p < 100.0*(1-maxStepPct) || p > 100.0*(1+maxStepPct) {
			t.Fatalf("Perturbed price %f outside bound", p)
		}
	}
}
