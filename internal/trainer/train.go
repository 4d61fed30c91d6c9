package trainer

import (
	"errors"
	"time"

	"crypto-predictor/internal/types"
)

// ErrInsufficientHistory is returned when there are not enough candles to
// produce a statistically useful backtest.
var ErrInsufficientHistory = errors.New("trainer: insufficient candle history")

// MinTrainCandles is the smallest series Train will accept.
const MinTrainCandles = 60

// deltas is the per-weight search grid applied around the current model.
var deltas = []float64{-0.1, -0.05, 0, 0.05, 0.1}

// TrainReport describes the outcome of one training run.
type TrainReport struct {
	Model      types.Model `json:"model"`
	Best       Result      `json:"best"`
	Baseline   Result      `json:"baseline"`
	Candidates int         `json:"candidates"`
	Improved   bool        `json:"improved"`
	Elapsed    time.Duration
}

// Train grid-searches weight adjustments around base over the four
// indicator weights and returns the candidate with the best composite
// score. The base model is always among the candidates, so the returned
// model never scores worse than the one passed in. Ties keep the earlier
// candidate, which keeps repeated runs on the same data stable.
func Train(base types.Model, candles []types.Candle, now time.Time) (TrainReport, error) {
	if len(candles) < MinTrainCandles {
		return TrainReport{Model: base}, ErrInsufficientHistory
	}

	baseline := Backtest(base, candles)

	best := base
	bestRes := baseline
	count := 0
	for _, dr := range deltas {
		for _, dm := range deltas {
			for _, ds := range deltas {
				for _, db := range deltas {
					cand := base
					cand.RSI = clamp01(base.RSI + dr)
					cand.MACD = clamp01(base.MACD + dm)
					cand.SMA = clamp01(base.SMA + ds)
					cand.Bollinger = clamp01(base.Bollinger + db)
					count++
					if cand == best {
						continue
					}
					res := Backtest(cand, candles)
					if res.Composite() > bestRes.Composite() {
						best = cand
						bestRes = res
					}
				}
			}
		}
	}

	best.TrainedAt = now.UnixMilli()
	return TrainReport{
		Model:      best,
		Best:       bestRes,
		Baseline:   baseline,
		Candidates: count,
		Improved:   bestRes.Composite() > baseline.Composite(),
	}, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
