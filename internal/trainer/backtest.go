package trainer

import (
	"crypto-predictor/internal/predictor"
	"crypto-predictor/internal/sim"
	"crypto-predictor/internal/types"
)

// Result summarizes one backtest run. Winrate and returns are fractions,
// not percentages.
type Result struct {
	Winrate     float64 `json:"winrate"`
	AvgReturn   float64 `json:"avgReturn"`
	TotalReturn float64 `json:"totalReturn"`
	Trades      int     `json:"trades"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
}

// Composite is the model-selection score.
func (r Result) Composite() float64 {
	return 0.7*r.Winrate + 0.3*r.AvgReturn
}

// warmup is how much history the slowest indicator needs before the score
// is meaningful.
const warmup = predictor.MinCandles

// Backtest replays the model's decision rule over the candle series: score
// each step with the exact live scoring function, act on the sign, and exit
// on the next candle. Pure: same inputs, same output, no side effects.
func Backtest(m types.Model, candles []types.Candle) Result {
	res := Result{}
	for i := warmup; i < len(candles)-1; i++ {
		score, _ := predictor.ScoreWindow(m, candles[:i+1])
		if score == 0 {
			continue
		}
		trend := types.TrendUp
		if score < 0 {
			trend = types.TrendDown
		}
		ret := sim.OrientedReturn(trend, candles[i].Close, candles[i+1].Close)
		res.Trades++
		res.TotalReturn += ret
		if ret > 0 {
			res.Wins++
		} else {
			res.Losses++
		}
	}
	if res.Trades > 0 {
		res.Winrate = float64(res.Wins) / float64(res.Trades)
		res.AvgReturn = res.TotalReturn / float64(res.Trades)
	}
	return res
}
