package predictor

import (
	"errors"
	"fmt"
	"math"
	"time"

	"crypto-predictor/internal/ta"
	"crypto-predictor/internal/types"
)

// Indicator parameters. The backtester warm-up must cover the slowest of
// these, so the trainer optimizes exactly the rule that runs live.
const (
	FastSMA       = 10
	SlowSMA       = 30
	RSIPeriod     = 14
	BBWindow      = 20
	BBStdDev      = 2.0
	VolWindow     = 20
	VolSpike      = 1.5
	MinCandles    = SlowSMA
	UpThreshold   = 65.0
	DownThreshold = 35.0
)

// ErrInsufficientCandles is returned when the buffer is too thin to score.
var ErrInsufficientCandles = errors.New("not enough candles")

// ScoreWindow computes the weighted indicator score over the candle window
// along with the indicator snapshot. Each indicator votes ±weight; the raw
// sum is signed, unbounded, and contains no news terms. The backtester
// uses this function verbatim so training and live prediction can never
// diverge.
func ScoreWindow(m types.Model, candles []types.Candle) (float64, types.Indicators) {
	closes := make([]float64, len(candles))
	vols := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
		vols[i] = c.Volume
	}

	ind := types.Indicators{
		RSI:         ta.RSI(closes, RSIPeriod),
		SMAFast:     ta.SMA(closes, FastSMA),
		SMASlow:     ta.SMA(closes, SlowSMA),
		VolumeRatio: ta.VolumeRatio(vols, VolWindow),
	}
	ind.MACD, ind.MACDSignal, _ = ta.MACD(closes)
	ind.BBMiddle, ind.BBUpper, ind.BBLower = ta.Bollinger(closes, BBWindow, BBStdDev)

	price := closes[len(closes)-1]
	score := 0.0

	if !math.IsNaN(ind.SMAFast) && !math.IsNaN(ind.SMASlow) {
		if ind.SMAFast > ind.SMASlow {
			score += m.SMA
		} else if ind.SMAFast < ind.SMASlow {
			score -= m.SMA
		}
	}
	if !math.IsNaN(ind.RSI) {
		if ind.RSI > 70 {
			score -= m.RSI
		} else if ind.RSI < 30 {
			score += m.RSI
		}
	}
	if !math.IsNaN(ind.MACD) {
		if ind.MACD > 0 {
			score += m.MACD
		} else if ind.MACD < 0 {
			score -= m.MACD
		}
	}
	if !math.IsNaN(ind.BBUpper) {
		if price > ind.BBUpper {
			score -= m.Bollinger
		} else if price < ind.BBLower {
			score += m.Bollinger
		}
	}
	if ind.VolumeRatio > VolSpike && len(closes) >= 2 {
		if closes[len(closes)-1] > closes[len(closes)-2] {
			score += m.Volume
		} else if closes[len(closes)-1] < closes[len(closes)-2] {
			score -= m.Volume
		}
	}
	return score, ind
}

// Predict combines the indicator score with the news impact into a
// directional trend and confidence. Given the same candle window, model and
// news impact, the output is fully deterministic.
func Predict(m types.Model, candles []types.Candle, impact types.NewsImpact, source types.CandleSource, now time.Time) (*types.Prediction, error) {
	if len(candles) < MinCandles {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientCandles, len(candles), MinCandles)
	}

	score, ind := ScoreWindow(m, candles)
	// News can flip a borderline decision and scales confidence through the
	// same squash.
	score += impact.Short*m.NewsShort + impact.Long*m.NewsLong

	squashed := math.Tanh(score)
	upProb := 50.0 + 50.0*squashed
	trend := types.TrendNeutral
	if upProb >= UpThreshold {
		trend = types.TrendUp
	} else if upProb <= DownThreshold {
		trend = types.TrendDown
	}

	price := candles[len(candles)-1].Close
	return &types.Prediction{
		Trend:       trend,
		Probability: probability(upProb),
		Confidence:  math.Abs(squashed),
		Reasoning:   reasoning(ind, impact, price),
		Indicators:  ind,
		Price:       price,
		CreatedAt:   now.UnixMilli(),
		DataSource:  source,
	}, nil
}

func reasoning(ind types.Indicators, impact types.NewsImpact, price float64) []string {
	rs := []string{}
	if !math.IsNaN(ind.RSI) {
		switch {
		case ind.RSI < 30:
			rs = append(rs, fmt.Sprintf("RSI oversold at %.1f - bullish signal", ind.RSI))
		case ind.RSI > 70:
			rs = append(rs, fmt.Sprintf("RSI overbought at %.1f - bearish signal", ind.RSI))
		default:
			rs = append(rs, fmt.Sprintf("RSI neutral at %.1f", ind.RSI))
		}
	}
	if !math.IsNaN(ind.MACD) {
		if ind.MACD > 0 {
			rs = append(rs, "MACD positive - bullish momentum")
		} else if ind.MACD < 0 {
			rs = append(rs, "MACD negative - bearish momentum")
		}
	}
	if !math.IsNaN(ind.SMAFast) && !math.IsNaN(ind.SMASlow) {
		if ind.SMAFast > ind.SMASlow {
			rs = append(rs, "Fast MA above slow MA - uptrend")
		} else if ind.SMAFast < ind.SMASlow {
			rs = append(rs, "Fast MA below slow MA - downtrend")
		}
	}
	if !math.IsNaN(ind.BBUpper) {
		if price > ind.BBUpper {
			rs = append(rs, "Price above upper Bollinger band - overextended")
		} else if price < ind.BBLower {
			rs = append(rs, "Price below lower Bollinger band - potential bounce")
		}
	}
	if ind.VolumeRatio > VolSpike {
		rs = append(rs, fmt.Sprintf("Volume spike %.1fx average confirms move", ind.VolumeRatio))
	}
	if impact.Short > 0.1 {
		rs = append(rs, "Short-term news sentiment positive")
	} else if impact.Short < -0.1 {
		rs = append(rs, "Short-term news sentiment negative")
	}
	if impact.Long > 0.1 {
		rs = append(rs, "Long-term news sentiment positive")
	} else if impact.Long < -0.1 {
		rs = append(rs, "Long-term news sentiment negative")
	}
	return rs
}

// probability rounds the up side and derives down from it so the pair
// always sums to exactly 100.
func probability(upProb float64) types.Probability {
	up := math.Round(upProb*10) / 10
	return types.Probability{Up: up, Down: 100.0 - up}
}
