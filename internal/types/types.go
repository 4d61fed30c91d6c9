package types

// Trend is the directional call produced by the prediction engine.
type Trend string

const (
	TrendUp      Trend = "UP"
	TrendDown    Trend = "DOWN"
	TrendNeutral Trend = "NEUTRAL"
)

// CandleSource tags where market data came from, so degraded (synthetic)
// data is always distinguishable from real feed data.
type CandleSource string

const (
	SourceLive      CandleSource = "live"
	SourceRest      CandleSource = "rest"
	SourceSynthetic CandleSource = "synthetic"
)

// Candle is one OHLCV bar. Times are unix milliseconds, Binance style.
type Candle struct {
	OpenTime  int64        `json:"openTime"`
	Open      float64      `json:"open"`
	High      float64      `json:"high"`
	Low       float64      `json:"low"`
	Close     float64      `json:"close"`
	Volume    float64      `json:"volume"`
	CloseTime int64        `json:"closeTime"`
	Source    CandleSource `json:"source,omitempty"`
}

// Model holds the named indicator weights used to score a trend, plus the
// news-impact weights. Exactly one live Model exists at a time; the trainer
// replaces it wholesale, never field by field.
type Model struct {
	RSI       float64 `json:"rsi"`
	MACD      float64 `json:"macd"`
	SMA       float64 `json:"sma"`
	Bollinger float64 `json:"bollinger"`
	Volume    float64 `json:"volume"`
	NewsShort float64 `json:"newsShort"`
	NewsLong  float64 `json:"newsLong"`
	TrainedAt int64   `json:"trainedAt,omitempty"`
}

// DefaultModel returns the untrained starting weights.
func DefaultModel() Model {
	return Model{
		RSI:       0.5,
		MACD:      0.5,
		SMA:       0.5,
		Bollinger: 0.5,
		Volume:    0.5,
		NewsShort: 0.3,
		NewsLong:  0.2,
	}
}

// Probability is the up/down split in percent, summing to 100.
type Probability struct {
	Up   float64 `json:"up"`
	Down float64 `json:"down"`
}

// Indicators is the snapshot attached to a Prediction.
type Indicators struct {
	RSI         float64 `json:"rsi"`
	MACD        float64 `json:"macd"`
	MACDSignal  float64 `json:"macdSignal"`
	SMAFast     float64 `json:"smaFast"`
	SMASlow     float64 `json:"smaSlow"`
	BBUpper     float64 `json:"bbUpper"`
	BBMiddle    float64 `json:"bbMiddle"`
	BBLower     float64 `json:"bbLower"`
	VolumeRatio float64 `json:"volumeRatio"`
}

// Prediction is the ephemeral output of one analysis pass. The state keeps
// at most one pending Prediction, overwritten on every tick.
type Prediction struct {
	Trend       Trend        `json:"trend"`
	Probability Probability  `json:"probability"`
	Confidence  float64      `json:"confidence"`
	Reasoning   []string     `json:"reasoning"`
	Indicators  Indicators   `json:"indicators"`
	Price       float64      `json:"price"`
	CreatedAt   int64        `json:"createdAt"`
	DataSource  CandleSource `json:"dataSource"`
}

// Simulation is one simulated trade. It is created OPEN and transitions to
// CLOSED exactly once; the exit fields are populated all together at close
// and never before.
type Simulation struct {
	ID           string      `json:"id"`
	EntryTime    int64       `json:"entryTime"`
	EntryPrice   float64     `json:"entryPrice"`
	Trend        Trend       `json:"trend"`
	Probability  Probability `json:"probability"`
	Confidence   float64     `json:"confidence"`
	EntryMethod  string      `json:"entryMethod"`
	Closed       bool        `json:"closed"`
	ExitTime     int64       `json:"exitTime,omitempty"`
	ExitPrice    float64     `json:"exitPrice,omitempty"`
	ProfitPct    float64     `json:"profitPct,omitempty"`
	ProfitAmount float64     `json:"profitAmount,omitempty"`
	Success      bool        `json:"success,omitempty"`
	Reasoning    []string    `json:"reasoning,omitempty"`
}

// LearningError is an append-only audit record written at every simulation
// close. Entries are never mutated or deleted.
type LearningError struct {
	Timestamp int64   `json:"timestamp"`
	Predicted Trend   `json:"predicted"`
	Actual    string  `json:"actual"` // "WIN" or "LOSS"
	ProfitPct float64 `json:"profitPct"`
	Note      string  `json:"note,omitempty"`
}

// NewsItem is one deduplicated headline with heuristic scores.
type NewsItem struct {
	Title       string `json:"title"`
	Source      string `json:"source"`
	URL         string `json:"url"`
	PublishedAt int64  `json:"publishedAt"`
	Sentiment   string `json:"sentiment"` // positive / negative / neutral
	Impact      string `json:"impact"`    // short / medium / long
}

// NewsImpact is the aggregated market impact fed into the prediction engine.
// Both scalars are roughly in [-1, 1].
type NewsImpact struct {
	Short float64 `json:"short"`
	Long  float64 `json:"long"`
}
