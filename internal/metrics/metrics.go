package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder exposes the server's Prometheus instruments. Use a single
// Recorder per process; promauto registers with the default registry.
type Recorder struct {
	ticksTotal       *prometheus.CounterVec
	feedErrorsTotal  *prometheus.CounterVec
	simsClosedTotal  *prometheus.CounterVec
	predictionUpProb prometheus.Gauge
	predictionConf   prometheus.Gauge
	lastPrice        *prometheus.GaugeVec
	trainingDuration prometheus.Histogram
	newsItems        prometheus.Gauge
}

// New creates a Recorder with all instruments registered.
func New() *Recorder {
	return &Recorder{
		ticksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "predictor_scheduler_ticks_total",
				Help: "Scheduler ticks executed, by task",
			},
			[]string{"task"},
		),
		feedErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "predictor_feed_errors_total",
				Help: "Upstream data fetch failures, by source",
			},
			[]string{"source"},
		),
		simsClosedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "predictor_simulations_closed_total",
				Help: "Closed simulations, by outcome",
			},
			[]string{"outcome"},
		),
		predictionUpProb: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "predictor_prediction_up_probability",
				Help: "Up probability of the latest prediction, percent",
			},
		),
		predictionConf: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "predictor_prediction_confidence",
				Help: "Confidence of the latest prediction",
			},
		),
		lastPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "predictor_last_price",
				Help: "Last observed close price for a pair",
			},
			[]string{"pair"},
		),
		trainingDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "predictor_training_duration_seconds",
				Help:    "Duration of grid-search training runs in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		newsItems: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "predictor_news_items",
				Help: "Headlines currently held in the news cache",
			},
		),
	}
}

// RecordTick counts one scheduler task execution.
func (r *Recorder) RecordTick(task string) {
	r.ticksTotal.WithLabelValues(task).Inc()
}

// RecordFeedError counts one failed upstream fetch.
func (r *Recorder) RecordFeedError(source string) {
	r.feedErrorsTotal.WithLabelValues(source).Inc()
}

// RecordSimulationClosed counts a closed simulation by outcome ("win"/"loss").
func (r *Recorder) RecordSimulationClosed(success bool) {
	outcome := "loss"
	if success {
		outcome = "win"
	}
	r.simsClosedTotal.WithLabelValues(outcome).Inc()
}

// RecordPrediction publishes the latest prediction gauges.
func (r *Recorder) RecordPrediction(upProbability, confidence float64) {
	r.predictionUpProb.Set(upProbability)
	r.predictionConf.Set(confidence)
}

// RecordLastPrice publishes the last close price for a pair.
func (r *Recorder) RecordLastPrice(pair string, price float64) {
	r.lastPrice.WithLabelValues(pair).Set(price)
}

// RecordTrainingDuration observes one training run.
func (r *Recorder) RecordTrainingDuration(seconds float64) {
	r.trainingDuration.Observe(seconds)
}

// RecordNewsItems publishes the news cache size.
func (r *Recorder) RecordNewsItems(n int) {
	r.newsItems.Set(float64(n))
}
