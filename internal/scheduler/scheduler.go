package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"crypto-predictor/internal/logger"
	"crypto-predictor/internal/market"
	"crypto-predictor/internal/metrics"
	"crypto-predictor/internal/news"
	"crypto-predictor/internal/predictor"
	"crypto-predictor/internal/sim"
	"crypto-predictor/internal/store"
	"crypto-predictor/internal/trainer"
	"crypto-predictor/internal/types"
)

// ErrTrainingBusy is returned when a training run is already in flight.
var ErrTrainingBusy = errors.New("training already in progress")

// Scheduler drives the three periodic tasks: the analysis pass, the
// simulation close sweep, and the news refresh. Each timer re-reads its
// interval from the state config on every cycle, so runtime config changes
// take effect on the next tick without a restart.
type Scheduler struct {
	store  *store.Store
	market *market.Service
	news   *news.Service
	sims   *sim.Manager
	rec    *metrics.Recorder

	pair      string
	closeTick time.Duration
	training  atomic.Bool
}

// New wires the scheduler over the shared services.
func New(st *store.Store, mkt *market.Service, nws *news.Service, sims *sim.Manager, rec *metrics.Recorder, pair string, closeTick time.Duration) *Scheduler {
	if closeTick <= 0 {
		closeTick = 30 * time.Second
	}
	return &Scheduler{
		store:     st,
		market:    mkt,
		news:      nws,
		sims:      sims,
		rec:       rec,
		pair:      pair,
		closeTick: closeTick,
	}
}

func (s *Scheduler) intervals() (analysis, hold, newsRefresh time.Duration) {
	s.store.View(func(st *store.ServerState) {
		analysis = time.Duration(st.Config.AnalysisIntervalSec) * time.Second
		hold = time.Duration(st.Config.SimulationIntervalSec) * time.Second
		newsRefresh = time.Duration(st.Config.NewsRefreshSec) * time.Second
	})
	if analysis <= 0 {
		analysis = time.Minute
	}
	if hold <= 0 {
		hold = 5 * time.Minute
	}
	if newsRefresh <= 0 {
		newsRefresh = time.Hour
	}
	return analysis, hold, newsRefresh
}

// Run blocks until ctx is cancelled, then flushes the state a final time.
// The tasks run independently; a failure in one never stops the others.
func (s *Scheduler) Run(ctx context.Context) {
	analysis, _, newsRefresh := s.intervals()
	analysisTimer := time.NewTimer(analysis)
	closeTimer := time.NewTimer(s.closeTick)
	newsTimer := time.NewTimer(newsRefresh)
	defer analysisTimer.Stop()
	defer closeTimer.Stop()
	defer newsTimer.Stop()

	// Prime the pipeline so the first request doesn't wait a full tick.
	s.runTask(ctx, "news", func() { s.newsPass(ctx, false) })
	s.runTask(ctx, "analysis", func() { s.analysisPass(ctx) })

	for {
		select {
		case <-ctx.Done():
			if err := s.store.SaveNow(); err != nil {
				logger.ErrorWithErr(ctx, "Final state save failed", err)
			}
			return
		case <-analysisTimer.C:
			s.runTask(ctx, "analysis", func() { s.analysisPass(ctx) })
			next, _, _ := s.intervals()
			analysisTimer.Reset(next)
		case <-closeTimer.C:
			s.runTask(ctx, "close", func() { s.closePass(ctx) })
			closeTimer.Reset(s.closeTick)
		case <-newsTimer.C:
			s.runTask(ctx, "news", func() { s.newsPass(ctx, false) })
			_, _, next := s.intervals()
			newsTimer.Reset(next)
		}
	}
}

// runTask guards a pass against panics so one bad tick cannot take the
// loop down.
func (s *Scheduler) runTask(ctx context.Context, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "Scheduler task panicked", "task", name, "panic", r)
		}
	}()
	s.rec.RecordTick(name)
	fn()
}

// analysisPass refreshes market data, produces a prediction, stores it as
// pending, and opens a simulation when the call is directional and no
// position is in flight.
func (s *Scheduler) analysisPass(ctx context.Context) {
	if err := s.market.Refresh(ctx); err != nil {
		s.rec.RecordFeedError("klines")
	}

	pred, err := s.Analyze(ctx)
	if err != nil {
		logger.Warn(ctx, "Analysis skipped", "error", err)
		return
	}

	if pred.Trend == types.TrendNeutral {
		return
	}
	_, err = s.sims.Open(ctx, pred, "auto", time.Now())
	if err != nil && !errors.Is(err, sim.ErrOpenExists) {
		logger.Warn(ctx, "Could not open simulation", "error", err)
	}
}

// Analyze runs one prediction over the current buffer and news impact and
// stores it as the pending prediction. The request interface shares this
// path with the analysis timer.
func (s *Scheduler) Analyze(ctx context.Context) (*types.Prediction, error) {
	candles := s.market.Buffer().Window(0)
	items, _ := s.news.Cached()
	impact := news.Impact(items, time.Now())

	var model types.Model
	s.store.View(func(st *store.ServerState) { model = st.Model })

	pred, err := predictor.Predict(model, candles, impact, s.market.Source(), time.Now())
	if err != nil {
		return nil, err
	}

	s.store.Update(func(st *store.ServerState) { st.Pending = pred })
	s.rec.RecordPrediction(pred.Probability.Up, pred.Confidence)
	s.rec.RecordLastPrice(s.pair, pred.Price)
	logger.Prediction(ctx, string(pred.Trend), pred.Confidence, pred.Probability.Up, pred.Price,
		"source", string(pred.DataSource))
	return pred, nil
}

// closePass closes simulations whose holding period elapsed and retrains
// the model in the background when any did.
func (s *Scheduler) closePass(ctx context.Context) {
	_, hold, _ := s.intervals()

	exitPrice := 0.0
	if last, ok := s.market.Buffer().Last(); ok {
		exitPrice = last.Close
	}

	closed := s.sims.CloseExpired(ctx, hold, exitPrice, s.market.Synth().PerturbPrice, time.Now())
	if len(closed) == 0 {
		return
	}
	for _, c := range closed {
		s.rec.RecordSimulationClosed(c.Success)
	}

	go func() {
		if _, err := s.TrainNow(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, ErrTrainingBusy) {
			logger.Warn(ctx, "Post-close training skipped", "error", err)
		}
	}()
}

// TrainNow runs one grid-search training pass over the buffered candles and
// installs the resulting model. At most one run executes at a time.
func (s *Scheduler) TrainNow(ctx context.Context) (trainer.TrainReport, error) {
	if !s.training.CompareAndSwap(false, true) {
		return trainer.TrainReport{}, ErrTrainingBusy
	}
	defer s.training.Store(false)

	var base types.Model
	s.store.View(func(st *store.ServerState) { base = st.Model })

	candles := s.market.Buffer().Window(0)
	started := time.Now()
	report, err := trainer.Train(base, candles, time.Now())
	report.Elapsed = time.Since(started)
	s.rec.RecordTrainingDuration(report.Elapsed.Seconds())
	if err != nil {
		return report, err
	}

	s.store.Update(func(st *store.ServerState) { st.Model = report.Model })
	logger.Training(ctx, report.Best.Winrate, report.Best.AvgReturn, report.Best.Composite(),
		report.Candidates, "improved", report.Improved, "elapsed_ms", report.Elapsed.Milliseconds())
	return report, nil
}

// newsPass refreshes headlines and mirrors the result into the state.
func (s *Scheduler) newsPass(ctx context.Context, force bool) {
	items, err := s.news.Refresh(ctx, force)
	if err != nil {
		s.rec.RecordFeedError("news")
		logger.Warn(ctx, "News refresh failed", "error", err)
		return
	}
	s.rec.RecordNewsItems(len(items))
	s.store.Update(func(st *store.ServerState) {
		st.News = items
		st.NewsUpdatedAt = time.Now().UnixMilli()
	})
}

// RefreshNews is the request-interface hook for a forced refresh.
func (s *Scheduler) RefreshNews(ctx context.Context, force bool) []types.NewsItem {
	s.newsPass(ctx, force)
	items, _ := s.news.Cached()
	return items
}
