package server

import (
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"crypto-predictor/internal/market"
	"crypto-predictor/internal/news"
	"crypto-predictor/internal/predictor"
	"crypto-predictor/internal/scheduler"
	"crypto-predictor/internal/sim"
	"crypto-predictor/internal/simlog"
	"crypto-predictor/internal/store"
	"crypto-predictor/internal/trainer"
	"crypto-predictor/internal/types"
)

var validate = validator.New()

// Handler serves the prediction API.
type Handler struct {
	store   *store.Store
	sched   *scheduler.Scheduler
	market  *market.Service
	news    *news.Service
	sims    *sim.Manager
	pair    string
	started time.Time
}

// NewHandler wires the API handler over the shared services.
func NewHandler(st *store.Store, sched *scheduler.Scheduler, mkt *market.Service, nws *news.Service, sims *sim.Manager, pair string) *Handler {
	return &Handler{
		store:   st,
		sched:   sched,
		market:  mkt,
		news:    nws,
		sims:    sims,
		pair:    pair,
		started: time.Now(),
	}
}

// RegisterRoutes mounts every endpoint under /api.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/health", h.Health)
	g.GET("/state", h.State)
	g.GET("/prediction", h.Prediction)
	g.GET("/simulations", h.Simulations)
	g.DELETE("/simulations", h.ClearSimulations)
	g.GET("/learning", h.Learning)
	g.GET("/stats", h.Stats)
	g.GET("/news", h.News)
	g.GET("/candles", h.Candles)
	g.GET("/report", h.Report)
	g.POST("/config", h.UpdateConfig)
	g.POST("/train", h.Train)
	g.POST("/backtest", h.Backtest)
	g.POST("/evaluate", h.Evaluate)
}

// Health reports liveness plus the data-quality signals a dashboard needs.
func (h *Handler) Health(c echo.Context) error {
	type health struct {
		Status        string             `json:"status"`
		Pair          string             `json:"pair"`
		UptimeSec     int64              `json:"uptimeSec"`
		Candles       int                `json:"candles"`
		DataSource    types.CandleSource `json:"dataSource"`
		NewsFresh     bool               `json:"newsFresh"`
		NewsAgeSec    int64              `json:"newsAgeSec"`
		OpenSim       bool               `json:"openSimulation"`
		RecentWinRate float64            `json:"recentWinRate"`
	}
	now := time.Now()
	res := health{
		Status:     "ok",
		Pair:       h.pair,
		UptimeSec:  int64(time.Since(h.started).Seconds()),
		Candles:    h.market.Buffer().Len(),
		DataSource: h.market.Source(),
		NewsFresh:  h.news.Fresh(now),
		NewsAgeSec: -1,
	}
	if _, at := h.news.Cached(); !at.IsZero() {
		res.NewsAgeSec = int64(now.Sub(at).Seconds())
	}
	h.store.View(func(s *store.ServerState) {
		res.OpenSim = s.OpenSimulation() != nil
		res.RecentWinRate = s.ComputeStats().RecentWinRate
	})
	return SuccessResponse(c, res)
}

// State returns a full snapshot of the persisted state.
func (h *Handler) State(c echo.Context) error {
	var snap store.ServerState
	h.store.View(func(s *store.ServerState) { snap = *s })
	return SuccessResponse(c, snap)
}

// Prediction returns the pending prediction, computing one on demand when
// no analysis pass has run yet.
func (h *Handler) Prediction(c echo.Context) error {
	var pending *types.Prediction
	h.store.View(func(s *store.ServerState) { pending = s.Pending })
	if pending != nil {
		return SuccessResponse(c, pending)
	}

	pred, err := h.sched.Analyze(c.Request().Context())
	if err != nil {
		if errors.Is(err, predictor.ErrInsufficientCandles) {
			return UnavailableResponse(c, "not enough market data yet")
		}
		return InternalErrorResponse(c)
	}
	return SuccessResponse(c, pred)
}

// Simulations lists simulations newest first with limit/offset paging.
func (h *Handler) Simulations(c echo.Context) error {
	limit := queryInt(c, "limit", 50)
	offset := queryInt(c, "offset", 0)
	if limit <= 0 || limit > 500 || offset < 0 {
		return BadRequestResponse(c, "limit must be 1..500 and offset >= 0")
	}

	type page struct {
		Rows  []types.Simulation `json:"rows"`
		Total int                `json:"total"`
	}
	res := page{Rows: []types.Simulation{}}
	h.store.View(func(s *store.ServerState) {
		res.Total = len(s.Simulations)
		for i := len(s.Simulations) - 1 - offset; i >= 0 && len(res.Rows) < limit; i-- {
			res.Rows = append(res.Rows, s.Simulations[i])
		}
	})
	return SuccessResponse(c, res)
}

// ClearSimulations deletes closed simulations. The learning log and any
// open position are preserved.
func (h *Handler) ClearSimulations(c echo.Context) error {
	removed := 0
	h.store.Update(func(s *store.ServerState) {
		kept := s.Simulations[:0]
		for _, sim := range s.Simulations {
			if sim.Closed {
				removed++
				continue
			}
			kept = append(kept, sim)
		}
		s.Simulations = append([]types.Simulation{}, kept...)
	})
	return SuccessResponse(c, map[string]int{"removed": removed})
}

// Learning returns the most recent learning log entries, newest first.
func (h *Handler) Learning(c echo.Context) error {
	limit := queryInt(c, "limit", 50)
	if limit <= 0 || limit > 1000 {
		return BadRequestResponse(c, "limit must be 1..1000")
	}
	out := []types.LearningError{}
	h.store.View(func(s *store.ServerState) {
		for i := len(s.LearningErrors) - 1; i >= 0 && len(out) < limit; i-- {
			out = append(out, s.LearningErrors[i])
		}
	})
	return SuccessResponse(c, out)
}

// Stats returns aggregate win/loss numbers over closed simulations.
func (h *Handler) Stats(c echo.Context) error {
	var st store.Stats
	h.store.View(func(s *store.ServerState) { st = s.ComputeStats() })
	return SuccessResponse(c, st)
}

// News returns cached headlines; ?refresh=true forces a fetch first.
func (h *Handler) News(c echo.Context) error {
	force := c.QueryParam("refresh") == "true"
	var items []types.NewsItem
	var updatedAt time.Time
	if force {
		items = h.sched.RefreshNews(c.Request().Context(), true)
		_, updatedAt = h.news.Cached()
	} else {
		items, updatedAt = h.news.Cached()
	}
	impact := news.Impact(items, time.Now())
	return SuccessResponse(c, map[string]interface{}{
		"items":     items,
		"updatedAt": updatedAt.UnixMilli(),
		"impact":    impact,
	})
}

// Candles returns the newest n buffered candles.
func (h *Handler) Candles(c echo.Context) error {
	n := queryInt(c, "n", 100)
	if n <= 0 || n > 2000 {
		return BadRequestResponse(c, "n must be 1..2000")
	}
	return SuccessResponse(c, map[string]interface{}{
		"pair":    h.pair,
		"source":  h.market.Source(),
		"candles": h.market.Buffer().Window(n),
	})
}

// Report generates today's per-trend CSV summary from the simulation log.
func (h *Handler) Report(c echo.Context) error {
	path, err := simlog.SummarizeToday()
	if err != nil {
		return InternalErrorResponse(c)
	}
	if path == "" {
		return NotFoundResponse(c, "no closed simulations logged today")
	}
	return SuccessResponse(c, map[string]string{"file": path})
}

// ConfigRequest is a partial update: absent fields keep their value.
type ConfigRequest struct {
	AnalysisIntervalSec   *int `json:"analysisIntervalSec" validate:"omitempty,min=5,max=86400"`
	SimulationIntervalSec *int `json:"simulationIntervalSec" validate:"omitempty,min=10,max=86400"`
	NewsRefreshSec        *int `json:"newsRefreshSec" validate:"omitempty,min=60,max=604800"`
}

// UpdateConfig merges a partial config update; new intervals apply from the
// next timer cycle.
func (h *Handler) UpdateConfig(c echo.Context) error {
	req := new(ConfigRequest)
	if err := c.Bind(req); err != nil {
		return BadRequestResponse(c, "invalid JSON body")
	}
	if err := validate.Struct(req); err != nil {
		return BadRequestResponse(c, err.Error())
	}

	var cfg store.StateConfig
	h.store.Update(func(s *store.ServerState) {
		if req.AnalysisIntervalSec != nil {
			s.Config.AnalysisIntervalSec = *req.AnalysisIntervalSec
		}
		if req.SimulationIntervalSec != nil {
			s.Config.SimulationIntervalSec = *req.SimulationIntervalSec
		}
		if req.NewsRefreshSec != nil {
			s.Config.NewsRefreshSec = *req.NewsRefreshSec
		}
		cfg = s.Config
	})
	return SuccessResponse(c, cfg)
}

// Train runs one grid-search training pass synchronously.
func (h *Handler) Train(c echo.Context) error {
	report, err := h.sched.TrainNow(c.Request().Context())
	switch {
	case errors.Is(err, scheduler.ErrTrainingBusy):
		return ConflictResponse(c, "training already in progress")
	case errors.Is(err, trainer.ErrInsufficientHistory):
		return BadRequestResponse(c, "not enough candle history to train")
	case err != nil:
		return InternalErrorResponse(c)
	}
	return SuccessResponse(c, report)
}

// Backtest replays the current model over the newest n candles without
// touching any state.
func (h *Handler) Backtest(c echo.Context) error {
	n := queryInt(c, "n", 0)
	if n < 0 || n > 2000 {
		return BadRequestResponse(c, "n must be 0..2000")
	}
	candles := h.market.Buffer().Window(n)
	if len(candles) <= predictor.MinCandles {
		return BadRequestResponse(c, "not enough candle history to backtest")
	}

	var model types.Model
	h.store.View(func(s *store.ServerState) { model = s.Model })
	res := trainer.Backtest(model, candles)
	return SuccessResponse(c, map[string]interface{}{
		"model":   model,
		"candles": len(candles),
		"result":  res,
	})
}

// Evaluate closes the most recent open simulation immediately at the
// current price.
func (h *Handler) Evaluate(c echo.Context) error {
	exitPrice := 0.0
	if last, ok := h.market.Buffer().Last(); ok {
		exitPrice = last.Close
	}
	closed, err := h.sims.CloseLatest(c.Request().Context(), exitPrice, h.market.Synth().PerturbPrice, time.Now())
	if err != nil {
		if errors.Is(err, sim.ErrNoOpen) {
			return NotFoundResponse(c, "no open simulation")
		}
		return InternalErrorResponse(c)
	}
	return SuccessResponse(c, closed)
}

func queryInt(c echo.Context, name string, def int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return -1
	}
	return v
}
