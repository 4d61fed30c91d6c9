package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"crypto-predictor/internal/market"
	"crypto-predictor/internal/metrics"
	"crypto-predictor/internal/news"
	"crypto-predictor/internal/scheduler"
	"crypto-predictor/internal/sim"
	"crypto-predictor/internal/store"
	"crypto-predictor/internal/types"
)

// One recorder for the whole test binary; prometheus rejects duplicate
// registration.
var testRecorder = metrics.New()

type testEnv struct {
	store  *store.Store
	market *market.Service
	sims   *sim.Manager
	srv    *Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	t.Setenv("PREDICTOR_LOG_DIR", t.TempDir())

	st, err := store.Open(filepath.Join(t.TempDir(), "state.json"), nil)
	if err != nil {
		t.Fatal(err)
	}
	mkt := market.NewService(market.ServiceConfig{
		Pair:     "BTSUSDT",
		Interval: time.Minute,
		KlineStr: "1m",
	})
	nws := news.NewService(nil, "", 10)
	sims := sim.NewManager(st)
	sched := scheduler.New(st, mkt, nws, sims, testRecorder, "BTSUSDT", 30*time.Second)
	handler := NewHandler(st, sched, mkt, nws, sims, "BTSUSDT")
	srv := New(handler, WithPort(0))
	return &testEnv{store: st, market: mkt, sims: sims, srv: srv}
}

func (e *testEnv) do(method, target string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.srv.Echo().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) fillBuffer(n int) {
	for i := 0; i < n; i++ {
		price := 100.0 + float64(i)
		e.market.Buffer().Append(types.Candle{
			OpenTime:  int64(i) * 60_000,
			Open:      price - 1,
			High:      price,
			Low:       price - 1,
			Close:     price,
			Volume:    100,
			CloseTime: int64(i)*60_000 + 59_999,
			Source:    types.SourceRest,
		})
	}
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	var env APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("Invalid response envelope: %v", err)
	}
	raw, err := json.Marshal(env.Data)
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		t.Fatalf("Cannot decode data payload: %v", err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/api/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var body struct {
		Status  string `json:"status"`
		Pair    string `json:"pair"`
		Candles int    `json:"candles"`
	}
	decodeData(t, rec, &body)
	if body.Status != "ok" || body.Pair != "BTSUSDT" {
		t.Errorf("Unexpected health payload: %+v", body)
	}
}

func TestPredictionEndpointComputesOnDemand(t *testing.T) {
	env := newTestEnv(t)
	env.fillBuffer(40)

	rec := env.do(http.MethodGet, "/api/prediction", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var pred types.Prediction
	decodeData(t, rec, &pred)
	if pred.Trend != types.TrendUp {
		t.Errorf("Expected UP on a clean uptrend, got %s", pred.Trend)
	}
	if pred.Probability.Up+pred.Probability.Down != 100.0 {
		t.Error("Probabilities must sum to 100")
	}
}

func TestPredictionEndpointNoData(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/api/prediction", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 with an empty buffer, got %d", rec.Code)
	}
}

func TestConfigPartialUpdate(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodPost, "/api/config", `{"analysisIntervalSec": 120}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var cfg store.StateConfig
	decodeData(t, rec, &cfg)
	if cfg.AnalysisIntervalSec != 120 {
		t.Errorf("Expected analysis interval updated to 120, got %d", cfg.AnalysisIntervalSec)
	}
	if cfg.SimulationIntervalSec != 300 {
		t.Errorf("Absent fields must keep their values, got %d", cfg.SimulationIntervalSec)
	}
}

func TestConfigRejectsOutOfRange(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodPost, "/api/config", `{"analysisIntervalSec": 1}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for an interval below the minimum, got %d", rec.Code)
	}
}

func TestSimulationsPaging(t *testing.T) {
	env := newTestEnv(t)
	env.store.Update(func(s *store.ServerState) {
		for i := 0; i < 5; i++ {
			s.Simulations = append(s.Simulations, types.Simulation{
				ID:        "sim-" + string(rune('a'+i)),
				EntryTime: int64(i),
				Closed:    true,
			})
		}
	})

	rec := env.do(http.MethodGet, "/api/simulations?limit=2&offset=1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var page struct {
		Rows  []types.Simulation `json:"rows"`
		Total int                `json:"total"`
	}
	decodeData(t, rec, &page)
	if page.Total != 5 {
		t.Errorf("Expected total 5, got %d", page.Total)
	}
	if len(page.Rows) != 2 || page.Rows[0].ID != "sim-d" || page.Rows[1].ID != "sim-c" {
		t.Errorf("Expected newest-first paging, got %+v", page.Rows)
	}
}

func TestClearSimulations(t *testing.T) {
	env := newTestEnv(t)
	env.store.Update(func(s *store.ServerState) {
		s.Simulations = append(s.Simulations,
			types.Simulation{ID: "x", Closed: true},
			types.Simulation{ID: "y", Closed: false},
		)
		s.LearningErrors = append(s.LearningErrors, types.LearningError{Predicted: types.TrendUp})
	})

	rec := env.do(http.MethodDelete, "/api/simulations", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	env.store.View(func(s *store.ServerState) {
		if len(s.Simulations) != 1 || s.Simulations[0].ID != "y" {
			t.Errorf("Expected only the open simulation kept, got %d", len(s.Simulations))
		}
		if len(s.LearningErrors) != 1 {
			t.Error("Expected the learning log preserved")
		}
	})
}

func TestLearningNewestFirst(t *testing.T) {
	env := newTestEnv(t)
	env.store.Update(func(s *store.ServerState) {
		s.LearningErrors = append(s.LearningErrors,
			types.LearningError{Timestamp: 1, Note: "oldest"},
			types.LearningError{Timestamp: 2, Note: "middle"},
			types.LearningError{Timestamp: 3, Note: "newest"},
		)
	})

	rec := env.do(http.MethodGet, "/api/learning?limit=2", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var out []types.LearningError
	decodeData(t, rec, &out)
	if len(out) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(out))
	}
	if out[0].Note != "newest" || out[1].Note != "middle" {
		t.Errorf("Expected newest-first order, got %q then %q", out[0].Note, out[1].Note)
	}
}

func TestEvaluateNoOpenSimulation(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodPost, "/api/evaluate", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 with no open simulation, got %d", rec.Code)
	}
}

func TestEvaluateClosesOpenSimulation(t *testing.T) {
	env := newTestEnv(t)
	env.fillBuffer(40)

	_, err := env.sims.Open(context.Background(), &types.Prediction{
		Trend: types.TrendUp,
		Price: 100,
	}, "manual", time.Now())
	if err != nil {
		t.Fatal(err)
	}

	rec := env.do(http.MethodPost, "/api/evaluate", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var closed types.Simulation
	decodeData(t, rec, &closed)
	if !closed.Closed {
		t.Error("Expected the simulation closed")
	}
	// Buffer tops out at 139, entered at 100: a 39% oriented gain.
	if !closed.Success {
		t.Error("Expected a winning close at the higher market price")
	}
}

func TestBacktestRequiresHistory(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodPost, "/api/backtest", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 with no candle history, got %d", rec.Code)
	}
}

func TestBacktestRuns(t *testing.T) {
	env := newTestEnv(t)
	env.fillBuffer(120)

	rec := env.do(http.MethodPost, "/api/backtest?n=100", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Candles int `json:"candles"`
		Result  struct {
			Trades int `json:"trades"`
		} `json:"result"`
	}
	decodeData(t, rec, &body)
	if body.Candles != 100 {
		t.Errorf("Expected 100 candles replayed, got %d", body.Candles)
	}
	if body.Result.Trades == 0 {
		t.Error("Expected trades on a trending series")
	}
}

func TestCandlesEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.fillBuffer(10)

	rec := env.do(http.MethodGet, "/api/candles?n=5", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var body struct {
		Candles []types.Candle `json:"candles"`
	}
	decodeData(t, rec, &body)
	if len(body.Candles) != 5 {
		t.Errorf("Expected 5 candles, got %d", len(body.Candles))
	}

	rec = env.do(http.MethodGet, "/api/candles?n=0", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for n=0, got %d", rec.Code)
	}
}

func TestMetricsEndpointMounted(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Errorf("Expected the Prometheus endpoint mounted, got %d", rec.Code)
	}
}

func TestStatsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.store.Update(func(s *store.ServerState) {
		s.Simulations = append(s.Simulations,
			types.Simulation{ID: "a", Closed: true, Success: true},
			types.Simulation{ID: "b", Closed: true, Success: false},
		)
	})

	rec := env.do(http.MethodGet, "/api/stats", "")
	var st store.Stats
	decodeData(t, rec, &st)
	if st.Total != 2 || st.Wins != 1 {
		t.Errorf("Unexpected stats: %+v", st)
	}
}
