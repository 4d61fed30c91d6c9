package store

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"crypto-predictor/internal/types"
)

func TestOpenCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	st, err := Open(path, nil)
	if err != nil {
		t.Fatal(err)
	}

	st.View(func(s *ServerState) {
		if s.Model != types.DefaultModel() {
			t.Error("Expected default model on first open")
		}
		if s.Config.AnalysisIntervalSec != 60 {
			t.Errorf("Expected default analysis interval 60, got %d", s.Config.AnalysisIntervalSec)
		}
		if s.Simulations == nil || s.LearningErrors == nil || s.News == nil {
			t.Error("Expected slices initialized, not nil")
		}
	})

	if _, err := os.Stat(path); err != nil {
		t.Error("Expected defaults persisted to disk immediately")
	}
}

func TestOpenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	st, err := Open(path, nil)
	if err != nil {
		t.Fatal(err)
	}

	st.Update(func(s *ServerState) {
		s.Model.RSI = 0.7
		s.Simulations = append(s.Simulations, types.Simulation{ID: "sim-1", Trend: types.TrendUp})
	})
	if err := st.SaveNow(); err != nil {
		t.Fatal(err)
	}

	st2, err := Open(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	st2.View(func(s *ServerState) {
		if s.Model.RSI != 0.7 {
			t.Errorf("Expected RSI weight 0.7 after reload, got %f", s.Model.RSI)
		}
		if len(s.Simulations) != 1 || s.Simulations[0].ID != "sim-1" {
			t.Error("Expected simulation to survive the round trip")
		}
	})
}

func TestOpenCorruptFileFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	st, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Corrupt file must not fail open: %v", err)
	}
	st.View(func(s *ServerState) {
		if s.Model != types.DefaultModel() {
			t.Error("Expected defaults after corrupt state file")
		}
	})
}

func TestDebouncedSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	st, err := Open(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	st.debounce = 50 * time.Millisecond

	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 10; i++ {
		st.Update(func(s *ServerState) { s.Model.SMA = float64(i) / 10 })
	}

	// Inside the debounce window nothing should have hit the disk yet.
	after, _ := os.ReadFile(path)
	if string(after) != string(before) {
		t.Error("Expected writes coalesced within the debounce window")
	}

	time.Sleep(200 * time.Millisecond)
	after, err = os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(after) == string(before) {
		t.Error("Expected debounced flush to persist the update")
	}
}

func TestConcurrentSavesKeepStateFileIntact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	st, err := Open(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	st.debounce = time.Millisecond

	// Debounced flushes and synchronous saves racing over the same temp
	// file must never leave a truncated or mixed state file behind.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				st.Update(func(s *ServerState) { s.Model.SMA = float64(j) / 20 })
				if err := st.SaveNow(); err != nil {
					t.Error(err)
				}
			}
		}(i)
	}
	wg.Wait()
	time.Sleep(50 * time.Millisecond)

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var s ServerState
	if err := json.Unmarshal(b, &s); err != nil {
		t.Fatalf("Expected a parseable state file after concurrent saves: %v", err)
	}
}

func TestNormalizeRepairsState(t *testing.T) {
	s := &ServerState{}
	normalize(s, nil)
	if s.Simulations == nil || s.LearningErrors == nil || s.News == nil {
		t.Error("Expected nil slices repaired")
	}
	if s.Config.AnalysisIntervalSec <= 0 || s.Config.SimulationIntervalSec <= 0 {
		t.Error("Expected zero intervals repaired")
	}
	if s.Model != types.DefaultModel() {
		t.Error("Expected zero model replaced with defaults")
	}
}

func TestComputeStats(t *testing.T) {
	s := &ServerState{
		Simulations: []types.Simulation{
			{ID: "a", Closed: true, Success: true, ProfitPct: 4.0},
			{ID: "b", Closed: true, Success: true, ProfitPct: 1.5},
			{ID: "c", Closed: true, Success: false, ProfitPct: -2.5},
			{ID: "d", Closed: false},
		},
	}
	st := s.ComputeStats()
	if st.Total != 3 {
		t.Errorf("Expected 3 closed simulations counted, got %d", st.Total)
	}
	if st.Wins != 2 || st.Losses != 1 {
		t.Errorf("Expected 2 wins and 1 loss, got %d/%d", st.Wins, st.Losses)
	}
	if st.Best == nil || st.Best.ID != "a" {
		t.Error("Expected best simulation a")
	}
	if st.Worst == nil || st.Worst.ID != "c" {
		t.Error("Expected worst simulation c")
	}
	if st.RecentCount != 3 {
		t.Errorf("Expected 3 recent closes, got %d", st.RecentCount)
	}
	if math.Abs(st.RecentWinRate-st.WinRate) > 1e-9 {
		t.Errorf("Expected recent win rate to match overall with few closes, got %v vs %v", st.RecentWinRate, st.WinRate)
	}
	if math.Abs(st.TotalProfit-3.0) > 1e-9 {
		t.Errorf("Expected total profit 3.0, got %v", st.TotalProfit)
	}
}

func TestLoadAppConfigDefaults(t *testing.T) {
	cfg, err := LoadAppConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Pair != "BTSUSDT" {
		t.Errorf("Expected default pair BTSUSDT, got %s", cfg.Pair)
	}
	if cfg.Feed.Limit != 500 {
		t.Errorf("Expected default kline limit 500, got %d", cfg.Feed.Limit)
	}
	if len(cfg.News.Feeds) == 0 {
		t.Error("Expected default news feeds")
	}
	if cfg.Intervals.CloseSeconds != 30 {
		t.Errorf("Expected default close tick 30s, got %d", cfg.Intervals.CloseSeconds)
	}
}

func TestLoadAppConfigOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "pair: TESTUSDT\nhttp:\n  port: 9999\nintervals:\n  analysis_seconds: 15\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadAppConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Pair != "TESTUSDT" {
		t.Errorf("Expected pair override, got %s", cfg.Pair)
	}
	if cfg.HTTP.Port != 9999 {
		t.Errorf("Expected port override, got %d", cfg.HTTP.Port)
	}
	if cfg.Intervals.AnalysisSeconds != 15 {
		t.Errorf("Expected analysis interval override, got %d", cfg.Intervals.AnalysisSeconds)
	}
	if cfg.Feed.RESTURL == "" {
		t.Error("Expected defaults to fill unset fields")
	}
}
