package sim

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"crypto-predictor/internal/store"
	"crypto-predictor/internal/types"
)

func newTestManager(t *testing.T) (*Manager, *store.Store) {
	t.Helper()
	t.Setenv("PREDICTOR_LOG_DIR", t.TempDir())
	st, err := store.Open(filepath.Join(t.TempDir(), "state.json"), nil)
	if err != nil {
		t.Fatal(err)
	}
	return NewManager(st), st
}

func upPrediction(price float64) *types.Prediction {
	return &types.Prediction{
		Trend:       types.TrendUp,
		Probability: types.Probability{Up: 72.0, Down: 28.0},
		Confidence:  0.44,
		Price:       price,
	}
}

func TestOrientedReturn(t *testing.T) {
	cases := []struct {
		trend       types.Trend
		entry, exit float64
		want        float64
	}{
		{types.TrendUp, 100, 110, 0.10},
		{types.TrendUp, 100, 90, -0.10},
		{types.TrendDown, 100, 90, 0.10},
		{types.TrendDown, 100, 110, -0.10},
		{types.TrendUp, 0, 50, 0},
	}
	for _, c := range cases {
		got := OrientedReturn(c.trend, c.entry, c.exit)
		if got != c.want {
			t.Errorf("OrientedReturn(%s, %f, %f) = %f, want %f", c.trend, c.entry, c.exit, got, c.want)
		}
	}
}

func TestOpenSingleInFlight(t *testing.T) {
	m, st := newTestManager(t)
	ctx := context.Background()

	first, err := m.Open(ctx, upPrediction(100), "auto", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if first.Closed {
		t.Error("New simulation must start open")
	}
	if first.EntryPrice != 100 {
		t.Errorf("Expected entry price 100, got %f", first.EntryPrice)
	}

	_, err = m.Open(ctx, upPrediction(101), "auto", time.Now())
	if !errors.Is(err, ErrOpenExists) {
		t.Errorf("Expected ErrOpenExists while a position is open, got %v", err)
	}

	var count int
	st.View(func(s *store.ServerState) { count = len(s.Simulations) })
	if count != 1 {
		t.Errorf("Expected exactly one simulation, got %d", count)
	}
}

func TestOpenRejectsNeutral(t *testing.T) {
	m, _ := newTestManager(t)
	pred := upPrediction(100)
	pred.Trend = types.TrendNeutral
	if _, err := m.Open(context.Background(), pred, "auto", time.Now()); !errors.Is(err, ErrNeutralTrend) {
		t.Errorf("Expected ErrNeutralTrend, got %v", err)
	}
}

func TestCloseExpiredUpWin(t *testing.T) {
	m, st := newTestManager(t)
	ctx := context.Background()
	opened := time.Now().Add(-10 * time.Minute)

	if _, err := m.Open(ctx, upPrediction(100), "auto", opened); err != nil {
		t.Fatal(err)
	}

	closed := m.CloseExpired(ctx, 5*time.Minute, 110, nil, time.Now())
	if len(closed) != 1 {
		t.Fatalf("Expected one closed simulation, got %d", len(closed))
	}
	c := closed[0]
	if !c.Closed || !c.Success {
		t.Error("UP position closed higher must be a success")
	}
	if c.ProfitPct != 10.0 {
		t.Errorf("Expected +10%% profit, got %f", c.ProfitPct)
	}
	if c.ProfitAmount != 100.0 {
		t.Errorf("Expected 100 USDT on a 1000 USDT stake, got %f", c.ProfitAmount)
	}

	var learned int
	st.View(func(s *store.ServerState) { learned = len(s.LearningErrors) })
	if learned != 1 {
		t.Errorf("Expected exactly one learning entry per close, got %d", learned)
	}
}

func TestCloseExpiredDownWin(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	opened := time.Now().Add(-10 * time.Minute)

	pred := upPrediction(100)
	pred.Trend = types.TrendDown
	if _, err := m.Open(ctx, pred, "auto", opened); err != nil {
		t.Fatal(err)
	}

	closed := m.CloseExpired(ctx, 5*time.Minute, 90, nil, time.Now())
	if len(closed) != 1 {
		t.Fatal("Expected one closed simulation")
	}
	c := closed[0]
	if !c.Success || c.ProfitPct != 10.0 {
		t.Errorf("DOWN position closed lower must win +10%%, got success=%v profit=%f", c.Success, c.ProfitPct)
	}
}

func TestCloseExpiredRespectsHold(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	if _, err := m.Open(ctx, upPrediction(100), "auto", time.Now()); err != nil {
		t.Fatal(err)
	}
	closed := m.CloseExpired(ctx, 5*time.Minute, 110, nil, time.Now())
	if len(closed) != 0 {
		t.Error("A young position must not be closed before its hold elapses")
	}
}

func TestCloseExpiredPerturbFallback(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	opened := time.Now().Add(-10 * time.Minute)

	if _, err := m.Open(ctx, upPrediction(100), "auto", opened); err != nil {
		t.Fatal(err)
	}
	perturb := func(entry float64) float64 { return entry * 1.02 }
	closed := m.CloseExpired(ctx, 5*time.Minute, 0, perturb, time.Now())
	if len(closed) != 1 {
		t.Fatal("Expected one closed simulation")
	}
	if closed[0].ExitPrice != 102.0 {
		t.Errorf("Expected perturbed exit 102, got %f", closed[0].ExitPrice)
	}
}

func TestCloseLatest(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	if _, err := m.CloseLatest(ctx, 100, nil, time.Now()); !errors.Is(err, ErrNoOpen) {
		t.Errorf("Expected ErrNoOpen with nothing open, got %v", err)
	}

	if _, err := m.Open(ctx, upPrediction(100), "manual", time.Now()); err != nil {
		t.Fatal(err)
	}
	c, err := m.CloseLatest(ctx, 95, nil, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if c.Success {
		t.Error("UP position closed lower must be a loss")
	}
	if c.ProfitPct != -5.0 {
		t.Errorf("Expected -5%% profit, got %f", c.ProfitPct)
	}
}

func TestCloseLatestPerturbsMissingExit(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	if _, err := m.Open(ctx, upPrediction(100), "manual", time.Now()); err != nil {
		t.Fatal(err)
	}
	perturb := func(entry float64) float64 { return entry * 0.99 }
	c, err := m.CloseLatest(ctx, 0, perturb, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if c.ExitPrice != 99.0 {
		t.Errorf("Expected perturbed exit 99, got %f", c.ExitPrice)
	}
	if c.Success {
		t.Error("Perturbed exit below entry must record a loss")
	}
}

func TestSuccessMatchesProfitSign(t *testing.T) {
	m, st := newTestManager(t)
	ctx := context.Background()
	opened := time.Now().Add(-time.Hour)

	for _, exit := range []float64{90, 100, 110} {
		if _, err := m.Open(ctx, upPrediction(100), "auto", opened); err != nil {
			t.Fatal(err)
		}
		m.CloseExpired(ctx, time.Minute, exit, nil, time.Now())
	}

	st.View(func(s *store.ServerState) {
		for _, c := range s.Simulations {
			if !c.Closed {
				t.Fatal("Expected every simulation closed")
			}
			if c.Success != (c.ProfitPct > 0) {
				t.Errorf("Success flag must match profit sign: success=%v profit=%f", c.Success, c.ProfitPct)
			}
		}
	})
}
