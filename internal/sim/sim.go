package sim

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"crypto-predictor/internal/logger"
	"crypto-predictor/internal/simlog"
	"crypto-predictor/internal/store"
	"crypto-predictor/internal/types"
)

// stakeUSDT is the notional position size used to express profit in
// currency terms alongside the percentage.
const stakeUSDT = 1000.0

var (
	// ErrOpenExists enforces the single-in-flight invariant.
	ErrOpenExists = errors.New("an open simulation already exists")
	// ErrNoOpen is returned by an evaluate request with nothing to close.
	ErrNoOpen = errors.New("no open simulation")
	// ErrNeutralTrend rejects opening a position off a NEUTRAL call.
	ErrNeutralTrend = errors.New("neutral prediction opens no position")
)

// OrientedReturn normalizes a signed return by trend direction: a correct
// directional call always yields a positive value. Both the live closer and
// the backtester use this single definition.
func OrientedReturn(trend types.Trend, entry, exit float64) float64 {
	if entry == 0 {
		return 0
	}
	if trend == types.TrendDown {
		return (entry - exit) / entry
	}
	return (exit - entry) / entry
}

// Manager drives the OPEN -> CLOSED lifecycle of simulated positions.
type Manager struct {
	store *store.Store
	rnd   *rand.Rand
}

// NewManager creates a simulation manager over the state store.
func NewManager(st *store.Store) *Manager {
	return &Manager{
		store: st,
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (m *Manager) newID(now time.Time) string {
	return fmt.Sprintf("sim-%d-%06x", now.UnixMilli(), m.rnd.Intn(1<<24))
}

// Open creates a new OPEN simulation from a prediction. It refuses to stack
// positions: at most one simulation is open at any time.
func (m *Manager) Open(ctx context.Context, pred *types.Prediction, method string, now time.Time) (*types.Simulation, error) {
	if pred == nil || pred.Price <= 0 {
		return nil, errors.New("no usable prediction")
	}
	if pred.Trend == types.TrendNeutral {
		return nil, ErrNeutralTrend
	}

	var created *types.Simulation
	var openErr error
	m.store.Update(func(s *store.ServerState) {
		if s.OpenSimulation() != nil {
			openErr = ErrOpenExists
			return
		}
		sim := types.Simulation{
			ID:          m.newID(now),
			EntryTime:   now.UnixMilli(),
			EntryPrice:  pred.Price,
			Trend:       pred.Trend,
			Probability: pred.Probability,
			Confidence:  pred.Confidence,
			EntryMethod: method,
			Reasoning:   pred.Reasoning,
		}
		s.Simulations = append(s.Simulations, sim)
		created = &sim
	})
	if openErr != nil {
		return nil, openErr
	}
	logger.Info(ctx, "Simulation opened",
		"id", created.ID, "trend", string(created.Trend), "entry_price", created.EntryPrice, "method", method)
	return created, nil
}

// CloseExpired closes every open simulation older than hold, using exitPrice
// when positive; otherwise perturb supplies a last-resort exit from the
// entry price. Returns the closed simulations.
func (m *Manager) CloseExpired(ctx context.Context, hold time.Duration, exitPrice float64, perturb func(float64) float64, now time.Time) []types.Simulation {
	closed := []types.Simulation{}
	m.store.Update(func(s *store.ServerState) {
		for i := range s.Simulations {
			sim := &s.Simulations[i]
			if sim.Closed {
				continue
			}
			age := now.Sub(time.UnixMilli(sim.EntryTime))
			if age < hold {
				continue
			}
			exit := exitPrice
			if exit <= 0 {
				if perturb != nil {
					exit = perturb(sim.EntryPrice)
				} else {
					exit = sim.EntryPrice
				}
			}
			m.close(s, sim, exit, now, "hold period elapsed")
			closed = append(closed, *sim)
		}
	})
	for _, c := range closed {
		logger.SimulationClosed(ctx, c.ID, string(c.Trend), c.ProfitPct, c.Success)
	}
	return closed
}

// CloseLatest immediately closes the most recently opened open simulation
// (the explicit evaluate request). Like CloseExpired, perturb supplies a
// last-resort exit when no price is available.
func (m *Manager) CloseLatest(ctx context.Context, exitPrice float64, perturb func(float64) float64, now time.Time) (*types.Simulation, error) {
	var result *types.Simulation
	m.store.Update(func(s *store.ServerState) {
		var target *types.Simulation
		for i := range s.Simulations {
			sim := &s.Simulations[i]
			if sim.Closed {
				continue
			}
			if target == nil || sim.EntryTime > target.EntryTime {
				target = sim
			}
		}
		if target == nil {
			return
		}
		exit := exitPrice
		if exit <= 0 {
			if perturb != nil {
				exit = perturb(target.EntryPrice)
			} else {
				exit = target.EntryPrice
			}
		}
		m.close(s, target, exit, now, "evaluated on request")
		cp := *target
		result = &cp
	})
	if result == nil {
		return nil, ErrNoOpen
	}
	logger.SimulationClosed(ctx, result.ID, string(result.Trend), result.ProfitPct, result.Success)
	return result, nil
}

// close performs the single OPEN -> CLOSED transition: exit fields are
// populated together, the oriented return is computed once, and exactly one
// learning log entry is appended.
func (m *Manager) close(s *store.ServerState, sim *types.Simulation, exitPrice float64, now time.Time, note string) {
	ret := OrientedReturn(sim.Trend, sim.EntryPrice, exitPrice)
	sim.Closed = true
	sim.ExitTime = now.UnixMilli()
	sim.ExitPrice = exitPrice
	sim.ProfitPct = ret * 100.0
	sim.ProfitAmount = ret * stakeUSDT
	sim.Success = ret > 0

	actual := "LOSS"
	if sim.Success {
		actual = "WIN"
	}
	s.LearningErrors = append(s.LearningErrors, types.LearningError{
		Timestamp: now.UnixMilli(),
		Predicted: sim.Trend,
		Actual:    actual,
		ProfitPct: sim.ProfitPct,
		Note:      note,
	})

	_ = simlog.Append(simlog.Entry{
		ID:         sim.ID,
		Trend:      string(sim.Trend),
		EntryPrice: sim.EntryPrice,
		ExitPrice:  exitPrice,
		ProfitPct:  sim.ProfitPct,
		Success:    sim.Success,
		Reason:     note,
	})
}
