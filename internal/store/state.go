package store

import (
	"crypto-predictor/internal/types"
)

// StateConfig is the runtime-tunable part of the state. The write endpoint
// merges partial updates into it.
type StateConfig struct {
	AnalysisIntervalSec   int `json:"analysisIntervalSec"`
	SimulationIntervalSec int `json:"simulationIntervalSec"` // holding period before close
	NewsRefreshSec        int `json:"newsRefreshSec"`
}

// ServerState is the aggregate root: everything the process persists lives
// here. A single instance is shared by every component and flushed through
// the debounced writer.
type ServerState struct {
	Config         StateConfig           `json:"config"`
	Model          types.Model           `json:"model"`
	Pending        *types.Prediction     `json:"pending,omitempty"`
	Simulations    []types.Simulation    `json:"simulations"`
	LearningErrors []types.LearningError `json:"learningErrors"`
	News           []types.NewsItem      `json:"news"`
	NewsUpdatedAt  int64                 `json:"newsUpdatedAt,omitempty"`
}

// DefaultState builds the state used when no persisted file exists or the
// file cannot be parsed.
func DefaultState(cfg *AppConfig) *ServerState {
	s := &ServerState{
		Model:          types.DefaultModel(),
		Simulations:    []types.Simulation{},
		LearningErrors: []types.LearningError{},
		News:           []types.NewsItem{},
	}
	s.Config = StateConfig{
		AnalysisIntervalSec:   60,
		SimulationIntervalSec: 300,
		NewsRefreshSec:        3600,
	}
	if cfg != nil {
		s.Config.AnalysisIntervalSec = cfg.Intervals.AnalysisSeconds
		s.Config.SimulationIntervalSec = cfg.Intervals.SimulationSeconds
		s.Config.NewsRefreshSec = cfg.Intervals.NewsSeconds
	}
	return s
}

// OpenSimulation returns the single open simulation, if any.
func (s *ServerState) OpenSimulation() *types.Simulation {
	for i := range s.Simulations {
		if !s.Simulations[i].Closed {
			return &s.Simulations[i]
		}
	}
	return nil
}

// recentWindow is how many of the latest closed simulations feed the
// recent win rate.
const recentWindow = 10

// Stats are the aggregate win/loss numbers over closed simulations, plus
// the best and worst closes and a recent-performance slice.
type Stats struct {
	Total         int               `json:"total"`
	Wins          int               `json:"wins"`
	Losses        int               `json:"losses"`
	WinRate       float64           `json:"winRate"`
	TotalProfit   float64           `json:"totalProfitPct"`
	Best          *types.Simulation `json:"best,omitempty"`
	Worst         *types.Simulation `json:"worst,omitempty"`
	RecentWinRate float64           `json:"recentWinRate"`
	RecentCount   int               `json:"recentCount"`
}

// ComputeStats walks the simulation list and aggregates closed outcomes.
func (s *ServerState) ComputeStats() Stats {
	st := Stats{}
	closed := []*types.Simulation{}
	for i := range s.Simulations {
		sim := &s.Simulations[i]
		if !sim.Closed {
			continue
		}
		closed = append(closed, sim)
		st.Total++
		st.TotalProfit += sim.ProfitPct
		if sim.Success {
			st.Wins++
		} else {
			st.Losses++
		}
		if st.Best == nil || sim.ProfitPct > st.Best.ProfitPct {
			cp := *sim
			st.Best = &cp
		}
		if st.Worst == nil || sim.ProfitPct < st.Worst.ProfitPct {
			cp := *sim
			st.Worst = &cp
		}
	}
	if st.Total > 0 {
		st.WinRate = float64(st.Wins) / float64(st.Total) * 100.0
	}

	start := len(closed) - recentWindow
	if start < 0 {
		start = 0
	}
	recentWins := 0
	for _, sim := range closed[start:] {
		st.RecentCount++
		if sim.Success {
			recentWins++
		}
	}
	if st.RecentCount > 0 {
		st.RecentWinRate = float64(recentWins) / float64(st.RecentCount) * 100.0
	}
	return st
}
