package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"crypto-predictor/internal/logger"
	"crypto-predictor/internal/types"
)

// Store owns the in-memory ServerState aggregate and its persistence.
// Mutations go through Update, which coalesces bursts into one debounced
// flush; a save already in progress re-queues the next one instead of
// interleaving two writes to the same file.
type Store struct {
	mu          sync.Mutex
	wmu         sync.Mutex // serializes every disk write to path
	path        string
	state       *ServerState
	debounce    time.Duration
	timer       *time.Timer
	saving      bool
	pendingSave bool
}

const defaultDebounce = 500 * time.Millisecond

// Open loads the persisted state from path. On absence or parse failure it
// falls back to defaults and persists them immediately so the on-disk state
// is never left undefined.
func Open(path string, cfg *AppConfig) (*Store, error) {
	st := &Store{
		path:     path,
		debounce: defaultDebounce,
	}

	b, err := os.ReadFile(path)
	if err == nil {
		var s ServerState
		if uerr := json.Unmarshal(b, &s); uerr == nil {
			normalize(&s, cfg)
			st.state = &s
			return st, nil
		} else {
			logger.Warn(context.Background(), "State file corrupt, reverting to defaults", "path", path, "error", uerr)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read state: %w", err)
	}

	st.state = DefaultState(cfg)
	if serr := st.SaveNow(); serr != nil {
		logger.Warn(context.Background(), "Failed to persist default state", "error", serr)
	}
	return st, nil
}

// normalize repairs nil slices and zero intervals after unmarshalling an
// older or hand-edited state file.
func normalize(s *ServerState, cfg *AppConfig) {
	def := DefaultState(cfg)
	if s.Simulations == nil {
		s.Simulations = def.Simulations
	}
	if s.LearningErrors == nil {
		s.LearningErrors = def.LearningErrors
	}
	if s.News == nil {
		s.News = def.News
	}
	if s.Config.AnalysisIntervalSec <= 0 {
		s.Config.AnalysisIntervalSec = def.Config.AnalysisIntervalSec
	}
	if s.Config.SimulationIntervalSec <= 0 {
		s.Config.SimulationIntervalSec = def.Config.SimulationIntervalSec
	}
	if s.Config.NewsRefreshSec <= 0 {
		s.Config.NewsRefreshSec = def.Config.NewsRefreshSec
	}
	zero := types.Model{}
	if s.Model == zero {
		s.Model = def.Model
	}
}

// View runs fn with read access to the state under the store lock.
func (s *Store) View(fn func(*ServerState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.state)
}

// Update runs fn with write access to the state and schedules a debounced
// save.
func (s *Store) Update(fn func(*ServerState)) {
	s.mu.Lock()
	fn(s.state)
	if s.timer == nil {
		s.timer = time.AfterFunc(s.debounce, s.flush)
	} else {
		s.timer.Reset(s.debounce)
	}
	s.mu.Unlock()
}

// flush is the debounce timer callback.
func (s *Store) flush() {
	s.mu.Lock()
	if s.saving {
		// A write is already on disk duty; run again once it finishes.
		s.pendingSave = true
		s.mu.Unlock()
		return
	}
	s.saving = true
	data, err := json.MarshalIndent(s.state, "", "  ")
	s.mu.Unlock()

	if err == nil {
		s.wmu.Lock()
		werr := AtomicWrite(s.path, data)
		s.wmu.Unlock()
		if werr != nil {
			logger.ErrorWithErr(context.Background(), "State save failed", werr, "path", s.path)
		}
	} else {
		logger.ErrorWithErr(context.Background(), "State marshal failed", err)
	}

	s.mu.Lock()
	s.saving = false
	rerun := s.pendingSave
	s.pendingSave = false
	if rerun {
		if s.timer == nil {
			s.timer = time.AfterFunc(s.debounce, s.flush)
		} else {
			s.timer.Reset(s.debounce)
		}
	}
	s.mu.Unlock()
}

// SaveNow performs one synchronous save. Used on shutdown and right after
// constructing defaults. It shares the write mutex with the debounced
// flush, so a shutdown save never interleaves with an in-flight one over
// the same temp file.
func (s *Store) SaveNow() error {
	s.mu.Lock()
	data, err := json.MarshalIndent(s.state, "", "  ")
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return AtomicWrite(s.path, data)
}

// AtomicWrite writes data to a temporary file and renames it over path. If
// the rename protocol fails it falls back to a direct write rather than
// losing the data.
func AtomicWrite(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err == nil {
		if rerr := os.Rename(tmp, path); rerr == nil {
			return nil
		}
		_ = os.Remove(tmp)
	}
	return os.WriteFile(path, data, 0o644)
}
