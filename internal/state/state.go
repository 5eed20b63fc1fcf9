package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rickgao/polymarket-mm/internal/model"
)

// PositionState is the persisted slice of one position.
type PositionState struct {
	Quantity    float64 `json:"quantity"`
	AvgCost     float64 `json:"avg_cost"`
	RealizedPnL float64 `json:"realized_pnl"`
}

// TradingState is the cross-session snapshot written to disk.
type TradingState struct {
	LastSessionID    string                           `json:"last_session_id"`
	LastUpdated      int64                            `json:"last_updated"`
	TotalTrades      int                              `json:"total_trades"`
	TotalVolume      float64                          `json:"total_volume"`
	TotalRealizedPnL float64                          `json:"total_realized_pnl"`
	Positions        map[model.TokenID]PositionState `json:"positions"`
}

// Store persists trading state as JSON, surviving restarts.
type Store struct {
	mu      sync.Mutex
	path    string
	logger  *slog.Logger
	current TradingState
}

// NewStore creates a store writing to path. The parent directory is created
// on first save.
func NewStore(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		path:    path,
		logger:  logger,
		current: TradingState{Positions: make(map[model.TokenID]PositionState)},
	}
}

// Load reads the state file. A missing or unreadable file yields a fresh
// state, never an error that blocks startup.
func (s *Store) Load() TradingState {
	s.mu.Lock()
	defer s.mu.Unlock()

	fresh := TradingState{Positions: make(map[model.TokenID]PositionState)}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Info("no previous state file, starting fresh", "path", s.path)
		} else {
			s.logger.Error("failed to read state file, starting fresh", "path", s.path, "error", err)
		}
		s.current = fresh
		return s.copyLocked()
	}

	var st TradingState
	if err := json.Unmarshal(data, &st); err != nil {
		s.logger.Error("failed to parse state file, starting fresh", "path", s.path, "error", err)
		s.current = fresh
		return s.copyLocked()
	}
	if st.Positions == nil {
		st.Positions = make(map[model.TokenID]PositionState)
	}

	s.logger.Info("loaded previous state",
		"path", s.path,
		"positions", len(st.Positions),
		"total_trades", st.TotalTrades,
		"realized_pnl", st.TotalRealizedPnL,
	)

	s.current = st
	return s.copyLocked()
}

// Save writes the given state atomically (temp file then rename).
func (s *Store) Save(st TradingState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = st
	return s.saveLocked()
}

// Flush writes the current in-memory state to disk.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

// UpdatePosition mutates one position in the in-memory state.
func (s *Store) UpdatePosition(token model.TokenID, pos PositionState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current.Positions[token] = pos
	s.current.LastUpdated = time.Now().Unix()
}

// UpdateGlobalStats mutates the aggregate counters in the in-memory state.
func (s *Store) UpdateGlobalStats(totalTrades int, totalVolume, totalRealizedPnL float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current.TotalTrades = totalTrades
	s.current.TotalVolume = totalVolume
	s.current.TotalRealizedPnL = totalRealizedPnL
	s.current.LastUpdated = time.Now().Unix()
}

// SetSessionID records the session that owns the current state.
func (s *Store) SetSessionID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current.LastSessionID = id
}

// Current returns a copy of the in-memory state.
func (s *Store) Current() TradingState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLocked()
}

func (s *Store) copyLocked() TradingState {
	st := s.current
	st.Positions = make(map[model.TokenID]PositionState, len(s.current.Positions))
	for token, pos := range s.current.Positions {
		st.Positions[token] = pos
	}
	return st
}

func (s *Store) saveLocked() error {
	if s.current.LastUpdated == 0 {
		s.current.LastUpdated = time.Now().Unix()
	}

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}

	data, err := json.MarshalIndent(s.current, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write state temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("rename state file: %w", err)
	}

	s.logger.Debug("state saved",
		"path", s.path,
		"positions", len(s.current.Positions),
		"total_trades", s.current.TotalTrades,
	)
	return nil
}
