// Package position is the durable record of staged-position progress per
// symbol. The file is rewritten atomically on every mutation so a kill
// mid-write never corrupts it.
package position

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/alphahunter/monitor/internal/config"
	"github.com/alphahunter/monitor/internal/observ"
)

// Position tracks one instrument. Stage 0 means flat: cost and shares are
// zero exactly when stage is.
type Position struct {
	Symbol    string  `json:"symbol"`
	Name      string  `json:"name"`
	Stage     int     `json:"stage"`
	Cost      float64 `json:"cost"`
	Shares    float64 `json:"shares"`
	MaxProfit float64 `json:"max_profit"`
}

// Delta is a partial update; nil fields are left untouched.
type Delta struct {
	Stage     *int
	Cost      *float64
	Shares    *float64
	MaxProfit *float64
}

func (d Delta) Empty() bool {
	return d.Stage == nil && d.Cost == nil && d.Shares == nil && d.MaxProfit == nil
}

func Int(v int) *int           { return &v }
func Float(v float64) *float64 { return &v }

// FullReset returns the delta for a complete exit back to flat.
func FullReset() Delta {
	return Delta{Stage: Int(0), Cost: Float(0), Shares: Float(0), MaxProfit: Float(0)}
}

type fileState struct {
	UpdatedAt string              `json:"updated_at"`
	Positions map[string]Position `json:"positions"`
}

// Store persists symbol → Position in a single JSON file. All mutation
// goes through Apply from the one scheduler goroutine; the mutex only
// guards against reads from reporting paths.
type Store struct {
	mu        sync.RWMutex
	filePath  string
	positions map[string]Position
}

func NewStore(filePath string) *Store {
	return &Store{
		filePath:  filePath,
		positions: make(map[string]Position),
	}
}

// Load reads the state file if present and folds in any watchlist entries
// it does not know yet. The file wins over the seed for symbols in both:
// strategy progress outlives config edits.
func (s *Store) Load(seed []config.PositionConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath)
	switch {
	case err == nil:
		var st fileState
		if err := json.Unmarshal(data, &st); err != nil {
			return fmt.Errorf("parse state file %s: %w", s.filePath, err)
		}
		if st.Positions != nil {
			s.positions = st.Positions
		}
	case os.IsNotExist(err):
		// first run, seeded below
	default:
		return fmt.Errorf("read state file %s: %w", s.filePath, err)
	}

	added := 0
	for _, p := range seed {
		if _, ok := s.positions[p.Symbol]; ok {
			continue
		}
		s.positions[p.Symbol] = Position{
			Symbol:    p.Symbol,
			Name:      p.Name,
			Stage:     p.Stage,
			Cost:      p.Cost,
			Shares:    p.Shares,
			MaxProfit: p.MaxProfit,
		}
		added++
	}
	if added > 0 {
		if err := s.saveUnsafe(); err != nil {
			return err
		}
	}
	observ.Log("position_state_loaded", map[string]any{
		"path": s.filePath, "symbols": len(s.positions), "seeded": added,
	})
	return nil
}

func (s *Store) Get(symbol string) (Position, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.positions[symbol]
	return p, ok
}

// Symbols returns the tracked symbols in stable order of the backing map
// snapshot; callers sort if order matters.
func (s *Store) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.positions))
	for sym := range s.positions {
		out = append(out, sym)
	}
	return out
}

func (s *Store) Snapshot() map[string]Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Position, len(s.positions))
	for k, v := range s.positions {
		out[k] = v
	}
	return out
}

// Apply merges a delta into the symbol's position and persists the whole
// mapping atomically. Unknown symbols are an error: positions are created
// at load time only, never by strategy output.
func (s *Store) Apply(symbol string, d Delta) (Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.positions[symbol]
	if !ok {
		return Position{}, fmt.Errorf("unknown symbol %s", symbol)
	}
	if d.Stage != nil {
		p.Stage = *d.Stage
	}
	if d.Cost != nil {
		p.Cost = *d.Cost
	}
	if d.Shares != nil {
		p.Shares = *d.Shares
	}
	if d.MaxProfit != nil {
		p.MaxProfit = *d.MaxProfit
	}
	s.positions[symbol] = p

	if err := s.saveUnsafe(); err != nil {
		return p, err
	}
	return p, nil
}

// saveUnsafe writes temp-then-rename so a crash mid-write leaves the old
// file intact. Caller holds the lock.
func (s *Store) saveUnsafe() error {
	if dir := filepath.Dir(s.filePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}
	st := fileState{
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
		Positions: s.positions,
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	tmp := s.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write state temp: %w", err)
	}
	return os.Rename(tmp, s.filePath)
}
