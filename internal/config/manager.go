package config

import (
	"os"
	"sync"
	"time"

	"github.com/alphahunter/monitor/internal/observ"
)

// Manager serves the current configuration and re-reads the file when its
// modification time changes. A bad edit never evicts a valid config: the
// previous one stays in place and the error is logged.
type Manager struct {
	mu        sync.Mutex
	path      string
	lastMtime time.Time
	current   *Root
}

func NewManager(path string) *Manager {
	return &Manager{path: path}
}

// Current returns the last valid configuration, nil before the first
// successful Reload.
func (m *Manager) Current() *Root {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Reload checks the file mtime and swaps in a freshly validated config
// when it changed. Returns the active config and whether it was replaced.
func (m *Manager) Reload() (*Root, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fi, err := os.Stat(m.path)
	if err != nil {
		if m.current != nil {
			observ.Warn("config_stat_failed", map[string]any{"path": m.path, "error": err.Error()})
			return m.current, false, nil
		}
		return nil, false, err
	}
	if m.current != nil && fi.ModTime().Equal(m.lastMtime) {
		return m.current, false, nil
	}

	cfg, err := Load(m.path)
	if err != nil {
		if m.current != nil {
			observ.Warn("config_reload_rejected", map[string]any{"path": m.path, "error": err.Error()})
			return m.current, false, nil
		}
		return nil, false, err
	}

	m.current = cfg
	m.lastMtime = fi.ModTime()
	names := make([]string, 0, len(cfg.Portfolio))
	for _, p := range cfg.Portfolio {
		names = append(names, p.Name)
	}
	observ.Log("config_loaded", map[string]any{"path": m.path, "watching": names})
	return cfg, true, nil
}
