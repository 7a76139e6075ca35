package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const validYAML = `
token: tok-123
portfolio:
  - symbol: "600519"
    name: Moutai
    stage: 1
    cost: 1700.5
    shares: 100
  - symbol: "002415"
    name: Hikvision
`

func write(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "portfolio.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := write(t, t.TempDir(), validYAML)
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "tok-123", cfg.Token)
	require.Equal(t, 1800, cfg.Alerts.CooldownSec)
	require.Len(t, cfg.Calendar.Sessions, 2)
	require.Equal(t, "09:15", cfg.Calendar.Sessions[0].Open)
	require.Equal(t, 30, cfg.Poll.ActiveIntervalSec)
	require.Equal(t, []string{"6", "5", "9", "11"}, cfg.Provider.ShanghaiPrefixes)
	require.Equal(t, 150, cfg.Provider.KlineWindowDays)
	require.Contains(t, cfg.ReportTimes, "09:30")
}

func TestLoadRejectsMissingToken(t *testing.T) {
	path := write(t, t.TempDir(), `
portfolio:
  - symbol: "600519"
    name: Moutai
`)
	_, err := Load(path)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrInvalid))
}

func TestLoadRejectsEmptyPortfolio(t *testing.T) {
	path := write(t, t.TempDir(), "token: tok\nportfolio: []\n")
	_, err := Load(path)
	require.True(t, errors.Is(err, ErrInvalid))
}

func TestLoadRejectsStagePositionMismatch(t *testing.T) {
	path := write(t, t.TempDir(), `
token: tok
portfolio:
  - symbol: "600519"
    name: Moutai
    stage: 2
`)
	_, err := Load(path)
	require.True(t, errors.Is(err, ErrInvalid))
}

func TestLoadRejectsFlatWithShares(t *testing.T) {
	path := write(t, t.TempDir(), `
token: tok
portfolio:
  - symbol: "600519"
    name: Moutai
    shares: 100
    cost: 10
`)
	_, err := Load(path)
	require.True(t, errors.Is(err, ErrInvalid))
}

func TestManagerReloadsOnMtimeChange(t *testing.T) {
	dir := t.TempDir()
	path := write(t, dir, validYAML)
	m := NewManager(path)

	cfg, changed, err := m.Reload()
	require.NoError(t, err)
	require.True(t, changed)
	require.Len(t, cfg.Portfolio, 2)

	// unchanged mtime: nothing happens
	_, changed, err = m.Reload()
	require.NoError(t, err)
	require.False(t, changed)

	// edit the file and bump mtime
	require.NoError(t, os.WriteFile(path, []byte(validYAML+`
  - symbol: "300059"
    name: Eastmoney
`), 0o644))
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	cfg, changed, err = m.Reload()
	require.NoError(t, err)
	require.True(t, changed)
	require.Len(t, cfg.Portfolio, 3)
}

func TestManagerKeepsPreviousOnBadEdit(t *testing.T) {
	dir := t.TempDir()
	path := write(t, dir, validYAML)
	m := NewManager(path)

	_, _, err := m.Reload()
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("token: [broken\n"), 0o644))
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	cfg, changed, err := m.Reload()
	require.NoError(t, err)
	require.False(t, changed)
	require.Len(t, cfg.Portfolio, 2) // previous config still active
}

func TestManagerKeepsPreviousWhenFileVanishes(t *testing.T) {
	dir := t.TempDir()
	path := write(t, dir, validYAML)
	m := NewManager(path)

	_, _, err := m.Reload()
	require.NoError(t, err)

	require.NoError(t, os.Remove(path))
	cfg, changed, err := m.Reload()
	require.NoError(t, err)
	require.False(t, changed)
	require.NotNil(t, cfg)
}

func TestManagerFailsWithoutAnyValidConfig(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "missing.yaml"))
	_, _, err := m.Reload()
	require.Error(t, err)
}
