package alerts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGateCooldownPerSymbol(t *testing.T) {
	g := NewGate(30 * time.Minute)
	base := time.Date(2026, 1, 5, 10, 0, 0, 0, time.Local)

	require.True(t, g.Admit("600519", base))
	require.False(t, g.Admit("600519", base.Add(10*time.Minute)))
	require.True(t, g.Admit("600519", base.Add(31*time.Minute)))
}

func TestGateSymbolsDoNotBlockEachOther(t *testing.T) {
	g := NewGate(30 * time.Minute)
	base := time.Date(2026, 1, 5, 10, 0, 0, 0, time.Local)

	require.True(t, g.Admit("600519", base))
	require.True(t, g.Admit("002415", base))
	require.False(t, g.Admit("002415", base.Add(time.Minute)))
}

func TestGateDeniedCallDoesNotExtendCooldown(t *testing.T) {
	g := NewGate(30 * time.Minute)
	base := time.Date(2026, 1, 5, 10, 0, 0, 0, time.Local)

	require.True(t, g.Admit("600519", base))
	require.False(t, g.Admit("600519", base.Add(29*time.Minute)))
	// still measured from the original admission
	require.True(t, g.Admit("600519", base.Add(30*time.Minute)))
}

func TestGateCooldownHotReload(t *testing.T) {
	g := NewGate(30 * time.Minute)
	base := time.Date(2026, 1, 5, 10, 0, 0, 0, time.Local)

	require.True(t, g.Admit("600519", base))
	g.SetCooldown(5 * time.Minute)
	require.True(t, g.Admit("600519", base.Add(6*time.Minute)))
}
