package alerts

import (
	"sync"
	"time"

	"github.com/alphahunter/monitor/internal/observ"
)

// Gate deduplicates notifications per symbol. It only filters what gets
// pushed; position bookkeeping happens regardless of admission. State is
// process-lifetime only, never persisted.
type Gate struct {
	mu       sync.Mutex
	cooldown time.Duration
	last     map[string]time.Time
}

func NewGate(cooldown time.Duration) *Gate {
	return &Gate{
		cooldown: cooldown,
		last:     make(map[string]time.Time),
	}
}

// SetCooldown applies a hot-reloaded cooldown to future admissions.
func (g *Gate) SetCooldown(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cooldown = d
}

// Admit reports whether an alert for the symbol may go out now, and
// records the admission time when it may. Cooldowns are per symbol;
// alerts on different symbols never block each other.
func (g *Gate) Admit(symbol string, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if last, ok := g.last[symbol]; ok && now.Sub(last) < g.cooldown {
		observ.IncCounter("alerts_suppressed_total", map[string]string{"symbol": symbol})
		return false
	}
	g.last[symbol] = now
	return true
}
