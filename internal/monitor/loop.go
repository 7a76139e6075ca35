// Package monitor runs the polling loop: session gating, quote fetch,
// per-symbol evaluation, alerting and reporting.
package monitor

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/alphahunter/monitor/internal/alerts"
	"github.com/alphahunter/monitor/internal/calendar"
	"github.com/alphahunter/monitor/internal/config"
	"github.com/alphahunter/monitor/internal/indicator"
	"github.com/alphahunter/monitor/internal/marketdata"
	"github.com/alphahunter/monitor/internal/observ"
	"github.com/alphahunter/monitor/internal/position"
	"github.com/alphahunter/monitor/internal/strategy"
)

// Monitor owns all loop state explicitly; there are no ambient globals.
type Monitor struct {
	cfgMgr  *config.Manager
	cal     *calendar.Calendar
	store   *position.Store
	source  *marketdata.Source
	builder *indicator.Builder
	gate    *alerts.Gate
	pusher  *alerts.Pusher

	stratCfg strategy.Config
	now      func() time.Time

	lastReportMinute string
}

func New(cfgMgr *config.Manager, cal *calendar.Calendar, store *position.Store,
	source *marketdata.Source, builder *indicator.Builder,
	gate *alerts.Gate, pusher *alerts.Pusher) *Monitor {
	return &Monitor{
		cfgMgr:   cfgMgr,
		cal:      cal,
		store:    store,
		source:   source,
		builder:  builder,
		gate:     gate,
		pusher:   pusher,
		stratCfg: strategy.DefaultConfig(),
		now:      time.Now,
	}
}

// Run executes the polling loop until the context is cancelled. Nothing
// from the fetch or strategy path ever escapes a cycle; the outermost
// guard logs and sleeps instead of terminating.
func (m *Monitor) Run(ctx context.Context) error {
	m.SelfCheck(ctx)
	observ.Log("monitor_loop_started", map[string]any{"degraded_calendar": m.cal.Degraded()})

	for {
		if ctx.Err() != nil {
			observ.Log("monitor_loop_stopped", map[string]any{"counters": observ.Snapshot()})
			return nil
		}
		m.cycle(ctx)
	}
}

// SelfCheck forces one fetch-and-report pass so the operator gets
// immediate feedback at startup regardless of the session clock.
func (m *Monitor) SelfCheck(ctx context.Context) {
	cfg := m.cfgMgr.Current()
	if cfg == nil {
		return
	}
	quotes := m.source.Fetch(ctx, m.store.Symbols())
	if len(quotes) == 0 {
		observ.Warn("self_check_no_data", nil)
		return
	}
	m.pusher.Send(ctx, "🚀 System online (startup check)", m.report(quotes))
	observ.Log("self_check_sent", map[string]any{"quotes": len(quotes)})
}

func (m *Monitor) cycle(ctx context.Context) {
	cfg := m.reloadConfig()
	if cfg == nil {
		m.sleep(ctx, time.Minute)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			observ.Error("cycle_panic", fmt.Errorf("%v", r), nil)
			observ.IncCounter("cycle_panics_total", nil)
			m.sleep(ctx, time.Duration(cfg.Poll.RetryBackoffSec)*time.Second)
		}
	}()

	now := m.now()
	boundary := m.cal.NextBoundary(now)
	if boundary.Sub(now) > 5*time.Second {
		// off session: doze in short chunks so hot-reload and shutdown
		// stay responsive instead of one giant sleep
		observ.Debug("market_closed", map[string]any{
			"wake_at": boundary.Format("2006-01-02 15:04"),
		})
		idle := time.Duration(cfg.Poll.IdleRecheckSec) * time.Second
		if until := boundary.Sub(now); until < idle {
			idle = until
		}
		m.sleep(ctx, idle)
		return
	}

	tracked := m.store.Symbols()
	observ.SetGauge("tracked_symbols", float64(len(tracked)), nil)
	quotes := m.source.Fetch(ctx, tracked)
	if len(quotes) == 0 {
		observ.Warn("fetch_empty_retrying", nil)
		m.sleep(ctx, time.Duration(cfg.Poll.RetryBackoffSec)*time.Second)
		return
	}

	symbols := make([]string, 0, len(quotes))
	for sym := range quotes {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	for _, sym := range symbols {
		m.evaluate(ctx, sym, quotes[sym])
	}

	m.thresholdAlerts(ctx, cfg, quotes)
	m.scheduledReport(ctx, cfg, quotes)

	observ.IncCounter("cycles_total", nil)
	m.sleep(ctx, time.Duration(cfg.Poll.ActiveIntervalSec)*time.Second)
}

// evaluate runs one symbol through indicators and the strategy. The state
// delta is applied unconditionally; the cooldown gate only decides whether
// the notification goes out.
func (m *Monitor) evaluate(ctx context.Context, sym string, q marketdata.Quote) {
	pos, ok := m.store.Get(sym)
	if !ok {
		return
	}

	row, err := m.builder.Build(ctx, sym, q.Price)
	if err != nil {
		observ.Warn("indicators_skipped", map[string]any{"symbol": sym, "error": err.Error()})
		observ.IncCounter("indicator_skips_total", map[string]string{"symbol": sym})
		return
	}

	dec := strategy.Decide(pos, row, m.stratCfg)
	if !dec.Delta.Empty() {
		if _, err := m.store.Apply(sym, dec.Delta); err != nil {
			observ.Error("state_apply_failed", err, map[string]any{"symbol": sym})
		}
	}
	if dec.Signal == strategy.SignalNone {
		return
	}

	observ.Log("signal", map[string]any{
		"symbol": sym, "name": pos.Name, "signal": string(dec.Signal), "reason": dec.Reason,
	})
	observ.IncCounter("signals_total", map[string]string{"signal": string(dec.Signal)})

	if !m.gate.Admit(sym, m.now()) {
		return
	}
	title := fmt.Sprintf("%s signal: %s", dec.Signal, pos.Name)
	body := fmt.Sprintf("### Strategy trigger: %s (%s)\n**Direction**: %s\n**Price**: %.2f\n**Reason**: %s\n---\nRSI: %.1f\nLower band: %.2f\nCost basis: %.2f\n",
		pos.Name, sym, dec.Signal, q.Price, dec.Reason, row.RSI, row.Lower, pos.Cost)
	m.pusher.Send(ctx, title, body)
}

// reloadConfig re-reads the file on mtime change and pushes the pieces
// other components hold (token, cooldown, calendar, watchlist additions).
func (m *Monitor) reloadConfig() *config.Root {
	cfg, changed, err := m.cfgMgr.Reload()
	if err != nil {
		observ.Error("config_unavailable", err, nil)
		return cfg
	}
	if !changed || cfg == nil {
		return cfg
	}
	m.pusher.UpdateToken(cfg.Token)
	m.gate.SetCooldown(time.Duration(cfg.Alerts.CooldownSec) * time.Second)
	if cal, err := calendar.New(cfg.Calendar); err == nil {
		m.cal = cal
	} else {
		observ.Error("calendar_rebuild_failed", err, nil)
	}
	if err := m.store.Load(cfg.Portfolio); err != nil {
		observ.Error("watchlist_merge_failed", err, nil)
	}
	return cfg
}

// sleep blocks for d or until cancellation.
func (m *Monitor) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
