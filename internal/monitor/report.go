package monitor

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/alphahunter/monitor/internal/config"
	"github.com/alphahunter/monitor/internal/marketdata"
	"github.com/alphahunter/monitor/internal/observ"
)

// thresholdAlerts are the first-generation movement alerts: big intraday
// swing, unusual volume ratio, or P&L beyond the stop/take lines. They
// share the per-symbol cooldown gate with strategy signals.
func (m *Monitor) thresholdAlerts(ctx context.Context, cfg *config.Root, quotes map[string]marketdata.Quote) {
	var lines []string
	now := m.now()

	symbols := sortedSymbols(quotes)
	for _, sym := range symbols {
		q := quotes[sym]
		pos, ok := m.store.Get(sym)
		if !ok {
			continue
		}

		profitPct := 0.0
		if pos.Cost > 0 {
			profitPct = (q.Price - pos.Cost) / pos.Cost * 100
		}

		var triggers []string
		if abs(q.ChangePct) >= cfg.Alerts.ChangePct {
			triggers = append(triggers, fmt.Sprintf("swing %+.1f%%", q.ChangePct))
		}
		if q.VolumeRatio >= cfg.Alerts.VolumeRatio {
			triggers = append(triggers, fmt.Sprintf("volume ratio %.1f", q.VolumeRatio))
		}
		if pos.Shares > 0 && profitPct <= cfg.Alerts.StopLossPct {
			triggers = append(triggers, fmt.Sprintf("loss %.1f%%", profitPct))
		}
		if pos.Shares > 0 && profitPct >= cfg.Alerts.TakeProfitPct {
			triggers = append(triggers, fmt.Sprintf("gain %.1f%%", profitPct))
		}
		if len(triggers) == 0 {
			continue
		}
		if !m.gate.Admit(sym, now) {
			continue
		}
		lines = append(lines, fmt.Sprintf("**%s**: %s\nprice %.2f, P&L %+.0f",
			pos.Name, strings.Join(triggers, ", "), q.Price, (q.Price-pos.Cost)*pos.Shares))
	}

	if len(lines) > 0 {
		m.pusher.Send(ctx, "🚨 Movement alert", strings.Join(lines, "\n---\n"))
		observ.IncCounter("threshold_alerts_total", nil)
	}
}

// scheduledReport pushes the portfolio summary at the configured minutes,
// once per minute mark.
func (m *Monitor) scheduledReport(ctx context.Context, cfg *config.Root, quotes map[string]marketdata.Quote) {
	minute := m.now().Format("15:04")
	if minute == m.lastReportMinute {
		return
	}
	scheduled := false
	for _, t := range cfg.ReportTimes {
		if t == minute {
			scheduled = true
			break
		}
	}
	if !scheduled {
		return
	}

	title := fmt.Sprintf("⏰ %s report", minute)
	switch minute {
	case "09:30":
		title = "🚀 Market open"
	case "15:00":
		title = "🌙 Market close"
	}
	m.pusher.Send(ctx, title, m.report(quotes))
	m.lastReportMinute = minute
	observ.Log("report_sent", map[string]any{"minute": minute})
}

// report renders the account summary markdown table.
func (m *Monitor) report(quotes map[string]marketdata.Quote) string {
	var totalProfit, totalValue float64
	var rows []string

	for _, sym := range sortedSymbols(quotes) {
		q := quotes[sym]
		pos, ok := m.store.Get(sym)
		if !ok {
			continue
		}
		profit := (q.Price - pos.Cost) * pos.Shares
		totalProfit += profit
		totalValue += q.Price * pos.Shares
		rows = append(rows, fmt.Sprintf("| %s | %.2f | %+.2f%% | %.1f | %+.0f |",
			pos.Name, q.Price, q.ChangePct, q.VolumeRatio, profit))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "#### 💰 Account\n**Value**: %.0f | **P&L**: %+.0f\n\n", totalValue, totalProfit)
	b.WriteString("| Name | Price | Change | Vol ratio | P&L |\n|---|---|---|---|---|\n")
	b.WriteString(strings.Join(rows, "\n"))
	return b.String()
}

func sortedSymbols(quotes map[string]marketdata.Quote) []string {
	out := make([]string, 0, len(quotes))
	for sym := range quotes {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// ReportNow is used by the one-shot check command.
func (m *Monitor) ReportNow(ctx context.Context) (string, error) {
	quotes := m.source.Fetch(ctx, m.store.Symbols())
	if len(quotes) == 0 {
		return "", fmt.Errorf("no quote data available")
	}
	return m.report(quotes), nil
}
