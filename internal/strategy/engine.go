// Package strategy is the pure decision core: current position state plus
// one indicator row in, signal plus state delta out. It never touches the
// network, the clock, or the store.
package strategy

import (
	"fmt"

	"github.com/alphahunter/monitor/internal/indicator"
	"github.com/alphahunter/monitor/internal/position"
)

type Signal string

const (
	SignalNone Signal = "NONE"
	SignalBuy  Signal = "BUY"
	SignalSell Signal = "SELL"
)

type Decision struct {
	Signal Signal
	Reason string
	Delta  position.Delta
}

type Config struct {
	SweepLotValue    float64 // market value under which a profitable position is dust
	EntryRSI        float64
	AddOnRSI        float64
	BreakevenTrigger float64 // high-water profit that arms breakeven protection
	BreakevenFloor   float64 // multiple of cost under which armed protection fires
	BandExitProfit   float64 // return needed for the mid-band trim advisory
	HardStopRatio    float64 // multiple of cost for the hard stop
}

func DefaultConfig() Config {
	return Config{
		SweepLotValue:    2000,
		EntryRSI:         45,
		AddOnRSI:         40,
		BreakevenTrigger: 0.10,
		BreakevenFloor:   1.01,
		BandExitProfit:   0.03,
		HardStopRatio:    0.85,
	}
}

// addOnThreshold is the cost-drift trigger per stage: the deeper in, the
// bigger the discount demanded before averaging down again.
func addOnThreshold(stage int) float64 {
	if stage == 1 {
		return 0.95
	}
	return 0.90
}

// Decide evaluates the rules in strict priority order; the first match
// wins and risk-reduction outranks entry. Whatever branch returns, a
// high-water raise of max profit rides along in the delta so the stored
// value never lags the observed return.
func Decide(p position.Position, row indicator.Row, cfg Config) Decision {
	price := row.Close

	profit := 0.0
	if p.Cost > 0 {
		profit = (price - p.Cost) / p.Cost
	}
	newMax := p.MaxProfit
	if profit > newMax {
		newMax = profit
	}
	withRaise := func(d position.Delta) position.Delta {
		if newMax > p.MaxProfit && d.MaxProfit == nil {
			d.MaxProfit = position.Float(newMax)
		}
		return d
	}

	// 1. sweep-exit: profitable dust position, tidy up
	if p.Shares > 0 && p.Shares*price < cfg.SweepLotValue && price > p.Cost {
		return Decision{
			Signal: SignalSell,
			Reason: fmt.Sprintf("sweep exit: odd lot worth %.0f in profit, clear and reset", p.Shares*price),
			Delta:  position.FullReset(),
		}
	}

	// 2. initial entry
	if p.Stage == 0 {
		if price < row.Lower && row.RSI < cfg.EntryRSI {
			return Decision{
				Signal: SignalBuy,
				Reason: fmt.Sprintf("initial entry: price %.2f under lower band %.2f, RSI %.1f", price, row.Lower, row.RSI),
				Delta:  position.Delta{Stage: position.Int(1)},
			}
		}
	} else if p.Stage < 3 {
		// 3. add-on entry: cost has drifted down, or a fresh technical dip
		threshold := addOnThreshold(p.Stage)
		costDown := price < p.Cost*threshold
		techDip := price < row.Lower && row.RSI < cfg.AddOnRSI
		if costDown || techDip {
			reason := fmt.Sprintf("add-on entry: second dip under lower band, RSI %.1f", row.RSI)
			if costDown {
				reason = fmt.Sprintf("add-on entry: price %.2f below %.0f%% of cost %.2f", price, threshold*100, p.Cost)
			}
			return Decision{
				Signal: SignalBuy,
				Reason: reason,
				Delta:  withRaise(position.Delta{Stage: position.Int(p.Stage + 1)}),
			}
		}
	}

	if p.Shares > 0 {
		// 4. breakeven protection: gains decayed back to cost
		if newMax > cfg.BreakevenTrigger && price < p.Cost*cfg.BreakevenFloor {
			return Decision{
				Signal: SignalSell,
				Reason: fmt.Sprintf("breakeven protection: high-water %.1f%% decayed to %.1f%%", newMax*100, profit*100),
				Delta:  position.FullReset(),
			}
		}

		// 5. band exit: advisory trim, bookkeeping stays manual
		if price > row.MALong && profit > cfg.BandExitProfit {
			return Decision{
				Signal: SignalSell,
				Reason: fmt.Sprintf("band exit: price %.2f over MA20 %.2f at %.1f%% profit, consider trimming half", price, row.MALong, profit*100),
				Delta:  withRaise(position.Delta{}),
			}
		}

		// 6. trend-end exit: reversal below the fast average after an overextension
		if price > row.Upper && price < row.MAShort {
			return Decision{
				Signal: SignalSell,
				Reason: fmt.Sprintf("trend end: price %.2f over upper band but under MA5 %.2f, clear", price, row.MAShort),
				Delta:  position.FullReset(),
			}
		}

		// 7. hard stop-loss
		if price < p.Cost*cfg.HardStopRatio {
			return Decision{
				Signal: SignalSell,
				Reason: fmt.Sprintf("hard stop: price %.2f under %.0f%% of cost %.2f", price, cfg.HardStopRatio*100, p.Cost),
				Delta:  position.FullReset(),
			}
		}
	}

	// 8. no signal; persist a high-water raise when there is one
	if newMax > p.MaxProfit {
		return Decision{Signal: SignalNone, Delta: position.Delta{MaxProfit: position.Float(newMax)}}
	}
	return Decision{Signal: SignalNone}
}
