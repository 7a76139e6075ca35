// Package indicator turns a trailing daily close series plus the live
// price into the rolling values the strategy consumes.
package indicator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/alphahunter/monitor/internal/marketdata"
)

// ErrUnavailable means no indicator row could be built for the symbol
// this cycle; the caller skips the symbol and carries on.
var ErrUnavailable = errors.New("indicators unavailable")

const (
	shortWindow = 5
	longWindow  = 20
	rsiWindow   = 14
	bandWidth   = 1.75
)

// Row holds one evaluation cycle's indicators. Close is the live price
// after splicing.
type Row struct {
	Close   float64
	MAShort float64
	MALong  float64
	StdLong float64
	Upper   float64
	Lower   float64
	RSI     float64
}

// History is the trailing-series channel, satisfied by marketdata.Source.
type History interface {
	DailyBars(ctx context.Context, symbol string, windowDays int) ([]marketdata.Bar, error)
}

type Builder struct {
	history    History
	windowDays int
	now        func() time.Time
}

func NewBuilder(history History, windowDays int) *Builder {
	if windowDays < 120 {
		// guarantee at least a full long window of trading bars
		windowDays = 120
	}
	return &Builder{history: history, windowDays: windowDays, now: time.Now}
}

// Build fetches the daily series, splices the live price in as the most
// recent observation and computes the rolling indicators over the closes.
//
// Splice rule: when the series' last bar is older than today, a synthetic
// in-progress bar is appended (OHLC = live price, zero volume). When the
// source already reports today, only its close is overwritten, so the
// window never grows a duplicate "today" bar.
func (b *Builder) Build(ctx context.Context, symbol string, livePrice float64) (Row, error) {
	bars, err := b.history.DailyBars(ctx, symbol, b.windowDays)
	if err != nil {
		return Row{}, fmt.Errorf("%w: %s: %v", ErrUnavailable, symbol, err)
	}
	if len(bars) == 0 {
		return Row{}, fmt.Errorf("%w: %s: empty series", ErrUnavailable, symbol)
	}

	today := b.now()
	if beforeDay(bars[len(bars)-1].Date, today) {
		bars = append(bars, marketdata.Bar{
			Date:  dateOnly(today),
			Open:  livePrice,
			High:  livePrice,
			Low:   livePrice,
			Close: livePrice,
		})
	} else {
		bars[len(bars)-1].Close = livePrice
	}

	closes := make([]float64, len(bars))
	for i, bar := range bars {
		closes[i] = bar.Close
	}
	if len(closes) < longWindow+1 {
		return Row{}, fmt.Errorf("%w: %s: only %d bars", ErrUnavailable, symbol, len(closes))
	}

	maLong := mean(closes[len(closes)-longWindow:])
	std := sampleStd(closes[len(closes)-longWindow:], maLong)
	row := Row{
		Close:   closes[len(closes)-1],
		MAShort: mean(closes[len(closes)-shortWindow:]),
		MALong:  maLong,
		StdLong: std,
		Upper:   maLong + bandWidth*std,
		Lower:   maLong - bandWidth*std,
		RSI:     rsi(closes, rsiWindow),
	}
	return row, nil
}

func mean(xs []float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// sampleStd matches the original computation (ddof=1).
func sampleStd(xs []float64, m float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)-1))
}

// rsi is the simple-average variant: gains and losses of day-over-day
// deltas, zero-filled on the wrong sign, each averaged over the window.
// With no losses in the window the value clamps to 100.
func rsi(closes []float64, window int) float64 {
	deltas := make([]float64, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		deltas[i-1] = closes[i] - closes[i-1]
	}
	if len(deltas) < window {
		return 50 // not enough history to say anything
	}
	tail := deltas[len(deltas)-window:]
	var gain, loss float64
	for _, d := range tail {
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgGain := gain / float64(window)
	avgLoss := loss / float64(window)
	if avgLoss == 0 {
		return 100
	}
	return 100 - 100/(1+avgGain/avgLoss)
}

// beforeDay compares calendar dates only. Kline dates parse as UTC
// midnight while the clock runs in the process zone, so comparing
// instants would misfile today's bar west of UTC.
func beforeDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	if ay != by {
		return ay < by
	}
	if am != bm {
		return am < bm
	}
	return ad < bd
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
