package marketdata

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	"github.com/alphahunter/monitor/internal/observ"
)

// Source orchestrates the two quote channels: the batch list call first,
// and the per-symbol detail call only when the batch produced nothing
// usable. A partial batch result is taken as-is; symbols missing from it
// are not retried one by one this cycle.
type Source struct {
	client  *Client
	breaker *gobreaker.CircuitBreaker
}

func NewSource(client *Client) *Source {
	st := gobreaker.Settings{Name: "quote-batch"}
	st.Interval = 60 * time.Second
	st.Timeout = 60 * time.Second
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= 3
	}
	st.OnStateChange = func(name string, from, to gobreaker.State) {
		observ.Warn("quote_breaker_transition", map[string]any{
			"name": name, "from": from.String(), "to": to.String(),
		})
	}
	return &Source{
		client:  client,
		breaker: gobreaker.NewCircuitBreaker(st),
	}
}

// Fetch returns whatever clean quotes it could get, keyed by symbol.
// Symbols absent from both channels are simply omitted; an empty map is a
// valid outcome the caller handles with backoff, never an error.
func (s *Source) Fetch(ctx context.Context, symbols []string) map[string]Quote {
	if len(symbols) == 0 {
		return map[string]Quote{}
	}
	start := time.Now()
	defer func() { observ.RecordDuration("quote_fetch", time.Since(start), nil) }()

	res, err := s.breaker.Execute(func() (any, error) {
		return s.client.Batch(ctx, symbols)
	})
	if err == nil {
		quotes := res.(map[string]Quote)
		observ.IncCounter("quote_fetch_total", map[string]string{"channel": "batch"})
		observ.Debug("quote_batch_ok", map[string]any{
			"requested": len(symbols), "returned": len(quotes),
		})
		return quotes
	}

	// Batch channel down (transport failure, malformed body, or open
	// breaker): single-point fallback, one attempt per symbol.
	observ.Warn("quote_batch_failed", map[string]any{"error": err.Error()})
	observ.IncCounter("quote_fetch_total", map[string]string{"channel": "fallback"})

	out := make(map[string]Quote, len(symbols))
	for _, sym := range symbols {
		q, err := s.client.Single(ctx, sym)
		if err != nil {
			observ.Warn("quote_single_failed", map[string]any{
				"symbol": sym, "error": err.Error(),
			})
			observ.IncCounter("quote_single_failures_total", map[string]string{"symbol": sym})
			continue
		}
		out[q.Symbol] = *q
	}
	return out
}

// DailyBars exposes the history channel for the indicator builder.
func (s *Source) DailyBars(ctx context.Context, symbol string, windowDays int) ([]Bar, error) {
	return s.client.DailyBars(ctx, symbol, windowDays)
}
