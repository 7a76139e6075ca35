package marketdata

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNoData means a channel produced no usable rows: empty body, malformed
// payload, or every row cleaned away. It is recoverable; the source falls
// back or the loop retries.
var ErrNoData = errors.New("no usable quote data")

// Quote is the normalized per-symbol result regardless of which channel
// served it.
type Quote struct {
	Symbol      string  `json:"symbol"`
	Name        string  `json:"name,omitempty"`
	Price       float64 `json:"price"`
	ChangePct   float64 `json:"change_pct"`
	VolumeRatio float64 `json:"volume_ratio"`
	Source      string  `json:"source"` // "batch" | "single"
}

// Valid applies the fail-closed price rule: a zero, negative or missing
// price means the instrument is suspended or the row is garbage, and the
// row is dropped rather than surfaced.
func (q *Quote) Valid() bool {
	return q.Symbol != "" && q.Price > 0
}

// Bar is one daily OHLCV observation from the history endpoint.
type Bar struct {
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Resolver maps bare instrument codes to exchange-qualified secids. Which
// leading digits mean Shanghai varies by feed version, so the table comes
// from configuration.
type Resolver struct {
	shanghai []string
}

func NewResolver(shanghaiPrefixes []string) *Resolver {
	return &Resolver{shanghai: shanghaiPrefixes}
}

// SecID renders the provider's market-qualified id: market 1 for Shanghai
// listings, market 0 for everything else (Shenzhen, Beijing).
func (r *Resolver) SecID(symbol string) string {
	symbol = strings.TrimSpace(symbol)
	for _, p := range r.shanghai {
		if strings.HasPrefix(symbol, p) {
			return fmt.Sprintf("1.%s", symbol)
		}
	}
	return fmt.Sprintf("0.%s", symbol)
}
