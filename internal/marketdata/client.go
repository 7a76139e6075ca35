package marketdata

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const browserUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// field codes differ between the list endpoint and the detail endpoint
// for the same datum (price is f2 on ulist, f43 on stock/get).
const (
	batchFields  = "f12,f14,f2,f3,f10"
	singleFields = "f57,f58,f43,f170,f168"
	klineMeta    = "f1,f2,f3,f4,f5,f6"
	klineRow     = "f51,f52,f53,f54,f55,f56"
)

type ClientConfig struct {
	BaseURL    string
	Timeout    time.Duration
	RatePerSec float64
}

// Client speaks the provider's quote and kline endpoints. Every request
// goes through a shared limiter so burst cycles never hammer the feed.
type Client struct {
	http     *resty.Client
	limiter  *rate.Limiter
	resolver *Resolver
	now      func() time.Time
}

func NewClient(cfg ClientConfig, resolver *Resolver) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.RatePerSec == 0 {
		cfg.RatePerSec = 5
	}
	httpc := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", browserUA).
		SetHeader("Referer", "http://quote.eastmoney.com/center/gridlist.html")
	return &Client{
		http:     httpc,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1),
		resolver: resolver,
		now:      time.Now,
	}
}

type batchResponse struct {
	Data *struct {
		Diff []map[string]any `json:"diff"`
	} `json:"data"`
}

// Batch fetches all symbols in one list request. Rows that fail cleaning
// are dropped silently; a response with no surviving rows is ErrNoData.
func (c *Client) Batch(ctx context.Context, symbols []string) (map[string]Quote, error) {
	if len(symbols) == 0 {
		return map[string]Quote{}, nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	secids := make([]string, len(symbols))
	for i, s := range symbols {
		secids[i] = c.resolver.SecID(s)
	}

	var body batchResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"invt":   "2",
			"fltt":   "2",
			"fields": batchFields,
			"secids": strings.Join(secids, ","),
		}).
		SetResult(&body).
		Get("/api/qt/ulist/get")
	if err != nil {
		return nil, fmt.Errorf("batch quote request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("batch quote request: %w: status %d", ErrNoData, resp.StatusCode())
	}
	if body.Data == nil || len(body.Data.Diff) == 0 {
		return nil, ErrNoData
	}

	out := make(map[string]Quote, len(body.Data.Diff))
	for _, row := range body.Data.Diff {
		q, ok := cleanRow(row, "f12", "f14", "f2", "f3", "f10", "batch")
		if !ok {
			continue
		}
		out[q.Symbol] = q
	}
	if len(out) == 0 {
		return nil, ErrNoData
	}
	return out, nil
}

type singleResponse struct {
	Data map[string]any `json:"data"`
}

// Single fetches one symbol from the per-instrument detail endpoint, the
// fallback channel when the list endpoint yields nothing.
func (c *Client) Single(ctx context.Context, symbol string) (*Quote, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	var body singleResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"invt":   "2",
			"fltt":   "2",
			"fields": singleFields,
			"secid":  c.resolver.SecID(symbol),
		}).
		SetResult(&body).
		Get("/api/qt/stock/get")
	if err != nil {
		return nil, fmt.Errorf("single quote request %s: %w", symbol, err)
	}
	if resp.IsError() || body.Data == nil {
		return nil, fmt.Errorf("single quote %s: %w", symbol, ErrNoData)
	}
	q, ok := cleanRow(body.Data, "f57", "f58", "f43", "f170", "f168", "single")
	if !ok {
		return nil, fmt.Errorf("single quote %s: %w", symbol, ErrNoData)
	}
	return &q, nil
}

type klineResponse struct {
	Data *struct {
		Klines []string `json:"klines"`
	} `json:"data"`
}

// DailyBars returns the trailing forward-adjusted daily series covering
// windowDays calendar days up to today.
func (c *Client) DailyBars(ctx context.Context, symbol string, windowDays int) ([]Bar, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	beg := c.now().AddDate(0, 0, -windowDays).Format("20060102")

	var body klineResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"secid":   c.resolver.SecID(symbol),
			"fields1": klineMeta,
			"fields2": klineRow,
			"klt":     "101", // daily
			"fqt":     "1",   // forward adjusted
			"beg":     beg,
			"end":     "20500101",
		}).
		SetResult(&body).
		Get("/api/qt/stock/kline/get")
	if err != nil {
		return nil, fmt.Errorf("kline request %s: %w", symbol, err)
	}
	if resp.IsError() || body.Data == nil || len(body.Data.Klines) == 0 {
		return nil, fmt.Errorf("kline %s: %w", symbol, ErrNoData)
	}

	bars := make([]Bar, 0, len(body.Data.Klines))
	for _, line := range body.Data.Klines {
		b, ok := parseKline(line)
		if !ok {
			continue
		}
		bars = append(bars, b)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("kline %s: %w", symbol, ErrNoData)
	}
	return bars, nil
}

// parseKline decodes "2026-08-28,34.10,34.55,34.80,33.90,123456" rows
// (date, open, close, high, low, volume).
func parseKline(line string) (Bar, bool) {
	parts := strings.Split(line, ",")
	if len(parts) < 6 {
		return Bar{}, false
	}
	date, err := time.Parse("2006-01-02", parts[0])
	if err != nil {
		return Bar{}, false
	}
	vals := make([]float64, 5)
	for i := 0; i < 5; i++ {
		v, err := strconv.ParseFloat(parts[i+1], 64)
		if err != nil {
			return Bar{}, false
		}
		vals[i] = v
	}
	return Bar{
		Date:   date,
		Open:   vals[0],
		Close:  vals[1],
		High:   vals[2],
		Low:    vals[3],
		Volume: vals[4],
	}, true
}

// cleanRow normalizes one raw quote row. The price field is the gate: a
// sentinel "-", zero, or non-numeric value marks a suspended instrument
// and the row is rejected. Change and volume ratio degrade to zero.
func cleanRow(row map[string]any, symKey, nameKey, priceKey, changeKey, volKey, source string) (Quote, bool) {
	sym, ok := str(row[symKey])
	if !ok || sym == "" {
		return Quote{}, false
	}
	price, ok := num(row[priceKey])
	if !ok || price <= 0 {
		return Quote{}, false
	}
	change, _ := num(row[changeKey])
	vol, _ := num(row[volKey])
	name, _ := str(row[nameKey])
	return Quote{
		Symbol:      sym,
		Name:        name,
		Price:       price,
		ChangePct:   change,
		VolumeRatio: vol,
		Source:      source,
	}, true
}

func str(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	default:
		return "", false
	}
}

func num(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
