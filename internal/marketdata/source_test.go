package marketdata

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	return NewClient(ClientConfig{
		BaseURL:    baseURL,
		Timeout:    2 * time.Second,
		RatePerSec: 1000, // tests should not wait on the limiter
	}, NewResolver([]string{"6", "5", "9", "11"}))
}

func TestResolverSecID(t *testing.T) {
	r := NewResolver([]string{"6", "5", "9", "11"})
	require.Equal(t, "1.600519", r.SecID("600519"))
	require.Equal(t, "1.510300", r.SecID("510300"))
	require.Equal(t, "1.110050", r.SecID("110050"))
	require.Equal(t, "0.002415", r.SecID("002415"))
	require.Equal(t, "0.300059", r.SecID("300059"))
}

func TestResolverConfigurableTable(t *testing.T) {
	r := NewResolver([]string{"8"})
	require.Equal(t, "1.800001", r.SecID("800001"))
	require.Equal(t, "0.600519", r.SecID("600519"))
}

func TestPartialBatchDoesNotTriggerFallback(t *testing.T) {
	var singleCalls int64
	mux := http.NewServeMux()
	mux.HandleFunc("/api/qt/ulist/get", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data":{"diff":[{"f12":"600519","f14":"Moutai","f2":1712.5,"f3":-0.8,"f10":1.2}]}}`)
	})
	mux.HandleFunc("/api/qt/stock/get", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&singleCalls, 1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data":null}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s := NewSource(testClient(t, srv.URL))
	got := s.Fetch(context.Background(), []string{"600519", "002415"})

	require.Contains(t, got, "600519")
	require.NotContains(t, got, "002415")
	require.EqualValues(t, 0, atomic.LoadInt64(&singleCalls))
	require.Equal(t, "batch", got["600519"].Source)
	require.Equal(t, 1712.5, got["600519"].Price)
}

func TestBatchFailureFallsBackPerSymbolOnce(t *testing.T) {
	singleCalls := map[string]*int64{"1.600519": new(int64), "0.002415": new(int64)}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/qt/ulist/get", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "blocked", http.StatusForbidden)
	})
	mux.HandleFunc("/api/qt/stock/get", func(w http.ResponseWriter, r *http.Request) {
		secid := r.URL.Query().Get("secid")
		if c, ok := singleCalls[secid]; ok {
			atomic.AddInt64(c, 1)
		}
		switch secid {
		case "1.600519":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"data":{"f57":"600519","f58":"Moutai","f43":1712.5,"f170":-0.8,"f168":1.2}}`)
		case "0.002415":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"data":{"f57":"002415","f58":"Hikvision","f43":29.8,"f170":2.1,"f168":3.4}}`)
		default:
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"data":null}`)
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s := NewSource(testClient(t, srv.URL))
	got := s.Fetch(context.Background(), []string{"600519", "002415"})

	require.Len(t, got, 2)
	require.Equal(t, "single", got["600519"].Source)
	require.EqualValues(t, 1, atomic.LoadInt64(singleCalls["1.600519"]))
	require.EqualValues(t, 1, atomic.LoadInt64(singleCalls["0.002415"]))
}

func TestSuspendedRowsAreDroppedSilently(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/qt/ulist/get", func(w http.ResponseWriter, r *http.Request) {
		// "-" is the provider's not-trading sentinel; 0 means suspended
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data":{"diff":[
			{"f12":"600519","f14":"Moutai","f2":1712.5,"f3":-0.8,"f10":1.2},
			{"f12":"002415","f14":"Hikvision","f2":"-","f3":"-","f10":"-"},
			{"f12":"300059","f14":"Eastmoney","f2":0,"f3":1.0,"f10":2.0}
		]}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s := NewSource(testClient(t, srv.URL))
	got := s.Fetch(context.Background(), []string{"600519", "002415", "300059"})

	require.Len(t, got, 1)
	require.Contains(t, got, "600519")
}

func TestFallbackDropsInvalidSingleRows(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/qt/ulist/get", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data":null}`) // empty batch: no usable data
	})
	mux.HandleFunc("/api/qt/stock/get", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data":{"f57":"600519","f58":"Moutai","f43":"-","f170":"-","f168":"-"}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s := NewSource(testClient(t, srv.URL))
	got := s.Fetch(context.Background(), []string{"600519"})
	require.Empty(t, got) // empty is a valid, recoverable outcome
}

func TestOpenBreakerRoutesStraightToFallback(t *testing.T) {
	var batchCalls int64
	mux := http.NewServeMux()
	mux.HandleFunc("/api/qt/ulist/get", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&batchCalls, 1)
		http.Error(w, "blocked", http.StatusForbidden)
	})
	mux.HandleFunc("/api/qt/stock/get", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data":{"f57":"600519","f58":"Moutai","f43":1712.5,"f170":-0.8,"f168":1.2}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s := NewSource(testClient(t, srv.URL))
	for i := 0; i < 4; i++ {
		got := s.Fetch(context.Background(), []string{"600519"})
		require.Contains(t, got, "600519")
	}
	// three consecutive failures trip the breaker; the fourth cycle skips
	// the batch channel entirely
	require.EqualValues(t, 3, atomic.LoadInt64(&batchCalls))
}

func TestDailyBarsParsing(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/qt/stock/kline/get", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "1.600519", r.URL.Query().Get("secid"))
		require.Equal(t, "101", r.URL.Query().Get("klt"))
		require.Equal(t, "20260331", r.URL.Query().Get("beg")) // 150 days before the fixed clock
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data":{"klines":[
			"2026-08-27,1700.0,1710.0,1715.0,1695.0,12345",
			"2026-08-28,1711.0,1712.5,1720.0,1705.0,23456"
		]}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := testClient(t, srv.URL)
	c.now = func() time.Time { return time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC) }
	bars, err := c.DailyBars(context.Background(), "600519", 150)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	require.Equal(t, 1710.0, bars[0].Close)
	require.Equal(t, 1695.0, bars[0].Low)
	require.Equal(t, time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC), bars[1].Date)
}
