package web

import (
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"spread-arb-go/engine"
	"spread-arb-go/journal"
	"spread-arb-go/monitor"
)

func testServer(t *testing.T) (*Server, *engine.Metrics, *journal.Journal) {
	t.Helper()
	m := engine.NewMetrics()
	j := journal.New(filepath.Join(t.TempDir(), "trades.csv"))
	srv := &Server{
		Metrics: m,
		Journal: j,
		Monitor: monitor.New(monitor.DefaultConfig()),
	}
	return srv, m, j
}

func get(t *testing.T, srv *Server, path string, out interface{}) int {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if out != nil {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("decode %s: %v (%s)", path, err, rec.Body.String())
		}
	}
	return rec.Code
}

func TestRootIndex(t *testing.T) {
	srv, _, _ := testServer(t)
	var body map[string]interface{}
	if code := get(t, srv, "/", &body); code != 200 {
		t.Fatalf("status %d", code)
	}
	if body["ok"] != true {
		t.Fatalf("body = %v", body)
	}
}

func TestStatusSnapshot(t *testing.T) {
	srv, m, _ := testServer(t)
	m.ObserveSpread(100)
	m.TradeRecorded(true)

	var snap engine.Snapshot
	if code := get(t, srv, "/status", &snap); code != 200 {
		t.Fatalf("status %d", code)
	}
	if snap.TotalTrades != 1 || snap.SuccessTrades != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if snap.AvgSpreadBps != 10.0 {
		t.Fatalf("avg spread = %f", snap.AvgSpreadBps)
	}
}

func TestTradesAndPnL(t *testing.T) {
	srv, _, j := testServer(t)
	for i := 0; i < 3; i++ {
		if err := j.Append(journal.Trade{
			TS: time.Now(), Symbol: "BTC/USDT", Direction: "buy_a_sell_b",
			Amount: 1, PriceBuy: 100, PriceSell: 101, PnL: 1,
		}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	var trades struct {
		Count int `json:"count"`
		Items []struct {
			Symbol string `json:"symbol"`
		} `json:"items"`
	}
	if code := get(t, srv, "/trades?limit=2", &trades); code != 200 {
		t.Fatalf("status %d", code)
	}
	if trades.Count != 2 || len(trades.Items) != 2 {
		t.Fatalf("trades = %+v", trades)
	}

	var pnl journal.Summary
	if code := get(t, srv, "/pnl", &pnl); code != 200 {
		t.Fatalf("status %d", code)
	}
	if pnl.Count != 3 || pnl.Total != 3 {
		t.Fatalf("pnl = %+v", pnl)
	}
	if pnl.BySymbol["BTC/USDT"] != 3 {
		t.Fatalf("by symbol = %v", pnl.BySymbol)
	}
}

func TestMetricsEndpointServesProm(t *testing.T) {
	srv, _, _ := testServer(t)
	srv.Monitor.TradeExecuted(true, 100)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != 200 {
		t.Fatalf("status %d", rec.Code)
	}
	if got := rec.Body.String(); !strings.Contains(got, "arb_engine_trades_total") {
		t.Fatalf("prometheus output missing trades_total: %s", got)
	}
}
