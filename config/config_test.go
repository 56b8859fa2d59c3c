package config

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"sync/atomic"
	"testing"
	"time"
)

const sampleYAML = `
logging:
  level: debug
http:
  addr: ":9000"
venues:
  bybit:
    apiKey: bk
    apiSecret: bs
  gate:
    apiKey: gk
    apiSecret: gs
trading:
  symbols: ["BTCUSDT", "eth/usdt", " solusdc "]
  spreadMinBps: 25
  takerFeeBps: 10
  slippageBps: 5
  maxOrderUsd: 120
  dailyLimitUsd: 600
  tickInterval: 2s
  hedgeTimeout: 4s
  dryRun: false
journal:
  path: /tmp/trades.csv
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadNormalizesSymbols(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []string{"BTC/USDT", "ETH/USDT", "SOL/USDC"}
	if !reflect.DeepEqual(cfg.Trading.Symbols, want) {
		t.Fatalf("symbols = %v, want %v", cfg.Trading.Symbols, want)
	}
	if cfg.Trading.TickInterval != 2*time.Second {
		t.Fatalf("tickInterval = %v", cfg.Trading.TickInterval)
	}
	if cfg.Logging.Level != "debug" || cfg.HTTP.Addr != ":9000" {
		t.Fatalf("unexpected logging/http: %+v %+v", cfg.Logging, cfg.HTTP)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
trading:
  symbols: ["BTC/USDT"]
  dryRun: true
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Trading.SpreadMinBps != 30 {
		t.Fatalf("spreadMinBps default = %v", cfg.Trading.SpreadMinBps)
	}
	if cfg.Trading.TakerFeeBps != 10 {
		t.Fatalf("takerFeeBps default = %v", cfg.Trading.TakerFeeBps)
	}
	if cfg.Trading.DailyLimitUSD != 500 {
		t.Fatalf("dailyLimitUsd default = %v", cfg.Trading.DailyLimitUSD)
	}
	if cfg.Trading.HedgeTimeout != 5*time.Second {
		t.Fatalf("hedgeTimeout default = %v", cfg.Trading.HedgeTimeout)
	}
	if cfg.Venues.Bybit.BaseURL == "" || cfg.Venues.Gate.BaseURL == "" {
		t.Fatal("venue base URLs should be defaulted")
	}
	if cfg.Journal.Path != "trades.csv" {
		t.Fatalf("journal path default = %q", cfg.Journal.Path)
	}
}

func TestLoadRejectsLiveWithoutKeys(t *testing.T) {
	_, err := Load(writeConfig(t, `
trading:
  symbols: ["BTC/USDT"]
  dryRun: false
`))
	if err == nil {
		t.Fatal("expected error for live mode without api keys")
	}
}

func TestLoadRejectsDemoWithoutDryRun(t *testing.T) {
	_, err := Load(writeConfig(t, `
venues:
  bybit: {apiKey: a, apiSecret: b}
  gate: {apiKey: c, apiSecret: d}
trading:
  symbols: ["BTC/USDT"]
  dryRun: false
  demoMode: true
`))
	if err == nil {
		t.Fatal("expected error: demoMode without dryRun")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ARB_BYBIT_API_KEY", "env-key")
	t.Setenv("ARB_SYMBOLS", "dogeusdt, BTC/USDT")
	t.Setenv("ARB_DRY_RUN", "true")

	cfg, err := LoadWithEnvOverrides(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("LoadWithEnvOverrides: %v", err)
	}
	if cfg.Venues.Bybit.APIKey != "env-key" {
		t.Fatalf("apiKey = %q", cfg.Venues.Bybit.APIKey)
	}
	want := []string{"DOGE/USDT", "BTC/USDT"}
	if !reflect.DeepEqual(cfg.Trading.Symbols, want) {
		t.Fatalf("symbols = %v, want %v", cfg.Trading.Symbols, want)
	}
	if !cfg.Trading.DryRun {
		t.Fatal("dryRun should be overridden to true")
	}
}

func TestNormalizeSymbols(t *testing.T) {
	cases := map[string]string{
		"BTCUSDT":  "BTC/USDT",
		"btcusdt":  "BTC/USDT",
		"ETH/USDT": "ETH/USDT",
		"solUSDC":  "SOL/USDC",
		"USDT":     "USDT",
		"  ":       "",
		"BNB":      "BNB",
	}
	for in, want := range cases {
		got := normalizeSymbol(in)
		if got != want {
			t.Errorf("normalizeSymbol(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, sampleYAML)

	var reloads atomic.Int32
	var lastBps atomic.Value
	w, err := NewWatcher(path, 10*time.Millisecond, nil, func(cfg AppConfig) {
		reloads.Add(1)
		lastBps.Store(cfg.Trading.SpreadMinBps)
	})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := os.WriteFile(path, []byte(sampleYAML+"\n"), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for reloads.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("watcher did not fire within 2s")
		case <-time.After(20 * time.Millisecond):
		}
	}
	if got := lastBps.Load().(float64); got != 25 {
		t.Fatalf("reloaded spreadMinBps = %v, want 25", got)
	}
}
