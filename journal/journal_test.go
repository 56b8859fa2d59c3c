package journal

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAppendReadSummary(t *testing.T) {
	j := New(filepath.Join(t.TempDir(), "trades.csv"))

	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, j.Append(Trade{
		TS: ts, Symbol: "BTC/USDT", Direction: "buy_a_sell_b",
		Amount: 0.01, PriceBuy: 100.0, PriceSell: 100.5, PnL: 0.005,
	}))
	require.NoError(t, j.Append(Trade{
		TS: ts.Add(time.Minute), Symbol: "ETH/USDT", Direction: "buy_b_sell_a",
		Amount: 0.1, PriceBuy: 10.0, PriceSell: 9.9, PnL: -0.01,
	}))

	rows, err := j.ReadLast(10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	// newest first
	require.Equal(t, "ETH/USDT", rows[0].Symbol)
	require.Equal(t, "BTC/USDT", rows[1].Symbol)
	require.Equal(t, 0.01, rows[1].Amount)
	require.True(t, rows[1].TS.Equal(ts))

	s, err := j.Summary()
	require.NoError(t, err)
	require.Equal(t, 2, s.Count)
	require.InDelta(t, -0.005, s.Total, 1e-9)
	require.Contains(t, s.BySymbol, "BTC/USDT")
	require.Contains(t, s.BySymbol, "ETH/USDT")
}

func TestReadLastLimit(t *testing.T) {
	j := New(filepath.Join(t.TempDir(), "trades.csv"))
	for i := 0; i < 5; i++ {
		require.NoError(t, j.Append(Trade{
			TS: time.Now(), Symbol: "BTC/USDT", Direction: "test",
			Amount: float64(i), PriceBuy: 1, PriceSell: 1,
		}))
	}
	rows, err := j.ReadLast(2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	// last two appended, newest first
	require.Equal(t, 4.0, rows[0].Amount)
	require.Equal(t, 3.0, rows[1].Amount)
}

func TestEmptyJournal(t *testing.T) {
	j := New(filepath.Join(t.TempDir(), "trades.csv"))
	rows, err := j.ReadLast(10)
	require.NoError(t, err)
	require.Empty(t, rows)
	s, err := j.Summary()
	require.NoError(t, err)
	require.Equal(t, 0, s.Count)
	require.True(t, math.Abs(s.Total) == 0)
}
