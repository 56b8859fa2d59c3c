package journal

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"
)

// Trade 一条完成的套利成交记录。
type Trade struct {
	TS        time.Time
	Symbol    string
	Direction string
	Amount    float64
	PriceBuy  float64
	PriceSell float64
	FeeBuy    float64
	FeeSell   float64
	PnL       float64
}

var header = []string{
	"ts", "symbol", "direction", "amount",
	"price_buy", "price_sell", "fee_buy", "fee_sell", "pnl",
}

// Journal 追加式 CSV 成交流水。核心只依赖 Append；
// ReadLast/Summary 供 HTTP 接口与离线报表使用。
type Journal struct {
	path string
	mu   sync.Mutex
}

func New(path string) *Journal {
	if path == "" {
		path = "trades.csv"
	}
	return &Journal{path: path}
}

func (j *Journal) ensure() error {
	if _, err := os.Stat(j.path); err == nil {
		return nil
	}
	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

// Append 追加一条成交记录（fire-and-forget 的落地端）。
func (j *Journal) Append(t Trade) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.ensure(); err != nil {
		return fmt.Errorf("journal ensure: %w", err)
	}
	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("journal open: %w", err)
	}
	defer f.Close()
	w := csv.NewWriter(f)
	row := []string{
		t.TS.UTC().Format(time.RFC3339Nano),
		t.Symbol,
		t.Direction,
		formatF(t.Amount),
		formatF(t.PriceBuy),
		formatF(t.PriceSell),
		formatF(t.FeeBuy),
		formatF(t.FeeSell),
		formatF(t.PnL),
	}
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

// ReadLast 返回最近 limit 条记录，最新在前。
func (j *Journal) ReadLast(limit int) ([]Trade, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.ensure(); err != nil {
		return nil, err
	}
	f, err := os.Open(j.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) <= 1 {
		return nil, nil
	}
	data := rows[1:]
	if limit > 0 && len(data) > limit {
		data = data[len(data)-limit:]
	}
	out := make([]Trade, 0, len(data))
	for i := len(data) - 1; i >= 0; i-- {
		t, err := parseRow(data[i])
		if err != nil {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// Summary 全量 PnL 汇总。
type Summary struct {
	Total    float64            `json:"total"`
	BySymbol map[string]float64 `json:"by_symbol"`
	Count    int                `json:"count"`
}

func (j *Journal) Summary() (Summary, error) {
	trades, err := j.ReadLast(0)
	if err != nil {
		return Summary{}, err
	}
	s := Summary{BySymbol: make(map[string]float64)}
	for _, t := range trades {
		s.Total += t.PnL
		s.BySymbol[t.Symbol] += t.PnL
		s.Count++
	}
	return s, nil
}

func parseRow(row []string) (Trade, error) {
	if len(row) != len(header) {
		return Trade{}, fmt.Errorf("malformed row: %d fields", len(row))
	}
	ts, err := time.Parse(time.RFC3339Nano, row[0])
	if err != nil {
		return Trade{}, err
	}
	return Trade{
		TS:        ts,
		Symbol:    row[1],
		Direction: row[2],
		Amount:    parseF(row[3]),
		PriceBuy:  parseF(row[4]),
		PriceSell: parseF(row[5]),
		FeeBuy:    parseF(row[6]),
		FeeSell:   parseF(row[7]),
		PnL:       parseF(row[8]),
	}, nil
}

func formatF(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func parseF(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
