package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"spread-arb-go/journal"
)

func main() {
	csvPath := flag.String("journal", "trades.csv", "成交流水 CSV 路径")
	symbol := flag.String("symbol", "", "仅统计指定交易对 (默认全量)")
	sinceStr := flag.String("since", "", "仅统计此时间之后的记录 (RFC3339，例如 2026-08-01T00:00:00Z)")
	last := flag.Int("last", 0, "额外打印最近 N 笔成交")
	flag.Parse()

	var since time.Time
	var err error
	if *sinceStr != "" {
		since, err = time.Parse(time.RFC3339, *sinceStr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "解析 since 参数失败: %v\n", err)
			os.Exit(1)
		}
	}

	j := journal.New(*csvPath)
	trades, err := j.ReadLast(0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取流水失败: %v\n", err)
		os.Exit(1)
	}

	bySymbol := make(map[string]float64)
	var total float64
	var count int
	for _, t := range trades {
		if *symbol != "" && t.Symbol != *symbol {
			continue
		}
		if !since.IsZero() && t.TS.Before(since) {
			continue
		}
		bySymbol[t.Symbol] += t.PnL
		total += t.PnL
		count++
	}

	fmt.Printf("流水文件: %s\n", *csvPath)
	if *symbol != "" {
		fmt.Printf("交易对: %s\n", *symbol)
	}
	if !since.IsZero() {
		fmt.Printf("起始时间: %s\n", since.Format(time.RFC3339))
	}
	fmt.Printf("成交笔数: %d\n", count)
	fmt.Printf("累计 PnL: %.6f USDT\n", total)

	symbols := make([]string, 0, len(bySymbol))
	for s := range bySymbol {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	for _, s := range symbols {
		fmt.Printf("  %-12s %.6f\n", s, bySymbol[s])
	}

	if *last > 0 {
		fmt.Printf("\n最近 %d 笔:\n", *last)
		shown := 0
		for _, t := range trades {
			if *symbol != "" && t.Symbol != *symbol {
				continue
			}
			fmt.Printf("  %s %-12s %-12s amt=%.6f buy=%.6f sell=%.6f pnl=%.6f\n",
				t.TS.Format(time.RFC3339), t.Symbol, t.Direction,
				t.Amount, t.PriceBuy, t.PriceSell, t.PnL)
			shown++
			if shown >= *last {
				break
			}
		}
	}
}
