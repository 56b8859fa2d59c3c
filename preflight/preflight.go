package preflight

import (
	"context"
	"fmt"
	"strings"

	"spread-arb-go/venue"
)

// MarketLoader 需要显式拉取市场元数据的交易所实现该接口。
type MarketLoader interface {
	LoadMarkets(ctx context.Context) error
}

// Check 上线前自检：交易所连通、市场元数据齐全、余额可取。
// 任一问题即返回错误，错误信息汇总全部问题。
func Check(ctx context.Context, a, b venue.Venue, symbols []string) error {
	if len(symbols) == 0 {
		return fmt.Errorf("preflight: no symbols")
	}

	for _, v := range []venue.Venue{a, b} {
		if ml, ok := v.(MarketLoader); ok {
			if err := ml.LoadMarkets(ctx); err != nil {
				return fmt.Errorf("preflight: %s load markets: %w", v.Name(), err)
			}
		}
		if _, err := v.GetOrderBook(ctx, symbols[0]); err != nil {
			return fmt.Errorf("preflight: %s orderbook %s: %w", v.Name(), symbols[0], err)
		}
	}

	var problems []string
	for _, sym := range symbols {
		if a.MinNotional(sym) == 0 || b.MinNotional(sym) == 0 {
			problems = append(problems, fmt.Sprintf("%s: min notional unknown (check markets)", sym))
		}
		if a.NormalizeAmount(sym, 1) <= 0 || b.NormalizeAmount(sym, 1) <= 0 {
			problems = append(problems, fmt.Sprintf("%s: lot step looks invalid", sym))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("preflight: %s", strings.Join(problems, " / "))
	}

	for _, v := range []venue.Venue{a, b} {
		bal, err := v.GetBalance(ctx)
		if err != nil {
			return fmt.Errorf("preflight: %s balance: %w", v.Name(), err)
		}
		if len(bal) == 0 {
			return fmt.Errorf("preflight: %s balance empty", v.Name())
		}
	}

	return nil
}
