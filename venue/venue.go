package venue

import (
	"context"
	"fmt"
	"math"

	"spread-arb-go/market"
)

// Side 订单方向。
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Order 市价单回报。
type Order struct {
	ID     string
	Symbol string
	Side   Side
	Amount float64
}

// OrderError 交易所拒单或无法成交。
type OrderError struct {
	Venue  string
	Symbol string
	Reason string
	Err    error
}

func (e *OrderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s order %s: %s: %v", e.Venue, e.Symbol, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s order %s: %s", e.Venue, e.Symbol, e.Reason)
}

func (e *OrderError) Unwrap() error { return e.Err }

// Venue 单个交易所适配器需要提供的能力集合，每个交易所一种实现。
// symbol 一律使用通用形式（如 BTC/USDT），由实现方转换为交易所自身格式。
type Venue interface {
	Name() string

	// GetOrderBook 返回按最优价在前排序的盘口快照。
	GetOrderBook(ctx context.Context, symbol string) (market.OrderBook, error)

	// CreateMarketOrder 下市价单；clientOrderID 由调用方生成并随单发送，
	// 请求超时后据此撤单。被拒绝时返回 *OrderError。
	CreateMarketOrder(ctx context.Context, symbol string, side Side, amount float64, clientOrderID string) (Order, error)

	// CancelOrder 以客户端订单号撤单（尽力而为）。
	CancelOrder(ctx context.Context, symbol, clientOrderID string) error

	// NormalizeAmount 将数量向下取整到交易所的最小交易步长；
	// 结果不为负、不大于输入。
	NormalizeAmount(symbol string, amount float64) float64

	// MinNotional 交易所接受的最小下单金额，未知时返回 0。
	MinNotional(symbol string) float64

	// GetBalance 返回各币种总余额。
	GetBalance(ctx context.Context) (map[string]float64, error)
}

// RoundStep 把 value 向下取整到 step 的整数倍；step<=0 时原样返回。
// 商先加容差再取整，吸收 value/step 的浮点误差；结果不超过输入，
// 因此对已归一的值再次取整不会再掉一个步长。
func RoundStep(value, step float64) float64 {
	if step <= 0 {
		return value
	}
	floored := math.Floor(value/step+1e-8) * step
	if floored > value {
		return value
	}
	return floored
}
