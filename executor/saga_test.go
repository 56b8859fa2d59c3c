package executor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"spread-arb-go/market"
	"spread-arb-go/venue"
)

// mockVenue 可编排腿结果的交易所桩。
type mockVenue struct {
	name string

	mu      sync.Mutex
	calls   []venue.Order
	cancels []string
	orders  int

	failSide  venue.Side // 该方向拒单
	delaySide venue.Side // 该方向阻塞到 ctx 截止
	failAll   bool
	failAfter int // >0 时第 N 次成功之后开始拒单
}

func (m *mockVenue) Name() string { return m.name }

func (m *mockVenue) GetOrderBook(ctx context.Context, symbol string) (market.OrderBook, error) {
	return market.OrderBook{}, nil
}

func (m *mockVenue) CreateMarketOrder(ctx context.Context, symbol string, side venue.Side, amount float64, clientOrderID string) (venue.Order, error) {
	if m.delaySide == side {
		<-ctx.Done()
		return venue.Order{}, ctx.Err()
	}
	if m.failAll || (m.failSide != "" && m.failSide == side) {
		return venue.Order{}, &venue.OrderError{Venue: m.name, Symbol: symbol, Reason: "rejected"}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAfter > 0 && m.orders >= m.failAfter {
		return venue.Order{}, &venue.OrderError{Venue: m.name, Symbol: symbol, Reason: "rejected"}
	}
	m.orders++
	o := venue.Order{ID: "oid", Symbol: symbol, Side: side, Amount: amount}
	m.calls = append(m.calls, o)
	return o, nil
}

func (m *mockVenue) CancelOrder(ctx context.Context, symbol, clientOrderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancels = append(m.cancels, clientOrderID)
	return nil
}

func (m *mockVenue) cancelCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cancels)
}

func (m *mockVenue) NormalizeAmount(symbol string, amount float64) float64 { return amount }

func (m *mockVenue) MinNotional(symbol string) float64 { return 0 }

func (m *mockVenue) GetBalance(ctx context.Context) (map[string]float64, error) {
	return map[string]float64{}, nil
}

func (m *mockVenue) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *mockVenue) lastCall() venue.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[len(m.calls)-1]
}

func TestDryRunTouchesNoVenue(t *testing.T) {
	buy, sell := &mockVenue{name: "a"}, &mockVenue{name: "b"}
	s := New(buy, sell, true, nil)

	res := s.ExecuteHedge(context.Background(), "BTC/USDT", 0.5)

	if res.State != StateBothOK {
		t.Fatalf("state = %s", res.State)
	}
	if res.Buy.Status != LegSuccess || res.Sell.Status != LegSuccess {
		t.Fatalf("dry run must look like success")
	}
	if buy.callCount() != 0 || sell.callCount() != 0 {
		t.Fatalf("dry run must not call venue adapters: %d/%d", buy.callCount(), sell.callCount())
	}
}

func TestBothLegsSucceed(t *testing.T) {
	buy, sell := &mockVenue{name: "a"}, &mockVenue{name: "b"}
	s := New(buy, sell, false, nil)

	res := s.ExecuteHedge(context.Background(), "BTC/USDT", 0.5)

	if res.State != StateBothOK {
		t.Fatalf("state = %s", res.State)
	}
	if res.Compensation != nil {
		t.Fatalf("no compensation expected")
	}
	if buy.callCount() != 1 || sell.callCount() != 1 {
		t.Fatalf("exactly one call per venue: %d/%d", buy.callCount(), sell.callCount())
	}
	if buy.lastCall().Side != venue.SideBuy || sell.lastCall().Side != venue.SideSell {
		t.Fatalf("wrong sides")
	}
}

func TestSellLegFailureCompensatesOnBuyVenue(t *testing.T) {
	buy := &mockVenue{name: "a"}
	sell := &mockVenue{name: "b", failSide: venue.SideSell}
	s := New(buy, sell, false, nil)

	res := s.ExecuteHedge(context.Background(), "BTC/USDT", 0.5)

	if res.State != StateCompensated {
		t.Fatalf("state = %s", res.State)
	}
	if res.Buy.Status != LegSuccess || res.Sell.Status != LegFailure {
		t.Fatalf("legs = %s/%s", res.Buy.Status, res.Sell.Status)
	}
	// 补偿 = 在买方所追加一笔市价卖出
	if buy.callCount() != 2 {
		t.Fatalf("buy venue calls = %d, want 2 (leg + compensation)", buy.callCount())
	}
	if got := buy.lastCall(); got.Side != venue.SideSell || got.Amount != 0.5 {
		t.Fatalf("compensation call = %+v", got)
	}
	if sell.callCount() != 0 {
		t.Fatalf("sell venue must not be touched again")
	}
	if res.Compensation == nil || res.Compensation.Status != LegSuccess {
		t.Fatalf("compensation outcome missing")
	}
}

func TestBuyLegFailureCompensatesOnSellVenue(t *testing.T) {
	buy := &mockVenue{name: "a", failSide: venue.SideBuy}
	sell := &mockVenue{name: "b"}
	s := New(buy, sell, false, nil)

	res := s.ExecuteHedge(context.Background(), "ETH/USDT", 2)

	if res.State != StateCompensated {
		t.Fatalf("state = %s", res.State)
	}
	// 补偿 = 在卖方所追加一笔市价买入
	if sell.callCount() != 2 {
		t.Fatalf("sell venue calls = %d, want 2", sell.callCount())
	}
	if got := sell.lastCall(); got.Side != venue.SideBuy {
		t.Fatalf("compensation side = %s", got.Side)
	}
}

func TestCompensationFailureIsLoud(t *testing.T) {
	// 买腿第一次成功，之后买方所开始拒单；卖腿始终失败 → 补偿也失败
	buy := &mockVenue{name: "a", failAfter: 1}
	sell := &mockVenue{name: "b", failAll: true}
	s := New(buy, sell, false, nil)

	res := s.ExecuteHedge(context.Background(), "BTC/USDT", 0.5)

	if res.State != StateCompensationFailed {
		t.Fatalf("state = %s, want COMPENSATION_FAILED", res.State)
	}
	if !res.Unhedged() {
		t.Fatalf("unhedged exposure must be reported")
	}
	if res.Compensation == nil || res.Compensation.Status != LegFailure {
		t.Fatalf("compensation outcome = %+v", res.Compensation)
	}
}

func TestTimeoutLegYieldsTimeoutOutcome(t *testing.T) {
	buy := &mockVenue{name: "a"}
	sell := &mockVenue{name: "b", delaySide: venue.SideSell}
	s := New(buy, sell, false, nil)
	s.SetTimeout(50 * time.Millisecond)

	start := time.Now()
	res := s.ExecuteHedge(context.Background(), "BTC/USDT", 0.5)
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("deadline not honored, took %v", elapsed)
	}

	if res.Sell.Status != LegTimeout {
		t.Fatalf("sell = %s, want TIMEOUT", res.Sell.Status)
	}
	if !errors.Is(res.Sell.Err, context.DeadlineExceeded) {
		t.Fatalf("timeout err = %v", res.Sell.Err)
	}
	// 买腿成功 + 卖腿超时 -> 已补偿
	if res.State != StateCompensated {
		t.Fatalf("state = %s", res.State)
	}
	if buy.callCount() != 2 {
		t.Fatalf("buy venue calls = %d, want leg + compensation", buy.callCount())
	}
	// 超时腿命运未知，须按客户端单号尽力撤销
	if sell.cancelCount() != 1 {
		t.Fatalf("sell venue cancels = %d, want 1", sell.cancelCount())
	}
	if res.Sell.ClientOrderID == "" || sell.cancels[0] != res.Sell.ClientOrderID {
		t.Fatalf("cancel id = %q, leg client id = %q", sell.cancels[0], res.Sell.ClientOrderID)
	}
	if buy.cancelCount() != 0 {
		t.Fatalf("successful leg must not be cancelled")
	}
}

func TestBothFailedNoCompensation(t *testing.T) {
	buy := &mockVenue{name: "a", failAll: true}
	sell := &mockVenue{name: "b", failAll: true}
	s := New(buy, sell, false, nil)

	res := s.ExecuteHedge(context.Background(), "BTC/USDT", 0.5)

	if res.State != StateBothFailed {
		t.Fatalf("state = %s", res.State)
	}
	if res.Compensation != nil {
		t.Fatalf("no exposure, no compensation")
	}
	if buy.callCount() != 0 || sell.callCount() != 0 {
		t.Fatalf("rejected orders recorded as calls")
	}
}
