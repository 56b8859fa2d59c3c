package executor

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"spread-arb-go/venue"
)

// LegStatus 单腿结果分类。
type LegStatus int

const (
	// LegSuccess 交易所确认成交
	LegSuccess LegStatus = iota
	// LegFailure 交易所拒单
	LegFailure
	// LegTimeout 截止时间前未完成，已请求撤销
	LegTimeout
)

func (s LegStatus) String() string {
	switch s {
	case LegSuccess:
		return "SUCCESS"
	case LegFailure:
		return "FAILURE"
	case LegTimeout:
		return "TIMEOUT"
	default:
		return "UNKNOWN"
	}
}

// LegOutcome 一次 saga 调用中每条腿各产生一个。
// ClientOrderID 随单发送，超时后据此撤单。
type LegOutcome struct {
	Status        LegStatus
	OrderID       string
	ClientOrderID string
	Err           error
}

// State saga 终态（含过渡态 PENDING/COMPENSATING，仅日志可见）。
type State string

const (
	StatePending            State = "PENDING"
	StateCompensating       State = "COMPENSATING"
	StateBothOK             State = "BOTH_OK"
	StateCompensated        State = "COMPENSATED"
	StateCompensationFailed State = "COMPENSATION_FAILED"
	StateBothFailed         State = "BOTH_FAILED"
)

// HedgeResult 每次 saga 调用产生一份，返回后归调用方所有，不再修改。
type HedgeResult struct {
	State        State
	Buy          LegOutcome
	Sell         LegOutcome
	Compensation *LegOutcome
}

// Unhedged 报告本次对冲是否留下了真实的未对冲敞口。
func (r HedgeResult) Unhedged() bool {
	return r.State == StateCompensationFailed
}

// DefaultTimeout 两条腿的共同截止时间。
const DefaultTimeout = 5 * time.Second

// Saga 在两个交易所并发执行一买一卖。两腿无法原子提交：
// 单腿成功时同步做一次补偿交易拉平敞口，补偿只尝试一次、不重试。
type Saga struct {
	buy     venue.Venue
	sell    venue.Venue
	dryRun  bool
	timeout time.Duration
	log     *zap.Logger
}

func New(buy, sell venue.Venue, dryRun bool, log *zap.Logger) *Saga {
	if log == nil {
		log = zap.NewNop()
	}
	return &Saga{
		buy:     buy,
		sell:    sell,
		dryRun:  dryRun,
		timeout: DefaultTimeout,
		log:     log,
	}
}

// SetTimeout 覆盖默认的 5 秒截止时间。
func (s *Saga) SetTimeout(d time.Duration) {
	if d > 0 {
		s.timeout = d
	}
}

type legResult struct {
	order venue.Order
	err   error
}

// ExecuteHedge 在买方所市价买入、卖方所市价卖出各 amount。
// dry-run 模式不触碰任何交易所适配器，立即返回合成的成功结果。
func (s *Saga) ExecuteHedge(ctx context.Context, symbol string, amount float64) HedgeResult {
	if s.dryRun {
		s.log.Info("dry_trade",
			zap.String("symbol", symbol),
			zap.Float64("amount", amount))
		leg := LegOutcome{Status: LegSuccess, OrderID: "dry-run"}
		return HedgeResult{State: StateBothOK, Buy: leg, Sell: leg}
	}

	legCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	buyID, sellID := uuid.NewString(), uuid.NewString()
	buyCh := make(chan legResult, 1)
	sellCh := make(chan legResult, 1)
	go func() {
		o, err := s.buy.CreateMarketOrder(legCtx, symbol, venue.SideBuy, amount, buyID)
		buyCh <- legResult{order: o, err: err}
	}()
	go func() {
		o, err := s.sell.CreateMarketOrder(legCtx, symbol, venue.SideSell, amount, sellID)
		sellCh <- legResult{order: o, err: err}
	}()

	res := HedgeResult{State: StatePending}
	res.Buy = classify(<-buyCh, buyID)
	res.Sell = classify(<-sellCh, sellID)

	// 超时的腿命运未知：请求可能仍在途，按客户端单号尽力撤销
	if res.Buy.Status == LegTimeout {
		s.cancelLeg(ctx, s.buy, symbol, buyID)
	}
	if res.Sell.Status == LegTimeout {
		s.cancelLeg(ctx, s.sell, symbol, sellID)
	}

	switch {
	case res.Buy.Status == LegSuccess && res.Sell.Status == LegSuccess:
		res.State = StateBothOK

	case res.Buy.Status == LegSuccess:
		// 意外多头：在买方所市价卖出拉平
		res.State = StateCompensating
		s.log.Warn("sell leg failed, compensating",
			zap.String("symbol", symbol),
			zap.String("sell_status", res.Sell.Status.String()),
			zap.Error(res.Sell.Err))
		comp := s.compensate(ctx, s.buy, symbol, venue.SideSell, amount)
		res.Compensation = &comp
		res.State = compState(comp)

	case res.Sell.Status == LegSuccess:
		// 意外空头：在卖方所市价买入拉平
		res.State = StateCompensating
		s.log.Warn("buy leg failed, compensating",
			zap.String("symbol", symbol),
			zap.String("buy_status", res.Buy.Status.String()),
			zap.Error(res.Buy.Err))
		comp := s.compensate(ctx, s.sell, symbol, venue.SideBuy, amount)
		res.Compensation = &comp
		res.State = compState(comp)

	default:
		// 两腿都没成交，没有敞口需要拉平
		res.State = StateBothFailed
	}

	if res.State == StateCompensationFailed {
		s.log.Error("compensation failed, position unhedged",
			zap.String("symbol", symbol),
			zap.Float64("amount", amount),
			zap.Error(res.Compensation.Err))
	}
	return res
}

// compensate 补偿交易使用独立于两腿截止时间的新预算，
// 调用方取消也不中断（敞口必须尽力拉平）。
func (s *Saga) compensate(ctx context.Context, v venue.Venue, symbol string, side venue.Side, amount float64) LegOutcome {
	compCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	clientID := uuid.NewString()
	o, err := v.CreateMarketOrder(compCtx, symbol, side, amount, clientID)
	return classify(legResult{order: o, err: err}, clientID)
}

// cancelLeg 对命运未知的腿发一次撤单，失败只记录。
func (s *Saga) cancelLeg(ctx context.Context, v venue.Venue, symbol, clientID string) {
	cancelCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	if err := v.CancelOrder(cancelCtx, symbol, clientID); err != nil {
		s.log.Warn("cancel after timeout failed",
			zap.String("venue", v.Name()),
			zap.String("symbol", symbol),
			zap.String("client_order_id", clientID),
			zap.Error(err))
	}
}

func compState(comp LegOutcome) State {
	if comp.Status == LegSuccess {
		return StateCompensated
	}
	return StateCompensationFailed
}

func classify(r legResult, clientID string) LegOutcome {
	if r.err == nil {
		return LegOutcome{Status: LegSuccess, OrderID: r.order.ID, ClientOrderID: clientID}
	}
	if errors.Is(r.err, context.DeadlineExceeded) || errors.Is(r.err, context.Canceled) {
		return LegOutcome{Status: LegTimeout, ClientOrderID: clientID, Err: r.err}
	}
	return LegOutcome{Status: LegFailure, ClientOrderID: clientID, Err: r.err}
}
