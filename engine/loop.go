package engine

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"spread-arb-go/executor"
	"spread-arb-go/infrastructure/alert"
	"spread-arb-go/journal"
	"spread-arb-go/market"
	"spread-arb-go/monitor"
	"spread-arb-go/risk"
	"spread-arb-go/spread"
	"spread-arb-go/venue"
)

// Config 循环的运行参数；可整体热替换。
type Config struct {
	Symbols       []string
	SpreadMinBps  float64
	TakerFeeBps   float64
	SlippageBps   float64
	MinNotional   float64
	MaxOrderUSD   float64
	DailyLimitUSD float64
	TickInterval  time.Duration
	HedgeTimeout  time.Duration
	DryRun        bool
	DemoMode      bool
}

// Ledger 成交流水落地端，fire-and-forget。
type Ledger interface {
	Append(t journal.Trade) error
}

// Deps 循环依赖的协作组件。
type Deps struct {
	VenueA    venue.Venue
	VenueB    venue.Venue
	AntiFlood *risk.AntiFlood
	Limit     *risk.DailyLimit
	Ledger    Ledger
	Metrics   *Metrics
	Monitor   *monitor.Monitor
	Alerts    *alert.Manager
	Log       *zap.Logger
}

// Loop 每个 tick 按固定顺序扫描全部 symbol：
// 取两所盘口 → 算价差 → 风控 → 定量 → saga 执行 → 落账 + 指标。
// symbol 之间严格串行，任一时刻最多一个 saga 在飞，
// 资金占用因此天然被串行化。单个 symbol 的错误不会中断扫描。
type Loop struct {
	cfgMu sync.RWMutex
	cfg   Config

	venueA    venue.Venue
	venueB    venue.Venue
	antiflood *risk.AntiFlood
	limit     *risk.DailyLimit
	ledger    Ledger
	metrics   *Metrics
	mon       *monitor.Monitor
	alerts    *alert.Manager
	log       *zap.Logger

	paused atomic.Bool
}

func NewLoop(cfg Config, d Deps) (*Loop, error) {
	if d.VenueA == nil || d.VenueB == nil {
		return nil, fmt.Errorf("both venues are required")
	}
	if d.Ledger == nil {
		return nil, fmt.Errorf("ledger is required")
	}
	if len(cfg.Symbols) == 0 {
		return nil, fmt.Errorf("no symbols configured")
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.HedgeTimeout <= 0 {
		cfg.HedgeTimeout = executor.DefaultTimeout
	}
	if d.Metrics == nil {
		d.Metrics = NewMetrics()
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Alerts == nil {
		d.Alerts = alert.NewManager(time.Minute)
	}
	return &Loop{
		cfg:       cfg,
		venueA:    d.VenueA,
		venueB:    d.VenueB,
		antiflood: d.AntiFlood,
		limit:     d.Limit,
		ledger:    d.Ledger,
		metrics:   d.Metrics,
		mon:       d.Monitor,
		alerts:    d.Alerts,
		log:       d.Log,
	}, nil
}

// Metrics 返回滚动指标（HTTP 层读取快照）。
func (l *Loop) Metrics() *Metrics { return l.metrics }

// UpdateConfig 热替换运行参数，下一个 tick 生效。
func (l *Loop) UpdateConfig(cfg Config) {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.HedgeTimeout <= 0 {
		cfg.HedgeTimeout = executor.DefaultTimeout
	}
	l.cfgMu.Lock()
	l.cfg = cfg
	l.cfgMu.Unlock()
	l.log.Info("config updated",
		zap.Float64("spread_min_bps", cfg.SpreadMinBps),
		zap.Float64("max_order_usd", cfg.MaxOrderUSD))
}

// SetPaused 暂停/恢复扫描（stop_trading 开关）。
func (l *Loop) SetPaused(p bool) { l.paused.Store(p) }

func (l *Loop) config() Config {
	l.cfgMu.RLock()
	defer l.cfgMu.RUnlock()
	return l.cfg
}

// Run 固定节奏扫描，直到 ctx 取消。
func (l *Loop) Run(ctx context.Context) error {
	l.log.Info("arbitrage loop started")
	ticker := time.NewTicker(l.config().TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			l.log.Info("arbitrage loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if l.paused.Load() {
				continue
			}
			l.RunTick(ctx)
		}
	}
}

// RunTick 扫描一轮全部 symbol。单个 symbol 的任何错误只记录不传播。
func (l *Loop) RunTick(ctx context.Context) {
	for _, symbol := range l.config().Symbols {
		if ctx.Err() != nil {
			return
		}
		if err := l.runSymbol(ctx, symbol); err != nil {
			l.metrics.SetLastError(err)
			l.log.Warn("trade loop error",
				zap.String("symbol", symbol),
				zap.Error(err))
		}
	}
}

func (l *Loop) runSymbol(ctx context.Context, symbol string) error {
	cfg := l.config()

	var obA, obB market.OrderBook
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		obA, err = l.venueA.GetOrderBook(gctx, symbol)
		return err
	})
	g.Go(func() error {
		var err error
		obB, err = l.venueB.GetOrderBook(gctx, symbol)
		return err
	})
	if err := g.Wait(); err != nil {
		if l.mon != nil {
			l.mon.QuoteError()
		}
		return fmt.Errorf("fetch quotes %s: %w", symbol, err)
	}

	aBid, aAsk := obA.BestBid(), obA.BestAsk()
	bBid, bAsk := obB.BestBid(), obB.BestAsk()
	if aBid <= 0 || aAsk <= 0 || bBid <= 0 || bAsk <= 0 {
		if l.mon != nil {
			l.mon.QuoteError()
		}
		return fmt.Errorf("empty order book for %s", symbol)
	}

	r1, r2 := spread.Compute(spread.Input{
		BidA: aBid, AskA: aAsk,
		BidB: bBid, AskB: bAsk,
		TakerFeeBps: cfg.TakerFeeBps,
		SlippageBps: cfg.SlippageBps,
	})
	best := math.Max(r1.SpreadBps, r2.SpreadBps)
	l.metrics.ObserveSpread(best)
	if l.mon != nil {
		l.mon.ObserveSpread(symbol, best)
	}

	// 固定顺序选第一个达标方向
	var (
		dir                 spread.Direction
		buyVenue, sellVenue venue.Venue
		obBuy, obSell       market.OrderBook
		pxBuy, pxSell       float64
		demo                bool
	)
	switch {
	case r1.Qualifies(cfg.SpreadMinBps):
		dir, buyVenue, sellVenue = r1.Direction, l.venueA, l.venueB
		obBuy, obSell = obA, obB
		pxBuy, pxSell = aAsk, bBid
	case r2.Qualifies(cfg.SpreadMinBps):
		dir, buyVenue, sellVenue = r2.Direction, l.venueB, l.venueA
		obBuy, obSell = obB, obA
		pxBuy, pxSell = bAsk, aBid
	case cfg.DryRun && cfg.DemoMode:
		// 演示通道：没有真实机会时合成一个小正价差，让流水线可被演练。
		// 只在 dry-run 下生效，不会触达真实下单。
		dir, buyVenue, sellVenue = spread.BuyASellB, l.venueA, l.venueB
		pxBuy, pxSell = aAsk, aAsk*1.0003
		demo = true
	default:
		return nil
	}

	if l.antiflood != nil {
		if err := l.antiflood.Check(symbol); err != nil {
			if l.mon != nil {
				l.mon.RiskReject("antiflood")
			}
			l.log.Debug("risk reject", zap.Error(err))
			return nil
		}
	}

	target := math.Min(cfg.MaxOrderUSD, cfg.DailyLimitUSD)
	if l.limit != nil {
		if err := l.limit.Check(target); err != nil {
			if l.mon != nil {
				l.mon.RiskReject("daily_limit")
			}
			l.alerts.Fire("WARNING", "daily budget exhausted", map[string]interface{}{
				"symbol": symbol,
				"spent":  l.limit.Spent(),
			})
			l.log.Debug("risk reject", zap.Error(err))
			return nil
		}
	}

	// 名义金额要满足双方交易所和全局的最小名义
	usdBase := target
	for _, floor := range []float64{buyVenue.MinNotional(symbol), sellVenue.MinNotional(symbol), cfg.MinNotional} {
		if floor > usdBase {
			usdBase = floor
		}
	}
	rawQty := usdBase / pxBuy
	amount := math.Min(
		buyVenue.NormalizeAmount(symbol, rawQty),
		sellVenue.NormalizeAmount(symbol, rawQty),
	)
	if amount <= 0 {
		if l.mon != nil {
			l.mon.RiskReject("lot_step")
		}
		return nil
	}

	// 保护带内的累计深度要能吃下整个数量，薄盘口直接放弃
	// （演示通道的卖价是合成的，不做该检查）
	if !demo {
		buyOK := market.EnoughDepth(obBuy, "buy", amount, market.BandedLimit(pxBuy, cfg.SlippageBps, "buy"))
		sellOK := market.EnoughDepth(obSell, "sell", amount, market.BandedLimit(pxSell, cfg.SlippageBps, "sell"))
		if !buyOK || !sellOK {
			if l.mon != nil {
				l.mon.RiskReject("depth")
			}
			l.log.Debug("thin book, skipping",
				zap.String("symbol", symbol),
				zap.Float64("amount", amount))
			return nil
		}
	}

	saga := executor.New(buyVenue, sellVenue, cfg.DryRun, l.log)
	saga.SetTimeout(cfg.HedgeTimeout)
	start := time.Now()
	res := saga.ExecuteHedge(ctx, symbol, amount)
	elapsedMs := float64(time.Since(start).Microseconds()) / 1000.0
	l.metrics.ObserveExecution(elapsedMs)
	if l.mon != nil {
		l.mon.ObserveExecution(elapsedMs)
		if res.Compensation != nil {
			if res.State == executor.StateCompensated {
				l.mon.Compensation("ok")
			} else {
				l.mon.Compensation("failed")
			}
		}
	}

	switch res.State {
	case executor.StateBothFailed:
		return fmt.Errorf("hedge %s failed on both legs: buy=%v sell=%v",
			symbol, res.Buy.Err, res.Sell.Err)
	case executor.StateCompensationFailed:
		l.alerts.Fire("CRITICAL", "unhedged exposure after failed compensation", map[string]interface{}{
			"symbol": symbol,
			"amount": amount,
		})
		return fmt.Errorf("hedge %s compensation failed, unhedged %f: %v",
			symbol, amount, res.Compensation.Err)
	}

	pnl := (pxSell - pxBuy) * amount
	if err := l.ledger.Append(journal.Trade{
		TS:        time.Now().UTC(),
		Symbol:    symbol,
		Direction: string(dir),
		Amount:    amount,
		PriceBuy:  pxBuy,
		PriceSell: pxSell,
		PnL:       pnl,
	}); err != nil {
		l.log.Warn("ledger append failed", zap.Error(err))
	}

	success := res.State == executor.StateBothOK
	l.metrics.TradeRecorded(success)
	if l.limit != nil {
		l.limit.Add(usdBase)
	}
	if l.mon != nil {
		l.mon.TradeExecuted(success, usdBase)
		if l.limit != nil {
			l.mon.SetDailySpent(l.limit.Spent())
		}
	}
	l.log.Info("hedge executed",
		zap.String("symbol", symbol),
		zap.String("direction", string(dir)),
		zap.String("state", string(res.State)),
		zap.Float64("amount", amount),
		zap.Float64("price_buy", pxBuy),
		zap.Float64("price_sell", pxSell),
		zap.Float64("pnl", pnl))
	return nil
}
