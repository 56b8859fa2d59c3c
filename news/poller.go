package news

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"spread-arb-go/engine"
	"spread-arb-go/executor"
	"spread-arb-go/journal"
	"spread-arb-go/venue"
)

// Config 新闻轮询参数。
type Config struct {
	SourceURL string
	PollEvery time.Duration
	OrderUSD  float64
	Whitelist []string
	Quote     string
}

// Poller 周期拉取新闻源，正面信号触发单所 dry-run 对冲，
// 成交写入流水并计入指标。与主套利循环互不干扰。
type Poller struct {
	cfg     Config
	venue   venue.Venue
	ledger  engine.Ledger
	metrics *engine.Metrics
	log     *zap.Logger

	// 测试时可替换
	HTTPClient *http.Client
}

func NewPoller(cfg Config, v venue.Venue, ledger engine.Ledger, metrics *engine.Metrics, log *zap.Logger) *Poller {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 3 * time.Second
	}
	if cfg.Quote == "" {
		cfg.Quote = "USDT"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Poller{
		cfg:        cfg,
		venue:      v,
		ledger:     ledger,
		metrics:    metrics,
		log:        log,
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// Run 阻塞轮询直到 ctx 取消。单次轮询出错只记录，不退出。
func (p *Poller) Run(ctx context.Context) {
	if p.cfg.SourceURL == "" {
		return
	}
	ticker := time.NewTicker(p.cfg.PollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.Poll(ctx); err != nil {
				p.metrics.SetLastError(fmt.Errorf("news: %w", err))
				p.log.Warn("news poll failed", zap.Error(err))
			}
		}
	}
}

// Poll 执行一次拉取与决策。无信号不算错误。
func (p *Poller) Poll(ctx context.Context) error {
	html, err := p.fetch(ctx)
	if err != nil {
		return err
	}

	signal := Decide(Parse(html), p.cfg.Whitelist)
	if signal == nil {
		return nil
	}

	symbol := signal.Ticker + "/" + p.cfg.Quote
	ob, err := p.venue.GetOrderBook(ctx, symbol)
	if err != nil {
		return fmt.Errorf("orderbook %s: %w", symbol, err)
	}
	bid, ask := ob.BestBid(), ob.BestAsk()
	if bid <= 0 || ask <= 0 {
		return fmt.Errorf("empty book for %s", symbol)
	}

	amount := p.venue.NormalizeAmount(symbol, p.cfg.OrderUSD/ask)
	if amount <= 0 {
		return nil
	}

	// 单所两腿 dry-run：买卖同一家，永不触达真实资金
	saga := executor.New(p.venue, p.venue, true, p.log)
	res := saga.ExecuteHedge(ctx, symbol, amount)
	if res.State != executor.StateBothOK {
		return fmt.Errorf("hedge %s ended %s", symbol, res.State)
	}

	pnl := (bid - ask) * amount
	trade := journal.Trade{
		TS:        time.Now().UTC(),
		Symbol:    symbol,
		Direction: "news_long",
		Amount:    amount,
		PriceBuy:  ask,
		PriceSell: bid,
		PnL:       pnl,
	}
	if err := p.ledger.Append(trade); err != nil {
		return fmt.Errorf("journal: %w", err)
	}
	p.metrics.TradeRecorded(true)
	p.log.Info("news trade recorded",
		zap.String("symbol", symbol),
		zap.String("ticker", signal.Ticker),
		zap.Float64("amount", amount),
		zap.Float64("pnl", pnl))
	return nil
}

func (p *Poller) fetch(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.SourceURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch news: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("news source status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	return string(body), nil
}
