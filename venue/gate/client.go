package gate

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"spread-arb-go/market"
	"spread-arb-go/venue"
)

// Client 一个可签名的简化 Gate v4 现货客户端；HTTPClient 可注入 httptest。
type Client struct {
	BaseURL    string
	APIKey     string
	Secret     string
	HTTPClient *http.Client
	Limiter    venue.RateLimiter

	mu      sync.RWMutex
	markets map[string]marketInfo // 交易所格式 symbol -> 精度/限额
}

type marketInfo struct {
	LotStep     float64
	MinNotional float64
}

// timeNowUnix 可替换以便测试产生确定性签名。
var timeNowUnix = func() int64 { return time.Now().Unix() }

func (c *Client) Name() string { return "gate" }

// Symbol 把通用符号转成交易所格式：BTC/USDT -> BTC_USDT。
func (c *Client) Symbol(common string) string {
	return strings.ToUpper(strings.ReplaceAll(common, "/", "_"))
}

func (c *Client) wait() {
	if c.Limiter != nil {
		c.Limiter.Wait()
	}
}

// sign 按 v4 规则签名：HMAC_SHA512(method\npath\nquery\nsha512(body)\nts)。
func (c *Client) sign(method, path, query, body, ts string) string {
	payload := sha512.Sum512([]byte(body))
	msg := strings.Join([]string{method, path, query, hex.EncodeToString(payload[:]), ts}, "\n")
	h := hmac.New(sha512.New, []byte(c.Secret))
	h.Write([]byte(msg))
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Client) do(ctx context.Context, method, path, query string, body []byte, signed bool, out interface{}) error {
	if c == nil || c.HTTPClient == nil {
		return fmt.Errorf("http client not set")
	}
	c.wait()
	endpoint := c.BaseURL + path
	if query != "" {
		endpoint += "?" + query
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if signed {
		ts := strconv.FormatInt(timeNowUnix(), 10)
		req.Header.Set("KEY", c.APIKey)
		req.Header.Set("Timestamp", ts)
		req.Header.Set("SIGN", c.sign(method, path, query, string(body), ts))
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("gate %s %s status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type currencyPair struct {
	ID              string `json:"id"`
	AmountPrecision int    `json:"amount_precision"`
	MinQuoteAmount  string `json:"min_quote_amount"`
}

// LoadMarkets 拉取交易对精度与最小名义并缓存；启动时调用一次。
func (c *Client) LoadMarkets(ctx context.Context) error {
	var pairs []currencyPair
	if err := c.do(ctx, http.MethodGet, "/api/v4/spot/currency_pairs", "", nil, false, &pairs); err != nil {
		return fmt.Errorf("load markets: %w", err)
	}
	mk := make(map[string]marketInfo, len(pairs))
	for _, p := range pairs {
		minQuote, _ := strconv.ParseFloat(p.MinQuoteAmount, 64)
		mk[p.ID] = marketInfo{
			LotStep:     math.Pow(10, -float64(p.AmountPrecision)),
			MinNotional: minQuote,
		}
	}
	c.mu.Lock()
	c.markets = mk
	c.mu.Unlock()
	return nil
}

func (c *Client) marketFor(common string) (marketInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.markets[c.Symbol(common)]
	return m, ok
}

// NormalizeAmount 把数量向下取整到 lot step。
func (c *Client) NormalizeAmount(symbol string, amount float64) float64 {
	if amount <= 0 {
		return 0
	}
	m, ok := c.marketFor(symbol)
	if !ok {
		return amount
	}
	return venue.RoundStep(amount, m.LotStep)
}

// MinNotional 最小下单金额，未知返回 0。
func (c *Client) MinNotional(symbol string) float64 {
	m, ok := c.marketFor(symbol)
	if !ok {
		return 0
	}
	return m.MinNotional
}

type rawBook struct {
	Bids [][]string `json:"bids"`
	Asks [][]string `json:"asks"`
}

// GetOrderBook 返回现货盘口快照。
func (c *Client) GetOrderBook(ctx context.Context, symbol string) (market.OrderBook, error) {
	query := "currency_pair=" + c.Symbol(symbol) + "&limit=25"
	var rb rawBook
	if err := c.do(ctx, http.MethodGet, "/api/v4/spot/order_book", query, nil, false, &rb); err != nil {
		return market.OrderBook{}, err
	}
	return market.OrderBook{
		Bids: parseLevels(rb.Bids),
		Asks: parseLevels(rb.Asks),
	}, nil
}

type orderResp struct {
	ID string `json:"id"`
}

// CreateMarketOrder 下现货市价单（IOC）。数量会先按步长归一。
func (c *Client) CreateMarketOrder(ctx context.Context, symbol string, side venue.Side, amount float64, clientOrderID string) (venue.Order, error) {
	amt := c.NormalizeAmount(symbol, amount)
	if amt <= 0 {
		return venue.Order{}, &venue.OrderError{Venue: c.Name(), Symbol: symbol, Reason: "amount below lot step"}
	}
	if clientOrderID == "" {
		clientOrderID = uuid.NewString()
	}
	body, err := json.Marshal(map[string]string{
		"currency_pair": c.Symbol(symbol),
		"type":          "market",
		"account":       "spot",
		"side":          string(side),
		"amount":        strconv.FormatFloat(amt, 'f', -1, 64),
		"time_in_force": "ioc",
		"text":          "t-" + clientOrderID,
	})
	if err != nil {
		return venue.Order{}, err
	}
	var or orderResp
	if err := c.do(ctx, http.MethodPost, "/api/v4/spot/orders", "", body, true, &or); err != nil {
		return venue.Order{}, &venue.OrderError{Venue: c.Name(), Symbol: symbol, Reason: "create rejected", Err: err}
	}
	if or.ID == "" {
		return venue.Order{}, &venue.OrderError{Venue: c.Name(), Symbol: symbol, Reason: "empty order id"}
	}
	return venue.Order{ID: or.ID, Symbol: symbol, Side: side, Amount: amt}, nil
}

// CancelOrder 以客户端订单号撤单；t- 前缀让 gate 按自定义单号查找。
func (c *Client) CancelOrder(ctx context.Context, symbol, clientOrderID string) error {
	query := "currency_pair=" + c.Symbol(symbol)
	return c.do(ctx, http.MethodDelete, "/api/v4/spot/orders/t-"+clientOrderID, query, nil, true, nil)
}

type account struct {
	Currency  string `json:"currency"`
	Available string `json:"available"`
	Locked    string `json:"locked"`
}

// GetBalance 返回各币种总余额（可用+冻结）。
func (c *Client) GetBalance(ctx context.Context) (map[string]float64, error) {
	var accounts []account
	if err := c.do(ctx, http.MethodGet, "/api/v4/spot/accounts", "", nil, true, &accounts); err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(accounts))
	for _, a := range accounts {
		avail, _ := strconv.ParseFloat(a.Available, 64)
		locked, _ := strconv.ParseFloat(a.Locked, 64)
		out[a.Currency] = avail + locked
	}
	return out, nil
}

func parseLevels(raw [][]string) []market.Level {
	out := make([]market.Level, 0, len(raw))
	for _, lv := range raw {
		if len(lv) < 2 {
			continue
		}
		px, _ := strconv.ParseFloat(lv[0], 64)
		qty, _ := strconv.ParseFloat(lv[1], 64)
		out = append(out, market.Level{Price: px, Qty: qty})
	}
	return out
}

// NewDefaultHTTPClient 提供一个带超时的 http.Client。
func NewDefaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}
