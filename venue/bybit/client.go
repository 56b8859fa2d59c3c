package bybit

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"spread-arb-go/market"
	"spread-arb-go/venue"
)

// Client 一个可签名的简化 Bybit v5 现货客户端；HTTPClient 可注入 httptest。
type Client struct {
	BaseURL      string
	APIKey       string
	Secret       string
	HTTPClient   *http.Client
	Limiter      venue.RateLimiter
	RecvWindowMs int

	// 可选的 WS 行情缓存；命中新鲜快照时 GetOrderBook 不发 REST 请求
	Stream *Stream

	mu      sync.RWMutex
	markets map[string]marketInfo // 交易所格式 symbol -> 精度/限额
}

type marketInfo struct {
	LotStep     float64
	MinQty      float64
	MinNotional float64
}

// timeNowMillis 可替换以便测试产生确定性签名。
var timeNowMillis = func() int64 { return time.Now().UnixMilli() }

func (c *Client) Name() string { return "bybit" }

// Symbol 把通用符号转成交易所格式：BTC/USDT -> BTCUSDT。
func (c *Client) Symbol(common string) string {
	return strings.ToUpper(strings.ReplaceAll(common, "/", ""))
}

func (c *Client) wait() {
	if c.Limiter != nil {
		c.Limiter.Wait()
	}
}

func (c *Client) recvWindow() string {
	if c.RecvWindowMs <= 0 {
		return "5000"
	}
	return strconv.Itoa(c.RecvWindowMs)
}

// sign 按 v5 规则签名：HMAC_SHA256(ts + apiKey + recvWindow + payload)。
func (c *Client) sign(ts, payload string) string {
	h := hmac.New(sha256.New, []byte(c.Secret))
	h.Write([]byte(ts + c.APIKey + c.recvWindow() + payload))
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Client) authHeaders(req *http.Request, payload string) {
	ts := strconv.FormatInt(timeNowMillis(), 10)
	req.Header.Set("X-BAPI-API-KEY", c.APIKey)
	req.Header.Set("X-BAPI-TIMESTAMP", ts)
	req.Header.Set("X-BAPI-RECV-WINDOW", c.recvWindow())
	req.Header.Set("X-BAPI-SIGN", c.sign(ts, payload))
}

type envelope struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
}

func (c *Client) getJSON(ctx context.Context, path string, signed bool, out interface{}) error {
	if c == nil || c.HTTPClient == nil {
		return fmt.Errorf("http client not set")
	}
	c.wait()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	if signed {
		c.authHeaders(req, req.URL.RawQuery)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("bybit GET %s status %d", path, resp.StatusCode)
	}
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return err
	}
	if env.RetCode != 0 {
		return fmt.Errorf("bybit retCode %d: %s", env.RetCode, env.RetMsg)
	}
	return json.Unmarshal(env.Result, out)
}

func (c *Client) postJSON(ctx context.Context, path string, body interface{}, out interface{}) error {
	if c == nil || c.HTTPClient == nil {
		return fmt.Errorf("http client not set")
	}
	c.wait()
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authHeaders(req, string(raw))
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("bybit POST %s status %d", path, resp.StatusCode)
	}
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return err
	}
	if env.RetCode != 0 {
		return fmt.Errorf("bybit retCode %d: %s", env.RetCode, env.RetMsg)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(env.Result, out)
}

type instrumentsResult struct {
	List []struct {
		Symbol        string `json:"symbol"`
		LotSizeFilter struct {
			BasePrecision string `json:"basePrecision"`
			MinOrderQty   string `json:"minOrderQty"`
			MinOrderAmt   string `json:"minOrderAmt"`
		} `json:"lotSizeFilter"`
	} `json:"list"`
}

// LoadMarkets 拉取现货交易对的步长与最小名义并缓存；启动时调用一次。
func (c *Client) LoadMarkets(ctx context.Context) error {
	var res instrumentsResult
	if err := c.getJSON(ctx, "/v5/market/instruments-info?category=spot", false, &res); err != nil {
		return fmt.Errorf("load markets: %w", err)
	}
	mk := make(map[string]marketInfo, len(res.List))
	for _, it := range res.List {
		mk[it.Symbol] = marketInfo{
			LotStep:     parseF(it.LotSizeFilter.BasePrecision),
			MinQty:      parseF(it.LotSizeFilter.MinOrderQty),
			MinNotional: parseF(it.LotSizeFilter.MinOrderAmt),
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
	amt := venue.RoundStep(amount, m.LotStep)
	// 低于交易所最小下单数量的单会被拒，提前归零
	if amt < m.MinQty {
		return 0
	}
	return amt
}

// MinNotional 最小下单金额，未知返回 0。
func (c *Client) MinNotional(symbol string) float64 {
	m, ok := c.marketFor(symbol)
	if !ok {
		return 0
	}
	return m.MinNotional
}

type orderbookResult struct {
	Bids [][]string `json:"b"`
	Asks [][]string `json:"a"`
}

// GetOrderBook 返回现货盘口；若 WS 缓存里有新鲜快照则直接使用。
func (c *Client) GetOrderBook(ctx context.Context, symbol string) (market.OrderBook, error) {
	if c.Stream != nil {
		if ob, ok := c.Stream.Book(c.Symbol(symbol)); ok {
			return ob, nil
		}
	}
	path := "/v5/market/orderbook?category=spot&limit=25&symbol=" + c.Symbol(symbol)
	var res orderbookResult
	if err := c.getJSON(ctx, path, false, &res); err != nil {
		return market.OrderBook{}, err
	}
	return market.OrderBook{
		Bids: parseLevels(res.Bids),
		Asks: parseLevels(res.Asks),
	}, nil
}

type orderResult struct {
	OrderID string `json:"orderId"`
}

// CreateMarketOrder 下现货市价单。数量会先按步长归一。
func (c *Client) CreateMarketOrder(ctx context.Context, symbol string, side venue.Side, amount float64, clientOrderID string) (venue.Order, error) {
	amt := c.NormalizeAmount(symbol, amount)
	if amt <= 0 {
		return venue.Order{}, &venue.OrderError{Venue: c.Name(), Symbol: symbol, Reason: "amount below lot step"}
	}
	if clientOrderID == "" {
		clientOrderID = uuid.NewString()
	}
	body := map[string]string{
		"category":    "spot",
		"symbol":      c.Symbol(symbol),
		"side":        sideUpper(side),
		"orderType":   "Market",
		"qty":         strconv.FormatFloat(amt, 'f', -1, 64),
		"orderLinkId": clientOrderID,
	}
	var res orderResult
	if err := c.postJSON(ctx, "/v5/order/create", body, &res); err != nil {
		return venue.Order{}, &venue.OrderError{Venue: c.Name(), Symbol: symbol, Reason: "create rejected", Err: err}
	}
	if res.OrderID == "" {
		return venue.Order{}, &venue.OrderError{Venue: c.Name(), Symbol: symbol, Reason: "empty orderId"}
	}
	return venue.Order{ID: res.OrderID, Symbol: symbol, Side: side, Amount: amt}, nil
}

// CancelOrder 以客户端订单号（orderLinkId）撤单。
func (c *Client) CancelOrder(ctx context.Context, symbol, clientOrderID string) error {
	body := map[string]string{
		"category":    "spot",
		"symbol":      c.Symbol(symbol),
		"orderLinkId": clientOrderID,
	}
	return c.postJSON(ctx, "/v5/order/cancel", body, nil)
}

type walletResult struct {
	List []struct {
		Coin []struct {
			Coin   string `json:"coin"`
			Equity string `json:"equity"`
		} `json:"coin"`
	} `json:"list"`
}

// GetBalance 返回统一账户各币种余额。
func (c *Client) GetBalance(ctx context.Context) (map[string]float64, error) {
	var res walletResult
	if err := c.getJSON(ctx, "/v5/account/wallet-balance?accountType=UNIFIED", true, &res); err != nil {
		return nil, err
	}
	out := make(map[string]float64)
	for _, acct := range res.List {
		for _, coin := range acct.Coin {
			out[coin.Coin] = parseF(coin.Equity)
		}
	}
	return out, nil
}

func sideUpper(s venue.Side) string {
	if s == venue.SideSell {
		return "Sell"
	}
	return "Buy"
}

func parseF(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

func parseLevels(raw [][]string) []market.Level {
	out := make([]market.Level, 0, len(raw))
	for _, lv := range raw {
		if len(lv) < 2 {
			continue
		}
		out = append(out, market.Level{Price: parseF(lv[0]), Qty: parseF(lv[1])})
	}
	return out
}

// NewDefaultHTTPClient 提供一个带超时的 http.Client。
func NewDefaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}
