package bybit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"spread-arb-go/venue"
)

func testClient(ts *httptest.Server) *Client {
	return &Client{
		BaseURL:    ts.URL,
		APIKey:     "key",
		Secret:     "secret",
		HTTPClient: ts.Client(),
		Limiter:    venue.NopLimiter{},
	}
}

func TestGetOrderBook(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v5/market/orderbook" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("symbol"); got != "BTCUSDT" {
			t.Fatalf("symbol = %s", got)
		}
		io.WriteString(w, `{"retCode":0,"result":{"b":[["100.5","1.2"],["100.4","3"]],"a":[["100.7","0.5"]]}}`)
	}))
	defer ts.Close()

	ob, err := testClient(ts).GetOrderBook(context.Background(), "BTC/USDT")
	if err != nil {
		t.Fatalf("orderbook err: %v", err)
	}
	if ob.BestBid() != 100.5 || ob.BestAsk() != 100.7 {
		t.Fatalf("best %f/%f", ob.BestBid(), ob.BestAsk())
	}
	if len(ob.Bids) != 2 || ob.Bids[1].Qty != 3 {
		t.Fatalf("bids parsed wrong: %+v", ob.Bids)
	}
}

func TestCreateMarketOrderSignedAndNormalized(t *testing.T) {
	timeNowMillis = func() int64 { return 1234567890000 } // deterministic
	defer func() { timeNowMillis = func() int64 { return time.Now().UnixMilli() } }()

	var gotBody map[string]string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v5/market/instruments-info":
			io.WriteString(w, `{"retCode":0,"result":{"list":[{"symbol":"BTCUSDT","lotSizeFilter":{"basePrecision":"0.001","minOrderQty":"0.001","minOrderAmt":"5"}}]}}`)
		case "/v5/order/create":
			if r.Header.Get("X-BAPI-SIGN") == "" || r.Header.Get("X-BAPI-API-KEY") != "key" {
				t.Fatalf("missing auth headers")
			}
			raw, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(raw, &gotBody)
			io.WriteString(w, `{"retCode":0,"result":{"orderId":"1001"}}`)
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer ts.Close()

	cli := testClient(ts)
	if err := cli.LoadMarkets(context.Background()); err != nil {
		t.Fatalf("load markets: %v", err)
	}
	o, err := cli.CreateMarketOrder(context.Background(), "BTC/USDT", venue.SideBuy, 0.0123456, "leg-7")
	if err != nil {
		t.Fatalf("create err: %v", err)
	}
	if o.ID != "1001" {
		t.Fatalf("order id %s", o.ID)
	}
	// 0.0123456 floored to 0.001 step
	if math.Abs(o.Amount-0.012) > 1e-12 {
		t.Fatalf("amount = %f, want 0.012", o.Amount)
	}
	if gotBody["qty"] != "0.012" || gotBody["side"] != "Buy" || gotBody["orderType"] != "Market" {
		t.Fatalf("body = %v", gotBody)
	}
	if gotBody["orderLinkId"] != "leg-7" {
		t.Fatalf("orderLinkId = %s, want leg-7", gotBody["orderLinkId"])
	}
}

func TestCreateMarketOrderRejected(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"retCode":170131,"retMsg":"Insufficient balance"}`)
	}))
	defer ts.Close()

	_, err := testClient(ts).CreateMarketOrder(context.Background(), "BTC/USDT", venue.SideSell, 1, "")
	if err == nil {
		t.Fatalf("expected rejection")
	}
	var oe *venue.OrderError
	if !errors.As(err, &oe) {
		t.Fatalf("expected *venue.OrderError, got %T", err)
	}
}

func TestCancelOrderByLinkID(t *testing.T) {
	var gotBody map[string]string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v5/order/cancel" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		io.WriteString(w, `{"retCode":0,"result":{"orderId":"1001"}}`)
	}))
	defer ts.Close()

	if err := testClient(ts).CancelOrder(context.Background(), "BTC/USDT", "leg-7"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if gotBody["orderLinkId"] != "leg-7" || gotBody["symbol"] != "BTCUSDT" {
		t.Fatalf("body = %v", gotBody)
	}
}

func TestNormalizeAmountIdempotentMonotonic(t *testing.T) {
	cli := &Client{markets: map[string]marketInfo{
		"BTCUSDT": {LotStep: 0.001, MinNotional: 5},
	}}
	for _, x := range []float64{0, 0.0005, 0.001, 0.0123456, 1.999999, 7} {
		n1 := cli.NormalizeAmount("BTC/USDT", x)
		if n1 > x {
			t.Fatalf("normalize(%f) = %f > input", x, n1)
		}
		if n1 < 0 {
			t.Fatalf("normalize(%f) negative", x)
		}
		if n2 := cli.NormalizeAmount("BTC/USDT", n1); n2 != n1 {
			t.Fatalf("not idempotent: %f -> %f -> %f", x, n1, n2)
		}
	}
	if got := cli.MinNotional("BTC/USDT"); got != 5 {
		t.Fatalf("min notional = %f", got)
	}
	if got := cli.MinNotional("XXX/USDT"); got != 0 {
		t.Fatalf("unknown symbol min notional must be 0, got %f", got)
	}
}

func TestNormalizeAmountBelowMinQty(t *testing.T) {
	cli := &Client{markets: map[string]marketInfo{
		"BTCUSDT": {LotStep: 0.001, MinQty: 0.005, MinNotional: 5},
	}}
	// 步长取整后低于 minOrderQty 的单会被拒，归一结果应为 0
	if got := cli.NormalizeAmount("BTC/USDT", 0.0049); got != 0 {
		t.Fatalf("normalize(0.0049) = %f, want 0", got)
	}
	if got := cli.NormalizeAmount("BTC/USDT", 0.005); math.Abs(got-0.005) > 1e-12 {
		t.Fatalf("normalize(0.005) = %f, want 0.005", got)
	}
}
