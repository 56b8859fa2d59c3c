package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"spread-arb-go/market"
)

// SpotWSEndpoint 现货公共行情流。
const SpotWSEndpoint = "wss://stream.bybit.com/v5/public/spot"

// Stream 订阅盘口增量流并维护最新快照，供 REST 客户端优先读取。
// 连接断开由调用方决定是否重连；快照超过 Freshness 视为过期。
type Stream struct {
	Endpoint  string
	Dialer    *websocket.Dialer
	Depth     int
	Freshness time.Duration
	Log       *zap.Logger

	symbols []string

	mu    sync.RWMutex
	books map[string]*bookState
}

type bookState struct {
	bids    map[string]float64 // price string -> qty，保留原始精度做删除匹配
	asks    map[string]float64
	updated time.Time
}

func NewStream(symbols []string, log *zap.Logger) *Stream {
	return &Stream{
		Endpoint:  SpotWSEndpoint,
		Dialer:    websocket.DefaultDialer,
		Depth:     50,
		Freshness: 3 * time.Second,
		Log:       log,
		symbols:   symbols,
		books:     make(map[string]*bookState),
	}
}

type wsMessage struct {
	Topic string `json:"topic"`
	Type  string `json:"type"`
	Data  struct {
		Symbol string     `json:"s"`
		Bids   [][]string `json:"b"`
		Asks   [][]string `json:"a"`
	} `json:"data"`
}

// Run 连接并持续读取盘口消息，ctx 取消后返回。
func (s *Stream) Run(ctx context.Context) error {
	if len(s.symbols) == 0 {
		return fmt.Errorf("no symbols subscribed")
	}
	conn, _, err := s.Dialer.DialContext(ctx, s.Endpoint, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	args := make([]string, 0, len(s.symbols))
	for _, sym := range s.symbols {
		args = append(args, fmt.Sprintf("orderbook.%d.%s", s.Depth, strings.ToUpper(sym)))
	}
	sub := map[string]interface{}{"op": "subscribe", "args": args}
	if err := conn.WriteJSON(sub); err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		var msg wsMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		if !strings.HasPrefix(msg.Topic, "orderbook.") || msg.Data.Symbol == "" {
			continue
		}
		s.apply(msg)
	}
}

func (s *Stream) apply(msg wsMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.books[msg.Data.Symbol]
	if !ok || msg.Type == "snapshot" {
		st = &bookState{bids: make(map[string]float64), asks: make(map[string]float64)}
		s.books[msg.Data.Symbol] = st
	}
	applyDelta(st.bids, msg.Data.Bids)
	applyDelta(st.asks, msg.Data.Asks)
	st.updated = time.Now()
	if s.Log != nil {
		s.Log.Debug("book update", zap.String("symbol", msg.Data.Symbol), zap.String("type", msg.Type))
	}
}

// applyDelta qty 为 0 表示删除该档。
func applyDelta(side map[string]float64, levels [][]string) {
	for _, lv := range levels {
		if len(lv) < 2 {
			continue
		}
		qty := parseF(lv[1])
		if qty == 0 {
			delete(side, lv[0])
		} else {
			side[lv[0]] = qty
		}
	}
}

// Book 返回该 symbol 的最新盘口快照；过期或缺失时第二个返回值为 false。
func (s *Stream) Book(symbol string) (market.OrderBook, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.books[strings.ToUpper(symbol)]
	if !ok || time.Since(st.updated) > s.freshness() {
		return market.OrderBook{}, false
	}
	return market.OrderBook{
		Bids: sortedLevels(st.bids, true),
		Asks: sortedLevels(st.asks, false),
	}, true
}

func (s *Stream) freshness() time.Duration {
	if s.Freshness <= 0 {
		return 3 * time.Second
	}
	return s.Freshness
}

func sortedLevels(side map[string]float64, desc bool) []market.Level {
	out := make([]market.Level, 0, len(side))
	for px, qty := range side {
		out = append(out, market.Level{Price: parseF(px), Qty: qty})
	}
	sort.Slice(out, func(i, j int) bool {
		if desc {
			return out[i].Price > out[j].Price
		}
		return out[i].Price < out[j].Price
	})
	return out
}
