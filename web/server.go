package web

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"spread-arb-go/engine"
	"spread-arb-go/journal"
	"spread-arb-go/monitor"
)

// Server 对外只读观测面：JSON 状态 + 成交流水 + PnL 汇总 + Prometheus /metrics。
type Server struct {
	Metrics *engine.Metrics
	Journal *journal.Journal
	Monitor *monitor.Monitor
	Log     *zap.Logger

	httpSrv *http.Server
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/trades", s.handleTrades)
	mux.HandleFunc("/pnl", s.handlePnL)
	if s.Monitor != nil {
		mux.Handle("/metrics", s.Monitor.Handler())
	}
	return mux
}

// Handler 暴露路由表，测试直接用 httptest 调用。
func (s *Server) Handler() http.Handler { return s.routes() }

// Start 非阻塞启动 HTTP 服务。
func (s *Server) Start(addr string) {
	s.httpSrv = &http.Server{Addr: addr, Handler: s.routes()}
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if s.Log != nil {
				s.Log.Error("http server failed", zap.Error(err))
			}
		}
	}()
}

// Shutdown 优雅关闭。
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":  true,
		"see": []string{"/status", "/trades?limit=50", "/pnl", "/metrics"},
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.Metrics.Snapshot()
	snap.AvgSpreadBps = round(snap.AvgSpreadBps, 4)
	snap.AvgExecutionMs = round(snap.AvgExecutionMs, 2)
	writeJSON(w, http.StatusOK, snap)
}

type tradeItem struct {
	TS        string  `json:"ts"`
	Symbol    string  `json:"symbol"`
	Direction string  `json:"direction"`
	Amount    float64 `json:"amount"`
	PriceBuy  float64 `json:"price_buy"`
	PriceSell float64 `json:"price_sell"`
	PnL       float64 `json:"pnl"`
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = v
		}
	}
	trades, err := s.Journal.ReadLast(limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	items := make([]tradeItem, 0, len(trades))
	for _, t := range trades {
		items = append(items, tradeItem{
			TS:        t.TS.Format(time.RFC3339Nano),
			Symbol:    t.Symbol,
			Direction: t.Direction,
			Amount:    t.Amount,
			PriceBuy:  t.PriceBuy,
			PriceSell: t.PriceSell,
			PnL:       t.PnL,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(items),
		"items": items,
	})
}

func (s *Server) handlePnL(w http.ResponseWriter, r *http.Request) {
	sum, err := s.Journal.Summary()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	sum.Total = round(sum.Total, 6)
	for k, v := range sum.BySymbol {
		sum.BySymbol[k] = round(v, 6)
	}
	writeJSON(w, http.StatusOK, sum)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func round(v float64, digits int) float64 {
	p := math.Pow(10, float64(digits))
	return math.Round(v*p) / p
}
