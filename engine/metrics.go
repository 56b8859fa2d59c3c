package engine

import "sync"

// Metrics 进程级滚动指标。每个 tick 由循环更新一次，
// 外部观察者（HTTP 接口）只能拿到一致的快照。
type Metrics struct {
	mu             sync.RWMutex
	totalTrades    int64
	successTrades  int64
	avgSpreadBps   float64
	avgExecutionMs float64
	lastError      string
}

func NewMetrics() *Metrics { return &Metrics{} }

// ObserveSpread 指数平滑：0.9 旧值 + 0.1 新值。
func (m *Metrics) ObserveSpread(bps float64) {
	m.mu.Lock()
	m.avgSpreadBps = m.avgSpreadBps*0.9 + bps*0.1
	m.mu.Unlock()
}

// ObserveExecution 指数平滑：0.8 旧值 + 0.2 新值。
func (m *Metrics) ObserveExecution(ms float64) {
	m.mu.Lock()
	m.avgExecutionMs = m.avgExecutionMs*0.8 + ms*0.2
	m.mu.Unlock()
}

// TradeRecorded 成交计数；success 表示双腿全部成交。
func (m *Metrics) TradeRecorded(success bool) {
	m.mu.Lock()
	m.totalTrades++
	if success {
		m.successTrades++
	}
	m.mu.Unlock()
}

// SetLastError 记录最近一次循环错误。
func (m *Metrics) SetLastError(err error) {
	if err == nil {
		return
	}
	m.mu.Lock()
	m.lastError = err.Error()
	m.mu.Unlock()
}

// Snapshot 原子一致的只读视图。
type Snapshot struct {
	TotalTrades    int64   `json:"total_trades"`
	SuccessTrades  int64   `json:"success_trades"`
	AvgSpreadBps   float64 `json:"avg_spread_bps"`
	AvgExecutionMs float64 `json:"avg_execution_ms"`
	LastError      string  `json:"last_error"`
}

func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{
		TotalTrades:    m.totalTrades,
		SuccessTrades:  m.successTrades,
		AvgSpreadBps:   m.avgSpreadBps,
		AvgExecutionMs: m.avgExecutionMs,
		LastError:      m.lastError,
	}
}
