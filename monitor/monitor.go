package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Monitor Prometheus监控指标收集器
type Monitor struct {
	registry *prometheus.Registry

	// 交易指标
	tradesTotal   prometheus.Counter
	tradesSuccess prometheus.Counter
	tradedUSD     prometheus.Counter

	// 行情/执行指标
	spreadBps     *prometheus.GaugeVec
	executionMs   prometheus.Histogram
	quoteErrors   prometheus.Counter

	// 风控指标
	riskRejects   *prometheus.CounterVec
	dailySpentUSD prometheus.Gauge

	// saga 指标
	compensations *prometheus.CounterVec
}

// Config 监控配置
type Config struct {
	Namespace string
	Subsystem string
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Namespace: "arb",
		Subsystem: "engine",
	}
}

// New 创建新的Monitor实例
func New(cfg Config) *Monitor {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Monitor{
		registry: reg,
		tradesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "trades_total",
			Help: "对冲成交总数",
		}),
		tradesSuccess: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "trades_success_total",
			Help: "双腿全部成交的对冲数",
		}),
		tradedUSD: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "traded_usd_total",
			Help: "累计成交名义（USD）",
		}),
		spreadBps: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "spread_bps",
			Help: "最近一次观察到的跨所价差（bps）",
		}, []string{"symbol"}),
		executionMs: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name:    "execution_ms",
			Help:    "saga 执行耗时（毫秒）",
			Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500, 5000},
		}),
		quoteErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "quote_errors_total",
			Help: "取盘口失败次数",
		}),
		riskRejects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "risk_rejects_total",
			Help: "风控拦截次数",
		}, []string{"reason"}),
		dailySpentUSD: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "daily_spent_usd",
			Help: "当前累计支出（USD）",
		}),
		compensations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "compensations_total",
			Help: "补偿交易次数",
		}, []string{"outcome"}),
	}
}

// Registry 暴露给 /metrics handler。
func (m *Monitor) Registry() *prometheus.Registry { return m.registry }

// Handler 返回该 Monitor 的 promhttp handler。
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Monitor) TradeExecuted(success bool, notionalUSD float64) {
	m.tradesTotal.Inc()
	if success {
		m.tradesSuccess.Inc()
	}
	m.tradedUSD.Add(notionalUSD)
}

func (m *Monitor) ObserveSpread(symbol string, bps float64) {
	m.spreadBps.WithLabelValues(symbol).Set(bps)
}

func (m *Monitor) ObserveExecution(ms float64) {
	m.executionMs.Observe(ms)
}

func (m *Monitor) QuoteError() { m.quoteErrors.Inc() }

func (m *Monitor) RiskReject(reason string) {
	m.riskRejects.WithLabelValues(reason).Inc()
}

func (m *Monitor) SetDailySpent(usd float64) {
	m.dailySpentUSD.Set(usd)
}

func (m *Monitor) Compensation(outcome string) {
	m.compensations.WithLabelValues(outcome).Inc()
}
