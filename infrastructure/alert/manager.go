package alert

import (
	"sync"
	"time"
)

// Alert 告警信息
type Alert struct {
	Level     string                 // "INFO", "WARNING", "ERROR", "CRITICAL"
	Message   string                 // 告警消息
	Timestamp time.Time              // 告警时间
	Fields    map[string]interface{} // 附加字段
}

// Channel 告警通道接口
type Channel interface {
	Send(alert Alert) error
	Name() string
}

// Manager 告警管理器
type Manager struct {
	channels []Channel
	throttle *Throttler
	mu       sync.RWMutex
}

// Throttler 告警限流器：同一 key 在间隔内最多发一次
type Throttler struct {
	lastSent map[string]time.Time
	interval time.Duration
	mu       sync.Mutex
}

// NewThrottler 创建限流器
func NewThrottler(interval time.Duration) *Throttler {
	return &Throttler{
		lastSent: make(map[string]time.Time),
		interval: interval,
	}
}

// Allow 检查是否允许发送（限流）
func (t *Throttler) Allow(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	if last, ok := t.lastSent[key]; ok && now.Sub(last) < t.interval {
		return false
	}
	t.lastSent[key] = now
	return true
}

// NewManager 创建告警管理器
func NewManager(throttleInterval time.Duration, channels ...Channel) *Manager {
	return &Manager{
		channels: channels,
		throttle: NewThrottler(throttleInterval),
	}
}

// AddChannel 注册告警通道
func (m *Manager) AddChannel(c Channel) {
	m.mu.Lock()
	m.channels = append(m.channels, c)
	m.mu.Unlock()
}

// Fire 发送告警；按 level+message 限流。CRITICAL 不限流。
func (m *Manager) Fire(level, message string, fields map[string]interface{}) {
	if level != "CRITICAL" && !m.throttle.Allow(level+":"+message) {
		return
	}
	a := Alert{
		Level:     level,
		Message:   message,
		Timestamp: time.Now(),
		Fields:    fields,
	}
	m.mu.RLock()
	channels := make([]Channel, len(m.channels))
	copy(channels, m.channels)
	m.mu.RUnlock()
	for _, c := range channels {
		_ = c.Send(a)
	}
}
