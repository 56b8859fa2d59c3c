package risk

import (
	"fmt"
	"sync"
	"time"
)

// AntiFlood 限制同一交易对的下单频率：冷却窗口内最多一笔。
// 状态仅通过 Allow 的成功路径写入，拒绝时不更新时间戳。
type AntiFlood struct {
	window time.Duration
	last   map[string]time.Time
	clock  Clock
	mu     sync.Mutex
}

func NewAntiFlood(window time.Duration) *AntiFlood {
	return &AntiFlood{
		window: window,
		last:   make(map[string]time.Time),
		clock:  NowUTC,
	}
}

// SetClock 注入时钟，仅测试使用。
func (a *AntiFlood) SetClock(c Clock) { a.clock = c }

// Allow 若该 symbol 没有记录或距上次成交已超过冷却窗口，
// 记录当前时间并放行；否则拒绝且不改变状态。
func (a *AntiFlood) Allow(symbol string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.clock.Now()
	if last, ok := a.last[symbol]; ok && now.Sub(last) < a.window {
		return false
	}
	a.last[symbol] = now
	return true
}

// Check 同 Allow，拒绝时返回可用 errors.Is 识别的 ErrTooFrequent。
func (a *AntiFlood) Check(symbol string) error {
	if !a.Allow(symbol) {
		return fmt.Errorf("%s: %w", symbol, ErrTooFrequent)
	}
	return nil
}
