package risk

import (
	"fmt"
	"sync"
	"time"
)

// DailyLimit 累计支出上限。resetInterval 为 0 时没有任何重置，
// 上限在进程生命周期内一次性耗尽；配置为非零值时
// 每经过该间隔清零一次累计值。
type DailyLimit struct {
	limit         float64
	resetInterval time.Duration

	mu        sync.Mutex
	spent     float64
	lastReset time.Time
	clock     Clock
}

func NewDailyLimit(limitUSD float64, resetInterval time.Duration) *DailyLimit {
	return &DailyLimit{
		limit:         limitUSD,
		resetInterval: resetInterval,
		clock:         NowUTC,
		lastReset:     NowUTC.Now(),
	}
}

// SetClock 注入时钟，仅测试使用。
func (d *DailyLimit) SetClock(c Clock) {
	d.mu.Lock()
	d.clock = c
	d.lastReset = c.Now()
	d.mu.Unlock()
}

func (d *DailyLimit) maybeReset() {
	if d.resetInterval <= 0 {
		return
	}
	now := d.clock.Now()
	if now.Sub(d.lastReset) >= d.resetInterval {
		d.spent = 0
		d.lastReset = now
	}
}

// CanSpend 判断再支出 usd 是否仍在上限内；只读不改状态。
func (d *DailyLimit) CanSpend(usd float64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.maybeReset()
	return d.spent+usd <= d.limit
}

// Check 同 CanSpend，拒绝时返回可用 errors.Is 识别的 ErrDailyExceed。
func (d *DailyLimit) Check(usd float64) error {
	if !d.CanSpend(usd) {
		return fmt.Errorf("spend %.2f over budget %.2f: %w", usd, d.limit, ErrDailyExceed)
	}
	return nil
}

// Add 无条件累加支出。
func (d *DailyLimit) Add(usd float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.maybeReset()
	d.spent += usd
}

// Spent 返回当前累计支出。
func (d *DailyLimit) Spent() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.maybeReset()
	return d.spent
}
