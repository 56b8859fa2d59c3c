package venue

import (
	"sync"
	"time"
)

// RateLimiter 控制请求速率，避免触发交易所限流。
type RateLimiter interface {
	Wait()
}

// NopLimiter 不限流，供测试注入。
type NopLimiter struct{}

func (NopLimiter) Wait() {}

// TokenBucketLimiter 按每秒 perSec 个令牌补充、上限 capacity 的令牌桶。
// 桶空时 Wait 阻塞到下一个令牌补满为止。
type TokenBucketLimiter struct {
	mu       sync.Mutex
	perSec   float64
	capacity float64
	avail    float64
	refilled time.Time
}

func NewTokenBucketLimiter(rate float64, burst int) *TokenBucketLimiter {
	if rate <= 0 {
		rate = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &TokenBucketLimiter{
		perSec:   rate,
		capacity: float64(burst),
		avail:    float64(burst),
		refilled: time.Now(),
	}
}

// refill 按经过时间补充令牌，调用方须持有锁。
func (l *TokenBucketLimiter) refill(now time.Time) {
	l.avail += now.Sub(l.refilled).Seconds() * l.perSec
	if l.avail > l.capacity {
		l.avail = l.capacity
	}
	l.refilled = now
}

func (l *TokenBucketLimiter) Wait() {
	l.mu.Lock()
	l.refill(time.Now())
	if l.avail >= 1 {
		l.avail--
		l.mu.Unlock()
		return
	}
	wait := time.Duration((1 - l.avail) / l.perSec * float64(time.Second))
	// 睡眠期间攒出的那个令牌就是本次消费的，补充时钟要跳过这段时间
	l.avail = 0
	l.refilled = l.refilled.Add(wait)
	l.mu.Unlock()
	time.Sleep(wait + time.Millisecond)
}
