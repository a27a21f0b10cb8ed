package trigger

import "time"

// RetryPolicy 失败后的指数退避重试。
// LeaseTimeout 为 0 时 processing 状态永不过期。
type RetryPolicy struct {
	MaxAttempts  int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	LeaseTimeout time.Duration
}

// Next 第 attempts 次失败之后的等待时间;达到上限时返回 false
func (p RetryPolicy) Next(attempts int) (time.Duration, bool) {
	if attempts < 1 || attempts >= p.MaxAttempts {
		return 0, false
	}
	delay := p.BaseDelay
	for i := 1; i < attempts; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay, true
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay, true
}
