package schedule

import (
	"sync"
	"time"
)

// Timers 管理一次性触发的到期定时器。
// 取消计划支付不会停掉已武装的定时器：触发回调看到非 pending
// 状态时自行退出，这一守卫是结构性的而非约定性的。
type Timers struct {
	mu      sync.Mutex
	entries map[int64]*time.Timer
	nextKey int64
	stopped bool
}

// NewTimers 创建定时器管理器。
func NewTimers() *Timers {
	return &Timers{entries: make(map[int64]*time.Timer)}
}

// Arm 在 delay 之后触发一次 fire，delay 为负时立即触发。
func (t *Timers) Arm(delay time.Duration, fire func()) {
	if fire == nil {
		return
	}
	if delay < 0 {
		delay = 0
	}

	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	key := t.nextKey
	t.nextKey++
	timer := time.AfterFunc(delay, func() {
		t.mu.Lock()
		delete(t.entries, key)
		t.mu.Unlock()
		fire()
	})
	t.entries[key] = timer
	t.mu.Unlock()
}

// StopAll 停掉所有未触发的定时器，仅用于进程关停。
func (t *Timers) StopAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	for key, timer := range t.entries {
		timer.Stop()
		delete(t.entries, key)
	}
}
