package voicevox

import "sync"

// Exclusive 为 Core 提供调用方侧的互斥访问，保证同一时刻只有一个调用进入引擎。
//
// Do 回调中得到的 Buffer 也必须在回调内 Close（或 Copy 后 Close），
// 因为释放同样是对引擎的调用。
type Exclusive struct {
	mu   sync.Mutex
	core *Core
}

// NewExclusive 接管 core 的所有权，之后只能通过 Do 访问它。
func NewExclusive(core *Core) *Exclusive {
	return &Exclusive{core: core}
}

// Do 在持有锁的情况下调用 fn。
func (e *Exclusive) Do(fn func(c *Core) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.core)
}

// Close 关闭底层 Core。
func (e *Exclusive) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.core.Close()
}
