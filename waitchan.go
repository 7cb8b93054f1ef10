package ktable

import (
	"sync"
)

// WaitChannel correlates goroutines that sleep on a resource with the
// goroutines that wake them. It is bound to the lock guarding the resource.
type WaitChannel struct {
	cond *sync.Cond
}

func NewWaitChannel(l sync.Locker) *WaitChannel {
	return &WaitChannel{cond: sync.NewCond(l)}
}

// WaitWhile must be called with the bound lock held. While cond reports
// true it atomically releases the lock, suspends, and reacquires the lock
// once woken. It returns with the lock held and cond false.
func (c *WaitChannel) WaitWhile(cond func() bool) {
	for cond() {
		c.cond.Wait()
	}
}

// NotifyAll wakes every goroutine suspended on c. It does not need the lock
// and does nothing if nobody is waiting.
func (c *WaitChannel) NotifyAll() {
	c.cond.Broadcast()
}
