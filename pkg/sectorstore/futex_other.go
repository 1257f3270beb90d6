//go:build !linux

package sectorstore

import "sync"

// condNotifier implements notifierImpl with a sync.Cond for platforms
// without a futex syscall available through golang.org/x/sys/unix.
type condNotifier struct {
	mu   sync.Mutex
	cond *sync.Cond
}

func newNotifierImpl() notifierImpl {
	n := &condNotifier{}
	n.cond = sync.NewCond(&n.mu)

	return n
}

func (c *condNotifier) wait(ready func() bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for !ready() {
		c.cond.Wait()
	}
}

func (c *condNotifier) broadcast() {
	c.mu.Lock()
	c.cond.Broadcast()
	c.mu.Unlock()
}
