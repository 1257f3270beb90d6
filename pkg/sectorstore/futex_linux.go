//go:build linux

package sectorstore

import (
	"math"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// futexNotifier implements notifierImpl directly on Linux futex syscalls:
// a genuine OS-level park/wake instead of a spin-wait.
type futexNotifier struct {
	word uint32
}

func newNotifierImpl() notifierImpl {
	return &futexNotifier{}
}

func (f *futexNotifier) wait(ready func() bool) {
	for {
		if ready() {
			return
		}

		cur := atomic.LoadUint32(&f.word)

		// Re-check after the snapshot: if the condition flipped (and its
		// broadcast bumped word) between the first check and the load, cur
		// already holds the bumped value and FUTEX_WAIT would sleep with no
		// further wake coming, so this re-check is required. A broadcast
		// that lands after the load changes word, and FUTEX_WAIT then
		// returns EAGAIN immediately.
		if ready() {
			return
		}

		_ = unix.Futex(&f.word, unix.FUTEX_WAIT, cur, nil, nil, 0)
	}
}

func (f *futexNotifier) broadcast() {
	atomic.AddUint32(&f.word, 1)
	_ = unix.Futex(&f.word, unix.FUTEX_WAKE, math.MaxInt32, nil, nil, 0)
}
