// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package seq

import "code.hybscloud.com/atomix"

// awaiter is a parked goroutine waiting for a target sequence to be
// published. Awaiters form an intrusive singly-linked LIFO whose head is a
// lock-free stack owned by the Sequencer or Barrier they wait on.
//
// The ready flag arbitrates the race between the waiter arming itself and a
// publisher resuming it: each side performs one CAS(0→1), and whichever side
// loses the CAS knows the other is already past the handshake point. The
// waiter only blocks on wake when it armed first; the resumer only signals
// wake when the waiter armed first.
type awaiter struct {
	target    uint64
	lastKnown uint64
	next      *awaiter
	wake      chan struct{}
	ready     atomix.Uint64
}

func newAwaiter(target, lastKnown uint64) *awaiter {
	return &awaiter{
		target:    target,
		lastKnown: lastKnown,
		wake:      make(chan struct{}),
	}
}

// await parks the calling goroutine until resume has run, unless resume
// already ran during enqueue. Returns the last-known published sequence
// observed by the resumer.
func (a *awaiter) await() uint64 {
	if a.ready.CompareAndSwapAcqRel(0, 1) {
		<-a.wake
	}
	return a.lastKnown
}

// resume records the published sequence and completes the handshake.
// Must be called at most once per awaiter, after the awaiter has been
// detached from its stack. Resuming may unblock the waiting goroutine,
// which may immediately free the awaiter; callers must not touch a after
// resume returns.
func (a *awaiter) resume(lastKnown uint64) {
	a.lastKnown = lastKnown
	if !a.ready.CompareAndSwapAcqRel(0, 1) {
		close(a.wake)
	}
}
