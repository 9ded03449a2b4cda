// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package seq

import (
	"math"
	"sync/atomic"

	"code.hybscloud.com/atomix"
)

// Barrier is a single-publisher sequence barrier.
//
// One goroutine (the consumer of a ring buffer) publishes a monotonically
// increasing sequence number; any number of goroutines wait until the
// published sequence reaches a target. A Sequencer holds a Barrier by
// read-only reference to learn how far its consumer has progressed.
//
// Only one goroutine may call Publish. Waiting is safe from any number of
// goroutines.
type Barrier struct {
	_             pad
	lastPublished atomix.Uint64
	_             pad
	awaiters      atomic.Pointer[awaiter]
}

// NewBarrier creates a barrier whose initially published sequence is initial.
// The first interesting sequence is therefore initial+1.
func NewBarrier(initial uint64) *Barrier {
	b := &Barrier{}
	b.lastPublished.StoreRelaxed(initial)
	return b
}

// LastPublished returns the most recently published sequence number.
func (b *Barrier) LastPublished() uint64 {
	return b.lastPublished.LoadAcquire()
}

// WaitUntilPublished blocks until the published sequence number reaches
// target, then returns the published sequence observed (which may be past
// target).
func (b *Barrier) WaitUntilPublished(target uint64) uint64 {
	last := b.lastPublished.LoadAcquire()
	if !precedes(last, target) {
		return last
	}
	a := newAwaiter(target, last)
	b.addAwaiter(a)
	return a.await()
}

// Publish makes seq the published sequence and resumes every waiter whose
// target it satisfies. seq must not precede a previously published sequence.
func (b *Barrier) Publish(seq uint64) {
	b.lastPublished.Store(seq)

	if b.awaiters.Load() == nil {
		return
	}
	detached := b.awaiters.Swap(nil)

	var toResume *awaiter
	resumeTail := &toResume
	var toRequeue *awaiter
	requeueTail := &toRequeue

	last := b.lastPublished.Load()
	for detached != nil {
		next := detached.next
		if precedes(last, detached.target) {
			detached.lastKnown = last
			*requeueTail = detached
			requeueTail = &detached.next
		} else {
			*resumeTail = detached
			resumeTail = &detached.next
		}
		detached = next
	}
	*requeueTail = nil

	if toRequeue != nil {
		for {
			oldHead := b.awaiters.Load()
			*requeueTail = oldHead
			if b.awaiters.CompareAndSwap(oldHead, toRequeue) {
				break
			}
		}
		// Single publisher: lastPublished cannot advance concurrently, so
		// the requeued waiters stay unsatisfied. Waiters enqueued between
		// the detach and the requeue re-check on their own via addAwaiter's
		// post-enqueue scan.
	}

	*resumeTail = nil
	for toResume != nil {
		// Read next before resume; resuming may free the awaiter.
		next := toResume.next
		toResume.resume(last)
		toResume = next
	}
}

// addAwaiter CAS-prepends a onto the waiter stack, then re-checks the
// published sequence to close the race with a Publish that ran between the
// waiter's initial check and the enqueue. If the re-check finds satisfied
// waiters the whole list is reacquired, partitioned, and the unsatisfied
// remainder re-enqueued, repeating until the stack is quiescent.
func (b *Barrier) addAwaiter(a *awaiter) {
	minTarget := a.target
	toEnqueue := a
	enqueueTail := &a.next

	var toResume *awaiter
	resumeTail := &toResume

	var last uint64
	for toEnqueue != nil {
		for {
			oldHead := b.awaiters.Load()
			*enqueueTail = oldHead
			if b.awaiters.CompareAndSwap(oldHead, toEnqueue) {
				break
			}
		}
		toEnqueue = nil
		enqueueTail = &toEnqueue

		last = b.lastPublished.Load()
		if !precedes(last, minTarget) {
			detached := b.awaiters.Swap(nil)
			minDiff := int64(math.MaxInt64)
			for detached != nil {
				next := detached.next
				if d := difference(detached.target, last); d > 0 {
					if d < minDiff {
						minDiff = d
					}
					detached.lastKnown = last
					*enqueueTail = detached
					enqueueTail = &detached.next
				} else {
					*resumeTail = detached
					resumeTail = &detached.next
				}
				detached = next
			}
			minTarget = last + uint64(minDiff)
		}
		*enqueueTail = nil
	}

	*resumeTail = nil
	for toResume != nil {
		next := toResume.next
		toResume.resume(last)
		toResume = next
	}
}
