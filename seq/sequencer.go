// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package seq

import (
	"math"
	"sync/atomic"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/spin"
)

// Sequencer coordinates many producers claiming slots in a power-of-two ring
// and a single consumer observing the published prefix.
//
// A producer claims a sequence number with a single atomic fetch-add, waits
// on the consumer barrier until the slot it wraps onto has been consumed,
// writes its slot, and publishes. Producers may publish out of order; a
// sequence becomes visible to the consumer only once every preceding
// sequence has also been published.
//
// The Sequencer owns only the published sequence array. Slot storage belongs
// to the caller, indexed by seq & (BufferSize()-1).
type Sequencer struct {
	barrier   *Barrier
	mask      uint64
	published []atomix.Uint64

	_           pad
	nextToClaim atomix.Uint64
	_           pad
	awaiters    atomic.Pointer[awaiter]
}

// NewSequencer creates a sequencer over a ring of bufferSize slots, gated by
// the consumer barrier. bufferSize rounds up to the next power of 2 and must
// not exceed the maximum signed sequence difference. The first claimed
// sequence is initial+1; the barrier must have been created with the same
// initial sequence.
func NewSequencer(barrier *Barrier, bufferSize int, initial uint64) *Sequencer {
	if bufferSize < 1 {
		panic("seq: buffer size must be >= 1")
	}
	n := uint64(roundToPow2(bufferSize))
	if n > uint64(math.MaxInt64) {
		panic("seq: buffer size exceeds max sequence difference")
	}

	s := &Sequencer{
		barrier:   barrier,
		mask:      n - 1,
		published: make([]atomix.Uint64, n),
	}
	s.nextToClaim.StoreRelaxed(initial + 1)

	// Seed every slot with the sequence that wrapped onto it strictly before
	// initial+1, so that no sequence appears spuriously published.
	for seq := initial - (n - 1); ; seq++ {
		s.published[seq&s.mask].StoreRelaxed(seq)
		if seq == initial {
			break
		}
	}
	return s
}

// BufferSize returns the ring capacity. Always a power of two.
func (s *Sequencer) BufferSize() int {
	return len(s.published)
}

// ClaimOne claims the next sequence number, blocking until the ring slot it
// maps onto has been consumed and is free to overwrite. The claim is
// performed by the call itself, so every return value must be published.
func (s *Sequencer) ClaimOne() uint64 {
	claimed := s.nextToClaim.Add(1) - 1
	s.barrier.WaitUntilPublished(claimed - uint64(len(s.published)))
	return claimed
}

// ClaimUpTo claims a contiguous range of up to count sequence numbers,
// capped at the ring size, blocking until the last slot of the range is free
// to overwrite. The caller must publish every sequence in the returned
// range.
func (s *Sequencer) ClaimUpTo(count int) Range {
	if count < 1 {
		panic("seq: claim count must be >= 1")
	}
	n := uint64(count)
	if n > uint64(len(s.published)) {
		n = uint64(len(s.published))
	}
	first := s.nextToClaim.Add(n) - n
	r := Range{First: first, Last: first + n}
	s.barrier.WaitUntilPublished(r.Back() - uint64(len(s.published)))
	return r
}

// TryClaimOne claims the next sequence number without blocking.
// Returns ErrWouldBlock when every slot is claimed and the consumer has not
// yet freed one through the barrier.
func (s *Sequencer) TryClaimOne() (uint64, error) {
	sw := spin.Wait{}
	for {
		next := s.nextToClaim.LoadAcquire()
		if precedes(s.barrier.LastPublished()+uint64(len(s.published)), next) {
			return 0, ErrWouldBlock
		}
		if s.nextToClaim.CompareAndSwapAcqRel(next, next+1) {
			return next, nil
		}
		sw.Once()
	}
}

// AnyAvailable reports whether a slot is currently free for claiming.
// The answer is approximate with multiple producers: another producer may
// take the last slot immediately after this returns true.
func (s *Sequencer) AnyAvailable() bool {
	return precedes(
		s.nextToClaim.LoadRelaxed(),
		s.barrier.LastPublished()+uint64(len(s.published)),
	)
}

// Publish makes seq available to the consumer and resumes any waiters the
// publication satisfies. seq must have been claimed.
func (s *Sequencer) Publish(seq uint64) {
	s.published[seq&s.mask].Store(seq)
	s.resumeReadyAwaiters()
}

// PublishRange publishes every sequence in r. Equivalent to publishing each
// element, but all elements after the first are stored relaxed: the
// sequentially-consistent store on r.Front() is the commit point that makes
// the whole range visible, since no consumer reads past a hole in the
// prefix.
func (s *Sequencer) PublishRange(r Range) {
	if r.Empty() {
		return
	}
	for seq := r.First + 1; seq != r.Last; seq++ {
		s.published[seq&s.mask].StoreRelaxed(seq)
	}
	s.published[r.First&s.mask].Store(r.First)
	s.resumeReadyAwaiters()
}

// LastPublishedAfter returns the end of the contiguous published prefix
// starting after lastKnown. The consumer uses it to catch up past every
// producer that has finished, even while later sequences are still in
// flight.
func (s *Sequencer) LastPublishedAfter(lastKnown uint64) uint64 {
	mask := s.mask
	seq := lastKnown + 1
	for s.published[seq&mask].LoadAcquire() == seq {
		lastKnown = seq
		seq++
	}
	return lastKnown
}

// WaitUntilPublished blocks until target and every sequence before it have
// been published, then returns the observed end of the published prefix.
// lastKnown is the caller's previous return value (or the initial sequence).
func (s *Sequencer) WaitUntilPublished(target, lastKnown uint64) uint64 {
	if !precedes(lastKnown, target) {
		return lastKnown
	}
	a := newAwaiter(target, lastKnown)
	s.addAwaiter(a)
	return a.await()
}

// resumeReadyAwaiters detaches the whole waiter stack, partitions it into
// satisfied and still-waiting sublists, requeues the latter, and re-scans
// the published array to close the race where a concurrent publish completed
// between the detach and the requeue. Only when no requeued waiter can be
// satisfied does it resume the collected list.
func (s *Sequencer) resumeReadyAwaiters() {
	if s.awaiters.Load() == nil {
		return
	}
	detached := s.awaiters.Swap(nil)
	if detached == nil {
		// Another publisher acquired the list and owns the wakeups.
		return
	}

	var lastKnown uint64

	var toResume *awaiter
	resumeTail := &toResume
	var toRequeue *awaiter
	requeueTail := &toRequeue

	mask := s.mask
	for detached != nil {
		lastKnown = s.LastPublishedAfter(detached.lastKnown)

		minDiff := int64(math.MaxInt64)
		for detached != nil {
			next := detached.next
			if d := difference(detached.target, lastKnown); d > 0 {
				if d < minDiff {
					minDiff = d
				}
				*requeueTail = detached
				requeueTail = &detached.next
			} else {
				*resumeTail = detached
				resumeTail = &detached.next
			}
			detached.lastKnown = lastKnown
			detached = next
		}
		*requeueTail = nil

		if toRequeue != nil {
			for {
				oldHead := s.awaiters.Load()
				*requeueTail = oldHead
				if s.awaiters.CompareAndSwap(oldHead, toRequeue) {
					break
				}
			}
			toRequeue = nil
			requeueTail = &toRequeue

			// A publish may have completed between the detach and the
			// requeue. If it advanced the prefix to the earliest requeued
			// target, reacquire the list and go around again.
			earliestTarget := lastKnown + uint64(minDiff)
			seq := lastKnown + 1
			for s.published[seq&mask].Load() == seq {
				lastKnown = seq
				if seq == earliestTarget {
					detached = s.awaiters.Swap(nil)
					break
				}
				seq++
			}
		}
	}

	*resumeTail = nil
	for toResume != nil {
		// Read next before resume; resuming may free the awaiter.
		next := toResume.next
		toResume.resume(lastKnown)
		toResume = next
	}
}

// addAwaiter CAS-prepends a onto the waiter stack, then re-scans the
// published array to close the race where the target was published between
// the waiter's initial check and the enqueue. If the re-scan shows the
// enqueued waiter satisfied, the list is reacquired and partitioned exactly
// as in resumeReadyAwaiters.
func (s *Sequencer) addAwaiter(a *awaiter) {
	target := a.target
	lastKnown := a.lastKnown

	toEnqueue := a
	enqueueTail := &a.next
	var toResume *awaiter
	resumeTail := &toResume

	mask := s.mask
	for toEnqueue != nil {
		for {
			oldHead := s.awaiters.Load()
			*enqueueTail = oldHead
			if s.awaiters.CompareAndSwap(oldHead, toEnqueue) {
				break
			}
		}
		toEnqueue = nil
		enqueueTail = &toEnqueue

		for s.published[(lastKnown+1)&mask].Load() == lastKnown+1 {
			lastKnown++
		}

		if !precedes(lastKnown, target) {
			detached := s.awaiters.Swap(nil)
			minDiff := int64(math.MaxInt64)
			for detached != nil {
				next := detached.next
				if d := difference(detached.target, lastKnown); d > 0 {
					if d < minDiff {
						minDiff = d
					}
					detached.lastKnown = lastKnown
					*enqueueTail = detached
					enqueueTail = &detached.next
				} else {
					*resumeTail = detached
					resumeTail = &detached.next
				}
				detached = next
			}
			// The earliest sequence any requeued waiter needs; checked next
			// time around the loop.
			target = lastKnown + uint64(minDiff)
		}
		*enqueueTail = nil
	}

	*resumeTail = nil
	for toResume != nil {
		next := toResume.next
		toResume.resume(lastKnown)
		toResume = next
	}
}
