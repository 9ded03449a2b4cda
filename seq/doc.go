// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package seq provides multi-producer single-consumer sequence coordination
// over a power-of-two ring of sequence numbers.
//
// The package offers two primitives:
//
//   - [Sequencer]: many producers claim contiguous sequence numbers and
//     publish them out of order; a single consumer observes the published
//     prefix and catches up past any completed producers.
//   - [Barrier]: a single-publisher sequence barrier. The consumer publishes
//     the highest sequence it has fully consumed; producers wait on it for
//     ring space before overwriting a slot.
//
// # Quick Start
//
//	barrier := seq.NewBarrier(0)
//	s := seq.NewSequencer(barrier, 1024, 0)
//
//	// Producer
//	n := s.ClaimOne()       // blocks until the slot at n is free
//	ring[n&mask] = item     // write the claimed slot
//	s.Publish(n)            // make it visible to the consumer
//
//	// Consumer
//	last := s.WaitUntilPublished(next, last)
//	for ; next <= last; next++ {
//	    consume(ring[next&mask])
//	}
//	barrier.Publish(last)   // frees the consumed slots for producers
//
// # Claiming
//
// [Sequencer.ClaimOne] performs a single atomic fetch-add; producers are
// wait-free whenever ring space is available. [Sequencer.ClaimUpTo] claims a
// contiguous range in one fetch-add. Every claimed sequence must be published,
// otherwise consumers waiting on later sequences block forever.
//
// [Sequencer.TryClaimOne] is the non-blocking variant: it returns
// [ErrWouldBlock] when no slot is free, following the ecosystem convention of
// [code.hybscloud.com/iox] semantic errors.
//
// # Publishing
//
// Producers may publish out of order. A sequence becomes visible to the
// consumer only once every preceding sequence has also been published:
// [Sequencer.LastPublishedAfter] scans the published array forward and
// returns the end of the contiguous prefix.
//
// [Sequencer.PublishRange] publishes all but the first element of a range
// with relaxed stores and commits the whole range with a single
// sequentially-consistent store on the front element.
//
// # Waiting
//
// Waiters park on an intrusive lock-free LIFO (a Treiber stack). Publishing
// detaches the whole list, resumes the satisfied waiters and requeues the
// rest, re-scanning the published array to close the race with concurrent
// publishes. A per-waiter ready flag guarantees exactly one side performs the
// wakeup when enqueueing races with publication.
//
// # Sequence Arithmetic
//
// Sequences are uint64 and wrap. Comparisons use signed wrap-aware
// difference, so a ring may be initialized near the top of the range and run
// through the wrap point. The ring size must be a power of two no larger than
// the maximum signed difference.
//
// # Dependencies
//
// This package uses [code.hybscloud.com/atomix] for atomic primitives with
// explicit memory ordering, [code.hybscloud.com/iox] for semantic errors,
// and [code.hybscloud.com/spin] for CPU pause instructions in CAS retry
// loops.
package seq
