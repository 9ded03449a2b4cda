// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package seq_test

import (
	"sync"
	"testing"

	"code.hybscloud.com/mux/seq"
)

func TestBarrierImmediate(t *testing.T) {
	b := seq.NewBarrier(7)
	if got := b.LastPublished(); got != 7 {
		t.Fatalf("LastPublished: got %d, want 7", got)
	}
	// Already-satisfied targets return without parking.
	if got := b.WaitUntilPublished(5); got != 7 {
		t.Fatalf("WaitUntilPublished(5): got %d, want 7", got)
	}
	if got := b.WaitUntilPublished(7); got != 7 {
		t.Fatalf("WaitUntilPublished(7): got %d, want 7", got)
	}
}

func TestBarrierWake(t *testing.T) {
	b := seq.NewBarrier(0)

	done := make(chan uint64, 1)
	go func() {
		done <- b.WaitUntilPublished(3)
	}()

	b.Publish(1)
	b.Publish(2)
	b.Publish(3)

	if got := <-done; got < 3 {
		t.Fatalf("WaitUntilPublished(3): got %d, want >= 3", got)
	}
}

// TestBarrierManyWaiters parks one waiter per target and publishes one
// sequence at a time; a single publish must wake exactly the waiters it
// satisfies, and no wakeup may be lost.
func TestBarrierManyWaiters(t *testing.T) {
	const waiters = 16

	b := seq.NewBarrier(0)

	var wg sync.WaitGroup
	results := make([]uint64, waiters)
	for i := range waiters {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = b.WaitUntilPublished(uint64(i + 1))
		}(i)
	}

	for n := uint64(1); n <= waiters; n++ {
		b.Publish(n)
	}
	wg.Wait()

	for i, got := range results {
		if got < uint64(i+1) {
			t.Fatalf("waiter %d: got %d, want >= %d", i, got, i+1)
		}
	}
}

func TestBarrierPublishRace(t *testing.T) {
	// The waiter's initial check races with the publish; the post-enqueue
	// re-check in addAwaiter must still observe it.
	for range 100 {
		b := seq.NewBarrier(0)
		done := make(chan uint64, 1)
		go func() {
			done <- b.WaitUntilPublished(1)
		}()
		b.Publish(1)
		if got := <-done; got < 1 {
			t.Fatalf("WaitUntilPublished(1): got %d, want >= 1", got)
		}
	}
}
