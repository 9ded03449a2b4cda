// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package seq_test

import (
	"testing"

	"golang.org/x/sync/errgroup"

	"code.hybscloud.com/mux/seq"
)

// TestStressManyProducers drives many producers through a small ring and
// checks that the single consumer observes every item exactly once.
func TestStressManyProducers(t *testing.T) {
	const (
		producers   = 8
		perProducer = 1000
		bufferSize  = 64
		totalItems  = producers * perProducer
	)

	b := seq.NewBarrier(0)
	s := seq.NewSequencer(b, bufferSize, 0)
	ring := make([]uint64, bufferSize)

	consumed := make(chan uint64, 1)
	go func() {
		var sum uint64
		count := 0
		last := uint64(0)
		for count < totalItems {
			last = s.WaitUntilPublished(uint64(count)+1, last)
			for ; count < int(last); count++ {
				sum += ring[uint64(count+1)&(bufferSize-1)]
			}
			b.Publish(last)
		}
		consumed <- sum
	}()

	var eg errgroup.Group
	for p := range producers {
		eg.Go(func() error {
			for i := range perProducer {
				n := s.ClaimOne()
				ring[n&(bufferSize-1)] = uint64(p*perProducer + i + 1)
				s.Publish(n)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		t.Fatal(err)
	}

	want := uint64(totalItems) * uint64(totalItems+1) / 2
	if got := <-consumed; got != want {
		t.Fatalf("consumed sum: got %d, want %d", got, want)
	}
}

// TestStressClaimRanges mixes range claims with single claims under
// contention.
func TestStressClaimRanges(t *testing.T) {
	const (
		producers  = 4
		rounds     = 200
		bufferSize = 32
		// Rounds alternate between a single claim and a range of 3.
		totalItems = producers * (rounds / 2) * (1 + 3)
	)

	b := seq.NewBarrier(0)
	s := seq.NewSequencer(b, bufferSize, 0)
	ring := make([]uint64, bufferSize)

	consumed := make(chan int, 1)
	go func() {
		count := 0
		last := uint64(0)
		for count < totalItems {
			last = s.WaitUntilPublished(uint64(count)+1, last)
			for ; count < int(last); count++ {
				n := uint64(count + 1)
				if ring[n&(bufferSize-1)] != n {
					consumed <- count
					return
				}
			}
			b.Publish(last)
		}
		consumed <- count
	}()

	var eg errgroup.Group
	for p := range producers {
		eg.Go(func() error {
			for i := range rounds {
				if (p+i)%2 == 0 {
					n := s.ClaimOne()
					ring[n&(bufferSize-1)] = n
					s.Publish(n)
				} else {
					r := s.ClaimUpTo(3)
					for n := r.First; n != r.Last; n++ {
						ring[n&(bufferSize-1)] = n
					}
					s.PublishRange(r)
				}
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		t.Fatal(err)
	}

	if got := <-consumed; got != totalItems {
		t.Fatalf("consumed: got %d items, want %d", got, totalItems)
	}
}
