// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mux

import (
	"context"

	"code.hybscloud.com/atomix"
)

// flushToken tracks settlement of the operations that were pending when a
// Flush was posted. Each tracked op holds one reference and drops it when
// it settles, regardless of outcome; the token completes when the count
// reaches zero. Flush therefore waits for settlement, not success.
type flushToken struct {
	refs atomix.Int64
	done chan struct{}
}

// release drops one reference. Called with the scheduler mutex held;
// closing a channel cannot reenter the scheduler, so completing under the
// lock is safe.
func (t *flushToken) release() {
	if t.refs.Add(-1) == 0 {
		close(t.done)
	}
}

// Flush blocks until every operation pending at the time of the call has
// settled: completed, aborted, or failed. It returns nil even if some of
// those operations were cancelled or failed; ctx only bounds the wait
// itself.
//
// Await Flush before Release when sends were posted asynchronously: a
// buffered move-send can appear complete to the caller while the writer is
// still draining it.
func (s *Scheduler) Flush(ctx context.Context) error {
	t := &flushToken{done: make(chan struct{})}

	n := int64(0)
	s.mu.Lock()
	for _, sl := range s.slots {
		for _, op := range sl.sendOps {
			op.flushes = append(op.flushes, t)
			n++
		}
		for _, op := range sl.recvOps {
			op.flushes = append(op.flushes, t)
			n++
		}
	}
	if n == 0 {
		s.mu.Unlock()
		return nil
	}
	t.refs.Store(n)
	s.mu.Unlock()

	if ctx == nil {
		<-t.done
		return nil
	}
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
