// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mux

import "context"

// recvLoop is the reader task. It runs one header-driven loop: drain any
// carry-over from a cancelled read, read a header, install slot bindings
// from meta frames, park until a matching receive is posted, then fill the
// op's buffer. Header and restore reads are not cancellable per-op; only
// the body read carries the receive stop context, because only a posted op
// can be cancelled.
func (s *Scheduler) recvLoop() {
	restore := 0 // bytes of a cancelled frame still owed by the wire
	var scratch []byte
	var header [headerSize]byte
	var block [controlBlockSize]byte

	for {
		if !s.awaitRecvOp() {
			return
		}
		s.logRecv("new-recv")

		if restore > 0 {
			s.logRecv("restore")
			if cap(scratch) < restore {
				scratch = make([]byte, restore)
			}
			n, err := s.stream.Recv(s.baseCtx, scratch[:restore])
			s.bytesReceived.Add(uint64(n))
			if err != nil {
				s.close(err)
				return
			}
			restore = 0
		}

		var size, slotID uint32
		for {
			s.logRecv("header")
			n, err := s.stream.Recv(s.baseCtx, header[:])
			s.bytesReceived.Add(uint64(n))
			if err != nil {
				s.close(err)
				return
			}
			size, slotID = parseHeader(header[:])
			if size != 0 {
				break
			}

			s.logRecv("header-meta")
			n, err = s.stream.Recv(s.baseCtx, block[:])
			s.bytesReceived.Add(uint64(n))
			if err != nil {
				s.close(err)
				return
			}
			var sid SessionID
			copy(sid[:], block[:])
			s.mu.Lock()
			err = s.installRemoteSlotLocked(slotID, sid)
			s.mu.Unlock()
			if err != nil {
				s.close(err)
				return
			}
		}

		ctx, op, err := s.requestedRecvOp(slotID)
		if err != nil {
			if !IsClosed(err) {
				s.close(err)
			}
			return
		}

		if uint32(len(op.buf)) != size {
			s.mu.Lock()
			s.popCurrentRecvLocked(op)
			s.settleRecvLocked(op, ErrCancel)
			s.mu.Unlock()
			s.close(ErrCancel)
			return
		}

		s.logRecv("body")
		n, err := s.stream.Recv(ctx, op.buf)
		s.bytesReceived.Add(uint64(n))
		if err != nil {
			if isAbortErr(err) {
				// The peer cannot un-send the frame: remember how much of
				// it is still owed so a later iteration drains it.
				restore = len(op.buf) - n
				s.mu.Lock()
				s.popCurrentRecvLocked(op)
				s.settleRecvLocked(op, ErrAborted)
				if s.numRecvs == 0 && s.recvStatus == statusInUse {
					s.recvStatus = statusIdle
				}
				s.resetRecvTokenLocked()
				s.mu.Unlock()
				continue
			}
			s.mu.Lock()
			s.popCurrentRecvLocked(op)
			s.settleRecvLocked(op, err)
			s.mu.Unlock()
			s.close(err)
			return
		}

		s.completeRecv(op)
	}
}

// awaitRecvOp parks the reader until at least one receive is posted.
// Reports false when the scheduler has closed.
func (s *Scheduler) awaitRecvOp() bool {
	s.mu.Lock()
	for {
		if s.closed {
			s.mu.Unlock()
			return false
		}
		if s.numRecvs > 0 {
			break
		}
		s.recvStatus = statusIdle
		s.recvCond.Wait()
	}
	s.recvStatus = statusInUse
	s.mu.Unlock()
	return true
}

// requestedRecvOp resolves the destination of the current data frame. If
// the fork has no posted receive yet the reader parks until one arrives:
// out-of-order demand across forks is handled by waiting for the correct
// consumer, never by buffering the frame. An unknown slot id is a protocol
// violation.
func (s *Scheduler) requestedRecvOp(slotID uint32) (context.Context, *recvOp, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sl, ok := s.remote[slotID]
	if !ok {
		return nil, nil, ErrBadHeader
	}
	for {
		if s.closed {
			return nil, nil, ErrClosed
		}
		if len(sl.recvOps) > 0 {
			break
		}
		s.recvStatus = statusRequestedRecvOp
		s.recvCond.Wait()
	}
	s.recvStatus = statusInUse
	op := sl.recvOps[0]
	op.inProgress = true
	return s.recvCtx, op, nil
}

// completeRecv settles the current op successfully.
func (s *Scheduler) completeRecv(op *recvOp) {
	s.mu.Lock()
	s.popCurrentRecvLocked(op)
	s.settleRecvLocked(op, nil)
	if s.numRecvs == 0 && s.recvStatus == statusInUse {
		s.recvStatus = statusIdle
	}
	s.mu.Unlock()
}

// popCurrentRecvLocked removes the reader's current op from its slot queue.
// Caller holds s.mu.
func (s *Scheduler) popCurrentRecvLocked(op *recvOp) {
	sl := op.slot
	if len(sl.recvOps) > 0 && sl.recvOps[0] == op {
		sl.recvOps = sl.recvOps[1:]
	}
	s.numRecvs--
}
