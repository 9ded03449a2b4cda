// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mux

import (
	"context"
	"errors"
)

// isAbortErr reports whether a stream error came from a stop context rather
// than from the transport itself.
func isAbortErr(err error) bool {
	return errors.Is(err, ErrAborted) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// sendLoop is the writer task. It owns all stream writes: for each op it
// transmits a NewSlot announcement if the slot is uninitiated, then the
// 8-byte header, then the payload. A cancelled transfer leaves the frame
// remainder in the restore buffer, which is drained before the next frame;
// the peer is owed the whole frame once any header byte is on the wire.
func (s *Scheduler) sendLoop() {
	var restore []byte
	var header [headerSize]byte
	var meta [metaFrameSize]byte

	for {
		ctx, sl, op := s.nextSendOp()
		if op == nil {
			return
		}
		s.logSend("new-send")
		data := op.buf

		if len(restore) > 0 {
			s.logSend("restore")
			n, err := s.stream.Send(ctx, restore)
			s.bytesSent.Add(uint64(n))
			if err != nil {
				restore = restore[n:]
				if s.sendFailed(sl, op, err) {
					return
				}
				continue
			}
			restore = nil
		}

		if !sl.initiated {
			s.logSend("meta")
			sl.initiated = true
			putNewSlot(meta[:], sl.localID, sl.id)
			n, err := s.stream.Send(ctx, meta[:])
			s.bytesSent.Add(uint64(n))
			if err != nil {
				if n > 0 {
					restore = append([]byte(nil), meta[n:]...)
				} else {
					// No byte of the announcement reached the wire; the
					// next send on this slot must re-announce.
					sl.initiated = false
				}
				if s.sendFailed(sl, op, err) {
					return
				}
				continue
			}
		}

		s.logSend("header")
		putHeader(header[:], uint32(len(data)), sl.localID)
		n, err := s.stream.Send(ctx, header[:])
		s.bytesSent.Add(uint64(n))
		if err != nil {
			if n > 0 {
				restore = append(append([]byte(nil), header[n:]...), data...)
			}
			if s.sendFailed(sl, op, err) {
				return
			}
			continue
		}

		s.logSend("body")
		n, err = s.stream.Send(ctx, data)
		s.bytesSent.Add(uint64(n))
		if err != nil {
			// The header is on the wire, so the peer expects the whole
			// payload regardless of how little of it made it out.
			restore = data[n:]
			if s.sendFailed(sl, op, err) {
				return
			}
			continue
		}

		s.completeSend(sl, op)
	}
}

// nextSendOp parks the writer until a send is queued, then selects the head
// op of the head slot and marks it in progress. Returns a nil op when the
// scheduler has closed.
func (s *Scheduler) nextSendOp() (context.Context, *slot, *sendOp) {
	s.mu.Lock()
	for {
		if s.closed {
			s.mu.Unlock()
			return nil, nil, nil
		}
		if len(s.sendQueue) > 0 {
			break
		}
		s.sendStatus = statusIdle
		s.sendCond.Wait()
	}
	s.sendStatus = statusInUse
	sl := s.sendQueue[0]
	op := sl.sendOps[0]
	op.inProgress = true
	ctx := s.sendCtx
	s.mu.Unlock()
	return ctx, sl, op
}

// sendFailed settles the current op after a failed stream write. An abort
// settles the op locally and the writer carries on; any other error is the
// scheduler's first transport error and is fatal. Reports whether the
// writer should exit.
func (s *Scheduler) sendFailed(sl *slot, op *sendOp, err error) (fatal bool) {
	if isAbortErr(err) {
		s.mu.Lock()
		s.popCurrentSendLocked(sl, op)
		s.settleSendLocked(op, ErrAborted)
		if len(s.sendQueue) == 0 && s.sendStatus == statusInUse {
			s.sendStatus = statusIdle
		}
		s.resetSendTokenLocked()
		s.mu.Unlock()
		return false
	}

	s.mu.Lock()
	s.popCurrentSendLocked(sl, op)
	s.settleSendLocked(op, err)
	s.mu.Unlock()
	s.close(err)
	return true
}

// completeSend settles the current op successfully.
func (s *Scheduler) completeSend(sl *slot, op *sendOp) {
	s.mu.Lock()
	s.popCurrentSendLocked(sl, op)
	s.settleSendLocked(op, nil)
	if len(s.sendQueue) == 0 && s.sendStatus == statusInUse {
		s.sendStatus = statusIdle
	}
	s.mu.Unlock()
}

// popCurrentSendLocked removes the writer's current op from its slot queue
// and drops one matching global queue entry. Caller holds s.mu.
func (s *Scheduler) popCurrentSendLocked(sl *slot, op *sendOp) {
	if len(sl.sendOps) > 0 && sl.sendOps[0] == op {
		sl.sendOps = sl.sendOps[1:]
	}
	s.removeSendQueueEntryLocked(sl)
}
