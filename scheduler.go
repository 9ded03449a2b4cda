// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mux

import (
	"context"
	"math"
	"sync"

	"code.hybscloud.com/atomix"
)

// status describes one half (send or receive) of a scheduler.
type status int32

const (
	statusIdle status = iota
	statusInUse
	statusRequestedRecvOp
	statusClosed
)

// Scheduler multiplexes many logically-independent forks over a single
// [Stream]. Each fork carries an ordered stream of messages, framed with an
// 8-byte header naming the fork's slot; a writer task and a reader task own
// all stream I/O, and every public operation is bookkeeping handed to them
// under one scheduler-wide mutex.
//
// The mutex is never held across a stream call: the writer and reader
// acquire it only between I/O steps. Per-fork operations settle in FIFO
// order; across forks the scheduler interleaves frames in global post
// order.
type Scheduler struct {
	mu       sync.Mutex
	sendCond *sync.Cond // writer parks here when no send is queued
	recvCond *sync.Cond // reader parks here awaiting receive demand

	stream      Stream
	closeStream sync.Once

	slots         map[SessionID]*slot
	remote        map[uint32]*slot
	nextLocalSlot uint32

	// sendQueue holds one entry per queued send op; the head op of the head
	// slot is the one currently (or next) being written.
	sendQueue []*slot
	numRecvs  int

	sendStatus status
	recvStatus status
	err        error
	closed     bool

	// baseCtx is cancelled exactly once, at Close. The per-half stop
	// contexts derive from it and are replaced after each observed abort.
	baseCtx    context.Context
	stop       context.CancelFunc
	sendCtx    context.Context
	sendCancel context.CancelFunc
	recvCtx    context.Context
	recvCancel context.CancelFunc

	bytesSent     atomix.Uint64
	bytesReceived atomix.Uint64

	logging atomix.Bool
	sendLog []string
	recvLog []string
}

// NewScheduler starts a scheduler over stream with sid as the root fork.
// Both parties must use the same root SessionID. The scheduler owns the
// stream and closes it exactly once when the scheduler closes.
func NewScheduler(stream Stream, sid SessionID) *Scheduler {
	s := &Scheduler{
		stream:        stream,
		slots:         make(map[SessionID]*slot),
		remote:        make(map[uint32]*slot),
		nextLocalSlot: 1,
	}
	s.sendCond = sync.NewCond(&s.mu)
	s.recvCond = sync.NewCond(&s.mu)
	s.baseCtx, s.stop = context.WithCancel(context.Background())

	// Stop contexts exist before the tasks start, so the reset helpers can
	// always assume a consumed context.
	s.sendCtx, s.sendCancel = context.WithCancel(s.baseCtx)
	s.recvCtx, s.recvCancel = context.WithCancel(s.baseCtx)

	s.mu.Lock()
	s.localSlotLocked(sid)
	s.mu.Unlock()

	go s.sendLoop()
	go s.recvLoop()
	return s
}

// Fork derives a new fork of parent. No traffic occurs: both parties derive
// the same child independently, and the child's slot is announced to the
// peer lazily, with the first send on it.
func (s *Scheduler) Fork(parent SessionID) SessionID {
	s.mu.Lock()
	sl := s.localSlotLocked(parent)
	index := sl.nextFork
	sl.nextFork++
	s.mu.Unlock()
	return parent.child(index)
}

// SendAsync posts a send of buf on fork id and returns its completion
// handle. The buffer is transferred by move: the scheduler owns it until
// the operation settles and the caller must not touch it again.
//
// ctx is the operation's cancellation token; nil or a non-cancellable
// context posts an uncancellable send. Completion means the payload was
// fully written, the op was aborted, or the scheduler failed.
func (s *Scheduler) SendAsync(ctx context.Context, id SessionID, buf []byte) *Pending {
	if len(buf) == 0 {
		panic("mux: empty send")
	}
	if uint64(len(buf)) >= math.MaxUint32 {
		panic("mux: send exceeds max frame size")
	}

	s.mu.Lock()
	if s.closed {
		err := s.err
		s.mu.Unlock()
		return settled(err)
	}
	sl := s.localSlotLocked(id)
	if sl.closed {
		s.mu.Unlock()
		return settled(ErrClosed)
	}
	op := &sendOp{slot: sl, buf: buf, pending: newPending()}
	sl.sendOps = append(sl.sendOps, op)
	s.sendQueue = append(s.sendQueue, sl)
	if s.sendStatus == statusIdle {
		s.sendStatus = statusInUse
		s.sendCond.Signal()
	}
	s.mu.Unlock()

	if ctx != nil && ctx.Done() != nil {
		go s.watchSendCancel(ctx, op)
	}
	return op.pending
}

// Send posts a send and blocks until it settles.
func (s *Scheduler) Send(ctx context.Context, id SessionID, buf []byte) error {
	return s.SendAsync(ctx, id, buf).Wait()
}

// RecvAsync posts a receive on fork id into buf and returns its completion
// handle. The buffer stays caller-owned; its length must equal the size of
// the frame the peer sends next on this fork, and it is filled completely
// on success.
func (s *Scheduler) RecvAsync(ctx context.Context, id SessionID, buf []byte) *Pending {
	if len(buf) == 0 {
		panic("mux: empty recv")
	}

	s.mu.Lock()
	if s.closed {
		err := s.err
		s.mu.Unlock()
		return settled(err)
	}
	sl := s.localSlotLocked(id)
	if sl.closed {
		s.mu.Unlock()
		return settled(ErrClosed)
	}
	op := &recvOp{slot: sl, buf: buf, pending: newPending()}
	sl.recvOps = append(sl.recvOps, op)
	s.numRecvs++
	if s.recvStatus == statusIdle {
		s.recvStatus = statusInUse
	}
	s.recvCond.Broadcast()
	s.mu.Unlock()

	if ctx != nil && ctx.Done() != nil {
		go s.watchRecvCancel(ctx, op)
	}
	return op.pending
}

// Recv posts a receive and blocks until it settles.
func (s *Scheduler) Recv(ctx context.Context, id SessionID, buf []byte) error {
	return s.RecvAsync(ctx, id, buf).Wait()
}

// Close moves the scheduler into its terminal state: pending operations
// fail, future operations fail immediately with ErrClosed, and the
// underlying stream is closed exactly once. Safe to call concurrently and
// repeatedly.
func (s *Scheduler) Close() {
	s.close(ErrClosed)
}

// close records cause as the scheduler error (first error wins), fails all
// queued operations, and stops both tasks. In-progress operations are
// settled by their task when the aborted stream call returns.
func (s *Scheduler) close(cause error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.err == nil {
		s.err = cause
	}
	s.sendStatus = statusClosed
	s.recvStatus = statusClosed

	for _, sl := range s.slots {
		s.failQueuedLocked(sl, s.err)
	}
	s.sendQueue = nil
	s.sendCond.Broadcast()
	s.recvCond.Broadcast()
	s.mu.Unlock()

	s.stop()
	s.closeStream.Do(func() { _ = s.stream.Close() })
}

// CloseFork fails only the named fork's queued operations and rejects
// future ones; other forks keep running. An operation already in progress
// on the wire is left to finish, preserving framing.
func (s *Scheduler) CloseFork(id SessionID) {
	s.mu.Lock()
	sl, ok := s.slots[id]
	if !ok {
		sl = &slot{sched: s, id: id}
		s.slots[id] = sl
	}
	sl.closed = true
	s.failQueuedLocked(sl, ErrClosed)
	s.mu.Unlock()
}

// failQueuedLocked settles every queued (not in-progress) op of sl with
// err, removing them from the queues. Caller holds s.mu.
func (s *Scheduler) failQueuedLocked(sl *slot, err error) {
	keptSends := sl.sendOps[:0]
	for _, op := range sl.sendOps {
		if op.inProgress {
			keptSends = append(keptSends, op)
			continue
		}
		s.removeSendQueueEntryLocked(sl)
		s.settleSendLocked(op, err)
	}
	sl.sendOps = keptSends

	keptRecvs := sl.recvOps[:0]
	for _, op := range sl.recvOps {
		if op.inProgress {
			keptRecvs = append(keptRecvs, op)
			continue
		}
		s.numRecvs--
		s.settleRecvLocked(op, err)
	}
	sl.recvOps = keptRecvs

	if len(s.sendQueue) == 0 && s.sendStatus == statusInUse {
		s.sendStatus = statusIdle
	}
	if s.numRecvs == 0 && s.recvStatus == statusInUse {
		s.recvStatus = statusIdle
	}
}

// Release verifies the scheduler is quiescent and closes it. Releasing
// with an operation still in flight is a programmer error: await Flush
// first. Mirrors the teardown contract of the wire protocol: a torn-down
// scheduler with half-written frames cannot be recovered.
func (s *Scheduler) Release() {
	s.mu.Lock()
	if s.sendStatus == statusInUse || s.recvStatus == statusInUse {
		s.mu.Unlock()
		panic("mux: scheduler released with pending operations; await Flush before Release")
	}
	s.mu.Unlock()
	s.Close()
}

// BytesSent returns the total bytes written to the stream, headers
// included.
func (s *Scheduler) BytesSent() uint64 {
	return s.bytesSent.Load()
}

// BytesReceived returns the total bytes read from the stream, headers
// included.
func (s *Scheduler) BytesReceived() uint64 {
	return s.bytesReceived.Load()
}

// EnableLogging starts recording writer and reader events in memory.
func (s *Scheduler) EnableLogging() {
	s.logging.Store(true)
}

// DisableLogging stops recording events.
func (s *Scheduler) DisableLogging() {
	s.logging.Store(false)
}

// SendLog returns a copy of the recorded writer events.
func (s *Scheduler) SendLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sendLog...)
}

// RecvLog returns a copy of the recorded reader events.
func (s *Scheduler) RecvLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.recvLog...)
}

func (s *Scheduler) logSend(tag string) {
	if !s.logging.Load() {
		return
	}
	s.mu.Lock()
	s.sendLog = append(s.sendLog, tag)
	s.mu.Unlock()
}

func (s *Scheduler) logRecv(tag string) {
	if !s.logging.Load() {
		return
	}
	s.mu.Lock()
	s.recvLog = append(s.recvLog, tag)
	s.mu.Unlock()
}

// watchSendCancel implements the two cancellation tiers for a send op: a
// queued op is removed and settled immediately; an in-progress op stops the
// scheduler's send context, which the stream honors by returning ErrAborted
// from the current write.
func (s *Scheduler) watchSendCancel(ctx context.Context, op *sendOp) {
	select {
	case <-op.pending.done:
		return
	case <-ctx.Done():
	}

	s.mu.Lock()
	if op.settled {
		s.mu.Unlock()
		return
	}
	if !op.inProgress {
		s.removeQueuedSendLocked(op)
		s.settleSendLocked(op, ErrAborted)
		if len(s.sendQueue) == 0 && s.sendStatus == statusInUse {
			s.sendStatus = statusIdle
		}
		s.mu.Unlock()
		return
	}
	cancel := s.sendCancel
	s.mu.Unlock()
	cancel()
}

func (s *Scheduler) watchRecvCancel(ctx context.Context, op *recvOp) {
	select {
	case <-op.pending.done:
		return
	case <-ctx.Done():
	}

	s.mu.Lock()
	if op.settled {
		s.mu.Unlock()
		return
	}
	if !op.inProgress {
		s.removeQueuedRecvLocked(op)
		s.settleRecvLocked(op, ErrAborted)
		if s.numRecvs == 0 && s.recvStatus == statusInUse {
			s.recvStatus = statusIdle
		}
		s.mu.Unlock()
		return
	}
	cancel := s.recvCancel
	s.mu.Unlock()
	cancel()
}

// settleSendLocked completes op exactly once, releasing its buffer and its
// flush references. Caller holds s.mu; closing the completion channel
// cannot reenter the scheduler.
func (s *Scheduler) settleSendLocked(op *sendOp, err error) {
	if op.settled {
		return
	}
	op.settled = true
	op.buf = nil
	op.pending.err = err
	close(op.pending.done)
	for _, t := range op.flushes {
		t.release()
	}
	op.flushes = nil
}

func (s *Scheduler) settleRecvLocked(op *recvOp, err error) {
	if op.settled {
		return
	}
	op.settled = true
	op.pending.err = err
	close(op.pending.done)
	for _, t := range op.flushes {
		t.release()
	}
	op.flushes = nil
}

// removeQueuedSendLocked removes a not-in-progress op from its slot's queue
// and drops one matching entry from the global send queue. Entries of the
// same slot are interchangeable: the queue tracks counts per slot, in post
// order. Caller holds s.mu.
func (s *Scheduler) removeQueuedSendLocked(op *sendOp) {
	sl := op.slot
	for i, o := range sl.sendOps {
		if o == op {
			sl.sendOps = append(sl.sendOps[:i], sl.sendOps[i+1:]...)
			break
		}
	}
	s.removeSendQueueEntryLocked(sl)
}

func (s *Scheduler) removeSendQueueEntryLocked(sl *slot) {
	for i, q := range s.sendQueue {
		if q == sl {
			s.sendQueue = append(s.sendQueue[:i], s.sendQueue[i+1:]...)
			return
		}
	}
}

func (s *Scheduler) removeQueuedRecvLocked(op *recvOp) {
	sl := op.slot
	for i, o := range sl.recvOps {
		if o == op {
			sl.recvOps = append(sl.recvOps[:i], sl.recvOps[i+1:]...)
			break
		}
	}
	s.numRecvs--
}

// resetSendTokenLocked replaces the consumed send stop context after an
// observed abort. Caller holds s.mu.
func (s *Scheduler) resetSendTokenLocked() {
	if s.closed {
		return
	}
	s.sendCtx, s.sendCancel = context.WithCancel(s.baseCtx)
}

func (s *Scheduler) resetRecvTokenLocked() {
	if s.closed {
		return
	}
	s.recvCtx, s.recvCancel = context.WithCancel(s.baseCtx)
}
