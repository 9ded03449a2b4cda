// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mux

// slot is the scheduler's per-fork bookkeeping record. Slots are created
// the first time a local operation mentions a SessionID, or the first time
// the peer announces one, and live until the scheduler is torn down. Both
// creation paths converge on the same slot, keyed by SessionID.
//
// The back-reference to the scheduler is non-owning; the scheduler owns
// every slot and outlives them (enforced by the Release contract).
type slot struct {
	sched *Scheduler
	id    SessionID

	// localID is our 32-bit name for this fork on the wire, allocated from
	// a local monotonic counter starting at 1. Zero means not yet assigned
	// (the slot was created by the peer's announcement and no local
	// operation has referenced it).
	localID uint32

	// remoteID is the peer's name for this fork, learned from its NewSlot
	// frame. Zero means the peer has not announced it yet; receives from
	// the peer are impossible before that.
	remoteID uint32

	// initiated is set once the peer has been told about this slot. While
	// false, the next send must prepend a NewSlot meta frame.
	initiated bool

	closed bool

	// nextFork numbers the children derived from this fork. Both parties
	// fork in the same order, so the counters stay aligned.
	nextFork uint64

	// Pending operations in enqueue order. Only the head of each queue may
	// be in progress.
	sendOps []*sendOp
	recvOps []*recvOp
}

// localSlotLocked finds or creates the slot for id and ensures it has a
// local slot id. Caller holds s.mu.
func (s *Scheduler) localSlotLocked(id SessionID) *slot {
	sl, ok := s.slots[id]
	if !ok {
		sl = &slot{sched: s, id: id}
		s.slots[id] = sl
	}
	if sl.localID == 0 {
		sl.localID = s.nextLocalSlot
		s.nextLocalSlot++
	}
	return sl
}

// installRemoteSlotLocked binds the peer's slot id to a SessionID announced
// in a NewSlot frame. Rebinding an id or re-announcing a session is a
// protocol violation. Caller holds s.mu.
func (s *Scheduler) installRemoteSlotLocked(slotID uint32, id SessionID) error {
	if slotID == 0 {
		return ErrBadHeader
	}
	if _, dup := s.remote[slotID]; dup {
		return ErrBadHeader
	}
	sl, ok := s.slots[id]
	if !ok {
		sl = &slot{sched: s, id: id}
		s.slots[id] = sl
	}
	if sl.remoteID != 0 {
		return ErrBadHeader
	}
	sl.remoteID = slotID
	s.remote[slotID] = sl
	return nil
}
