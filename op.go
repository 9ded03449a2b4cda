// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mux

// Pending is the completion handle of an asynchronous send or receive.
//
// An operation settles exactly once: with nil when the transfer finished,
// with [ErrAborted] when its token fired, with [ErrClosed] when the
// scheduler closed underneath it, or with the scheduler's recorded error.
type Pending struct {
	done chan struct{}
	err  error
}

func newPending() *Pending {
	return &Pending{done: make(chan struct{})}
}

// Done returns a channel closed when the operation has settled.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Err returns the settlement error, or nil if the operation has not
// settled yet or settled successfully.
func (p *Pending) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// Wait blocks until the operation settles and returns its error.
// Cancellation is carried by the token passed when the operation was
// posted, so Wait itself takes none: a fired token settles the operation.
func (p *Pending) Wait() error {
	<-p.done
	return p.err
}

// settled reports on a Pending that was completed immediately at post time.
func settled(err error) *Pending {
	p := newPending()
	p.err = err
	close(p.done)
	return p
}

// sendOp is one enqueued send. The scheduler owns the buffer (transferred
// by move at post time). The op appears once in its slot's send queue and
// contributes one slot entry to the scheduler's global send queue.
type sendOp struct {
	slot    *slot
	buf     []byte
	pending *Pending

	// inProgress is set when the writer selects this op; from then on
	// cancellation goes through the scheduler's send stop context instead
	// of removing the op from its queues.
	inProgress bool
	settled    bool

	flushes []*flushToken
}

// recvOp is one enqueued receive. The buffer is caller-owned; its length
// must equal the size of the frame the peer sends on this fork.
type recvOp struct {
	slot    *slot
	buf     []byte
	pending *Pending

	inProgress bool
	settled    bool

	flushes []*flushToken
}
