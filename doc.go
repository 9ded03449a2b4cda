// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package mux multiplexes many logically-independent protocol forks over a
// single bidirectional byte stream.
//
// A [Scheduler] owns one [Stream] and runs a writer task and a reader task
// over it. Higher protocol code addresses forks by [SessionID]; each fork
// carries an ordered stream of messages, independent of every other fork.
//
// # Forks and Slots
//
// A fork is named by a 128-bit SessionID that both parties derive
// independently: [Scheduler.Fork] is deterministic, so forking never costs
// network traffic. On the wire a fork is referenced by a 32-bit slot id,
// announced once in a NewSlot meta frame before the fork's first data
// frame. Each party allocates slot ids locally; the two directions of a
// fork may use different ids for the same SessionID.
//
//	size:u32le | slot:u32le | payload[size]   data frame (size > 0)
//	0:u32le    | slot:u32le | session-id[16]  NewSlot meta frame
//
// # Posting Operations
//
// [Scheduler.SendAsync] transfers the buffer by move and returns a
// [Pending] handle; [Scheduler.Send] blocks until settlement. Receives are
// symmetric, into a caller-owned buffer whose length must match the
// incoming frame. Per fork, sends and receives settle in post order;
// across forks the scheduler interleaves freely.
//
//	sched := mux.NewScheduler(stream, mux.RootSession("demo"))
//	fork := sched.Fork(mux.RootSession("demo"))
//
//	p := sched.SendAsync(ctx, fork, payload) // payload now owned by sched
//	...
//	if err := p.Wait(); err != nil { ... }
//
// # Cancellation
//
// Every operation carries its own token: the context passed at post time.
// A queued operation cancels immediately. An operation already on the wire
// is stopped cooperatively, and the scheduler keeps the stream framed by
// remembering the untransferred remainder of the frame: the peer is owed
// a whole frame once its header has started. The remainder is drained
// before the next frame in that direction.
//
// # Flush, Close, Release
//
// [Scheduler.Flush] suspends until every operation pending at the call has
// settled, successfully or not. [Scheduler.Close] fails all pending work,
// closes the stream exactly once, and rejects everything after it;
// [Scheduler.CloseFork] does the same for a single fork. [Scheduler.Release]
// panics if an operation is still in flight; await Flush first.
//
// # Transport
//
// The scheduler consumes any [Stream]: the contract is whole-buffer
// transfers, prompt [ErrAborted] on a cancelled stop context, and an
// idempotent Close. [Pipe] provides the in-process loopback used by tests
// and single-process runs, built on bounded lock-free SPSC queues from
// [code.hybscloud.com/lfq].
//
// # Errors
//
// The first transport error observed is recorded and reused for every
// subsequent operation. Protocol violations ([ErrBadHeader], [ErrCancel])
// close the scheduler. Cancellation ([ErrAborted]) is local to one
// operation.
package mux
