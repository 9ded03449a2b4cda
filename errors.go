// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mux

import "errors"

// Error codes surfaced by scheduler operations.
//
// The first transport error observed on the underlying stream is recorded on
// the scheduler and reused for every subsequent operation. Protocol
// violations close the scheduler. Cancellation is local to the operation
// that carried the token.
var (
	// ErrAborted indicates the operation observed its cancellation token.
	// The scheduler continues; only this operation is affected, though a
	// frame already half-transferred on the wire is still completed before
	// any new frame (see the restore buffer).
	ErrAborted = errors.New("mux: operation aborted")

	// ErrClosed indicates the scheduler was closed while the operation was
	// pending, or the operation was submitted after close.
	ErrClosed = errors.New("mux: scheduler closed")

	// ErrBadHeader indicates the peer referenced a slot that was never
	// announced, or announced a slot binding twice. Fatal: the scheduler
	// closes.
	ErrBadHeader = errors.New("mux: bad message header")

	// ErrCancel indicates a received frame's size disagrees with the posted
	// receive buffer. Fatal: the framing contract is broken and the
	// scheduler closes.
	ErrCancel = errors.New("mux: frame size mismatch")
)

// IsAborted reports whether err is an operation-local cancellation.
func IsAborted(err error) bool {
	return errors.Is(err, ErrAborted)
}

// IsClosed reports whether err indicates a closed scheduler.
func IsClosed(err error) bool {
	return errors.Is(err, ErrClosed)
}
