// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mux

import "context"

// Stream is the bidirectional byte stream a Scheduler multiplexes over.
//
// Send and Recv transfer the whole buffer: a short count is returned only
// together with a non-nil error. Both must honor ctx promptly by returning
// [ErrAborted] (with the count of bytes actually transferred) when it is
// cancelled mid-transfer; the scheduler relies on this to preserve framing
// across cancelled operations.
//
// Close releases the stream. After Close, pending and future Send/Recv
// calls fail. Close may be called concurrently with Send and Recv.
type Stream interface {
	// Send writes all of buf to the stream.
	Send(ctx context.Context, buf []byte) (int, error)

	// Recv fills all of buf from the stream.
	Recv(ctx context.Context, buf []byte) (int, error)

	// Close releases the stream.
	Close() error
}
