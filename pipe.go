// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mux

import (
	"context"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
	"code.hybscloud.com/lfq"
)

// pipeCapacity is the bounded capacity of each pipe direction, in chunks.
const pipeCapacity = 16

// pipeChunk is the transfer granularity of a pipe. A Send moves at most
// this many bytes per enqueue, so a stop context takes effect mid-transfer
// on chunk boundaries.
const pipeChunk = 1024

// pipeHalf is one direction of an in-process pipe: a bounded lock-free
// SPSC queue of byte chunks. The scheduler's writer task is the single
// producer and the peer's reader task the single consumer.
type pipeHalf struct {
	queue   *lfq.SPSC[[]byte]
	closed  atomix.Bool
	pending []byte // consumer-side remainder of a partially copied chunk
}

// pipeStream is one end of an in-process [Stream] pair.
type pipeStream struct {
	send *pipeHalf
	recv *pipeHalf
}

// Pipe creates a connected in-process Stream pair for loopback use: tests,
// examples, and single-process protocol runs. Transport is a pair of
// bounded lock-free SPSC queues with adaptive backoff at the full/empty
// boundaries; both Send and Recv honor their stop context between chunks.
//
// Closing either end fails pending and future transfers on both ends.
func Pipe() (Stream, Stream) {
	ab := &pipeHalf{queue: lfq.NewSPSC[[]byte](pipeCapacity)}
	ba := &pipeHalf{queue: lfq.NewSPSC[[]byte](pipeCapacity)}
	return &pipeStream{send: ab, recv: ba}, &pipeStream{send: ba, recv: ab}
}

func (p *pipeStream) Send(ctx context.Context, buf []byte) (int, error) {
	sent := 0
	var bo iox.Backoff
	for sent < len(buf) {
		if p.send.closed.Load() || p.recv.closed.Load() {
			return sent, ErrClosed
		}
		if ctx != nil {
			select {
			case <-ctx.Done():
				return sent, ErrAborted
			default:
			}
		}
		n := len(buf) - sent
		if n > pipeChunk {
			n = pipeChunk
		}
		chunk := append([]byte(nil), buf[sent:sent+n]...)
		if err := p.send.queue.Enqueue(&chunk); err != nil {
			bo.Wait()
			continue
		}
		bo.Reset()
		sent += n
	}
	return sent, nil
}

func (p *pipeStream) Recv(ctx context.Context, buf []byte) (int, error) {
	read := 0
	var bo iox.Backoff
	for read < len(buf) {
		if len(p.recv.pending) == 0 {
			if ctx != nil {
				select {
				case <-ctx.Done():
					return read, ErrAborted
				default:
				}
			}
			chunk, err := p.recv.queue.Dequeue()
			if err != nil {
				// Drain queued chunks before reporting close.
				if p.recv.closed.Load() || p.send.closed.Load() {
					return read, ErrClosed
				}
				bo.Wait()
				continue
			}
			bo.Reset()
			p.recv.pending = chunk
		}
		n := copy(buf[read:], p.recv.pending)
		p.recv.pending = p.recv.pending[n:]
		read += n
	}
	return read, nil
}

func (p *pipeStream) Close() error {
	p.send.closed.Store(true)
	p.recv.closed.Store(true)
	return nil
}
