// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mux_test

import (
	"context"
	"testing"

	"code.hybscloud.com/mux"
)

func benchmarkSendRecv(b *testing.B, size int) {
	skipRace(b)
	b.ReportAllocs()
	sched, peer, root := newPair(b, "bench")

	payload := make([]byte, size)
	got := make([]byte, size)

	b.SetBytes(int64(size))
	b.ResetTimer()
	for b.Loop() {
		recv := peer.RecvAsync(nil, root, got)
		if err := sched.Send(nil, root, payload); err != nil {
			b.Fatal(err)
		}
		if err := recv.Wait(); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkSendRecv* measure a posted-receive round-trip per payload size.
func BenchmarkSendRecv64(b *testing.B)  { benchmarkSendRecv(b, 64) }
func BenchmarkSendRecv4K(b *testing.B)  { benchmarkSendRecv(b, 4096) }
func BenchmarkSendRecv64K(b *testing.B) { benchmarkSendRecv(b, 64*1024) }

// BenchmarkFlush measures a batch of async move-sends settled by Flush.
func BenchmarkFlush(b *testing.B) {
	skipRace(b)
	b.ReportAllocs()
	sched, peer, root := newPair(b, "bench-flush")

	const batch = 16
	payload := make([]byte, 128)
	bufs := make([][]byte, batch)
	for i := range bufs {
		bufs[i] = make([]byte, len(payload))
	}

	b.ResetTimer()
	for b.Loop() {
		recvs := make([]*mux.Pending, batch)
		for i := range batch {
			recvs[i] = peer.RecvAsync(nil, root, bufs[i])
			sched.SendAsync(nil, root, append([]byte(nil), payload...))
		}
		if err := sched.Flush(context.Background()); err != nil {
			b.Fatal(err)
		}
		for _, r := range recvs {
			if err := r.Wait(); err != nil {
				b.Fatal(err)
			}
		}
	}
}

// BenchmarkFork measures deterministic fork derivation.
func BenchmarkFork(b *testing.B) {
	skipRace(b)
	b.ReportAllocs()
	sched, _, root := newPair(b, "bench-fork")

	b.ResetTimer()
	for b.Loop() {
		sched.Fork(root)
	}
}
