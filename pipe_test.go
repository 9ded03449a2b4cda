// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mux_test

import (
	"bytes"
	"context"
	"testing"

	"code.hybscloud.com/mux"
)

func TestPipeRoundTrip(t *testing.T) {
	skipRace(t)
	sa, sb := mux.Pipe()

	payload := []byte("the quick brown fox")
	done := make(chan error, 1)
	go func() {
		_, err := sa.Send(context.Background(), payload)
		done <- err
	}()

	got := make([]byte, len(payload))
	n, err := sb.Recv(context.Background(), got)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if n != len(payload) || !bytes.Equal(got, payload) {
		t.Fatalf("Recv: got %q (%d bytes)", got[:n], n)
	}
	if err := <-done; err != nil {
		t.Fatalf("Send: %v", err)
	}
}

// TestPipeSplitReads transfers one large buffer and reads it back in
// unaligned pieces, crossing internal chunk boundaries.
func TestPipeSplitReads(t *testing.T) {
	skipRace(t)
	sa, sb := mux.Pipe()

	payload := make([]byte, 10_000)
	for i := range payload {
		payload[i] = byte(i * 7)
	}
	go func() {
		_, _ = sa.Send(context.Background(), payload)
	}()

	var got []byte
	for _, size := range []int{1, 7, 100, 2048, 10_000 - 1 - 7 - 100 - 2048} {
		part := make([]byte, size)
		if _, err := sb.Recv(context.Background(), part); err != nil {
			t.Fatalf("Recv(%d): %v", size, err)
		}
		got = append(got, part...)
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("split reads reassembled incorrectly")
	}
}

func TestPipeAbort(t *testing.T) {
	skipRace(t)
	sa, _ := mux.Pipe()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// A large Send with a cancelled context aborts promptly.
	big := make([]byte, 1<<20)
	n, err := sa.Send(ctx, big)
	if !mux.IsAborted(err) {
		t.Fatalf("Send with cancelled ctx: got %v, want ErrAborted", err)
	}
	if n == len(big) {
		t.Fatal("Send with cancelled ctx reported a full transfer")
	}

	// Recv with nothing buffered aborts as well.
	_, err = sa.Recv(ctx, make([]byte, 1))
	if !mux.IsAborted(err) {
		t.Fatalf("Recv with cancelled ctx: got %v, want ErrAborted", err)
	}
}

func TestPipeClose(t *testing.T) {
	skipRace(t)
	sa, sb := mux.Pipe()

	if _, err := sa.Send(context.Background(), []byte{1, 2, 3}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := sa.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Buffered bytes drain before close is reported.
	got := make([]byte, 3)
	if _, err := sb.Recv(context.Background(), got); err != nil {
		t.Fatalf("Recv of buffered bytes after close: %v", err)
	}
	if _, err := sb.Recv(context.Background(), got); !mux.IsClosed(err) {
		t.Fatalf("Recv after drain: got %v, want ErrClosed", err)
	}
	if _, err := sb.Send(context.Background(), []byte{1}); !mux.IsClosed(err) {
		t.Fatalf("Send after peer close: got %v, want ErrClosed", err)
	}
}
