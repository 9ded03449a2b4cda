// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mux_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"code.hybscloud.com/mux"
)

// newPair connects two schedulers over an in-process pipe with a shared
// root session. Both ends are closed at test cleanup.
func newPair(t testing.TB, label string) (a, b *mux.Scheduler, root mux.SessionID) {
	t.Helper()
	sa, sb := mux.Pipe()
	root = mux.RootSession(label)
	a = mux.NewScheduler(sa, root)
	b = mux.NewScheduler(sb, root)
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return a, b, root
}

// wait blocks for the operation to settle, failing the test on timeout.
func wait(t testing.TB, p *mux.Pending) error {
	t.Helper()
	select {
	case <-p.Done():
		return p.Err()
	case <-time.After(10 * time.Second):
		t.Fatal("operation did not settle")
		return nil
	}
}

// stillPending reports whether the operation has not settled after a short
// grace period.
func stillPending(p *mux.Pending) bool {
	select {
	case <-p.Done():
		return false
	case <-time.After(50 * time.Millisecond):
		return true
	}
}

// awaitBytes polls until the counter reaches at least n bytes.
func awaitBytes(t testing.TB, counter func() uint64, n uint64) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for counter() < n {
		if time.Now().After(deadline) {
			t.Fatalf("counter stuck at %d, want >= %d", counter(), n)
		}
		time.Sleep(100 * time.Microsecond)
	}
}

// recordingStream captures every byte successfully written through it.
type recordingStream struct {
	mux.Stream
	mu   sync.Mutex
	sent []byte
}

func (r *recordingStream) Send(ctx context.Context, buf []byte) (int, error) {
	n, err := r.Stream.Send(ctx, buf)
	r.mu.Lock()
	r.sent = append(r.sent, buf[:n]...)
	r.mu.Unlock()
	return n, err
}

func (r *recordingStream) bytes() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]byte(nil), r.sent...)
}

// throttleStream slows writes down to small timed chunks so tests can land
// a cancellation in the middle of a frame deterministically.
type throttleStream struct {
	mux.Stream
}

func (ts *throttleStream) Send(ctx context.Context, buf []byte) (int, error) {
	const chunk = 4096
	sent := 0
	for sent < len(buf) {
		if ctx != nil {
			select {
			case <-ctx.Done():
				return sent, mux.ErrAborted
			default:
			}
		}
		n := len(buf) - sent
		if n > chunk {
			n = chunk
		}
		m, err := ts.Stream.Send(ctx, buf[sent:sent+n])
		sent += m
		if err != nil {
			return sent, err
		}
		time.Sleep(50 * time.Microsecond)
	}
	return sent, nil
}
