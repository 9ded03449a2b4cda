// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mux_test

import (
	"testing"

	"code.hybscloud.com/mux"
)

func TestRootSessionDeterministic(t *testing.T) {
	if mux.RootSession("alpha") != mux.RootSession("alpha") {
		t.Fatal("RootSession is not deterministic")
	}
	if mux.RootSession("alpha") == mux.RootSession("beta") {
		t.Fatal("distinct labels collide")
	}
	var zero mux.SessionID
	if mux.RootSession("alpha") == zero {
		t.Fatal("RootSession produced the zero id")
	}
}

func TestSessionIDString(t *testing.T) {
	id := mux.RootSession("printable")
	s := id.String()
	if len(s) != 32 {
		t.Fatalf("String: got %d hex digits, want 32", len(s))
	}
	for _, c := range s {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			t.Fatalf("String: non-hex rune %q in %q", c, s)
		}
	}
}

// TestForkTreeDeterministic derives a small fork tree on two independent
// schedulers and checks that every node agrees.
func TestForkTreeDeterministic(t *testing.T) {
	skipRace(t)
	a, b, root := newPair(t, "fork-tree")

	aChild := a.Fork(root)
	bChild := b.Fork(root)
	if aChild != bChild {
		t.Fatal("first-level fork disagrees")
	}

	aGrand1 := a.Fork(aChild)
	aGrand2 := a.Fork(aChild)
	bGrand1 := b.Fork(bChild)
	bGrand2 := b.Fork(bChild)
	if aGrand1 != bGrand1 || aGrand2 != bGrand2 {
		t.Fatal("second-level forks disagree")
	}
	if aGrand1 == aGrand2 {
		t.Fatal("sibling forks collide")
	}
	if aGrand1 == aChild || aGrand1 == root {
		t.Fatal("fork collides with an ancestor")
	}
}
