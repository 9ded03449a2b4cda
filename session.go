// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mux

import (
	"encoding/binary"
	"encoding/hex"

	"golang.org/x/crypto/sha3"
)

// SessionID identifies a fork: a logically-independent subprotocol
// multiplexed over one underlying stream. Both parties derive identical
// SessionIDs for the same logical fork, so the 128-bit value never needs to
// be negotiated; it is announced once per slot in a NewSlot frame and
// referenced by a 32-bit slot id afterwards.
type SessionID [16]byte

// RootSession derives the root SessionID for a protocol from a shared
// label. Both parties must use the same label.
func RootSession(label string) SessionID {
	h := sha3.New256()
	h.Write([]byte(label))
	var id SessionID
	copy(id[:], h.Sum(nil))
	return id
}

// child derives the index-th fork of id. Deterministic: two parties forking
// the same parent in the same order derive the same children.
func (id SessionID) child(index uint64) SessionID {
	var idx [8]byte
	binary.LittleEndian.PutUint64(idx[:], index)
	h := sha3.New256()
	h.Write(id[:])
	h.Write(idx[:])
	var out SessionID
	copy(out[:], h.Sum(nil))
	return out
}

// String returns the hexadecimal form of the SessionID.
func (id SessionID) String() string {
	return hex.EncodeToString(id[:])
}
