// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mux

import "encoding/binary"

// Wire format. Two frame types share the stream, distinguished in-band by
// the size word:
//
//	data frame: size:u32le | slot:u32le | payload[size]     (size > 0)
//	meta frame: 0:u32le    | slot:u32le | control[16]       (size == 0)
//
// The only defined control block is NewSlot: its 16 bytes are the SessionID
// to bind to the announced slot id. A future control type would be
// distinguished by a different block length negotiated through the header,
// so the block carries no explicit type byte.
const (
	headerSize       = 8
	controlBlockSize = 16
	metaFrameSize    = headerSize + controlBlockSize
)

// putHeader encodes a frame header. size == 0 marks a meta frame.
func putHeader(b []byte, size, slotID uint32) {
	binary.LittleEndian.PutUint32(b[0:4], size)
	binary.LittleEndian.PutUint32(b[4:8], slotID)
}

// parseHeader decodes a frame header.
func parseHeader(b []byte) (size, slotID uint32) {
	return binary.LittleEndian.Uint32(b[0:4]), binary.LittleEndian.Uint32(b[4:8])
}

// putNewSlot encodes a complete NewSlot meta frame announcing the binding
// of the sender's local slot id to a SessionID.
func putNewSlot(b []byte, slotID uint32, id SessionID) {
	putHeader(b[:headerSize], 0, slotID)
	copy(b[headerSize:metaFrameSize], id[:])
}
