// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package seq

// Sequence numbers are uint64 and wrap. All comparisons in this package go
// through difference and precedes so that a ring initialized near the top of
// the range behaves identically to one starting at zero.

// difference returns the signed wrap-aware distance from b to a.
// Positive when a is ahead of b, negative when a is behind b.
func difference(a, b uint64) int64 {
	return int64(a - b)
}

// precedes reports whether a is strictly before b in sequence order.
func precedes(a, b uint64) bool {
	return difference(a, b) < 0
}

// roundToPow2 rounds n up to the next power of 2.
func roundToPow2(n int) int {
	if n < 2 {
		return 2
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}

// pad is cache line padding to prevent false sharing.
type pad [64]byte
