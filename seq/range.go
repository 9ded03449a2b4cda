// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package seq

// Range is a half-open contiguous range of claimed sequence numbers
// [First, Last). Every sequence in a claimed range must be published.
type Range struct {
	First uint64
	Last  uint64
}

// Front returns the first sequence of the range.
func (r Range) Front() uint64 { return r.First }

// Back returns the last sequence of the range.
func (r Range) Back() uint64 { return r.Last - 1 }

// Len returns the number of sequences in the range.
func (r Range) Len() int { return int(r.Last - r.First) }

// Empty reports whether the range contains no sequences.
func (r Range) Empty() bool { return r.First == r.Last }
