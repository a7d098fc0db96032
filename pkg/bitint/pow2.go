// SPDX-License-Identifier: MIT
/*
Package bitint provides power-of-two helpers used when sizing FFT frames
and sample buffers.

Both functions are O(1), allocation free and safe to call from the audio
hot path.
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of two >= size. Sizes <= 0
// return 1. Subtracting one before taking the bit length keeps exact
// powers of two unchanged (8 -> 8, not 16).
//
//	Input  Output
//	1000   1024
//	2048   2048
//	0      1
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// IsPowerOfTwo reports whether n is a positive power of two. A power of
// two has exactly one bit set, so n&(n-1) clears it to zero.
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}
