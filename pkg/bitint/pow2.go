// SPDX-License-Identifier: MIT
/*
Package bitint provides the power-of-two helpers used to validate and
suggest analyser FFT sizes. All functions are O(1), allocation free and
safe to call from the analysis hot path.

	size := bitint.NextPowerOfTwo(3000) // 4096
	ok := bitint.IsPowerOfTwo(size)     // true
	bins := bitint.Log2(size)           // 12

NextPowerOfTwo subtracts one before taking the bit length so that exact
powers of two map to themselves: for 8, bits.Len(7) is 3 and 1<<3 is 8.
Without the subtraction bits.Len(8) is 4 and the result doubles to 16.
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of two >= size.
// Non-positive sizes return 1.
func NextPowerOfTwo(size int) int {
	if size <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// PrevPowerOfTwo returns the largest power of two <= size.
// Non-positive sizes return 0.
func PrevPowerOfTwo(size int) int {
	if size <= 0 {
		return 0
	}
	return 1 << (bits.Len(uint(size)) - 1)
}

// IsPowerOfTwo reports whether n is a positive power of two.
// A power of two has exactly one bit set, so n&(n-1) clears it to zero.
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}

// Log2 returns the exponent of n when n is a power of two, or -1 otherwise.
func Log2(n int) int {
	if !IsPowerOfTwo(n) {
		return -1
	}
	return bits.TrailingZeros(uint(n))
}
