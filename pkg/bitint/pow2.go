// SPDX-License-Identifier: MIT
/*
Package bitint provides the power-of-two helpers the analysis code uses to
size FFT frames and zero-padded autocorrelation buffers.

All functions are allocation free and safe to call from the audio path.

	frame := bitint.NextPowerOfTwo(2 * len(odf)) // padding for linear ACF
	ok := bitint.IsPowerOfTwo(2048)              // valid FFT frame
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of 2 >= size. Sizes <= 0
// return 1.
//
// size-1 is used so exact powers of two map to themselves: for 8,
// bits.Len(7) is 3 and 1<<3 is 8, where bits.Len(8) would give 16.
//
//	Input  Output
//	4      4
//	5      8
//	0      1
//	-1     1
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// IsPowerOfTwo reports whether n is a positive power of 2.
// A power of two has a single set bit, so n&(n-1) clears it to zero.
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}

// HopsIn returns how many whole hops of hopSize fit into n samples.
func HopsIn(n, hopSize int) int {
	if hopSize <= 0 || n <= 0 {
		return 0
	}
	if IsPowerOfTwo(hopSize) {
		return n >> bits.TrailingZeros(uint(hopSize))
	}
	return n / hopSize
}
