package mining

import "math/big"

var big1 = big.NewInt(1)

// Log2 returns the exact integer base-2 logarithm of x: the position
// of the highest set bit, so Log2(2^k) = k. Log2(0) is defined as 0.
// Inputs may exceed native float precision, hence the bit-length form.
func Log2(x *big.Int) uint64 {
	if x.Sign() <= 0 {
		return 0
	}
	return uint64(x.BitLen() - 1)
}

// CeilLog2 returns Log2(x) when x is an exact power of two and
// Log2(x)+1 otherwise. The power-of-two boundary matters: a floating
// point ceil(log(x)/log(2)) diverges from this at exactly those points.
func CeilLog2(x *big.Int) uint64 {
	if x.Sign() <= 0 {
		return 0
	}

	l := uint64(x.BitLen() - 1)
	if isPowerOfTwo(x) {
		return l
	}
	return l + 1
}

func isPowerOfTwo(x *big.Int) bool {
	if x.Sign() <= 0 {
		return false
	}
	var t big.Int
	return t.And(x, t.Sub(x, big1)).Sign() == 0
}
