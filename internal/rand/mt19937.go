// Package rand provides random number generation compatible with NumPy's RandomState.
// This implements the Mersenne Twister (MT19937) algorithm for exact reproducibility
// with Python's numpy.random.RandomState.
package rand

import "math"

const (
	mtN        = 624
	mtM        = 397
	matrixA    = 0x9908b0df
	upperMask  = 0x80000000
	lowerMask  = 0x7fffffff
	temperingB = 0x9d2c5680
	temperingC = 0xefc60000
)

// MT19937 is a Mersenne Twister random number generator compatible with NumPy.
// It is not safe for concurrent use.
type MT19937 struct {
	mt  [mtN]uint32
	mti int

	// cached second value of the polar Box-Muller pair
	hasGauss bool
	gauss    float64
}

// NewMT19937 creates a new Mersenne Twister with the given seed.
// This matches numpy.random.RandomState(seed).
func NewMT19937(seed uint32) *MT19937 {
	mt := &MT19937{}
	mt.Seed(seed)
	return mt
}

// Seed initializes the generator with a seed.
// This matches numpy.random.RandomState(seed) initialization.
func (mt *MT19937) Seed(seed uint32) {
	mt.mt[0] = seed
	for i := 1; i < mtN; i++ {
		mt.mt[i] = 1812433253*(mt.mt[i-1]^(mt.mt[i-1]>>30)) + uint32(i)
	}
	mt.mti = mtN
	mt.hasGauss = false
	mt.gauss = 0
}

// Uint32 generates a random uint32.
func (mt *MT19937) Uint32() uint32 {
	var y uint32
	mag01 := [2]uint32{0, matrixA}

	if mt.mti >= mtN {
		// Generate N words at a time
		var kk int
		for kk = 0; kk < mtN-mtM; kk++ {
			y = (mt.mt[kk] & upperMask) | (mt.mt[kk+1] & lowerMask)
			mt.mt[kk] = mt.mt[kk+mtM] ^ (y >> 1) ^ mag01[y&1]
		}
		for ; kk < mtN-1; kk++ {
			y = (mt.mt[kk] & upperMask) | (mt.mt[kk+1] & lowerMask)
			mt.mt[kk] = mt.mt[kk+(mtM-mtN)] ^ (y >> 1) ^ mag01[y&1]
		}
		y = (mt.mt[mtN-1] & upperMask) | (mt.mt[0] & lowerMask)
		mt.mt[mtN-1] = mt.mt[mtM-1] ^ (y >> 1) ^ mag01[y&1]
		mt.mti = 0
	}

	y = mt.mt[mt.mti]
	mt.mti++

	// Tempering
	y ^= y >> 11
	y ^= (y << 7) & temperingB
	y ^= (y << 15) & temperingC
	y ^= y >> 18

	return y
}

// Float64 generates a random float64 in [0, 1) with 53-bit precision.
// This matches numpy's random_sample() / uniform(0, 1).
func (mt *MT19937) Float64() float64 {
	a := mt.Uint32() >> 5
	b := mt.Uint32() >> 6
	return (float64(a)*67108864.0 + float64(b)) * (1.0 / 9007199254740992.0)
}

// Uniform generates a random float64 in [low, high).
// This matches numpy.random.uniform(low, high).
func (mt *MT19937) Uniform(low, high float64) float64 {
	return low + (high-low)*mt.Float64()
}

// NormFloat64 returns a standard normal value using the polar Box-Muller
// method with a cached second value, as numpy's legacy gauss does.
func (mt *MT19937) NormFloat64() float64 {
	if mt.hasGauss {
		mt.hasGauss = false
		return mt.gauss
	}

	var x1, x2, r2 float64
	for {
		x1 = 2.0*mt.Float64() - 1.0
		x2 = 2.0*mt.Float64() - 1.0
		r2 = x1*x1 + x2*x2
		if r2 < 1.0 && r2 != 0.0 {
			break
		}
	}

	f := math.Sqrt(-2.0 * math.Log(r2) / r2)
	mt.gauss = f * x1
	mt.hasGauss = true
	return f * x2
}

// StandardNormal fills dst with standard normal values.
func (mt *MT19937) StandardNormal(dst []float64) {
	for i := range dst {
		dst[i] = mt.NormFloat64()
	}
}

// Interval returns a uniformly distributed integer in [0, max] using
// bitmask rejection sampling, like numpy's random_interval.
func (mt *MT19937) Interval(max uint32) uint32 {
	if max == 0 {
		return 0
	}

	mask := max
	mask |= mask >> 1
	mask |= mask >> 2
	mask |= mask >> 4
	mask |= mask >> 8
	mask |= mask >> 16

	for {
		v := mt.Uint32() & mask
		if v <= max {
			return v
		}
	}
}

// Intn returns a random int in [0, n).
func (mt *MT19937) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return int(mt.Interval(uint32(n - 1)))
}

// Shuffle randomly permutes arr in place (Fisher-Yates from the tail).
func (mt *MT19937) Shuffle(arr []int) {
	for i := len(arr) - 1; i > 0; i-- {
		j := int(mt.Interval(uint32(i)))
		arr[i], arr[j] = arr[j], arr[i]
	}
}

// Permutation returns a random permutation of [0, n).
// This matches numpy.random.RandomState.permutation(n).
func (mt *MT19937) Permutation(n int) []int {
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	mt.Shuffle(perm)
	return perm
}
