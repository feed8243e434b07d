// Package local generates synthetic datasets on a single machine.
//
// The generators mirror their distributed counterparts in the root package
// and serve as the single-partition fallback when only a representative
// sample is needed.
package local

import (
	"math"

	"gonum.org/v1/gonum/mat"

	linmath "github.com/nozzle/datasets/internal/math"
	"github.com/nozzle/datasets/internal/rand"
)

// SingularProfile returns the n singular values of a low-rank matrix with
// the given effective rank: a Gaussian bell of width effectiveRank mixed
// with a slowly decaying exponential tail weighted by tailStrength.
func SingularProfile(n, effectiveRank int, tailStrength float64) []float64 {
	s := make([]float64, n)
	er := float64(effectiveRank)
	for i := range s {
		x := float64(i) / er
		lowRank := (1 - tailStrength) * math.Exp(-x*x)
		tail := tailStrength * math.Exp(-0.1*x)
		s[i] = lowRank + tail
	}
	return s
}

// MakeLowRankMatrix returns an nSamples x nFeatures matrix U·diag(s)·Vᵀ
// where U and V have random orthonormal columns and s is SingularProfile.
func MakeLowRankMatrix(nSamples, nFeatures, effectiveRank int, tailStrength float64, rng *rand.MT19937) *mat.Dense {
	n := min(nSamples, nFeatures)

	u, _ := linmath.ThinQR(standardNormal(rng, nSamples, n))
	v, _ := linmath.ThinQR(standardNormal(rng, nFeatures, n))

	s := SingularProfile(n, effectiveRank, tailStrength)
	u.Apply(func(_, j int, x float64) float64 { return x * s[j] }, u)

	out := mat.NewDense(nSamples, nFeatures, nil)
	out.Mul(u, v.T())
	return out
}

func standardNormal(rng *rand.MT19937, rows, cols int) *mat.Dense {
	data := make([]float64, rows*cols)
	rng.StandardNormal(data)
	return mat.NewDense(rows, cols, data)
}
