package local

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/nozzle/datasets/internal/rand"
)

// ErrInvalidConfig is returned for configurations that cannot be generated.
var ErrInvalidConfig = errors.New("local: invalid configuration")

// RegressionConfig configures MakeRegression.
type RegressionConfig struct {
	// NSamples is the number of rows of X.
	NSamples int

	// NFeatures is the number of columns of X.
	NFeatures int

	// NInformative is the number of features y depends on. Values above
	// NFeatures are clamped.
	NInformative int

	// NTargets is the number of columns of y.
	NTargets int

	// Bias is added to every target.
	Bias float64

	// EffectiveRank selects a low-rank X when positive.
	// 0 = well-conditioned standard normal X.
	EffectiveRank int

	// TailStrength weights the noisy tail of the singular profile.
	TailStrength float64

	// Noise is the standard deviation of the Gaussian noise added to y.
	Noise float64

	// Shuffle permutes samples and features.
	Shuffle bool

	// Seed seeds the generator.
	Seed uint32
}

// DefaultRegressionConfig returns the default single-machine configuration.
func DefaultRegressionConfig() RegressionConfig {
	return RegressionConfig{
		NSamples:     100,
		NFeatures:    100,
		NInformative: 10,
		NTargets:     1,
		TailStrength: 0.5,
	}
}

// Regression is a generated regression problem.
type Regression struct {
	// X is NSamples x NFeatures.
	X *mat.Dense
	// Y is NSamples x NTargets.
	Y *mat.Dense
	// Coef is NFeatures x NTargets. Rows of uninformative features are zero
	// before shuffling.
	Coef *mat.Dense
}

// MakeRegression generates a random linear regression problem: the
// coefficients of the first NInformative features are drawn uniformly
// from [0, 100), the others are zero, and y = X·coef + bias + noise.
func MakeRegression(cfg RegressionConfig) (*Regression, error) {
	if cfg.NSamples <= 0 || cfg.NFeatures <= 0 || cfg.NTargets <= 0 {
		return nil, errors.Wrapf(ErrInvalidConfig, "shape %dx%d with %d targets",
			cfg.NSamples, cfg.NFeatures, cfg.NTargets)
	}
	if cfg.NInformative < 0 {
		return nil, errors.Wrapf(ErrInvalidConfig, "%d informative features", cfg.NInformative)
	}
	if cfg.EffectiveRank < 0 || cfg.TailStrength < 0 || cfg.TailStrength > 1 {
		return nil, errors.Wrapf(ErrInvalidConfig, "effective rank %d, tail strength %g",
			cfg.EffectiveRank, cfg.TailStrength)
	}
	nInformative := min(cfg.NInformative, cfg.NFeatures)

	rng := rand.NewMT19937(cfg.Seed)

	var x *mat.Dense
	if cfg.EffectiveRank == 0 {
		x = standardNormal(rng, cfg.NSamples, cfg.NFeatures)
	} else {
		x = MakeLowRankMatrix(cfg.NSamples, cfg.NFeatures, cfg.EffectiveRank, cfg.TailStrength, rng)
	}

	coef := mat.NewDense(cfg.NFeatures, cfg.NTargets, nil)
	for i := range nInformative {
		for j := range cfg.NTargets {
			coef.Set(i, j, rng.Uniform(0, 100))
		}
	}

	y := mat.NewDense(cfg.NSamples, cfg.NTargets, nil)
	y.Mul(x, coef)
	noise := cfg.Noise
	y.Apply(func(_, _ int, v float64) float64 {
		v += cfg.Bias
		if noise > 0 {
			v += noise * rng.NormFloat64()
		}
		return v
	}, y)

	if cfg.Shuffle {
		samples := rng.Permutation(cfg.NSamples)
		x = takeRows(x, samples)
		y = takeRows(y, samples)

		features := rng.Permutation(cfg.NFeatures)
		x = takeRows(mat.DenseCopyOf(x.T()), features)
		x = mat.DenseCopyOf(x.T())
		coef = takeRows(coef, features)
	}

	return &Regression{X: x, Y: y, Coef: coef}, nil
}

func takeRows(m *mat.Dense, idx []int) *mat.Dense {
	_, c := m.Dims()
	out := mat.NewDense(len(idx), c, nil)
	for k, i := range idx {
		out.SetRow(k, m.RawRowView(i))
	}
	return out
}
