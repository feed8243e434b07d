// Package datasets generates large synthetic regression datasets partitioned
// across the workers of a cluster.
//
// Every random draw is made by a worker from a seed derived from a single
// logical random stream, so a fixed RandomState reproduces the same X, y
// and coefficients regardless of how many workers run the tasks.
//
// Basic usage:
//
//	cfg := datasets.DefaultConfig()
//	cfg.NSamples = 100000
//	cfg.NFeatures = 50
//	cfg.NParts = 8
//	cfg.RandomState = datasets.Seed(42)
//	ds, err := datasets.MakeRegression(ctx, cfg)
//	x, err := ds.X.Compute(ctx)
package datasets

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/nozzle/datasets/cluster"
	"github.com/nozzle/datasets/darray"
	"github.com/nozzle/datasets/internal/rand"
	"github.com/nozzle/datasets/local"
)

// coefScale multiplies the standard normal draw of the informative
// coefficients.
const coefScale = 100.0

// Config holds the parameters of MakeRegression.
type Config struct {
	// NSamples is the number of samples.
	// Default: 100
	NSamples int

	// NFeatures is the number of features.
	// Default: 100
	NFeatures int

	// NInformative is the number of features used to build the linear
	// model. Values above NFeatures are clamped.
	// Default: 10
	NInformative int

	// NTargets is the dimension of y.
	// Default: 1
	NTargets int

	// Bias is the intercept of the linear model.
	Bias float64

	// EffectiveRank selects the input set.
	// 0 = well-conditioned, centered gaussian X.
	// > 0 = low rank X with that many dominant singular values.
	EffectiveRank int

	// TailStrength in [0, 1] weights the fat noisy tail of the singular
	// profile when EffectiveRank > 0.
	// Default: 0.5
	TailStrength float64

	// Noise is the standard deviation of the gaussian noise added to y.
	Noise float64

	// Shuffle permutes the samples and the features.
	Shuffle bool

	// Coef makes MakeRegression return the ground truth coefficients.
	Coef bool

	// RandomState seeds every draw. The zero value picks a fresh seed.
	RandomState RandomState

	// NParts is the number of row partitions.
	// Default: 1
	NParts int

	// NSamplesPerPart sets the rows of every partition; NParts of them
	// must add up to NSamples.
	// 0 = NSamples split in NParts, remainder in the last partition.
	NSamplesPerPart int

	// Order is the layout chunks are drawn in. It also picks the shuffle
	// strategy: partition-local rows for ColumnMajor, a global row
	// permutation for RowMajor.
	// Default: ColumnMajor
	Order Order

	// DType is the element type of every output.
	// Default: darray.Float32
	DType darray.DType

	// Client runs the tasks. nil = cluster.Default().
	Client *cluster.Client

	// UseFullLowRank builds the low rank X over the whole dataset. When
	// false, X stays well-conditioned and only the coefficients come from
	// a low rank problem the size of one partition.
	// Default: true
	UseFullLowRank bool

	// Logger defaults to the client's logger.
	Logger *logrus.Logger
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		NSamples:       100,
		NFeatures:      100,
		NInformative:   10,
		NTargets:       1,
		TailStrength:   0.5,
		NParts:         1,
		Order:          ColumnMajor,
		DType:          darray.Float32,
		UseFullLowRank: true,
	}
}

func (cfg Config) validate() error {
	switch {
	case cfg.NSamples <= 0 || cfg.NFeatures <= 0:
		return errors.Wrapf(ErrConfiguration, "shape %dx%d", cfg.NSamples, cfg.NFeatures)
	case cfg.NTargets <= 0:
		return errors.Wrapf(ErrConfiguration, "%d targets", cfg.NTargets)
	case cfg.NInformative < 0:
		return errors.Wrapf(ErrConfiguration, "%d informative features", cfg.NInformative)
	case cfg.NParts < 1:
		return errors.Wrapf(ErrConfiguration, "%d parts", cfg.NParts)
	case cfg.NSamplesPerPart < 0:
		return errors.Wrapf(ErrConfiguration, "%d samples per part", cfg.NSamplesPerPart)
	case cfg.EffectiveRank < 0:
		return errors.Wrapf(ErrConfiguration, "effective rank %d", cfg.EffectiveRank)
	case cfg.Noise < 0:
		return errors.Wrapf(ErrConfiguration, "noise %g", cfg.Noise)
	case !cfg.Order.valid():
		return errors.Wrapf(ErrConfiguration, "order %d", int(cfg.Order))
	case cfg.DType != darray.Float32 && cfg.DType != darray.Float64:
		return errors.Wrapf(ErrConfiguration, "dtype %d", int(cfg.DType))
	}
	if cfg.EffectiveRank > 0 {
		return checkLowRank(cfg.EffectiveRank, cfg.TailStrength)
	}
	return nil
}

// partitionRows returns the row count of every partition.
func partitionRows(nSamples, nParts, perPart int) ([]int, error) {
	if perPart == 0 {
		return darray.FoldedChunks(nSamples, nParts), nil
	}
	rows := make([]int, nParts)
	for i := range rows {
		rows[i] = perPart
	}
	if perPart*nParts != nSamples {
		return nil, errors.Wrapf(ErrShapeMismatch, "%d parts of %d samples for %d samples",
			nParts, perPart, nSamples)
	}
	return rows, nil
}

// Dataset is the lazy result of MakeRegression. Nothing is gathered on
// the caller until Compute is called on an array.
type Dataset struct {
	// X is [n_samples, n_features], partitioned along rows.
	X *darray.Array

	// Y is [n_samples] for a single target, else [n_samples, n_targets].
	Y *darray.Array

	// Coef is the ground truth, [n_features] or [n_features, n_targets].
	// nil unless Config.Coef is set.
	Coef *darray.Array
}

// generator carries the state shared by the steps of one MakeRegression
// call.
type generator struct {
	cfg          Config
	client       *cluster.Client
	stream       *Stream
	log          *logrus.Entry
	nInformative int
	partRows     []int
}

// MakeRegression generates a random regression problem: y is a random
// linear combination of the first NInformative features of X plus bias and
// optional gaussian noise.
//
// Configuration errors are returned before any task is submitted. Worker
// failures surface from Compute on the returned arrays, except with
// Shuffle in column-major order, where partitions are gathered here.
func MakeRegression(ctx context.Context, cfg Config) (*Dataset, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	c := cfg.Client
	if c == nil {
		c = cluster.Default()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = c.Logger()
	}

	partRows, err := partitionRows(cfg.NSamples, cfg.NParts, cfg.NSamplesPerPart)
	if err != nil {
		return nil, err
	}
	stream, err := cfg.RandomState.resolve(logger)
	if err != nil {
		return nil, err
	}

	g := &generator{
		cfg:          cfg,
		client:       c,
		stream:       stream,
		nInformative: min(cfg.NInformative, cfg.NFeatures),
		partRows:     partRows,
		log: logger.WithFields(logrus.Fields{
			"n_samples":  cfg.NSamples,
			"n_features": cfg.NFeatures,
			"n_parts":    len(partRows),
			"order":      cfg.Order.String(),
			"dtype":      cfg.DType.String(),
		}),
	}
	g.log.WithField("random_state", cfg.RandomState.String()).Debug("generating regression dataset")

	x, err := g.input(ctx)
	if err != nil {
		return nil, err
	}

	var y, coef *darray.Array
	if cfg.EffectiveRank > 0 && !cfg.UseFullLowRank {
		y, coef, err = g.sampledModel(ctx, x)
	} else {
		y, coef, err = g.linearModel(ctx, x)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Noise > 0 {
		if y, err = g.addNoise(ctx, y); err != nil {
			return nil, err
		}
	}

	if cfg.Shuffle {
		if x, y, coef, err = g.shuffle(ctx, x, y, coef); err != nil {
			return nil, err
		}
	}

	ds := &Dataset{X: x, Y: y.Squeeze()}
	if cfg.Coef {
		ds.Coef = coef.Squeeze()
	}
	g.log.WithField("stream_position", stream.Position()).Debug("regression dataset ready")
	return ds, nil
}

// input builds X: low rank over the whole dataset or well-conditioned.
func (g *generator) input(ctx context.Context) (*darray.Array, error) {
	cfg := g.cfg
	if cfg.EffectiveRank > 0 && cfg.UseFullLowRank {
		x, err := buildLowRank(ctx, g.client, g.stream, lowRankShape{
			nSamples:      cfg.NSamples,
			nFeatures:     cfg.NFeatures,
			effectiveRank: cfg.EffectiveRank,
			tailStrength:  cfg.TailStrength,
			nParts:        len(g.partRows),
			partRows:      g.partRows,
		}, cfg.DType, cfg.Order, g.log)
		if err != nil {
			return nil, err
		}
		return x.Rechunk(nil, []int{cfg.NFeatures})
	}
	g.log.Debug("drawing well-conditioned input")
	return assemble(ctx, g.client, g.stream, cfg.NSamples, cfg.NFeatures, g.partRows, cfg.DType, cfg.Order)
}

// linearModel draws coef = 100·N(0, 1) for the informative features and
// zero pads it to every feature.
func (g *generator) linearModel(ctx context.Context, x *darray.Array) (y, coef *darray.Array, err error) {
	cfg := g.cfg
	if g.nInformative == 0 {
		coef, err = g.zeros(cfg.NFeatures, cfg.NTargets)
		if err != nil {
			return nil, nil, err
		}
		y, err = darray.MatMul(x, coef)
		if err != nil {
			return nil, nil, err
		}
		return y.AddScalar(cfg.Bias), coef, nil
	}

	draw, err := assemble(ctx, g.client, g.stream, g.nInformative, cfg.NTargets,
		darray.RegularChunks(g.nInformative, g.partRows[0]), cfg.DType, RowMajor)
	if err != nil {
		return nil, nil, err
	}
	informative := draw.Scale(coefScale)

	xInf, err := x.Cols(0, g.nInformative)
	if err != nil {
		return nil, nil, err
	}
	if y, err = darray.MatMul(xInf, informative); err != nil {
		return nil, nil, err
	}
	y = y.AddScalar(cfg.Bias)

	coef = informative
	if g.nInformative < cfg.NFeatures {
		pad, err := g.zeros(cfg.NFeatures-g.nInformative, cfg.NTargets)
		if err != nil {
			return nil, nil, err
		}
		if coef, err = darray.Concatenate(0, informative, pad); err != nil {
			return nil, nil, err
		}
	}
	if coef, err = coef.Rechunk([]int{cfg.NFeatures}, nil); err != nil {
		return nil, nil, err
	}
	return y, coef, nil
}

// sampledModel takes the coefficients of a single-machine low rank
// problem the size of the first partition and applies them to the whole
// of x.
func (g *generator) sampledModel(ctx context.Context, x *darray.Array) (y, coef *darray.Array, err error) {
	cfg := g.cfg
	g.log.WithField("sample_rows", g.partRows[0]).
		Warn("coefficients come from a single partition sample and only approximate a full low rank problem")

	lc := local.RegressionConfig{
		NSamples:      g.partRows[0],
		NFeatures:     cfg.NFeatures,
		NInformative:  g.nInformative,
		NTargets:      cfg.NTargets,
		Bias:          cfg.Bias,
		EffectiveRank: cfg.EffectiveRank,
		TailStrength:  cfg.TailStrength,
		Noise:         cfg.Noise,
		Shuffle:       cfg.Shuffle,
		Seed:          g.stream.NextSeeds(1)[0],
	}
	dtype := cfg.DType
	fut := g.client.Submit(ctx, func(_ context.Context, w *cluster.Worker, _ []any) (any, error) {
		release, err := w.Reserve(int64(lc.NSamples*(lc.NFeatures+lc.NTargets)) * darray.Float64.ItemSize())
		if err != nil {
			return nil, err
		}
		defer release()

		reg, err := local.MakeRegression(lc)
		if err != nil {
			return nil, err
		}
		dtype.RoundDense(reg.Coef)
		return reg.Coef, nil
	}, cluster.WithKey("sampled-coef"))

	coef = darray.FromFuture(g.client, fut, cfg.NFeatures, cfg.NTargets, dtype)
	if y, err = darray.MatMul(x, coef); err != nil {
		return nil, nil, err
	}
	return y.AddScalar(cfg.Bias), coef, nil
}

// addNoise adds noise·N(0, 1) drawn on y's block grid.
func (g *generator) addNoise(ctx context.Context, y *darray.Array) (*darray.Array, error) {
	draw, err := standardNormal(ctx, g.client, g.stream, y.RowChunks(), y.ColChunks(), g.cfg.DType, RowMajor)
	if err != nil {
		return nil, err
	}
	return y.Add(draw.Scale(g.cfg.Noise))
}

// shuffle permutes features everywhere and samples either inside each
// partition (ColumnMajor) or globally (RowMajor).
func (g *generator) shuffle(ctx context.Context, x, y, coef *darray.Array) (xs, ys, cs *darray.Array, err error) {
	cfg := g.cfg
	featurePerm := rand.NewMT19937(g.stream.NextSeeds(1)[0]).Permutation(cfg.NFeatures)

	if cfg.Order == ColumnMajor {
		xs, ys, err = shufflePartitions(ctx, g.client, g.stream, x, y, g.partRows, featurePerm, g.log)
		if err != nil {
			return nil, nil, nil, err
		}
	} else {
		samplePerm := rand.NewMT19937(g.stream.NextSeeds(1)[0]).Permutation(cfg.NSamples)
		if xs, err = x.TakeRows(samplePerm); err != nil {
			return nil, nil, nil, err
		}
		if xs, err = xs.TakeCols(featurePerm); err != nil {
			return nil, nil, nil, err
		}
		if ys, err = y.TakeRows(samplePerm); err != nil {
			return nil, nil, nil, err
		}
	}

	if cs, err = coef.TakeRows(featurePerm); err != nil {
		return nil, nil, nil, err
	}
	return xs, ys, cs, nil
}

func (g *generator) zeros(rows, cols int) (*darray.Array, error) {
	return darray.FromDense(g.client, mat.NewDense(rows, cols, nil), nil, nil, g.cfg.DType)
}
