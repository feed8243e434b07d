package datasets

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/nozzle/datasets/cluster"
	"github.com/nozzle/datasets/darray"
	"github.com/nozzle/datasets/local"
)

// LowRankConfig configures MakeLowRankMatrix.
type LowRankConfig struct {
	// NSamples is the number of rows.
	NSamples int

	// NFeatures is the number of columns.
	NFeatures int

	// EffectiveRank is the approximate number of singular vectors needed
	// to explain most of the data.
	EffectiveRank int

	// TailStrength in [0, 1] is the relative weight of the fat noisy tail
	// of the singular profile.
	TailStrength float64

	RandomState RandomState

	// NParts is the number of row partitions.
	NParts int

	// NSamplesPerPart sets the rows of every partition.
	// 0 = NSamples split in NParts, remainder in the last partition.
	NSamplesPerPart int

	DType darray.DType
	Order Order

	// Client runs the tasks. nil = cluster.Default().
	Client *cluster.Client

	// Logger defaults to the client's logger.
	Logger *logrus.Logger
}

// DefaultLowRankConfig returns the default low-rank configuration.
func DefaultLowRankConfig() LowRankConfig {
	return LowRankConfig{
		NSamples:      100,
		NFeatures:     100,
		EffectiveRank: 10,
		TailStrength:  0.5,
		NParts:        1,
		DType:         darray.Float32,
		Order:         ColumnMajor,
	}
}

// MakeLowRankMatrix generates a mostly low rank matrix with bell-shaped
// singular values, partitioned along rows.
func MakeLowRankMatrix(ctx context.Context, cfg LowRankConfig) (*darray.Array, error) {
	if cfg.NSamples <= 0 || cfg.NFeatures <= 0 {
		return nil, errors.Wrapf(ErrConfiguration, "shape %dx%d", cfg.NSamples, cfg.NFeatures)
	}
	if err := checkLowRank(cfg.EffectiveRank, cfg.TailStrength); err != nil {
		return nil, err
	}
	if cfg.NParts < 1 || !cfg.Order.valid() {
		return nil, errors.Wrapf(ErrConfiguration, "%d parts, order %s", cfg.NParts, cfg.Order)
	}

	c := cfg.Client
	if c == nil {
		c = cluster.Default()
	}
	log := cfg.Logger
	if log == nil {
		log = c.Logger()
	}

	partRows, err := partitionRows(cfg.NSamples, cfg.NParts, cfg.NSamplesPerPart)
	if err != nil {
		return nil, err
	}
	stream, err := cfg.RandomState.resolve(log)
	if err != nil {
		return nil, err
	}

	return buildLowRank(ctx, c, stream, lowRankShape{
		nSamples:      cfg.NSamples,
		nFeatures:     cfg.NFeatures,
		effectiveRank: cfg.EffectiveRank,
		tailStrength:  cfg.TailStrength,
		nParts:        cfg.NParts,
		partRows:      partRows,
	}, cfg.DType, cfg.Order, log)
}

func checkLowRank(effectiveRank int, tailStrength float64) error {
	if effectiveRank < 1 {
		return errors.Wrapf(ErrConfiguration, "effective rank %d", effectiveRank)
	}
	if tailStrength < 0 || tailStrength > 1 {
		return errors.Wrapf(ErrConfiguration, "tail strength %g outside [0, 1]", tailStrength)
	}
	return nil
}

type lowRankShape struct {
	nSamples, nFeatures int
	effectiveRank       int
	tailStrength        float64
	nParts              int
	partRows            []int
}

// buildLowRank composes (U ⊙ s)·V from two orthonormalized random
// matrices. U is the Q factor of an [n_samples, r] draw and V the
// transposed Q factor of an [n_features, r] draw, r = min(n_samples,
// n_features). The result is partitioned by shape.partRows.
func buildLowRank(ctx context.Context, c *cluster.Client, stream *Stream, shape lowRankShape, dtype darray.DType, order Order, log logrus.FieldLogger) (*darray.Array, error) {
	r := min(shape.nSamples, shape.nFeatures)
	log.WithFields(logrus.Fields{
		"rank":           r,
		"effective_rank": shape.effectiveRank,
		"tail_strength":  shape.tailStrength,
	}).Debug("building low rank matrix")

	uDraw, err := assemble(ctx, c, stream, shape.nSamples, r, qrChunks(shape.nSamples, r, shape.nParts), dtype, order)
	if err != nil {
		return nil, err
	}
	u, _, err := darray.QR(uDraw)
	if err != nil {
		return nil, errors.WithMessage(err, "orthonormalizing U")
	}

	vDraw, err := assemble(ctx, c, stream, shape.nFeatures, r, qrChunks(shape.nFeatures, r, shape.nParts), dtype, order)
	if err != nil {
		return nil, err
	}
	vq, _, err := darray.QR(vDraw)
	if err != nil {
		return nil, errors.WithMessage(err, "orthonormalizing V")
	}

	s := local.SingularProfile(r, shape.effectiveRank, shape.tailStrength)
	us, err := u.ScaleColumns(s)
	if err != nil {
		return nil, err
	}
	if us, err = us.Rechunk(shape.partRows, nil); err != nil {
		return nil, err
	}
	return darray.MatMul(us, vq.T())
}

// qrChunks splits total rows into partitions of max(total/nParts, minSize)
// rows, folding the remainder into the last one. Every chunk holds at
// least minSize rows.
func qrChunks(total, minSize, nParts int) []int {
	size := max(1, total/max(1, nParts), minSize)
	n := max(1, total/size)
	chunks := make([]int, n)
	for i := range chunks {
		chunks[i] = size
	}
	chunks[n-1] += total - n*size
	return chunks
}
