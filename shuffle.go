package datasets

import (
	"context"
	"slices"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/nozzle/datasets/cluster"
	"github.com/nozzle/datasets/darray"
	"github.com/nozzle/datasets/internal/parallel"
	"github.com/nozzle/datasets/internal/rand"
)

// shuffled is the result of one partition shuffle task.
type shuffled struct {
	x, y *mat.Dense
}

// shufflePartitions permutes the rows of every partition of x and y with
// a partition-local permutation and the columns of x with featurePerm.
// Rows never leave their partition. Each task runs on the worker holding
// the partition of x, and y is moved there first.
func shufflePartitions(ctx context.Context, c *cluster.Client, stream *Stream, x, y *darray.Array, partRows, featurePerm []int, log logrus.FieldLogger) (*darray.Array, *darray.Array, error) {
	xr, nFeatures := x.Dims()
	yr, nTargets := y.Dims()
	nParts := len(partRows)

	if xr != yr || !slices.Equal(x.RowChunks(), partRows) || !slices.Equal(y.RowChunks(), partRows) {
		return nil, nil, errors.Wrapf(ErrShapeMismatch, "shuffle: X chunks %v and y chunks %v, want %v",
			x.RowChunks(), y.RowChunks(), partRows)
	}
	if !isPermutation(featurePerm, nFeatures) {
		return nil, nil, errors.Wrapf(ErrShapeMismatch, "shuffle: feature permutation of length %d for %d features",
			len(featurePerm), nFeatures)
	}
	if x.DType() != y.DType() {
		return nil, nil, errors.Wrapf(ErrShapeMismatch, "shuffle: X is %s, y is %s", x.DType(), y.DType())
	}
	dtype := x.DType()

	xParts, err := x.Partitions(ctx)
	if err != nil {
		return nil, nil, err
	}
	placement := make([]string, nParts)
	for i, p := range xParts {
		placement[i] = p.Worker
	}
	yParts, err := y.PartitionsOn(ctx, placement)
	if err != nil {
		return nil, nil, err
	}
	for i := range xParts {
		if yParts[i].Worker != xParts[i].Worker {
			return nil, nil, errors.Wrapf(ErrColocation, "partition %d: X on %s, y on %s",
				i, xParts[i].Worker, yParts[i].Worker)
		}
	}

	seeds := stream.NextSeeds(nParts)
	log.WithFields(logrus.Fields{
		"parts":    nParts,
		"features": nFeatures,
	}).Debug("shuffling partitions")

	xs := make([]*cluster.Future, nParts)
	ys := make([]*cluster.Future, nParts)
	for i, xp := range xParts {
		rows, seed, at := xp.Rows, seeds[i], cluster.WithWorkers(xp.Worker)

		pair := c.Submit(ctx, func(_ context.Context, w *cluster.Worker, deps []any) (any, error) {
			release, err := w.Reserve(int64(rows*(nFeatures+nTargets)) * dtype.ItemSize())
			if err != nil {
				return nil, err
			}
			defer release()
			return shufflePartition(deps[0].(*mat.Dense), deps[1].(*mat.Dense), seed, featurePerm), nil
		}, cluster.WithKey("shuffle"), cluster.WithDeps(xp.Future, yParts[i].Future), at)

		xs[i] = c.Submit(ctx, func(_ context.Context, _ *cluster.Worker, deps []any) (any, error) {
			return deps[0].(shuffled).x, nil
		}, cluster.WithKey("shuffled-x"), cluster.WithDeps(pair), at)
		ys[i] = c.Submit(ctx, func(_ context.Context, _ *cluster.Worker, deps []any) (any, error) {
			return deps[0].(shuffled).y, nil
		}, cluster.WithKey("shuffled-y"), cluster.WithDeps(pair), at)
	}

	xOut, err := darray.FromFutures(c, xs, partRows, nFeatures, dtype)
	if err != nil {
		return nil, nil, err
	}
	yOut, err := darray.FromFutures(c, ys, partRows, nTargets, dtype)
	if err != nil {
		return nil, nil, err
	}
	return xOut, yOut, nil
}

// shufflePartition reorders the rows of x and y by a permutation drawn
// from seed and the columns of x by featurePerm. The inputs are untouched.
func shufflePartition(x, y *mat.Dense, seed uint32, featurePerm []int) shuffled {
	rows, _ := x.Dims()
	_, nTargets := y.Dims()
	samples := rand.NewMT19937(seed).Permutation(rows)

	xOut := mat.NewDense(rows, len(featurePerm), nil)
	yOut := mat.NewDense(rows, nTargets, nil)
	parallel.ParallelFor(0, rows, parallel.NumWorkers(), func(k int) {
		src := x.RawRowView(samples[k])
		dst := xOut.RawRowView(k)
		for j, f := range featurePerm {
			dst[j] = src[f]
		}
		yOut.SetRow(k, y.RawRowView(samples[k]))
	})
	return shuffled{x: xOut, y: yOut}
}

func isPermutation(p []int, n int) bool {
	if len(p) != n {
		return false
	}
	seen := make([]bool, n)
	for _, v := range p {
		if v < 0 || v >= n || seen[v] {
			return false
		}
		seen[v] = true
	}
	return true
}
