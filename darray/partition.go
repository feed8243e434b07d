package darray

import (
	"context"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/nozzle/datasets/cluster"
)

// Partition is one forced row block of an array with its placement.
type Partition struct {
	Index  int
	Worker string
	Rows   int
	Cols   int
	Future *cluster.Future
}

// Partitions forces every row block, merging column blocks first, and
// waits until each is resolved. The result is in row order.
func (a *Array) Partitions(ctx context.Context) ([]Partition, error) {
	return a.partitions(ctx, nil)
}

// PartitionsOn is Partitions with an explicit placement map: row block i
// ends up on workers[i], moved there by a pinned copy task when it was
// computed elsewhere.
func (a *Array) PartitionsOn(ctx context.Context, workers []string) ([]Partition, error) {
	if len(workers) != len(a.rowChunks) {
		return nil, errors.Wrapf(ErrShapeMismatch, "%d workers for %d row blocks", len(workers), len(a.rowChunks))
	}
	return a.partitions(ctx, workers)
}

func (a *Array) partitions(ctx context.Context, workers []string) ([]Partition, error) {
	_, cols := a.Dims()
	merged, err := a.Rechunk(nil, []int{cols})
	if err != nil {
		return nil, err
	}

	futs := make([]*cluster.Future, len(merged.rowChunks))
	for i, row := range merged.blocks {
		f := row[0].future(ctx)
		if workers != nil && f.Worker() != workers[i] {
			f = a.move(ctx, f, workers[i], merged.rowChunks[i], cols)
		}
		futs[i] = f
	}

	names, err := a.client.Who(ctx, futs...)
	if err != nil {
		return nil, err
	}

	parts := make([]Partition, len(futs))
	for i, f := range futs {
		parts[i] = Partition{
			Index:  i,
			Worker: names[i],
			Rows:   merged.rowChunks[i],
			Cols:   cols,
			Future: f,
		}
	}
	return parts, nil
}

// move copies the block behind f onto the named worker.
func (a *Array) move(ctx context.Context, f *cluster.Future, worker string, rows, cols int) *cluster.Future {
	size := int64(rows*cols) * a.dtype.ItemSize()
	return a.client.Submit(ctx, func(_ context.Context, w *cluster.Worker, vals []any) (any, error) {
		release, err := w.Reserve(size)
		if err != nil {
			return nil, err
		}
		defer release()
		return mat.DenseCopyOf(vals[0].(*mat.Dense)), nil
	}, cluster.WithKey("move"), cluster.WithDeps(f), cluster.WithWorkers(worker))
}
