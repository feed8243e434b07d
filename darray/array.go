// Package darray implements a chunked, lazily evaluated distributed array.
//
// An Array is a grid of blocks. Every block is a deferred task on a
// cluster: building arrays with Concatenate, Rechunk, MatMul, QR and the
// elementwise operations only records the work. Blocks are submitted the
// first time something forces them (Compute, ComputeVec, Partitions,
// PartitionsOn) and each block is submitted at most once. A derived block
// runs on the worker holding its first input.
//
// Blocks are *mat.Dense values owned by the worker task that produced them;
// operations never mutate an input block.
package darray

import (
	"context"
	"slices"
	"sync"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/nozzle/datasets/cluster"
	"github.com/nozzle/datasets/internal/parallel"
)

// ErrShapeMismatch is returned when shapes or chunkings are incompatible.
var ErrShapeMismatch = errors.New("darray: shape mismatch")

// computeFunc produces a block from the values of its input blocks.
type computeFunc func(in []*mat.Dense) (*mat.Dense, error)

type block struct {
	rows, cols int

	once   sync.Once
	fut    *cluster.Future
	submit func(ctx context.Context) *cluster.Future
}

func (b *block) future(ctx context.Context) *cluster.Future {
	b.once.Do(func() { b.fut = b.submit(ctx) })
	return b.fut
}

// futureBlock wraps an already submitted task.
func futureBlock(f *cluster.Future, rows, cols int) *block {
	return &block{
		rows:   rows,
		cols:   cols,
		submit: func(context.Context) *cluster.Future { return f },
	}
}

// lazyBlock records a block computed by fn from deps. The output size is
// reserved from the worker's memory budget while fn runs.
func lazyBlock(c *cluster.Client, dtype DType, name string, rows, cols int, deps []*block, fn computeFunc) *block {
	return &block{
		rows: rows,
		cols: cols,
		submit: func(ctx context.Context) *cluster.Future {
			futs := make([]*cluster.Future, len(deps))
			for i, d := range deps {
				futs[i] = d.future(ctx)
			}

			opts := []cluster.SubmitOption{cluster.WithKey(name), cluster.WithDeps(futs...)}
			if len(futs) > 0 && futs[0].Worker() != "" {
				opts = append(opts, cluster.WithWorkers(futs[0].Worker()))
			}

			return c.Submit(ctx, func(_ context.Context, w *cluster.Worker, vals []any) (any, error) {
				release, err := w.Reserve(int64(rows*cols) * dtype.ItemSize())
				if err != nil {
					return nil, err
				}
				defer release()

				in := make([]*mat.Dense, len(vals))
				for i, v := range vals {
					in[i] = v.(*mat.Dense)
				}
				out, err := fn(in)
				if err != nil {
					return nil, err
				}
				dtype.RoundDense(out)
				return out, nil
			}, opts...)
		},
	}
}

// Array is a two dimensional distributed array. A squeezed Array reports a
// one dimensional shape but is stored as a single column.
type Array struct {
	client    *cluster.Client
	dtype     DType
	rowChunks []int
	colChunks []int
	blocks    [][]*block
	vector    bool
}

func newArray(c *cluster.Client, dtype DType, rowChunks, colChunks []int) *Array {
	blocks := make([][]*block, len(rowChunks))
	for i := range blocks {
		blocks[i] = make([]*block, len(colChunks))
	}
	return &Array{
		client:    c,
		dtype:     dtype,
		rowChunks: rowChunks,
		colChunks: colChunks,
		blocks:    blocks,
	}
}

// FromFuture wraps the future of a task returning a rows x cols *mat.Dense
// as a single block array.
func FromFuture(c *cluster.Client, f *cluster.Future, rows, cols int, dtype DType) *Array {
	a := newArray(c, dtype, []int{rows}, []int{cols})
	a.blocks[0][0] = futureBlock(f, rows, cols)
	return a
}

// FromFutures stacks futures as row blocks of the declared sizes, in order.
func FromFutures(c *cluster.Client, futs []*cluster.Future, rowChunks []int, cols int, dtype DType) (*Array, error) {
	if len(futs) != len(rowChunks) {
		return nil, errors.Wrapf(ErrShapeMismatch, "%d futures for %d row chunks", len(futs), len(rowChunks))
	}
	if len(futs) == 0 || cols <= 0 {
		return nil, errors.Wrap(ErrShapeMismatch, "empty array")
	}
	for _, r := range rowChunks {
		if r <= 0 {
			return nil, errors.Wrapf(ErrShapeMismatch, "row chunk of size %d", r)
		}
	}

	a := newArray(c, dtype, slices.Clone(rowChunks), []int{cols})
	for i, f := range futs {
		a.blocks[i][0] = futureBlock(f, rowChunks[i], cols)
	}
	return a, nil
}

// FromDense distributes a copy of m with the given chunking. Nil chunks
// mean a single chunk along that axis.
func FromDense(c *cluster.Client, m mat.Matrix, rowChunks, colChunks []int, dtype DType) (*Array, error) {
	rows, cols := m.Dims()
	if rowChunks == nil {
		rowChunks = []int{rows}
	}
	if colChunks == nil {
		colChunks = []int{cols}
	}
	if err := checkChunks(rowChunks, rows, "row"); err != nil {
		return nil, err
	}
	if err := checkChunks(colChunks, cols, "column"); err != nil {
		return nil, err
	}

	a := newArray(c, dtype, slices.Clone(rowChunks), slices.Clone(colChunks))
	rs, cs := starts(rowChunks), starts(colChunks)
	src := mat.DenseCopyOf(m)
	for i, r := range rowChunks {
		for j, cc := range colChunks {
			r0, c0 := rs[i], cs[j]
			a.blocks[i][j] = lazyBlock(c, dtype, "from-dense", r, cc, nil, func([]*mat.Dense) (*mat.Dense, error) {
				return mat.DenseCopyOf(src.Slice(r0, r0+r, c0, c0+cc)), nil
			})
		}
	}
	return a, nil
}

// Client returns the cluster the array's blocks run on.
func (a *Array) Client() *cluster.Client { return a.client }

// DType returns the element type.
func (a *Array) DType() DType { return a.dtype }

// Dims returns the stored number of rows and columns.
func (a *Array) Dims() (rows, cols int) {
	return sum(a.rowChunks), sum(a.colChunks)
}

// Shape returns the logical shape: one element for squeezed arrays.
func (a *Array) Shape() []int {
	r, c := a.Dims()
	if a.vector {
		return []int{r}
	}
	return []int{r, c}
}

// RowChunks returns the row sizes of the block rows.
func (a *Array) RowChunks() []int { return slices.Clone(a.rowChunks) }

// ColChunks returns the column sizes of the block columns.
func (a *Array) ColChunks() []int { return slices.Clone(a.colChunks) }

// Squeeze returns a one dimensional view when the array has one column.
func (a *Array) Squeeze() *Array {
	_, c := a.Dims()
	if c != 1 {
		return a
	}
	out := *a
	out.vector = true
	return &out
}

// Compute forces every block and gathers the array on the caller. Any
// failing block fails the whole call.
func (a *Array) Compute(ctx context.Context) (*mat.Dense, error) {
	rows, cols := a.Dims()
	rs, cs := starts(a.rowChunks), starts(a.colChunks)
	nc := len(a.colChunks)

	futs := make([]*cluster.Future, 0, len(a.rowChunks)*nc)
	for i := range a.blocks {
		for j := range a.blocks[i] {
			futs = append(futs, a.blocks[i][j].future(ctx))
		}
	}

	out := mat.NewDense(rows, cols, nil)
	err := parallel.ForErr(0, len(futs), parallel.NumWorkers(), func(k int) error {
		v, err := futs[k].Result(ctx)
		if err != nil {
			return err
		}
		i, j := k/nc, k%nc
		dst := out.Slice(rs[i], rs[i+1], cs[j], cs[j+1]).(*mat.Dense)
		dst.Copy(v.(*mat.Dense))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ComputeVec is Compute for single column arrays.
func (a *Array) ComputeVec(ctx context.Context) (*mat.VecDense, error) {
	if _, c := a.Dims(); c != 1 {
		return nil, errors.Wrapf(ErrShapeMismatch, "vector of %d columns", c)
	}
	m, err := a.Compute(ctx)
	if err != nil {
		return nil, err
	}
	return mat.VecDenseCopyOf(m.ColView(0)), nil
}

func sum(xs []int) int {
	s := 0
	for _, x := range xs {
		s += x
	}
	return s
}

