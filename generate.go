package datasets

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/nozzle/datasets/cluster"
	"github.com/nozzle/datasets/darray"
	"github.com/nozzle/datasets/internal/rand"
)

// Order is the memory layout the values of a chunk are drawn in.
type Order int

const (
	// ColumnMajor fills each chunk column by column. It is the default.
	ColumnMajor Order = iota
	// RowMajor fills each chunk row by row.
	RowMajor
)

func (o Order) String() string {
	switch o {
	case ColumnMajor:
		return "F"
	case RowMajor:
		return "C"
	}
	return "invalid"
}

// ParseOrder accepts "F"/"column-major" and "C"/"row-major".
func ParseOrder(s string) (Order, error) {
	switch strings.ToLower(s) {
	case "f", "column-major", "col", "fortran":
		return ColumnMajor, nil
	case "c", "row-major", "row":
		return RowMajor, nil
	}
	return 0, errors.Wrapf(ErrConfiguration, "unknown order %q", s)
}

func (o Order) valid() bool {
	return o == ColumnMajor || o == RowMajor
}

// generateChunk draws a rows x cols chunk of standard normal values on w.
// The result depends on nothing but its arguments.
func generateChunk(w *cluster.Worker, rows, cols int, dtype darray.DType, order Order, seed uint32) (*mat.Dense, error) {
	release, err := w.Reserve(int64(rows*cols) * dtype.ItemSize())
	if err != nil {
		return nil, err
	}
	defer release()

	data := make([]float64, rows*cols)
	rand.NewMT19937(seed).StandardNormal(data)

	var m *mat.Dense
	if order == RowMajor {
		m = mat.NewDense(rows, cols, data)
	} else {
		// data holds the columns back to back.
		m = mat.DenseCopyOf(mat.NewDense(cols, rows, data).T())
	}
	dtype.RoundDense(m)
	return m, nil
}

// assemble submits one generator task per chunk and stacks the pending
// chunks along rows in submission order. Placement is left to the
// scheduler. It does not wait for any task.
func assemble(ctx context.Context, c *cluster.Client, stream *Stream, rows, cols int, chunkRows []int, dtype darray.DType, order Order) (*darray.Array, error) {
	if cols <= 0 || len(chunkRows) == 0 {
		return nil, errors.Wrapf(ErrShapeMismatch, "assemble %dx%d in %d chunks", rows, cols, len(chunkRows))
	}
	total := 0
	for _, r := range chunkRows {
		if r <= 0 {
			return nil, errors.Wrapf(ErrShapeMismatch, "chunk of %d rows", r)
		}
		total += r
	}
	if total != rows {
		return nil, errors.Wrapf(ErrShapeMismatch, "chunks hold %d rows, want %d", total, rows)
	}

	seeds := stream.NextSeeds(len(chunkRows))
	futs := make([]*cluster.Future, len(chunkRows))
	for i, r := range chunkRows {
		seed := seeds[i]
		futs[i] = c.Submit(ctx, func(_ context.Context, w *cluster.Worker, _ []any) (any, error) {
			return generateChunk(w, r, cols, dtype, order, seed)
		}, cluster.WithKey("standard-normal"))
	}
	return darray.FromFutures(c, futs, chunkRows, cols, dtype)
}

// standardNormal draws a rows x cols standard normal array on the block
// grid rowChunks x colChunks. Rows are generated per row chunk and split
// into column blocks lazily.
func standardNormal(ctx context.Context, c *cluster.Client, stream *Stream, rowChunks, colChunks []int, dtype darray.DType, order Order) (*darray.Array, error) {
	rows, cols := 0, 0
	for _, r := range rowChunks {
		rows += r
	}
	for _, k := range colChunks {
		cols += k
	}
	a, err := assemble(ctx, c, stream, rows, cols, rowChunks, dtype, order)
	if err != nil {
		return nil, err
	}
	return a.Rechunk(nil, colChunks)
}
