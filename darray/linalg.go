package darray

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	linmath "github.com/nozzle/datasets/internal/math"
)

// MatMul returns the product a·b. The rows of b are rechunked to match the
// column chunks of a; output block (i, j) depends on row i of a and column
// j of b.
func MatMul(a, b *Array) (*Array, error) {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	if ac != br {
		return nil, errors.Wrapf(ErrShapeMismatch, "matmul: %dx%d by %dx%d", ar, ac, br, bc)
	}
	if a.dtype != b.dtype {
		return nil, errors.Wrapf(ErrShapeMismatch, "matmul: %s by %s", a.dtype, b.dtype)
	}
	rb, err := b.Rechunk(a.colChunks, nil)
	if err != nil {
		return nil, err
	}

	k := len(a.colChunks)
	out := newArray(a.client, a.dtype, a.RowChunks(), rb.ColChunks())
	for i, r := range a.rowChunks {
		for j, c := range rb.colChunks {
			deps := make([]*block, 0, 2*k)
			deps = append(deps, a.blocks[i]...)
			for p := range k {
				deps = append(deps, rb.blocks[p][j])
			}
			out.blocks[i][j] = lazyBlock(a.client, a.dtype, "matmul", r, c, deps, func(in []*mat.Dense) (*mat.Dense, error) {
				m := mat.NewDense(r, c, nil)
				var tmp mat.Dense
				for p := range k {
					tmp.Reset()
					tmp.Mul(in[p], in[k+p])
					m.Add(m, &tmp)
				}
				return m, nil
			})
		}
	}
	return out, nil
}

// QR computes the thin QR decomposition of a tall-skinny array with the
// two level TSQR scheme: every row block is factorized locally, the stacked
// R factors are factorized once more, and the local Q factors are
// multiplied by their slice of the second level Q.
//
// a is rechunked to a single column block. Every row block must have at
// least as many rows as a has columns. Q keeps a's row chunks; R is a
// single n x n block.
func QR(a *Array) (q, r *Array, err error) {
	_, n := a.Dims()
	a, err = a.Rechunk(nil, []int{n})
	if err != nil {
		return nil, nil, err
	}
	for i, rows := range a.rowChunks {
		if rows < n {
			return nil, nil, errors.Wrapf(ErrShapeMismatch,
				"qr: row block %d has %d rows, fewer than the %d columns", i, rows, n)
		}
	}

	k := len(a.rowChunks)
	local := make([]*block, k)
	for i, rows := range a.rowChunks {
		local[i] = lazyBlock(a.client, a.dtype, "qr-local", rows+n, n, []*block{a.blocks[i][0]}, func(in []*mat.Dense) (*mat.Dense, error) {
			return stackQR(in[0]), nil
		})
	}

	reduce := lazyBlock(a.client, a.dtype, "qr-reduce", k*n+n, n, local, func(in []*mat.Dense) (*mat.Dense, error) {
		rs := mat.NewDense(k*n, n, nil)
		for i, s := range in {
			rows, _ := s.Dims()
			rs.Slice(i*n, (i+1)*n, 0, n).(*mat.Dense).Copy(s.Slice(rows-n, rows, 0, n))
		}
		return stackQR(rs), nil
	})

	q = newArray(a.client, a.dtype, a.RowChunks(), []int{n})
	for i, rows := range a.rowChunks {
		q.blocks[i][0] = lazyBlock(a.client, a.dtype, "qr-q", rows, n, []*block{local[i], reduce}, func(in []*mat.Dense) (*mat.Dense, error) {
			m := mat.NewDense(rows, n, nil)
			m.Mul(in[0].Slice(0, rows, 0, n), in[1].Slice(i*n, (i+1)*n, 0, n))
			return m, nil
		})
	}

	r = newArray(a.client, a.dtype, []int{n}, []int{n})
	r.blocks[0][0] = lazyBlock(a.client, a.dtype, "qr-r", n, n, []*block{reduce}, func(in []*mat.Dense) (*mat.Dense, error) {
		return mat.DenseCopyOf(in[0].Slice(k*n, k*n+n, 0, n)), nil
	})
	return q, r, nil
}

// stackQR factorizes the m x n matrix a (m >= n) and returns Q stacked on
// top of R as one (m+n) x n matrix.
func stackQR(a *mat.Dense) *mat.Dense {
	m, n := a.Dims()
	q, r := linmath.ThinQR(a)
	out := mat.NewDense(m+n, n, nil)
	out.Slice(0, m, 0, n).(*mat.Dense).Copy(q)
	out.Slice(m, m+n, 0, n).(*mat.Dense).Copy(r)
	return out
}
