package darray

import (
	"slices"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Rechunk returns the array with a new block grid. A nil chunking keeps
// that axis unchanged. Output blocks that coincide with an input block reuse
// it; the others copy from every input block they overlap.
func (a *Array) Rechunk(rowChunks, colChunks []int) (*Array, error) {
	rows, cols := a.Dims()
	if rowChunks == nil {
		rowChunks = a.rowChunks
	}
	if colChunks == nil {
		colChunks = a.colChunks
	}
	if err := checkChunks(rowChunks, rows, "row"); err != nil {
		return nil, err
	}
	if err := checkChunks(colChunks, cols, "column"); err != nil {
		return nil, err
	}
	if slices.Equal(rowChunks, a.rowChunks) && slices.Equal(colChunks, a.colChunks) {
		return a, nil
	}

	out := newArray(a.client, a.dtype, slices.Clone(rowChunks), slices.Clone(colChunks))
	out.vector = a.vector

	ars, acs := starts(a.rowChunks), starts(a.colChunks)
	brs, bcs := starts(rowChunks), starts(colChunks)

	type piece struct {
		dr, dc int // offset in the output block
		sr, sc int // offset in the input block
		nr, nc int
	}

	for i := range rowChunks {
		r0, r1 := brs[i], brs[i+1]
		for j := range colChunks {
			c0, c1 := bcs[j], bcs[j+1]

			var deps []*block
			var pieces []piece
			for _, p := range overlapping(ars, r0, r1) {
				lo, hi := max(r0, ars[p]), min(r1, ars[p+1])
				for _, q := range overlapping(acs, c0, c1) {
					clo, chi := max(c0, acs[q]), min(c1, acs[q+1])
					deps = append(deps, a.blocks[p][q])
					pieces = append(pieces, piece{
						dr: lo - r0, dc: clo - c0,
						sr: lo - ars[p], sc: clo - acs[q],
						nr: hi - lo, nc: chi - clo,
					})
				}
			}

			if len(deps) == 1 && deps[0].rows == r1-r0 && deps[0].cols == c1-c0 {
				out.blocks[i][j] = deps[0]
				continue
			}

			nr, nc := r1-r0, c1-c0
			out.blocks[i][j] = lazyBlock(a.client, a.dtype, "rechunk", nr, nc, deps, func(in []*mat.Dense) (*mat.Dense, error) {
				m := mat.NewDense(nr, nc, nil)
				for k, pc := range pieces {
					dst := m.Slice(pc.dr, pc.dr+pc.nr, pc.dc, pc.dc+pc.nc).(*mat.Dense)
					dst.Copy(in[k].Slice(pc.sr, pc.sr+pc.nr, pc.sc, pc.sc+pc.nc))
				}
				return m, nil
			})
		}
	}
	return out, nil
}

// Concatenate joins arrays along axis 0 (rows) or 1 (columns). Every array
// is rechunked along the other axis to match the first one.
func Concatenate(axis int, arrays ...*Array) (*Array, error) {
	if len(arrays) == 0 {
		return nil, errors.Wrap(ErrShapeMismatch, "concatenate: no arrays")
	}
	if axis != 0 && axis != 1 {
		return nil, errors.Wrapf(ErrShapeMismatch, "concatenate: axis %d", axis)
	}

	first := arrays[0]
	var out *Array
	if axis == 0 {
		out = newArray(first.client, first.dtype, nil, slices.Clone(first.colChunks))
		out.blocks = nil
	} else {
		out = newArray(first.client, first.dtype, slices.Clone(first.rowChunks), nil)
	}

	for k, b := range arrays {
		if b.dtype != first.dtype {
			return nil, errors.Wrapf(ErrShapeMismatch, "concatenate: array %d is %s, want %s", k, b.dtype, first.dtype)
		}

		var rb *Array
		var err error
		if axis == 0 {
			rb, err = b.Rechunk(nil, first.colChunks)
		} else {
			rb, err = b.Rechunk(first.rowChunks, nil)
		}
		if err != nil {
			return nil, errors.WithMessagef(err, "concatenate: array %d", k)
		}

		if axis == 0 {
			out.rowChunks = append(out.rowChunks, rb.rowChunks...)
			for _, row := range rb.blocks {
				out.blocks = append(out.blocks, slices.Clone(row))
			}
			continue
		}
		out.colChunks = append(out.colChunks, rb.colChunks...)
		for i := range out.blocks {
			out.blocks[i] = append(out.blocks[i], rb.blocks[i]...)
		}
	}
	return out, nil
}

// mapBlocks applies fn to every block. fn must not modify its input.
func (a *Array) mapBlocks(name string, fn func(i, j int, b *mat.Dense) *mat.Dense) *Array {
	out := newArray(a.client, a.dtype, slices.Clone(a.rowChunks), slices.Clone(a.colChunks))
	out.vector = a.vector
	for i, row := range a.blocks {
		for j, b := range row {
			out.blocks[i][j] = lazyBlock(a.client, a.dtype, name, b.rows, b.cols, []*block{b}, func(in []*mat.Dense) (*mat.Dense, error) {
				return fn(i, j, in[0]), nil
			})
		}
	}
	return out
}

// Scale multiplies every element by f.
func (a *Array) Scale(f float64) *Array {
	return a.mapBlocks("scale", func(_, _ int, b *mat.Dense) *mat.Dense {
		var m mat.Dense
		m.Scale(f, b)
		return &m
	})
}

// AddScalar adds f to every element.
func (a *Array) AddScalar(f float64) *Array {
	return a.mapBlocks("add-scalar", func(_, _ int, b *mat.Dense) *mat.Dense {
		m := mat.DenseCopyOf(b)
		m.Apply(func(_, _ int, v float64) float64 { return v + f }, m)
		return m
	})
}

// ScaleColumns multiplies column j by s[j].
func (a *Array) ScaleColumns(s []float64) (*Array, error) {
	_, cols := a.Dims()
	if len(s) != cols {
		return nil, errors.Wrapf(ErrShapeMismatch, "scale columns: %d factors for %d columns", len(s), cols)
	}
	cs := starts(a.colChunks)
	return a.mapBlocks("scale-columns", func(_, j int, b *mat.Dense) *mat.Dense {
		m := mat.DenseCopyOf(b)
		sj := s[cs[j]:cs[j+1]]
		r, _ := m.Dims()
		for i := 0; i < r; i++ {
			floats.Mul(m.RawRowView(i), sj)
		}
		return m
	}), nil
}

// Add returns a + b elementwise. b is rechunked to a's grid.
func (a *Array) Add(b *Array) (*Array, error) {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	if ar != br || ac != bc {
		return nil, errors.Wrapf(ErrShapeMismatch, "add: %dx%d and %dx%d", ar, ac, br, bc)
	}
	rb, err := b.Rechunk(a.rowChunks, a.colChunks)
	if err != nil {
		return nil, err
	}

	out := newArray(a.client, a.dtype, slices.Clone(a.rowChunks), slices.Clone(a.colChunks))
	out.vector = a.vector
	for i, row := range a.blocks {
		for j, x := range row {
			out.blocks[i][j] = lazyBlock(a.client, a.dtype, "add", x.rows, x.cols, []*block{x, rb.blocks[i][j]}, func(in []*mat.Dense) (*mat.Dense, error) {
				var m mat.Dense
				m.Add(in[0], in[1])
				return &m, nil
			})
		}
	}
	return out, nil
}

// T returns the transpose.
func (a *Array) T() *Array {
	out := newArray(a.client, a.dtype, slices.Clone(a.colChunks), slices.Clone(a.rowChunks))
	for i, row := range a.blocks {
		for j, b := range row {
			out.blocks[j][i] = lazyBlock(a.client, a.dtype, "transpose", b.cols, b.rows, []*block{b}, func(in []*mat.Dense) (*mat.Dense, error) {
				return mat.DenseCopyOf(in[0].T()), nil
			})
		}
	}
	return out
}

// Cols returns columns [start, end). Column boundaries are refined so the
// selection falls on block edges.
func (a *Array) Cols(start, end int) (*Array, error) {
	_, cols := a.Dims()
	if start < 0 || end > cols || start >= end {
		return nil, errors.Wrapf(ErrShapeMismatch, "columns [%d, %d) of %d", start, end, cols)
	}

	bounds := starts(a.colChunks)
	bounds = append(bounds, start, end)
	slices.Sort(bounds)
	bounds = slices.Compact(bounds)

	chunks := make([]int, len(bounds)-1)
	for k := range chunks {
		chunks[k] = bounds[k+1] - bounds[k]
	}
	rb, err := a.Rechunk(nil, chunks)
	if err != nil {
		return nil, err
	}

	j0, _ := slices.BinarySearch(bounds, start)
	j1, _ := slices.BinarySearch(bounds, end)
	out := newArray(a.client, a.dtype, slices.Clone(a.rowChunks), slices.Clone(chunks[j0:j1]))
	for i := range out.blocks {
		out.blocks[i] = slices.Clone(rb.blocks[i][j0:j1])
	}
	return out, nil
}

// TakeRows returns the rows at idx, in order. A full permutation keeps the
// row chunking; other selections are split into as many chunks as the input.
func (a *Array) TakeRows(idx []int) (*Array, error) {
	return a.take(0, idx)
}

// TakeCols returns the columns at idx, in order.
func (a *Array) TakeCols(idx []int) (*Array, error) {
	return a.take(1, idx)
}

func (a *Array) take(axis int, idx []int) (*Array, error) {
	rows, cols := a.Dims()
	n, chunks, other := rows, a.rowChunks, a.colChunks
	if axis == 1 {
		n, chunks, other = cols, a.colChunks, a.rowChunks
	}
	if len(idx) == 0 {
		return nil, errors.Wrap(ErrShapeMismatch, "take: empty selection")
	}
	for _, k := range idx {
		if k < 0 || k >= n {
			return nil, errors.Wrapf(ErrShapeMismatch, "take: index %d out of range [0, %d)", k, n)
		}
	}

	outChunks := slices.Clone(chunks)
	if len(idx) != n {
		outChunks = FoldedChunks(len(idx), len(chunks))
	}
	off, outOff := starts(chunks), starts(outChunks)

	var out *Array
	if axis == 0 {
		out = newArray(a.client, a.dtype, outChunks, slices.Clone(a.colChunks))
		out.vector = a.vector
	} else {
		out = newArray(a.client, a.dtype, slices.Clone(a.rowChunks), outChunks)
	}

	type pick struct{ dep, at int }

	for b := range outChunks {
		sel := idx[outOff[b]:outOff[b+1]]

		// Source chunks in first-use order, and where each selected
		// index lives among them.
		var srcs []int
		pos := make(map[int]int)
		picks := make([]pick, len(sel))
		for k, g := range sel {
			c := chunkOf(off, g)
			d, ok := pos[c]
			if !ok {
				d = len(srcs)
				pos[c] = d
				srcs = append(srcs, c)
			}
			picks[k] = pick{dep: d, at: g - off[c]}
		}

		for o, size := range other {
			deps := make([]*block, len(srcs))
			for d, c := range srcs {
				if axis == 0 {
					deps[d] = a.blocks[c][o]
				} else {
					deps[d] = a.blocks[o][c]
				}
			}

			if axis == 0 {
				out.blocks[b][o] = lazyBlock(a.client, a.dtype, "take-rows", len(sel), size, deps, func(in []*mat.Dense) (*mat.Dense, error) {
					m := mat.NewDense(len(picks), size, nil)
					for k, p := range picks {
						m.SetRow(k, in[p.dep].RawRowView(p.at))
					}
					return m, nil
				})
				continue
			}

			out.blocks[o][b] = lazyBlock(a.client, a.dtype, "take-cols", size, len(sel), deps, func(in []*mat.Dense) (*mat.Dense, error) {
				m := mat.NewDense(size, len(picks), nil)
				col := make([]float64, size)
				for k, p := range picks {
					mat.Col(col, p.at, in[p.dep])
					m.SetCol(k, col)
				}
				return m, nil
			})
		}
	}
	return out, nil
}
