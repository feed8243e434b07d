package datasets

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/nozzle/datasets/darray"
	"github.com/nozzle/datasets/internal/rand"
)

func TestGenerateChunkLayout(t *testing.T) {
	c := testClient(t, 1, 0)
	w := c.Worker("worker-0")

	data := make([]float64, 12)
	rand.NewMT19937(17).StandardNormal(data)

	rowMajor, err := generateChunk(w, 3, 4, darray.Float64, RowMajor, 17)
	require.NoError(t, err)
	colMajor, err := generateChunk(w, 3, 4, darray.Float64, ColumnMajor, 17)
	require.NoError(t, err)

	for i := range 3 {
		for j := range 4 {
			require.Equal(t, data[i*4+j], rowMajor.At(i, j))
			require.Equal(t, data[j*3+i], colMajor.At(i, j))
		}
	}

	again, err := generateChunk(w, 3, 4, darray.Float64, ColumnMajor, 17)
	require.NoError(t, err)
	require.True(t, mat.Equal(colMajor, again))
	require.Zero(t, w.MemoryInUse())
}

func TestGenerateChunkFloat32(t *testing.T) {
	c := testClient(t, 1, 0)
	m, err := generateChunk(c.Worker("worker-0"), 5, 2, darray.Float32, RowMajor, 1)
	require.NoError(t, err)
	for _, v := range m.RawMatrix().Data {
		require.Equal(t, float64(float32(v)), v)
	}
}

func TestGenerateChunkAllocation(t *testing.T) {
	c := testClient(t, 1, 64)
	_, err := generateChunk(c.Worker("worker-0"), 4, 4, darray.Float64, RowMajor, 1)
	require.ErrorIs(t, err, ErrAllocation)

	_, err = generateChunk(c.Worker("worker-0"), 4, 4, darray.Float32, RowMajor, 1)
	require.NoError(t, err)
}

func TestAssemble(t *testing.T) {
	c := testClient(t, 3, 0)
	ctx := context.Background()
	stream := NewStream(11)

	a, err := assemble(ctx, c, stream, 10, 3, []int{4, 4, 2}, darray.Float64, RowMajor)
	require.NoError(t, err)
	require.Equal(t, []int{10, 3}, a.Shape())
	require.Equal(t, []int{4, 4, 2}, a.RowChunks())
	require.Equal(t, 1, stream.Position())

	got, err := a.Compute(ctx)
	require.NoError(t, err)

	// Chunk i holds rows of the generator seeded with the i-th seed.
	seeds := NewStream(11).NextSeeds(3)
	w := c.Worker("worker-0")
	off := 0
	for i, rows := range []int{4, 4, 2} {
		want, err := generateChunk(w, rows, 3, darray.Float64, RowMajor, seeds[i])
		require.NoError(t, err)
		require.True(t, mat.Equal(want, got.Slice(off, off+rows, 0, 3)), "chunk %d", i)
		off += rows
	}

	_, err = assemble(ctx, c, stream, 10, 3, []int{4, 4}, darray.Float64, RowMajor)
	require.ErrorIs(t, err, ErrShapeMismatch)
	_, err = assemble(ctx, c, stream, 10, 3, []int{10, 0}, darray.Float64, RowMajor)
	require.ErrorIs(t, err, ErrShapeMismatch)
	require.Equal(t, 1, stream.Position(), "failed assembly consumed the stream")
}

func TestParseOrder(t *testing.T) {
	for in, want := range map[string]Order{"F": ColumnMajor, "column-major": ColumnMajor, "c": RowMajor, "row-major": RowMajor} {
		got, err := ParseOrder(in)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	_, err := ParseOrder("z")
	require.ErrorIs(t, err, ErrConfiguration)
}

func TestStandardNormalGrid(t *testing.T) {
	c := testClient(t, 2, 0)
	ctx := context.Background()

	a, err := standardNormal(ctx, c, NewStream(5), []int{3, 3}, []int{2, 2, 1}, darray.Float64, ColumnMajor)
	require.NoError(t, err)
	require.Equal(t, []int{3, 3}, a.RowChunks())
	require.Equal(t, []int{2, 2, 1}, a.ColChunks())

	flat, err := assemble(ctx, c, NewStream(5), 6, 5, []int{3, 3}, darray.Float64, ColumnMajor)
	require.NoError(t, err)

	got, err := a.Compute(ctx)
	require.NoError(t, err)
	want, err := flat.Compute(ctx)
	require.NoError(t, err)
	require.True(t, mat.Equal(want, got))
}
