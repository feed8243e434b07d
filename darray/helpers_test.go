package darray

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/nozzle/datasets/cluster"
	"github.com/nozzle/datasets/internal/rand"
)

func testClient(t *testing.T, workers int) *cluster.Client {
	t.Helper()
	cfg := cluster.DefaultConfig()
	cfg.NumWorkers = workers
	cfg.Logger = logrus.New()
	cfg.Logger.SetOutput(io.Discard)
	c := cluster.New(cfg)
	t.Cleanup(c.Close)
	return c
}

// seqDense returns an r x c matrix holding 0, 1, 2, ... in row-major order.
func seqDense(r, c int) *mat.Dense {
	data := make([]float64, r*c)
	for i := range data {
		data[i] = float64(i)
	}
	return mat.NewDense(r, c, data)
}

func normalDense(r, c int, seed uint32) *mat.Dense {
	data := make([]float64, r*c)
	rand.NewMT19937(seed).StandardNormal(data)
	return mat.NewDense(r, c, data)
}

func requireDenseEqual(t *testing.T, want, got mat.Matrix) {
	t.Helper()
	wr, wc := want.Dims()
	gr, gc := got.Dims()
	require.Equal(t, []int{wr, wc}, []int{gr, gc}, "dims")
	require.True(t, mat.Equal(want, got), "want\n%v\ngot\n%v",
		mat.Formatted(want, mat.Squeeze()), mat.Formatted(got, mat.Squeeze()))
}
