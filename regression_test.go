package datasets

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/nozzle/datasets/cluster"
	"github.com/nozzle/datasets/darray"
)

type computed struct {
	x, y, coef *mat.Dense
}

func compute(t *testing.T, ds *Dataset) computed {
	t.Helper()
	ctx := context.Background()
	var out computed
	var err error
	out.x, err = ds.X.Compute(ctx)
	require.NoError(t, err)
	out.y, err = ds.Y.Compute(ctx)
	require.NoError(t, err)
	if ds.Coef != nil {
		out.coef, err = ds.Coef.Compute(ctx)
		require.NoError(t, err)
	}
	return out
}

// requireLinear checks y = x·coef + bias within tol.
func requireLinear(t *testing.T, d computed, bias, tol float64) {
	t.Helper()
	var want mat.Dense
	want.Mul(d.x, d.coef)
	r, c := want.Dims()
	for i := range r {
		for j := range c {
			require.InDelta(t, want.At(i, j)+bias, d.y.At(i, j), tol, "y[%d][%d]", i, j)
		}
	}
}

func TestMakeRegressionEndToEnd(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NSamples = 100
	cfg.NFeatures = 20
	cfg.NInformative = 5
	cfg.NTargets = 1
	cfg.Coef = true
	cfg.RandomState = Seed(42)
	cfg.NParts = 4
	cfg.Client = testClient(t, 4, 0)

	ds, err := MakeRegression(context.Background(), cfg)
	require.NoError(t, err)
	require.Equal(t, []int{100, 20}, ds.X.Shape())
	require.Equal(t, []int{100}, ds.Y.Shape())
	require.Equal(t, []int{20}, ds.Coef.Shape())
	require.Equal(t, []int{25, 25, 25, 25}, ds.X.RowChunks())

	d := compute(t, ds)
	for i := 5; i < 20; i++ {
		require.Zero(t, d.coef.At(i, 0), "coef[%d]", i)
	}
	for i := range 5 {
		require.NotZero(t, d.coef.At(i, 0))
	}

	// y depends on the informative columns only.
	var want mat.Dense
	want.Mul(d.x.Slice(0, 100, 0, 5), d.coef.Slice(0, 5, 0, 1))
	for i := range 100 {
		require.InDelta(t, want.At(i, 0), d.y.At(i, 0), 1e-3)
	}

	again, err := MakeRegression(context.Background(), cfg)
	require.NoError(t, err)
	d2 := compute(t, again)
	require.True(t, mat.Equal(d.x, d2.x))
	require.True(t, mat.Equal(d.y, d2.y))
	require.True(t, mat.Equal(d.coef, d2.coef))
}

func TestMakeRegressionDeterministicAcrossTopology(t *testing.T) {
	tests := []struct {
		name  string
		order Order
	}{
		{"column major", ColumnMajor},
		{"row major", RowMajor},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.NSamples = 60
			cfg.NFeatures = 8
			cfg.NInformative = 3
			cfg.NTargets = 2
			cfg.Bias = 2
			cfg.Noise = 0.5
			cfg.Shuffle = true
			cfg.Coef = true
			cfg.NParts = 3
			cfg.Order = tt.order
			cfg.RandomState = Seed(7)

			var runs []computed
			for _, workers := range []int{1, 2, 5} {
				cfg.Client = testClient(t, workers, 0)
				ds, err := MakeRegression(context.Background(), cfg)
				require.NoError(t, err)
				runs = append(runs, compute(t, ds))
			}
			for _, r := range runs[1:] {
				require.True(t, mat.Equal(runs[0].x, r.x))
				require.True(t, mat.Equal(runs[0].y, r.y))
				require.True(t, mat.Equal(runs[0].coef, r.coef))
			}

			cfg.RandomState = Seed(8)
			ds, err := MakeRegression(context.Background(), cfg)
			require.NoError(t, err)
			other := compute(t, ds)
			require.False(t, mat.Equal(runs[0].x, other.x))
		})
	}
}

func TestMakeRegressionShapes(t *testing.T) {
	tests := []struct {
		name      string
		targets   int
		wantY     []int
		wantCoef  []int
		rank      int
		fullRank  bool
		perPart   int
		wantParts []int
	}{
		{"single target", 1, []int{30}, []int{6}, 0, true, 0, []int{10, 10, 10}},
		{"many targets", 3, []int{30, 3}, []int{6, 3}, 0, true, 0, []int{10, 10, 10}},
		{"low rank", 2, []int{30, 2}, []int{6, 2}, 3, true, 10, []int{10, 10, 10}},
		{"sampled low rank", 1, []int{30}, []int{6}, 3, false, 10, []int{10, 10, 10}},
	}
	c := testClient(t, 2, 0)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.NSamples = 30
			cfg.NFeatures = 6
			cfg.NInformative = 4
			cfg.NTargets = tt.targets
			cfg.EffectiveRank = tt.rank
			cfg.UseFullLowRank = tt.fullRank
			cfg.NParts = 3
			cfg.NSamplesPerPart = tt.perPart
			cfg.Coef = true
			cfg.RandomState = Seed(1)
			cfg.Client = c
			cfg.Logger = quietLogger()

			ds, err := MakeRegression(context.Background(), cfg)
			require.NoError(t, err)
			require.Equal(t, []int{30, 6}, ds.X.Shape())
			require.Equal(t, tt.wantY, ds.Y.Shape())
			require.Equal(t, tt.wantCoef, ds.Coef.Shape())
			require.Equal(t, tt.wantParts, ds.X.RowChunks())

			d := compute(t, ds)
			requireLinear(t, d, 0, 1e-2)
		})
	}
}

func TestMakeRegressionCoefOptional(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NSamples = 10
	cfg.NFeatures = 4
	cfg.Client = testClient(t, 1, 0)
	ds, err := MakeRegression(context.Background(), cfg)
	require.NoError(t, err)
	require.Nil(t, ds.Coef)
}

func TestMakeRegressionZeroCoefficients(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NSamples = 40
	cfg.NFeatures = 10
	cfg.NInformative = 4
	cfg.NTargets = 2
	cfg.Bias = 3
	cfg.Coef = true
	cfg.NParts = 2
	cfg.DType = darray.Float64
	cfg.RandomState = Seed(123)
	cfg.Client = testClient(t, 2, 0)

	ds, err := MakeRegression(context.Background(), cfg)
	require.NoError(t, err)
	d := compute(t, ds)

	for i := 4; i < 10; i++ {
		require.Equal(t, []float64{0, 0}, d.coef.RawRowView(i))
	}

	// Zeroing the uninformative columns leaves y unchanged.
	masked := mat.DenseCopyOf(d.x)
	for i := range 40 {
		for j := 4; j < 10; j++ {
			masked.Set(i, j, 0)
		}
	}
	requireLinear(t, computed{x: masked, y: d.y, coef: d.coef}, 3, 1e-9)
}

func TestMakeRegressionNoInformativeFeatures(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NSamples = 12
	cfg.NFeatures = 3
	cfg.NInformative = 0
	cfg.Bias = 4
	cfg.Coef = true
	cfg.Client = testClient(t, 1, 0)

	ds, err := MakeRegression(context.Background(), cfg)
	require.NoError(t, err)
	d := compute(t, ds)
	for i := range 12 {
		require.Equal(t, 4.0, d.y.At(i, 0))
	}
}

func TestMakeRegressionShuffleKeepsModel(t *testing.T) {
	for _, order := range []Order{ColumnMajor, RowMajor} {
		t.Run(order.String(), func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.NSamples = 48
			cfg.NFeatures = 7
			cfg.NInformative = 2
			cfg.Bias = -1
			cfg.Shuffle = true
			cfg.Coef = true
			cfg.NParts = 4
			cfg.Order = order
			cfg.DType = darray.Float64
			cfg.RandomState = Seed(99)
			cfg.Client = testClient(t, 3, 0)

			ds, err := MakeRegression(context.Background(), cfg)
			require.NoError(t, err)
			d := compute(t, ds)
			requireLinear(t, d, -1, 1e-9)

			zeros := 0
			for i := range 7 {
				if d.coef.At(i, 0) == 0 {
					zeros++
				}
			}
			require.Equal(t, 5, zeros)
		})
	}
}

func TestMakeRegressionNoise(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NSamples = 400
	cfg.NFeatures = 5
	cfg.NInformative = 5
	cfg.Noise = 2
	cfg.Coef = true
	cfg.NParts = 4
	cfg.DType = darray.Float64
	cfg.RandomState = Seed(5)
	cfg.Client = testClient(t, 2, 0)

	ds, err := MakeRegression(context.Background(), cfg)
	require.NoError(t, err)
	d := compute(t, ds)

	var fit mat.Dense
	fit.Mul(d.x, d.coef)
	var sum, sq float64
	for i := range 400 {
		r := d.y.At(i, 0) - fit.At(i, 0)
		sum += r
		sq += r * r
	}
	mean := sum / 400
	variance := sq/400 - mean*mean
	require.InDelta(t, 0, mean, 0.4)
	require.InDelta(t, 4, variance, 1)
}

func TestMakeRegressionFullLowRank(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NSamples = 50
	cfg.NFeatures = 10
	cfg.NInformative = 3
	cfg.EffectiveRank = 5
	cfg.TailStrength = 0
	cfg.NParts = 2
	cfg.Coef = true
	cfg.DType = darray.Float64
	cfg.RandomState = Seed(4)
	cfg.Client = testClient(t, 2, 0)

	ds, err := MakeRegression(context.Background(), cfg)
	require.NoError(t, err)
	d := compute(t, ds)

	var svd mat.SVD
	require.True(t, svd.Factorize(d.x, mat.SVDNone))
	s := svd.Values(nil)
	require.InDelta(t, 1, s[0], 1e-9)
	require.Greater(t, s[0], 20*s[9])
	requireLinear(t, d, 0, 1e-9)
}

func TestMakeRegressionSampledLowRank(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NSamples = 40
	cfg.NFeatures = 6
	cfg.NInformative = 2
	cfg.EffectiveRank = 2
	cfg.UseFullLowRank = false
	cfg.Bias = 1
	cfg.NParts = 4
	cfg.Coef = true
	cfg.DType = darray.Float64
	cfg.RandomState = Seed(4)
	cfg.Client = testClient(t, 2, 0)

	ds, err := MakeRegression(context.Background(), cfg)
	require.NoError(t, err)
	d := compute(t, ds)

	requireLinear(t, d, 1, 1e-9)
	for i := 2; i < 6; i++ {
		require.Zero(t, d.coef.At(i, 0))
	}
}

func TestMakeRegressionConfigErrors(t *testing.T) {
	log, hook := logtest.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	ccfg := cluster.DefaultConfig()
	ccfg.NumWorkers = 2
	ccfg.Logger = log
	c := cluster.New(ccfg)
	t.Cleanup(c.Close)

	tests := []struct {
		name string
		mod  func(*Config)
		want error
	}{
		{"no samples", func(c *Config) { c.NSamples = 0 }, ErrConfiguration},
		{"no targets", func(c *Config) { c.NTargets = 0 }, ErrConfiguration},
		{"no parts", func(c *Config) { c.NParts = 0 }, ErrConfiguration},
		{"negative noise", func(c *Config) { c.Noise = -1 }, ErrConfiguration},
		{"tail strength", func(c *Config) { c.EffectiveRank = 2; c.TailStrength = 2 }, ErrConfiguration},
		{"order", func(c *Config) { c.Order = Order(9) }, ErrConfiguration},
		{"dtype", func(c *Config) { c.DType = darray.DType(9) }, ErrConfiguration},
		{"random state", func(c *Config) { c.RandomState = FromGenerator(nil) }, ErrConfiguration},
		{"zero generator", func(c *Config) { c.RandomState = FromGenerator(new(Generator)) }, ErrConfiguration},
		{"seed range", func(c *Config) { c.RandomState = Seed(-3) }, ErrConfiguration},
		{"samples per part", func(c *Config) { c.NParts = 3; c.NSamplesPerPart = 30 }, ErrShapeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hook.Reset()
			cfg := DefaultConfig()
			cfg.Client = c
			tt.mod(&cfg)
			_, err := MakeRegression(context.Background(), cfg)
			require.ErrorIs(t, err, tt.want)
			require.Zero(t, tasksStarted(hook), "a task ran before the error")
		})
	}

	// The same client does run tasks for a valid configuration.
	hook.Reset()
	cfg := DefaultConfig()
	cfg.Client = c
	cfg.RandomState = Seed(1)
	ds, err := MakeRegression(context.Background(), cfg)
	require.NoError(t, err)
	_, err = ds.X.Compute(context.Background())
	require.NoError(t, err)
	require.NotZero(t, tasksStarted(hook))
}

func tasksStarted(hook *logtest.Hook) int {
	n := 0
	for _, e := range hook.AllEntries() {
		if e.Message == "task started" {
			n++
		}
	}
	return n
}

func TestMakeRegressionAllocation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NSamples = 100
	cfg.NFeatures = 50
	cfg.RandomState = Seed(1)
	cfg.Client = testClient(t, 2, 1024)

	ds, err := MakeRegression(context.Background(), cfg)
	require.NoError(t, err)
	_, err = ds.X.Compute(context.Background())
	require.ErrorIs(t, err, ErrAllocation)
	require.ErrorIs(t, err, ErrWorkerTask)

	cfg.Shuffle = true
	_, err = MakeRegression(context.Background(), cfg)
	require.ErrorIs(t, err, ErrAllocation)
}
