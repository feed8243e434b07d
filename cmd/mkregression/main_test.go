package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/nozzle/datasets"
	"github.com/nozzle/datasets/cluster"
	"github.com/nozzle/datasets/darray"
)

func TestLoadOptions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
n_samples = 500
n_features = 12
random_state = 42
order = "C"
dtype = "float64"
shuffle = true
workers = 3
`), 0o644))

	o := defaultOptions()
	require.NoError(t, loadOptions(path, &o))
	require.Equal(t, 500, o.Samples)
	require.Equal(t, 12, o.Features)
	require.Equal(t, 10, o.Informative)
	require.NotNil(t, o.Seed)
	require.EqualValues(t, 42, *o.Seed)
	require.Equal(t, 3, o.clusterConfig().NumWorkers)

	cfg, err := o.datasetConfig()
	require.NoError(t, err)
	require.Equal(t, datasets.RowMajor, cfg.Order)
	require.Equal(t, darray.Float64, cfg.DType)
	require.True(t, cfg.Shuffle)
	require.True(t, cfg.Coef)
	require.Equal(t, "seed(42)", cfg.RandomState.String())
}

func TestLoadOptionsRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.toml")
	require.NoError(t, os.WriteFile(path, []byte("n_sample = 5\n"), 0o644))
	o := defaultOptions()
	require.Error(t, loadOptions(path, &o))
}

func TestDatasetConfigErrors(t *testing.T) {
	o := defaultOptions()
	o.Order = "Z"
	_, err := o.datasetConfig()
	require.ErrorIs(t, err, datasets.ErrConfiguration)

	o = defaultOptions()
	o.DType = "int8"
	_, err = o.datasetConfig()
	require.Error(t, err)
}

func TestWriteAndSummarize(t *testing.T) {
	ccfg := cluster.DefaultConfig()
	ccfg.NumWorkers = 2
	ccfg.Logger = logrus.New()
	ccfg.Logger.SetOutput(io.Discard)
	client := cluster.New(ccfg)
	defer client.Close()

	o := defaultOptions()
	o.Samples = 40
	o.Features = 5
	o.Informative = 2
	o.Parts = 2
	seed := int64(3)
	o.Seed = &seed
	cfg, err := o.datasetConfig()
	require.NoError(t, err)
	cfg.Client = client

	ctx := context.Background()
	ds, err := datasets.MakeRegression(ctx, cfg)
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, writeCSV(ctx, filepath.Join(dir, "out"), ds))
	for _, name := range []string{"X.csv", "y.csv", "coef.csv"} {
		_, err := os.Stat(filepath.Join(dir, "out", name))
		require.NoError(t, err)
	}
	require.NoError(t, writeBolt(ctx, filepath.Join(dir, "data.db"), ds))

	y, err := ds.Y.Compute(ctx)
	require.NoError(t, err)
	coef, err := ds.Coef.Compute(ctx)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, printSummary(&buf, ds, y, coef))
	require.Contains(t, buf.String(), "X [40 5] in 2 partitions, y [40], coef [5]")
	require.Contains(t, buf.String(), "2 of 5 features informative")
}
