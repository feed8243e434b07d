package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/urfave/cli"
	"gonum.org/v1/gonum/mat"

	"github.com/nozzle/datasets"
	"github.com/nozzle/datasets/cluster"
	"github.com/nozzle/datasets/darray"
	"github.com/nozzle/datasets/export"
)

func generate(c *cli.Context) error {
	o, err := resolveOptions(c)
	if err != nil {
		return err
	}
	cfg, err := o.datasetConfig()
	if err != nil {
		return err
	}

	log := newLogger(c.Bool("verbose"))
	cc := o.clusterConfig()
	cc.Logger = log
	client := cluster.New(cc)
	defer client.Close()
	cfg.Client = client

	ctx := context.Background()
	ds, err := datasets.MakeRegression(ctx, cfg)
	if err != nil {
		return err
	}

	switch o.Format {
	case "csv":
		err = writeCSV(ctx, o.Output, ds)
	case "bolt":
		err = writeBolt(ctx, o.Output, ds)
	default:
		err = errors.Errorf("unknown format %q", o.Format)
	}
	if err != nil {
		return err
	}

	y, err := ds.Y.Compute(ctx)
	if err != nil {
		return err
	}
	coef, err := ds.Coef.Compute(ctx)
	if err != nil {
		return err
	}
	return printSummary(os.Stdout, ds, y, coef)
}

func writeCSV(ctx context.Context, dir string, ds *datasets.Dataset) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	arrays := []struct {
		name string
		a    *darray.Array
	}{{"X.csv", ds.X}, {"y.csv", ds.Y}, {"coef.csv", ds.Coef}}

	for _, f := range arrays {
		m, err := f.a.Compute(ctx)
		if err != nil {
			return err
		}
		if err := export.SaveCSV(filepath.Join(dir, f.name), m, f.a.DType()); err != nil {
			return err
		}
	}
	return nil
}

func writeBolt(ctx context.Context, path string, ds *datasets.Dataset) error {
	store, err := export.OpenStore(path)
	if err != nil {
		return err
	}
	defer store.Close()

	for name, a := range map[string]*darray.Array{"X": ds.X, "y": ds.Y, "coef": ds.Coef} {
		if err := store.WriteArray(ctx, name, a); err != nil {
			return errors.WithMessagef(err, "writing %s", name)
		}
	}
	return nil
}

// printSummary reports the shapes and per-target statistics of y.
func printSummary(w io.Writer, ds *datasets.Dataset, y, coef *mat.Dense) error {
	fmt.Fprintf(w, "X %v in %d partitions, y %v, coef %v\n",
		ds.X.Shape(), len(ds.X.RowChunks()), ds.Y.Shape(), ds.Coef.Shape())

	_, targets := y.Dims()
	for j := range targets {
		col := mat.Col(nil, j, y)
		mean, err := stats.Mean(col)
		if err != nil {
			return err
		}
		sd, err := stats.StandardDeviation(col)
		if err != nil {
			return err
		}
		lo, err := stats.Min(col)
		if err != nil {
			return err
		}
		hi, err := stats.Max(col)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "y[%d]: mean %.4g, std %.4g, min %.4g, max %.4g\n", j, mean, sd, lo, hi)
	}

	informative := 0
	r, c := coef.Dims()
	for i := range r {
		for j := range c {
			if coef.At(i, j) != 0 {
				informative++
				break
			}
		}
	}
	fmt.Fprintf(w, "%d of %d features informative\n", informative, r)
	return nil
}
