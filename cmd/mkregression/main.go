// Command mkregression generates a synthetic regression dataset on an
// in-process cluster and writes it to CSV files or a bbolt database.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

func main() {
	d := defaultOptions()

	app := cli.NewApp()
	app.Name = "mkregression"
	app.Usage = "generate a partitioned synthetic regression dataset"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "config, c", Usage: "TOML file with default options"},
		cli.IntFlag{Name: "samples, n", Value: d.Samples, Usage: "number of samples"},
		cli.IntFlag{Name: "features, f", Value: d.Features, Usage: "number of features"},
		cli.IntFlag{Name: "informative", Value: d.Informative, Usage: "number of informative features"},
		cli.IntFlag{Name: "targets", Value: d.Targets, Usage: "number of regression targets"},
		cli.Float64Flag{Name: "bias", Usage: "intercept of the linear model"},
		cli.IntFlag{Name: "effective-rank", Usage: "low rank input with this many dominant singular values (0 = well-conditioned)"},
		cli.Float64Flag{Name: "tail-strength", Value: d.TailStrength, Usage: "weight of the noisy tail of the singular profile"},
		cli.Float64Flag{Name: "noise", Usage: "standard deviation of the gaussian noise on y"},
		cli.BoolFlag{Name: "shuffle", Usage: "permute samples and features"},
		cli.Int64Flag{Name: "seed", Usage: "random seed (unset = fresh entropy)"},
		cli.IntFlag{Name: "parts, p", Value: d.Parts, Usage: "number of row partitions"},
		cli.IntFlag{Name: "samples-per-part", Usage: "rows per partition (0 = split evenly)"},
		cli.StringFlag{Name: "order", Value: d.Order, Usage: "chunk layout, F or C"},
		cli.StringFlag{Name: "dtype", Value: d.DType, Usage: "float32 or float64"},
		cli.BoolFlag{Name: "sampled-low-rank", Usage: "take low rank coefficients from one partition instead of a full low rank X"},
		cli.IntFlag{Name: "workers, w", Value: d.Workers, Usage: "number of workers (0 = one per CPU)"},
		cli.IntFlag{Name: "threads-per-worker", Value: d.ThreadsPerWorker, Usage: "concurrent tasks per worker"},
		cli.Int64Flag{Name: "memory-limit", Usage: "memory budget per worker in bytes (0 = unlimited)"},
		cli.StringFlag{Name: "output, o", Value: d.Output, Usage: "output directory (csv) or database file (bolt)"},
		cli.StringFlag{Name: "format", Value: d.Format, Usage: "csv or bolt"},
		cli.BoolFlag{Name: "verbose, v", Usage: "log task scheduling"},
	}
	app.Action = generate

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// resolveOptions layers defaults, the config file and the flags set on
// the command line.
func resolveOptions(c *cli.Context) (options, error) {
	o := defaultOptions()
	if path := c.String("config"); path != "" {
		if err := loadOptions(path, &o); err != nil {
			return o, err
		}
	}

	if c.IsSet("samples") {
		o.Samples = c.Int("samples")
	}
	if c.IsSet("features") {
		o.Features = c.Int("features")
	}
	if c.IsSet("informative") {
		o.Informative = c.Int("informative")
	}
	if c.IsSet("targets") {
		o.Targets = c.Int("targets")
	}
	if c.IsSet("bias") {
		o.Bias = c.Float64("bias")
	}
	if c.IsSet("effective-rank") {
		o.EffectiveRank = c.Int("effective-rank")
	}
	if c.IsSet("tail-strength") {
		o.TailStrength = c.Float64("tail-strength")
	}
	if c.IsSet("noise") {
		o.Noise = c.Float64("noise")
	}
	if c.IsSet("shuffle") {
		o.Shuffle = c.Bool("shuffle")
	}
	if c.IsSet("seed") {
		seed := c.Int64("seed")
		o.Seed = &seed
	}
	if c.IsSet("parts") {
		o.Parts = c.Int("parts")
	}
	if c.IsSet("samples-per-part") {
		o.SamplesPerPart = c.Int("samples-per-part")
	}
	if c.IsSet("order") {
		o.Order = c.String("order")
	}
	if c.IsSet("dtype") {
		o.DType = c.String("dtype")
	}
	if c.IsSet("sampled-low-rank") {
		o.UseFullLowRank = !c.Bool("sampled-low-rank")
	}
	if c.IsSet("workers") {
		o.Workers = c.Int("workers")
	}
	if c.IsSet("threads-per-worker") {
		o.ThreadsPerWorker = c.Int("threads-per-worker")
	}
	if c.IsSet("memory-limit") {
		o.MemoryLimit = c.Int64("memory-limit")
	}
	if c.IsSet("output") {
		o.Output = c.String("output")
	}
	if c.IsSet("format") {
		o.Format = c.String("format")
	}
	return o, nil
}

func newLogger(verbose bool) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(logrus.WarnLevel)
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	return log
}
