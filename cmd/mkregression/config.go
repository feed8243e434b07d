package main

import (
	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/nozzle/datasets"
	"github.com/nozzle/datasets/cluster"
	"github.com/nozzle/datasets/darray"
)

// options is everything the command can be told, from a TOML file or
// from flags. Flags win.
type options struct {
	Samples        int     `toml:"n_samples"`
	Features       int     `toml:"n_features"`
	Informative    int     `toml:"n_informative"`
	Targets        int     `toml:"n_targets"`
	Bias           float64 `toml:"bias"`
	EffectiveRank  int     `toml:"effective_rank"`
	TailStrength   float64 `toml:"tail_strength"`
	Noise          float64 `toml:"noise"`
	Shuffle        bool    `toml:"shuffle"`
	Seed           *int64  `toml:"random_state"`
	Parts          int     `toml:"n_parts"`
	SamplesPerPart int     `toml:"n_samples_per_part"`
	Order          string  `toml:"order"`
	DType          string  `toml:"dtype"`
	UseFullLowRank bool    `toml:"use_full_low_rank"`

	Workers          int   `toml:"workers"`
	ThreadsPerWorker int   `toml:"threads_per_worker"`
	MemoryLimit      int64 `toml:"memory_limit"`

	Output string `toml:"output"`
	Format string `toml:"format"`
}

func defaultOptions() options {
	cfg := datasets.DefaultConfig()
	cc := cluster.DefaultConfig()
	return options{
		Samples:          cfg.NSamples,
		Features:         cfg.NFeatures,
		Informative:      cfg.NInformative,
		Targets:          cfg.NTargets,
		TailStrength:     cfg.TailStrength,
		Parts:            cfg.NParts,
		Order:            cfg.Order.String(),
		DType:            cfg.DType.String(),
		UseFullLowRank:   cfg.UseFullLowRank,
		Workers:          cc.NumWorkers,
		ThreadsPerWorker: cc.ThreadsPerWorker,
		Output:           "regression",
		Format:           "csv",
	}
}

// loadOptions decodes a TOML file over o.
func loadOptions(path string, o *options) error {
	md, err := toml.DecodeFile(path, o)
	if err != nil {
		return errors.Wrapf(err, "reading %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return errors.Errorf("%s: unknown key %q", path, undecoded[0].String())
	}
	return nil
}

func (o options) clusterConfig() cluster.Config {
	cc := cluster.DefaultConfig()
	cc.NumWorkers = o.Workers
	cc.ThreadsPerWorker = o.ThreadsPerWorker
	cc.MemoryLimit = o.MemoryLimit
	return cc
}

func (o options) datasetConfig() (datasets.Config, error) {
	cfg := datasets.DefaultConfig()
	cfg.NSamples = o.Samples
	cfg.NFeatures = o.Features
	cfg.NInformative = o.Informative
	cfg.NTargets = o.Targets
	cfg.Bias = o.Bias
	cfg.EffectiveRank = o.EffectiveRank
	cfg.TailStrength = o.TailStrength
	cfg.Noise = o.Noise
	cfg.Shuffle = o.Shuffle
	cfg.Coef = true
	cfg.NParts = o.Parts
	cfg.NSamplesPerPart = o.SamplesPerPart
	cfg.UseFullLowRank = o.UseFullLowRank
	if o.Seed != nil {
		cfg.RandomState = datasets.Seed(*o.Seed)
	}

	order, err := datasets.ParseOrder(o.Order)
	if err != nil {
		return cfg, err
	}
	cfg.Order = order

	dtype, err := darray.ParseDType(o.DType)
	if err != nil {
		return cfg, err
	}
	cfg.DType = dtype
	return cfg, nil
}
