// Package experiment implements the lifelong learning
// experiments: a mixture model trained on five class
// splits, and a pair of models trained across domains.
package experiment

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/unixpickle/anyvae/anysgd"
	"github.com/unixpickle/anyvae/iwae"
	"github.com/unixpickle/anyvae/mixture"
)

// Config stores the settings shared by the experiments.
type Config struct {
	StochasticLayers int
	NumSamples       int
	BatchSize        int

	// Epochs is the number of epochs per task.
	// If it is -1, the IWAE paper's schedule is used.
	Epochs int

	ObjectiveName string
	GPU           string

	DataDir    string
	ResultsDir string
	Seed       int64
	Runs       int

	// EvalSamples is the number of importance samples for
	// log-likelihood estimates.
	EvalSamples int

	// MetricSamples is the number of images used for the
	// per-epoch metrics.
	MetricSamples int

	LogInterval int
	Checkpoint  string

	Tasks     string
	Dataset   string
	Expand    string
	Threshold float64

	// Objective is set by Validate.
	Objective iwae.Objective
}

// DefaultConfig creates a Config with default settings.
func DefaultConfig() *Config {
	return &Config{
		StochasticLayers: 1,
		NumSamples:       50,
		BatchSize:        64,
		Epochs:           -1,
		ObjectiveName:    iwae.VAEELBO.String(),
		ResultsDir:       "results",
		DataDir:          "data",
		Seed:             123,
		Runs:             1,
		EvalSamples:      5000,
		MetricSamples:    10000,
		LogInterval:      200,
		Tasks:            "caltech101,fashion,imnist",
		Dataset:          "fashion",
		Expand:           "fixed",
		Threshold:        mixture.DefaultThreshold,
	}
}

// RegisterFlags adds a flag for every setting.
// The current values are used as defaults.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.StochasticLayers, "stochastic_layers", c.StochasticLayers,
		"number of stochastic layers (1 or 2)")
	fs.IntVar(&c.NumSamples, "n_samples", c.NumSamples, "importance samples per input")
	fs.IntVar(&c.BatchSize, "batch_size", c.BatchSize, "mini-batch size")
	fs.IntVar(&c.Epochs, "epochs", c.Epochs, "epochs per task (-1 for the paper schedule)")
	fs.StringVar(&c.ObjectiveName, "objective", c.ObjectiveName,
		"training objective (vae_elbo, iwae_elbo, iwae_eq14, vae_elbo_kl)")
	fs.StringVar(&c.GPU, "gpu", c.GPU, "GPU device to use")
	fs.StringVar(&c.DataDir, "data", c.DataDir, "directory with the IDX data sets")
	fs.StringVar(&c.ResultsDir, "results", c.ResultsDir, "output directory")
	fs.Int64Var(&c.Seed, "seed", c.Seed, "random seed")
	fs.IntVar(&c.Runs, "runs", c.Runs, "number of repetitions")
	fs.IntVar(&c.EvalSamples, "eval_samples", c.EvalSamples,
		"importance samples for log-likelihood estimates")
	fs.IntVar(&c.MetricSamples, "metric_samples", c.MetricSamples,
		"images used for per-epoch metrics")
	fs.IntVar(&c.LogInterval, "log_interval", c.LogInterval, "steps between log lines")
	fs.StringVar(&c.Checkpoint, "checkpoint", c.Checkpoint, "file to save the final model")
	fs.StringVar(&c.Tasks, "tasks", c.Tasks, "comma-separated cross-domain task list")
	fs.StringVar(&c.Dataset, "dataset", c.Dataset, "five-split data set (fashion or mnist)")
	fs.StringVar(&c.Expand, "expand", c.Expand, "mixture expansion (fixed or auto)")
	fs.Float64Var(&c.Threshold, "threshold", c.Threshold, "NLL gap for a new basic component")
}

// Validate checks the settings and parses the objective.
func (c *Config) Validate() error {
	obj, err := iwae.ParseObjective(c.ObjectiveName)
	if err != nil {
		return err
	}
	c.Objective = obj
	if _, _, err := iwae.Architecture(c.StochasticLayers); err != nil {
		return err
	}
	if c.NumSamples < 1 || c.BatchSize < 1 || c.EvalSamples < 1 || c.LogInterval < 1 {
		return errors.New("sample counts, batch size and log interval must be positive")
	}
	if c.Epochs < -1 || c.Epochs == 0 {
		return fmt.Errorf("invalid epoch count: %d", c.Epochs)
	}
	if c.Runs < 1 {
		return fmt.Errorf("invalid run count: %d", c.Runs)
	}
	if c.Expand != "fixed" && c.Expand != "auto" {
		return fmt.Errorf("unknown expansion mode: %s", c.Expand)
	}
	if len(c.TaskNames()) == 0 {
		return errors.New("empty task list")
	}
	return nil
}

// Describe names the experiment configuration.
func (c *Config) Describe() string {
	return fmt.Sprintf("main_%s_%d_%d", c.ObjectiveName, c.StochasticLayers, c.NumSamples)
}

// TaskNames splits the cross-domain task list.
func (c *Config) TaskNames() []string {
	var res []string
	for _, name := range strings.Split(c.Tasks, ",") {
		if name = strings.TrimSpace(name); name != "" {
			res = append(res, name)
		}
	}
	return res
}

// Schedule returns the learning rate schedule and the
// number of epochs for each task.
func (c *Config) Schedule() (anysgd.Rater, int) {
	if c.Epochs == -1 {
		return anysgd.PaperSchedule()
	}
	return anysgd.ConstRater(1e-4), c.Epochs
}

// SelectGPU makes the configured GPU the only visible
// device.
func (c *Config) SelectGPU() error {
	if c.GPU == "" {
		return nil
	}
	return os.Setenv("CUDA_VISIBLE_DEVICES", c.GPU)
}
