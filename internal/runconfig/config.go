// Package runconfig holds the run-level configuration for a training run:
// schedule parameters, cadence settings, directory layout and the frozen
// per-task config sequences merged in after task registration.
package runconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/braidml/braid/internal/registry"
	"github.com/braidml/braid/internal/taskdef"
)

// Config is the top-level run configuration, loadable from YAML.
type Config struct {
	// Dataset selection and layout.
	DataDir       string   `yaml:"data_dir"`
	OutputDir     string   `yaml:"output_dir"`
	TrainDatasets []string `yaml:"train_datasets"`
	TestDatasets  []string `yaml:"test_datasets"`

	// Schedule.
	Epochs               int `yaml:"epochs"`
	BatchSize            int `yaml:"batch_size"`
	BatchSizeEval        int `yaml:"batch_size_eval"`
	MaxSeqLen            int `yaml:"max_seq_len"`
	GradAccumulationStep int `yaml:"grad_accumulation_step"`

	// Cadences. Log and checkpoint intervals are expressed in model updates
	// and scale with the gradient accumulation step.
	LogPerUpdates    int  `yaml:"log_per_updates"`
	SavePerUpdates   int  `yaml:"save_per_updates"`
	SavePerUpdatesOn bool `yaml:"save_per_updates_on"`

	// Task registration policy.
	ClassSharing bool    `yaml:"class_sharing"`
	AnswerOpt    int     `yaml:"answer_opt"`
	DropoutP     float64 `yaml:"dropout_p"`
	DropoutW     float64 `yaml:"dropout_w"`

	// Batch interleaving policy, consumed opaquely by the batch sampler.
	MixOpt int     `yaml:"mix_opt"`
	Ratio  float64 `yaml:"ratio"`

	// Output options.
	OfficialFormat bool   `yaml:"official_format"`
	MetricsDB      string `yaml:"metrics_db"` // empty disables the metrics sink

	// Per-id sequences merged from the registry snapshot by ApplySnapshot.
	// Never set these in the YAML file.
	DecoderOpts []int              `yaml:"-"`
	TaskTypes   []taskdef.TaskType `yaml:"-"`
	DropoutPs   []float64          `yaml:"-"`
	LossTypes   []taskdef.LossType `yaml:"-"`
	KDLossTypes []taskdef.LossType `yaml:"-"`
	NClasses    []int              `yaml:"-"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		DataDir:              "data/canonical_data",
		OutputDir:            "checkpoint",
		Epochs:               1,
		BatchSize:            8,
		BatchSizeEval:        8,
		MaxSeqLen:            128,
		GradAccumulationStep: 1,
		LogPerUpdates:        500,
		SavePerUpdates:       10000,
		DropoutP:             0.1,
		DropoutW:             0.0,
		AnswerOpt:            0,
	}
}

// Load reads configuration from a YAML file over the defaults. A missing
// file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading run config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing run config: %w", err)
	}

	return cfg, nil
}

// Validate performs strict validation on the configuration.
func (c *Config) Validate() error {
	if c.Epochs < 1 {
		return fmt.Errorf("epochs must be >= 1, got %d", c.Epochs)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("batch_size must be >= 1, got %d", c.BatchSize)
	}
	if c.BatchSizeEval < 1 {
		return fmt.Errorf("batch_size_eval must be >= 1, got %d", c.BatchSizeEval)
	}
	if c.GradAccumulationStep < 1 {
		return fmt.Errorf("grad_accumulation_step must be >= 1, got %d", c.GradAccumulationStep)
	}
	if c.LogPerUpdates < 1 {
		return fmt.Errorf("log_per_updates must be >= 1, got %d", c.LogPerUpdates)
	}
	if c.SavePerUpdates < 1 {
		return fmt.Errorf("save_per_updates must be >= 1, got %d", c.SavePerUpdates)
	}
	if c.DropoutP < 0 || c.DropoutP >= 1 {
		return fmt.Errorf("dropout_p must be in [0, 1), got %v", c.DropoutP)
	}
	if c.Ratio < 0 {
		return fmt.Errorf("ratio must be >= 0, got %v", c.Ratio)
	}
	return nil
}

// ApplySnapshot merges the frozen registry snapshot into the run
// configuration, replacing any prior values of the same fields. This is the
// single, explicit merge point between registration and the rest of the run.
func (c *Config) ApplySnapshot(snap *registry.Snapshot) {
	c.DecoderOpts = snap.DecoderOpts
	c.TaskTypes = snap.TaskTypes
	c.DropoutPs = snap.DropoutPs
	c.LossTypes = snap.LossTypes
	c.KDLossTypes = snap.KDLossTypes
	c.NClasses = snap.NClasses
}

// LogInterval is the cadence, in local updates, at which training progress
// is logged.
func (c *Config) LogInterval() int64 {
	return int64(c.LogPerUpdates * c.GradAccumulationStep)
}

// SaveInterval is the cadence, in local updates, at which interval
// checkpoints are written.
func (c *Config) SaveInterval() int64 {
	return int64(c.SavePerUpdates * c.GradAccumulationStep)
}
