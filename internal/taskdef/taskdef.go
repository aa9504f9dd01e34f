// Package taskdef loads and validates per-task definitions from a YAML file.
// A task definition describes one dataset family (identified by its prefix):
// its task type, label cardinality, loss functions, decoding capabilities and
// optional label vocabulary. Every component of the pipeline resolves task
// attributes through this package rather than re-deriving them.
package taskdef

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TaskType classifies a task's supervised learning objective.
type TaskType string

const (
	// TaskTypeClassification predicts one label out of a fixed set.
	TaskTypeClassification TaskType = "classification"

	// TaskTypeRegression predicts a continuous value.
	TaskTypeRegression TaskType = "regression"

	// TaskTypeRanking orders candidate hypotheses; batches are collated pairwise.
	TaskTypeRanking TaskType = "ranking"

	// TaskTypeSpan predicts an answer span inside the input.
	TaskTypeSpan TaskType = "span"

	// TaskTypeSequenceLabeling predicts one label per input token.
	TaskTypeSequenceLabeling TaskType = "sequence_labeling"
)

// LossType selects the loss criterion used for a task's gradient updates,
// or for distillation against a teacher model's soft labels.
type LossType string

const (
	LossCrossEntropy     LossType = "cross_entropy"
	LossMeanSquaredError LossType = "mse"
	LossRankCrossEntropy LossType = "rank_cross_entropy"
	LossKLDivergence     LossType = "kl_divergence"
)

// DataFormat describes the shape of a task's input records, consumed by the
// dataset collator.
type DataFormat string

const (
	FormatPremiseOnly       DataFormat = "premise_only"
	FormatPremiseHypothesis DataFormat = "premise_and_one_hypothesis"
	FormatPremiseMultiHyp   DataFormat = "premise_and_multi_hypothesis"
)

// Def is the definition of a single task family.
type Def struct {
	TaskType   TaskType   `yaml:"task_type"`
	DataFormat DataFormat `yaml:"data_format"`
	NClass     int        `yaml:"n_class"`
	Loss       LossType   `yaml:"loss"`
	KDLoss     LossType   `yaml:"kd_loss"`
	EnableSAN  bool       `yaml:"enable_san"`

	// DropoutP overrides the run-level default dropout for this task when set.
	DropoutP *float64 `yaml:"dropout_p,omitempty"`

	// Metrics names the metric keys computed for this task during evaluation.
	Metrics []string `yaml:"metrics"`

	// Labels is the label vocabulary in label-index order. Optional; only
	// needed to translate numeric predictions into the official submission
	// format.
	Labels []string `yaml:"labels,omitempty"`
}

// Defs holds the definitions for all known task prefixes.
type Defs struct {
	Tasks map[string]*Def `yaml:"tasks"`
}

// Load reads task definitions from a YAML file and validates them.
func Load(path string) (*Defs, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading task definitions: %w", err)
	}

	var defs Defs
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("parsing task definitions: %w", err)
	}

	if err := defs.Validate(); err != nil {
		return nil, err
	}

	return &defs, nil
}

// Validate performs strict validation on the loaded definitions.
func (d *Defs) Validate() error {
	if len(d.Tasks) == 0 {
		return fmt.Errorf("no task definitions found")
	}

	for prefix, def := range d.Tasks {
		if def == nil {
			return fmt.Errorf("task '%s': definition is empty", prefix)
		}
		if err := def.validate(prefix); err != nil {
			return err
		}
	}

	return nil
}

func (def *Def) validate(prefix string) error {
	switch def.TaskType {
	case TaskTypeClassification, TaskTypeRegression, TaskTypeRanking,
		TaskTypeSpan, TaskTypeSequenceLabeling:
	default:
		return fmt.Errorf("task '%s': unknown task_type '%s'", prefix, def.TaskType)
	}

	switch def.DataFormat {
	case FormatPremiseOnly, FormatPremiseHypothesis, FormatPremiseMultiHyp:
	default:
		return fmt.Errorf("task '%s': unknown data_format '%s'", prefix, def.DataFormat)
	}

	if def.NClass < 1 {
		return fmt.Errorf("task '%s': n_class must be >= 1, got %d", prefix, def.NClass)
	}

	if err := validateLoss(prefix, "loss", def.Loss); err != nil {
		return err
	}
	if def.KDLoss != "" {
		if err := validateLoss(prefix, "kd_loss", def.KDLoss); err != nil {
			return err
		}
	}

	if def.DropoutP != nil && (*def.DropoutP < 0 || *def.DropoutP >= 1) {
		return fmt.Errorf("task '%s': dropout_p must be in [0, 1), got %v", prefix, *def.DropoutP)
	}

	return nil
}

func validateLoss(prefix, field string, loss LossType) error {
	switch loss {
	case LossCrossEntropy, LossMeanSquaredError, LossRankCrossEntropy, LossKLDivergence:
		return nil
	default:
		return fmt.Errorf("task '%s': unknown %s '%s'", prefix, field, loss)
	}
}

// Get returns the definition for a task prefix, or false if the prefix is
// not defined.
func (d *Defs) Get(prefix string) (*Def, bool) {
	def, ok := d.Tasks[prefix]
	return def, ok
}

// LabelMapper returns the prefix's label-index to label-text mapping, or nil
// when the task has no label vocabulary. A nil mapper is a valid value: the
// submission writer falls back to raw predictions.
func (d *Defs) LabelMapper(prefix string) map[int]string {
	def, ok := d.Tasks[prefix]
	if !ok || len(def.Labels) == 0 {
		return nil
	}

	mapper := make(map[int]string, len(def.Labels))
	for i, label := range def.Labels {
		mapper[i] = label
	}
	return mapper
}
