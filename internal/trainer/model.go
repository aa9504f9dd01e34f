// Package trainer drives epochs over the interleaved multi-task batch
// stream. It owns the log and checkpoint cadence arithmetic; the model's
// parameters, loss computation and gradient accumulation live behind the
// Model interface.
package trainer

import (
	"context"

	"github.com/braidml/braid/internal/dataset"
	"github.com/braidml/braid/internal/taskdef"
)

// Model is the trainable collaborator shared across the whole run. All calls
// are issued strictly sequentially from the pipeline thread.
type Model interface {
	// Update performs one training step on a batch. It increments the local
	// update count by exactly one; the global update count advances once per
	// accumulation window, at the model's discretion.
	Update(ctx context.Context, batch *dataset.Batch) error

	// Eval runs inference over a loader and computes the requested metrics.
	Eval(ctx context.Context, loader dataset.Loader, opts EvalOptions) (*EvalResult, error)

	// Save persists the model to a checkpoint file.
	Save(path string) error

	// LocalUpdates reports the number of Update calls made so far.
	LocalUpdates() int64

	// GlobalUpdates reports the model's own update counter, which may lag
	// LocalUpdates under gradient accumulation.
	GlobalUpdates() int64

	// TrainLossAvg reports the running average training loss.
	TrainLossAvg() float64
}

// EvalOptions parameterizes one inference pass.
type EvalOptions struct {
	Metrics     []string
	TaskType    taskdef.TaskType
	LabelMapper map[int]string // nil when the task has no label vocabulary

	// WithLabel enables label supervision: gold labels are collected and
	// label-dependent metrics computed. Off for the test split.
	WithLabel bool
}

// EvalResult is the outcome of one inference pass. Metric values are numbers
// for scalar metrics; free-form metrics (confusion matrices, reports) may be
// strings.
type EvalResult struct {
	Metrics     map[string]any
	Predictions []any
	Scores      []float64
	Golds       []any
	UIDs        []string
}
