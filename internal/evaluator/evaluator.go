// Package evaluator runs per-task inference over the dev and test splits,
// assembles the score artifacts and emits evaluation metrics to the
// monitoring sink.
package evaluator

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/braidml/braid/internal/dataset"
	"github.com/braidml/braid/internal/metrics"
	"github.com/braidml/braid/internal/registry"
	"github.com/braidml/braid/internal/runconfig"
	"github.com/braidml/braid/internal/taskdef"
	"github.com/braidml/braid/internal/trainer"
)

// SubmissionWriter serializes predictions into the official leaderboard
// format. The label mapper may be nil; implementations must handle that.
type SubmissionWriter interface {
	Write(path string, result *trainer.EvalResult, labels map[int]string) error
}

// Runner evaluates every test-dataset identifier against its dev and test
// loaders. The dev/test loader lists are index-aligned with the identifiers;
// nil entries mean the split file was absent and the phase is skipped
// silently.
type Runner struct {
	model      trainer.Model
	cfg        *runconfig.Config
	defs       *taskdef.Defs
	reg        *registry.Registry
	datasets   []string
	dev        []dataset.Loader
	test       []dataset.Loader
	sink       metrics.Sink
	submission SubmissionWriter
}

// NewRunner builds an evaluation runner. The loader lists must be
// index-aligned with cfg.TestDatasets.
func NewRunner(model trainer.Model, cfg *runconfig.Config, defs *taskdef.Defs, reg *registry.Registry,
	dev, test []dataset.Loader, sink metrics.Sink, submission SubmissionWriter) (*Runner, error) {

	if len(cfg.TestDatasets) != len(dev) || len(cfg.TestDatasets) != len(test) {
		return nil, registry.ConfigErrorf(
			"dataloader lists out of step with test datasets: %d datasets, %d dev, %d test",
			len(cfg.TestDatasets), len(dev), len(test))
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Runner{
		model:      model,
		cfg:        cfg,
		defs:       defs,
		reg:        reg,
		datasets:   cfg.TestDatasets,
		dev:        dev,
		test:       test,
		sink:       sink,
		submission: submission,
	}, nil
}

// Predict runs inference for every task, writes the score artifacts, persists
// the end-of-run checkpoint and releases the monitoring sink. The epoch tags
// artifact names and evaluation metric steps.
func (r *Runner) Predict(ctx context.Context, epoch int) error {
	for idx, datasetID := range r.datasets {
		if err := r.evalTask(ctx, idx, datasetID, epoch); err != nil {
			return err
		}
	}

	checkpoint := filepath.Join(r.cfg.OutputDir, fmt.Sprintf("model_%d.pt", epoch))
	log.Printf("[Evaluator] Saving model to %s", checkpoint)
	if err := r.model.Save(checkpoint); err != nil {
		return fmt.Errorf("saving final checkpoint %s: %w", checkpoint, err)
	}

	if err := r.sink.Close(); err != nil {
		return fmt.Errorf("closing metrics sink: %w", err)
	}
	return nil
}

func (r *Runner) evalTask(ctx context.Context, idx int, datasetID string, epoch int) error {
	prefix := registry.Prefix(datasetID)
	def, ok := r.defs.Get(prefix)
	if !ok {
		return registry.ConfigErrorf("task '%s' has no task definition", prefix)
	}
	labelMapper := r.defs.LabelMapper(prefix) // may be nil

	if dev := r.dev[idx]; dev != nil {
		result, err := r.model.Eval(ctx, dev, trainer.EvalOptions{
			Metrics:     def.Metrics,
			TaskType:    def.TaskType,
			LabelMapper: labelMapper,
			WithLabel:   true,
		})
		if err != nil {
			return fmt.Errorf("dev eval for %s: %w", datasetID, err)
		}

		for _, key := range sortedKeys(result.Metrics) {
			val := result.Metrics[key]
			if num, ok := asFloat(val); ok {
				log.Printf("[Evaluator] Task %s -- epoch %d -- Dev %s: %.3f", datasetID, epoch, key, num)
				name := fmt.Sprintf("dev/%s/%s", datasetID, key)
				if err := r.sink.RecordScalar(name, num, int64(epoch)); err != nil {
					return fmt.Errorf("recording %s: %w", name, err)
				}
			} else {
				log.Printf("[Evaluator] Task %s -- epoch %d -- Dev %s:\n%v", datasetID, epoch, key, val)
			}
		}

		if err := r.writeArtifacts(datasetID, "dev", epoch, result, labelMapper); err != nil {
			return err
		}
	}

	if test := r.test[idx]; test != nil {
		result, err := r.model.Eval(ctx, test, trainer.EvalOptions{
			Metrics:     def.Metrics,
			TaskType:    def.TaskType,
			LabelMapper: labelMapper,
			WithLabel:   false,
		})
		if err != nil {
			return fmt.Errorf("test eval for %s: %w", datasetID, err)
		}

		if err := r.writeArtifacts(datasetID, "test", epoch, result, labelMapper); err != nil {
			return err
		}
		log.Printf("[Evaluator] New test scores for %s saved", datasetID)
	}

	return nil
}

// scoreArtifact is the JSON score file layout.
type scoreArtifact struct {
	Metrics     map[string]any `json:"metrics"`
	Predictions []any          `json:"predictions"`
	UIDs        []string       `json:"uids"`
	Scores      []float64      `json:"scores"`
}

// writeArtifacts persists the JSON score artifact and, when the official
// format is enabled, the TSV submission file.
func (r *Runner) writeArtifacts(datasetID, split string, epoch int, result *trainer.EvalResult, labels map[int]string) error {
	base := fmt.Sprintf("%s_%s_scores_%d", datasetID, split, epoch)

	scorePath := filepath.Join(r.cfg.OutputDir, base+".json")
	data, err := json.MarshalIndent(scoreArtifact{
		Metrics:     result.Metrics,
		Predictions: result.Predictions,
		UIDs:        result.UIDs,
		Scores:      result.Scores,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling scores for %s: %w", datasetID, err)
	}
	if err := os.WriteFile(scorePath, data, 0644); err != nil {
		return fmt.Errorf("writing score file %s: %w", scorePath, err)
	}

	if r.cfg.OfficialFormat && r.submission != nil {
		officialPath := filepath.Join(r.cfg.OutputDir, base+".tsv")
		if err := r.submission.Write(officialPath, result, labels); err != nil {
			return fmt.Errorf("writing official score file %s: %w", officialPath, err)
		}
	}

	return nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
