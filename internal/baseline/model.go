// Package baseline provides a reference implementation of the trainer.Model
// contract: a per-task majority-class (classification/ranking) or running-mean
// (regression) predictor. It carries no encoder; its purpose is to exercise
// the full pipeline (counters, cadences, checkpoints, evaluation artifacts)
// with honest statistics.
package baseline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/braidml/braid/internal/dataset"
	"github.com/braidml/braid/internal/taskdef"
	"github.com/braidml/braid/internal/trainer"
)

// Model is the baseline predictor. Not safe for concurrent use; the pipeline
// issues strictly sequential calls.
type Model struct {
	gradAccum int64
	local     int64
	global    int64
	lossSum   float64
	lossN     int64
	tasks     map[int]*taskState
}

type taskState struct {
	taskType    taskdef.TaskType
	labelCounts map[int]int64
	sum         float64
	n           int64
}

// New creates a baseline model with the given gradient accumulation step.
func New(gradAccumulationStep int) *Model {
	if gradAccumulationStep < 1 {
		gradAccumulationStep = 1
	}
	return &Model{
		gradAccum: int64(gradAccumulationStep),
		tasks:     make(map[int]*taskState),
	}
}

// Update implements trainer.Model. The batch loss is the error of the
// pre-update predictor on the batch, so the running average falls as the
// per-task statistics sharpen.
func (m *Model) Update(_ context.Context, batch *dataset.Batch) error {
	state := m.taskState(batch.Meta.TaskID, batch.Meta.TaskType)

	loss, err := state.batchLoss(batch)
	if err != nil {
		return err
	}

	for _, label := range batch.Meta.Labels {
		state.observe(label)
	}

	m.lossSum += loss
	m.lossN++
	m.local++
	if m.local%m.gradAccum == 0 {
		m.global++
	}
	return nil
}

func (m *Model) taskState(id int, taskType taskdef.TaskType) *taskState {
	state, ok := m.tasks[id]
	if !ok {
		state = &taskState{taskType: taskType, labelCounts: make(map[int]int64)}
		m.tasks[id] = state
	}
	return state
}

// batchLoss scores the current predictor against a batch's gold labels.
func (s *taskState) batchLoss(batch *dataset.Batch) (float64, error) {
	if batch.Size() == 0 {
		return 0, nil
	}

	switch s.taskType {
	case taskdef.TaskTypeRegression:
		mean := s.mean()
		var sq float64
		for _, label := range batch.Meta.Labels {
			v, err := labelValue(label)
			if err != nil {
				return 0, err
			}
			d := v - mean
			sq += d * d
		}
		return sq / float64(batch.Size()), nil

	default:
		majority := s.majority()
		var wrong int
		for _, label := range batch.Meta.Labels {
			v, err := labelValue(label)
			if err != nil {
				return 0, err
			}
			if int(v) != majority {
				wrong++
			}
		}
		return float64(wrong) / float64(batch.Size()), nil
	}
}

func (s *taskState) observe(label any) {
	v, err := labelValue(label)
	if err != nil {
		return
	}
	if s.taskType == taskdef.TaskTypeRegression {
		s.sum += v
		s.n++
		return
	}
	s.labelCounts[int(v)]++
}

func (s *taskState) mean() float64 {
	if s.n == 0 {
		return 0
	}
	return s.sum / float64(s.n)
}

// majority returns the most frequent observed label; ties break toward the
// lower label index so results are deterministic.
func (s *taskState) majority() int {
	best, bestCount := 0, int64(-1)
	for label, count := range s.labelCounts {
		if count > bestCount || (count == bestCount && label < best) {
			best, bestCount = label, count
		}
	}
	return best
}

// predict returns the prediction and a confidence score for one example.
func (s *taskState) predict() (any, float64) {
	if s.taskType == taskdef.TaskTypeRegression {
		return s.mean(), 1.0
	}
	majority := s.majority()
	var total int64
	for _, c := range s.labelCounts {
		total += c
	}
	if total == 0 {
		return majority, 0
	}
	return majority, float64(s.labelCounts[majority]) / float64(total)
}

// Eval implements trainer.Model.
func (m *Model) Eval(ctx context.Context, loader dataset.Loader, opts trainer.EvalOptions) (*trainer.EvalResult, error) {
	result := &trainer.EvalResult{Metrics: make(map[string]any)}

	loader.Reset()
	var state *taskState
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		batch, err := loader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		if state == nil {
			state = m.taskState(batch.Meta.TaskID, batch.Meta.TaskType)
		}
		for i := range batch.Payload {
			pred, score := state.predict()
			result.Predictions = append(result.Predictions, pred)
			result.Scores = append(result.Scores, score)
			result.UIDs = append(result.UIDs, batch.Meta.UIDs[i])
			if opts.WithLabel {
				result.Golds = append(result.Golds, batch.Meta.Labels[i])
			}
		}
	}

	if opts.WithLabel {
		m.computeMetrics(result, opts)
	}
	return result, nil
}

func (m *Model) computeMetrics(result *trainer.EvalResult, opts trainer.EvalOptions) {
	for _, name := range opts.Metrics {
		switch name {
		case "accuracy":
			result.Metrics["accuracy"] = accuracy(result)
		case "mse":
			result.Metrics["mse"] = meanSquaredError(result)
		}
	}
	// A run without any computable metric still reports example count so the
	// artifact's metrics map is never empty.
	if len(result.Metrics) == 0 {
		result.Metrics["examples"] = len(result.Predictions)
	}
}

func accuracy(result *trainer.EvalResult) float64 {
	if len(result.Golds) == 0 {
		return 0
	}
	var correct int
	for i, gold := range result.Golds {
		g, err := labelValue(gold)
		if err != nil {
			continue
		}
		if pred, ok := result.Predictions[i].(int); ok && pred == int(g) {
			correct++
		}
	}
	return float64(correct) / float64(len(result.Golds))
}

func meanSquaredError(result *trainer.EvalResult) float64 {
	if len(result.Golds) == 0 {
		return 0
	}
	var sq float64
	for i, gold := range result.Golds {
		g, err := labelValue(gold)
		if err != nil {
			continue
		}
		var p float64
		switch pred := result.Predictions[i].(type) {
		case float64:
			p = pred
		case int:
			p = float64(pred)
		}
		d := p - g
		sq += d * d
	}
	return sq / float64(len(result.Golds))
}

// checkpoint is the JSON layout of a saved baseline model.
type checkpoint struct {
	LocalUpdates  int64                    `json:"local_updates"`
	GlobalUpdates int64                    `json:"global_updates"`
	Tasks         map[int]checkpointedTask `json:"tasks"`
}

type checkpointedTask struct {
	TaskType    taskdef.TaskType `json:"task_type"`
	LabelCounts map[int]int64    `json:"label_counts,omitempty"`
	Sum         float64          `json:"sum,omitempty"`
	N           int64            `json:"n,omitempty"`
}

// Save implements trainer.Model.
func (m *Model) Save(path string) error {
	ckpt := checkpoint{
		LocalUpdates:  m.local,
		GlobalUpdates: m.global,
		Tasks:         make(map[int]checkpointedTask, len(m.tasks)),
	}
	for id, state := range m.tasks {
		ckpt.Tasks[id] = checkpointedTask{
			TaskType:    state.taskType,
			LabelCounts: state.labelCounts,
			Sum:         state.sum,
			N:           state.n,
		}
	}

	data, err := json.MarshalIndent(ckpt, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling checkpoint: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing checkpoint %s: %w", path, err)
	}
	return nil
}

// LocalUpdates implements trainer.Model.
func (m *Model) LocalUpdates() int64 { return m.local }

// GlobalUpdates implements trainer.Model.
func (m *Model) GlobalUpdates() int64 { return m.global }

// TrainLossAvg implements trainer.Model.
func (m *Model) TrainLossAvg() float64 {
	if m.lossN == 0 {
		return 0
	}
	return m.lossSum / float64(m.lossN)
}

func labelValue(label any) (float64, error) {
	switch v := label.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case nil:
		return 0, fmt.Errorf("example has no label")
	default:
		return 0, fmt.Errorf("unsupported label type %T", label)
	}
}
