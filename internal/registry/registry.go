// Package registry implements the task registration and config derivation
// engine. It ingests dataset identifiers, deduplicates them by task prefix,
// assigns dense task ids (optionally grouped by shared label cardinality) and
// derives the per-task decoding, dropout and loss settings that the trainer
// and evaluator consume.
//
// The registry is built once, single-threaded, during pipeline setup and
// frozen by Finalize. Finalize returns an immutable Snapshot that the caller
// merges into the run configuration explicitly.
package registry

import (
	"fmt"
	"strings"

	"github.com/braidml/braid/internal/taskdef"
)

// maxDecoderOpt is the exclusive upper bound for a non-trivial decoder option.
// Tasks requesting an option at or above it fall back to the plain head (0).
const maxDecoderOpt = 3

// Task is one registered task's identity and derived attributes.
type Task struct {
	Prefix     string
	DatasetID  string // first dataset identifier that registered the prefix
	TaskID     int    // dense, first-seen order
	ConfigID   int    // slot in the parallel config sequences (= TaskID unless class sharing)
	Type       taskdef.TaskType
	DataFormat taskdef.DataFormat
	NClass     int
	DecoderOpt int
	DropoutP   float64
	Loss       taskdef.LossType
	KDLoss     taskdef.LossType
	Pairwise   bool // true iff ranking; consumed by collation downstream
}

// Options configures registration policy.
type Options struct {
	// ClassSharing makes tasks with the same label cardinality share one
	// config slot (and therefore one decision head).
	ClassSharing bool

	// AnswerOpt is the run-level maximum decoder option.
	AnswerOpt int

	// DefaultDropout applies to tasks without a per-task override.
	DefaultDropout float64
}

// Registry accumulates task registrations and derives the frozen config
// snapshot. Not safe for concurrent use; there is no concurrent writer by
// construction.
type Registry struct {
	defs *taskdef.Defs
	opts Options

	taskIDs  map[string]int // prefix -> task id, first-seen order
	classIDs map[int]int    // n_class -> task class id, first-seen order
	tasks    []*Task        // registration order
	slots    []*slot        // one per distinct config id, index = config id
	frozen   bool
}

// slot accumulates the config entries for one distinct id. Several tasks may
// land on the same slot under class sharing; decoder options are reconciled
// across all of them at Finalize time.
type slot struct {
	decoderOpts []int
	taskType    taskdef.TaskType
	dropoutP    float64
	loss        taskdef.LossType
	kdLoss      taskdef.LossType
	nClass      int
}

// New creates a Registry over the given task definitions.
func New(defs *taskdef.Defs, opts Options) *Registry {
	return &Registry{
		defs:     defs,
		opts:     opts,
		taskIDs:  make(map[string]int),
		classIDs: make(map[int]int),
	}
}

// Prefix extracts the task prefix from a dataset identifier: the segment
// before the first underscore ("mnli_matched" -> "mnli").
func Prefix(datasetID string) string {
	if i := strings.Index(datasetID, "_"); i >= 0 {
		return datasetID[:i]
	}
	return datasetID
}

// Register registers the task encoded by a dataset identifier. Registering a
// prefix that is already known is a no-op and returns the existing task.
// An unknown prefix is a configuration error.
func (r *Registry) Register(datasetID string) (*Task, error) {
	if r.frozen {
		return nil, newConfigErrorf("registry is frozen; cannot register '%s'", datasetID)
	}

	prefix := Prefix(datasetID)
	if id, ok := r.taskIDs[prefix]; ok {
		return r.tasks[id], nil
	}

	def, ok := r.defs.Get(prefix)
	if !ok {
		return nil, newConfigErrorf("task '%s' (from dataset '%s') has no task definition", prefix, datasetID)
	}

	taskID := len(r.taskIDs)

	configID := taskID
	if r.opts.ClassSharing {
		if cid, ok := r.classIDs[def.NClass]; ok {
			configID = cid
		} else {
			configID = len(r.classIDs)
		}
	}

	dopt := DecoderOpt(def.EnableSAN, r.opts.AnswerOpt)

	dropoutP := r.opts.DefaultDropout
	if def.DropoutP != nil {
		dropoutP = *def.DropoutP
	}

	if configID < len(r.slots) {
		// A prior task already owns this slot; record the candidate decoder
		// option for min-reconciliation at Finalize. The first task's type,
		// losses and dropout keep the slot.
		r.slots[configID].decoderOpts = append(r.slots[configID].decoderOpts, dopt)
	} else {
		r.slots = append(r.slots, &slot{
			decoderOpts: []int{dopt},
			taskType:    def.TaskType,
			dropoutP:    dropoutP,
			loss:        def.Loss,
			kdLoss:      def.KDLoss,
			nClass:      def.NClass,
		})
	}

	r.taskIDs[prefix] = taskID
	if _, ok := r.classIDs[def.NClass]; !ok {
		r.classIDs[def.NClass] = len(r.classIDs)
	}

	task := &Task{
		Prefix:     prefix,
		DatasetID:  datasetID,
		TaskID:     taskID,
		ConfigID:   configID,
		Type:       def.TaskType,
		DataFormat: def.DataFormat,
		NClass:     def.NClass,
		DecoderOpt: dopt,
		DropoutP:   dropoutP,
		Loss:       def.Loss,
		KDLoss:     def.KDLoss,
		Pairwise:   def.TaskType == taskdef.TaskTypeRanking,
	}
	r.tasks = append(r.tasks, task)

	return task, nil
}

// DecoderOpt derives the decoder option for a task: the run-level maximum
// when the task supports stepwise answer decoding and the maximum is below
// the non-trivial bound, otherwise the plain head.
func DecoderOpt(enableSAN bool, maxOpt int) int {
	if enableSAN && maxOpt < maxDecoderOpt {
		return maxOpt
	}
	return 0
}

// ResolveConfigID resolves the config slot for a task prefix using the same
// sharing-policy rule as registration. Evaluation must resolve ids through
// this method or reports would be attributed to the wrong task.
func (r *Registry) ResolveConfigID(prefix string) (int, error) {
	if r.opts.ClassSharing {
		def, ok := r.defs.Get(prefix)
		if !ok {
			return 0, newConfigErrorf("task '%s' has no task definition", prefix)
		}
		cid, ok := r.classIDs[def.NClass]
		if !ok {
			return 0, newConfigErrorf("task '%s' (n_class %d) was never registered for training", prefix, def.NClass)
		}
		return cid, nil
	}

	id, ok := r.taskIDs[prefix]
	if !ok {
		return 0, newConfigErrorf("task '%s' was never registered for training", prefix)
	}
	return id, nil
}

// Lookup returns the registered task for a prefix.
func (r *Registry) Lookup(prefix string) (*Task, bool) {
	id, ok := r.taskIDs[prefix]
	if !ok {
		return nil, false
	}
	return r.tasks[id], true
}

// Tasks returns all registered tasks in registration order.
func (r *Registry) Tasks() []*Task {
	return r.tasks
}

// Len reports the number of registered tasks.
func (r *Registry) Len() int {
	return len(r.tasks)
}

// Finalize freezes the registry and returns the immutable config snapshot.
// Decoder options for shared slots are reconciled here, as the minimum across
// all tasks sharing the slot, so the result does not depend on registration
// order. The equal-length invariant across all six sequences is validated at
// this single point.
func (r *Registry) Finalize() (*Snapshot, error) {
	if len(r.tasks) == 0 {
		return nil, newConfigErrorf("no tasks registered")
	}
	r.frozen = true

	snap := &Snapshot{
		DecoderOpts: make([]int, 0, len(r.slots)),
		TaskTypes:   make([]taskdef.TaskType, 0, len(r.slots)),
		DropoutPs:   make([]float64, 0, len(r.slots)),
		LossTypes:   make([]taskdef.LossType, 0, len(r.slots)),
		KDLossTypes: make([]taskdef.LossType, 0, len(r.slots)),
		NClasses:    make([]int, 0, len(r.slots)),
	}

	for _, s := range r.slots {
		dopt := s.decoderOpts[0]
		for _, d := range s.decoderOpts[1:] {
			if d < dopt {
				dopt = d
			}
		}
		snap.DecoderOpts = append(snap.DecoderOpts, dopt)
		snap.TaskTypes = append(snap.TaskTypes, s.taskType)
		snap.DropoutPs = append(snap.DropoutPs, s.dropoutP)
		snap.LossTypes = append(snap.LossTypes, s.loss)
		snap.KDLossTypes = append(snap.KDLossTypes, s.kdLoss)
		snap.NClasses = append(snap.NClasses, s.nClass)
	}

	if err := snap.Validate(); err != nil {
		return nil, err
	}

	// Shared slots reconcile to the most conservative decoder capability;
	// reflect that back onto every task so task metadata agrees with the
	// snapshot.
	for _, task := range r.tasks {
		task.DecoderOpt = snap.DecoderOpts[task.ConfigID]
	}

	return snap, nil
}

// ConfigurationError is a fatal construction-time error: the pipeline must
// not start when one is raised.
type ConfigurationError struct {
	msg string
}

func (e *ConfigurationError) Error() string {
	return e.msg
}

func newConfigErrorf(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{msg: fmt.Sprintf(format, args...)}
}

// ConfigErrorf builds a ConfigurationError. Exported for the other pipeline
// components whose construction-time failures share the same taxonomy.
func ConfigErrorf(format string, args ...any) *ConfigurationError {
	return newConfigErrorf(format, args...)
}
