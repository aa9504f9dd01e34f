package dataset

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/braidml/braid/internal/registry"
	"github.com/braidml/braid/internal/runconfig"
	"github.com/braidml/braid/internal/taskdef"
)

// Binder locates the data files for every requested task and wraps them in
// loaders. Train datasets are combined into one interleaved multi-task
// loader; dev/test splits get one loader each, with a nil entry when the
// split file is absent (missing dev/test data is expected, not an error).
type Binder struct {
	cfg      *runconfig.Config
	defs     *taskdef.Defs
	reg      *registry.Registry
	sampler  BatchSampler
	collator Collator
}

// NewBinder validates the requested dataset lists and returns a Binder.
// Empty train or test lists are configuration errors.
func NewBinder(cfg *runconfig.Config, defs *taskdef.Defs, reg *registry.Registry, sampler BatchSampler, collator Collator) (*Binder, error) {
	if len(cfg.TrainDatasets) == 0 {
		return nil, registry.ConfigErrorf("train dataset list cannot be empty")
	}
	if len(cfg.TestDatasets) == 0 {
		return nil, registry.ConfigErrorf("test dataset list cannot be empty")
	}
	if sampler == nil {
		sampler = InterleavingSampler{BatchSize: cfg.BatchSize, MixOpt: cfg.MixOpt, Ratio: cfg.Ratio}
	}
	if collator == nil {
		collator = PassthroughCollator{}
	}
	return &Binder{cfg: cfg, defs: defs, reg: reg, sampler: sampler, collator: collator}, nil
}

// BindTrain registers every requested train task and builds the interleaved
// multi-task training loader. Duplicate prefixes are skipped. A missing
// train file is fatal.
func (b *Binder) BindTrain() (Loader, error) {
	var datasets []*SingleTaskDataset
	seen := make(map[string]bool)

	for _, datasetID := range b.cfg.TrainDatasets {
		prefix := registry.Prefix(datasetID)
		if seen[prefix] {
			continue
		}
		seen[prefix] = true

		task, err := b.reg.Register(datasetID)
		if err != nil {
			return nil, err
		}

		path := b.splitPath(datasetID, "train")
		log.Printf("[Binder] Loading %s as task %d", path, task.ConfigID)

		ds, err := Open(path, DatasetSpec{
			TaskID:     task.ConfigID,
			TaskType:   task.Type,
			DataFormat: task.DataFormat,
			MaxSeqLen:  b.cfg.MaxSeqLen,
			IsTrain:    true,
		})
		if err != nil {
			return nil, err
		}
		datasets = append(datasets, ds)
	}

	return NewMultiTaskLoader(datasets, b.sampler, b.collator), nil
}

// BindEval builds the dev and test loader lists, index-aligned with the
// requested test dataset identifiers. Task ids are resolved with the same
// sharing-policy rule as training. Absent split files yield nil entries.
func (b *Binder) BindEval() (dev []Loader, test []Loader, err error) {
	for _, datasetID := range b.cfg.TestDatasets {
		prefix := registry.Prefix(datasetID)

		configID, err := b.reg.ResolveConfigID(prefix)
		if err != nil {
			return nil, nil, err
		}
		def, ok := b.defs.Get(prefix)
		if !ok {
			return nil, nil, registry.ConfigErrorf("task '%s' has no task definition", prefix)
		}

		spec := DatasetSpec{
			TaskID:     configID,
			TaskType:   def.TaskType,
			DataFormat: def.DataFormat,
			MaxSeqLen:  b.cfg.MaxSeqLen,
		}

		devLoader, err := b.openEvalLoader(b.splitPath(datasetID, "dev"), spec)
		if err != nil {
			return nil, nil, err
		}
		dev = append(dev, devLoader)

		testLoader, err := b.openEvalLoader(b.splitPath(datasetID, "test"), spec)
		if err != nil {
			return nil, nil, err
		}
		test = append(test, testLoader)
	}

	return dev, test, nil
}

// openEvalLoader opens a dev/test split, returning a nil Loader when the
// file does not exist.
func (b *Binder) openEvalLoader(path string, spec DatasetSpec) (Loader, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("checking split file %s: %w", path, err)
	}

	ds, err := Open(path, spec)
	if err != nil {
		return nil, err
	}
	return NewSingleTaskLoader(ds, b.cfg.BatchSizeEval, b.collator), nil
}

func (b *Binder) splitPath(datasetID, split string) string {
	return filepath.Join(b.cfg.DataDir, fmt.Sprintf("%s_%s.json", datasetID, split))
}
