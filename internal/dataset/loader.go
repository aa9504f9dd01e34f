package dataset

import (
	"io"
)

// Loader produces the batches of one pass in sampler order. Batch production
// is a blocking, ordered pull: a batch is collated when requested, and the
// loop imposes no reordering of its own.
type Loader interface {
	// Len reports the number of batches one full pass produces.
	Len() int

	// Next returns the next batch, or io.EOF after the last batch of the pass.
	Next() (*Batch, error)

	// Reset rewinds the loader to the start of a new pass.
	Reset()
}

// planLoader walks a precomputed batch plan over a set of datasets,
// collating lazily. It backs both the multi-task training loader and the
// single-task eval loaders.
type planLoader struct {
	datasets []*SingleTaskDataset
	plan     []Assignment
	collator Collator
	pos      int
}

// NewMultiTaskLoader builds the interleaved training loader over all
// single-task train datasets, using the supplied sampler's plan.
func NewMultiTaskLoader(datasets []*SingleTaskDataset, sampler BatchSampler, collator Collator) Loader {
	sizes := make([]int, len(datasets))
	for i, ds := range datasets {
		sizes[i] = ds.Len()
	}
	return &planLoader{
		datasets: datasets,
		plan:     sampler.Plan(sizes),
		collator: collator,
	}
}

// NewSingleTaskLoader builds a sequential fixed-batch-size loader over one
// dataset, used for dev/test evaluation.
func NewSingleTaskLoader(ds *SingleTaskDataset, batchSize int, collator Collator) Loader {
	return &planLoader{
		datasets: []*SingleTaskDataset{ds},
		plan:     chunk(0, ds.Len(), batchSize),
		collator: collator,
	}
}

func (l *planLoader) Len() int {
	return len(l.plan)
}

func (l *planLoader) Next() (*Batch, error) {
	if l.pos >= len(l.plan) {
		return nil, io.EOF
	}
	a := l.plan[l.pos]
	l.pos++
	return l.collator.Collate(l.datasets[a.Task], a.Indices)
}

func (l *planLoader) Reset() {
	l.pos = 0
}
